package manager

import "testing"

func TestJobSlotSingleFlight(t *testing.T) {
	slot := newJobSlot()
	if slot.inFlight() {
		t.Fatalf("fresh slot should be idle")
	}
	release, id, ok := slot.tryAcquire()
	if !ok {
		t.Fatalf("first acquire should succeed")
	}
	if id == "" {
		t.Fatalf("job id should be set")
	}
	if !slot.inFlight() {
		t.Fatalf("slot should report a job in flight")
	}
	if _, _, ok := slot.tryAcquire(); ok {
		t.Fatalf("second acquire must be rejected while busy")
	}
	release()
	if slot.inFlight() {
		t.Fatalf("slot should be idle after release")
	}
	release2, id2, ok := slot.tryAcquire()
	if !ok {
		t.Fatalf("acquire after release should succeed")
	}
	defer release2()
	if id2 == id {
		t.Fatalf("job ids should be unique, got %q twice", id)
	}
}
