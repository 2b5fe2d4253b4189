package manager

import (
	"testing"
	"time"
)

func TestPhaseEstimatorSeeds(t *testing.T) {
	est := newPhaseEstimator()
	want := seedLoadDuration + 20*seedStepDuration
	if got := est.expect(20); got != want {
		t.Fatalf("expect(20) = %v, want %v", got, want)
	}
}

func TestPhaseEstimatorObserve(t *testing.T) {
	est := newPhaseEstimator()
	est.observe(20*time.Second, 10, 10*time.Second) // 1s/step
	if est.loadEWMA <= seedLoadDuration {
		t.Fatalf("load ewma did not move up: %v", est.loadEWMA)
	}
	if est.loadEWMA >= 20*time.Second {
		t.Fatalf("load ewma overshoots the observation: %v", est.loadEWMA)
	}
	if est.stepEWMA <= seedStepDuration || est.stepEWMA >= time.Second {
		t.Fatalf("step ewma = %v, want between seed and observation", est.stepEWMA)
	}
}

func TestPhaseEstimatorIgnoresEmptyObservation(t *testing.T) {
	est := newPhaseEstimator()
	est.observe(0, 0, 0)
	if est.loadEWMA != seedLoadDuration || est.stepEWMA != seedStepDuration {
		t.Fatalf("empty observation moved the averages: %v %v", est.loadEWMA, est.stepEWMA)
	}
}

func TestJobProgressFromStepCounters(t *testing.T) {
	p := newPhaseEstimator().startJob(20)
	p.observeStep(5, 20)
	if got := p.fraction(); got != 0.25 {
		t.Fatalf("fraction = %v, want 0.25", got)
	}
	// Counters only move forward.
	p.observeStep(3, 20)
	if got := p.fraction(); got != 0.25 {
		t.Fatalf("fraction went backwards: %v", got)
	}
	p.observeStep(20, 20)
	if got := p.fraction(); got != 0.99 {
		t.Fatalf("fraction = %v, want clamp at 0.99", got)
	}
}

func TestJobProgressWallClockFallback(t *testing.T) {
	p := newPhaseEstimator().startJob(20)
	p.started = time.Now().Add(-5 * time.Second)
	got := p.fraction()
	if got <= 0 || got >= 0.99 {
		t.Fatalf("fraction = %v, want elapsed share of the projection", got)
	}
	// 5s into a projected 20s job.
	if got < 0.2 || got > 0.3 {
		t.Fatalf("fraction = %v, want about 0.25", got)
	}
}

func TestJobProgressFinishRecalibrates(t *testing.T) {
	est := newPhaseEstimator()
	p := est.startJob(10)
	p.started = time.Now().Add(-4 * time.Second)
	p.observeStep(10, 10)
	p.firstStep = time.Now().Add(-2 * time.Second)
	p.finish()
	if est.loadEWMA >= seedLoadDuration {
		t.Fatalf("load ewma should shrink toward the 2s load phase: %v", est.loadEWMA)
	}
	if est.stepEWMA <= seedStepDuration/2 || est.stepEWMA >= seedStepDuration {
		t.Fatalf("step ewma = %v, want pulled toward 200ms/step", est.stepEWMA)
	}
}

func TestJobProgressFinishWithoutStepsIsNoop(t *testing.T) {
	est := newPhaseEstimator()
	p := est.startJob(10)
	p.finish()
	if est.loadEWMA != seedLoadDuration || est.stepEWMA != seedStepDuration {
		t.Fatalf("finish without observed steps must not recalibrate")
	}
}
