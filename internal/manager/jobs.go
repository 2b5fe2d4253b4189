package manager

import "github.com/google/uuid"

// jobSlot admits at most one generation at a time. There is no queue:
// a second caller is rejected immediately rather than parked.
type jobSlot struct {
	ch chan struct{}
}

func newJobSlot() *jobSlot {
	return &jobSlot{ch: make(chan struct{}, 1)}
}

// tryAcquire claims the slot without blocking. On success it returns a
// release func and a fresh job id; the release func is safe to call once.
func (s *jobSlot) tryAcquire() (release func(), jobID string, ok bool) {
	select {
	case s.ch <- struct{}{}:
		return func() { <-s.ch }, uuid.NewString(), true
	default:
		return nil, "", false
	}
}

// inFlight reports whether a job currently holds the slot.
func (s *jobSlot) inFlight() bool { return len(s.ch) > 0 }
