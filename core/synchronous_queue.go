package core

import "time"

// SynchronousQueue is a zero-capacity TaskQueue: Offer succeeds only when a
// consumer is already waiting in Take or Poll. It never holds elements, so
// Remove, TryPoll and DrainAll find nothing.
type SynchronousQueue struct {
	handoff chan Runnable
}

// NewSynchronousQueue creates a hand-off queue.
func NewSynchronousQueue() *SynchronousQueue {
	return &SynchronousQueue{handoff: make(chan Runnable)}
}

func (q *SynchronousQueue) Offer(r Runnable) bool {
	if r == nil {
		return false
	}
	select {
	case q.handoff <- r:
		return true
	default:
		return false
	}
}

func (q *SynchronousQueue) Take(interrupt <-chan struct{}) (Runnable, error) {
	select {
	case r := <-q.handoff:
		return r, nil
	case <-interrupt:
		return nil, ErrInterrupted
	}
}

func (q *SynchronousQueue) Poll(timeout time.Duration, interrupt <-chan struct{}) (Runnable, error) {
	if timeout <= 0 {
		return nil, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-q.handoff:
		return r, nil
	case <-timer.C:
		return nil, nil
	case <-interrupt:
		return nil, ErrInterrupted
	}
}

func (q *SynchronousQueue) TryPoll() (Runnable, bool) { return nil, false }
func (q *SynchronousQueue) Remove(r Runnable) bool    { return false }
func (q *SynchronousQueue) IsEmpty() bool             { return true }
func (q *SynchronousQueue) Len() int                  { return 0 }
func (q *SynchronousQueue) DrainAll() []Runnable      { return nil }
