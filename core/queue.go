package core

import (
	"sync"
	"time"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// TaskQueue holds tasks waiting for a worker. Implementations must be safe
// for concurrent use by many producers and many consumers.
type TaskQueue interface {
	// Offer inserts r without blocking and reports whether it was accepted.
	Offer(r Runnable) bool

	// Take blocks until an element is available or interrupt fires, in
	// which case it returns ErrInterrupted.
	Take(interrupt <-chan struct{}) (Runnable, error)

	// Poll is Take bounded by timeout. It returns (nil, nil) on timeout.
	Poll(timeout time.Duration, interrupt <-chan struct{}) (Runnable, error)

	// TryPoll removes and returns the head without blocking.
	TryPoll() (Runnable, bool)

	// Remove deletes one element equal to r and reports whether it was found.
	Remove(r Runnable) bool

	IsEmpty() bool
	Len() int

	// DrainAll removes every element and returns them in queue order.
	DrainAll() []Runnable
}

// pollBlocking drives the wait side shared by the slice-backed queues.
// notEmpty carries at most one wake-up token; consumers that leave elements
// behind pass the token on, so a dropped signal is never lost.
func pollBlocking(tryPoll func() (Runnable, bool), notEmpty <-chan struct{}, timeout time.Duration, timed bool, interrupt <-chan struct{}) (Runnable, error) {
	if r, ok := tryPoll(); ok {
		return r, nil
	}
	if timed && timeout <= 0 {
		return nil, nil
	}

	var timerC <-chan time.Time
	if timed {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	for {
		select {
		case <-notEmpty:
			if r, ok := tryPoll(); ok {
				return r, nil
			}
		case <-timerC:
			if r, ok := tryPoll(); ok {
				return r, nil
			}
			return nil, nil
		case <-interrupt:
			return nil, ErrInterrupted
		}
	}
}

// =============================================================================
// FIFOQueue: slice-backed FIFO, optionally bounded
// =============================================================================

// FIFOQueue is a first-in first-out TaskQueue. A capacity of zero or less
// means unbounded.
type FIFOQueue struct {
	mu       sync.Mutex
	tasks    []Runnable
	capacity int
	notEmpty chan struct{}
}

// NewFIFOQueue creates a FIFO queue holding at most capacity tasks.
func NewFIFOQueue(capacity int) *FIFOQueue {
	if capacity < 0 {
		capacity = 0
	}
	return &FIFOQueue{
		tasks:    make([]Runnable, 0, defaultQueueCap),
		capacity: capacity,
		notEmpty: make(chan struct{}, 1),
	}
}

// NewUnboundedFIFOQueue creates a FIFO queue without a capacity limit.
func NewUnboundedFIFOQueue() *FIFOQueue {
	return NewFIFOQueue(0)
}

// Capacity returns the bound, or 0 when unbounded.
func (q *FIFOQueue) Capacity() int { return q.capacity }

func (q *FIFOQueue) signal() {
	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}

func (q *FIFOQueue) Offer(r Runnable) bool {
	if r == nil {
		return false
	}
	q.mu.Lock()
	if q.capacity > 0 && len(q.tasks) >= q.capacity {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, r)
	q.mu.Unlock()

	q.signal()
	return true
}

func (q *FIFOQueue) TryPoll() (Runnable, bool) {
	q.mu.Lock()
	if len(q.tasks) == 0 {
		q.mu.Unlock()
		return nil, false
	}

	r := q.tasks[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	q.maybeCompactLocked()
	remaining := len(q.tasks)
	q.mu.Unlock()

	if remaining > 0 {
		q.signal()
	}
	return r, true
}

func (q *FIFOQueue) Take(interrupt <-chan struct{}) (Runnable, error) {
	return pollBlocking(q.TryPoll, q.notEmpty, 0, false, interrupt)
}

func (q *FIFOQueue) Poll(timeout time.Duration, interrupt <-chan struct{}) (Runnable, error) {
	return pollBlocking(q.TryPoll, q.notEmpty, timeout, true, interrupt)
}

func (q *FIFOQueue) Remove(r Runnable) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, t := range q.tasks {
		if t == r {
			copy(q.tasks[i:], q.tasks[i+1:])
			q.tasks[len(q.tasks)-1] = nil
			q.tasks = q.tasks[:len(q.tasks)-1]
			q.maybeCompactLocked()
			return true
		}
	}
	return false
}

func (q *FIFOQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *FIFOQueue) IsEmpty() bool {
	return q.Len() == 0
}

func (q *FIFOQueue) DrainAll() []Runnable {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil
	}
	drained := make([]Runnable, len(q.tasks))
	copy(drained, q.tasks)
	// Create a new slice to release all task references
	q.tasks = make([]Runnable, 0, defaultQueueCap)
	return drained
}

// Snapshot returns the queued tasks in order without removing them.
func (q *FIFOQueue) Snapshot() []Runnable {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Runnable, len(q.tasks))
	copy(out, q.tasks)
	return out
}

func (q *FIFOQueue) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]Runnable, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]Runnable, n, newCap)
	copy(newSlice, q.tasks)
	q.tasks = newSlice
}
