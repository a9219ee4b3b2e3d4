package core

import (
	"sync"
	"sync/atomic"
)

// worker is a pooled goroutine together with its execution lock and
// bookkeeping. It is owned by the executor's worker set while alive.
//
// The execution lock is held while a task runs, so idle interruption
// (which uses tryLock) never lands on a busy worker. A new worker starts
// with the lock held; runWorker releases it before taking work, keeping
// interrupts away from workers that have not started yet.
type worker struct {
	id        int
	firstTask Runnable

	// completedTasks is incremented only by the worker's own goroutine.
	completedTasks atomic.Uint64

	mu      sync.Mutex
	held    atomic.Bool
	started atomic.Bool

	// interruptCh carries the interrupted status: a pending token means
	// the worker has been interrupted and the next blocking queue wait
	// returns ErrInterrupted.
	interruptCh chan struct{}
}

func newWorker(id int, firstTask Runnable) *worker {
	w := &worker{
		id:          id,
		firstTask:   firstTask,
		interruptCh: make(chan struct{}, 1),
	}
	w.mu.Lock()
	w.held.Store(true)
	return w
}

func (w *worker) lock() {
	w.mu.Lock()
	w.held.Store(true)
}

func (w *worker) tryLock() bool {
	if !w.mu.TryLock() {
		return false
	}
	w.held.Store(true)
	return true
}

func (w *worker) unlock() {
	w.held.Store(false)
	w.mu.Unlock()
}

func (w *worker) isLocked() bool {
	return w.held.Load()
}

// interrupt sets the interrupted status; it is idempotent.
func (w *worker) interrupt() {
	select {
	case w.interruptCh <- struct{}{}:
	default:
	}
}

func (w *worker) interrupted() bool {
	return len(w.interruptCh) > 0
}

// clearInterrupt clears the interrupted status and reports whether it was set.
func (w *worker) clearInterrupt() bool {
	select {
	case <-w.interruptCh:
		return true
	default:
		return false
	}
}

func (w *worker) interruptIfStarted() {
	if w.started.Load() {
		w.interrupt()
	}
}
