package core

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Callable is a task that produces a result.
type Callable func(ctx context.Context) (any, error)

const (
	futureNew int32 = iota
	futureRunning
	futureDone
	futureCancelled
)

// FutureTask is a Runnable that records the result of a Callable. A panic
// inside the callable becomes a *PanicError result instead of ending the
// worker that ran it.
type FutureTask struct {
	fn    Callable
	state atomic.Int32
	done  chan struct{}

	mu        sync.Mutex
	result    any
	err       error
	cancelRun context.CancelFunc

	onDone func(*FutureTask)
}

// NewFutureTask wraps fn. The task runs when its Run method is called,
// typically by an executor.
func NewFutureTask(fn Callable) *FutureTask {
	return &FutureTask{fn: fn, done: make(chan struct{})}
}

// Run executes the callable once. Calls after the first, or after Cancel,
// do nothing.
func (f *FutureTask) Run(ctx context.Context) {
	f.mu.Lock()
	if f.state.Load() != futureNew {
		f.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.cancelRun = cancel
	f.state.Store(futureRunning)
	f.mu.Unlock()
	defer cancel()

	result, err := f.call(runCtx)

	f.mu.Lock()
	if f.state.Load() != futureRunning {
		// Cancelled while running; the outcome is discarded.
		f.mu.Unlock()
		return
	}
	f.result, f.err = result, err
	f.state.Store(futureDone)
	close(f.done)
	f.mu.Unlock()

	f.fireDone()
}

func (f *FutureTask) call(ctx context.Context) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return f.fn(ctx)
}

// Cancel attempts to cancel the task. A task that has not started will
// never run. A running task has its context cancelled when interrupt is
// true. Cancel reports false if the task had already completed or been
// cancelled.
func (f *FutureTask) Cancel(interrupt bool) bool {
	f.mu.Lock()
	st := f.state.Load()
	if st != futureNew && st != futureRunning {
		f.mu.Unlock()
		return false
	}
	f.err = ErrCancelled
	f.state.Store(futureCancelled)
	close(f.done)
	if interrupt && f.cancelRun != nil {
		f.cancelRun()
	}
	f.mu.Unlock()

	f.fireDone()
	return true
}

func (f *FutureTask) fireDone() {
	if f.onDone != nil {
		f.onDone(f)
	}
}

// IsDone reports whether the task completed, failed or was cancelled.
func (f *FutureTask) IsDone() bool {
	return f.state.Load() >= futureDone
}

// IsCancelled reports whether the task was cancelled before completing.
func (f *FutureTask) IsCancelled() bool {
	return f.state.Load() == futureCancelled
}

// Done returns a channel that is closed when the future completes.
func (f *FutureTask) Done() <-chan struct{} {
	return f.done
}

// Get waits for the result. It returns ctx.Err() if ctx ends first and
// ErrCancelled if the task was cancelled.
func (f *FutureTask) Get(ctx context.Context) (any, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

// GetWithTimeout waits at most timeout for the result and returns
// ErrTimeout when it elapses.
func (f *FutureTask) GetWithTimeout(timeout time.Duration) (any, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.done:
	case <-timer.C:
		return nil, ErrTimeout
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

// =============================================================================
// Executor helpers
// =============================================================================

// Submit wraps fn in a FutureTask and executes it. The future is returned
// even when the task is rejected, together with the handler's error.
func (e *ThreadPoolExecutor) Submit(fn Callable) (*FutureTask, error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	f := NewFutureTask(fn)
	return f, e.Execute(f)
}

// SubmitFunc submits a task without a result value.
func (e *ThreadPoolExecutor) SubmitFunc(fn Task) (*FutureTask, error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	return e.Submit(func(ctx context.Context) (any, error) {
		fn(ctx)
		return nil, nil
	})
}

// InvokeAll submits every callable and waits until all of them are done or
// ctx ends, in which case the unfinished ones are cancelled. The futures are
// returned in the order of fns.
func (e *ThreadPoolExecutor) InvokeAll(ctx context.Context, fns ...Callable) ([]*FutureTask, error) {
	futures := make([]*FutureTask, 0, len(fns))
	cancelAll := func() {
		for _, f := range futures {
			f.Cancel(true)
		}
	}

	for _, fn := range fns {
		f, err := e.Submit(fn)
		if err != nil {
			cancelAll()
			return nil, err
		}
		futures = append(futures, f)
	}

	for _, f := range futures {
		select {
		case <-f.Done():
		case <-ctx.Done():
			cancelAll()
			return futures, ctx.Err()
		}
	}
	return futures, nil
}
