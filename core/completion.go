package core

import (
	"context"
	"time"
)

// CompletionService runs callables on an executor and hands back their
// futures in completion order.
type CompletionService struct {
	executor *ThreadPoolExecutor
	done     *FIFOQueue
}

// NewCompletionService creates a completion service backed by e.
func NewCompletionService(e *ThreadPoolExecutor) *CompletionService {
	return &CompletionService{executor: e, done: NewUnboundedFIFOQueue()}
}

// Submit executes fn. Its future is queued for Take as soon as it completes
// or is cancelled.
func (s *CompletionService) Submit(fn Callable) (*FutureTask, error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	f := NewFutureTask(fn)
	f.onDone = func(done *FutureTask) { s.done.Offer(done) }
	return f, s.executor.Execute(f)
}

// Take waits for the next completed future.
func (s *CompletionService) Take(ctx context.Context) (*FutureTask, error) {
	r, err := s.done.Take(ctx.Done())
	if err != nil {
		return nil, ctx.Err()
	}
	return r.(*FutureTask), nil
}

// Poll returns the next completed future, or nil if none is ready.
func (s *CompletionService) Poll() *FutureTask {
	if r, ok := s.done.TryPoll(); ok {
		return r.(*FutureTask)
	}
	return nil
}

// PollTimeout waits at most timeout for a completed future and returns nil
// if none arrives.
func (s *CompletionService) PollTimeout(timeout time.Duration) *FutureTask {
	r, _ := s.done.Poll(timeout, nil)
	if r == nil {
		return nil
	}
	return r.(*FutureTask)
}
