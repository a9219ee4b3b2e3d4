package core

// =============================================================================
// RejectedTaskHandler: policy for tasks the executor cannot admit
// =============================================================================

// RejectedTaskHandler decides what happens to a task the executor cannot
// accept, either because it is shut down or because both the workers and
// the queue are saturated. The returned error is returned from Execute.
type RejectedTaskHandler interface {
	HandleRejectedTask(task Runnable, e *ThreadPoolExecutor) error
}

// RejectedTaskHandlerFunc adapts a function to RejectedTaskHandler.
type RejectedTaskHandlerFunc func(task Runnable, e *ThreadPoolExecutor) error

// HandleRejectedTask calls f(task, e).
func (f RejectedTaskHandlerFunc) HandleRejectedTask(task Runnable, e *ThreadPoolExecutor) error {
	return f(task, e)
}

func rejectionReason(e *ThreadPoolExecutor) string {
	if e.IsShutdown() {
		return ReasonShutdown
	}
	return ReasonSaturated
}

// AbortPolicy returns a *RejectedError. It is the default.
type AbortPolicy struct{}

func (p *AbortPolicy) HandleRejectedTask(task Runnable, e *ThreadPoolExecutor) error {
	return &RejectedError{Pool: e.Name(), Reason: rejectionReason(e), Task: task}
}

// CallerRunsPolicy runs the task on the submitting goroutine, which slows
// submitters down while the pool is saturated. After shutdown the task is
// dropped.
type CallerRunsPolicy struct{}

func (p *CallerRunsPolicy) HandleRejectedTask(task Runnable, e *ThreadPoolExecutor) error {
	if !e.IsShutdown() {
		task.Run(e.taskCtx)
	}
	return nil
}

// DiscardPolicy silently drops the task.
type DiscardPolicy struct{}

func (p *DiscardPolicy) HandleRejectedTask(task Runnable, e *ThreadPoolExecutor) error {
	return nil
}

// DiscardOldestPolicy drops the oldest queued task and retries admission
// once. If the retry fails as well the task is dropped. After shutdown the
// task is dropped.
type DiscardOldestPolicy struct{}

func (p *DiscardOldestPolicy) HandleRejectedTask(task Runnable, e *ThreadPoolExecutor) error {
	if e.IsShutdown() {
		return nil
	}
	if _, ok := e.queue.TryPoll(); ok {
		e.logger.Debug("discarded oldest task", F("pool", e.name))
	}
	e.admit(task)
	return nil
}
