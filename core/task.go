package core

import "context"

// Task is the unit of work (closure). The context is cancelled when the
// executor is stopped with ShutdownNow.
type Task func(ctx context.Context)

// Runnable is anything the executor can run.
//
// Queues remove tasks by identity, so implementations must be comparable;
// pointer types are the usual choice.
type Runnable interface {
	Run(ctx context.Context)
}

// funcTask adapts a Task to a comparable Runnable.
type funcTask struct {
	fn Task
}

func (t *funcTask) Run(ctx context.Context) { t.fn(ctx) }

// RunnableFunc wraps fn so it can be passed to Execute, Remove and queues.
// Every call returns a distinct Runnable.
func RunnableFunc(fn Task) Runnable {
	return &funcTask{fn: fn}
}

// =============================================================================
// Context Helper
// =============================================================================

type executorKeyType struct{}

var executorKey executorKeyType

// FromContext returns the executor running the current task, or nil when
// ctx was not produced by a ThreadPoolExecutor worker.
func FromContext(ctx context.Context) *ThreadPoolExecutor {
	if v := ctx.Value(executorKey); v != nil {
		return v.(*ThreadPoolExecutor)
	}
	return nil
}
