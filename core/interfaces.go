package core

import (
	"context"
	"fmt"
	"os"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task or hook panics on a worker.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called with the pool name, the worker ID and the
	// recovered panic value and stack.
	HandlePanic(ctx context.Context, poolName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler prints panic information to stderr.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stderr.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, poolName string, workerID int, panicInfo any, stackTrace []byte) {
	fmt.Fprintf(os.Stderr, "[Worker %d @ %s] Panic: %v\nStack trace:\n%s",
		workerID, poolName, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting executor metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast; they are called from worker
// goroutines and from submitters.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(poolName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(poolName string, panicInfo any)

	// RecordQueueDepth records the queue depth observed after an enqueue.
	RecordQueueDepth(poolName string, depth int)

	// RecordTaskRejected records that a task was handed to the rejection
	// policy. reason is ReasonShutdown or ReasonSaturated.
	RecordTaskRejected(poolName string, reason string)

	// RecordWorkerCount records the worker count after a worker joins or leaves.
	RecordWorkerCount(poolName string, workers int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(poolName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(poolName string, panicInfo any)             {}
func (m *NilMetrics) RecordQueueDepth(poolName string, depth int)                {}
func (m *NilMetrics) RecordTaskRejected(poolName string, reason string)          {}
func (m *NilMetrics) RecordWorkerCount(poolName string, workers int)             {}

// =============================================================================
// Hooks: Extension points around task execution and termination
// =============================================================================

// Hooks are optional callbacks invoked by the executor. A panic in
// BeforeExecute or AfterExecute ends the worker that ran it; the worker is
// replaced if the pool still needs one.
type Hooks struct {
	// BeforeExecute runs on the worker goroutine before each task.
	// If it panics the task is not run.
	BeforeExecute func(ctx context.Context, workerID int, task Runnable)

	// AfterExecute runs on the worker goroutine after each task. fault is
	// a *PanicError when the task panicked, otherwise nil.
	AfterExecute func(task Runnable, fault error)

	// OnShutdown runs once on the goroutine whose Shutdown call moved the
	// pool out of RUNNING, before termination is attempted.
	OnShutdown func()

	// Terminated runs once, when the pool moves from TIDYING to TERMINATED.
	// A panic in it is recovered and logged, not propagated; the pool still
	// terminates.
	Terminated func()
}
