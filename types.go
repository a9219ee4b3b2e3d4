package executor

import "github.com/Swind/go-executor/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the executor package for most use cases.

// Task is the unit of work
type Task = core.Task

// Runnable is anything a worker can run
type Runnable = core.Runnable

// ThreadPoolExecutor is the bounded worker pool
type ThreadPoolExecutor = core.ThreadPoolExecutor

// Option configures a ThreadPoolExecutor
type Option = core.Option

// Callable and FutureTask for result-bearing submissions
type Callable = core.Callable
type FutureTask = core.FutureTask

// CompletionService yields futures in completion order
type CompletionService = core.CompletionService

// PoolStats is a point-in-time view of an executor
type PoolStats = core.PoolStats

// Phase is the executor lifecycle stage
type Phase = core.Phase

const (
	PhaseRunning    = core.PhaseRunning
	PhaseShutdown   = core.PhaseShutdown
	PhaseStop       = core.PhaseStop
	PhaseTidying    = core.PhaseTidying
	PhaseTerminated = core.PhaseTerminated
)

// Common errors
var (
	ErrRejected  = core.ErrRejected
	ErrNilTask   = core.ErrNilTask
	ErrCancelled = core.ErrCancelled
	ErrTimeout   = core.ErrTimeout
)

// Constructors and options
var (
	NewThreadPoolExecutor   = core.NewThreadPoolExecutor
	NewFixedThreadPool      = core.NewFixedThreadPool
	NewCachedThreadPool     = core.NewCachedThreadPool
	NewSingleThreadExecutor = core.NewSingleThreadExecutor
	NewCompletionService    = core.NewCompletionService

	WithName                   = core.WithName
	WithPoolSize               = core.WithPoolSize
	WithKeepAlive              = core.WithKeepAlive
	WithAllowCoreThreadTimeOut = core.WithAllowCoreThreadTimeOut
	WithQueue                  = core.WithQueue
	WithRejectedTaskHandler    = core.WithRejectedTaskHandler
)

// FromContext retrieves the executor running the current task
var FromContext = core.FromContext
