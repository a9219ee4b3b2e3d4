package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ThreadPoolExecutor runs submitted tasks on a dynamically sized set of
// worker goroutines.
//
// Submission first starts a new worker while fewer than CorePoolSize are
// running, otherwise queues the task, otherwise starts an overflow worker up
// to MaxPoolSize, otherwise hands the task to the RejectedTaskHandler.
//
// The lifecycle phase and worker count live in one packed atomic word. The
// worker set and aggregate counters are guarded by mainLock, which is never
// held across a blocking wait.
type ThreadPoolExecutor struct {
	name  string
	ctl   *ctlWord
	queue TaskQueue

	mainLock           sync.Mutex
	workers            map[*worker]struct{}
	largestPoolSize    int
	completedTaskCount uint64
	terminated         chan struct{}

	nextWorkerID atomic.Int64

	// Tunables are read without locking.
	corePoolSize           atomic.Int32
	maximumPoolSize        atomic.Int32
	keepAlive              atomic.Int64
	allowCoreThreadTimeOut atomic.Bool

	handler      atomic.Pointer[RejectedTaskHandler]
	panicHandler PanicHandler
	metrics      Metrics
	logger       Logger
	hooks        Hooks
	launcher     Launcher

	// taskCtx is handed to every task; stopTasks cancels it on ShutdownNow.
	taskCtx   context.Context
	stopTasks context.CancelFunc
}

// NewThreadPoolExecutor creates an executor from DefaultConfig modified by opts.
//
// Example:
//
//	exec, err := core.NewThreadPoolExecutor(
//	    core.WithPoolSize(2, 8),
//	    core.WithQueue(core.NewFIFOQueue(100)),
//	    core.WithRejectedTaskHandler(&core.CallerRunsPolicy{}),
//	)
func NewThreadPoolExecutor(opts ...Option) (*ThreadPoolExecutor, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewThreadPoolExecutorWithConfig(cfg)
}

// NewThreadPoolExecutorWithConfig creates an executor from cfg.
func NewThreadPoolExecutorWithConfig(cfg Config) (*ThreadPoolExecutor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	e := &ThreadPoolExecutor{
		name:         cfg.Name,
		ctl:          newCtlWord(),
		queue:        cfg.Queue,
		workers:      make(map[*worker]struct{}),
		terminated:   make(chan struct{}),
		panicHandler: cfg.PanicHandler,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		hooks:        cfg.Hooks,
		launcher:     cfg.Launcher,
	}
	e.corePoolSize.Store(int32(cfg.CorePoolSize))
	e.maximumPoolSize.Store(int32(cfg.MaxPoolSize))
	e.keepAlive.Store(int64(cfg.KeepAlive))
	e.allowCoreThreadTimeOut.Store(cfg.AllowCoreThreadTimeOut)
	e.handler.Store(&cfg.RejectedTaskHandler)

	ctx, cancel := context.WithCancel(context.Background())
	e.taskCtx = context.WithValue(ctx, executorKey, e)
	e.stopTasks = cancel

	return e, nil
}

// NewFixedThreadPool creates an executor with n workers and an unbounded queue.
func NewFixedThreadPool(n int, opts ...Option) (*ThreadPoolExecutor, error) {
	opts = append([]Option{WithPoolSize(n, n), WithKeepAlive(0)}, opts...)
	return NewThreadPoolExecutor(opts...)
}

// NewSingleThreadExecutor creates an executor that runs tasks one at a time
// in queue order.
func NewSingleThreadExecutor(opts ...Option) (*ThreadPoolExecutor, error) {
	return NewFixedThreadPool(1, opts...)
}

// NewCachedThreadPool creates an executor that starts workers on demand,
// hands tasks off directly and culls workers idle for 60 seconds.
func NewCachedThreadPool(opts ...Option) (*ThreadPoolExecutor, error) {
	opts = append([]Option{
		WithPoolSize(0, maxWorkerCapacity),
		WithKeepAlive(60 * time.Second),
		WithQueue(NewSynchronousQueue()),
	}, opts...)
	return NewThreadPoolExecutor(opts...)
}

// Name returns the executor name.
func (e *ThreadPoolExecutor) Name() string { return e.name }

// Queue returns the task queue. Direct manipulation may break the
// executor's accounting; it is meant for monitoring and the rejection policies.
func (e *ThreadPoolExecutor) Queue() TaskQueue { return e.queue }

// =============================================================================
// Submission
// =============================================================================

// Execute runs task at some point in the future on a worker. When the task
// cannot be admitted it is passed to the RejectedTaskHandler and the
// handler's error is returned.
func (e *ThreadPoolExecutor) Execute(task Runnable) error {
	if task == nil {
		return ErrNilTask
	}
	if e.admit(task) {
		return nil
	}
	return e.reject(task)
}

// ExecuteFunc is Execute for a plain function.
func (e *ThreadPoolExecutor) ExecuteFunc(fn Task) error {
	if fn == nil {
		return ErrNilTask
	}
	return e.Execute(RunnableFunc(fn))
}

// admit tries, in order, a new core worker, the queue and an overflow
// worker. It reports false when the task must be rejected.
func (e *ThreadPoolExecutor) admit(task Runnable) bool {
	c := e.ctl.load()
	if countOf(c) < e.CorePoolSize() {
		if e.addWorker(task, true) {
			return true
		}
		c = e.ctl.load()
	}

	if isRunning(c) && e.queue.Offer(task) {
		e.metrics.RecordQueueDepth(e.name, e.queue.Len())

		// Shutdown may have raced with the offer, or every worker may have
		// exited since the count was read.
		recheck := e.ctl.load()
		if !isRunning(recheck) && e.Remove(task) {
			return false
		}
		if countOf(recheck) == 0 {
			e.addWorker(nil, false)
		}
		return true
	}

	return e.addWorker(task, false)
}

func (e *ThreadPoolExecutor) reject(task Runnable) error {
	reason := ReasonSaturated
	if !isRunning(e.ctl.load()) {
		reason = ReasonShutdown
	}
	e.metrics.RecordTaskRejected(e.name, reason)
	e.logger.Debug("task rejected", F("pool", e.name), F("reason", reason))

	return e.RejectedTaskHandler().HandleRejectedTask(task, e)
}

// =============================================================================
// Admission
// =============================================================================

// addWorker registers and starts a worker bounded by the core or maximum
// pool size. firstTask, when non-nil, runs before the worker polls the queue.
func (e *ThreadPoolExecutor) addWorker(firstTask Runnable, core bool) bool {
retry:
	for {
		c := e.ctl.load()

		// After SHUTDOWN a worker is only worth adding to drain a
		// non-empty queue, and never with a new first task.
		if phaseAtLeast(c, PhaseShutdown) &&
			(phaseAtLeast(c, PhaseStop) || firstTask != nil || e.queue.IsEmpty()) {
			return false
		}

		for {
			bound := e.MaximumPoolSize()
			if core {
				bound = e.CorePoolSize()
			}
			if countOf(c) >= min(bound, maxWorkerCapacity) {
				return false
			}
			if e.ctl.compareAndIncrementWorkerCount(c) {
				break retry
			}
			c = e.ctl.load()
			if phaseAtLeast(c, PhaseShutdown) {
				continue retry
			}
			// Count changed underneath; retry the inner loop.
		}
	}

	w := newWorker(int(e.nextWorkerID.Add(1)), firstTask)

	added := false
	e.mainLock.Lock()
	c := e.ctl.load()
	if isRunning(c) || (phaseLessThan(c, PhaseStop) && firstTask == nil) {
		e.workers[w] = struct{}{}
		added = true
		if s := len(e.workers); s > e.largestPoolSize {
			e.largestPoolSize = s
		}
	}
	e.mainLock.Unlock()

	started := false
	if added {
		if err := e.launcher(func() { e.runWorker(w) }); err != nil {
			e.logger.Error("worker launch failed", F("pool", e.name), F("worker", w.id), F("error", err))
		} else {
			started = true
			e.metrics.RecordWorkerCount(e.name, countOf(e.ctl.load()))
		}
	}
	if !started {
		e.addWorkerFailed(w)
	}
	return started
}

// addWorkerFailed rolls back a worker whose admission did not complete.
func (e *ThreadPoolExecutor) addWorkerFailed(w *worker) {
	e.mainLock.Lock()
	delete(e.workers, w)
	e.ctl.decrementWorkerCount()
	e.mainLock.Unlock()

	e.tryTerminate()
}

// processWorkerExit runs on the exiting worker's goroutine. On a normal
// exit getTask has already decremented the worker count.
func (e *ThreadPoolExecutor) processWorkerExit(w *worker, abrupt bool) {
	if abrupt {
		e.ctl.decrementWorkerCount()
		e.logger.Warn("worker exited abruptly", F("pool", e.name), F("worker", w.id))
	}

	e.mainLock.Lock()
	e.completedTaskCount += w.completedTasks.Load()
	delete(e.workers, w)
	e.mainLock.Unlock()

	e.metrics.RecordWorkerCount(e.name, countOf(e.ctl.load()))
	e.tryTerminate()

	c := e.ctl.load()
	if phaseAtLeast(c, PhaseStop) {
		return
	}
	if !abrupt {
		minimum := e.CorePoolSize()
		if e.allowCoreThreadTimeOut.Load() {
			minimum = 0
		}
		// Someone has to drain what is left in the queue.
		if minimum == 0 && !e.queue.IsEmpty() {
			minimum = 1
		}
		if countOf(c) >= minimum {
			return
		}
	}
	e.addWorker(nil, false)
}

// =============================================================================
// Termination
// =============================================================================

// tryTerminate moves the pool to TERMINATED once it is shut down, the queue
// is empty (or the pool is stopping) and no workers remain. It is safe to
// call from anywhere, any number of times.
func (e *ThreadPoolExecutor) tryTerminate() {
	for {
		c := e.ctl.load()
		if isRunning(c) ||
			phaseAtLeast(c, PhaseTidying) ||
			(phaseLessThan(c, PhaseStop) && !e.queue.IsEmpty()) {
			return
		}

		if countOf(c) != 0 {
			// Wake one idle worker; it exits through getTask and calls
			// tryTerminate again, passing the signal on.
			e.interruptIdleWorkers(true)
			return
		}

		e.mainLock.Lock()
		if e.ctl.casToPhase(c, PhaseTidying) {
			e.mainLock.Unlock()

			e.runTerminatedHook()
			e.logger.Info("executor terminated", F("pool", e.name))

			// Nothing on the executor side runs after the channel closes.
			e.mainLock.Lock()
			e.ctl.store(PhaseTerminated, 0)
			close(e.terminated)
			e.mainLock.Unlock()
			return
		}
		e.mainLock.Unlock()
		// Lost the CAS; re-evaluate.
	}
}

func (e *ThreadPoolExecutor) runTerminatedHook() {
	if e.hooks.Terminated == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("terminated hook panicked", F("pool", e.name), F("panic", r))
		}
	}()
	e.hooks.Terminated()
}

// interruptIdleWorkers interrupts workers that are waiting for a task so
// they re-check the pool state. A worker running a task holds its lock and
// is skipped.
func (e *ThreadPoolExecutor) interruptIdleWorkers(onlyOne bool) {
	e.mainLock.Lock()
	defer e.mainLock.Unlock()
	e.interruptIdleWorkersLocked(onlyOne)
}

func (e *ThreadPoolExecutor) interruptIdleWorkersLocked(onlyOne bool) {
	for w := range e.workers {
		if !w.interrupted() && w.tryLock() {
			w.interrupt()
			w.unlock()
		}
		if onlyOne {
			return
		}
	}
}

// String describes the phase and counters, e.g. for logs.
func (e *ThreadPoolExecutor) String() string {
	s := e.Stats()
	return fmt.Sprintf("%s[%s, pool size = %d, active = %d, queued = %d, completed = %d]",
		s.Name, s.Phase, s.PoolSize, s.Active, s.Queued, s.CompletedTaskCount)
}
