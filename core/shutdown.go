package core

import (
	"context"
	"time"
)

// Shutdown starts an orderly shutdown: queued tasks still run, new tasks are
// rejected. It does not wait; use AwaitTermination for that. Calling it
// again has no effect.
func (e *ThreadPoolExecutor) Shutdown() {
	e.mainLock.Lock()
	first := isRunning(e.ctl.load())
	e.ctl.advancePhase(PhaseShutdown)
	e.interruptIdleWorkersLocked(false)
	e.mainLock.Unlock()

	if first {
		e.logger.Info("executor shutting down", F("pool", e.name))
		e.runShutdownHook()
	}
	e.tryTerminate()
}

// ShutdownNow stops the executor: running tasks see their context
// cancelled, idle workers are woken, and the tasks still queued are
// removed and returned in queue order.
func (e *ThreadPoolExecutor) ShutdownNow() []Runnable {
	e.mainLock.Lock()
	first := phaseLessThan(e.ctl.load(), PhaseStop)
	e.ctl.advancePhase(PhaseStop)
	e.stopTasks()
	for w := range e.workers {
		w.interruptIfStarted()
	}
	pending := e.queue.DrainAll()
	e.mainLock.Unlock()

	if first {
		e.logger.Info("executor stopping", F("pool", e.name), F("drained", len(pending)))
	}
	e.tryTerminate()
	return pending
}

func (e *ThreadPoolExecutor) runShutdownHook() {
	if e.hooks.OnShutdown == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("shutdown hook panicked", F("pool", e.name), F("panic", r))
		}
	}()
	e.hooks.OnShutdown()
}

// IsShutdown reports whether Shutdown or ShutdownNow has been called.
func (e *ThreadPoolExecutor) IsShutdown() bool {
	return !isRunning(e.ctl.load())
}

// IsTerminating reports whether the executor is shutting down but has not
// terminated yet.
func (e *ThreadPoolExecutor) IsTerminating() bool {
	c := e.ctl.load()
	return !isRunning(c) && phaseLessThan(c, PhaseTerminated)
}

// IsTerminated reports whether the executor has fully terminated.
func (e *ThreadPoolExecutor) IsTerminated() bool {
	return phaseAtLeast(e.ctl.load(), PhaseTerminated)
}

// Phase returns the current lifecycle phase.
func (e *ThreadPoolExecutor) Phase() Phase {
	return phaseOf(e.ctl.load())
}

// Terminated returns a channel that is closed once the executor terminates.
func (e *ThreadPoolExecutor) Terminated() <-chan struct{} {
	return e.terminated
}

// AwaitTermination blocks until the executor terminates or timeout elapses
// and reports whether it terminated. A non-positive timeout checks once.
func (e *ThreadPoolExecutor) AwaitTermination(timeout time.Duration) bool {
	if timeout <= 0 {
		return e.IsTerminated()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.terminated:
		return true
	case <-timer.C:
		return e.IsTerminated()
	}
}

// AwaitTerminationContext blocks until the executor terminates or ctx is done.
func (e *ThreadPoolExecutor) AwaitTerminationContext(ctx context.Context) error {
	select {
	case <-e.terminated:
		return nil
	case <-ctx.Done():
		if e.IsTerminated() {
			return nil
		}
		return ctx.Err()
	}
}

// Close shuts the executor down and waits for queued and running tasks to
// finish.
func (e *ThreadPoolExecutor) Close() error {
	e.Shutdown()
	<-e.terminated
	return nil
}
