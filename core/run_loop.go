package core

import (
	"errors"
	"runtime/debug"
	"time"
)

// =============================================================================
// Worker loop
// =============================================================================

// runWorker is the body of every worker goroutine. It runs the first task,
// then keeps pulling from the queue until getTask tells it to exit.
func (e *ThreadPoolExecutor) runWorker(w *worker) {
	task := w.firstTask
	w.firstTask = nil
	w.started.Store(true)
	// Allow interrupts from here on.
	w.unlock()

	abrupt := true
	defer func() {
		e.processWorkerExit(w, abrupt)
	}()

	for {
		if task == nil {
			if task = e.getTask(w); task == nil {
				break
			}
		}
		if !e.runTask(w, task) {
			return
		}
		task = nil
	}
	abrupt = false
}

// runTask runs one task under the worker's execution lock and reports
// whether the worker may continue. A panic in the task or in either hook
// ends the worker.
func (e *ThreadPoolExecutor) runTask(w *worker, task Runnable) (ok bool) {
	w.lock()
	defer func() {
		w.completedTasks.Add(1)
		w.unlock()
	}()

	// A worker must carry an interrupt iff the pool is stopping. The
	// second phase check closes the race with a concurrent ShutdownNow
	// that lands between clearing and the first check.
	c := e.ctl.load()
	if phaseAtLeast(c, PhaseStop) || (w.clearInterrupt() && phaseAtLeast(e.ctl.load(), PhaseStop)) {
		w.interrupt()
	}

	if !e.callHook(w, func() {
		if e.hooks.BeforeExecute != nil {
			e.hooks.BeforeExecute(e.taskCtx, w.id, task)
		}
	}) {
		return false
	}

	fault := e.invoke(w, task)

	if !e.callHook(w, func() {
		if e.hooks.AfterExecute != nil {
			e.hooks.AfterExecute(task, fault)
		}
	}) {
		return false
	}
	return fault == nil
}

// invoke runs task and converts a panic into a *PanicError.
func (e *ThreadPoolExecutor) invoke(w *worker, task Runnable) (fault error) {
	start := time.Now()
	defer func() {
		e.metrics.RecordTaskDuration(e.name, time.Since(start))
		if r := recover(); r != nil {
			stack := debug.Stack()
			fault = &PanicError{Value: r, Stack: stack}
			e.panicHandler.HandlePanic(e.taskCtx, e.name, w.id, r, stack)
			e.metrics.RecordTaskPanic(e.name, r)
		}
	}()

	task.Run(e.taskCtx)
	return nil
}

// callHook runs a hook and reports false if it panicked.
func (e *ThreadPoolExecutor) callHook(w *worker, hook func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			e.panicHandler.HandlePanic(e.taskCtx, e.name, w.id, r, stack)
			ok = false
		}
	}()
	hook()
	return true
}

// =============================================================================
// Task retrieval
// =============================================================================

// getTask blocks until a task is available or the worker must exit. A nil
// return means exit, and the worker count has already been decremented.
func (e *ThreadPoolExecutor) getTask(w *worker) Runnable {
	timedOut := false

	for {
		c := e.ctl.load()

		if phaseAtLeast(c, PhaseShutdown) && (phaseAtLeast(c, PhaseStop) || e.queue.IsEmpty()) {
			e.ctl.decrementWorkerCount()
			return nil
		}

		wc := countOf(c)
		timed := e.allowCoreThreadTimeOut.Load() || wc > e.CorePoolSize()

		if (wc > e.MaximumPoolSize() || (timed && timedOut)) && (wc > 1 || e.queue.IsEmpty()) {
			if e.ctl.compareAndDecrementWorkerCount(c) {
				return nil
			}
			continue
		}

		var (
			r   Runnable
			err error
		)
		if timed {
			r, err = e.queue.Poll(e.KeepAliveTime(), w.interruptCh)
		} else {
			r, err = e.queue.Take(w.interruptCh)
		}
		switch {
		case errors.Is(err, ErrInterrupted):
			timedOut = false
		case r != nil:
			return r
		default:
			timedOut = true
		}
	}
}
