package core

import "time"

// =============================================================================
// Tunables
// =============================================================================

// CorePoolSize returns the number of workers kept alive while idle.
func (e *ThreadPoolExecutor) CorePoolSize() int { return int(e.corePoolSize.Load()) }

// MaximumPoolSize returns the upper bound on the number of workers.
func (e *ThreadPoolExecutor) MaximumPoolSize() int { return int(e.maximumPoolSize.Load()) }

// KeepAliveTime returns how long a worker above the core size, or any worker
// when core timeout is allowed, waits for a task before exiting.
func (e *ThreadPoolExecutor) KeepAliveTime() time.Duration { return time.Duration(e.keepAlive.Load()) }

// AllowsCoreThreadTimeOut reports whether core workers are culled when idle.
func (e *ThreadPoolExecutor) AllowsCoreThreadTimeOut() bool { return e.allowCoreThreadTimeOut.Load() }

// RejectedTaskHandler returns the current rejection policy.
func (e *ThreadPoolExecutor) RejectedTaskHandler() RejectedTaskHandler { return *e.handler.Load() }

// SetCorePoolSize changes the core size. Surplus workers exit when they
// next go idle; when growing, new workers are started for queued tasks.
func (e *ThreadPoolExecutor) SetCorePoolSize(n int) error {
	if n < 0 || n > e.MaximumPoolSize() {
		return errConfig("CorePoolSize", "must be between 0 and MaxPoolSize")
	}
	delta := n - int(e.corePoolSize.Swap(int32(n)))

	if countOf(e.ctl.load()) > n {
		e.interruptIdleWorkers(false)
		return nil
	}
	if delta > 0 {
		// Start no more workers than there are tasks waiting.
		k := min(delta, e.queue.Len())
		for ; k > 0 && e.addWorker(nil, true); k-- {
			if e.queue.IsEmpty() {
				break
			}
		}
	}
	return nil
}

// SetMaximumPoolSize changes the maximum size. Surplus workers exit when
// they next go idle.
func (e *ThreadPoolExecutor) SetMaximumPoolSize(n int) error {
	if n <= 0 || n > maxWorkerCapacity || n < e.CorePoolSize() {
		return errConfig("MaxPoolSize", "must be positive and at least CorePoolSize")
	}
	e.maximumPoolSize.Store(int32(n))
	if countOf(e.ctl.load()) > n {
		e.interruptIdleWorkers(false)
	}
	return nil
}

// SetKeepAliveTime changes the idle timeout. Shortening it wakes idle
// workers so they observe the new value.
func (e *ThreadPoolExecutor) SetKeepAliveTime(d time.Duration) error {
	if d < 0 {
		return errConfig("KeepAlive", "must not be negative")
	}
	if d == 0 && e.AllowsCoreThreadTimeOut() {
		return errConfig("KeepAlive", "must be positive when core thread timeout is allowed")
	}
	old := time.Duration(e.keepAlive.Swap(int64(d)))
	if d < old {
		e.interruptIdleWorkers(false)
	}
	return nil
}

// AllowCoreThreadTimeOut sets whether core workers are culled after the
// keep-alive time. Enabling it requires a positive keep-alive time.
func (e *ThreadPoolExecutor) AllowCoreThreadTimeOut(allow bool) error {
	if allow && e.KeepAliveTime() <= 0 {
		return errConfig("AllowCoreThreadTimeOut", "requires a positive KeepAlive")
	}
	if e.allowCoreThreadTimeOut.CompareAndSwap(!allow, allow) && allow {
		e.interruptIdleWorkers(false)
	}
	return nil
}

// SetRejectedTaskHandler replaces the rejection policy.
func (e *ThreadPoolExecutor) SetRejectedTaskHandler(h RejectedTaskHandler) error {
	if h == nil {
		return errConfig("RejectedTaskHandler", "must not be nil")
	}
	e.handler.Store(&h)
	return nil
}

// PrestartCoreThread starts one idle core worker and reports whether it did.
func (e *ThreadPoolExecutor) PrestartCoreThread() bool {
	return countOf(e.ctl.load()) < e.CorePoolSize() && e.addWorker(nil, true)
}

// PrestartAllCoreThreads starts idle core workers up to the core size and
// returns how many were started.
func (e *ThreadPoolExecutor) PrestartAllCoreThreads() int {
	n := 0
	for e.addWorker(nil, true) {
		n++
	}
	return n
}

// =============================================================================
// Queue maintenance
// =============================================================================

// Remove deletes task from the queue if it has not started and reports
// whether it was removed.
func (e *ThreadPoolExecutor) Remove(task Runnable) bool {
	removed := e.queue.Remove(task)
	// The queue may have been the last thing keeping a shut down pool alive.
	e.tryTerminate()
	return removed
}

type cancellable interface {
	IsCancelled() bool
}

type snapshotter interface {
	Snapshot() []Runnable
}

// Purge removes cancelled futures from the queue and returns how many were
// removed. Queues that cannot list their contents are left alone.
func (e *ThreadPoolExecutor) Purge() int {
	s, ok := e.queue.(snapshotter)
	if !ok {
		return 0
	}
	n := 0
	for _, r := range s.Snapshot() {
		if c, ok := r.(cancellable); ok && c.IsCancelled() && e.queue.Remove(r) {
			n++
		}
	}
	e.tryTerminate()
	return n
}
