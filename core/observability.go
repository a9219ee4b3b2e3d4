package core

// PoolStats is a point-in-time view of an executor. The fields are read
// separately, so they may be mutually inconsistent under load.
type PoolStats struct {
	Name               string
	Phase              Phase
	PoolSize           int
	CorePoolSize       int
	MaximumPoolSize    int
	Active             int
	Queued             int
	LargestPoolSize    int
	TaskCount          uint64
	CompletedTaskCount uint64
}

// Running reports whether the executor was accepting tasks.
func (s PoolStats) Running() bool { return s.Phase == PhaseRunning }

// PoolSize returns the number of workers in the pool, or zero once the
// executor is tidying up.
func (e *ThreadPoolExecutor) PoolSize() int {
	e.mainLock.Lock()
	defer e.mainLock.Unlock()
	if phaseAtLeast(e.ctl.load(), PhaseTidying) {
		return 0
	}
	return len(e.workers)
}

// ActiveCount returns the approximate number of workers running a task.
func (e *ThreadPoolExecutor) ActiveCount() int {
	e.mainLock.Lock()
	defer e.mainLock.Unlock()
	n := 0
	for w := range e.workers {
		if w.isLocked() {
			n++
		}
	}
	return n
}

// LargestPoolSize returns the largest number of workers ever in the pool.
func (e *ThreadPoolExecutor) LargestPoolSize() int {
	e.mainLock.Lock()
	defer e.mainLock.Unlock()
	return e.largestPoolSize
}

// TaskCount returns the approximate number of tasks ever scheduled:
// completed, running and queued.
func (e *ThreadPoolExecutor) TaskCount() uint64 {
	e.mainLock.Lock()
	defer e.mainLock.Unlock()
	n := e.completedTaskCount
	for w := range e.workers {
		n += w.completedTasks.Load()
		if w.isLocked() {
			n++
		}
	}
	return n + uint64(e.queue.Len())
}

// CompletedTaskCount returns the approximate number of completed tasks.
func (e *ThreadPoolExecutor) CompletedTaskCount() uint64 {
	e.mainLock.Lock()
	defer e.mainLock.Unlock()
	n := e.completedTaskCount
	for w := range e.workers {
		n += w.completedTasks.Load()
	}
	return n
}

// Stats collects the executor counters in one pass over the worker set.
func (e *ThreadPoolExecutor) Stats() PoolStats {
	e.mainLock.Lock()
	c := e.ctl.load()
	s := PoolStats{
		Name:               e.name,
		Phase:              phaseOf(c),
		CorePoolSize:       e.CorePoolSize(),
		MaximumPoolSize:    e.MaximumPoolSize(),
		LargestPoolSize:    e.largestPoolSize,
		CompletedTaskCount: e.completedTaskCount,
	}
	if phaseLessThan(c, PhaseTidying) {
		s.PoolSize = len(e.workers)
	}
	for w := range e.workers {
		s.CompletedTaskCount += w.completedTasks.Load()
		if w.isLocked() {
			s.Active++
		}
	}
	e.mainLock.Unlock()

	s.Queued = e.queue.Len()
	s.TaskCount = s.CompletedTaskCount + uint64(s.Active) + uint64(s.Queued)
	return s
}
