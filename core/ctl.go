package core

import "sync/atomic"

// =============================================================================
// Packed pool control word
// =============================================================================
//
// The control word packs two fields into one int32:
//
//	phase (high 3 bits) | worker count (low 29 bits)
//
// Both fields are always changed together with a single CAS so that admission
// and termination decisions never observe a count without its phase.

const (
	countBits = 32 - 3
	countMask = (1 << countBits) - 1

	// maxWorkerCapacity is the largest worker count the control word can hold.
	maxWorkerCapacity = countMask
)

// Phase is the coarse lifecycle stage of a ThreadPoolExecutor.
// Phases only move forward.
type Phase int32

const (
	// PhaseRunning accepts new tasks and processes queued tasks.
	PhaseRunning Phase = -1 << countBits
	// PhaseShutdown rejects new tasks but processes queued tasks.
	PhaseShutdown Phase = 0 << countBits
	// PhaseStop rejects new tasks, drops queued tasks and cancels running ones.
	PhaseStop Phase = 1 << countBits
	// PhaseTidying means all workers have exited and the queue is empty;
	// the terminated hook is about to run.
	PhaseTidying Phase = 2 << countBits
	// PhaseTerminated means the terminated hook has completed.
	PhaseTerminated Phase = 3 << countBits
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "RUNNING"
	case PhaseShutdown:
		return "SHUTDOWN"
	case PhaseStop:
		return "STOP"
	case PhaseTidying:
		return "TIDYING"
	case PhaseTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

func phaseOf(c int32) Phase { return Phase(c &^ countMask) }
func countOf(c int32) int   { return int(c & countMask) }

func ctlOf(p Phase, count int) int32 { return int32(p) | int32(count) }

func phaseLessThan(c int32, p Phase) bool { return c < int32(p) }
func phaseAtLeast(c int32, p Phase) bool  { return c >= int32(p) }
func isRunning(c int32) bool              { return c < int32(PhaseShutdown) }

// ctlWord is the atomically updated control word.
type ctlWord struct {
	v atomic.Int32
}

func newCtlWord() *ctlWord {
	c := &ctlWord{}
	c.v.Store(ctlOf(PhaseRunning, 0))
	return c
}

func (c *ctlWord) load() int32 { return c.v.Load() }

func (c *ctlWord) compareAndIncrementWorkerCount(expect int32) bool {
	return c.v.CompareAndSwap(expect, expect+1)
}

func (c *ctlWord) compareAndDecrementWorkerCount(expect int32) bool {
	return c.v.CompareAndSwap(expect, expect-1)
}

// decrementWorkerCount is used on abrupt worker exit and on exits that were
// already decided by getTask's caller. It retries until it succeeds.
func (c *ctlWord) decrementWorkerCount() {
	for {
		cur := c.v.Load()
		if c.v.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// advancePhase moves the phase to at least target, keeping the worker count.
// It is a no-op when the phase is already at or beyond target.
func (c *ctlWord) advancePhase(target Phase) {
	for {
		cur := c.v.Load()
		if phaseAtLeast(cur, target) {
			return
		}
		if c.v.CompareAndSwap(cur, ctlOf(target, countOf(cur))) {
			return
		}
	}
}

// casToPhase sets the word to (p, 0) iff it still equals expect.
func (c *ctlWord) casToPhase(expect int32, p Phase) bool {
	return c.v.CompareAndSwap(expect, ctlOf(p, 0))
}

func (c *ctlWord) store(p Phase, count int) {
	c.v.Store(ctlOf(p, count))
}
