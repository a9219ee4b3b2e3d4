package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(ev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// TestRunWorker_HookOrder verifies hooks wrap every task
// Given: a single worker with before and after hooks
// When: two tasks run
// Then: events are before, run, after for each task in order
func TestRunWorker_HookOrder(t *testing.T) {
	// Arrange
	log := &eventLog{}
	e, err := NewSingleThreadExecutor(WithHooks(Hooks{
		BeforeExecute: func(ctx context.Context, workerID int, task Runnable) { log.add("before") },
		AfterExecute: func(task Runnable, fault error) {
			if fault != nil {
				log.add("after-fault")
				return
			}
			log.add("after")
		},
	}))
	if err != nil {
		t.Fatalf("NewSingleThreadExecutor() error = %v", err)
	}

	// Act
	e.ExecuteFunc(func(ctx context.Context) { log.add("run") })
	e.ExecuteFunc(func(ctx context.Context) { log.add("run") })
	e.Close()

	// Assert
	want := []string{"before", "run", "after", "before", "run", "after"}
	got := log.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestRunWorker_TaskPanicReplacesWorker verifies a panicking task ends its
// worker and a replacement keeps the pool serving
// Given: a single worker pool with panic handler, metrics and after hook
// When: a task panics and another task is submitted
// Then: the panic is reported everywhere and the second task still runs
func TestRunWorker_TaskPanicReplacesWorker(t *testing.T) {
	// Arrange
	panics := NewTestPanicHandler()
	metrics := NewTestMetrics()
	faults := make(chan error, 2)
	e := newTestExecutor(t,
		WithPoolSize(1, 1),
		WithPanicHandler(panics),
		WithMetrics(metrics),
		WithHooks(Hooks{
			AfterExecute: func(task Runnable, fault error) { faults <- fault },
		}),
	)

	// Act
	e.ExecuteFunc(func(ctx context.Context) { panic("boom") })
	fault := <-faults

	ran := make(chan struct{})
	waitForCondition(t, time.Second, func() bool { return e.PoolSize() == 1 })
	e.ExecuteFunc(func(ctx context.Context) { close(ran) })

	// Assert
	var pe *PanicError
	if !errors.As(fault, &pe) {
		t.Fatalf("AfterExecute fault = %v, want *PanicError", fault)
	}
	if pe.Value != "boom" || len(pe.Stack) == 0 {
		t.Errorf("PanicError = {%v, %d bytes}, want {boom, stack}", pe.Value, len(pe.Stack))
	}

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task after panic did not run")
	}
	if got := panics.CallCount(); got != 1 {
		t.Errorf("panic handler calls = %d, want 1", got)
	}
	if got := metrics.Panics(); len(got) != 1 {
		t.Errorf("metrics panics = %v, want 1 entry", got)
	}
	waitForCondition(t, time.Second, func() bool { return e.CompletedTaskCount() == 2 })
}

// TestRunWorker_BeforeHookPanicSkipsTask verifies a failing pre-task hook
// is fatal to the worker and the task does not run
func TestRunWorker_BeforeHookPanicSkipsTask(t *testing.T) {
	var failed atomic.Bool
	var afterCalls atomic.Int32
	e := newTestExecutor(t,
		WithPoolSize(1, 1),
		WithPanicHandler(NewTestPanicHandler()),
		WithHooks(Hooks{
			BeforeExecute: func(ctx context.Context, workerID int, task Runnable) {
				if failed.CompareAndSwap(false, true) {
					panic("hook")
				}
			},
			AfterExecute: func(task Runnable, fault error) { afterCalls.Add(1) },
		}),
	)

	var skipped atomic.Bool
	e.ExecuteFunc(func(ctx context.Context) { skipped.Store(true) })
	waitForCondition(t, time.Second, func() bool { return failed.Load() })

	ran := make(chan struct{})
	waitForCondition(t, time.Second, func() bool { return e.PoolSize() == 1 })
	e.ExecuteFunc(func(ctx context.Context) { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task after hook panic did not run")
	}
	if skipped.Load() {
		t.Error("task ran although BeforeExecute panicked")
	}
	waitForCondition(t, time.Second, func() bool { return afterCalls.Load() == 1 })
}

// TestGetTask_CullsIdleOverflowWorkers verifies keep-alive culling
// Given: core=1, max=4, keep-alive 30ms and four busy workers
// When: the work finishes
// Then: the pool shrinks back to one worker
func TestGetTask_CullsIdleOverflowWorkers(t *testing.T) {
	e := newTestExecutor(t,
		WithPoolSize(1, 4),
		WithKeepAlive(30*time.Millisecond),
		WithQueue(NewFIFOQueue(1)),
	)
	g := newGate()

	for i := 0; i < 5; i++ {
		if err := e.Execute(g.task()); err != nil {
			t.Fatalf("Execute(%d) error = %v", i, err)
		}
	}
	if got := e.PoolSize(); got != 4 {
		t.Fatalf("PoolSize() = %d, want 4", got)
	}

	g.open()
	waitForCondition(t, 2*time.Second, func() bool { return e.PoolSize() == 1 })
	time.Sleep(100 * time.Millisecond)
	if got := e.PoolSize(); got != 1 {
		t.Errorf("PoolSize() after settling = %d, want 1 (core workers are kept)", got)
	}
}

// TestGetTask_CoreTimeout verifies core workers expire when allowed
// Given: core=max=2 with core timeout allowed
// When: the pool goes idle
// Then: it shrinks to zero, stays RUNNING and still accepts work
func TestGetTask_CoreTimeout(t *testing.T) {
	e := newTestExecutor(t,
		WithPoolSize(2, 2),
		WithKeepAlive(20*time.Millisecond),
		WithAllowCoreThreadTimeOut(true),
	)
	e.ExecuteFunc(func(ctx context.Context) {})
	e.ExecuteFunc(func(ctx context.Context) {})

	waitForCondition(t, 2*time.Second, func() bool { return e.PoolSize() == 0 })
	if e.IsShutdown() {
		t.Fatal("IsShutdown() = true, want false")
	}

	ran := make(chan struct{})
	if err := e.ExecuteFunc(func(ctx context.Context) { close(ran) }); err != nil {
		t.Fatalf("ExecuteFunc() error = %v", err)
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task on emptied pool did not run")
	}
}

// TestGetTask_ZeroCoreStillDrainsQueue verifies a zero-core pool keeps one
// worker while work is queued
// Given: core=0, max=1 and an unbounded queue
// When: 50 tasks are submitted
// Then: all of them run and the worker expires afterwards
func TestGetTask_ZeroCoreStillDrainsQueue(t *testing.T) {
	e := newTestExecutor(t,
		WithPoolSize(0, 1),
		WithKeepAlive(10*time.Millisecond),
	)
	var counter atomic.Int32

	for i := 0; i < 50; i++ {
		e.ExecuteFunc(func(ctx context.Context) {
			time.Sleep(time.Millisecond)
			counter.Add(1)
		})
	}

	waitForCondition(t, 3*time.Second, func() bool { return counter.Load() == 50 })
	waitForCondition(t, 2*time.Second, func() bool { return e.PoolSize() == 0 })
}

// TestGetTask_KeepAliveReadPerWait verifies a shortened keep-alive applies
// to workers that are already waiting
func TestGetTask_KeepAliveReadPerWait(t *testing.T) {
	e := newTestExecutor(t,
		WithPoolSize(0, 2),
		WithKeepAlive(time.Hour),
	)
	e.ExecuteFunc(func(ctx context.Context) {})
	waitForCondition(t, time.Second, func() bool { return e.CompletedTaskCount() == 1 })

	if err := e.SetKeepAliveTime(10 * time.Millisecond); err != nil {
		t.Fatalf("SetKeepAliveTime() error = %v", err)
	}
	waitForCondition(t, 2*time.Second, func() bool { return e.PoolSize() == 0 })
}
