package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Test PanicHandler
// =============================================================================

// TestPanicHandler records panics reported by workers.
type TestPanicHandler struct {
	mu    sync.Mutex
	calls []PanicCall
}

type PanicCall struct {
	PoolName  string
	WorkerID  int
	PanicInfo any
}

func NewTestPanicHandler() *TestPanicHandler {
	return &TestPanicHandler{}
}

func (h *TestPanicHandler) HandlePanic(ctx context.Context, poolName string, workerID int, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, PanicCall{PoolName: poolName, WorkerID: workerID, PanicInfo: panicInfo})
}

func (h *TestPanicHandler) GetCalls() []PanicCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]PanicCall(nil), h.calls...)
}

func (h *TestPanicHandler) CallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

// =============================================================================
// Test Metrics
// =============================================================================

// TestMetrics records every metrics call.
type TestMetrics struct {
	mu          sync.Mutex
	durations   int
	panics      []any
	depths      []int
	rejections  []string
	workerCount []int
}

func NewTestMetrics() *TestMetrics {
	return &TestMetrics{}
}

func (m *TestMetrics) RecordTaskDuration(poolName string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations++
}

func (m *TestMetrics) RecordTaskPanic(poolName string, panicInfo any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics = append(m.panics, panicInfo)
}

func (m *TestMetrics) RecordQueueDepth(poolName string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depths = append(m.depths, depth)
}

func (m *TestMetrics) RecordTaskRejected(poolName string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections = append(m.rejections, reason)
}

func (m *TestMetrics) RecordWorkerCount(poolName string, workers int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workerCount = append(m.workerCount, workers)
}

func (m *TestMetrics) Durations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.durations
}

func (m *TestMetrics) Panics() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.panics...)
}

func (m *TestMetrics) Rejections() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.rejections...)
}

// =============================================================================
// Helpers
// =============================================================================

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// gate blocks tasks until it is opened and counts how many are waiting.
type gate struct {
	ch      chan struct{}
	once    sync.Once
	mu      sync.Mutex
	waiting int
}

func newGate() *gate {
	return &gate{ch: make(chan struct{})}
}

func (g *gate) open() {
	g.once.Do(func() { close(g.ch) })
}

func (g *gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiting
}

// task returns a Runnable that waits for the gate or for ctx to end.
func (g *gate) task() Runnable {
	return RunnableFunc(func(ctx context.Context) {
		g.mu.Lock()
		g.waiting++
		g.mu.Unlock()

		select {
		case <-g.ch:
		case <-ctx.Done():
		}
	})
}

func noopTask() Runnable {
	return RunnableFunc(func(ctx context.Context) {})
}

func newTestExecutor(t *testing.T, opts ...Option) *ThreadPoolExecutor {
	t.Helper()
	e, err := NewThreadPoolExecutor(opts...)
	if err != nil {
		t.Fatalf("NewThreadPoolExecutor() error = %v", err)
	}
	t.Cleanup(func() {
		e.ShutdownNow()
		if !e.AwaitTermination(5 * time.Second) {
			t.Errorf("executor did not terminate: %v", e)
		}
	})
	return e
}
