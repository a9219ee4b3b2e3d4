package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmit_Result(t *testing.T) {
	e := newTestExecutor(t, WithPoolSize(2, 2))

	f, err := e.Submit(func(ctx context.Context) (any, error) { return 42, nil })
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	v, err := f.Get(context.Background())
	if err != nil || v != 42 {
		t.Errorf("Get() = (%v, %v), want (42, nil)", v, err)
	}
	if !f.IsDone() || f.IsCancelled() {
		t.Errorf("IsDone() = %v, IsCancelled() = %v, want true, false", f.IsDone(), f.IsCancelled())
	}
}

func TestSubmit_Error(t *testing.T) {
	e := newTestExecutor(t, WithPoolSize(1, 1))
	sentinel := errors.New("failed")

	f, _ := e.Submit(func(ctx context.Context) (any, error) { return nil, sentinel })

	if _, err := f.GetWithTimeout(time.Second); !errors.Is(err, sentinel) {
		t.Errorf("Get() error = %v, want %v", err, sentinel)
	}
}

// TestSubmit_PanicIsResult verifies a panicking future does not end its worker
// Given: a one-worker pool with a panic handler
// When: a submitted callable panics
// Then: Get returns *PanicError, the panic handler is not called and the
// same worker keeps running tasks
func TestSubmit_PanicIsResult(t *testing.T) {
	panics := NewTestPanicHandler()
	e := newTestExecutor(t, WithPoolSize(1, 1), WithPanicHandler(panics))

	f, _ := e.Submit(func(ctx context.Context) (any, error) { panic("kaboom") })
	_, err := f.GetWithTimeout(time.Second)

	var pe *PanicError
	if !errors.As(err, &pe) || pe.Value != "kaboom" {
		t.Fatalf("Get() error = %v, want *PanicError{kaboom}", err)
	}

	g, _ := e.SubmitFunc(func(ctx context.Context) {})
	if _, err := g.GetWithTimeout(time.Second); err != nil {
		t.Fatalf("follow-up Get() error = %v", err)
	}
	if got := panics.CallCount(); got != 0 {
		t.Errorf("panic handler calls = %d, want 0", got)
	}
	if got := e.LargestPoolSize(); got != 1 {
		t.Errorf("LargestPoolSize() = %d, want 1 (worker was not replaced)", got)
	}
}

// TestFutureTask_CancelBeforeRun verifies a cancelled queued future never runs
func TestFutureTask_CancelBeforeRun(t *testing.T) {
	e := newTestExecutor(t, WithPoolSize(1, 1))
	g := newGate()
	e.Execute(g.task())

	var ran atomic.Bool
	f, _ := e.Submit(func(ctx context.Context) (any, error) {
		ran.Store(true)
		return nil, nil
	})

	if !f.Cancel(false) {
		t.Fatal("Cancel() = false, want true")
	}
	if f.Cancel(false) {
		t.Error("second Cancel() = true, want false")
	}
	if _, err := f.Get(context.Background()); !errors.Is(err, ErrCancelled) {
		t.Errorf("Get() error = %v, want ErrCancelled", err)
	}

	g.open()
	waitForCondition(t, time.Second, func() bool { return e.CompletedTaskCount() == 2 })
	if ran.Load() {
		t.Error("cancelled future ran")
	}
}

// TestFutureTask_CancelInterruptsRunning verifies Cancel(true) cancels the
// running callable's context
func TestFutureTask_CancelInterruptsRunning(t *testing.T) {
	e := newTestExecutor(t, WithPoolSize(1, 1))
	started := make(chan struct{})
	observed := make(chan error, 1)

	f, _ := e.Submit(func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		observed <- ctx.Err()
		return "late", nil
	})
	<-started

	if !f.Cancel(true) {
		t.Fatal("Cancel(true) = false, want true")
	}

	select {
	case err := <-observed:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("callable ctx.Err() = %v, want Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("callable was not interrupted")
	}
	if v, err := f.Get(context.Background()); v != nil || !errors.Is(err, ErrCancelled) {
		t.Errorf("Get() = (%v, %v), want (nil, ErrCancelled)", v, err)
	}
}

func TestFutureTask_Timeouts(t *testing.T) {
	e := newTestExecutor(t, WithPoolSize(1, 1))
	g := newGate()
	defer g.open()
	e.Execute(g.task())

	f, _ := e.Submit(func(ctx context.Context) (any, error) { return nil, nil })

	if _, err := f.GetWithTimeout(10 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("GetWithTimeout() error = %v, want ErrTimeout", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Get(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Get(cancelled ctx) error = %v, want Canceled", err)
	}
}

func TestSubmit_Rejected(t *testing.T) {
	e := newTestExecutor(t, WithPoolSize(1, 1))
	e.Shutdown()

	if _, err := e.Submit(func(ctx context.Context) (any, error) { return nil, nil }); !errors.Is(err, ErrRejected) {
		t.Errorf("Submit() error = %v, want ErrRejected", err)
	}
	if _, err := e.Submit(nil); !errors.Is(err, ErrNilTask) {
		t.Errorf("Submit(nil) error = %v, want ErrNilTask", err)
	}
}

// TestInvokeAll verifies futures come back in submission order, all done
func TestInvokeAll(t *testing.T) {
	e := newTestExecutor(t, WithPoolSize(3, 3))

	futures, err := e.InvokeAll(context.Background(),
		func(ctx context.Context) (any, error) { time.Sleep(30 * time.Millisecond); return 1, nil },
		func(ctx context.Context) (any, error) { return 2, nil },
		func(ctx context.Context) (any, error) { time.Sleep(10 * time.Millisecond); return 3, nil },
	)
	if err != nil {
		t.Fatalf("InvokeAll() error = %v", err)
	}

	for i, f := range futures {
		if !f.IsDone() {
			t.Errorf("futures[%d] not done", i)
		}
		v, _ := f.Get(context.Background())
		if v != i+1 {
			t.Errorf("futures[%d] = %v, want %d", i, v, i+1)
		}
	}
}

func TestInvokeAll_ContextCancelsRemaining(t *testing.T) {
	e := newTestExecutor(t, WithPoolSize(1, 1))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	futures, err := e.InvokeAll(ctx,
		func(ctx context.Context) (any, error) { <-ctx.Done(); return nil, ctx.Err() },
		func(ctx context.Context) (any, error) { return "never", nil },
	)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("InvokeAll() error = %v, want DeadlineExceeded", err)
	}
	for i, f := range futures {
		if !f.IsCancelled() {
			t.Errorf("futures[%d].IsCancelled() = false, want true", i)
		}
	}
}
