package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestGlobalExecutor_Lifecycle(t *testing.T) {
	if err := InitGlobalExecutor(2); err != nil {
		t.Fatalf("InitGlobalExecutor() error = %v", err)
	}
	e := GetGlobalExecutor()

	if err := InitGlobalExecutor(8); err != nil {
		t.Fatalf("second InitGlobalExecutor() error = %v", err)
	}
	if GetGlobalExecutor() != e {
		t.Error("second InitGlobalExecutor replaced the executor")
	}
	if e.MaximumPoolSize() != 2 {
		t.Errorf("MaximumPoolSize() = %d, want 2", e.MaximumPoolSize())
	}

	ShutdownGlobalExecutor()

	if !e.IsTerminated() {
		t.Error("executor should be terminated after ShutdownGlobalExecutor()")
	}
	ShutdownGlobalExecutor()
}

func TestGlobalExecutor_TaskExecution(t *testing.T) {
	InitGlobalExecutor(4)
	defer ShutdownGlobalExecutor()

	var counter int32
	var wg sync.WaitGroup
	taskCount := 10
	wg.Add(taskCount)

	for i := 0; i < taskCount; i++ {
		err := Execute(func(ctx context.Context) {
			defer wg.Done()
			atomic.AddInt32(&counter, 1)
		})
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}
	wg.Wait()

	if got := atomic.LoadInt32(&counter); got != int32(taskCount) {
		t.Errorf("counter = %d, want %d", got, taskCount)
	}
}

func TestGlobalExecutor_Submit(t *testing.T) {
	InitGlobalExecutor(1)
	defer ShutdownGlobalExecutor()

	f, err := Submit(func(ctx context.Context) (any, error) {
		if FromContext(ctx) != GetGlobalExecutor() {
			return nil, errors.New("task not running on the global executor")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	v, err := f.Get(context.Background())
	if err != nil || v != "ok" {
		t.Errorf("Get() = %v, %v; want ok, nil", v, err)
	}
}

func TestGlobalExecutor_InvalidSize(t *testing.T) {
	if err := InitGlobalExecutor(0); err == nil {
		ShutdownGlobalExecutor()
		t.Fatal("InitGlobalExecutor(0) error = nil, want error")
	}
}

func TestGetGlobalExecutor_PanicsWhenUninitialized(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("GetGlobalExecutor() did not panic")
		}
	}()
	GetGlobalExecutor()
}
