package executor

import (
	"sync"
	"time"

	"github.com/Swind/go-executor/core"
)

// =============================================================================
// Global Executor Helper (Singleton)
// =============================================================================

var (
	globalExecutor *core.ThreadPoolExecutor
	globalMu       sync.Mutex
)

// globalShutdownTimeout bounds how long ShutdownGlobalExecutor waits for
// queued tasks before cancelling them.
const globalShutdownTimeout = 30 * time.Second

// InitGlobalExecutor initializes the global executor as a fixed pool of
// the given number of workers. Later calls are no-ops until
// ShutdownGlobalExecutor.
func InitGlobalExecutor(workers int, opts ...Option) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalExecutor != nil {
		return nil // Already initialized
	}

	e, err := core.NewFixedThreadPool(workers, append([]Option{core.WithName("global-executor")}, opts...)...)
	if err != nil {
		return err
	}
	globalExecutor = e
	return nil
}

// GetGlobalExecutor returns the global executor instance.
// It panics if InitGlobalExecutor has not been called.
func GetGlobalExecutor() *core.ThreadPoolExecutor {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalExecutor == nil {
		panic("global executor not initialized. Call InitGlobalExecutor() first.")
	}
	return globalExecutor
}

// ShutdownGlobalExecutor shuts the global executor down, lets queued tasks
// finish for up to 30 seconds, then stops whatever is left.
func ShutdownGlobalExecutor() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalExecutor == nil {
		return
	}
	globalExecutor.Shutdown()
	if !globalExecutor.AwaitTermination(globalShutdownTimeout) {
		globalExecutor.ShutdownNow()
		globalExecutor.AwaitTermination(time.Second)
	}
	globalExecutor = nil
}

// Execute runs task on the global executor.
func Execute(task Task) error {
	return GetGlobalExecutor().ExecuteFunc(task)
}

// Submit runs fn on the global executor and returns its future.
func Submit(fn Callable) (*FutureTask, error) {
	return GetGlobalExecutor().Submit(fn)
}
