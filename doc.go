// Package executor provides a bounded worker-pool executor for Go.
//
// A ThreadPoolExecutor runs submitted tasks on a pool of worker goroutines
// sized between a core and a maximum size. Tasks that find every core
// worker busy wait in a queue; when the queue is full the pool grows up to
// its maximum, and beyond that tasks are handed to a rejection policy.
//
// # Quick Start
//
// Initialize the global executor at application startup:
//
//	executor.InitGlobalExecutor(4) // 4 workers
//	defer executor.ShutdownGlobalExecutor()
//
//	executor.Execute(func(ctx context.Context) {
//		// Your code here
//	})
//
// # Key Concepts
//
// Core and maximum size: the pool prefers starting a new worker up to the
// core size, then queueing, then growing up to the maximum size. Workers
// above the core size exit after KeepAlive of idleness.
//
// Queue: FIFOQueue (bounded or unbounded), PriorityQueue or
// SynchronousQueue, which hands every task directly to an idle worker.
//
// Rejection policies: AbortPolicy (the default) returns a *RejectedError,
// CallerRunsPolicy runs the task on the submitting goroutine, DiscardPolicy
// drops it and DiscardOldestPolicy drops the oldest queued task instead.
//
// Lifecycle: RUNNING, SHUTDOWN (queued tasks still run), STOP (queued tasks
// are returned and running ones have their context cancelled), TIDYING and
// TERMINATED. Phases only move forward.
//
// # Example
//
//	import (
//		"context"
//		executor "github.com/Swind/go-executor"
//		"github.com/Swind/go-executor/core"
//	)
//
//	func main() {
//		pool, _ := core.NewThreadPoolExecutor(
//			core.WithPoolSize(2, 8),
//			core.WithQueue(core.NewFIFOQueue(100)),
//			core.WithRejectedTaskHandler(&core.CallerRunsPolicy{}),
//		)
//		defer pool.Close()
//
//		future, _ := pool.Submit(func(ctx context.Context) (any, error) {
//			return 42, nil
//		})
//		v, _ := future.Get(context.Background())
//		println(v.(int))
//	}
//
// Persistent jobs backed by SQLite live in the jobs package, file
// configuration in config and Prometheus exporters in
// observability/prometheus.
package executor
