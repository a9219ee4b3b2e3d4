package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Swind/go-executor/core"
)

// Handler runs a job from its serialized arguments and returns a short
// result text.
type Handler func(ctx context.Context, args []byte) (string, error)

// TypedHandler is a handler whose arguments are decoded by the runner's
// serializer.
type TypedHandler[T any] func(ctx context.Context, args T) (string, error)

var (
	// ErrHandlerNotFound is returned when no handler is registered for a job type.
	ErrHandlerNotFound = errors.New("no handler registered for job type")

	// ErrJobNotActive is returned by Cancel for jobs that are not queued or running.
	ErrJobNotActive = errors.New("job is not active")
)

// Runner submits jobs to an executor and records their progress in a Store:
// PENDING when accepted, RUNNING when a worker picks them up, then
// COMPLETED, FAILED or CANCELED. A job rejected by the executor is recorded
// as CANCELED with the rejection message.
//
// The executor should reject with an error (AbortPolicy); a policy that
// silently drops tasks leaves the dropped jobs PENDING.
type Runner struct {
	executor   *core.ThreadPoolExecutor
	store      Store
	serializer Serializer
	retry      RetryPolicy
	logger     core.Logger

	handlers sync.Map // map[string]Handler
	active   sync.Map // map[string]*activeJob
	wg       sync.WaitGroup
}

type activeJob struct {
	task   core.Runnable
	cancel context.CancelFunc
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

func WithSerializer(s Serializer) RunnerOption   { return func(r *Runner) { r.serializer = s } }
func WithRetryPolicy(p RetryPolicy) RunnerOption { return func(r *Runner) { r.retry = p } }
func WithLogger(l core.Logger) RunnerOption      { return func(r *Runner) { r.logger = l } }

// NewRunner creates a runner that executes jobs on e and records them in store.
func NewRunner(e *core.ThreadPoolExecutor, store Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		executor:   e,
		store:      store,
		serializer: NewJSONSerializer(),
		retry:      DefaultRetryPolicy(),
		logger:     core.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers a raw handler for jobType.
func (r *Runner) Handle(jobType string, h Handler) error {
	if _, loaded := r.handlers.LoadOrStore(jobType, h); loaded {
		return fmt.Errorf("handler for job type %q already registered", jobType)
	}
	return nil
}

// RegisterHandler registers a typed handler for jobType.
func RegisterHandler[T any](r *Runner, jobType string, handler TypedHandler[T]) error {
	return r.Handle(jobType, func(ctx context.Context, data []byte) (string, error) {
		var args T
		if err := r.serializer.Deserialize(data, &args); err != nil {
			return "", fmt.Errorf("decode %s args: %w", jobType, err)
		}
		return handler(ctx, args)
	})
}

func (r *Runner) handler(jobType string) (Handler, error) {
	h, ok := r.handlers.Load(jobType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, jobType)
	}
	return h.(Handler), nil
}

// Submit records a new job and executes it.
func (r *Runner) Submit(ctx context.Context, id, jobType string, args any) error {
	h, err := r.handler(jobType)
	if err != nil {
		return err
	}
	data, err := r.serializer.Serialize(args)
	if err != nil {
		return err
	}

	job := &JobEntity{
		ID:       id,
		Type:     jobType,
		ArgsData: data,
		Status:   JobStatusPending,
		ExitCode: -1,
	}
	if err := r.store.CreateJob(ctx, job); err != nil {
		return err
	}
	return r.schedule(job, h)
}

// Recover re-submits every job the store did not see finish, e.g. after a
// crash, and returns how many were scheduled.
func (r *Runner) Recover(ctx context.Context) (int, error) {
	pending, err := r.store.GetRecoverableJobs(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, job := range pending {
		if _, ok := r.active.Load(job.ID); ok {
			continue
		}
		h, err := r.handler(job.Type)
		if err != nil {
			r.updateStatus(job.ID, JobStatusFailed, err.Error(), -1)
			continue
		}
		r.updateStatus(job.ID, JobStatusPending, "", -1)
		if err := r.schedule(job, h); err != nil {
			return n, err
		}
		n++
	}
	r.logger.Info("recovered jobs", core.F("count", n))
	return n, nil
}

func (r *Runner) schedule(job *JobEntity, h Handler) error {
	jobCtx, cancel := context.WithCancel(context.Background())
	aj := &activeJob{cancel: cancel}
	aj.task = core.RunnableFunc(func(ctx context.Context) {
		r.run(ctx, jobCtx, job, aj, h)
	})

	r.active.Store(job.ID, aj)
	r.wg.Add(1)

	if err := r.executor.Execute(aj.task); err != nil {
		r.finish(job.ID, aj)
		r.updateStatus(job.ID, JobStatusCanceled, err.Error(), -1)
		return fmt.Errorf("submit job %s: %w", job.ID, err)
	}
	return nil
}

// run executes on a worker. taskCtx ends when the executor stops, jobCtx
// when the job is cancelled.
func (r *Runner) run(taskCtx, jobCtx context.Context, job *JobEntity, aj *activeJob, h Handler) {
	defer r.finish(job.ID, aj)

	ctx, cancel := context.WithCancel(jobCtx)
	defer cancel()
	stop := context.AfterFunc(taskCtx, cancel)
	defer stop()

	if ctx.Err() != nil {
		r.updateStatus(job.ID, JobStatusCanceled, "canceled before start", -1)
		return
	}
	r.updateStatus(job.ID, JobStatusRunning, "", -1)

	result, err := r.invoke(ctx, job, h)
	switch {
	case err == nil:
		r.updateStatus(job.ID, JobStatusCompleted, result, 0)
	case ctx.Err() != nil:
		r.updateStatus(job.ID, JobStatusCanceled, resultOr(result, err), exitCodeOf(err))
	default:
		r.logger.Warn("job failed", core.F("job", job.ID), core.F("error", err))
		r.updateStatus(job.ID, JobStatusFailed, resultOr(result, err), exitCodeOf(err))
	}
}

// invoke calls h and turns a panic into a job failure.
func (r *Runner) invoke(ctx context.Context, job *JobEntity, h Handler) (result string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &core.PanicError{Value: p}
		}
	}()
	return h(ctx, job.ArgsData)
}

func (r *Runner) finish(id string, aj *activeJob) {
	if r.active.CompareAndDelete(id, aj) {
		aj.cancel()
		r.wg.Done()
	}
}

// Cancel cancels a queued or running job. A queued job is removed from the
// executor queue; a running job has its context cancelled.
func (r *Runner) Cancel(id string) error {
	v, ok := r.active.Load(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotActive, id)
	}
	aj := v.(*activeJob)

	if r.executor.Remove(aj.task) {
		r.finish(id, aj)
		r.updateStatus(id, JobStatusCanceled, "canceled before start", -1)
		return nil
	}
	aj.cancel()
	return nil
}

// CancelDrained records as CANCELED the jobs whose tasks were handed back
// by ShutdownNow and returns how many it found. Other tasks are ignored.
func (r *Runner) CancelDrained(tasks []core.Runnable) int {
	drained := make(map[core.Runnable]struct{}, len(tasks))
	for _, t := range tasks {
		drained[t] = struct{}{}
	}

	n := 0
	r.active.Range(func(k, v any) bool {
		aj := v.(*activeJob)
		if _, ok := drained[aj.task]; ok {
			id := k.(string)
			r.finish(id, aj)
			r.updateStatus(id, JobStatusCanceled, "executor stopped", -1)
			n++
		}
		return true
	})
	return n
}

// ActiveCount returns the number of jobs queued or running.
func (r *Runner) ActiveCount() int {
	n := 0
	r.active.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Wait blocks until no job is active or ctx ends.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) GetJob(ctx context.Context, id string) (*JobEntity, error) {
	return r.store.GetJob(ctx, id)
}

func (r *Runner) ListJobs(ctx context.Context, filter JobFilter) ([]*JobEntity, error) {
	return r.store.ListJobs(ctx, filter)
}

func (r *Runner) updateStatus(id string, status JobStatus, result string, exitCode int) {
	err := r.retry.do(context.Background(), func(ctx context.Context) error {
		return r.store.UpdateStatus(ctx, id, status, result, exitCode)
	})
	if err != nil {
		r.logger.Error("job status update failed",
			core.F("job", id), core.F("status", status), core.F("error", err))
	}
}

func resultOr(result string, err error) string {
	if result != "" {
		return result
	}
	return err.Error()
}

// exitCodeOf extracts a process exit status; other failures map to 1.
func exitCodeOf(err error) int {
	var ec interface{ ExitCode() int }
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return 1
}
