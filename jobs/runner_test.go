package jobs_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Swind/go-executor/core"
	"github.com/Swind/go-executor/jobs"
)

type emailArgs struct {
	To string `json:"to"`
}

func setupRunner(t *testing.T, store jobs.Store, opts ...core.Option) (*jobs.Runner, *core.ThreadPoolExecutor) {
	t.Helper()
	e, err := core.NewThreadPoolExecutor(append([]core.Option{core.WithPoolSize(2, 2)}, opts...)...)
	if err != nil {
		t.Fatalf("NewThreadPoolExecutor() error = %v", err)
	}
	t.Cleanup(func() {
		e.ShutdownNow()
		e.AwaitTermination(2 * time.Second)
	})
	return jobs.NewRunner(e, store, jobs.WithRetryPolicy(jobs.NoRetry())), e
}

func waitJobs(t *testing.T, r *jobs.Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

// TestRunner_SubmitAndComplete verifies the PENDING → RUNNING → COMPLETED path
// Given: a runner with a typed email handler
// When: a job is submitted
// Then: the handler receives the decoded args and the job ends COMPLETED
func TestRunner_SubmitAndComplete(t *testing.T) {
	// Arrange
	store := jobs.NewMemoryStore()
	r, _ := setupRunner(t, store)
	var gotTo atomic.Value
	err := jobs.RegisterHandler(r, "email", func(ctx context.Context, args emailArgs) (string, error) {
		gotTo.Store(args.To)
		return "sent", nil
	})
	if err != nil {
		t.Fatalf("RegisterHandler() error = %v", err)
	}

	// Act
	if err := r.Submit(context.Background(), "job1", "email", emailArgs{To: "user@example.com"}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitJobs(t, r)

	// Assert
	if got := gotTo.Load(); got != "user@example.com" {
		t.Errorf("handler args.To = %v, want user@example.com", got)
	}
	job, err := r.GetJob(context.Background(), "job1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.Status != jobs.JobStatusCompleted || job.Result != "sent" || job.ExitCode != 0 || job.Attempts != 1 {
		t.Errorf("job = %+v, want COMPLETED/sent/0/1 attempt", job)
	}
}

func TestRunner_HandlerFailure(t *testing.T) {
	r, _ := setupRunner(t, jobs.NewMemoryStore())
	r.Handle("broken", func(ctx context.Context, args []byte) (string, error) {
		return "", errors.New("smtp down")
	})
	r.Handle("panics", func(ctx context.Context, args []byte) (string, error) {
		panic("bad handler")
	})

	r.Submit(context.Background(), "f1", "broken", nil)
	r.Submit(context.Background(), "f2", "panics", nil)
	waitJobs(t, r)

	failed, _ := r.ListJobs(context.Background(), jobs.JobFilter{Status: jobs.JobStatusFailed})
	if len(failed) != 2 {
		t.Fatalf("failed jobs = %d, want 2", len(failed))
	}
	for _, j := range failed {
		if j.ExitCode != 1 || j.Result == "" {
			t.Errorf("job %s = %+v, want exit code 1 and an error result", j.ID, j)
		}
	}
}

func TestRunner_SubmitErrors(t *testing.T) {
	r, _ := setupRunner(t, jobs.NewMemoryStore())
	r.Handle("x", func(ctx context.Context, args []byte) (string, error) { return "", nil })

	if err := r.Submit(context.Background(), "a", "unknown", nil); !errors.Is(err, jobs.ErrHandlerNotFound) {
		t.Errorf("Submit(unknown type) error = %v, want ErrHandlerNotFound", err)
	}
	if err := r.Handle("x", func(ctx context.Context, args []byte) (string, error) { return "", nil }); err == nil {
		t.Error("Handle(duplicate) error = nil, want error")
	}

	r.Submit(context.Background(), "dup", "x", nil)
	if err := r.Submit(context.Background(), "dup", "x", nil); !errors.Is(err, jobs.ErrJobAlreadyExists) {
		t.Errorf("Submit(duplicate id) error = %v, want ErrJobAlreadyExists", err)
	}
}

// TestRunner_RejectedJobIsCanceled verifies executor rejection is recorded
func TestRunner_RejectedJobIsCanceled(t *testing.T) {
	store := jobs.NewMemoryStore()
	r, e := setupRunner(t, store)
	r.Handle("x", func(ctx context.Context, args []byte) (string, error) { return "", nil })
	e.Shutdown()

	err := r.Submit(context.Background(), "late", "x", nil)

	if !errors.Is(err, core.ErrRejected) {
		t.Fatalf("Submit() error = %v, want ErrRejected", err)
	}
	job, _ := store.GetJob(context.Background(), "late")
	if job.Status != jobs.JobStatusCanceled {
		t.Errorf("Status = %s, want CANCELED", job.Status)
	}
	if r.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", r.ActiveCount())
	}
}

// TestRunner_Cancel verifies queued and running jobs can be cancelled
// Given: a one-worker executor running a blocking job with another queued
// When: both are cancelled
// Then: the queued one never runs and both end CANCELED
func TestRunner_Cancel(t *testing.T) {
	// Arrange
	store := jobs.NewMemoryStore()
	r, _ := setupRunner(t, store, core.WithPoolSize(1, 1))
	started := make(chan struct{}, 1)
	var queuedRan atomic.Bool
	r.Handle("block", func(ctx context.Context, args []byte) (string, error) {
		started <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	})
	r.Handle("mark", func(ctx context.Context, args []byte) (string, error) {
		queuedRan.Store(true)
		return "", nil
	})
	r.Submit(context.Background(), "running", "block", nil)
	<-started
	r.Submit(context.Background(), "queued", "mark", nil)

	// Act
	if err := r.Cancel("queued"); err != nil {
		t.Fatalf("Cancel(queued) error = %v", err)
	}
	if err := r.Cancel("running"); err != nil {
		t.Fatalf("Cancel(running) error = %v", err)
	}
	waitJobs(t, r)

	// Assert
	for _, id := range []string{"queued", "running"} {
		job, _ := store.GetJob(context.Background(), id)
		if job.Status != jobs.JobStatusCanceled {
			t.Errorf("%s: Status = %s, want CANCELED", id, job.Status)
		}
	}
	if queuedRan.Load() {
		t.Error("cancelled queued job ran")
	}
	if err := r.Cancel("running"); !errors.Is(err, jobs.ErrJobNotActive) {
		t.Errorf("Cancel(finished) error = %v, want ErrJobNotActive", err)
	}
}

// TestRunner_RecoverFromSQLite verifies unfinished jobs are re-run after a restart
// Given: a SQLite store holding a PENDING and a RUNNING job from a previous run
// When: a new runner recovers
// Then: both jobs run to completion
func TestRunner_RecoverFromSQLite(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store, err := jobs.OpenSQLiteStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	defer store.Close()
	store.CreateJob(ctx, &jobs.JobEntity{ID: "p", Type: "echo", ArgsData: []byte("null")})
	store.CreateJob(ctx, &jobs.JobEntity{ID: "r", Type: "echo", ArgsData: []byte("null")})
	store.CreateJob(ctx, &jobs.JobEntity{ID: "orphan", Type: "gone", ArgsData: []byte("null")})
	store.UpdateStatus(ctx, "r", jobs.JobStatusRunning, "", -1)

	r, _ := setupRunner(t, store)
	r.Handle("echo", func(ctx context.Context, args []byte) (string, error) { return "ok", nil })

	// Act
	n, err := r.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	waitJobs(t, r)

	// Assert
	if n != 2 {
		t.Errorf("Recover() = %d, want 2", n)
	}
	for _, id := range []string{"p", "r"} {
		job, _ := store.GetJob(ctx, id)
		if job.Status != jobs.JobStatusCompleted {
			t.Errorf("%s: Status = %s, want COMPLETED", id, job.Status)
		}
	}
	orphan, _ := store.GetJob(ctx, "orphan")
	if orphan.Status != jobs.JobStatusFailed {
		t.Errorf("orphan Status = %s, want FAILED", orphan.Status)
	}
}

// TestRunner_StopCancelsRunningJobs verifies ShutdownNow reaches job contexts
func TestRunner_StopCancelsRunningJobs(t *testing.T) {
	store := jobs.NewMemoryStore()
	r, e := setupRunner(t, store)
	started := make(chan struct{})
	r.Handle("block", func(ctx context.Context, args []byte) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	r.Submit(context.Background(), "j", "block", nil)
	<-started

	e.ShutdownNow()
	waitJobs(t, r)

	job, _ := store.GetJob(context.Background(), "j")
	if job.Status != jobs.JobStatusCanceled {
		t.Errorf("Status = %s, want CANCELED", job.Status)
	}
}

// TestRunner_CancelDrained verifies jobs handed back by ShutdownNow are closed out
// Given: a one-worker executor with a running job and two queued behind it
// When: ShutdownNow drains the queue and the drained tasks are passed to CancelDrained
// Then: Wait returns and all three jobs end CANCELED
func TestRunner_CancelDrained(t *testing.T) {
	// Arrange
	store := jobs.NewMemoryStore()
	r, e := setupRunner(t, store, core.WithPoolSize(1, 1))
	started := make(chan struct{}, 1)
	r.Handle("block", func(ctx context.Context, args []byte) (string, error) {
		started <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	})
	r.Submit(context.Background(), "a", "block", nil)
	<-started
	r.Submit(context.Background(), "b", "block", nil)
	r.Submit(context.Background(), "c", "block", nil)

	// Act
	n := r.CancelDrained(e.ShutdownNow())
	waitJobs(t, r)

	// Assert
	if n != 2 {
		t.Errorf("CancelDrained() = %d, want 2", n)
	}
	for _, id := range []string{"a", "b", "c"} {
		job, _ := store.GetJob(context.Background(), id)
		if job.Status != jobs.JobStatusCanceled {
			t.Errorf("%s: Status = %s, want CANCELED", id, job.Status)
		}
	}
}
