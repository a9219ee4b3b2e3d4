// Package jobs records the lifecycle of named jobs that run on a
// core.ThreadPoolExecutor, in memory or in SQLite.
package jobs

import (
	"context"
	"errors"
	"time"
)

// =============================================================================
// Job Data Models
// =============================================================================

type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCanceled  JobStatus = "CANCELED"
)

// Terminal reports whether no further transition is expected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCanceled
}

type JobEntity struct {
	ID       string
	Type     string
	ArgsData []byte
	Status   JobStatus
	Result   string
	// ExitCode is 0 on success, the process exit status for command jobs
	// and -1 when unknown.
	ExitCode  int
	Attempts  int
	CreatedAt time.Time
	StartedAt time.Time
	UpdatedAt time.Time
}

func (j *JobEntity) clone() *JobEntity {
	c := *j
	c.ArgsData = append([]byte(nil), j.ArgsData...)
	return &c
}

type JobFilter struct {
	Status JobStatus // Empty means all
	Type   string    // Empty means all
	Limit  int       // 0 means no limit
	Offset int       // Default 0
}

func (f JobFilter) matches(j *JobEntity) bool {
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if f.Type != "" && j.Type != f.Type {
		return false
	}
	return true
}

// =============================================================================
// Store Interface
// =============================================================================

// Store persists job state. Implementations must be safe for concurrent use.
type Store interface {
	// CreateJob inserts a new job and fails with ErrJobAlreadyExists if the
	// ID is taken.
	CreateJob(ctx context.Context, job *JobEntity) error

	// SaveJob inserts or replaces a job.
	SaveJob(ctx context.Context, job *JobEntity) error

	// UpdateStatus records a status transition. Moving to RUNNING stamps
	// StartedAt and increments Attempts.
	UpdateStatus(ctx context.Context, id string, status JobStatus, result string, exitCode int) error

	GetJob(ctx context.Context, id string) (*JobEntity, error)

	// ListJobs returns matching jobs ordered by creation time, then ID.
	ListJobs(ctx context.Context, filter JobFilter) ([]*JobEntity, error)

	// GetRecoverableJobs returns jobs that did not reach a terminal status,
	// e.g. because the process died while they were queued or running.
	GetRecoverableJobs(ctx context.Context) ([]*JobEntity, error)

	DeleteJob(ctx context.Context, id string) error

	Close() error
}

var (
	// ErrJobAlreadyExists indicates the job ID already exists in the store.
	ErrJobAlreadyExists = errors.New("job already exists")

	// ErrJobNotFound indicates no job has the requested ID.
	ErrJobNotFound = errors.New("job not found")

	errEmptyID = errors.New("job ID cannot be empty")
)
