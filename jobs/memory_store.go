package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store.
// It uses sync.Map for concurrent-safe storage.
type MemoryStore struct {
	data sync.Map // map[string]*JobEntity

	// mu serialises read-modify-write updates of a single entry.
	mu sync.Mutex
}

// NewMemoryStore creates a new in-memory job store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) CreateJob(ctx context.Context, job *JobEntity) error {
	if job.ID == "" {
		return errEmptyID
	}
	stampCreate(job)

	if _, loaded := s.data.LoadOrStore(job.ID, job.clone()); loaded {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, job.ID)
	}
	return nil
}

func (s *MemoryStore) SaveJob(ctx context.Context, job *JobEntity) error {
	if job.ID == "" {
		return errEmptyID
	}
	stampCreate(job)

	// Store a copy to avoid external modifications
	s.data.Store(job.ID, job.clone())
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status JobStatus, result string, exitCode int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.data.Load(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	updated := raw.(*JobEntity).clone()
	applyStatus(updated, status, result, exitCode, time.Now())
	s.data.Store(id, updated)
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*JobEntity, error) {
	raw, ok := s.data.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	// Return a copy to prevent external modifications
	return raw.(*JobEntity).clone(), nil
}

func (s *MemoryStore) ListJobs(ctx context.Context, filter JobFilter) ([]*JobEntity, error) {
	var jobs []*JobEntity
	s.data.Range(func(key, value any) bool {
		if job := value.(*JobEntity); filter.matches(job) {
			jobs = append(jobs, job.clone())
		}
		return true
	})

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})

	if filter.Offset >= len(jobs) {
		return nil, nil
	}
	jobs = jobs[filter.Offset:]
	if filter.Limit > 0 && len(jobs) > filter.Limit {
		jobs = jobs[:filter.Limit]
	}
	return jobs, nil
}

func (s *MemoryStore) GetRecoverableJobs(ctx context.Context) ([]*JobEntity, error) {
	all, err := s.ListJobs(ctx, JobFilter{})
	if err != nil {
		return nil, err
	}
	var out []*JobEntity
	for _, j := range all {
		if !j.Status.Terminal() {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteJob(ctx context.Context, id string) error {
	s.data.Delete(id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Count returns the total number of jobs in the store
func (s *MemoryStore) Count() int {
	count := 0
	s.data.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

func stampCreate(job *JobEntity) {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.Status == "" {
		job.Status = JobStatusPending
	}
	job.UpdatedAt = now
}

func applyStatus(job *JobEntity, status JobStatus, result string, exitCode int, now time.Time) {
	if status == JobStatusRunning {
		job.StartedAt = now
		job.Attempts++
	}
	job.Status = status
	job.Result = result
	job.ExitCode = exitCode
	job.UpdatedAt = now
}
