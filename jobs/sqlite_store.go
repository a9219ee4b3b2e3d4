package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS job(
	id        TEXT NOT NULL PRIMARY KEY,
	type      TEXT NOT NULL,
	args      BLOB,
	status    TEXT NOT NULL,
	result    TEXT NOT NULL DEFAULT '',
	exitCode  INTEGER NOT NULL DEFAULT -1,
	attempts  INTEGER NOT NULL DEFAULT 0,
	createdAt INTEGER NOT NULL,
	startedAt INTEGER NOT NULL DEFAULT 0,
	updatedAt INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS job_status ON job(status);
`

const jobColumns = "id, type, args, status, result, exitCode, attempts, createdAt, startedAt, updatedAt"

// SQLiteStore is a Store backed by a SQLite database file, so job state
// survives restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at path and
// ensures the job table exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	// between workers updating jobs concurrently.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create job table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *JobEntity) error {
	if job.ID == "" {
		return errEmptyID
	}
	stampCreate(job)

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO job("+jobColumns+") VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		jobArgs(job)...)
	if isConstraintError(err) {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, job.ID)
	}
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveJob(ctx context.Context, job *JobEntity) error {
	if job.ID == "" {
		return errEmptyID
	}
	stampCreate(job)

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO job("+jobColumns+") VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		jobArgs(job)...)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status JobStatus, result string, exitCode int) error {
	now := time.Now().UnixNano()

	var (
		res sql.Result
		err error
	)
	if status == JobStatusRunning {
		res, err = s.db.ExecContext(ctx,
			"UPDATE job SET status=?, result=?, exitCode=?, startedAt=?, attempts=attempts+1, updatedAt=? WHERE id=?",
			string(status), result, exitCode, now, now, id)
	} else {
		res, err = s.db.ExecContext(ctx,
			"UPDATE job SET status=?, result=?, exitCode=?, updatedAt=? WHERE id=?",
			string(status), result, exitCode, now, id)
	}
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*JobEntity, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM job WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]*JobEntity, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}

	q := "SELECT " + jobColumns + " FROM job"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY createdAt, id"
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		q += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	return s.query(ctx, q, args...)
}

func (s *SQLiteStore) GetRecoverableJobs(ctx context.Context) ([]*JobEntity, error) {
	return s.query(ctx,
		"SELECT "+jobColumns+" FROM job WHERE status IN (?, ?) ORDER BY createdAt, id",
		string(JobStatusPending), string(JobStatusRunning))
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM job WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]*JobEntity, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*JobEntity
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*JobEntity, error) {
	var (
		job                             JobEntity
		status                          string
		createdAt, startedAt, updatedAt int64
	)
	err := r.Scan(&job.ID, &job.Type, &job.ArgsData, &status, &job.Result,
		&job.ExitCode, &job.Attempts, &createdAt, &startedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	job.Status = JobStatus(status)
	job.CreatedAt = fromUnixNano(createdAt)
	job.StartedAt = fromUnixNano(startedAt)
	job.UpdatedAt = fromUnixNano(updatedAt)
	return &job, nil
}

func jobArgs(job *JobEntity) []any {
	return []any{
		job.ID, job.Type, job.ArgsData, string(job.Status), job.Result,
		job.ExitCode, job.Attempts,
		toUnixNano(job.CreatedAt), toUnixNano(job.StartedAt), toUnixNano(job.UpdatedAt),
	}
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func isConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}
