package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/filingwatch/filingwatch/internal/ingestion"
)

// Compile-time interface assertion.
var _ ingestion.JobStore = (*JobStore)(nil)

const jobColumns = `id, artifact_id, status, attempt_count, max_attempts,
	locked_by, locked_at, idempotency_key, extractor_version, last_error,
	created_at, updated_at`

// JobStore implements ingestion.JobStore with a PostgreSQL backend.
//
// Claim is a single conditional UPDATE guarded on status, so two workers
// racing for the same job resolve inside the database: exactly one sees a row
// updated, the other sees zero and moves on.
type JobStore struct {
	conn *Connection
}

// NewJobStore creates a PostgreSQL-backed parse-job store.
func NewJobStore(conn *Connection) (*JobStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &JobStore{conn: conn}, nil
}

// CreateIfAbsent inserts a QUEUED job unless one already exists for the job's
// idempotency key.
func (s *JobStore) CreateIfAbsent(ctx context.Context, job *ingestion.ParseJob) (*ingestion.ParseJob, bool, error) {
	insert := `
		INSERT INTO parse_jobs (id, artifact_id, status, attempt_count, max_attempts,
			idempotency_key, extractor_version, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING ` + jobColumns

	row := s.conn.QueryRowContext(ctx, insert,
		job.ID, job.ArtifactID, ingestion.JobQueued, job.MaxAttempts,
		job.IdempotencyKey, job.ExtractorVersion,
	)

	stored, err := scanJob(row)
	if err == nil {
		return stored, true, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert parse job: %w", err)
	}

	existing, err := s.findByIdempotencyKey(ctx, job.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}

	return existing, false, nil
}

// Get returns a job by id, or ingestion.ErrJobNotFound.
func (s *JobStore) Get(ctx context.Context, id string) (*ingestion.ParseJob, error) {
	query := `SELECT ` + jobColumns + ` FROM parse_jobs WHERE id = $1`

	job, err := scanJob(s.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ingestion.ErrJobNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get parse job %s: %w", id, err)
	}

	return job, nil
}

// Claim atomically moves a QUEUED job to RUNNING on behalf of workerID.
// Returns claimed=false without error when the job is not claimable, which
// includes losing the race to another worker.
func (s *JobStore) Claim(ctx context.Context, id, workerID string) (*ingestion.ParseJob, bool, error) {
	update := `
		UPDATE parse_jobs
		SET status = $1, locked_by = $2, locked_at = NOW(),
			attempt_count = attempt_count + 1, updated_at = NOW()
		WHERE id = $3 AND status = $4
		RETURNING ` + jobColumns

	row := s.conn.QueryRowContext(ctx, update, ingestion.JobRunning, workerID, id, ingestion.JobQueued)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to claim parse job %s: %w", id, err)
	}

	return job, true, nil
}

// MarkDone moves a RUNNING job to DONE and clears the lock.
func (s *JobStore) MarkDone(ctx context.Context, id string) error {
	update := `
		UPDATE parse_jobs
		SET status = $1, locked_by = '', locked_at = NULL, last_error = '', updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := s.conn.ExecContext(ctx, update, ingestion.JobDone, id, ingestion.JobRunning)
	if err != nil {
		return fmt.Errorf("failed to mark parse job %s done: %w", id, err)
	}

	return requireRowAffected(result, id)
}

// MarkFailed records the attempt error and moves a RUNNING job to status,
// clearing the lock. status must be FAILED or DEADLETTER.
func (s *JobStore) MarkFailed(ctx context.Context, id string, status ingestion.JobStatus, lastError string) error {
	if err := ingestion.ValidateJobTransition(ingestion.JobRunning, status); err != nil {
		return err
	}

	update := `
		UPDATE parse_jobs
		SET status = $1, locked_by = '', locked_at = NULL, last_error = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	result, err := s.conn.ExecContext(ctx, update, status, lastError, id, ingestion.JobRunning)
	if err != nil {
		return fmt.Errorf("failed to mark parse job %s failed: %w", id, err)
	}

	return requireRowAffected(result, id)
}

// RequeueFailed moves every FAILED job back to QUEUED with its lock and last
// error cleared. Returns the number of jobs requeued.
func (s *JobStore) RequeueFailed(ctx context.Context) (int64, error) {
	update := `
		UPDATE parse_jobs
		SET status = $1, locked_by = '', locked_at = NULL, last_error = '', updated_at = NOW()
		WHERE status = $2
	`

	result, err := s.conn.ExecContext(ctx, update, ingestion.JobQueued, ingestion.JobFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue failed jobs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count requeued jobs: %w", err)
	}

	return count, nil
}

// ListByStatus returns jobs in a given status, oldest first, for operator
// inspection of the queue and deadletter backlog.
func (s *JobStore) ListByStatus(ctx context.Context, status ingestion.JobStatus, limit int) ([]*ingestion.ParseJob, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT ` + jobColumns + `
		FROM parse_jobs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := s.conn.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list parse jobs: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var jobs []*ingestion.ParseJob

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan parse job row: %w", err)
		}

		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parse job rows: %w", err)
	}

	return jobs, nil
}

func (s *JobStore) findByIdempotencyKey(ctx context.Context, key string) (*ingestion.ParseJob, error) {
	query := `SELECT ` + jobColumns + ` FROM parse_jobs WHERE idempotency_key = $1`

	job, err := scanJob(s.conn.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: key %s", ingestion.ErrJobNotFound, key)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find parse job by key: %w", err)
	}

	return job, nil
}

func scanJob(row rowScanner) (*ingestion.ParseJob, error) {
	var (
		job      ingestion.ParseJob
		lockedAt sql.NullTime
	)

	err := row.Scan(
		&job.ID, &job.ArtifactID, &job.Status, &job.AttemptCount, &job.MaxAttempts,
		&job.LockedBy, &lockedAt, &job.IdempotencyKey, &job.ExtractorVersion,
		&job.LastError, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lockedAt.Valid {
		job.LockedAt = &lockedAt.Time
	}

	return &job, nil
}

func requireRowAffected(result sql.Result, jobID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s is not RUNNING", ingestion.ErrJobNotFound, jobID)
	}

	return nil
}
