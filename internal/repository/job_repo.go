package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"project-reaper/internal/database"
	"project-reaper/internal/model"
)

const jobColumns = `id, type, payload, status, attempts, max_attempts, run_at,
	last_error, created_at, updated_at, finished_at`

type JobRepository struct {
	db database.DBTX
}

func NewJobRepository(db database.DBTX) *JobRepository {
	return &JobRepository{db: db}
}

// EnqueueJob inserts a queued job. Zero ID, RunAt and MaxAttempts are filled in.
func (r *JobRepository) EnqueueJob(ctx context.Context, job model.Job) error {
	now := time.Now().UTC()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.RunAt.IsZero() {
		job.RunAt = now
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 1
	}
	if len(job.Payload) == 0 {
		job.Payload = []byte("{}")
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO jobs (id, type, payload, status, attempts, max_attempts, run_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $7)`,
		job.ID, job.Type, []byte(job.Payload), model.JobQueued, job.MaxAttempts, job.RunAt, now)
	if err != nil {
		return fmt.Errorf("enqueue %s job: %w", job.Type, err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id string) (model.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Job{}, model.ErrJobNotFound
	}

	job, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Job{}, model.ErrJobNotFound
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("find job: %w", err)
	}
	return job, nil
}

// ClaimNext locks one runnable job and marks it running. Runnable means queued
// and due, failed with attempts left once retryDelay has passed, or running
// with a heartbeat older than staleAfter. It returns nil when nothing is due.
func (r *JobRepository) ClaimNext(ctx context.Context, now time.Time, retryDelay time.Duration, staleAfter time.Duration) (*model.Job, error) {
	row := r.db.QueryRow(ctx,
		`WITH next AS (
		   SELECT id FROM jobs
		   WHERE (status = 'queued' AND run_at <= $1)
		      OR (status = 'failed' AND attempts < max_attempts AND last_error_at <= $2)
		      OR (status = 'running' AND attempts < max_attempts AND heartbeat_at <= $3)
		   ORDER BY run_at, created_at
		   FOR UPDATE SKIP LOCKED
		   LIMIT 1
		 )
		 UPDATE jobs j
		 SET status = 'running', attempts = j.attempts + 1, heartbeat_at = $1, updated_at = $1
		 FROM next
		 WHERE j.id = next.id
		 RETURNING j.id, j.type, j.payload, j.status, j.attempts, j.max_attempts, j.run_at,
		           j.last_error, j.created_at, j.updated_at, j.finished_at`,
		now, now.Add(-retryDelay), now.Add(-staleAfter))

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &job, nil
}

// Heartbeat records that the worker running id is still alive.
func (r *JobRepository) Heartbeat(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE jobs SET heartbeat_at = $2, updated_at = $2 WHERE id = $1 AND status = 'running'`,
		id, at)
	if err != nil {
		return fmt.Errorf("heartbeat job: %w", err)
	}
	return nil
}

// BuryStale marks running jobs whose worker went silent on their last
// attempt as dead, since they can no longer be claimed.
func (r *JobRepository) BuryStale(ctx context.Context, now time.Time, staleAfter time.Duration) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE jobs SET status = $1, last_error = $2, last_error_at = $3, updated_at = $3, finished_at = $3
		 WHERE status = 'running' AND attempts >= max_attempts AND heartbeat_at <= $4`,
		model.JobDead, "worker stopped responding", now, now.Add(-staleAfter))
	if err != nil {
		return 0, fmt.Errorf("bury stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *JobRepository) MarkCompleted(ctx context.Context, id string) error {
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx,
		`UPDATE jobs SET status = $2, last_error = '', updated_at = $3, finished_at = $3 WHERE id = $1`,
		id, model.JobCompleted, now)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrJobNotFound
	}
	return nil
}

// MarkFailed records a failed attempt. Dead jobs are never claimed again.
func (r *JobRepository) MarkFailed(ctx context.Context, id string, errText string, dead bool) error {
	now := time.Now().UTC()
	status := model.JobFailed
	var finishedAt *time.Time
	if dead {
		status = model.JobDead
		finishedAt = &now
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE jobs SET status = $2, last_error = $3, last_error_at = $4, updated_at = $4, finished_at = $5
		 WHERE id = $1`,
		id, status, errText, now, finishedAt)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrJobNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (model.Job, error) {
	var job model.Job
	var payload []byte
	err := row.Scan(&job.ID, &job.Type, &payload, &job.Status, &job.Attempts, &job.MaxAttempts,
		&job.RunAt, &job.LastError, &job.CreatedAt, &job.UpdatedAt, &job.FinishedAt)
	if err != nil {
		return model.Job{}, err
	}
	job.Payload = payload
	return job, nil
}
