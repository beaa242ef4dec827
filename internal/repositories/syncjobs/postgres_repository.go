package syncjobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/dbx"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/google/uuid"
)

const jobColumns = `id, connection_id, user_id, provider, direction, status, attempts, max_attempts, run_after,
	created, merged, skipped, exported, failed, errors, last_error, created_at, started_at, finished_at`

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create enqueues a job. Zero CreatedAt and RunAfter mean now; the insert
// trigger wakes listening workers.
func (r *PostgresRepository) Create(ctx context.Context, j *models.SyncJob) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = models.JobPending
	}
	if j.Direction == "" {
		j.Direction = models.DirectionBoth
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	if j.RunAfter.IsZero() {
		j.RunAfter = j.CreatedAt
	}
	query := `INSERT INTO sync_jobs (id, connection_id, user_id, provider, direction, status, max_attempts, run_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		j.ID, j.ConnectionID, j.UserID, string(j.Provider), string(j.Direction), string(j.Status),
		j.MaxAttempts, j.RunAfter, j.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.MapError(err))
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.SyncJob, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE id = $1`, id))
	if err != nil {
		return nil, dbx.MapError(err)
	}
	return j, nil
}

// Claim moves the oldest due pending job to processing and returns it.
// It returns common.ErrNothingClaimed when no job is due.
func (r *PostgresRepository) Claim(ctx context.Context, now time.Time) (*models.SyncJob, error) {
	query := `UPDATE sync_jobs SET status = 'processing', attempts = attempts + 1, started_at = $1, finished_at = NULL
		WHERE id = (
			SELECT id FROM sync_jobs
			WHERE status = 'pending' AND run_after <= $1
			ORDER BY run_after, created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns
	j, err := scanJob(r.db.QueryRowContext(ctx, query, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNothingClaimed
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return j, nil
}

// Complete finalizes a job with its counters.
func (r *PostgresRepository) Complete(ctx context.Context, id string, stats models.SyncStats, at time.Time) error {
	query := `UPDATE sync_jobs SET status = 'completed', created = $2, merged = $3, skipped = $4, exported = $5,
		failed = $6, errors = $7, last_error = '', finished_at = $8 WHERE id = $1`
	return r.exec(ctx, query, id, stats.Created, stats.Merged, stats.Skipped, stats.Exported, stats.Failed, stats.Errors, at)
}

// Fail finalizes a job that will not be retried.
func (r *PostgresRepository) Fail(ctx context.Context, id string, stats models.SyncStats, msg string, at time.Time) error {
	query := `UPDATE sync_jobs SET status = 'failed', created = $2, merged = $3, skipped = $4, exported = $5,
		failed = $6, errors = $7, last_error = $8, finished_at = $9 WHERE id = $1`
	return r.exec(ctx, query, id, stats.Created, stats.Merged, stats.Skipped, stats.Exported, stats.Failed, stats.Errors, msg, at)
}

// Retry returns a job to pending with a later run_after.
func (r *PostgresRepository) Retry(ctx context.Context, id string, stats models.SyncStats, msg string, runAfter time.Time) error {
	query := `UPDATE sync_jobs SET status = 'pending', created = $2, merged = $3, skipped = $4, exported = $5,
		failed = $6, errors = $7, last_error = $8, run_after = $9 WHERE id = $1`
	return r.exec(ctx, query, id, stats.Created, stats.Merged, stats.Skipped, stats.Exported, stats.Failed, stats.Errors, msg, runAfter)
}

// ListByConnection returns the newest jobs of a connection.
func (r *PostgresRepository) ListByConnection(ctx context.Context, connectionID string, limit int) ([]models.SyncJob, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE connection_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, connectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.SyncJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// HasOpen reports whether the connection has a pending or processing job.
func (r *PostgresRepository) HasOpen(ctx context.Context, connectionID string) (bool, error) {
	var ok bool
	query := `SELECT EXISTS (SELECT 1 FROM sync_jobs WHERE connection_id = $1 AND status IN ('pending', 'processing'))`
	if err := r.db.QueryRowContext(ctx, query, connectionID).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

// RequeueStale returns jobs stuck in processing since before startedBefore
// to pending, so work held by a crashed worker is picked up again.
func (r *PostgresRepository) RequeueStale(ctx context.Context, startedBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_jobs SET status = 'pending', run_after = now() WHERE status = 'processing' AND started_at < $1`,
		startedBefore)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*models.SyncJob, error) {
	var (
		j                     models.SyncJob
		provider, dir, status string
		startedAt, finishedAt sql.NullTime
	)
	err := s.Scan(&j.ID, &j.ConnectionID, &j.UserID, &provider, &dir, &status, &j.Attempts, &j.MaxAttempts, &j.RunAfter,
		&j.Stats.Created, &j.Stats.Merged, &j.Stats.Skipped, &j.Stats.Exported, &j.Stats.Failed, &j.Stats.Errors,
		&j.LastError, &j.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	j.Provider = models.Provider(provider)
	j.Direction = models.Direction(dir)
	j.Status = models.JobStatus(status)
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		j.FinishedAt = &finishedAt.Time
	}
	return &j, nil
}
