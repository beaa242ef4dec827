// Package syncjobs is the durable job queue for sync runs. Jobs are claimed
// with FOR UPDATE SKIP LOCKED so several workers can share one table.
package syncjobs

import (
	"context"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/models"
)

type Repository interface {
	Create(ctx context.Context, j *models.SyncJob) error
	Get(ctx context.Context, id string) (*models.SyncJob, error)
	Claim(ctx context.Context, now time.Time) (*models.SyncJob, error)
	Complete(ctx context.Context, id string, stats models.SyncStats, at time.Time) error
	Fail(ctx context.Context, id string, stats models.SyncStats, msg string, at time.Time) error
	Retry(ctx context.Context, id string, stats models.SyncStats, msg string, runAfter time.Time) error
	ListByConnection(ctx context.Context, connectionID string, limit int) ([]models.SyncJob, error)
	HasOpen(ctx context.Context, connectionID string) (bool, error)
	RequeueStale(ctx context.Context, startedBefore time.Time) (int64, error)
}
