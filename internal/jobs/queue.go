// Package jobs is the durable work queue of the sync engine: enqueueing
// sync jobs, a pool of workers draining them and the scheduler that
// enqueues periodic syncs.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/dmitrijs2005/kinsync/internal/repositories/connections"
	"github.com/dmitrijs2005/kinsync/internal/repositories/syncjobs"
)

const DefaultMaxAttempts = 3

type EnqueueRequest struct {
	ConnectionID string
	UserID       string
	Direction    models.Direction
}

type Queue struct {
	connections connections.Repository
	jobs        syncjobs.Repository
	maxAttempts int
	now         func() time.Time
}

func NewQueue(conns connections.Repository, jobs syncjobs.Repository, maxAttempts int) *Queue {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Queue{connections: conns, jobs: jobs, maxAttempts: maxAttempts, now: time.Now}
}

// Enqueue records a pending job for the connection. The connection must
// belong to the user and be active. The insert wakes listening workers.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (*models.SyncJob, error) {
	if strings.TrimSpace(req.ConnectionID) == "" || strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: connection and user are required", common.ErrInvalidRecord)
	}
	if req.Direction == "" {
		req.Direction = models.DirectionBoth
	}
	if !req.Direction.Valid() {
		return nil, fmt.Errorf("%w: unknown direction %q", common.ErrInvalidRecord, req.Direction)
	}

	conn, err := q.connections.Get(ctx, req.ConnectionID)
	if err != nil {
		return nil, err
	}
	if conn.UserID != req.UserID {
		return nil, common.ErrorNotFound
	}
	if !conn.Active {
		return nil, common.ErrConnectionInactive
	}

	now := q.now().UTC()
	job := &models.SyncJob{
		ConnectionID: conn.ID,
		UserID:       conn.UserID,
		Provider:     conn.Provider,
		Direction:    req.Direction,
		Status:       models.JobPending,
		MaxAttempts:  q.maxAttempts,
		RunAfter:     now,
		CreatedAt:    now,
	}
	if err := q.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}
