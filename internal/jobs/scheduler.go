package jobs

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/kinsync/internal/logging"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/dmitrijs2005/kinsync/internal/repositories/connections"
	"github.com/dmitrijs2005/kinsync/internal/repositories/syncjobs"
	"github.com/robfig/cron/v3"
)

type enqueuer interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (*models.SyncJob, error)
}

// Scheduler periodically enqueues a full sync of every active connection
// that has no job pending or running.
type Scheduler struct {
	schedule    string
	connections connections.Repository
	jobs        syncjobs.Repository
	queue       enqueuer
	log         logging.Logger
}

func NewScheduler(schedule string, conns connections.Repository, jobs syncjobs.Repository, queue enqueuer, log logging.Logger) *Scheduler {
	return &Scheduler{schedule: schedule, connections: conns, jobs: jobs, queue: queue, log: log}
}

// Start runs the schedule until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.EnqueueAll(ctx); err != nil {
			s.log.Error(ctx, "scheduled enqueue failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.log.Info(ctx, "scheduler started", "schedule", s.schedule)
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// EnqueueAll enqueues one job per eligible connection and returns how many
// were enqueued. Per-connection failures are logged and skipped.
func (s *Scheduler) EnqueueAll(ctx context.Context) (int, error) {
	conns, err := s.connections.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range conns {
		open, err := s.jobs.HasOpen(ctx, c.ID)
		if err != nil {
			s.log.Warn(ctx, "cannot check open jobs", "connection_id", c.ID, "error", err)
			continue
		}
		if open {
			continue
		}
		req := EnqueueRequest{ConnectionID: c.ID, UserID: c.UserID, Direction: models.DirectionBoth}
		if _, err := s.queue.Enqueue(ctx, req); err != nil {
			s.log.Warn(ctx, "scheduled enqueue failed", "connection_id", c.ID, "error", err)
			continue
		}
		n++
	}
	s.log.Info(ctx, "scheduled syncs enqueued", "count", n, "active", len(conns))
	return n, nil
}
