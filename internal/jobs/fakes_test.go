package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/dmitrijs2005/kinsync/internal/repositories/connections"
	"github.com/dmitrijs2005/kinsync/internal/repositories/syncjobs"
	"github.com/google/uuid"
)

var fixedNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type fakeConnections struct {
	connections.Repository
	byID   map[string]models.Connection
	active []models.Connection
}

func newFakeConnections(cs ...models.Connection) *fakeConnections {
	f := &fakeConnections{byID: map[string]models.Connection{}}
	for _, c := range cs {
		f.byID[c.ID] = c
		if c.Active {
			f.active = append(f.active, c)
		}
	}
	return f
}

func (f *fakeConnections) Get(_ context.Context, id string) (*models.Connection, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &c, nil
}

func (f *fakeConnections) ListActive(context.Context) ([]models.Connection, error) {
	return f.active, nil
}

// fakeJobs keeps jobs in memory with the claim semantics of the table.
type fakeJobs struct {
	syncjobs.Repository

	mu       sync.Mutex
	jobs     map[string]*models.SyncJob
	order    []string
	open     map[string]bool
	requeued int
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: map[string]*models.SyncJob{}, open: map[string]bool{}}
}

func (f *fakeJobs) Create(_ context.Context, j *models.SyncJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j.ID = uuid.NewString()
	cp := *j
	f.jobs[j.ID] = &cp
	f.order = append(f.order, j.ID)
	return nil
}

func (f *fakeJobs) Claim(_ context.Context, now time.Time) (*models.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		j := f.jobs[id]
		if j.Status == models.JobPending && !j.RunAfter.After(now) {
			j.Status = models.JobProcessing
			j.Attempts++
			cp := *j
			return &cp, nil
		}
	}
	return nil, common.ErrNothingClaimed
}

func (f *fakeJobs) finish(id string, status models.JobStatus, stats models.SyncStats, msg string) *models.SyncJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[id]
	j.Status, j.Stats, j.LastError = status, stats, msg
	return j
}

func (f *fakeJobs) Complete(_ context.Context, id string, stats models.SyncStats, _ time.Time) error {
	f.finish(id, models.JobCompleted, stats, "")
	return nil
}

func (f *fakeJobs) Fail(_ context.Context, id string, stats models.SyncStats, msg string, _ time.Time) error {
	f.finish(id, models.JobFailed, stats, msg)
	return nil
}

func (f *fakeJobs) Retry(_ context.Context, id string, stats models.SyncStats, msg string, runAfter time.Time) error {
	j := f.finish(id, models.JobPending, stats, msg)
	f.mu.Lock()
	j.RunAfter = runAfter
	f.mu.Unlock()
	return nil
}

func (f *fakeJobs) HasOpen(_ context.Context, connectionID string) (bool, error) {
	return f.open[connectionID], nil
}

func (f *fakeJobs) RequeueStale(context.Context, time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeued++
	return 0, nil
}

func (f *fakeJobs) get(id string) models.SyncJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.jobs[id]
}

type runFunc func(ctx context.Context, job *models.SyncJob) (models.SyncStats, error)

func (f runFunc) Run(ctx context.Context, job *models.SyncJob) (models.SyncStats, error) {
	return f(ctx, job)
}
