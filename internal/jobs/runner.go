package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/logging"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/dmitrijs2005/kinsync/internal/repositories/syncjobs"
	"github.com/sethvargo/go-retry"
)

const maxRetryDelay = 6 * time.Hour

// JobRunner executes one claimed job.
type JobRunner interface {
	Run(ctx context.Context, job *models.SyncJob) (models.SyncStats, error)
}

type RunnerOptions struct {
	Workers      int
	PollInterval time.Duration
	RetryBase    time.Duration
	// StaleAfter is how long a job may stay processing before it is
	// considered abandoned by a crashed worker.
	StaleAfter time.Duration
	// Wake, when set, interrupts idle workers as soon as a job is enqueued.
	Wake <-chan struct{}
}

// Runner drains the job table with a fixed pool of workers.
type Runner struct {
	jobs   syncjobs.Repository
	runner JobRunner
	opts   RunnerOptions
	log    logging.Logger
	now    func() time.Time
}

func NewRunner(jobs syncjobs.Repository, runner JobRunner, opts RunnerOptions, log logging.Logger) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 30 * time.Second
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Minute
	}
	return &Runner{jobs: jobs, runner: runner, opts: opts, log: log, now: time.Now}
}

// Start runs the workers and the stale-job sweeper until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	r.log.Info(ctx, "job runner started", "workers", r.opts.Workers)

	var wg sync.WaitGroup
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.work(ctx, id)
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.sweep(ctx)
	}()
	wg.Wait()

	r.log.Info(context.Background(), "job runner stopped")
}

func (r *Runner) work(ctx context.Context, id int) {
	for {
		processed, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.log.Error(ctx, "worker error", "worker", id, "error", err)
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-r.opts.Wake:
		case <-time.After(r.opts.PollInterval):
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	t := time.NewTicker(r.opts.StaleAfter / 2)
	defer t.Stop()
	for {
		r.requeueStale(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (r *Runner) requeueStale(ctx context.Context) {
	n, err := r.jobs.RequeueStale(ctx, r.now().UTC().Add(-r.opts.StaleAfter))
	if err != nil {
		if ctx.Err() == nil {
			r.log.Error(ctx, "requeue stale jobs", "error", err)
		}
		return
	}
	if n > 0 {
		r.log.Warn(ctx, "requeued stale jobs", "count", n)
	}
}

// RunOnce claims and processes one due job. It reports false when no job
// was due.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	job, err := r.jobs.Claim(ctx, r.now().UTC())
	if errors.Is(err, common.ErrNothingClaimed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, r.process(ctx, job)
}

func (r *Runner) process(ctx context.Context, job *models.SyncJob) error {
	stats, runErr := r.runner.Run(ctx, job)
	now := r.now().UTC()

	// a shutdown mid-run leaves the job processing; the sweeper requeues it
	if runErr != nil && ctx.Err() != nil {
		return runErr
	}
	fctx := context.WithoutCancel(ctx)

	switch {
	case runErr == nil:
		return r.jobs.Complete(fctx, job.ID, stats, now)
	case errors.Is(runErr, common.ErrCredentials) || job.Attempts >= job.MaxAttempts:
		return r.jobs.Fail(fctx, job.ID, stats, runErr.Error(), now)
	default:
		delay := RetryDelay(r.opts.RetryBase, job.Attempts)
		r.log.Warn(ctx, "job will be retried", "job_id", job.ID, "attempt", job.Attempts, "delay", delay.String())
		return r.jobs.Retry(fctx, job.ID, stats, runErr.Error(), now.Add(delay))
	}
}

// RetryDelay is the exponential backoff before retry number attempt.
func RetryDelay(base time.Duration, attempt int) time.Duration {
	b := retry.WithCappedDuration(maxRetryDelay, retry.NewExponential(base))
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d, _ = b.Next()
	}
	return d
}
