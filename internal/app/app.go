// Package app wires the sync engine together: database, repositories,
// providers, the orchestrator and the job machinery.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/archive"
	"github.com/dmitrijs2005/kinsync/internal/config"
	"github.com/dmitrijs2005/kinsync/internal/credentials"
	"github.com/dmitrijs2005/kinsync/internal/jobs"
	"github.com/dmitrijs2005/kinsync/internal/logging"
	"github.com/dmitrijs2005/kinsync/internal/metrics"
	"github.com/dmitrijs2005/kinsync/internal/notify"
	"github.com/dmitrijs2005/kinsync/internal/providers"
	"github.com/dmitrijs2005/kinsync/internal/providers/google"
	"github.com/dmitrijs2005/kinsync/internal/providers/microsoft"
	"github.com/dmitrijs2005/kinsync/internal/repositories/repomanager"
	"github.com/dmitrijs2005/kinsync/internal/services"
	"github.com/dmitrijs2005/kinsync/internal/syncer"
)

var (
	openDB               = repomanager.Open
	newRepositoryManager = repomanager.NewPostgresRepositoryManager
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager

	Queue        *jobs.Queue
	Runner       *jobs.Runner
	Scheduler    *jobs.Scheduler
	Orchestrator *syncer.Orchestrator
	Events       *services.EventService
	Hub          *notify.Hub

	listener *jobs.Listener
	metrics  *metrics.Collector
	closers  []func() error
}

// NewApp opens the database and builds every component from c. Migrations
// run when migrate is set.
func NewApp(ctx context.Context, c *config.Config, migrate bool) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	sealer, err := credentials.NewSealer(c.SealKey)
	if err != nil {
		return nil, fmt.Errorf("token sealer: %w", err)
	}
	rm, err := newRepositoryManager(sealer)
	if err != nil {
		return nil, fmt.Errorf("repository manager: %w", err)
	}
	db, err := openDB(ctx, c.DatabaseDSN, c.Workers*2+4)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if migrate {
		if err := rm.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration error: %w", err)
		}
	}

	app := &App{config: c, logger: logger, db: db, repomanager: rm, closers: []func() error{db.Close}}

	httpClient := providers.NewHTTPClient(&http.Client{Timeout: 30 * time.Second}, c.ProviderRPS, c.ProviderBurst, logger)
	registry := providers.NewRegistry(
		google.New(httpClient, google.Options{FanOutLimit: c.FanOutLimit, ItemTimeout: c.ItemTimeout}),
		microsoft.New(httpClient, microsoft.Options{}),
	)
	refresher := credentials.NewOAuthRefresher(
		credentials.ClientCredentials{ClientID: c.GoogleClientID, ClientSecret: c.GoogleClientSecret},
		credentials.ClientCredentials{ClientID: c.MicrosoftClientID, ClientSecret: c.MicrosoftClientSecret},
		c.MicrosoftTenant,
		logger,
	)

	app.Hub = notify.NewHub()
	notifiers := notify.Multi{app.Hub}
	if c.RedisAddr != "" {
		rp := notify.NewRedisPublisher(c.RedisAddr)
		notifiers = append(notifiers, rp)
		app.closers = append(app.closers, rp.Close)
	}

	var archiver archive.Archiver
	if c.S3Bucket != "" {
		a, err := archive.NewS3Archiver(ctx, archive.Settings{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("run archive: %w", err)
		}
		archiver = a
	}

	app.metrics = metrics.NewCollector()
	app.Events = services.NewEventService(db, rm, logger)
	app.Orchestrator = syncer.New(syncer.Deps{
		Connections: rm.Connections(db),
		Contacts:    services.NewContactService(db, rm, logger),
		Events:      app.Events,
		Tokens:      refresher,
		Providers:   registry,
		Log:         logger,
		Notifier:    notifiers,
		Archiver:    archiver,
		Metrics:     app.metrics,
	})

	app.Queue = jobs.NewQueue(rm.Connections(db), rm.SyncJobs(db), c.MaxAttempts)
	app.listener = jobs.NewListener(c.DatabaseDSN, logger)
	app.Runner = jobs.NewRunner(rm.SyncJobs(db), app.Orchestrator, jobs.RunnerOptions{
		Workers:      c.Workers,
		PollInterval: c.PollInterval,
		RetryBase:    c.RetryBase,
		StaleAfter:   c.StaleAfter,
		Wake:         app.listener.Wake(),
	}, logger)
	if c.Schedule != "" {
		app.Scheduler = jobs.NewScheduler(c.Schedule, rm.Connections(db), rm.SyncJobs(db), app.Queue, logger)
	}
	return app, nil
}

func (app *App) DB() *sql.DB { return app.db }

func (app *App) RepositoryManager() repomanager.RepositoryManager { return app.repomanager }

func (app *App) Logger() logging.Logger { return app.logger }

// Close releases the database and the notification clients.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startMetricsServer(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := app.db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "metrics server listening", "addr", app.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "metrics server failed", "error", err)
	}
}

// Run starts the listener, workers, scheduler and metrics server and
// blocks until a termination signal arrives or ctx is done.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting worker...")
	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.listener.Run(ctx); err != nil {
			app.logger.Warn(ctx, "job listener stopped, polling only", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.Runner.Start(ctx)
	}()

	if app.Scheduler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.Scheduler.Start(ctx); err != nil {
				app.logger.Error(ctx, err.Error())
				cancelFunc()
			}
		}()
	}

	if app.config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startMetricsServer(ctx)
		}()
	}

	wg.Wait()
	app.logger.Info(context.Background(), "worker stopped")
}
