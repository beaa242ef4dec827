// Package syncer runs one sync job end to end: it refreshes the
// connection's credentials, pulls contacts and events from the provider
// through the import pipelines and pushes pending local events back.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/archive"
	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/credentials"
	"github.com/dmitrijs2005/kinsync/internal/logging"
	"github.com/dmitrijs2005/kinsync/internal/metrics"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/dmitrijs2005/kinsync/internal/notify"
	"github.com/dmitrijs2005/kinsync/internal/providers"
	"github.com/dmitrijs2005/kinsync/internal/repositories/connections"
)

// calendarSource names the event feed among a run's sources.
const calendarSource = "calendar"

type ContactImporter interface {
	Import(ctx context.Context, userID, provider string, rec models.ContactRecord) (models.Outcome, error)
}

type EventSyncer interface {
	Import(ctx context.Context, userID, connectionID, source string, rec models.EventRecord) (models.Outcome, error)
	Pending(ctx context.Context, userID, connectionID string) ([]*models.Event, error)
	MarkExported(ctx context.Context, id, connectionID, source string, remote models.EventRecord) error
}

type TokenSource interface {
	AccessToken(ctx context.Context, conn *models.Connection, store credentials.TokenStore) (string, error)
}

type Deps struct {
	Connections connections.Repository
	Contacts    ContactImporter
	Events      EventSyncer
	Tokens      TokenSource
	Providers   *providers.Registry
	Log         logging.Logger

	// Optional.
	Notifier notify.Notifier
	Archiver archive.Archiver
	Metrics  *metrics.Collector
}

type Orchestrator struct {
	connections connections.Repository
	contacts    ContactImporter
	events      EventSyncer
	tokens      TokenSource
	providers   *providers.Registry
	notifier    notify.Notifier
	archiver    archive.Archiver
	metrics     *metrics.Collector
	log         logging.Logger
	now         func() time.Time
}

func New(d Deps) *Orchestrator {
	if d.Notifier == nil {
		d.Notifier = notify.Nop()
	}
	return &Orchestrator{
		connections: d.Connections,
		contacts:    d.Contacts,
		events:      d.Events,
		tokens:      d.Tokens,
		providers:   d.Providers,
		notifier:    d.Notifier,
		archiver:    d.Archiver,
		metrics:     d.Metrics,
		log:         d.Log,
		now:         time.Now,
	}
}

// run carries the state of one orchestration.
type run struct {
	job    *models.SyncJob
	conn   *models.Connection
	token  string
	log    logging.Logger
	stats  models.SyncStats
	record archive.Run
}

// Run executes job and returns its counters. Failures of single records or
// single sources are collected in the stats and do not fail the run. The
// run fails when the connection cannot be loaded, when credentials cannot
// be refreshed, or when no source produced usable data.
func (o *Orchestrator) Run(ctx context.Context, job *models.SyncJob) (models.SyncStats, error) {
	startedAt := o.now().UTC()
	r := &run{
		job: job,
		log: o.log.With("job_id", job.ID, "connection_id", job.ConnectionID, "provider", string(job.Provider)),
		record: archive.Run{
			JobID:        job.ID,
			ConnectionID: job.ConnectionID,
			UserID:       job.UserID,
			Provider:     job.Provider,
			StartedAt:    startedAt,
		},
	}
	var done func(models.JobStatus, models.SyncStats)
	if o.metrics != nil {
		done = o.metrics.RunStarted(job.Provider)
	}

	o.notify(ctx, r, notify.PhaseStarted, nil)
	r.log.Info(ctx, "sync started", "direction", string(job.Direction))

	err := o.execute(ctx, r)

	status := models.JobCompleted
	phase := notify.PhaseCompleted
	if err != nil {
		status, phase = models.JobFailed, notify.PhaseFailed
		r.log.Error(ctx, "sync failed", "error", err, "failed", r.stats.Failed)
	} else {
		r.log.Info(ctx, "sync completed",
			"created", r.stats.Created,
			"merged", r.stats.Merged,
			"skipped", r.stats.Skipped,
			"exported", r.stats.Exported,
			"failed", r.stats.Failed,
		)
	}
	o.archive(ctx, r)
	o.notify(ctx, r, phase, err)
	if done != nil {
		done(status, r.stats)
	}
	return r.stats, err
}

func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	conn, err := o.connections.Get(ctx, r.job.ConnectionID)
	if err != nil {
		return fmt.Errorf("load connection: %w", err)
	}
	r.conn = conn

	r.token, err = o.tokens.AccessToken(ctx, conn, o.connections)
	if err != nil {
		o.setError(ctx, r, err)
		return err
	}

	p, err := o.providers.ForConnection(conn)
	if err != nil {
		o.setError(ctx, r, err)
		return err
	}
	cal, calErr := providers.Calendar(p)

	if r.job.Direction.Imports() {
		var usable int
		var sourceErrs []error
		for _, source := range p.ContactSources() {
			if err := o.importContacts(ctx, r, p, source); err != nil {
				sourceErrs = append(sourceErrs, err)
				continue
			}
			usable++
		}
		if calErr == nil {
			if err := o.importEvents(ctx, r, cal); err != nil {
				sourceErrs = append(sourceErrs, err)
			} else {
				usable++
			}
		}
		for _, e := range sourceErrs {
			r.log.Warn(ctx, "source failed", "error", e)
			r.stats.AddError(e.Error())
		}
		if usable == 0 && len(sourceErrs) > 0 {
			err := fmt.Errorf("%w: %w", common.ErrNoUsableData, errors.Join(sourceErrs...))
			o.setError(ctx, r, err)
			return err
		}
	}

	if r.job.Direction.Exports() && calErr == nil {
		if err := o.exportEvents(ctx, r, cal); err != nil {
			o.setError(ctx, r, err)
			return err
		}
	}

	if err := o.connections.MarkSynced(ctx, conn.ID, o.now().UTC()); err != nil {
		err = fmt.Errorf("mark synced: %w", err)
		o.setError(ctx, r, err)
		return err
	}
	return nil
}

// importContacts pages through one contact source. A source that fails
// before its first page counts as failed; a later page failure keeps what
// was already imported.
func (o *Orchestrator) importContacts(ctx context.Context, r *run, p providers.Provider, source string) error {
	cursor := ""
	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := p.FetchContacts(ctx, r.token, source, cursor)
		if err != nil {
			if page == 0 {
				return fmt.Errorf("%s: %w", source, err)
			}
			r.stats.AddError(fmt.Sprintf("%s page %d: %v", source, page+1, err))
			return nil
		}
		for _, err := range res.ItemErrors {
			r.log.Warn(ctx, "provider item skipped", "source", source, "error", err)
			r.stats.AddError(fmt.Sprintf("%s item: %v", source, err))
		}
		for _, rec := range res.Records {
			r.record.Contacts = append(r.record.Contacts, rec)
			outcome, err := o.contacts.Import(ctx, r.conn.UserID, string(r.conn.Provider), rec)
			if err != nil {
				r.log.Warn(ctx, "contact import failed", "source", source, "external_id", rec.ExternalID, "error", err)
				r.stats.AddError(fmt.Sprintf("%s contact %q: %v", source, recordLabel(rec), err))
				continue
			}
			r.stats.Record(outcome)
		}
		if res.NextCursor == "" || res.NextCursor == cursor {
			return nil
		}
		cursor = res.NextCursor
	}
}

func recordLabel(rec models.ContactRecord) string {
	switch {
	case rec.ExternalID != "":
		return rec.ExternalID
	case rec.Email != "":
		return rec.Email
	default:
		return rec.Name
	}
}

func (o *Orchestrator) importEvents(ctx context.Context, r *run, cal providers.CalendarProvider) error {
	recs, err := cal.FetchEvents(ctx, r.token)
	if err != nil {
		return fmt.Errorf("%s: %w", calendarSource, err)
	}
	r.record.Events = recs
	for _, rec := range recs {
		outcome, err := o.events.Import(ctx, r.conn.UserID, r.conn.ID, string(r.conn.Provider), rec)
		if err != nil {
			r.log.Warn(ctx, "event import failed", "external_id", rec.ExternalID, "error", err)
			r.stats.AddError(fmt.Sprintf("event %q: %v", rec.ExternalID, err))
			continue
		}
		r.stats.Record(outcome)
	}
	return nil
}

// exportEvents pushes every pending event: events without an external id
// are created remotely, the rest are overwritten.
func (o *Orchestrator) exportEvents(ctx context.Context, r *run, cal providers.CalendarProvider) error {
	pending, err := o.events.Pending(ctx, r.conn.UserID, r.conn.ID)
	if err != nil {
		return fmt.Errorf("list pending events: %w", err)
	}
	for _, e := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := ToRecord(e)
		var remote models.EventRecord
		if e.ExternalID == "" {
			remote, err = cal.CreateEvent(ctx, r.token, rec)
		} else {
			remote, err = cal.UpdateEvent(ctx, r.token, rec)
		}
		if err == nil {
			err = o.events.MarkExported(ctx, e.ID, r.conn.ID, string(r.conn.Provider), remote)
		}
		if err != nil {
			r.log.Warn(ctx, "event export failed", "event_id", e.ID, "error", err)
			r.stats.AddError(fmt.Sprintf("export event %s: %v", e.ID, err))
			continue
		}
		r.stats.Exported++
	}
	return nil
}

// ToRecord is the provider-facing copy of a local event.
func ToRecord(e *models.Event) models.EventRecord {
	return models.EventRecord{
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		StartsAt:    e.StartsAt,
		EndsAt:      e.EndsAt,
		AllDay:      e.AllDay,
		ExternalID:  e.ExternalID,
		ETag:        e.SyncMetadata.ETag,
	}
}

func (o *Orchestrator) setError(ctx context.Context, r *run, cause error) {
	if err := o.connections.SetError(ctx, r.job.ConnectionID, cause.Error(), o.now().UTC()); err != nil {
		r.log.Warn(ctx, "cannot record connection error", "error", err)
	}
}

func (o *Orchestrator) notify(ctx context.Context, r *run, phase notify.Phase, cause error) {
	if err := o.notifier.Notify(ctx, notify.New(r.job, phase, r.stats, cause)); err != nil {
		r.log.Warn(ctx, "notification failed", "phase", string(phase), "error", err)
	}
}

func (o *Orchestrator) archive(ctx context.Context, r *run) {
	if o.archiver == nil || (len(r.record.Contacts) == 0 && len(r.record.Events) == 0) {
		return
	}
	key, err := o.archiver.Archive(ctx, &r.record)
	if err != nil {
		r.log.Warn(ctx, "run archive failed", "error", err)
		return
	}
	r.log.Debug(ctx, "run archived", "key", key)
}
