package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/dbx"
	"github.com/dmitrijs2005/kinsync/internal/logging"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/dmitrijs2005/kinsync/internal/reconcile"
	"github.com/dmitrijs2005/kinsync/internal/repositories/repomanager"
	"github.com/dmitrijs2005/kinsync/internal/syncstate"
)

type EventService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	now         func() time.Time
}

func NewEventService(db *sql.DB, repomanager repomanager.RepositoryManager, log logging.Logger) *EventService {
	return &EventService{
		db:          db,
		repomanager: repomanager,
		log:         log,
		now:         time.Now,
	}
}

// Import reconciles one external event into the user's calendar. An event
// whose recorded etag equals the incoming one is skipped without any write;
// any other match is overwritten from the external copy. Records without a
// title or start time are skipped.
func (s *EventService) Import(ctx context.Context, userID, connectionID, source string, rec models.EventRecord) (models.Outcome, error) {
	if strings.TrimSpace(rec.Title) == "" || rec.StartsAt.IsZero() {
		return models.OutcomeSkipped, nil
	}

	var outcome models.Outcome
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Events(tx)
		now := s.now().UTC()

		match, rule, err := reconcile.ResolveEvent(ctx, repo, userID, connectionID, rec)
		if err != nil {
			return fmt.Errorf("resolve event: %w", err)
		}

		switch reconcile.DecideEvent(match, rec) {
		case reconcile.EventSkip:
			outcome = models.OutcomeSkipped
			return nil
		case reconcile.EventCreate:
			e := reconcile.NewEventFromRecord(userID, connectionID, source, rec, now)
			if err := repo.Create(ctx, e); err != nil {
				return fmt.Errorf("create event: %w", err)
			}
			outcome = models.OutcomeCreated
			return nil
		}

		locked, err := repo.GetForUpdate(ctx, match.ID)
		if err != nil {
			return fmt.Errorf("lock event: %w", err)
		}
		if reconcile.DecideEvent(locked, rec) == reconcile.EventSkip {
			outcome = models.OutcomeSkipped
			return nil
		}
		if err := reconcile.ApplyEventRecord(locked, connectionID, source, rec, now); err != nil {
			return fmt.Errorf("apply event: %w", err)
		}
		if err := repo.Update(ctx, locked); err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		outcome = models.OutcomeMerged
		s.log.Debug(ctx, "event overwritten", "event_id", locked.ID, "rule", string(rule))
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// CreateLocal stores a user-created event. It is local_only until exported.
func (s *EventService) CreateLocal(ctx context.Context, e *models.Event) (*models.Event, error) {
	e.Title = strings.TrimSpace(e.Title)
	if e.UserID == "" || e.Title == "" || e.StartsAt.IsZero() {
		return nil, fmt.Errorf("%w: user, title and start are required", common.ErrInvalidRecord)
	}
	if e.EndsAt.IsZero() {
		e.EndsAt = e.StartsAt
	}
	if e.EndsAt.Before(e.StartsAt) {
		return nil, fmt.Errorf("%w: event ends before it starts", common.ErrInvalidRecord)
	}
	now := s.now().UTC()
	e.ExternalID = ""
	e.SyncStatus = syncstate.LocalOnly
	e.SyncMetadata = models.EventSyncMetadata{}
	e.CreatedAt, e.UpdatedAt = now, now

	if err := s.repomanager.Events(s.db).Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return e, nil
}

// EditLocal applies a user edit. A synced event becomes pending_push; an
// edit that changes nothing is not written.
func (s *EventService) EditLocal(ctx context.Context, id string, patch models.EventPatch) (*models.Event, error) {
	var out *models.Event
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Events(tx)
		e, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out = e
		if !patch.Apply(e) {
			return nil
		}
		if strings.TrimSpace(e.Title) == "" || e.EndsAt.Before(e.StartsAt) {
			return fmt.Errorf("%w: edit leaves event invalid", common.ErrInvalidRecord)
		}
		next, err := syncstate.Transition(e.SyncStatus, syncstate.LocalEdit)
		if err != nil {
			return err
		}
		e.SyncStatus = next
		e.UpdatedAt = s.now().UTC()
		return repo.Update(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkConflict parks an event in conflict. It is no longer imported over or
// exported until Resolve is called.
func (s *EventService) MarkConflict(ctx context.Context, id string) (*models.Event, error) {
	return s.transition(ctx, id, syncstate.ConflictDetected)
}

// Resolve leaves conflict; the local copy wins and is queued for export.
func (s *EventService) Resolve(ctx context.Context, id string) (*models.Event, error) {
	return s.transition(ctx, id, syncstate.Resolve)
}

func (s *EventService) transition(ctx context.Context, id string, t syncstate.Trigger) (*models.Event, error) {
	var out *models.Event
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Events(tx)
		e, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := syncstate.Transition(e.SyncStatus, t)
		if err != nil {
			return err
		}
		out = e
		if next == e.SyncStatus {
			return nil
		}
		e.SyncStatus = next
		e.UpdatedAt = s.now().UTC()
		return repo.Update(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Pending lists the events to export to a connection.
func (s *EventService) Pending(ctx context.Context, userID, connectionID string) ([]*models.Event, error) {
	return s.repomanager.Events(s.db).ListPending(ctx, userID, connectionID)
}

// MarkExported records a successful push: the event is bound to the
// connection, carries the remote id and etag and becomes synced. An event
// moved to conflict while the push was in flight stays in conflict and the
// call returns common.ErrInvalidTransition.
func (s *EventService) MarkExported(ctx context.Context, id, connectionID, source string, remote models.EventRecord) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Events(tx)
		e, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := syncstate.Transition(e.SyncStatus, syncstate.ExportSucceeded)
		if err != nil {
			return err
		}
		e.ConnectionID = connectionID
		if remote.ExternalID != "" {
			e.ExternalID = remote.ExternalID
		}
		e.SyncMetadata = models.EventSyncMetadata{ETag: remote.ETag, Source: source}
		e.SyncStatus = next
		e.UpdatedAt = s.now().UTC()
		return repo.Update(ctx, e)
	})
}
