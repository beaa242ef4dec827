package services

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/dbx"
	"github.com/dmitrijs2005/kinsync/internal/logging"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/dmitrijs2005/kinsync/internal/repositories/entities"
	"github.com/dmitrijs2005/kinsync/internal/repositories/events"
	"github.com/dmitrijs2005/kinsync/internal/repositories/identifiers"
	"github.com/dmitrijs2005/kinsync/internal/repositories/repomanager"
)

// -------- in-memory store behind the fake repositories --------

type memStore struct {
	entities    []*models.Entity
	identifiers []models.Identifier
	events      []*models.Event
	seq         int

	entityUpdates int
	eventUpdates  int
	failUpdate    error
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s%d", prefix, m.seq)
}

type fakeEntitiesRepo struct {
	entities.Repository
	s *memStore
}

func (f *fakeEntitiesRepo) live(userID string, match func(e *models.Entity) bool) (*models.Entity, error) {
	for _, e := range f.s.entities {
		if e.UserID == userID && e.DeletedAt == nil && match(e) {
			cp := *e
			cp.Metadata = e.Metadata.Clone()
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeEntitiesRepo) GetByExternalID(ctx context.Context, userID, provider, externalID string) (*models.Entity, error) {
	return f.live(userID, func(e *models.Entity) bool {
		return (e.ExternalSource == provider && e.ExternalID == externalID) || e.Metadata.ExternalIDs[provider] == externalID
	})
}

func (f *fakeEntitiesRepo) GetByIdentifier(ctx context.Context, userID string, kind models.IdentifierKind, normalized string) (*models.Entity, error) {
	return f.live(userID, func(e *models.Entity) bool {
		for _, id := range f.s.identifiers {
			if id.EntityID == e.ID && id.Kind == kind && id.NormalizedValue == normalized {
				return true
			}
		}
		return false
	})
}

func (f *fakeEntitiesRepo) GetByName(ctx context.Context, userID, name string) (*models.Entity, error) {
	return f.live(userID, func(e *models.Entity) bool { return e.Name == name })
}

func (f *fakeEntitiesRepo) GetForUpdate(ctx context.Context, id string) (*models.Entity, error) {
	for _, e := range f.s.entities {
		if e.ID == id {
			cp := *e
			cp.Metadata = e.Metadata.Clone()
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeEntitiesRepo) Create(ctx context.Context, e *models.Entity) error {
	if e.ID == "" {
		e.ID = f.s.nextID("e")
	}
	cp := *e
	f.s.entities = append(f.s.entities, &cp)
	return nil
}

func (f *fakeEntitiesRepo) Update(ctx context.Context, e *models.Entity) error {
	if f.s.failUpdate != nil {
		return f.s.failUpdate
	}
	for i, cur := range f.s.entities {
		if cur.ID == e.ID {
			cp := *e
			f.s.entities[i] = &cp
			f.s.entityUpdates++
			return nil
		}
	}
	return common.ErrorNotFound
}

type fakeIdentifiersRepo struct {
	identifiers.Repository
	s *memStore
}

func (f *fakeIdentifiersRepo) ListByEntity(ctx context.Context, entityID string) ([]models.Identifier, error) {
	var out []models.Identifier
	for _, id := range f.s.identifiers {
		if id.EntityID == entityID {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeIdentifiersRepo) Create(ctx context.Context, id *models.Identifier) error {
	for _, cur := range f.s.identifiers {
		if cur.EntityID == id.EntityID && cur.Kind == id.Kind && cur.NormalizedValue == id.NormalizedValue {
			return common.ErrAlreadyExists
		}
	}
	if id.ID == "" {
		id.ID = f.s.nextID("i")
	}
	f.s.identifiers = append(f.s.identifiers, *id)
	return nil
}

type fakeEventsRepo struct {
	events.Repository
	s *memStore
}

func (f *fakeEventsRepo) find(match func(e *models.Event) bool) (*models.Event, error) {
	for _, e := range f.s.events {
		if e.DeletedAt == nil && match(e) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeEventsRepo) GetByExternalID(ctx context.Context, userID, connectionID, externalID string) (*models.Event, error) {
	return f.find(func(e *models.Event) bool {
		return e.UserID == userID && e.ConnectionID == connectionID && e.ExternalID == externalID
	})
}

func (f *fakeEventsRepo) ListStartingBetween(ctx context.Context, userID, connectionID string, from, to time.Time) ([]*models.Event, error) {
	var out []*models.Event
	for _, e := range f.s.events {
		if e.UserID != userID || e.DeletedAt != nil || (e.ConnectionID != connectionID && e.ConnectionID != "") {
			continue
		}
		if e.StartsAt.Before(from) || e.StartsAt.After(to) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeEventsRepo) Get(ctx context.Context, id string) (*models.Event, error) {
	return f.find(func(e *models.Event) bool { return e.ID == id })
}

func (f *fakeEventsRepo) GetForUpdate(ctx context.Context, id string) (*models.Event, error) {
	return f.Get(ctx, id)
}

func (f *fakeEventsRepo) Create(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = f.s.nextID("ev")
	}
	cp := *e
	f.s.events = append(f.s.events, &cp)
	return nil
}

func (f *fakeEventsRepo) Update(ctx context.Context, e *models.Event) error {
	if f.s.failUpdate != nil {
		return f.s.failUpdate
	}
	for i, cur := range f.s.events {
		if cur.ID == e.ID {
			cp := *e
			f.s.events[i] = &cp
			f.s.eventUpdates++
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f *fakeEventsRepo) ListPending(ctx context.Context, userID, connectionID string) ([]*models.Event, error) {
	var out []*models.Event
	for _, e := range f.s.events {
		if e.UserID == userID && e.SyncStatus.NeedsPush() && (e.ConnectionID == connectionID || e.ConnectionID == "") {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	s *memStore
}

func (m *fakeRepoManager) Entities(db dbx.DBTX) entities.Repository {
	return &fakeEntitiesRepo{s: m.s}
}

func (m *fakeRepoManager) Identifiers(db dbx.DBTX) identifiers.Repository {
	return &fakeIdentifiersRepo{s: m.s}
}

func (m *fakeRepoManager) Events(db dbx.DBTX) events.Repository {
	return &fakeEventsRepo{s: m.s}
}

// -------- helpers --------

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// expectTxs queues n committed transactions.
func expectTxs(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

var fixedNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newContactService(t *testing.T) (*ContactService, *memStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newSQLMockDB(t)
	s := &memStore{}
	svc := NewContactService(db, &fakeRepoManager{s: s}, logging.Nop())
	svc.now = func() time.Time { return fixedNow }
	return svc, s, mock
}

func newEventService(t *testing.T) (*EventService, *memStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newSQLMockDB(t)
	s := &memStore{}
	svc := NewEventService(db, &fakeRepoManager{s: s}, logging.Nop())
	svc.now = func() time.Time { return fixedNow }
	return svc, s, mock
}
