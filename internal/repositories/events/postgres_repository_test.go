package events

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/dmitrijs2005/kinsync/internal/syncstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var eventCols = []string{"id", "user_id", "connection_id", "title", "description", "location", "starts_at", "ends_at", "all_day",
	"external_id", "sync_status", "sync_metadata", "created_at", "updated_at", "deleted_at"}

func TestGetByExternalID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM events\s+WHERE user_id = \$1 AND connection_id = \$2 AND external_id = \$3 AND deleted_at IS NULL`).
		WithArgs("u1", "c1", "g-1").
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow("ev1", "u1", "c1", "Standup", "", "", start, start.Add(15*time.Minute), false,
				"g-1", "synced", []byte(`{"etag":"\"v1\"","source":"google"}`), start, start, nil))

	e, err := repo.GetByExternalID(context.Background(), "u1", "c1", "g-1")
	require.NoError(t, err)
	assert.Equal(t, "c1", e.ConnectionID)
	assert.Equal(t, syncstate.Synced, e.SyncStatus)
	assert.Equal(t, `"v1"`, e.SyncMetadata.ETag)

	mock.ExpectQuery(`FROM events`).WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByExternalID(context.Background(), "u1", "c1", "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestListStartingBetween_IncludesUnownedEvents(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	from := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	to := from.Add(2 * time.Hour)
	mock.ExpectQuery(`\(connection_id = \$2 OR connection_id IS NULL\)\s+AND starts_at BETWEEN \$3 AND \$4`).
		WithArgs("u1", "c1", from, to).
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow("ev1", "u1", nil, "Lunch", "", "", from, to, false, "", "local_only", []byte(`{}`), from, from, nil))

	got, err := repo.ListStartingBetween(context.Background(), "u1", "c1", from, to)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "", got[0].ConnectionID)
	assert.Equal(t, syncstate.LocalOnly, got[0].SyncStatus)
}

func TestCreateAndUpdate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	e := &models.Event{UserID: "u1", Title: "Lunch", StartsAt: now, EndsAt: now.Add(time.Hour), SyncStatus: syncstate.LocalOnly, CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(`INSERT INTO events`).
		WithArgs(sqlmock.AnyArg(), "u1", nil, "Lunch", "", "", e.StartsAt, e.EndsAt, false, "", "local_only", sqlmock.AnyArg(), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), e))
	assert.NotEmpty(t, e.ID)

	e.ConnectionID = "c1"
	e.ExternalID = "g-9"
	e.SyncStatus = syncstate.Synced
	mock.ExpectExec(`UPDATE events SET connection_id = \$2`).
		WithArgs(e.ID, "c1", "Lunch", "", "", e.StartsAt, e.EndsAt, false, "g-9", "synced", sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Update(context.Background(), e))

	mock.ExpectExec(`UPDATE events SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Update(context.Background(), e), common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPending(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`sync_status IN \('local_only', 'pending_push'\)`).
		WithArgs("u1", "c1").
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow("ev1", "u1", nil, "A", "", "", now, now, false, "", "local_only", nil, now, now, nil).
			AddRow("ev2", "u1", "c1", "B", "", "", now, now, true, "g-2", "pending_push", nil, now, now, nil))

	got, err := repo.ListPending(context.Background(), "u1", "c1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[1].AllDay)
	assert.Equal(t, syncstate.PendingPush, got[1].SyncStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}
