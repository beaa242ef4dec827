package connections

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type prefixSealer struct{}

func (prefixSealer) Seal(p []byte) ([]byte, error) { return append([]byte("sealed:"), p...), nil }

func (prefixSealer) Open(b []byte) ([]byte, error) {
	if !bytes.HasPrefix(b, []byte("sealed:")) {
		return nil, errors.New("bad seal")
	}
	return bytes.TrimPrefix(b, []byte("sealed:")), nil
}

func newRepoWithMock(t *testing.T, s Sealer) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db, s), mock, db
}

var connCols = []string{"id", "user_id", "provider", "access_token", "refresh_token", "token_expires_at", "last_synced_at", "last_error", "active", "created_at", "updated_at"}

func TestGet_OpensSealedTokens(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, prefixSealer{})
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM connections WHERE id = \$1`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(connCols).
			AddRow("c1", "u1", "google", []byte("sealed:at"), []byte("sealed:rt"), now, nil, "", true, now, now))

	c, err := repo.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGoogle, c.Provider)
	assert.Equal(t, "at", c.AccessToken)
	assert.Equal(t, "rt", c.RefreshToken)
	assert.Nil(t, c.LastSyncedAt)
	assert.True(t, c.Active)
}

func TestGet_NotFoundAndBadSeal(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, prefixSealer{})
	defer db.Close()

	mock.ExpectQuery(`FROM connections WHERE id = \$1`).WillReturnError(sql.ErrNoRows)
	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	now := time.Now()
	mock.ExpectQuery(`FROM connections WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(connCols).
			AddRow("c1", "u1", "google", []byte("plain"), nil, nil, nil, "", true, now, now))
	_, err = repo.Get(context.Background(), "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open token")
}

func TestListActive(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, nil)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM connections WHERE active ORDER BY last_synced_at NULLS FIRST`).
		WillReturnRows(sqlmock.NewRows(connCols).
			AddRow("c1", "u1", "google", []byte("at1"), nil, nil, nil, "", true, now, now).
			AddRow("c2", "u2", "microsoft", []byte("at2"), []byte("rt2"), now, now, "boom", true, now, now))

	got, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "at1", got[0].AccessToken)
	assert.Equal(t, "", got[0].RefreshToken)
	require.NotNil(t, got[1].LastSyncedAt)
	assert.Equal(t, "boom", got[1].LastError)
}

func TestCreate_SealsTokens(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, prefixSealer{})
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`INSERT INTO connections`).
		WithArgs(sqlmock.AnyArg(), "u1", "google", []byte("sealed:at"), []byte("sealed:rt"), sqlmock.AnyArg(), true, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	c := &models.Connection{UserID: "u1", Provider: models.ProviderGoogle, AccessToken: "at", RefreshToken: "rt", Active: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.Create(context.Background(), c))
	assert.NotEmpty(t, c.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTokens_KeepsRefreshWhenEmpty(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, nil)
	defer db.Close()

	exp := time.Now().Add(time.Hour)
	mock.ExpectExec(`UPDATE connections SET access_token = \$2, refresh_token = COALESCE\(\$3, refresh_token\)`).
		WithArgs("c1", []byte("new"), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateTokens(context.Background(), "c1", "new", "", exp))

	mock.ExpectExec(`UPDATE connections SET access_token`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.UpdateTokens(context.Background(), "gone", "new", "", exp), common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSyncedAndSetError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t, nil)
	defer db.Close()

	at := time.Now()
	mock.ExpectExec(`UPDATE connections SET last_synced_at = \$2, last_error = ''`).
		WithArgs("c1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkSynced(context.Background(), "c1", at))

	mock.ExpectExec(`UPDATE connections SET last_error = \$2, updated_at = \$3 WHERE id = \$1`).
		WithArgs("c1", "token revoked", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetError(context.Background(), "c1", "token revoked", at))

	mock.ExpectExec(`UPDATE connections SET last_error`).
		WillReturnError(errors.New("down"))
	err := repo.SetError(context.Background(), "c1", "x", at)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error: down")
	require.NoError(t, mock.ExpectationsWereMet())
}
