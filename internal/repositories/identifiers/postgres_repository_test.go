package identifiers

import (
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

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestListByEntity(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, entity_id, kind, value, normalized_value, is_primary, created_at\s+FROM identifiers WHERE entity_id = \$1`).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "entity_id", "kind", "value", "normalized_value", "is_primary", "created_at"}).
			AddRow("i1", "e1", "email", "Jane@X.com", "jane@x.com", true, now).
			AddRow("i2", "e1", "phone", "+1 555 0100", "+15550100", true, now))

	got, err := repo.ListByEntity(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.IdentifierEmail, got[0].Kind)
	assert.Equal(t, "+15550100", got[1].NormalizedValue)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByEntity_QueryError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM identifiers`).WillReturnError(errors.New("boom"))
	_, err := repo.ListByEntity(context.Background(), "e1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error: boom")
}

func TestCreate_InsertedAndDuplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	id := &models.Identifier{EntityID: "e1", Kind: models.IdentifierEmail, Value: "a@b.c", NormalizedValue: "a@b.c", IsPrimary: true, CreatedAt: now}

	mock.ExpectExec(`INSERT INTO identifiers .* ON CONFLICT \(entity_id, kind, normalized_value\) DO NOTHING`).
		WithArgs(sqlmock.AnyArg(), "e1", "email", "a@b.c", "a@b.c", true, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), id))
	assert.NotEmpty(t, id.ID)

	mock.ExpectExec(`INSERT INTO identifiers`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Create(context.Background(), &models.Identifier{EntityID: "e1"}), common.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}
