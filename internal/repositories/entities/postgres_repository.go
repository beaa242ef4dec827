package entities

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/dbx"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/google/uuid"
)

const entityColumns = `e.id, e.user_id, e.name, e.description, e.external_source, e.external_id, e.metadata, e.created_at, e.updated_at, e.deleted_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByExternalID finds the user's live entity whose primary external id, or
// whose external_ids entry for provider, equals externalID.
func (r *PostgresRepository) GetByExternalID(ctx context.Context, userID, provider, externalID string) (*models.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities e
		WHERE e.user_id = $1 AND e.deleted_at IS NULL
		AND ((e.external_source = $2 AND e.external_id = $3) OR e.metadata -> 'external_ids' ->> $2 = $3)
		ORDER BY e.created_at LIMIT 1`
	return r.one(ctx, query, userID, provider, externalID)
}

// GetByIdentifier finds the user's live entity owning an identifier of kind
// with the given normalized value.
func (r *PostgresRepository) GetByIdentifier(ctx context.Context, userID string, kind models.IdentifierKind, normalized string) (*models.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities e
		JOIN identifiers i ON i.entity_id = e.id
		WHERE e.user_id = $1 AND e.deleted_at IS NULL AND i.kind = $2 AND i.normalized_value = $3
		ORDER BY e.created_at LIMIT 1`
	return r.one(ctx, query, userID, string(kind), normalized)
}

// GetByName finds the user's live entity whose name equals name exactly.
func (r *PostgresRepository) GetByName(ctx context.Context, userID, name string) (*models.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities e
		WHERE e.user_id = $1 AND e.deleted_at IS NULL AND e.name = $2
		ORDER BY e.created_at LIMIT 1`
	return r.one(ctx, query, userID, name)
}

// GetForUpdate loads an entity and locks its row until the surrounding
// transaction ends. Identifier check-then-insert runs under this lock.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities e WHERE e.id = $1 FOR UPDATE`
	return r.one(ctx, query, id)
}

// Create inserts e, assigning an id when it has none.
func (r *PostgresRepository) Create(ctx context.Context, e *models.Entity) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	query := `INSERT INTO entities (id, user_id, name, description, external_source, external_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.UserID, e.Name, e.Description, e.ExternalSource, e.ExternalID, e.Metadata, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.MapError(err))
	}
	return nil
}

// Update writes the mutable fields of a live entity.
func (r *PostgresRepository) Update(ctx context.Context, e *models.Entity) error {
	query := `UPDATE entities SET name = $2, description = $3, metadata = $4, updated_at = $5
		WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, e.ID, e.Name, e.Description, e.Metadata, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

// SoftDelete marks an entity deleted; rows are never removed.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE entities SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

// CountByUser returns the number of live entities of a user.
func (r *PostgresRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE user_id = $1 AND deleted_at IS NULL`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (*models.Entity, error) {
	var e models.Entity
	var deletedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&e.ID, &e.UserID, &e.Name, &e.Description, &e.ExternalSource, &e.ExternalID,
		&e.Metadata, &e.CreatedAt, &e.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, dbx.MapError(err)
	}
	if deletedAt.Valid {
		e.DeletedAt = &deletedAt.Time
	}
	return &e, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
