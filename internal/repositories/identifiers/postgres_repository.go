package identifiers

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/dbx"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/google/uuid"
)

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListByEntity returns identifiers of an entity in insertion order.
func (r *PostgresRepository) ListByEntity(ctx context.Context, entityID string) ([]models.Identifier, error) {
	query := `SELECT id, entity_id, kind, value, normalized_value, is_primary, created_at
		FROM identifiers WHERE entity_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Identifier
	for rows.Next() {
		var id models.Identifier
		var kind string
		if err := rows.Scan(&id.ID, &id.EntityID, &kind, &id.Value, &id.NormalizedValue, &id.IsPrimary, &id.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		id.Kind = models.IdentifierKind(kind)
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Create inserts an identifier. A duplicate (entity, kind, normalized value)
// yields common.ErrAlreadyExists without aborting the surrounding transaction.
func (r *PostgresRepository) Create(ctx context.Context, id *models.Identifier) error {
	if id.ID == "" {
		id.ID = uuid.NewString()
	}
	query := `INSERT INTO identifiers (id, entity_id, kind, value, normalized_value, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entity_id, kind, normalized_value) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query,
		id.ID, id.EntityID, string(id.Kind), id.Value, id.NormalizedValue, id.IsPrimary, id.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.MapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrAlreadyExists
	}
	return nil
}
