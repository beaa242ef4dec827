// Package services holds the transactional import pipelines for contacts and
// events and the local edit operations on events. Every write of one record
// happens inside a single transaction.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/dbx"
	"github.com/dmitrijs2005/kinsync/internal/logging"
	"github.com/dmitrijs2005/kinsync/internal/models"
	"github.com/dmitrijs2005/kinsync/internal/reconcile"
	"github.com/dmitrijs2005/kinsync/internal/repositories/identifiers"
	"github.com/dmitrijs2005/kinsync/internal/repositories/repomanager"
)

type ContactService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	now         func() time.Time
}

func NewContactService(db *sql.DB, repomanager repomanager.RepositoryManager, log logging.Logger) *ContactService {
	return &ContactService{
		db:          db,
		repomanager: repomanager,
		log:         log,
		now:         time.Now,
	}
}

// Import reconciles one normalized contact record from provider into the
// user's entities and reports what happened to it. Re-importing the same
// record is a no-op merge.
func (s *ContactService) Import(ctx context.Context, userID, provider string, rec models.ContactRecord) (models.Outcome, error) {
	if _, ok := reconcile.UsableName(rec); !ok {
		return models.OutcomeSkipped, nil
	}

	var outcome models.Outcome
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		entityRepo := s.repomanager.Entities(tx)
		identifierRepo := s.repomanager.Identifiers(tx)
		now := s.now().UTC()

		match, rule, err := reconcile.ResolveContact(ctx, entityRepo, userID, provider, rec)
		if err != nil {
			return fmt.Errorf("resolve contact: %w", err)
		}

		if match == nil {
			plan := reconcile.PlanContactCreate(userID, provider, rec, now)
			if plan.Outcome == models.OutcomeSkipped {
				outcome = plan.Outcome
				return nil
			}
			if err := entityRepo.Create(ctx, plan.Entity); err != nil {
				return fmt.Errorf("create entity: %w", err)
			}
			if err := addIdentifiers(ctx, identifierRepo, plan.Entity.ID, plan.Identifiers, now); err != nil {
				return err
			}
			outcome = plan.Outcome
			s.log.Debug(ctx, "contact created", "entity_id", plan.Entity.ID)
			return nil
		}

		// identifiers are checked and inserted under the entity row lock
		locked, err := entityRepo.GetForUpdate(ctx, match.ID)
		if err != nil {
			return fmt.Errorf("lock entity: %w", err)
		}
		current, err := identifierRepo.ListByEntity(ctx, locked.ID)
		if err != nil {
			return fmt.Errorf("list identifiers: %w", err)
		}

		plan := reconcile.PlanContactMerge(locked, current, provider, rec, now)
		if plan.EntityChanged {
			if err := entityRepo.Update(ctx, plan.Entity); err != nil {
				return fmt.Errorf("update entity: %w", err)
			}
		}
		if err := addIdentifiers(ctx, identifierRepo, locked.ID, plan.Identifiers, now); err != nil {
			return err
		}
		outcome = plan.Outcome
		s.log.Debug(ctx, "contact merged", "entity_id", locked.ID, "rule", string(rule), "changed", plan.EntityChanged)
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func addIdentifiers(ctx context.Context, repo identifiers.Repository, entityID string, ids []models.Identifier, now time.Time) error {
	for i := range ids {
		id := ids[i]
		id.EntityID = entityID
		id.CreatedAt = now
		if err := repo.Create(ctx, &id); err != nil && !errors.Is(err, common.ErrAlreadyExists) {
			return fmt.Errorf("create identifier: %w", err)
		}
	}
	return nil
}
