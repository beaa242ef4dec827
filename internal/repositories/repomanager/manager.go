package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/kinsync/internal/dbx"
	"github.com/dmitrijs2005/kinsync/internal/repositories/connections"
	"github.com/dmitrijs2005/kinsync/internal/repositories/entities"
	"github.com/dmitrijs2005/kinsync/internal/repositories/events"
	"github.com/dmitrijs2005/kinsync/internal/repositories/identifiers"
	"github.com/dmitrijs2005/kinsync/internal/repositories/syncjobs"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	RollbackMigration(context.Context, *sql.DB) error
	Entities(db dbx.DBTX) entities.Repository
	Identifiers(db dbx.DBTX) identifiers.Repository
	Events(db dbx.DBTX) events.Repository
	Connections(db dbx.DBTX) connections.Repository
	SyncJobs(db dbx.DBTX) syncjobs.Repository
}
