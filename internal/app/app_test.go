package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/kinsync/internal/config"
	"github.com/dmitrijs2005/kinsync/internal/repositories/connections"
	"github.com/dmitrijs2005/kinsync/internal/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingManager struct {
	repomanager.RepositoryManager
	migrations int
	err        error
}

func (m *countingManager) RunMigrations(context.Context, *sql.DB) error {
	m.migrations++
	return m.err
}

func stubSeams(t *testing.T, mgr *countingManager) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	origOpen, origNew := openDB, newRepositoryManager
	t.Cleanup(func() { openDB, newRepositoryManager = origOpen, origNew })

	openDB = func(ctx context.Context, dsn string, maxOpenConns int) (*sql.DB, error) {
		return db, nil
	}
	newRepositoryManager = func(s connections.Sealer) (repomanager.RepositoryManager, error) {
		pg, err := origNew(s)
		require.NoError(t, err)
		mgr.RepositoryManager = pg
		return mgr, nil
	}
	return mock
}

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.LogLevel = "error"
	return c
}

func TestNewApp_WiresComponents(t *testing.T) {
	mgr := &countingManager{}
	mock := stubSeams(t, mgr)

	app, err := NewApp(context.Background(), testConfig(), true)
	require.NoError(t, err)

	assert.Equal(t, 1, mgr.migrations)
	assert.NotNil(t, app.Queue)
	assert.NotNil(t, app.Runner)
	assert.NotNil(t, app.Orchestrator)
	assert.NotNil(t, app.Scheduler)
	assert.NotNil(t, app.Hub)
	assert.Same(t, mgr, app.RepositoryManager())

	mock.ExpectClose()
	require.NoError(t, app.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewApp_NoScheduleNoMigrations(t *testing.T) {
	mgr := &countingManager{}
	stubSeams(t, mgr)
	c := testConfig()
	c.Schedule = ""

	app, err := NewApp(context.Background(), c, false)
	require.NoError(t, err)
	assert.Zero(t, mgr.migrations)
	assert.Nil(t, app.Scheduler)
}

func TestNewApp_MigrationFailureClosesDB(t *testing.T) {
	mgr := &countingManager{err: errors.New("dirty schema")}
	mock := stubSeams(t, mgr)
	mock.ExpectClose()

	_, err := NewApp(context.Background(), testConfig(), true)
	require.ErrorContains(t, err, "dirty schema")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewApp_EmptySealKey(t *testing.T) {
	c := testConfig()
	c.SealKey = ""
	_, err := NewApp(context.Background(), c, false)
	require.Error(t, err)
}

func TestNewApp_OpenError(t *testing.T) {
	origOpen := openDB
	t.Cleanup(func() { openDB = origOpen })
	openDB = func(context.Context, string, int) (*sql.DB, error) { return nil, errors.New("refused") }

	_, err := NewApp(context.Background(), testConfig(), false)
	require.ErrorContains(t, err, "refused")
}
