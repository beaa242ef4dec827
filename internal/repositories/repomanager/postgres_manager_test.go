package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/kinsync/internal/repositories/connections"
	"github.com/dmitrijs2005/kinsync/internal/repositories/entities"
	"github.com/dmitrijs2005/kinsync/internal/repositories/events"
	"github.com/dmitrijs2005/kinsync/internal/repositories/identifiers"
	"github.com/dmitrijs2005/kinsync/internal/repositories/syncjobs"
	"github.com/pressly/goose/v3"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestNewPostgresRepositoryManager_ReturnsInterface(t *testing.T) {
	m, err := NewPostgresRepositoryManager(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var _ RepositoryManager = m
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m := &PostgresRepositoryManager{}

	if r := m.Entities(db); r == nil {
		t.Fatal("Entities() nil")
	}
	if r := m.Identifiers(db); r == nil {
		t.Fatal("Identifiers() nil")
	}
	if r := m.Events(db); r == nil {
		t.Fatal("Events() nil")
	}
	if r := m.Connections(db); r == nil {
		t.Fatal("Connections() nil")
	}
	if r := m.SyncJobs(db); r == nil {
		t.Fatal("SyncJobs() nil")
	}

	var _ entities.Repository = m.Entities(db)
	var _ identifiers.Repository = m.Identifiers(db)
	var _ events.Repository = m.Events(db)
	var _ connections.Repository = m.Connections(db)
	var _ syncjobs.Repository = m.SyncJobs(db)
}

func TestRunMigrations_Success(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		if len(opts) != 0 {
			return errors.New("unexpected opts")
		}
		return nil
	}
	defer func() { gooseUpContext = orig }()

	m := &PostgresRepositoryManager{}
	if err := m.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	m := &PostgresRepositoryManager{}
	if err := m.RunMigrations(context.Background(), db); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRollbackMigration(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	called := false
	orig := gooseDownContext
	gooseDownContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		called = true
		return nil
	}
	defer func() { gooseDownContext = orig }()

	m := &PostgresRepositoryManager{}
	if err := m.RollbackMigration(context.Background(), db); err != nil {
		t.Fatalf("RollbackMigration error: %v", err)
	}
	if !called {
		t.Fatal("goose down was not called")
	}
}

func TestOpen_PingsDatabase(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectPing()

	orig := sqlOpen
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		if driver != "pgx" {
			return nil, errors.New("unexpected driver " + driver)
		}
		return db, nil
	}
	defer func() { sqlOpen = orig }()

	got, err := Open(context.Background(), "postgres://x", 4)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer got.Close()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOpen_PingError(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectPing().WillReturnError(errors.New("refused"))

	orig := sqlOpen
	sqlOpen = func(string, string) (*sql.DB, error) { return db, nil }
	defer func() { sqlOpen = orig }()

	if _, err := Open(context.Background(), "postgres://x", 0); err == nil {
		t.Fatal("expected ping error")
	}
}
