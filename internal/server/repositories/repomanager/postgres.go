// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/server/migrations"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/archive"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/emailhistory"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/registry"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/subscriptions"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/users"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Users returns the account store bound to db.
func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

// Subscriptions returns the subscription store bound to db.
func (m *PostgresRepositoryManager) Subscriptions(db dbx.DBTX) subscriptions.Repository {
	return subscriptions.NewPostgresRepository(db)
}

// Archive returns the deletion archive bound to db.
func (m *PostgresRepositoryManager) Archive(db dbx.DBTX) archive.Repository {
	return archive.NewPostgresRepository(db)
}

// EmailHistory returns the email change log bound to db.
func (m *PostgresRepositoryManager) EmailHistory(db dbx.DBTX) emailhistory.Repository {
	return emailhistory.NewPostgresRepository(db)
}

// Registry returns the registry store bound to db.
func (m *PostgresRepositoryManager) Registry(db dbx.DBTX) registry.Repository {
	return registry.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
