package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/archive"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/emailhistory"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/registry"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/subscriptions"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code
// runs against a pooled connection or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Subscriptions(db dbx.DBTX) subscriptions.Repository
	Archive(db dbx.DBTX) archive.Repository
	EmailHistory(db dbx.DBTX) emailhistory.Repository
	Registry(db dbx.DBTX) registry.Repository
}
