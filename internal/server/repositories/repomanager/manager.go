package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/libsync/internal/dbx"
	"github.com/dmitrijs2005/libsync/internal/server/repositories/documents"
	"github.com/dmitrijs2005/libsync/internal/server/repositories/libraries"
	"github.com/dmitrijs2005/libsync/internal/server/repositories/plans"
)

// RepositoryManager hands out repositories bound to either the pool or an
// open transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Libraries(db dbx.DBTX) libraries.Repository
	Documents(db dbx.DBTX) documents.Repository
	Plans(db dbx.DBTX) plans.Repository
}
