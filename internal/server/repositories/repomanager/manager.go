package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/memokeeper/internal/dbx"
	"github.com/dmitrijs2005/memokeeper/internal/server/repositories/keys"
	"github.com/dmitrijs2005/memokeeper/internal/server/repositories/records"
	"github.com/dmitrijs2005/memokeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/memokeeper/internal/server/repositories/users"
)

// RepositoryManager hands out repositories over any dbx.DBTX. Services pass
// the *sql.DB for single statements and the *sql.Tx inside dbx.WithTx, so
// one manager serves both.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Records(db dbx.DBTX) records.Repository
	Keys(db dbx.DBTX) keys.Repository
}
