package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/identity/internal/dbx"
	"github.com/dmitrijs2005/identity/internal/server/repositories/audit"
	"github.com/dmitrijs2005/identity/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/identity/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Audit(db dbx.DBTX) audit.Repository
}

// Supported database/sql driver names.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// New returns the manager matching a database/sql driver name.
func New(driver string) (RepositoryManager, error) {
	switch driver {
	case DriverPostgres:
		return NewPostgresRepositoryManager(), nil
	case DriverSQLite:
		return NewSQLiteRepositoryManager(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// sqlRepositories vends the dialect-neutral repository implementations.
type sqlRepositories struct{}

func (sqlRepositories) Users(db dbx.DBTX) users.Repository {
	return users.NewSQLRepository(db)
}

func (sqlRepositories) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewSQLRepository(db)
}

func (sqlRepositories) Audit(db dbx.DBTX) audit.Repository {
	return audit.NewSQLRepository(db)
}
