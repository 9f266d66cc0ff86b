package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/identity/internal/server/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLiteRepositoryManager runs the sqlite migration set. Used for local
// development, the admin CLI against a file database, and tests.
type SQLiteRepositoryManager struct {
	sqlRepositories
}

func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return runMigrations(ctx, db, goose.DialectSQLite3, migrations.SQLiteDir)
}

func NewSQLiteRepositoryManager() *SQLiteRepositoryManager {
	return &SQLiteRepositoryManager{}
}
