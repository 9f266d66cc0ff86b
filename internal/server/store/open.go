package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/identity/internal/filex"
	"github.com/dmitrijs2005/identity/internal/server/repositories/repomanager"
)

// PoolOptions bounds the database/sql connection pool.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open opens and pings a database for the given driver ("pgx" or "sqlite").
// SQLite handles are limited to a single connection so writers never race
// for the file lock.
func Open(ctx context.Context, driver, dsn string, pool PoolOptions) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	switch driver {
	case repomanager.DriverPostgres:
	case repomanager.DriverSQLite:
		var err error
		if dsn, err = sqliteDSN(dsn); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}

	if driver == repomanager.DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(pool.MaxOpenConns)
		db.SetMaxIdleConns(pool.MaxIdleConns)
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, classify(err))
	}

	return db, nil
}

// sqliteDSN creates the parent directory of a file database and appends
// the connection parameters the store relies on: a sortable time format,
// foreign keys and a busy timeout.
func sqliteDSN(dsn string) (string, error) {
	path, rawQuery, _ := strings.Cut(dsn, "?")
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("parse sqlite dsn: %w", err)
	}

	file := strings.TrimPrefix(path, "file:")
	if file != ":memory:" && q.Get("mode") != "memory" && file != "" {
		if _, err := filex.EnsureParentDir(file); err != nil {
			return "", err
		}
	}

	if q.Get("_time_format") == "" {
		q.Set("_time_format", "sqlite")
	}
	if !hasPragma(q, "foreign_keys") {
		q.Add("_pragma", "foreign_keys(1)")
	}
	if !hasPragma(q, "busy_timeout") {
		q.Add("_pragma", "busy_timeout(5000)")
	}

	return path + "?" + q.Encode(), nil
}

func hasPragma(q url.Values, name string) bool {
	for _, p := range q["_pragma"] {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(p)), name) {
			return true
		}
	}
	return false
}

// Connect opens the database for driver and wraps it in a Store using the
// matching repository manager.
func Connect(ctx context.Context, driver, dsn string, pool PoolOptions, timeout time.Duration) (*Store, error) {
	repos, err := repomanager.New(driver)
	if err != nil {
		return nil, err
	}
	db, err := Open(ctx, driver, dsn, pool)
	if err != nil {
		return nil, err
	}
	return New(db, repos, timeout), nil
}
