package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/dmitrijs2005/identity/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	pgUniqueViolation = "23505"
	// a non-uuid value compared against a uuid column
	pgInvalidTextRepresentation = "22P02"
)

// classify maps driver errors onto the repository sentinels:
// unique violations become common.ErrConflict, ids PostgreSQL cannot parse
// as uuid become common.ErrorNotFound, deadline and connection failures
// become common.ErrUnavailable. Anything else is returned as is.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrUnavailable) ||
		errors.Is(err, common.ErrConflict) || errors.Is(err, common.ErrInvalidToken) {
		return err
	}

	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", common.ErrConflict, err)
	}
	if isMalformedID(err) {
		return fmt.Errorf("%w: %v", common.ErrorNotFound, err)
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func isMalformedID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextRepresentation
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || pgconn.Timeout(err) {
		return true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception, class 57: operator intervention
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57")
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
