package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/identity/internal/common"
	"github.com/dmitrijs2005/identity/internal/dbx"
	"github.com/dmitrijs2005/identity/internal/server/models"
)

// SQLRepository implements Repository over dbx.DBTX (satisfied by *sql.DB
// or *sql.Tx). Boolean values are passed as parameters so the same SQL runs
// on PostgreSQL and SQLite.
type SQLRepository struct {
	db dbx.DBTX
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.Revoked, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindByHash returns common.ErrorNotFound when no row carries tokenHash.
func (r *SQLRepository) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	t := &models.RefreshToken{}
	err := r.db.QueryRowContext(ctx, query, tokenHash).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

// Revoke marks the token revoked. Unknown or already revoked tokens are not
// an error.
func (r *SQLRepository) Revoke(ctx context.Context, tokenHash string) error {
	query := `UPDATE refresh_tokens SET revoked = $1 WHERE token_hash = $2`

	if _, err := r.db.ExecContext(ctx, query, true, tokenHash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RevokeIfActive revokes the token only if it is not revoked yet and
// reports whether this call was the one that did it. Concurrent callers on
// the same hash see exactly one true.
func (r *SQLRepository) RevokeIfActive(ctx context.Context, tokenHash string) (bool, error) {
	query := `UPDATE refresh_tokens SET revoked = $1 WHERE token_hash = $2 AND revoked = $3`

	res, err := r.db.ExecContext(ctx, query, true, tokenHash, false)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *SQLRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked = $1 WHERE user_id = $2 AND revoked = $3`

	res, err := r.db.ExecContext(ctx, query, true, userID, false)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// PurgeExpired deletes tokens whose expiry is before the given instant,
// revoked or not.
func (r *SQLRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`

	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
