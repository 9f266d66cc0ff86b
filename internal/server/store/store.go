// Package store is the credential store: durable users, refresh tokens and
// audit entries over database/sql, with every call bounded by a deadline and
// driver failures mapped onto the common sentinels.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/identity/internal/common"
	"github.com/dmitrijs2005/identity/internal/dbx"
	"github.com/dmitrijs2005/identity/internal/server/models"
	"github.com/dmitrijs2005/identity/internal/server/repositories/repomanager"
)

const DefaultTimeout = 5 * time.Second

type Store struct {
	db      *sql.DB
	repos   repomanager.RepositoryManager
	timeout time.Duration
	now     func() time.Time
}

func New(db *sql.DB, repos repomanager.RepositoryManager, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Store{db: db, repos: repos, timeout: timeout, now: time.Now}
}

// dbTime drops the monotonic reading and sub-microsecond precision so values
// round-trip identically through both backends.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func (s *Store) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Migrate applies the schema for the configured dialect.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.repos.RunMigrations(ctx, s.db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Ping reports whether the database answers within the store timeout.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	return nil
}

// CreateUser inserts an active user. The unique index on email is the
// authoritative guard: a concurrent duplicate yields common.ErrAlreadyExists.
func (s *Store) CreateUser(ctx context.Context, id, email, passwordHash string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	user := &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    dbTime(s.now()),
	}

	err := classify(s.repos.Users(s.db).Create(ctx, user))
	if errors.Is(err, common.ErrConflict) {
		return common.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) UserExistsByEmail(ctx context.Context, email string) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	ok, err := s.repos.Users(s.db).ExistsByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("user exists: %w", classify(err))
	}
	return ok, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	u, err := s.repos.Users(s.db).FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", classify(err))
	}
	return u, nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	u, err := s.repos.Users(s.db).FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", classify(err))
	}
	return u, nil
}

// SetUserActive returns common.ErrorNotFound for an unknown id.
func (s *Store) SetUserActive(ctx context.Context, userID string, active bool) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.repos.Users(s.db).SetActive(ctx, userID, active); err != nil {
		return fmt.Errorf("set user active: %w", classify(err))
	}
	return nil
}

func (s *Store) StoreRefreshToken(ctx context.Context, id, userID, tokenHash string, expiresAt time.Time) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	t := &models.RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: dbTime(expiresAt),
		CreatedAt: dbTime(s.now()),
	}
	if err := s.repos.RefreshTokens(s.db).Create(ctx, t); err != nil {
		return fmt.Errorf("store refresh token: %w", classify(err))
	}
	return nil
}

func (s *Store) FindRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	t, err := s.repos.RefreshTokens(s.db).FindByHash(ctx, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", classify(err))
	}
	return t, nil
}

// RevokeRefreshToken is idempotent: unknown and already revoked hashes are
// not errors.
func (s *Store) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.repos.RefreshTokens(s.db).Revoke(ctx, tokenHash); err != nil {
		return fmt.Errorf("revoke refresh token: %w", classify(err))
	}
	return nil
}

func (s *Store) RevokeAllUserTokens(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	n, err := s.repos.RefreshTokens(s.db).RevokeAllForUser(ctx, userID)
	if err != nil {
		err = classify(err)
		// an id that cannot exist owns no tokens
		if errors.Is(err, common.ErrorNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}
	return n, nil
}

// RotateRefreshToken exchanges the token stored under oldHash for next in a
// single transaction and returns the owning user id. The old token must be
// live at now and this call must be the one that revokes it; otherwise
// common.ErrInvalidToken is returned and nothing is written.
//
// The transaction runs on a context detached from the caller's cancellation
// and bounded by the store timeout, so it either commits fully or not at all.
func (s *Store) RotateRefreshToken(ctx context.Context, oldHash string, next models.RefreshToken, now time.Time) (string, error) {
	ctx, cancel := dbx.Detached(ctx, s.timeout)
	defer cancel()

	var userID string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.RefreshTokens(tx)

		cur, err := repo.FindByHash(ctx, oldHash)
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidToken
		}
		if err != nil {
			return err
		}
		if !cur.Live(now) {
			return common.ErrInvalidToken
		}

		won, err := repo.RevokeIfActive(ctx, oldHash)
		if err != nil {
			return err
		}
		if !won {
			return common.ErrInvalidToken
		}

		next.UserID = cur.UserID
		next.Revoked = false
		next.ExpiresAt = dbTime(next.ExpiresAt)
		next.CreatedAt = dbTime(now)
		if err := repo.Create(ctx, &next); err != nil {
			return err
		}

		userID = cur.UserID
		return nil
	})
	if errors.Is(err, common.ErrInvalidToken) {
		return "", common.ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("rotate refresh token: %w", classify(err))
	}
	return userID, nil
}

// PurgeExpiredRefreshTokens deletes tokens that expired before the given
// instant and returns how many were removed.
func (s *Store) PurgeExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	n, err := s.repos.RefreshTokens(s.db).PurgeExpired(ctx, dbTime(before))
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", classify(err))
	}
	return n, nil
}

// InsertAuditLog appends one entry, filling CreatedAt when unset.
func (s *Store) InsertAuditLog(ctx context.Context, entry *models.AuditEntry) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	entry.CreatedAt = dbTime(entry.CreatedAt)

	if err := s.repos.Audit(s.db).Insert(ctx, entry); err != nil {
		return fmt.Errorf("insert audit log: %w", classify(err))
	}
	return nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}
