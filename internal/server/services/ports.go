package services

import (
	"context"

	"github.com/dmitrijs2005/identity/internal/server/auth"
	"github.com/dmitrijs2005/identity/internal/server/events"
	"github.com/dmitrijs2005/identity/internal/server/models"
)

// CredentialStore is the persistence the identity service depends on.
type CredentialStore interface {
	CreateUser(ctx context.Context, id, email, passwordHash string) error
	UserExistsByEmail(ctx context.Context, email string) (bool, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	SetUserActive(ctx context.Context, userID string, active bool) error
	RevokeAllUserTokens(ctx context.Context, userID string) (int64, error)
	InsertAuditLog(ctx context.Context, entry *models.AuditEntry) error
	Ping(ctx context.Context) error
}

// TokenEngine issues and checks tokens.
type TokenEngine interface {
	IssuePair(ctx context.Context, userID string) (*auth.TokenPair, error)
	VerifyAccess(token string) (string, error)
	RotateRefresh(ctx context.Context, raw string) (*auth.TokenPair, error)
	Revoke(ctx context.Context, raw string) (string, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// Notifier accepts lifecycle events without blocking.
type Notifier interface {
	Notify(ctx context.Context, ev events.Event)
}
