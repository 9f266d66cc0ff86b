// Package refreshtokens persists the hashed side of opaque refresh tokens.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/identity/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeIfActive(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
