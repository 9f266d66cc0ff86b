// Package auth issues, verifies, rotates and revokes the two token kinds:
// short-lived signed access tokens and long-lived opaque refresh tokens of
// which only a SHA-256 digest is stored.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/identity/internal/common"
	"github.com/dmitrijs2005/identity/internal/cryptox"
	"github.com/dmitrijs2005/identity/internal/server/models"
	"github.com/google/uuid"
)

// refreshTokenBytes is the entropy of a raw refresh token before hex encoding.
const refreshTokenBytes = 32

// RefreshStore is the persistence the engine needs for refresh tokens.
type RefreshStore interface {
	StoreRefreshToken(ctx context.Context, id, userID, tokenHash string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, oldHash string, next models.RefreshToken, now time.Time) (string, error)
	FindRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
}

// TokenPair is returned to a client after login or refresh. ExpiresAt is the
// access token expiry.
type TokenPair struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type EngineConfig struct {
	Secret          []byte
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

type Engine struct {
	signer     *Signer
	store      RefreshStore
	refreshTTL time.Duration
	now        func() time.Time
}

func NewEngine(store RefreshStore, cfg EngineConfig) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		signer:     NewSigner(cfg.Secret, cfg.Issuer, cfg.AccessTokenTTL, now),
		store:      store,
		refreshTTL: cfg.RefreshTokenTTL,
		now:        now,
	}
}

func newRefreshToken() (raw string, id string, err error) {
	raw, err = common.MakeRandHexString(refreshTokenBytes)
	if err != nil {
		return "", "", fmt.Errorf("generate refresh token: %w", err)
	}
	v7, err := uuid.NewV7()
	if err != nil {
		return "", "", fmt.Errorf("generate token id: %w", err)
	}
	return raw, v7.String(), nil
}

// IssuePair signs an access token and persists a fresh refresh token.
func (e *Engine) IssuePair(ctx context.Context, userID string) (*TokenPair, error) {
	access, exp, err := e.signer.Sign(userID)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	raw, id, err := newRefreshToken()
	if err != nil {
		return nil, err
	}

	hash := cryptox.HashToken(raw)
	if err := e.store.StoreRefreshToken(ctx, id, userID, hash, e.now().Add(e.refreshTTL)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{UserID: userID, AccessToken: access, RefreshToken: raw, ExpiresAt: exp}, nil
}

// VerifyAccess is pure: no storage access.
func (e *Engine) VerifyAccess(token string) (string, error) {
	return e.signer.Verify(token)
}

// RotateRefresh exchanges a live refresh token for a new pair. Unknown,
// revoked and expired tokens, and the losers of a concurrent rotation of the
// same token, get common.ErrInvalidToken.
func (e *Engine) RotateRefresh(ctx context.Context, raw string) (*TokenPair, error) {
	if raw == "" {
		return nil, common.ErrInvalidToken
	}

	nextRaw, id, err := newRefreshToken()
	if err != nil {
		return nil, err
	}

	now := e.now()
	next := models.RefreshToken{
		ID:        id,
		TokenHash: cryptox.HashToken(nextRaw),
		ExpiresAt: now.Add(e.refreshTTL),
	}

	userID, err := e.store.RotateRefreshToken(ctx, cryptox.HashToken(raw), next, now)
	if err != nil {
		return nil, err
	}

	access, exp, err := e.signer.Sign(userID)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &TokenPair{UserID: userID, AccessToken: access, RefreshToken: nextRaw, ExpiresAt: exp}, nil
}

// Revoke is idempotent; unknown tokens are not an error. It returns the
// owning user id, or "" when the token was never issued.
func (e *Engine) Revoke(ctx context.Context, raw string) (string, error) {
	hash := cryptox.HashToken(raw)

	var userID string
	t, err := e.store.FindRefreshToken(ctx, hash)
	switch {
	case err == nil:
		userID = t.UserID
	case errors.Is(err, common.ErrorNotFound):
		return "", nil
	default:
		return "", fmt.Errorf("find refresh token: %w", err)
	}

	if err := e.store.RevokeRefreshToken(ctx, hash); err != nil {
		return "", fmt.Errorf("revoke refresh token: %w", err)
	}
	return userID, nil
}
