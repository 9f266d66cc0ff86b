package server

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/identity/internal/logging"
	"github.com/dmitrijs2005/identity/internal/server/auth"
	"github.com/dmitrijs2005/identity/internal/server/config"
	"github.com/dmitrijs2005/identity/internal/server/password"
	"github.com/dmitrijs2005/identity/internal/server/services"
	"github.com/dmitrijs2005/identity/internal/server/store"
)

// OpenStore connects to the configured database. Migrations are left to the
// caller.
func OpenStore(ctx context.Context, c *config.Config) (*store.Store, error) {
	return store.Connect(ctx, c.DatabaseDriver, c.DatabaseDSN, store.PoolOptions{
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: c.DBConnMaxLifetime,
	}, c.StoreTimeout)
}

// NewIdentityService builds the hasher and token engine from c and returns
// the service over st. The admin tool uses it too, so both paths share the
// same input policy and audit trail.
func NewIdentityService(c *config.Config, st *store.Store, n services.Notifier, l logging.Logger) (*services.IdentityService, error) {
	hasher, err := password.New(password.Options{
		Algorithm:  c.PasswordHasher,
		BcryptCost: c.BcryptCost,
	})
	if err != nil {
		return nil, fmt.Errorf("password hasher init error: %w", err)
	}

	engine := auth.NewEngine(st, auth.EngineConfig{
		Secret:          []byte(c.SecretKey),
		Issuer:          c.TokenIssuer,
		AccessTokenTTL:  c.AccessTokenValidityDuration,
		RefreshTokenTTL: c.RefreshTokenValidityDuration,
	})

	return services.NewIdentityService(st, engine, hasher, n, l)
}
