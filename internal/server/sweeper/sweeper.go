// Package sweeper periodically deletes refresh tokens that can no longer be
// used, keeping the token table bounded.
package sweeper

import (
	"context"
	"time"

	"github.com/dmitrijs2005/identity/internal/logging"
)

// Purger removes refresh tokens that expired before the given instant.
type Purger interface {
	PurgeExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

type Sweeper struct {
	purger   Purger
	interval time.Duration
	logger   logging.Logger
	now      func() time.Time
}

func New(p Purger, interval time.Duration, l logging.Logger) *Sweeper {
	return &Sweeper{
		purger:   p,
		interval: interval,
		logger:   l.With("module", "token_sweeper"),
		now:      time.Now,
	}
}

// Sweep runs one purge pass.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.purger.PurgeExpiredRefreshTokens(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info(ctx, "expired refresh tokens purged", "count", n)
	}
	return n, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
// A non-positive interval disables the sweeper.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info(ctx, "token sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn(ctx, "purge failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
