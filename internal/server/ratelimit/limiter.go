// Package ratelimit implements per-client token buckets. Memory keeps the
// buckets in process and is correct for a single replica only; Redis shares
// them between replicas.
package ratelimit

import "context"

// Limiter decides whether the client identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

const (
	DefaultBurst = 20
	DefaultRPS   = 5.0
)
