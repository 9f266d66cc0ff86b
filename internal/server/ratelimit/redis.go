package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills the bucket at KEYS[1] continuously and takes one
// token when available. ARGV: now_ms, capacity, tokens per second, ttl_ms.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
	tokens = capacity
	ts = now_ms
end

local elapsed = math.max(0, now_ms - ts)
tokens = math.min(capacity, tokens + elapsed * rate / 1000)

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', tostring(now_ms))
redis.call('PEXPIRE', key, ttl_ms)
return allowed
`)

// Redis is a token bucket limiter shared by every replica pointing at the
// same Redis. Buckets expire after the stale window.
type Redis struct {
	client redis.UniversalClient
	prefix string
	burst  int
	rps    float64
	now    func() time.Time
}

func NewRedis(client redis.UniversalClient, prefix string, burst int, rps float64) *Redis {
	if burst <= 0 {
		burst = DefaultBurst
	}
	if rps <= 0 {
		rps = DefaultRPS
	}
	if prefix == "" {
		prefix = "rl"
	}
	return &Redis{client: client, prefix: prefix, burst: burst, rps: rps, now: time.Now}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	res, err := tokenBucketScript.Run(ctx, r.client, []string{r.prefix + ":" + key},
		r.now().UnixMilli(), r.burst, r.rps, staleAfter.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return res == 1, nil
}
