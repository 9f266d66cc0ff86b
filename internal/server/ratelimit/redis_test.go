package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T, burst int, rps float64, now *time.Time) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := NewRedis(client, "test", burst, rps)
	r.now = func() time.Time { return *now }
	return r, mr
}

func TestRedis_BurstRefill(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r, _ := newTestRedis(t, 2, 1, &now)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := r.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := r.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Second)
	ok, err = r.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_KeyExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r, mr := newTestRedis(t, 1, 1, &now)
	ctx := context.Background()

	_, err := r.Allow(ctx, "k")
	require.NoError(t, err)
	require.True(t, mr.Exists("test:k"))
	assert.Equal(t, staleAfter, mr.TTL("test:k"))

	mr.FastForward(staleAfter + time.Second)
	assert.False(t, mr.Exists("test:k"))
}

func TestRedis_Unavailable(t *testing.T) {
	now := time.Now()
	r, mr := newTestRedis(t, 1, 1, &now)
	mr.Close()

	_, err := r.Allow(context.Background(), "k")
	assert.Error(t, err)
}
