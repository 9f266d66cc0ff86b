package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	sweepInterval = 5 * time.Minute
	staleAfter    = 10 * time.Minute
)

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// Memory holds one token bucket per key. A bucket starts full at burst and
// refills continuously at rps tokens per second.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	burst   float64
	rps     float64
	now     func() time.Time
}

func NewMemory(burst int, rps float64) *Memory {
	if burst <= 0 {
		burst = DefaultBurst
	}
	if rps <= 0 {
		rps = DefaultRPS
	}
	return &Memory{
		buckets: make(map[string]*bucket),
		burst:   float64(burst),
		rps:     rps,
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: m.burst, lastSeen: now}
		m.buckets[key] = b
	}

	elapsed := now.Sub(b.lastSeen).Seconds()
	if elapsed > 0 {
		b.tokens = min(m.burst, b.tokens+elapsed*m.rps)
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Sweep drops buckets idle for longer than the stale window and returns how
// many were removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for k, b := range m.buckets {
		if now.Sub(b.lastSeen) > staleAfter {
			delete(m.buckets, k)
			n++
		}
	}
	return n
}

// Run sweeps periodically until ctx is done.
func (m *Memory) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}
