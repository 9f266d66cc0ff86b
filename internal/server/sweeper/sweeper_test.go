package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/identity/internal/logging"
)

type fakePurger struct {
	mu     sync.Mutex
	calls  []time.Time
	result int64
	err    error
}

func (f *fakePurger) PurgeExpiredRefreshTokens(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, before)
	return f.result, f.err
}

func (f *fakePurger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSweep_PassesNow(t *testing.T) {
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	p := &fakePurger{result: 3}
	s := New(p, time.Minute, logging.Nop())
	s.now = func() time.Time { return at }

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.Len(t, p.calls, 1)
	assert.Equal(t, at, p.calls[0])
}

func TestSweep_Error(t *testing.T) {
	p := &fakePurger{err: errors.New("db down")}
	s := New(p, time.Minute, logging.Nop())

	_, err := s.Sweep(context.Background())
	assert.Error(t, err)
}

func TestRun_SweepsPeriodicallyUntilCancel(t *testing.T) {
	p := &fakePurger{err: errors.New("db down")}
	s := New(p, 10*time.Millisecond, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return p.count() >= 3 }, 2*time.Second, 5*time.Millisecond,
		"failures must not stop the loop")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_DisabledReturnsImmediately(t *testing.T) {
	p := &fakePurger{}
	s := New(p, 0, logging.Nop())

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper must return")
	}
	assert.Zero(t, p.count())
}
