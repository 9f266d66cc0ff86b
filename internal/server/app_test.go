package server

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/identity/internal/server/config"
	"github.com/dmitrijs2005/identity/internal/server/ratelimit"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	var c config.Config
	c.LoadDefaults()
	c.DatabaseDriver = "sqlite"
	c.DatabaseDSN = filepath.Join(t.TempDir(), "identity.db")
	c.SecretKey = strings.Repeat("s", 32)
	c.BcryptCost = 4
	c.EndpointAddrHTTP = "127.0.0.1:0"
	c.EndpointAddrGRPC = "127.0.0.1:0"
	c.EndpointAddrMetrics = "127.0.0.1:0"
	c.LogLevel = "error"
	return &c
}

func TestNewApp_InvalidConfig(t *testing.T) {
	c := testConfig(t)
	c.SecretKey = ""

	_, err := NewApp(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestNewApp_UnknownBus(t *testing.T) {
	c := testConfig(t)
	c.EventBus = "kafka"
	c.KafkaBrokers = nil

	_, err := NewApp(context.Background(), c)
	assert.Error(t, err)
}

func TestApp_RunAndShutdown(t *testing.T) {
	c := testConfig(t)

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	_, isMemory := app.limiter.(*ratelimit.Memory)
	assert.True(t, isMemory, "no redis address means the in-process limiter")

	// the schema was applied on start
	ctx := context.Background()
	_, err = app.identity.Signup(ctx, "alice@example.com", "password1", "127.0.0.1")
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- app.Run(runCtx) }()

	select {
	case err := <-done:
		t.Fatalf("app exited early: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not shut down")
	}
}

func TestApp_RunFailsWhenAServerCannotListen(t *testing.T) {
	c := testConfig(t)
	c.EndpointAddrMetrics = "127.0.0.1:99999"

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "metrics")
	case <-time.After(5 * time.Second):
		t.Fatal("a failing server must stop the app")
	}
}
