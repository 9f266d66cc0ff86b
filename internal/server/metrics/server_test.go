package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/identity/internal/logging"
)

func TestServer_ExposesMetrics(t *testing.T) {
	m := New()
	m.RateLimited("/auth/login")

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer("", m, logging.Nop()).Serve(ctx, lis) }()

	resp, err := http.Get("http://" + lis.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `identity_rate_limited_total{path="/auth/login"} 1`)
	assert.Contains(t, string(body), "go_goroutines")

	resp, err = http.Get("http://" + lis.Addr().String() + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestServer_RunBadAddress(t *testing.T) {
	err := NewServer("127.0.0.1:99999", New(), logging.Nop()).Run(context.Background())
	assert.Error(t, err)
}
