package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	t.Setenv("GRPC_ADDR", ":6000")
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("ACCESS_TOKEN_TTL", "10m")
	t.Setenv("KAFKA_BROKERS", "a:1,b:2")
	t.Setenv("RATE_LIMIT_RPS", "7.5")
	t.Setenv("AUTO_MIGRATE", "false")

	cfg := &Config{}
	cfg.LoadDefaults()
	require.NoError(t, parseEnv(cfg))

	assert.Equal(t, ":6000", cfg.EndpointAddrGRPC)
	assert.Equal(t, ":8080", cfg.EndpointAddrHTTP, "unset variables keep the current value")
	assert.Equal(t, "postgres://env", cfg.DatabaseDSN)
	assert.Equal(t, 10*time.Minute, cfg.AccessTokenValidityDuration)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.KafkaBrokers)
	assert.Equal(t, 7.5, cfg.RateLimitRPS)
	assert.False(t, cfg.AutoMigrate)
}

func TestParseEnv_BadValue(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	t.Setenv("ACCESS_TOKEN_TTL", "fortnight")
	assert.Error(t, parseEnv(&Config{}))
}

func TestParseEnv_EnvFile(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := filepath.Join(t.TempDir(), "identity.env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_ISSUER=from-file\nEVENT_WORKERS=9\n"), 0o600))

	// godotenv sets process variables; make sure they are removed afterwards
	t.Setenv("JWT_ISSUER", "")
	require.NoError(t, os.Unsetenv("JWT_ISSUER"))
	t.Setenv("EVENT_WORKERS", "")
	require.NoError(t, os.Unsetenv("EVENT_WORKERS"))

	os.Args = []string{"testbin", "-env-file", path}

	cfg := &Config{}
	cfg.LoadDefaults()
	require.NoError(t, parseEnv(cfg))

	assert.Equal(t, "from-file", cfg.TokenIssuer)
	assert.Equal(t, 9, cfg.EventWorkers)

	os.Args = []string{"testbin", "-env-file", filepath.Join(t.TempDir(), "missing.env")}
	assert.Error(t, parseEnv(&Config{}))
}
