package config

import (
	"flag"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/identity/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string        gRPC bind address (e.g., ":50052")
//	-http string     HTTP bind address
//	-metrics string  metrics bind address
//	-driver string   database driver ("pgx" or "sqlite")
//	-d string        database DSN
//	-s string        JWT HMAC secret key
//	-t int           access token validity, minutes
//	-r int           refresh token validity, minutes
//	-bus string      event bus ("log", "kafka", "amqp")
//	-redis string    Redis address for the shared rate limiter
//	-log-level string
//
// The function first filters os.Args down to the flags it recognizes using
// flagx.FilterArgs, so other components (and admin subcommands) can share
// the same command line.
func parseFlags(config *Config) error {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-http", "-metrics", "-driver", "-d", "-s", "-t", "-r", "-bus", "-redis", "-log-level",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.EndpointAddrHTTP, "http", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrMetrics, "metrics", config.EndpointAddrMetrics, "metrics address and port")
	fs.StringVar(&config.DatabaseDriver, "driver", config.DatabaseDriver, "database driver")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")

	fs.StringVar(&config.EventBus, "bus", config.EventBus, "event bus")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// Lifetimes are only touched when given, so sub-minute values from
	// other layers survive the round trip through minutes.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
		case "r":
			config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
		}
	})
	return nil
}
