// Package server assembles the identity server: it opens the credential
// store, builds the identity service and runs the HTTP, gRPC and metrics
// servers until a shutdown signal arrives.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/identity/internal/logging"
	"github.com/dmitrijs2005/identity/internal/server/config"
	"github.com/dmitrijs2005/identity/internal/server/events"
	"github.com/dmitrijs2005/identity/internal/server/metrics"
	"github.com/dmitrijs2005/identity/internal/server/ratelimit"
	"github.com/dmitrijs2005/identity/internal/server/services"
	"github.com/dmitrijs2005/identity/internal/server/store"
	"github.com/dmitrijs2005/identity/internal/server/sweeper"
	"github.com/dmitrijs2005/identity/internal/server/telemetry"

	gs "github.com/dmitrijs2005/identity/internal/server/grpc"
	hs "github.com/dmitrijs2005/identity/internal/server/http"
)

const serviceName = "identity-service"

// runner is anything the app keeps alive until shutdown.
type runner interface {
	Run(ctx context.Context) error
}

type App struct {
	config     *config.Config
	logger     logging.Logger
	store      *store.Store
	metrics    *metrics.Metrics
	dispatcher *events.Dispatcher
	identity   *services.IdentityService
	limiter    ratelimit.Limiter
	redis      *redis.Client
	tracing    telemetry.ShutdownFunc
}

// NewApp validates c and builds every component. Nothing listens yet.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	for _, w := range c.Warnings() {
		logger.Warn(ctx, w)
	}

	app := &App{config: c, logger: logger, metrics: metrics.New()}

	tracing, err := telemetry.Setup(ctx, c.OTLPEndpoint, serviceName)
	if err != nil {
		return nil, fmt.Errorf("tracing init error: %w", err)
	}
	app.tracing = tracing

	st, err := OpenStore(ctx, c)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.store = st

	if c.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			app.close(ctx)
			return nil, err
		}
	}

	pub, err := events.NewPublisher(events.BusOptions{
		Kind:         c.EventBus,
		KafkaBrokers: c.KafkaBrokers,
		AMQPURL:      c.AMQPURL,
	}, logger)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("event bus init error: %w", err)
	}
	app.dispatcher = events.NewDispatcher(pub, logger, events.DispatcherOptions{
		Workers:  c.EventWorkers,
		Buffer:   c.EventBuffer,
		Observer: app.metrics,
	})

	app.identity, err = NewIdentityService(c, st, app.dispatcher, logger)
	if err != nil {
		app.close(ctx)
		return nil, err
	}

	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		app.limiter = ratelimit.NewRedis(app.redis, "identity:ratelimit", c.RateLimitBurst, c.RateLimitRPS)
	} else {
		app.limiter = ratelimit.NewMemory(c.RateLimitBurst, c.RateLimitRPS)
	}

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) runners() map[string]runner {
	c := app.config
	return map[string]runner{
		"http": hs.NewServer(c.EndpointAddrHTTP, app.logger, app.identity, hs.Options{
			RequestTimeout:  c.RequestTimeout,
			ShutdownTimeout: c.ShutdownTimeout,
			Limiter:         app.limiter,
			Metrics:         app.metrics,
		}),
		"grpc": gs.NewGRPCServer(c.EndpointAddrGRPC, app.logger, app.identity, gs.Options{
			RequestTimeout: c.RequestTimeout,
			Metrics:        app.metrics,
			Tracing:        telemetry.Enabled(c.OTLPEndpoint),
		}),
		"metrics": metrics.NewServer(c.EndpointAddrMetrics, app.metrics, app.logger),
	}
}

// Run serves until ctx is done, a signal arrives or any server fails, then
// shuts everything down in dependency order.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for name, r := range app.runners() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				app.logger.Error(ctx, "server failed", "server", name, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancelFunc()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.New(app.store, app.config.PurgeInterval, app.logger).Run(ctx)
	}()

	if m, ok := app.limiter.(*ratelimit.Memory); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Run(ctx)
		}()
	}

	wg.Wait()

	app.logger.Info(context.Background(), "Shutting down...")
	app.close(context.Background())

	return errors.Join(errs...)
}

// close releases what NewApp acquired. Safe to call on a partially built app.
func (app *App) close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, app.shutdownTimeout())
	defer cancel()

	if app.dispatcher != nil {
		if err := app.dispatcher.Close(shutdownCtx); err != nil {
			app.logger.Warn(ctx, "event dispatcher close", "error", err, "dropped", app.dispatcher.Dropped())
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn(ctx, "redis close", "error", err)
		}
	}
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.Warn(ctx, "db close", "error", err)
		}
	}
	if app.tracing != nil {
		if err := app.tracing(shutdownCtx); err != nil {
			app.logger.Warn(ctx, "tracing shutdown", "error", err)
		}
	}
}

func (app *App) shutdownTimeout() time.Duration {
	if app.config.ShutdownTimeout > 0 {
		return app.config.ShutdownTimeout
	}
	return 10 * time.Second
}
