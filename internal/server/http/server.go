// Package http serves the public authentication API and the health probes
// over echo.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/dmitrijs2005/identity/internal/logging"
	"github.com/dmitrijs2005/identity/internal/server/auth"
	"github.com/dmitrijs2005/identity/internal/server/metrics"
	"github.com/dmitrijs2005/identity/internal/server/ratelimit"
)

// Identity is the service the handlers call into.
type Identity interface {
	Signup(ctx context.Context, email, password, clientIP string) (string, error)
	Login(ctx context.Context, email, password, clientIP string) (*auth.TokenPair, error)
	Refresh(ctx context.Context, raw, clientIP string) (*auth.TokenPair, error)
	Logout(ctx context.Context, raw, clientIP string) error
	ValidateAccessToken(ctx context.Context, token string) (string, error)
	Ready(ctx context.Context) error
}

type Options struct {
	// RequestTimeout bounds the context handed to the service.
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	// Limiter guards /auth/* only; nil disables rate limiting.
	Limiter ratelimit.Limiter
	Metrics *metrics.Metrics
}

type Server struct {
	address string
	svc     Identity
	logger  logging.Logger
	opts    Options
	echo    *echo.Echo
}

func NewServer(address string, l logging.Logger, svc Identity, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		address: address,
		svc:     svc,
		logger:  l.With("module", "http_server"),
		opts:    opts,
	}
	s.echo = s.routes()
	return s
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleEchoError

	e.Use(
		middleware.RequestID(),
		securityHeaders,
		s.requestLogger,
		s.observe,
		middleware.Recover(),
		middleware.BodyLimit("64K"),
	)

	// health probes are never rate limited
	e.GET("/health/live", s.live)
	e.GET("/health/ready", s.ready)

	g := e.Group("/auth")
	if s.opts.Limiter != nil {
		g.Use(s.rateLimit)
	}
	g.POST("/signup", s.signup)
	g.POST("/login", s.login)
	g.POST("/refresh", s.refresh)
	g.POST("/logout", s.logout)
	g.GET("/validate", s.validate)

	return e
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve accepts connections on lis until ctx is done, then shuts down
// gracefully within the shutdown timeout.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:      s.echo,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}
