package grpc

import (
	"context"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/dmitrijs2005/identity/internal/logging"
	pb "github.com/dmitrijs2005/identity/internal/proto"
	"github.com/dmitrijs2005/identity/internal/server/metrics"
	"github.com/dmitrijs2005/identity/internal/server/services"
)

// Identity is the subset of the identity service exposed to internal callers.
type Identity interface {
	ValidateAccessToken(ctx context.Context, token string) (string, error)
	GetUserByID(ctx context.Context, id string) (*services.UserInfo, error)
	Ready(ctx context.Context) error
}

type Options struct {
	RequestTimeout time.Duration
	// HealthInterval is how often readiness is re-checked for the health
	// service; zero means 10s.
	HealthInterval time.Duration
	Metrics        *metrics.Metrics
	// Tracing installs the OpenTelemetry stats handler.
	Tracing bool
}

type GRPCServer struct {
	pb.UnimplementedIdentityServiceServer
	address string
	svc     Identity
	logger  logging.Logger
	opts    Options
	health  *health.Server
}

func NewGRPCServer(a string, l logging.Logger, svc Identity, opts Options) *GRPCServer {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 10 * time.Second
	}
	return &GRPCServer{
		address: a,
		svc:     svc,
		logger:  l.With("module", "grpc_server"),
		opts:    opts,
		health:  health.NewServer(),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              2 * time.Minute,
			Timeout:           20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(
			s.loggingInterceptor,
			s.metricsInterceptor,
			s.recoveryInterceptor,
		),
	}
	if s.opts.Tracing {
		opts = append(opts, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	}

	srv := grpc.NewServer(opts...)
	pb.RegisterIdentityServiceServer(srv, s)
	healthpb.RegisterHealthServer(srv, s.health)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve blocks until ctx is done and in-flight calls have finished.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	s.updateHealth(ctx)
	go s.watchHealth(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}

func (s *GRPCServer) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(s.opts.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateHealth(ctx)
		}
	}
}

// updateHealth mirrors store readiness into the standard health service,
// both for the whole server ("") and for the identity service by name.
func (s *GRPCServer) updateHealth(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if err := s.svc.Ready(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		st = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn(ctx, "store not ready", "error", err)
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(pb.IdentityService_ServiceDesc.ServiceName, st)
}
