package grpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmitrijs2005/identity/internal/common"
	"github.com/dmitrijs2005/identity/internal/logging"
	pb "github.com/dmitrijs2005/identity/internal/proto"
	"github.com/dmitrijs2005/identity/internal/server/metrics"
	"github.com/dmitrijs2005/identity/internal/server/services"
)

// ---- fakes ----

type fakeIdentity struct {
	users    map[string]*services.UserInfo
	tokens   map[string]string
	getErr   error
	panicGet bool
	notReady atomic.Bool
}

func (f *fakeIdentity) ValidateAccessToken(_ context.Context, token string) (string, error) {
	if id, ok := f.tokens[token]; ok {
		return id, nil
	}
	return "", common.ErrInvalidToken
}

func (f *fakeIdentity) GetUserByID(_ context.Context, id string) (*services.UserInfo, error) {
	if f.panicGet {
		panic("boom")
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (f *fakeIdentity) Ready(context.Context) error {
	if f.notReady.Load() {
		return common.ErrUnavailable
	}
	return nil
}

var created = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		users:  map[string]*services.UserInfo{"u-1": {ID: "u-1", IsActive: true, CreatedAt: created}},
		tokens: map[string]string{"good-token": "u-1"},
	}
}

// ---- helpers ----

func startServer(t *testing.T, svc Identity, opts Options) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	s := NewGRPCServer("bufnet", logging.Nop(), svc, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return conn
}

// ---- tests ----

func TestValidateToken(t *testing.T) {
	client := pb.NewIdentityServiceClient(startServer(t, newFakeIdentity(), Options{}))
	ctx := context.Background()

	tests := []struct {
		name   string
		token  string
		valid  bool
		userID string
		errMsg string
	}{
		{name: "valid", token: "good-token", valid: true, userID: "u-1"},
		{name: "invalid", token: "invalid.token.here", errMsg: "invalid or expired token"},
		{name: "empty", token: "", errMsg: "token is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.ValidateToken(ctx, &pb.ValidateTokenRequest{Token: tt.token})
			require.NoError(t, err, "bad tokens are not RPC errors")
			assert.Equal(t, tt.valid, resp.GetValid())
			assert.Equal(t, tt.userID, resp.GetUserId())
			assert.Equal(t, tt.errMsg, resp.GetError())
		})
	}
}

func TestGetUser(t *testing.T) {
	svc := newFakeIdentity()
	client := pb.NewIdentityServiceClient(startServer(t, svc, Options{}))
	ctx := context.Background()

	resp, err := client.GetUser(ctx, &pb.GetUserRequest{UserId: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, "u-1", resp.GetUserId())
	assert.True(t, resp.GetIsActive())
	assert.Equal(t, "2026-02-03T04:05:06Z", resp.GetCreatedAt())

	_, err = client.GetUser(ctx, &pb.GetUserRequest{UserId: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetUser(ctx, &pb.GetUserRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGetUser_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{name: "store outage", err: errors.Join(common.ErrUnavailable, errors.New("dial tcp")), code: codes.Unavailable},
		{name: "internal", err: common.ErrorInternal, code: codes.Internal},
		{name: "unknown", err: errors.New("boom"), code: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeIdentity()
			svc.getErr = tt.err
			client := pb.NewIdentityServiceClient(startServer(t, svc, Options{}))

			_, err := client.GetUser(context.Background(), &pb.GetUserRequest{UserId: "u-1"})
			assert.Equal(t, tt.code, status.Code(err))
			assert.NotContains(t, status.Convert(err).Message(), "dial tcp")
		})
	}
}

func TestRecoveryInterceptor(t *testing.T) {
	svc := newFakeIdentity()
	svc.panicGet = true
	client := pb.NewIdentityServiceClient(startServer(t, svc, Options{}))

	_, err := client.GetUser(context.Background(), &pb.GetUserRequest{UserId: "u-1"})
	assert.Equal(t, codes.Internal, status.Code(err))

	// the server survives
	resp, err := client.ValidateToken(context.Background(), &pb.ValidateTokenRequest{Token: "good-token"})
	require.NoError(t, err)
	assert.True(t, resp.GetValid())
}

func TestHealthService(t *testing.T) {
	svc := newFakeIdentity()
	conn := startServer(t, svc, Options{HealthInterval: 20 * time.Millisecond})
	hc := healthpb.NewHealthClient(conn)
	ctx := context.Background()

	resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	resp, err = hc.Check(ctx, &healthpb.HealthCheckRequest{Service: "identity.v1.IdentityService"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	svc.notReady.Store(true)
	assert.Eventually(t, func() bool {
		resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMetricsInterceptor(t *testing.T) {
	m := metrics.New()
	client := pb.NewIdentityServiceClient(startServer(t, newFakeIdentity(), Options{Metrics: m}))

	_, err := client.ValidateToken(context.Background(), &pb.ValidateTokenRequest{Token: "good-token"})
	require.NoError(t, err)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() != "identity_grpc_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "method" && l.GetValue() == pb.IdentityService_ValidateToken_FullMethodName {
					found = true
					assert.Equal(t, 1.0, metric.GetCounter().GetValue())
				}
			}
		}
	}
	assert.True(t, found)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.Nop(), newFakeIdentity(), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Nop(), newFakeIdentity(), Options{})
	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
}
