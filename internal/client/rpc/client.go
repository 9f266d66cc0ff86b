// Package rpc is a small client for the internal identity gRPC API, used by
// the admin tool and by services that need to check tokens.
package rpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	pb "github.com/dmitrijs2005/identity/internal/proto"
)

const defaultTimeout = 5 * time.Second

// User mirrors GetUserResponse with a parsed creation time.
type User struct {
	ID        string
	IsActive  bool
	CreatedAt time.Time
}

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      pb.IdentityServiceClient
	health      healthpb.HealthClient
	timeout     time.Duration
}

func NewIdentityClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}

	return &GRPCClient{
		endpointURL: endpointURL,
		conn:        conn,
		client:      pb.NewIdentityServiceClient(conn),
		health:      healthpb.NewHealthClient(conn),
		timeout:     defaultTimeout,
	}, nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// ValidateToken returns the user id the access token was issued to. A
// rejected token is ErrInvalidToken wrapped with the server's reason.
func (s *GRPCClient) ValidateToken(ctx context.Context, token string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.ValidateToken(ctx, &pb.ValidateTokenRequest{Token: token})
	if err != nil {
		return "", s.mapError(err)
	}
	if !resp.GetValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidToken, resp.GetError())
	}
	return resp.GetUserId(), nil
}

func (s *GRPCClient) GetUser(ctx context.Context, userID string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.GetUser(ctx, &pb.GetUserRequest{UserId: userID})
	if err != nil {
		return nil, s.mapError(err)
	}

	created, err := time.Parse(time.RFC3339, resp.GetCreatedAt())
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &User{ID: resp.GetUserId(), IsActive: resp.GetIsActive(), CreatedAt: created}, nil
}

// Health returns the serving status reported by the standard health
// service for the identity service.
func (s *GRPCClient) Health(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: pb.IdentityService_ServiceDesc.ServiceName})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.GetStatus().String(), nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.NotFound:
		return ErrNotFound
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidArgument, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
