package grpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/identity/internal/common"
	pb "github.com/dmitrijs2005/identity/internal/proto"
)

// ValidateToken never fails the call for a bad token: the outcome is in
// the response.
func (s *GRPCServer) ValidateToken(ctx context.Context, req *pb.ValidateTokenRequest) (*pb.ValidateTokenResponse, error) {
	if req.GetToken() == "" {
		return &pb.ValidateTokenResponse{Valid: false, Error: "token is required"}, nil
	}

	userID, err := s.svc.ValidateAccessToken(ctx, req.GetToken())
	if err != nil {
		s.logger.Debug(ctx, "token rejected", "error", err)
		return &pb.ValidateTokenResponse{Valid: false, Error: "invalid or expired token"}, nil
	}

	return &pb.ValidateTokenResponse{Valid: true, UserId: userID}, nil
}

// GetUser returns user_id, is_active and created_at. Email is never exposed.
func (s *GRPCServer) GetUser(ctx context.Context, req *pb.GetUserRequest) (*pb.GetUserResponse, error) {
	if req.GetUserId() == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	user, err := s.svc.GetUserByID(ctx, req.GetUserId())
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorNotFound):
			return nil, status.Error(codes.NotFound, "user not found")
		case errors.Is(err, common.ErrInvalidArgument):
			return nil, status.Error(codes.InvalidArgument, "user_id is required")
		case errors.Is(err, common.ErrUnavailable):
			return nil, status.Error(codes.Unavailable, "service temporarily unavailable")
		}
		s.logger.Error(ctx, "get user failed", "error", err)
		return nil, status.Error(codes.Internal, "failed to fetch user")
	}

	return &pb.GetUserResponse{
		UserId:    user.ID,
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}
