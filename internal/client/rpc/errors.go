package rpc

import "errors"

var (
	ErrUnavailable     = errors.New("server unavailable")
	ErrNotFound        = errors.New("user not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidToken    = errors.New("invalid token")
)
