// Package common defines shared sentinel errors and small helpers used across
// the identity server and its tooling. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// Service-level errors.
	ErrorInternal   = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
	ErrInvalidToken = errors.New("invalid token")

	// Identity errors.
	ErrAlreadyExists      = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")

	// Validation errors.
	ErrInvalidArgument = errors.New("invalid argument")
)
