package services

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/identity/internal/common"
)

const (
	minPasswordLength = 8
	maxPasswordBytes  = 72
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail returns an error wrapping common.ErrInvalidArgument whose
// message is safe to show to a client.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalid("email is required")
	}
	if !emailRegex.MatchString(email) {
		return invalid("invalid email format")
	}
	return nil
}

// ValidatePassword enforces the signup policy: at least 8 characters with at
// least one letter and one digit. The upper bound is in bytes, which is what
// bcrypt reads.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return invalid("password must be at least 8 characters")
	}
	if len(password) > maxPasswordBytes {
		return invalid("password must be at most 72 bytes")
	}

	var hasLetter, hasDigit bool
	for _, c := range password {
		if unicode.IsLetter(c) {
			hasLetter = true
		}
		if unicode.IsDigit(c) {
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return invalid("password must contain at least one letter and one digit")
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", common.ErrInvalidArgument, msg)
}

// ClientMessage strips the sentinel prefix from a validation error.
func ClientMessage(err error) string {
	return strings.TrimPrefix(err.Error(), common.ErrInvalidArgument.Error()+": ")
}
