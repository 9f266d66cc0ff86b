package models

import "time"

// RefreshToken is the stored side of an opaque refresh token. Only the
// SHA-256 digest of the raw value is kept.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Live reports whether the token can still be exchanged at now.
func (t *RefreshToken) Live(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
