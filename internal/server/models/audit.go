package models

import "time"

type AuditEvent string

const (
	AuditSignup  AuditEvent = "signup"
	AuditLogin   AuditEvent = "login"
	AuditRefresh AuditEvent = "refresh"
	AuditLogout  AuditEvent = "logout"
)

// AuditEntry is an append-only record of an authentication event.
// UserID is empty when the subject is unknown (e.g. failed login).
type AuditEntry struct {
	ID        string
	UserID    string
	EventType AuditEvent
	Success   bool
	IPAddress string
	CreatedAt time.Time
}
