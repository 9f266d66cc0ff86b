package models

import "time"

// User is one identity record. PasswordHash never leaves the server.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}
