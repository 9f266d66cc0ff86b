// Package events delivers user lifecycle notifications to an external bus.
//
// Delivery is fire-and-forget: callers hand an Event to a Dispatcher, which
// publishes it from a bounded worker pool and never reports failures back.
package events

import (
	"context"
	"encoding/json"
	"time"
)

type Type string

const (
	UserRegistered Type = "user.registered"
	UserLogin      Type = "user.login"
)

// Event carries no personal data beyond the opaque user id.
type Event struct {
	Type      Type
	UserID    string
	Timestamp time.Time
}

type payload struct {
	UserID    string `json:"user_id"`
	EventType string `json:"event_type"`
	Timestamp string `json:"timestamp"`
}

// Marshal encodes the wire payload: {user_id, event_type, timestamp}, with
// the timestamp in RFC 3339 UTC.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(payload{
		UserID:    e.UserID,
		EventType: string(e.Type),
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
	})
}

// Publisher sends a single event to a bus. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}
