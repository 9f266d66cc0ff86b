package events

import (
	"context"

	"github.com/dmitrijs2005/identity/internal/logging"
)

// LogPublisher writes events to the log instead of a bus. Used in local
// development and when no bus is configured.
type LogPublisher struct {
	log logging.Logger
}

func NewLogPublisher(l logging.Logger) *LogPublisher {
	return &LogPublisher{log: l.With("publisher", "log")}
}

func (p *LogPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := ev.Marshal()
	if err != nil {
		return err
	}
	p.log.Info(ctx, "event", "event_type", ev.Type, "payload", string(body))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
