package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes each event type to the topic of the same name,
// keyed by user id so one user's events stay ordered within a partition.
type KafkaPublisher struct {
	writers map[Type]*kafka.Writer
}

func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}

	newWriter := func(topic Type) *kafka.Writer {
		return &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  string(topic),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		}
	}

	return &KafkaPublisher{
		writers: map[Type]*kafka.Writer{
			UserRegistered: newWriter(UserRegistered),
			UserLogin:      newWriter(UserLogin),
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	w, ok := p.writers[ev.Type]
	if !ok {
		return fmt.Errorf("kafka: no topic for event %q", ev.Type)
	}

	body, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("kafka: marshal %s: %w", ev.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.UserID),
		Value: body,
		Time:  ev.Timestamp,
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", ev.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	var errs []error
	for _, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
