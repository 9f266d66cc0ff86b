package events

import (
	"fmt"

	"github.com/dmitrijs2005/identity/internal/logging"
)

// Supported bus kinds.
const (
	BusLog   = "log"
	BusKafka = "kafka"
	BusAMQP  = "amqp"
)

type BusOptions struct {
	Kind         string
	KafkaBrokers []string
	AMQPURL      string
}

// NewPublisher builds the Publisher for the configured bus kind.
func NewPublisher(opts BusOptions, l logging.Logger) (Publisher, error) {
	switch opts.Kind {
	case "", BusLog:
		return NewLogPublisher(l), nil
	case BusKafka:
		return NewKafkaPublisher(opts.KafkaBrokers)
	case BusAMQP:
		return NewAMQPPublisher(opts.AMQPURL)
	default:
		return nil, fmt.Errorf("unknown event bus %q", opts.Kind)
	}
}
