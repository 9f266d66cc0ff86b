package events

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var amqpDial = amqp.DialConfig

const amqpHandshakeTimeout = 30 * time.Second

// dialConfig bounds both the TCP connect and the AMQP handshake by ctx so a
// dead broker cannot stall publishers queued behind the connection lock.
// The client clears the deadline once the handshake completes.
func dialConfig(ctx context.Context) amqp.Config {
	return amqp.Config{
		Locale: "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			var d net.Dialer
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}

			deadline, ok := ctx.Deadline()
			if !ok {
				deadline = time.Now().Add(amqpHandshakeTimeout)
			}
			if err := conn.SetDeadline(deadline); err != nil {
				_ = conn.Close()
				return nil, err
			}
			return conn, nil
		},
	}
}

// AMQPPublisher publishes to durable queues named after the event type via
// the default exchange. The connection is opened lazily and re-opened after
// a failed publish.
type AMQPPublisher struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	if url == "" {
		return nil, errors.New("amqp: url is required")
	}
	return &AMQPPublisher{url: url}, nil
}

func (p *AMQPPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqpDial(p.url, dialConfig(ctx))
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: channel: %w", err)
	}

	for _, q := range []Type{UserRegistered, UserLogin} {
		if _, err := ch.QueueDeclare(string(q), true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("amqp: declare %s: %w", q, err)
		}
	}

	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("amqp: marshal %s: %w", ev.Type, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.UserID + ":" + string(ev.Type) + ":" + ev.Timestamp.UTC().Format(time.RFC3339Nano),
		Timestamp:    ev.Timestamp.UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", string(ev.Type), false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("amqp: publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
