package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/identity/internal/logging"
)

// Observer receives delivery outcomes, typically a metrics recorder.
type Observer interface {
	EventPublished(eventType string, ok bool)
	EventDropped(eventType string)
}

type DispatcherOptions struct {
	Workers        int
	Buffer         int
	PublishTimeout time.Duration
	Observer       Observer
}

// Dispatcher is a supervised worker pool in front of a Publisher. Notify
// never blocks: when the buffer is full, or after Close, events are dropped
// and counted. Close drains what is already queued.
type Dispatcher struct {
	pub     Publisher
	log     logging.Logger
	obs     Observer
	timeout time.Duration

	queue chan Event
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	dropped atomic.Uint64
}

func NewDispatcher(pub Publisher, l logging.Logger, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}

	d := &Dispatcher{
		pub:     pub,
		log:     l.With("module", "events"),
		obs:     opts.Observer,
		timeout: opts.PublishTimeout,
		queue:   make(chan Event, opts.Buffer),
	}

	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Notify enqueues ev for delivery.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(ctx, ev, "dispatcher closed")
		return
	}

	select {
	case d.queue <- ev:
	default:
		d.drop(ctx, ev, "queue full")
	}
}

func (d *Dispatcher) drop(ctx context.Context, ev Event, reason string) {
	d.dropped.Add(1)
	if d.obs != nil {
		d.obs.EventDropped(string(ev.Type))
	}
	d.log.Warn(ctx, "event dropped", "event_type", ev.Type, "reason", reason)
}

// Dropped returns how many events were discarded so far.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for ev := range d.queue {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("publisher panic: %v", r)
			}
		}()
		err = d.pub.Publish(ctx, ev)
	}()

	if d.obs != nil {
		d.obs.EventPublished(string(ev.Type), err == nil)
	}
	if err != nil {
		d.log.Error(ctx, "event publish failed", "event_type", ev.Type, "user_id", ev.UserID, "error", err)
	}
}

// Close stops accepting events, waits for queued ones to be delivered and
// closes the publisher. If ctx ends first, the remaining events are
// abandoned and ctx.Err() is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("drain events: %w", ctx.Err())
	}

	if err := d.pub.Close(); err != nil {
		return fmt.Errorf("close publisher: %w", err)
	}
	return nil
}
