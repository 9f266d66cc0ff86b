package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/identity/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	closed bool
	err    error
	block  chan struct{}
	panics bool
}

func (p *recordingPublisher) Publish(ctx context.Context, ev Event) error {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.panics {
		panic("boom")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type countingObserver struct {
	mu        sync.Mutex
	published map[bool]int
	dropped   int
}

func (o *countingObserver) EventPublished(_ string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.published == nil {
		o.published = map[bool]int{}
	}
	o.published[ok]++
}

func (o *countingObserver) EventDropped(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped++
}

func TestDispatcher_DeliversAndDrains(t *testing.T) {
	pub := &recordingPublisher{}
	obs := &countingObserver{}
	d := NewDispatcher(pub, logging.Nop(), DispatcherOptions{Workers: 2, Buffer: 16, Observer: obs})

	for i := 0; i < 10; i++ {
		d.Notify(context.Background(), Event{Type: UserLogin, UserID: "u1"})
	}

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 10, pub.count())
	assert.True(t, pub.closed)
	assert.Equal(t, 10, obs.published[true])
	assert.Zero(t, d.Dropped())

	for _, ev := range pub.events {
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	pub := &recordingPublisher{block: make(chan struct{})}
	obs := &countingObserver{}
	d := NewDispatcher(pub, logging.Nop(), DispatcherOptions{Workers: 1, Buffer: 1, Observer: obs})

	// one in flight in the worker, one buffered, the rest dropped
	d.Notify(context.Background(), Event{Type: UserLogin, UserID: "u1"})
	assert.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	d.Notify(context.Background(), Event{Type: UserLogin, UserID: "u2"})
	d.Notify(context.Background(), Event{Type: UserLogin, UserID: "u3"})
	d.Notify(context.Background(), Event{Type: UserLogin, UserID: "u4"})

	assert.EqualValues(t, 2, d.Dropped())
	assert.Equal(t, 2, obs.dropped)

	close(pub.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 2, pub.count())
}

func TestDispatcher_NotifyAfterCloseDrops(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, logging.Nop(), DispatcherOptions{Workers: 1, Buffer: 4})
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	d.Notify(context.Background(), Event{Type: UserRegistered, UserID: "u1"})
	assert.EqualValues(t, 1, d.Dropped())
	assert.Zero(t, pub.count())
}

func TestDispatcher_CloseHonoursDeadline(t *testing.T) {
	pub := &recordingPublisher{block: make(chan struct{})}
	defer close(pub.block)
	d := NewDispatcher(pub, logging.Nop(), DispatcherOptions{Workers: 1, Buffer: 4, PublishTimeout: time.Minute})

	d.Notify(context.Background(), Event{Type: UserLogin, UserID: "u1"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatcher_SurvivesPublisherFailures(t *testing.T) {
	obs := &countingObserver{}

	failing := &recordingPublisher{err: errors.New("broker down")}
	d := NewDispatcher(failing, logging.Nop(), DispatcherOptions{Workers: 1, Buffer: 4, Observer: obs})
	d.Notify(context.Background(), Event{Type: UserLogin, UserID: "u1"})
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 1, obs.published[false])

	panicking := &recordingPublisher{panics: true}
	d = NewDispatcher(panicking, logging.Nop(), DispatcherOptions{Workers: 1, Buffer: 4})
	d.Notify(context.Background(), Event{Type: UserLogin, UserID: "u1"})
	d.Notify(context.Background(), Event{Type: UserLogin, UserID: "u2"})
	require.NoError(t, d.Close(context.Background()))
	assert.True(t, panicking.closed)
}
