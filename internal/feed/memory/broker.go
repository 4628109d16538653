package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"nexops/internal/feed"
	"nexops/pkg/platform/sentinel"
)

const (
	defaultEventBuffer = 64
	statusBuffer       = 8
)

// Broker is an in-process change feed. The in-memory remote store publishes
// to it; reconcilers subscribe to it.
//
// Delivery never blocks the publisher: when a subscriber's buffer is full the
// event is dropped, which is safe because every event only means "refetch".
type Broker struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool

	buffer int
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Broker.
type Option func(*Broker)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) { b.logger = logger }
}

// WithBuffer sets the per-subscription event buffer.
func WithBuffer(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.buffer = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		subs:   make(map[*subscription]struct{}),
		buffer: defaultEventBuffer,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a subscription and immediately reports it subscribed.
func (b *Broker) Subscribe(ctx context.Context, topic feed.Topic) (feed.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, sentinel.ErrClosed
	}

	sub := &subscription{
		broker: b,
		topic:  topic,
		events: make(chan feed.Event, b.buffer),
		status: make(chan feed.Status, statusBuffer),
		done:   make(chan struct{}),
	}
	b.subs[sub] = struct{}{}
	sub.status <- feed.Status{Kind: feed.StatusSubscribed}

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Publish fans ev out to every matching subscription.
func (b *Broker) Publish(ctx context.Context, ev feed.Event) error {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = b.now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return sentinel.ErrClosed
	}
	for sub := range b.subs {
		if !sub.topic.Matches(ev) {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			b.logger.DebugContext(ctx, "feed subscriber buffer full, event coalesced",
				"table", ev.Table,
				"op", ev.Op,
			)
		}
	}
	return nil
}

// Fail reports a transport error to every subscription without closing it.
func (b *Broker) Fail(err error) {
	b.broadcast(feed.Status{Kind: feed.StatusError, Err: err})
}

// Restore reports every subscription as subscribed again after Fail.
func (b *Broker) Restore() {
	b.broadcast(feed.Status{Kind: feed.StatusSubscribed})
}

func (b *Broker) broadcast(st feed.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.status <- st:
		default:
		}
	}
}

// Shutdown reports every subscription closed and rejects further use.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for sub := range b.subs {
		select {
		case sub.status <- feed.Status{Kind: feed.StatusClosed}:
		default:
		}
		sub.closeLocked()
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

type subscription struct {
	broker *Broker
	topic  feed.Topic
	events chan feed.Event
	status chan feed.Status
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Events() <-chan feed.Event  { return s.events }
func (s *subscription) Status() <-chan feed.Status { return s.status }

func (s *subscription) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	s.closeLocked()
	return nil
}

// closeLocked must be called with the broker lock held.
func (s *subscription) closeLocked() {
	s.once.Do(func() {
		delete(s.broker.subs, s)
		close(s.done)
		close(s.events)
		close(s.status)
	})
}
