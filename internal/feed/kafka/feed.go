// Package kafka is a change feed backed by the changes topic the outbox
// relay produces to.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"nexops/internal/feed"
	"nexops/internal/platform/config"
	platformkafka "nexops/internal/platform/kafka"
)

const statusBuffer = 8

// Poller is the slice of *kgo.Client a subscription needs.
type Poller interface {
	PollFetches(ctx context.Context) kgo.Fetches
	Close()
}

// Feed opens one consumer client per subscription. Consumers start at the
// end of the topic: history is never replayed, the first refetch covers it.
type Feed struct {
	dial   func() (Poller, error)
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Feed)

func WithLogger(logger *slog.Logger) Option {
	return func(f *Feed) { f.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

// WithDialer replaces the client constructor.
func WithDialer(dial func() (Poller, error)) Option {
	return func(f *Feed) { f.dial = dial }
}

func New(cfg config.KafkaConfig, opts ...Option) *Feed {
	f := &Feed{
		dial: func() (Poller, error) {
			client, err := platformkafka.NewConsumer(cfg)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Feed) Subscribe(ctx context.Context, topic feed.Topic) (feed.Subscription, error) {
	client, err := f.dial()
	if err != nil {
		return nil, fmt.Errorf("open kafka subscription: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		feed:   f,
		client: client,
		topic:  topic,
		cancel: cancel,
		events: make(chan feed.Event),
		status: make(chan feed.Status, statusBuffer),
		done:   make(chan struct{}),
	}
	go sub.run(ctx)
	return sub, nil
}

type subscription struct {
	feed   *Feed
	client Poller
	topic  feed.Topic
	cancel context.CancelFunc

	events chan feed.Event
	status chan feed.Status
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Events() <-chan feed.Event  { return s.events }
func (s *subscription) Status() <-chan feed.Status { return s.status }

// Close stops polling and waits until both channels are closed.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.client.Close()
	})
	<-s.done
	return nil
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.status)
	defer close(s.events)

	s.report(ctx, feed.Status{Kind: feed.StatusSubscribed})
	degraded := false
	for {
		fetches := s.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return
		}
		if fetches.IsClientClosed() {
			s.report(ctx, feed.Status{Kind: feed.StatusClosed})
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			fe := errs[0]
			degraded = true
			s.report(ctx, feed.Status{Kind: feed.StatusError, Err: fmt.Errorf("fetch %s[%d]: %w", fe.Topic, fe.Partition, fe.Err)})
			continue
		}
		if degraded {
			degraded = false
			s.report(ctx, feed.Status{Kind: feed.StatusSubscribed})
		}

		fetches.EachRecord(func(rec *kgo.Record) {
			ev, err := decode(rec, s.feed.now())
			if err != nil {
				s.feed.logger.WarnContext(ctx, "dropping undecodable change record",
					"offset", rec.Offset,
					"error", err,
				)
				return
			}
			if !s.topic.Matches(ev) {
				return
			}
			select {
			case s.events <- ev:
			case <-ctx.Done():
			}
		})
	}
}

func (s *subscription) report(ctx context.Context, st feed.Status) {
	select {
	case s.status <- st:
	case <-ctx.Done():
	}
}

var errMissingTable = errors.New("change record has no table")

// decode reads a change event from rec. The table falls back to the
// aggregate_type header for records whose payload omits it.
func decode(rec *kgo.Record, receivedAt time.Time) (feed.Event, error) {
	var ev feed.Event
	if err := json.Unmarshal(rec.Value, &ev); err != nil {
		return feed.Event{}, fmt.Errorf("decode change record: %w", err)
	}
	if ev.Table == "" {
		for _, h := range rec.Headers {
			if h.Key == "aggregate_type" {
				ev.Table = string(h.Value)
			}
		}
	}
	if ev.Table == "" {
		return feed.Event{}, errMissingTable
	}
	if ev.Op == "" {
		ev.Op = feed.OpAny
	}
	ev.ReceivedAt = receivedAt
	return ev, nil
}
