// Package pgnotify is a change feed over Postgres LISTEN/NOTIFY. The change
// triggers installed by the schema publish one JSON payload per row change.
package pgnotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"nexops/internal/feed"
)

const statusBuffer = 8

// Listener is a connection that has issued LISTEN.
type Listener interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Feed holds one dedicated connection per subscription. A dropped connection
// is reported as an error and redialled with exponential backoff.
type Feed struct {
	dial       func(ctx context.Context) (Listener, error)
	newBackOff func() backoff.BackOff
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Feed)

func WithLogger(logger *slog.Logger) Option {
	return func(f *Feed) { f.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

// WithDialer replaces the connection constructor.
func WithDialer(dial func(ctx context.Context) (Listener, error)) Option {
	return func(f *Feed) { f.dial = dial }
}

// WithBackOff sets the redial policy.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(f *Feed) { f.newBackOff = newBackOff }
}

func New(dsn, channel string, opts ...Option) *Feed {
	f := &Feed{
		dial: func(ctx context.Context) (Listener, error) {
			conn, err := Listen(ctx, dsn, channel)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 15 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Listen opens a dedicated connection and subscribes it to channel.
func Listen(ctx context.Context, dsn, channel string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("listen on %s: %w", channel, err)
	}
	return conn, nil
}

// Subscribe dials once up front so configuration errors surface to the caller.
func (f *Feed) Subscribe(ctx context.Context, topic feed.Topic) (feed.Subscription, error) {
	conn, err := f.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("open notify subscription: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		feed:   f,
		topic:  topic,
		cancel: cancel,
		events: make(chan feed.Event),
		status: make(chan feed.Status, statusBuffer),
		done:   make(chan struct{}),
	}
	go sub.run(ctx, conn)
	return sub, nil
}

type subscription struct {
	feed   *Feed
	topic  feed.Topic
	cancel context.CancelFunc

	events chan feed.Event
	status chan feed.Status
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Events() <-chan feed.Event  { return s.events }
func (s *subscription) Status() <-chan feed.Status { return s.status }

func (s *subscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

func (s *subscription) run(ctx context.Context, conn Listener) {
	defer close(s.done)
	defer close(s.status)
	defer close(s.events)

	s.report(ctx, feed.Status{Kind: feed.StatusSubscribed})
	for {
		err := s.listen(ctx, conn)
		_ = conn.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		s.report(ctx, feed.Status{Kind: feed.StatusError, Err: err})

		conn = s.redial(ctx)
		if conn == nil {
			return
		}
		s.report(ctx, feed.Status{Kind: feed.StatusSubscribed})
	}
}

// listen forwards notifications until the connection fails or ctx ends.
func (s *subscription) listen(ctx context.Context, conn Listener) error {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		ev, err := decode(n.Payload, s.feed.now())
		if err != nil {
			s.feed.logger.WarnContext(ctx, "dropping undecodable notification",
				"channel", n.Channel,
				"error", err,
			)
			continue
		}
		if !s.topic.Matches(ev) {
			continue
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *subscription) redial(ctx context.Context) Listener {
	b := backoff.WithContext(s.feed.newBackOff(), ctx)
	var conn Listener
	err := backoff.Retry(func() error {
		c, err := s.feed.dial(ctx)
		if err != nil {
			s.feed.logger.WarnContext(ctx, "notify listener redial failed", "error", err)
			return err
		}
		conn = c
		return nil
	}, b)
	if err != nil {
		return nil
	}
	return conn
}

func (s *subscription) report(ctx context.Context, st feed.Status) {
	select {
	case s.status <- st:
	case <-ctx.Done():
	}
}

var errMissingTable = errors.New("notification has no table")

func decode(payload string, receivedAt time.Time) (feed.Event, error) {
	var ev feed.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return feed.Event{}, fmt.Errorf("decode notification: %w", err)
	}
	if ev.Table == "" {
		return feed.Event{}, errMissingTable
	}
	ev.ReceivedAt = receivedAt
	return ev, nil
}
