package syncstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nexops/internal/feed"
	dErrors "nexops/pkg/domain-errors"
	"nexops/pkg/platform/sentinel"
)

const defaultQueueSize = 32

// Target is a cache that must be refetched when Table changes. An empty
// Table matches every table.
type Target struct {
	Name       string
	Table      string
	Invalidate func(ctx context.Context) error
}

func (t Target) matches(table string) bool {
	return t.Table == "" || t.Table == table
}

// Metrics records reconciliation activity.
type Metrics interface {
	IncrementFeedEvent(table string, coalesced bool)
	ObserveInvalidation(target string, start time.Time, err error)
}

// Reconciler subscribes to the change feed and turns each event into a full
// refetch of the dependent caches. Events are queued in a bounded buffer and
// drained by a single loop. When the buffer overflows the next drained event
// invalidates every target, so no change is lost.
type Reconciler struct {
	feed      feed.Feed
	tracker   *Tracker
	targets   []Target
	topic     feed.Topic
	queueSize int
	logger    *slog.Logger
	metrics   Metrics

	queue    chan feed.Event
	overflow atomic.Bool

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	sub      feed.Subscription
	pumpDone chan struct{}
	started  bool
	closed   bool
	wg       sync.WaitGroup
}

type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

func WithMetrics(m Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithQueueSize bounds the event queue. Values below 1 are ignored.
func WithQueueSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithTopic narrows the subscription. The default receives every table and operation.
func WithTopic(t feed.Topic) Option {
	return func(r *Reconciler) { r.topic = t }
}

func NewReconciler(f feed.Feed, tracker *Tracker, targets []Target, opts ...Option) *Reconciler {
	r := &Reconciler{
		feed:      f,
		tracker:   tracker,
		targets:   targets,
		topic:     feed.Topic{Op: feed.OpAny},
		queueSize: defaultQueueSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = make(chan feed.Event, r.queueSize)
	return r
}

// Start subscribes and launches the reconciliation loop. The loop stops when
// ctx is cancelled or Close is called.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return sentinel.ErrClosed
	}
	if r.started {
		return nil
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.loop()

	return r.subscribeLocked()
}

// Resubscribe replaces the current subscription. Reconnection is always
// initiated by the owner; the reconciler never retries on its own.
func (r *Reconciler) Resubscribe() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return sentinel.ErrClosed
	}
	if !r.started {
		return dErrors.New(dErrors.CodeSubscription, "reconciler not started")
	}
	r.releaseLocked()
	return r.subscribeLocked()
}

// Close unsubscribes, waits for the loop to exit and marks the tracker offline.
func (r *Reconciler) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.cancel != nil {
		r.cancel()
	}
	r.releaseLocked()
	r.mu.Unlock()

	r.wg.Wait()
	r.tracker.SetLink(StatusOffline)
	return nil
}

func (r *Reconciler) subscribeLocked() error {
	r.tracker.SetLink(StatusSyncing)
	sub, err := r.feed.Subscribe(r.ctx, r.topic)
	if err != nil {
		r.tracker.SetLink(StatusReconnecting)
		r.logger.WarnContext(r.ctx, "change feed subscription failed", "error", err)
		return dErrors.Wrap(err, dErrors.CodeSubscription, "subscribe to change feed")
	}
	r.sub = sub
	r.pumpDone = make(chan struct{})
	r.wg.Add(1)
	go r.pump(sub, r.pumpDone)
	return nil
}

// releaseLocked closes the current subscription and waits for its pump.
func (r *Reconciler) releaseLocked() {
	if r.sub == nil {
		return
	}
	if err := r.sub.Close(); err != nil {
		r.logger.Warn("closing change feed subscription", "error", err)
	}
	<-r.pumpDone
	r.sub = nil
	r.pumpDone = nil
}

// pump moves subscription traffic into the tracker and the bounded queue.
func (r *Reconciler) pump(sub feed.Subscription, done chan struct{}) {
	defer r.wg.Done()
	defer close(done)

	events, status := sub.Events(), sub.Status()
	for events != nil || status != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.enqueue(ev)
		case st, ok := <-status:
			if !ok {
				status = nil
				continue
			}
			r.onStatus(st)
		}
	}
}

func (r *Reconciler) onStatus(st feed.Status) {
	switch st.Kind {
	case feed.StatusSubscribed:
		r.tracker.SetLink(StatusLive)
	case feed.StatusClosed:
		r.tracker.SetLink(StatusOffline)
	case feed.StatusError:
		r.tracker.SetLink(StatusReconnecting)
		r.logger.Warn("change feed transport error", "error", st.Err)
	}
}

func (r *Reconciler) enqueue(ev feed.Event) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	select {
	case r.queue <- ev:
		if r.metrics != nil {
			r.metrics.IncrementFeedEvent(ev.Table, false)
		}
	default:
		r.overflow.Store(true)
		if r.metrics != nil {
			r.metrics.IncrementFeedEvent(ev.Table, true)
		}
	}
}

func (r *Reconciler) loop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case ev := <-r.queue:
			r.reconcile(ev)
		}
	}
}

func (r *Reconciler) reconcile(ev feed.Event) {
	r.tracker.Confirm(ev.ReceivedAt)

	all := r.overflow.Swap(false)
	for _, t := range r.targets {
		if !all && !t.matches(ev.Table) {
			continue
		}
		start := time.Now()
		err := t.Invalidate(r.ctx)
		if r.metrics != nil {
			r.metrics.ObserveInvalidation(t.Name, start, err)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.WarnContext(r.ctx, "invalidation after change event failed",
				"target", t.Name,
				"table", ev.Table,
				"op", ev.Op,
				"error", err,
			)
		}
	}
}
