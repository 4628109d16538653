package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nexops/internal/platform/kafka"
	"nexops/pkg/platform/circuit"
)

var tracer = otel.Tracer("nexops/internal/outbox")

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100

	headerEventType = "event_type"
	headerTable     = "aggregate_type"
)

// Worker polls the outbox and relays records to Kafka. A circuit breaker
// pauses relaying while the brokers keep failing; records stay in the outbox
// and are retried once the cooldown passes.
type Worker struct {
	store    Store
	producer Producer
	breaker  *circuit.Breaker
	interval time.Duration
	batch    int
	logger   *slog.Logger
	metrics  Metrics
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithMetrics(m Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batch = n
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(w *Worker) { w.breaker = b }
}

func NewWorker(store Store, producer Producer, opts ...Option) *Worker {
	w := &Worker{
		store:    store,
		producer: producer,
		interval: defaultInterval,
		batch:    defaultBatchSize,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.breaker == nil {
		w.breaker = circuit.New("outbox-relay")
	}
	return w
}

// Run relays until ctx is cancelled. Each tick drains full batches before
// waiting again.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		for {
			n, err := w.RelayOnce(ctx)
			if err != nil || n < w.batch {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ErrBreakerOpen is returned by RelayOnce while the breaker rejects attempts.
var ErrBreakerOpen = errors.New("outbox relay paused: circuit open")

// RelayOnce publishes one batch and returns how many records were relayed.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	if !w.breaker.Allow() {
		return 0, ErrBreakerOpen
	}

	ctx, span := tracer.Start(ctx, "outbox.relay", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	start := time.Now()
	n, err := w.store.Dispatch(ctx, w.batch, func(ctx context.Context, batch []Record) error {
		msgs := make([]kafka.Message, 0, len(batch))
		for _, rec := range batch {
			msgs = append(msgs, kafka.Message{
				Key:   []byte(rec.AggregateID),
				Value: rec.Payload,
				Headers: map[string]string{
					headerEventType: rec.EventType,
					headerTable:     rec.AggregateType,
				},
			})
		}
		return w.producer.Send(ctx, msgs...)
	})
	if w.metrics != nil {
		w.metrics.ObserveRelay(start, n, err)
	}

	span.SetAttributes(attribute.Int("relayed", n))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "relay failed")
		if errors.Is(err, context.Canceled) {
			return 0, err
		}
		if _, change := w.breaker.RecordFailure(); change.Opened {
			w.logger.WarnContext(ctx, "outbox relay circuit opened", "error", err)
		} else {
			w.logger.WarnContext(ctx, "outbox relay failed", "error", err)
		}
		return 0, err
	}
	if _, change := w.breaker.RecordSuccess(); change.Closed {
		w.logger.InfoContext(ctx, "outbox relay circuit closed")
	}
	if n > 0 {
		w.logger.DebugContext(ctx, "outbox records relayed", "count", n)
	}
	return n, nil
}
