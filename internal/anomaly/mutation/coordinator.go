// Package mutation applies optimistic edits to the anomaly cache and keeps
// them only if the remote write is acknowledged.
package mutation

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"nexops/internal/anomaly/cache"
	"nexops/internal/anomaly/models"
	dErrors "nexops/pkg/domain-errors"
)

const defaultWriteTimeout = 10 * time.Second

var tracer = otel.Tracer("nexops/internal/anomaly/mutation")

// Cache is the part of the anomaly cache the coordinator drives.
type Cache interface {
	Snapshot(key cache.ScopeKey) cache.Snapshot
	Apply(key cache.ScopeKey, fn cache.Transform) ([]models.Anomaly, error)
	Restore(snap cache.Snapshot)
	Invalidate(ctx context.Context, key cache.ScopeKey) ([]models.Anomaly, error)
}

// PendingTracker counts writes that are issued but not yet acknowledged.
type PendingTracker interface {
	IncrementPending()
	DecrementPending()
}

// Metrics records write outcomes.
type Metrics interface {
	ObserveWrite(label string, start time.Time, err error)
	IncrementRollback(label string)
}

// Write performs the remote side of a mutation.
type Write func(ctx context.Context) error

// Command is one issued mutation. It holds the pre-mutation snapshot until the
// write is acknowledged, so a failure can put the cache back exactly.
type Command struct {
	ID       uuid.UUID
	Label    string
	Scope    cache.ScopeKey
	Snapshot cache.Snapshot
	IssuedAt time.Time
	Pending  bool
	Err      error
}

// Coordinator runs mutations. Writes are never retried: a failed write is
// rolled back and reported.
type Coordinator struct {
	cache   Cache
	pending PendingTracker

	mu       sync.Mutex
	inflight map[uuid.UUID]*Command

	writeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
	metrics      Metrics
}

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithWriteTimeout bounds each remote write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func New(c Cache, pending PendingTracker, opts ...Option) *Coordinator {
	co := &Coordinator{
		cache:        c,
		pending:      pending,
		inflight:     make(map[uuid.UUID]*Command),
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

// Apply snapshots scope, applies transform to the cache at once, then runs
// write. On failure the snapshot is restored and a remote write error is
// returned; on success the scope is refetched. The cache effect is visible to
// readers before write returns.
func (c *Coordinator) Apply(ctx context.Context, scope cache.ScopeKey, label string, transform cache.Transform, write Write) (*Command, error) {
	ctx, span := tracer.Start(ctx, "mutation.apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("mutation.label", label),
		attribute.String("mutation.scope", string(scope)),
	)

	cmd := &Command{
		ID:       uuid.New(),
		Label:    label,
		Scope:    scope,
		Snapshot: c.cache.Snapshot(scope),
		IssuedAt: c.now(),
		Pending:  true,
	}
	if _, err := c.cache.Apply(scope, transform); err != nil {
		return nil, err
	}

	c.track(cmd)
	start := time.Now()
	err := c.write(ctx, write)
	c.untrack(cmd)

	if c.metrics != nil {
		c.metrics.ObserveWrite(label, start, err)
	}

	if err != nil {
		c.cache.Restore(cmd.Snapshot)
		cmd.Err = dErrors.Wrap(err, dErrors.CodeRemoteWrite, label+" failed, changes rolled back")
		if c.metrics != nil {
			c.metrics.IncrementRollback(label)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "rolled back")
		c.logger.WarnContext(ctx, "remote write failed, optimistic change rolled back",
			"mutation_id", cmd.ID,
			"label", label,
			"scope", scope,
			"error", err,
		)
		return cmd, cmd.Err
	}

	if _, err := c.cache.Invalidate(ctx, scope); err != nil {
		// The write landed; the next feed event or refetch reconciles the view.
		c.logger.WarnContext(ctx, "post-write refetch failed",
			"mutation_id", cmd.ID,
			"scope", scope,
			"error", err,
		)
	}
	return cmd, nil
}

func (c *Coordinator) write(ctx context.Context, write Write) error {
	wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	return write(wctx)
}

func (c *Coordinator) track(cmd *Command) {
	c.mu.Lock()
	c.inflight[cmd.ID] = cmd
	c.mu.Unlock()
	if c.pending != nil {
		c.pending.IncrementPending()
	}
}

func (c *Coordinator) untrack(cmd *Command) {
	c.mu.Lock()
	delete(c.inflight, cmd.ID)
	cmd.Pending = false
	c.mu.Unlock()
	if c.pending != nil {
		c.pending.DecrementPending()
	}
}

// Pending lists commands whose writes are still in flight, oldest first.
func (c *Coordinator) Pending() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Command, 0, len(c.inflight))
	for _, cmd := range c.inflight {
		out = append(out, *cmd)
	}
	slices.SortFunc(out, func(a, b Command) int {
		return a.IssuedAt.Compare(b.IssuedAt)
	})
	return out
}
