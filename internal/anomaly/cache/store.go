// Package cache holds the role-scoped, ranked anomaly sequences the action
// queues render. The cache is never authoritative: Invalidate refetches from
// the remote store, and optimistic edits are overwritten by the next refetch.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"nexops/internal/anomaly/models"
	"nexops/internal/anomaly/ranking"
	"nexops/internal/remote"
	"nexops/pkg/domain"
	dErrors "nexops/pkg/domain-errors"
)

// ScopeKey identifies one cached sequence. Scopes are keyed by role.
type ScopeKey string

// Transform is an optimistic edit over a scope's current sequence.
type Transform func([]models.Anomaly) []models.Anomaly

// Loader is the read side of the remote store the cache refetches from.
type Loader interface {
	ListAnomalies(ctx context.Context, filter remote.AnomalyFilter) ([]models.Anomaly, error)
}

// Metrics records cache refetch outcomes.
type Metrics interface {
	ObserveRefetch(scope string, start time.Time, err error)
}

// Listener observes every view change of a scope.
type Listener func(key ScopeKey, view []models.Anomaly)

// Snapshot is a deep copy of one scope, taken before an optimistic edit.
type Snapshot struct {
	Key    ScopeKey
	Items  []models.Anomaly
	Loaded bool
}

type scope struct {
	allow  []domain.Severity
	items  []models.Anomaly
	loaded bool
}

// Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	scopes    map[ScopeKey]*scope
	listeners []Listener

	loader     Loader
	retryDelay time.Duration
	logger     *slog.Logger
	metrics    Metrics
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func WithMetrics(m Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithRetryDelay sets the pause before the single read retry.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Store) { s.retryDelay = d }
}

func New(loader Loader, opts ...Option) *Store {
	s := &Store{
		scopes:     make(map[ScopeKey]*scope),
		loader:     loader,
		retryDelay: 200 * time.Millisecond,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register declares a scope and its severity allowlist. Re-registering an
// existing scope replaces the allowlist and drops cached items.
func (s *Store) Register(key ScopeKey, allow []domain.Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[key] = &scope{allow: slices.Clone(allow)}
}

// Scopes lists registered scopes.
func (s *Store) Scopes() []ScopeKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ScopeKey, 0, len(s.scopes))
	for k := range s.scopes {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// OnChange registers a listener called after every view change.
func (s *Store) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Get returns the scope's ranked view, loading it on first use.
func (s *Store) Get(ctx context.Context, key ScopeKey) ([]models.Anomaly, error) {
	s.mu.RLock()
	sc, ok := s.scopes[key]
	if ok && sc.loaded {
		out := models.CloneAll(sc.items)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("scope %q is not registered", key))
	}
	return s.Invalidate(ctx, key)
}

// Find returns the cached anomaly with id in key's view.
func (s *Store) Find(key ScopeKey, id domain.AnomalyID) (models.Anomaly, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scopes[key]
	if !ok {
		return models.Anomaly{}, false
	}
	for _, a := range sc.items {
		if a.ID == id {
			return a.Clone(), true
		}
	}
	return models.Anomaly{}, false
}

// Snapshot deep-copies the scope's current state.
func (s *Store) Snapshot(key ScopeKey) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Key: key}
	if sc, ok := s.scopes[key]; ok {
		snap.Items = models.CloneAll(sc.items)
		snap.Loaded = sc.loaded
	}
	return snap
}

// Apply runs fn over the scope's sequence, then re-filters and re-ranks.
func (s *Store) Apply(key ScopeKey, fn Transform) ([]models.Anomaly, error) {
	s.mu.Lock()
	sc, ok := s.scopes[key]
	if !ok {
		s.mu.Unlock()
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("scope %q is not registered", key))
	}
	sc.items = ranking.Active(fn(models.CloneAll(sc.items)), sc.allow)
	sc.loaded = true
	view := models.CloneAll(sc.items)
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	notify(listeners, key, view)
	return view, nil
}

// Insert optimistically adds a to the scope.
func (s *Store) Insert(key ScopeKey, a models.Anomaly) ([]models.Anomaly, error) {
	return s.Apply(key, Inserting(a))
}

// PatchStatus optimistically sets the status of id in the scope.
func (s *Store) PatchStatus(key ScopeKey, id domain.AnomalyID, status domain.AnomalyStatus) ([]models.Anomaly, error) {
	return s.Apply(key, PatchingStatus(id, status))
}

// Restore puts a snapshot back exactly as it was taken.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	sc, ok := s.scopes[snap.Key]
	if !ok {
		s.mu.Unlock()
		return
	}
	sc.items = models.CloneAll(snap.Items)
	sc.loaded = snap.Loaded
	view := models.CloneAll(sc.items)
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	notify(listeners, snap.Key, view)
}

// Invalidate refetches the scope from the remote store. A failed read is
// retried once; if it fails again the stale view stays in place and a
// remote read error is returned.
func (s *Store) Invalidate(ctx context.Context, key ScopeKey) ([]models.Anomaly, error) {
	s.mu.RLock()
	sc, ok := s.scopes[key]
	var allow []domain.Severity
	if ok {
		allow = slices.Clone(sc.allow)
	}
	s.mu.RUnlock()
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("scope %q is not registered", key))
	}

	start := time.Now()
	fetched, err := s.fetch(ctx, allow)
	if s.metrics != nil {
		s.metrics.ObserveRefetch(string(key), start, err)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "anomaly refetch failed, keeping stale view",
			"scope", key,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeRemoteRead, "refetch anomalies")
	}

	s.mu.Lock()
	sc, ok = s.scopes[key]
	if !ok {
		s.mu.Unlock()
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("scope %q is not registered", key))
	}
	sc.items = ranking.Active(fetched, sc.allow)
	sc.loaded = true
	view := models.CloneAll(sc.items)
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	notify(listeners, key, view)
	return view, nil
}

// InvalidateAll refetches every registered scope and returns the first error.
func (s *Store) InvalidateAll(ctx context.Context) error {
	var first error
	for _, key := range s.Scopes() {
		if _, err := s.Invalidate(ctx, key); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *Store) fetch(ctx context.Context, allow []domain.Severity) ([]models.Anomaly, error) {
	filter := remote.AnomalyFilter{
		Severities:      allow,
		ExcludeStatuses: []domain.AnomalyStatus{domain.StatusResolved},
	}
	items, err := s.loader.ListAnomalies(ctx, filter)
	if err == nil {
		return items, nil
	}
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list anomalies: %w", err)
	case <-time.After(s.retryDelay):
	}
	items, err = s.loader.ListAnomalies(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list anomalies after retry: %w", err)
	}
	return items, nil
}

func notify(listeners []Listener, key ScopeKey, view []models.Anomaly) {
	for _, l := range listeners {
		l(key, view)
	}
}

// Inserting returns a transform that prepends a.
func Inserting(a models.Anomaly) Transform {
	return func(items []models.Anomaly) []models.Anomaly {
		return append([]models.Anomaly{a.Clone()}, items...)
	}
}

// InsertingAll returns a transform that prepends every item of batch.
func InsertingAll(batch []models.Anomaly) Transform {
	return func(items []models.Anomaly) []models.Anomaly {
		return append(models.CloneAll(batch), items...)
	}
}

// PatchingStatus returns a transform that sets the status of id.
func PatchingStatus(id domain.AnomalyID, status domain.AnomalyStatus) Transform {
	return func(items []models.Anomaly) []models.Anomaly {
		for i := range items {
			if items[i].ID == id {
				items[i].Status = status
			}
		}
		return items
	}
}
