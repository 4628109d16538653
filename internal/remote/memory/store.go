package memory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"nexops/internal/anomaly/models"
	"nexops/internal/feed"
	"nexops/internal/remote"
	"nexops/pkg/domain"
	"nexops/pkg/platform/sentinel"
)

// Store is an in-memory remote store. Every successful write publishes a
// change event, so it behaves like the hosted store from the engine's side.
type Store struct {
	mu        sync.RWMutex
	anomalies map[domain.AnomalyID]models.Anomaly
	shipments map[string]remote.ShipmentSnapshot

	publisher feed.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Store)

// WithPublisher sets where change events go after writes.
func WithPublisher(p feed.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func New(opts ...Option) *Store {
	s := &Store{
		anomalies: make(map[domain.AnomalyID]models.Anomaly),
		shipments: make(map[string]remote.ShipmentSnapshot),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ListAnomalies(_ context.Context, filter remote.AnomalyFilter) ([]models.Anomaly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectLocked(filter), nil
}

func (s *Store) CountAnomalies(_ context.Context, filter remote.AnomalyFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	filter.Limit = 0
	return len(s.selectLocked(filter)), nil
}

func (s *Store) selectLocked(filter remote.AnomalyFilter) []models.Anomaly {
	out := make([]models.Anomaly, 0)
	for _, a := range s.anomalies {
		if filter.Matches(a) {
			out = append(out, a.Clone())
		}
	}
	slices.SortFunc(out, func(a, b models.Anomaly) int {
		if c := b.TriggeredAt.Compare(a.TriggeredAt); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func (s *Store) InsertAnomalies(ctx context.Context, batch []models.NewAnomaly) ([]models.Anomaly, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	now := s.now()

	s.mu.Lock()
	inserted := make([]models.Anomaly, 0, len(batch))
	for _, n := range batch {
		a := n.Materialize(domain.NewAnomalyID(), now)
		s.anomalies[a.ID] = a
		inserted = append(inserted, a.Clone())
	}
	s.mu.Unlock()

	for _, a := range inserted {
		s.publish(ctx, feed.Event{Table: remote.TableAnomalies, Op: feed.OpInsert, RecordID: a.ID.String()})
	}
	return inserted, nil
}

func (s *Store) UpdateAnomalyStatus(ctx context.Context, update remote.StatusUpdate) (*models.Anomaly, error) {
	s.mu.Lock()
	a, ok := s.anomalies[update.ID]
	if !ok || a.IsDeleted() {
		s.mu.Unlock()
		return nil, fmt.Errorf("update anomaly %s: %w", update.ID, sentinel.ErrNotFound)
	}
	if update.From != "" && a.Status != update.From {
		s.mu.Unlock()
		return nil, fmt.Errorf("update anomaly %s: status is %s, not %s: %w", update.ID, a.Status, update.From, sentinel.ErrInvalidState)
	}
	at := update.At
	if at.IsZero() {
		at = s.now()
	}
	a.Status = update.Status
	a.ActionedBy = update.ActionedBy
	a.ActionedAt = &at
	a.UpdatedAt = at
	s.anomalies[a.ID] = a
	out := a.Clone()
	s.mu.Unlock()

	s.publish(ctx, feed.Event{Table: remote.TableAnomalies, Op: feed.OpUpdate, RecordID: out.ID.String()})
	return &out, nil
}

// PutAnomaly stores a as-is. Used to seed fixtures and by ingestion replays.
func (s *Store) PutAnomaly(ctx context.Context, a models.Anomaly) {
	s.mu.Lock()
	s.anomalies[a.ID] = a.Clone()
	s.mu.Unlock()
	s.publish(ctx, feed.Event{Table: remote.TableAnomalies, Op: feed.OpUpdate, RecordID: a.ID.String()})
}

// SoftDeleteAnomaly marks an anomaly deleted.
func (s *Store) SoftDeleteAnomaly(ctx context.Context, id domain.AnomalyID) error {
	s.mu.Lock()
	a, ok := s.anomalies[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("delete anomaly %s: %w", id, sentinel.ErrNotFound)
	}
	now := s.now()
	a.DeletedAt = &now
	a.UpdatedAt = now
	s.anomalies[id] = a
	s.mu.Unlock()

	s.publish(ctx, feed.Event{Table: remote.TableAnomalies, Op: feed.OpDelete, RecordID: id.String()})
	return nil
}

func (s *Store) ListShipments(_ context.Context, filter remote.ShipmentFilter) ([]remote.ShipmentSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]remote.ShipmentSnapshot, 0, len(s.shipments))
	for _, sh := range s.shipments {
		if filter.Matches(sh) {
			out = append(out, sh)
		}
	}
	slices.SortFunc(out, func(a, b remote.ShipmentSnapshot) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// PutShipment inserts or replaces a shipment snapshot.
func (s *Store) PutShipment(ctx context.Context, sh remote.ShipmentSnapshot) {
	s.mu.Lock()
	_, existed := s.shipments[sh.ID]
	s.shipments[sh.ID] = sh
	s.mu.Unlock()

	op := feed.OpInsert
	if existed {
		op = feed.OpUpdate
	}
	s.publish(ctx, feed.Event{Table: remote.TableShipments, Op: op, RecordID: sh.ID})
}

func (s *Store) publish(ctx context.Context, ev feed.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "failed to publish change event",
			"table", ev.Table,
			"op", ev.Op,
			"record_id", ev.RecordID,
			"error", err,
		)
	}
}
