package kpi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nexops/internal/remote"
	"nexops/pkg/domain"
	dErrors "nexops/pkg/domain-errors"
)

// DefaultRefresh is how often Run recomputes when nothing invalidates sooner.
const DefaultRefresh = 60 * time.Second

// ShipmentSource reads every shipment snapshot.
type ShipmentSource interface {
	ListShipments(ctx context.Context, filter remote.ShipmentFilter) ([]remote.ShipmentSnapshot, error)
}

// AnomalyCounter counts anomalies matching a filter.
type AnomalyCounter interface {
	CountAnomalies(ctx context.Context, filter remote.AnomalyFilter) (int, error)
}

// Observer records refresh outcomes.
type Observer interface {
	ObserveKPIRefresh(start time.Time, err error)
}

// criticalOpen counts critical anomalies that still need action.
var criticalOpen = remote.AnomalyFilter{
	Severities:      []domain.Severity{domain.SeverityCritical},
	ExcludeStatuses: []domain.AnomalyStatus{domain.StatusResolved},
}

// Service caches the latest Metrics and recomputes them on demand.
type Service struct {
	shipments  ShipmentSource
	anomalies  AnomalyCounter
	logger     *slog.Logger
	observer   Observer
	now        func() time.Time
	retryDelay time.Duration

	mu        sync.RWMutex
	current   *Metrics
	listeners []func(Metrics)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithRetryDelay(d time.Duration) Option {
	return func(s *Service) { s.retryDelay = d }
}

func NewService(shipments ShipmentSource, anomalies AnomalyCounter, opts ...Option) *Service {
	s := &Service{
		shipments:  shipments,
		anomalies:  anomalies,
		logger:     slog.Default(),
		now:        time.Now,
		retryDelay: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics returns the cached metrics, computing them on first use.
func (s *Service) Metrics(ctx context.Context) (Metrics, error) {
	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	if cur != nil {
		return *cur, nil
	}
	return s.Refresh(ctx)
}

// Invalidate recomputes now. It satisfies the reconciler's target signature.
func (s *Service) Invalidate(ctx context.Context) error {
	_, err := s.Refresh(ctx)
	return err
}

// Refresh recomputes from the remote store. On failure the previous metrics
// stay cached and a remote read error is returned.
func (s *Service) Refresh(ctx context.Context) (Metrics, error) {
	start := time.Now()
	m, err := s.compute(ctx)
	if s.observer != nil {
		s.observer.ObserveKPIRefresh(start, err)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "kpi refresh failed, keeping previous metrics", "error", err)
		return Metrics{}, dErrors.Wrap(err, dErrors.CodeRemoteRead, "compute kpis")
	}

	s.mu.Lock()
	s.current = &m
	listeners := append([]func(Metrics){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(m)
	}
	return m, nil
}

// OnChange registers fn to receive each successful refresh.
func (s *Service) OnChange(fn func(Metrics)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Run refreshes every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefresh
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.Refresh(ctx)
		}
	}
}

func (s *Service) compute(ctx context.Context) (Metrics, error) {
	var shipments []remote.ShipmentSnapshot
	err := s.withRetry(ctx, func() error {
		var err error
		shipments, err = s.shipments.ListShipments(ctx, remote.ShipmentFilter{})
		return err
	})
	if err != nil {
		return Metrics{}, fmt.Errorf("list shipments: %w", err)
	}

	var critical int
	err = s.withRetry(ctx, func() error {
		var err error
		critical, err = s.anomalies.CountAnomalies(ctx, criticalOpen)
		return err
	})
	if err != nil {
		return Metrics{}, fmt.Errorf("count critical anomalies: %w", err)
	}

	m := Compute(shipments, s.now())
	m.CriticalAnomalies = critical
	return m, nil
}

// withRetry runs fn, and once more after retryDelay if it fails.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return err
	case <-time.After(s.retryDelay):
	}
	return fn()
}
