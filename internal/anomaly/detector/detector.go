// Package detector flags shipments whose predicted arrival slips past the
// breach threshold and raises AI-sourced anomalies for them.
package detector

//go:generate mockgen -source=detector.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"nexops/internal/anomaly/cache"
	"nexops/internal/anomaly/models"
	"nexops/internal/anomaly/mutation"
	"nexops/internal/audit"
	"nexops/internal/remote"
	"nexops/pkg/domain"
	dErrors "nexops/pkg/domain-errors"
	"nexops/pkg/platform/sentinel"
)

// BreachThreshold is how far predicted arrival may trail the schedule before
// a shipment is flagged. The comparison is strict.
const BreachThreshold = 60 * time.Minute

const (
	mutationName = "insert detected anomalies"
	lockKey      = "nexops:detector:scan"
)

// ErrScanInProgress is returned when another scan holds the guard.
var ErrScanInProgress = errors.New("detection scan already in progress")

var tracer = otel.Tracer("nexops/internal/anomaly/detector")

// ShipmentSource reads shipment snapshots.
type ShipmentSource interface {
	ListShipments(ctx context.Context, filter remote.ShipmentFilter) ([]remote.ShipmentSnapshot, error)
}

// AnomalyStore reads existing flags and inserts new ones.
type AnomalyStore interface {
	ListAnomalies(ctx context.Context, filter remote.AnomalyFilter) ([]models.Anomaly, error)
	InsertAnomalies(ctx context.Context, batch []models.NewAnomaly) ([]models.Anomaly, error)
}

// Applier runs the optimistic insert.
type Applier interface {
	Apply(ctx context.Context, scope cache.ScopeKey, label string, transform cache.Transform, write mutation.Write) (*mutation.Command, error)
}

// ScanLocker serializes scans across processes. Lock returns
// sentinel.ErrUnavailable when another holder has the lock.
type ScanLocker interface {
	Lock(ctx context.Context, key string) (unlock func(context.Context) error, err error)
}

// Auditor records system-authored inserts when enabled.
type Auditor interface {
	Append(ctx context.Context, e audit.Entry) (audit.Entry, error)
}

// Metrics records scan outcomes.
type Metrics interface {
	ObserveScan(start time.Time, inserted int, err error)
}

// Breach is a shipment predicted to arrive more than BreachThreshold late.
type Breach struct {
	Shipment remote.ShipmentSnapshot
	Delta    time.Duration
}

// Minutes is the delay rounded half away from zero.
func (b Breach) Minutes() int {
	return int(math.Round(b.Delta.Minutes()))
}

// NewAnomaly is the insert payload for b.
func (b Breach) NewAnomaly() models.NewAnomaly {
	minutes := b.Minutes()
	return models.NewAnomaly{
		Type:             domain.TypeShipmentDelayed,
		Severity:         domain.SeverityWatch,
		EntityType:       domain.EntityShipment,
		EntityID:         b.Shipment.ID,
		EntityLabel:      "Shipment #" + b.Shipment.ReferenceNumber,
		TimeDeltaMinutes: &minutes,
		TriggerSource:    domain.TriggerAI,
	}
}

// candidateFilter selects live shipments with both ETAs that can still slip.
var candidateFilter = remote.ShipmentFilter{
	ExcludeStatuses: []domain.ShipmentStatus{domain.ShipmentCancelled, domain.ShipmentDelivered},
	RequireETAs:     true,
}

// Breaches returns the snapshots that pass the candidate filter and breach
// the threshold, in input order.
func Breaches(shipments []remote.ShipmentSnapshot) []Breach {
	var out []Breach
	for _, s := range shipments {
		if !candidateFilter.Matches(s) {
			continue
		}
		delta := s.PredictedETA.Sub(*s.ScheduledETA)
		if delta > BreachThreshold {
			out = append(out, Breach{Shipment: s, Delta: delta})
		}
	}
	return out
}

// Result summarizes one scan.
type Result struct {
	Candidates int
	Breaches   int
	Skipped    int
	Inserted   []models.Anomaly
}

// Detector runs detection scans. One scan runs at a time per Detector.
type Detector struct {
	shipments   ShipmentSource
	anomalies   AnomalyStore
	coordinator Applier
	locker      ScanLocker
	auditor     Auditor
	invalidate  []func(ctx context.Context) error
	logger      *slog.Logger
	metrics     Metrics
	now         func() time.Time

	running atomic.Bool
	mu      sync.Mutex
	mounted map[cache.ScopeKey]bool
}

type Option func(*Detector)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) { d.logger = logger }
}

func WithMetrics(m Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithLocker serializes scans across processes. Without it two sessions can
// both pass the duplicate check before either insert lands.
func WithLocker(l ScanLocker) Option {
	return func(d *Detector) { d.locker = l }
}

// WithSystemAudit records one ledger entry per inserted anomaly.
func WithSystemAudit(a Auditor) Option {
	return func(d *Detector) { d.auditor = a }
}

// WithInvalidation adds a cache to refresh after anomalies are inserted,
// beyond the scan's own scope.
func WithInvalidation(fn func(ctx context.Context) error) Option {
	return func(d *Detector) { d.invalidate = append(d.invalidate, fn) }
}

func New(shipments ShipmentSource, anomalies AnomalyStore, coordinator Applier, opts ...Option) *Detector {
	d := &Detector{
		shipments:   shipments,
		anomalies:   anomalies,
		coordinator: coordinator,
		logger:      slog.Default(),
		now:         time.Now,
		mounted:     make(map[cache.ScopeKey]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ScanOnce scans the first time it is called for scope and is a no-op
// afterwards until Unmount(scope). ran reports whether a scan happened.
func (d *Detector) ScanOnce(ctx context.Context, scope cache.ScopeKey) (res *Result, ran bool, err error) {
	d.mu.Lock()
	if d.mounted[scope] {
		d.mu.Unlock()
		return nil, false, nil
	}
	d.mounted[scope] = true
	d.mu.Unlock()

	res, err = d.Scan(ctx, scope)
	return res, true, err
}

// Unmount clears the once-per-mount guard for scope.
func (d *Detector) Unmount(scope cache.ScopeKey) {
	d.mu.Lock()
	delete(d.mounted, scope)
	d.mu.Unlock()
}

// Scan runs one detection pass and inserts anomalies for new breaches through
// the mutation coordinator under scope. A failed read or write aborts the
// scan with CodeDetectionScan; rows already inserted stay, and a rerun skips
// them.
func (d *Detector) Scan(ctx context.Context, scope cache.ScopeKey) (*Result, error) {
	if !d.running.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer d.running.Store(false)

	ctx, span := tracer.Start(ctx, "detector.Scan")
	defer span.End()
	span.SetAttributes(attribute.String("scope", string(scope)))

	start := time.Now()
	res, err := d.scan(ctx, scope)
	if d.metrics != nil {
		d.metrics.ObserveScan(start, len(res.Inserted), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		if !errors.Is(err, ErrScanInProgress) {
			d.logger.ErrorContext(ctx, "detection scan aborted", "scope", scope, "error", err)
		}
		return res, err
	}
	span.SetAttributes(attribute.Int("inserted", len(res.Inserted)))
	d.logger.InfoContext(ctx, "detection scan complete",
		"scope", scope,
		"candidates", res.Candidates,
		"breaches", res.Breaches,
		"skipped", res.Skipped,
		"inserted", len(res.Inserted),
	)
	return res, nil
}

func (d *Detector) scan(ctx context.Context, scope cache.ScopeKey) (*Result, error) {
	res := &Result{}

	if d.locker != nil {
		unlock, err := d.locker.Lock(ctx, lockKey)
		if errors.Is(err, sentinel.ErrUnavailable) {
			return res, ErrScanInProgress
		}
		if err != nil {
			return res, dErrors.Wrap(err, dErrors.CodeDetectionScan, "acquire scan lock")
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				d.logger.WarnContext(ctx, "releasing scan lock", "error", err)
			}
		}()
	}

	shipments, err := d.shipments.ListShipments(ctx, candidateFilter)
	if err != nil {
		return res, dErrors.Wrap(err, dErrors.CodeDetectionScan, "read shipments")
	}
	res.Candidates = len(shipments)

	breaches := Breaches(shipments)
	res.Breaches = len(breaches)
	if len(breaches) == 0 {
		return res, nil
	}

	fresh, err := d.unflagged(ctx, breaches)
	if err != nil {
		return res, err
	}
	res.Skipped = len(breaches) - len(fresh)
	if len(fresh) == 0 {
		return res, nil
	}

	batch := make([]models.NewAnomaly, len(fresh))
	provisional := make([]models.Anomaly, len(fresh))
	now := d.now()
	for i, b := range fresh {
		batch[i] = b.NewAnomaly()
		provisional[i] = batch[i].Provisional(now.Add(time.Duration(i)))
	}

	write := func(ctx context.Context) error {
		inserted, err := d.anomalies.InsertAnomalies(ctx, batch)
		if err != nil {
			return fmt.Errorf("insert anomalies: %w", err)
		}
		res.Inserted = inserted
		return nil
	}
	if _, err := d.coordinator.Apply(ctx, scope, mutationName, cache.InsertingAll(provisional), write); err != nil {
		return res, dErrors.Wrap(err, dErrors.CodeDetectionScan, "insert detected anomalies")
	}

	d.auditInserts(ctx, res.Inserted)
	for _, fn := range d.invalidate {
		if err := fn(ctx); err != nil {
			d.logger.WarnContext(ctx, "refresh after detection scan failed", "error", err)
		}
	}
	return res, nil
}

// unflagged drops breaches that already have an unresolved AI delay anomaly.
func (d *Detector) unflagged(ctx context.Context, breaches []Breach) ([]Breach, error) {
	ids := make([]string, len(breaches))
	for i, b := range breaches {
		ids[i] = b.Shipment.ID
	}
	existing, err := d.anomalies.ListAnomalies(ctx, remote.AnomalyFilter{
		Types:           []domain.AnomalyType{domain.TypeShipmentDelayed},
		TriggerSources:  []domain.TriggerSource{domain.TriggerAI},
		ExcludeStatuses: []domain.AnomalyStatus{domain.StatusResolved},
		EntityIDs:       ids,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDetectionScan, "read existing anomalies")
	}

	flagged := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		flagged[a.EntityID] = struct{}{}
	}
	out := make([]Breach, 0, len(breaches))
	for _, b := range breaches {
		if _, ok := flagged[b.Shipment.ID]; ok {
			continue
		}
		flagged[b.Shipment.ID] = struct{}{}
		out = append(out, b)
	}
	return out, nil
}

func (d *Detector) auditInserts(ctx context.Context, inserted []models.Anomaly) {
	if d.auditor == nil {
		return
	}
	for _, a := range inserted {
		label := a.EntityLabel
		status := string(a.Status)
		detail := "Raised by predictive detection"
		if a.TimeDeltaMinutes != nil {
			detail = fmt.Sprintf("Predicted arrival %s behind schedule", models.FormatTimeDelta(*a.TimeDeltaMinutes))
		}
		_, err := d.auditor.Append(ctx, audit.Entry{
			TableName:     remote.TableAnomalies,
			RecordID:      a.ID.String(),
			RecordLabel:   &label,
			FieldChanged:  "status",
			NewValue:      &status,
			TriggerSource: domain.TriggerAI,
			TriggerDetail: &detail,
		})
		if err != nil {
			d.logger.WarnContext(ctx, "audit of detected anomaly failed", "anomaly_id", a.ID, "error", err)
		}
	}
}
