// Package engine owns one running instance of the anomaly lifecycle: the
// role-scoped caches, the mutation coordinator, the status state machine, the
// detector, the audit ledger, the KPI source and the change-feed reconciler.
//
// A Session replaces process-wide singletons. Everything it builds is torn
// down by Close, so tests can run sessions side by side.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nexops/internal/anomaly/cache"
	"nexops/internal/anomaly/detector"
	"nexops/internal/anomaly/models"
	"nexops/internal/anomaly/mutation"
	"nexops/internal/anomaly/transition"
	"nexops/internal/audit"
	"nexops/internal/feed"
	"nexops/internal/kpi"
	"nexops/internal/remote"
	"nexops/internal/roles"
	"nexops/internal/syncstate"
	"nexops/pkg/domain"
	dErrors "nexops/pkg/domain-errors"
	"nexops/pkg/platform/sentinel"
	"nexops/pkg/platform/validation"
	"nexops/pkg/requestcontext"
)

const insertMutation = "insert anomaly"

// Deps are the external collaborators of a session.
type Deps struct {
	Anomalies remote.AnomalyRepository
	Shipments remote.ShipmentRepository
	Audit     audit.Store
	Feed      feed.Feed
}

func (d Deps) validate() error {
	switch {
	case d.Anomalies == nil:
		return errors.New("anomaly repository is required")
	case d.Shipments == nil:
		return errors.New("shipment repository is required")
	case d.Audit == nil:
		return errors.New("audit store is required")
	case d.Feed == nil:
		return errors.New("change feed is required")
	}
	return nil
}

// Metrics is the union of every component's metrics hook.
type Metrics interface {
	cache.Metrics
	mutation.Metrics
	transition.Metrics
	audit.Metrics
	syncstate.Metrics
	detector.Metrics
	kpi.Observer
}

type settings struct {
	logger       *slog.Logger
	metrics      Metrics
	locker       detector.ScanLocker
	systemAudit  bool
	writeTimeout time.Duration
	kpiRefresh   time.Duration
	queueSize    int
	retryDelay   time.Duration
	now          func() time.Time
}

type Option func(*settings)

func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

func WithMetrics(m Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithScanLocker serializes detection scans across processes.
func WithScanLocker(l detector.ScanLocker) Option {
	return func(s *settings) { s.locker = l }
}

// WithDetectionAudit records a system ledger entry for each detected anomaly.
func WithDetectionAudit(enabled bool) Option {
	return func(s *settings) { s.systemAudit = enabled }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *settings) { s.writeTimeout = d }
}

// WithKPIRefresh sets the periodic KPI recompute interval.
func WithKPIRefresh(d time.Duration) Option {
	return func(s *settings) { s.kpiRefresh = d }
}

func WithFeedQueueSize(n int) Option {
	return func(s *settings) { s.queueSize = n }
}

// WithReadRetryDelay sets the pause before the single retry of a failed read.
func WithReadRetryDelay(d time.Duration) Option {
	return func(s *settings) { s.retryDelay = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// Session is safe for concurrent use.
type Session struct {
	tracker     *syncstate.Tracker
	cache       *cache.Store
	coordinator *mutation.Coordinator
	transitions *transition.Engine
	detector    *detector.Detector
	audit       *audit.Service
	kpis        *kpi.Service
	reconciler  *syncstate.Reconciler
	anomalies   remote.AnomalyRepository

	kpiRefresh time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  bool
}

// New wires a session. Nothing runs until Start.
func New(deps Deps, opts ...Option) (*Session, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	cfg := settings{
		logger:     slog.Default(),
		kpiRefresh: kpi.DefaultRefresh,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Session{
		tracker:    syncstate.NewTracker(),
		anomalies:  deps.Anomalies,
		kpiRefresh: cfg.kpiRefresh,
		now:        cfg.now,
		logger:     cfg.logger,
	}

	cacheOpts := []cache.Option{cache.WithLogger(cfg.logger)}
	coordOpts := []mutation.Option{mutation.WithLogger(cfg.logger), mutation.WithClock(cfg.now)}
	transOpts := []transition.Option{transition.WithLogger(cfg.logger)}
	auditOpts := []audit.Option{audit.WithLogger(cfg.logger), audit.WithClock(cfg.now)}
	kpiOpts := []kpi.Option{kpi.WithLogger(cfg.logger), kpi.WithClock(cfg.now)}
	recOpts := []syncstate.Option{syncstate.WithLogger(cfg.logger), syncstate.WithQueueSize(cfg.queueSize)}
	detOpts := []detector.Option{detector.WithLogger(cfg.logger), detector.WithClock(cfg.now)}
	if cfg.metrics != nil {
		cacheOpts = append(cacheOpts, cache.WithMetrics(cfg.metrics))
		coordOpts = append(coordOpts, mutation.WithMetrics(cfg.metrics))
		transOpts = append(transOpts, transition.WithMetrics(cfg.metrics))
		auditOpts = append(auditOpts, audit.WithMetrics(cfg.metrics))
		kpiOpts = append(kpiOpts, kpi.WithObserver(cfg.metrics))
		recOpts = append(recOpts, syncstate.WithMetrics(cfg.metrics))
		detOpts = append(detOpts, detector.WithMetrics(cfg.metrics))
	}
	if cfg.retryDelay > 0 {
		cacheOpts = append(cacheOpts, cache.WithRetryDelay(cfg.retryDelay))
		kpiOpts = append(kpiOpts, kpi.WithRetryDelay(cfg.retryDelay))
	}
	if cfg.writeTimeout > 0 {
		coordOpts = append(coordOpts, mutation.WithWriteTimeout(cfg.writeTimeout))
	}

	s.cache = cache.New(deps.Anomalies, cacheOpts...)
	for _, r := range roles.All() {
		rc, err := roles.For(r)
		if err != nil {
			return nil, fmt.Errorf("new session: %w", err)
		}
		s.cache.Register(scopeOf(r), rc.SeverityAllowlist)
	}

	s.coordinator = mutation.New(s.cache, s.tracker, coordOpts...)
	s.audit = audit.NewService(deps.Audit, auditOpts...)
	s.transitions = transition.New(s.cache, deps.Anomalies, s.coordinator, s.audit, transOpts...)
	s.kpis = kpi.NewService(deps.Shipments, deps.Anomalies, kpiOpts...)

	detOpts = append(detOpts,
		detector.WithInvalidation(s.cache.InvalidateAll),
		detector.WithInvalidation(s.kpis.Invalidate),
	)
	if cfg.locker != nil {
		detOpts = append(detOpts, detector.WithLocker(cfg.locker))
	}
	if cfg.systemAudit {
		detOpts = append(detOpts, detector.WithSystemAudit(s.audit))
	}
	s.detector = detector.New(deps.Shipments, deps.Anomalies, s.coordinator, detOpts...)

	s.reconciler = syncstate.NewReconciler(deps.Feed, s.tracker, []syncstate.Target{
		{Name: "anomaly-views", Table: remote.TableAnomalies, Invalidate: s.cache.InvalidateAll},
		{Name: "kpi-critical", Table: remote.TableAnomalies, Invalidate: s.kpis.Invalidate},
		{Name: "kpi-shipments", Table: remote.TableShipments, Invalidate: s.kpis.Invalidate},
	}, recOpts...)

	return s, nil
}

func scopeOf(r roles.Role) cache.ScopeKey {
	return cache.ScopeKey(r.String())
}

// Start subscribes to the change feed and starts the KPI refresh loop. A
// failed subscription leaves the session usable in the reconnecting state;
// call Reconnect to try again.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sentinel.ErrClosed
	}
	if s.started {
		return nil
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	if err := s.reconciler.Start(ctx); err != nil {
		s.logger.WarnContext(ctx, "session started without a change feed", "error", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.kpis.Run(ctx, s.kpiRefresh)
	}()
	return nil
}

// Reconnect replaces the change-feed subscription.
func (s *Session) Reconnect() error {
	return s.reconciler.Resubscribe()
}

// Close releases the subscription and stops background work. The sync state
// ends offline.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	err := s.reconciler.Close()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return err
}

// Mount loads role's view and runs the detection scan the first time the
// role is mounted. A failed scan is logged and does not fail the mount.
func (s *Session) Mount(ctx context.Context, role roles.Role) ([]models.Anomaly, error) {
	if !role.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	scope := scopeOf(role)
	view, err := s.cache.Get(ctx, scope)
	if err != nil {
		return nil, err
	}

	res, ran, err := s.detector.ScanOnce(ctx, scope)
	switch {
	case err != nil:
		s.logger.WarnContext(ctx, "detection scan on mount failed", "role", role, "error", err)
	case ran && len(res.Inserted) > 0:
		return s.cache.Get(ctx, scope)
	}
	return view, nil
}

// Unmount lets the next Mount of role scan again.
func (s *Session) Unmount(role roles.Role) {
	s.detector.Unmount(scopeOf(role))
}

// ActiveAnomalies returns role's ranked queue.
func (s *Session) ActiveAnomalies(ctx context.Context, role roles.Role) ([]models.Anomaly, error) {
	if !role.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	return s.cache.Get(ctx, scopeOf(role))
}

// ApplyStatusTransition moves an anomaly along the lifecycle on behalf of actor.
func (s *Session) ApplyStatusTransition(ctx context.Context, id domain.AnomalyID, next domain.AnomalyStatus, actor transition.Actor) (*transition.Result, error) {
	if !actor.Role.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	return s.transitions.Apply(ctx, id, next, actor)
}

// InsertAnomaly shows n in role's view at once under a provisional identity
// and writes it. The returned anomaly carries the server identity; the
// provisional row is replaced by the refetch that follows the write.
func (s *Session) InsertAnomaly(ctx context.Context, role roles.Role, n models.NewAnomaly) (*models.Anomaly, error) {
	if !role.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	if err := validation.Struct(n); err != nil {
		return nil, err
	}

	provisional := n.Provisional(requestcontext.Now(ctx))
	var stored *models.Anomaly
	write := func(ctx context.Context) error {
		inserted, err := s.anomalies.InsertAnomalies(ctx, []models.NewAnomaly{n})
		if err != nil {
			return fmt.Errorf("insert anomaly: %w", err)
		}
		if len(inserted) == 0 {
			return errors.New("insert anomaly: no row returned")
		}
		stored = &inserted[0]
		return nil
	}
	if _, err := s.coordinator.Apply(ctx, scopeOf(role), insertMutation, cache.Inserting(provisional), write); err != nil {
		return nil, err
	}
	return stored, nil
}

// RunDetectionScan runs a scan now, regardless of the per-mount guard.
func (s *Session) RunDetectionScan(ctx context.Context, role roles.Role) (*detector.Result, error) {
	if !role.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	return s.detector.Scan(ctx, scopeOf(role))
}

// AuditLog reads the ledger for scope. The global window needs a role whose
// audit access allows it.
func (s *Session) AuditLog(ctx context.Context, role roles.Role, scope audit.Scope) ([]audit.Entry, error) {
	rc, err := roles.For(role)
	if err != nil {
		return nil, err
	}
	if scope.IsGlobal() && !rc.AuditAccess.AllowsGlobal() {
		return nil, dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("%s cannot read the global audit log", rc.Label))
	}
	return s.audit.Query(ctx, scope)
}

// VerifyAudit checks the ledger's hash chain end to end.
func (s *Session) VerifyAudit(ctx context.Context) error {
	return s.audit.VerifyChain(ctx)
}

func (s *Session) KPIs(ctx context.Context) (kpi.Metrics, error) {
	return s.kpis.Metrics(ctx)
}

func (s *Session) SyncState() syncstate.State {
	return s.tracker.State()
}

// OnSyncChange registers fn for every sync state change.
func (s *Session) OnSyncChange(fn func(syncstate.State)) (cancel func()) {
	return s.tracker.OnChange(fn)
}

// OnViewChange registers fn for every anomaly view change of any role.
func (s *Session) OnViewChange(fn func(role string, view []models.Anomaly)) {
	s.cache.OnChange(func(key cache.ScopeKey, view []models.Anomaly) {
		fn(string(key), view)
	})
}

// OnKPIChange registers fn for every successful KPI refresh.
func (s *Session) OnKPIChange(fn func(kpi.Metrics)) {
	s.kpis.OnChange(fn)
}

// PendingMutations lists writes issued but not yet acknowledged.
func (s *Session) PendingMutations() []mutation.Command {
	return s.coordinator.Pending()
}
