// Package transition enforces the anomaly status state machine and records
// every accepted transition in the audit ledger.
//
//	open ──► investigating ──► resolved
//	  └─────────────────────────▲
//
// resolved is terminal.
package transition

//go:generate mockgen -source=engine.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"nexops/internal/anomaly/cache"
	"nexops/internal/anomaly/models"
	"nexops/internal/anomaly/mutation"
	"nexops/internal/audit"
	"nexops/internal/remote"
	"nexops/internal/roles"
	"nexops/pkg/domain"
	dErrors "nexops/pkg/domain-errors"
	"nexops/pkg/platform/sentinel"
	"nexops/pkg/requestcontext"
)

const (
	auditTable   = remote.TableAnomalies
	auditField   = "status"
	mutationName = "update anomaly status"
)

var edges = map[domain.AnomalyStatus][]domain.AnomalyStatus{
	domain.StatusOpen:          {domain.StatusInvestigating, domain.StatusResolved},
	domain.StatusInvestigating: {domain.StatusResolved},
	domain.StatusResolved:      {},
}

// Allowed returns the statuses reachable from from in one step.
func Allowed(from domain.AnomalyStatus) []domain.AnomalyStatus {
	return slices.Clone(edges[from])
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to domain.AnomalyStatus) bool {
	return slices.Contains(edges[from], to)
}

// Actor is the operator performing a transition.
type Actor struct {
	UserID string
	Name   string
	Role   roles.Role
}

// Scope is the cache scope the actor's view lives in.
func (a Actor) Scope() cache.ScopeKey {
	return cache.ScopeKey(a.Role.String())
}

// Lookup finds an anomaly in a cached view.
type Lookup interface {
	Find(key cache.ScopeKey, id domain.AnomalyID) (models.Anomaly, bool)
}

// Repository is the remote side of a transition.
type Repository interface {
	ListAnomalies(ctx context.Context, filter remote.AnomalyFilter) ([]models.Anomaly, error)
	UpdateAnomalyStatus(ctx context.Context, update remote.StatusUpdate) (*models.Anomaly, error)
}

// Applier runs the optimistic mutation.
type Applier interface {
	Apply(ctx context.Context, scope cache.ScopeKey, label string, transform cache.Transform, write mutation.Write) (*mutation.Command, error)
}

// Auditor appends ledger entries.
type Auditor interface {
	Append(ctx context.Context, e audit.Entry) (audit.Entry, error)
}

// Metrics counts accepted and rejected transitions.
type Metrics interface {
	IncrementTransition(from, to string, accepted bool)
}

// Result is an accepted transition.
type Result struct {
	Anomaly models.Anomaly
	Entry   audit.Entry
}

// Engine applies status transitions.
type Engine struct {
	lookup      Lookup
	repo        Repository
	coordinator Applier
	auditor     Auditor
	logger      *slog.Logger
	metrics     Metrics
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(lookup Lookup, repo Repository, coordinator Applier, auditor Auditor, opts ...Option) *Engine {
	e := &Engine{
		lookup:      lookup,
		repo:        repo,
		coordinator: coordinator,
		auditor:     auditor,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply moves anomaly id to next on behalf of actor.
//
// An edge outside the state machine fails with CodeInvalidTransition before
// anything is mutated or audited. A failed remote write is rolled back by the
// coordinator and nothing is audited. The write only lands while the stored
// status still equals the one the edge was checked against; a stale view
// fails with CodeInvalidTransition. The status write and the audit append
// are not atomic: if the append fails after the write landed, the result is
// returned together with the error.
func (e *Engine) Apply(ctx context.Context, id domain.AnomalyID, next domain.AnomalyStatus, actor Actor) (*Result, error) {
	if !next.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid target status")
	}
	scope := actor.Scope()

	current, err := e.current(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	prev := current.Status
	if !CanTransition(prev, next) {
		if e.metrics != nil {
			e.metrics.IncrementTransition(string(prev), string(next), false)
		}
		return nil, dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("cannot transition anomaly from %s to %s", prev, next))
	}

	now := requestcontext.Now(ctx)
	var actionedBy *string
	if actor.UserID != "" {
		actionedBy = &actor.UserID
	}
	var updated *models.Anomaly
	write := func(ctx context.Context) error {
		u, err := e.repo.UpdateAnomalyStatus(ctx, remote.StatusUpdate{
			ID:         id,
			From:       prev,
			Status:     next,
			ActionedBy: actionedBy,
			At:         now,
		})
		if err != nil {
			return fmt.Errorf("update anomaly status: %w", err)
		}
		updated = u
		return nil
	}
	if _, err := e.coordinator.Apply(ctx, scope, mutationName, cache.PatchingStatus(id, next), write); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			// The cached status was stale and the remote row has moved on.
			if e.metrics != nil {
				e.metrics.IncrementTransition(string(prev), string(next), false)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidTransition,
				fmt.Sprintf("anomaly is no longer %s, refresh and retry", prev))
		}
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.IncrementTransition(string(prev), string(next), true)
	}

	result := &Result{Anomaly: current}
	if updated != nil {
		result.Anomaly = *updated
	}

	entry, err := e.auditor.Append(ctx, statusEntry(current, prev, next, actor))
	if err != nil {
		e.logger.ErrorContext(ctx, "status updated but audit append failed",
			"anomaly_id", id,
			"from", prev,
			"to", next,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return result, fmt.Errorf("status updated, audit append failed: %w", err)
	}
	result.Entry = entry
	return result, nil
}

// current prefers the actor's cached view and falls back to the remote store
// for anomalies outside it.
func (e *Engine) current(ctx context.Context, scope cache.ScopeKey, id domain.AnomalyID) (models.Anomaly, error) {
	if a, ok := e.lookup.Find(scope, id); ok {
		return a, nil
	}
	found, err := e.repo.ListAnomalies(ctx, remote.AnomalyFilter{IDs: []domain.AnomalyID{id}, Limit: 1})
	if err != nil {
		return models.Anomaly{}, dErrors.Wrap(err, dErrors.CodeRemoteRead, "load anomaly")
	}
	if len(found) == 0 {
		return models.Anomaly{}, dErrors.New(dErrors.CodeNotFound, "anomaly not found")
	}
	return found[0], nil
}

func statusEntry(a models.Anomaly, prev, next domain.AnomalyStatus, actor Actor) audit.Entry {
	label := a.EntityLabel
	oldV, newV := string(prev), string(next)
	detail := fmt.Sprintf("Status transitioned from %s to %s", prev, next)
	role := actor.Role.String()
	e := audit.Entry{
		TableName:          auditTable,
		RecordID:           a.ID.String(),
		RecordLabel:        &label,
		FieldChanged:       auditField,
		OldValue:           &oldV,
		NewValue:           &newV,
		RoleAtTimeOfChange: &role,
		TriggerSource:      domain.TriggerManual,
		TriggerDetail:      &detail,
	}
	if actor.UserID != "" {
		uid := actor.UserID
		e.ChangedByUserID = &uid
	}
	if actor.Name != "" {
		name := actor.Name
		e.ChangedByName = &name
	}
	return e
}
