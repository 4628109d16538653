package transition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"nexops/internal/anomaly/cache"
	"nexops/internal/anomaly/models"
	"nexops/internal/anomaly/mutation"
	"nexops/internal/anomaly/transition/mocks"
	"nexops/internal/audit"
	auditmemory "nexops/internal/audit/store/memory"
	"nexops/internal/remote"
	remotememory "nexops/internal/remote/memory"
	"nexops/internal/roles"
	"nexops/pkg/domain"
	dErrors "nexops/pkg/domain-errors"
	"nexops/pkg/requestcontext"
)

func TestStateMachine(t *testing.T) {
	cases := []struct {
		from, to domain.AnomalyStatus
		ok       bool
	}{
		{domain.StatusOpen, domain.StatusInvestigating, true},
		{domain.StatusOpen, domain.StatusResolved, true},
		{domain.StatusInvestigating, domain.StatusResolved, true},
		{domain.StatusInvestigating, domain.StatusOpen, false},
		{domain.StatusResolved, domain.StatusOpen, false},
		{domain.StatusResolved, domain.StatusInvestigating, false},
		{domain.StatusOpen, domain.StatusOpen, false},
		{domain.StatusResolved, domain.StatusResolved, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
	assert.Empty(t, Allowed(domain.StatusResolved))
	assert.Equal(t, []domain.AnomalyStatus{domain.StatusResolved}, Allowed(domain.StatusInvestigating))
}

type countingPending struct{ inc, dec int }

func (c *countingPending) IncrementPending() { c.inc++ }
func (c *countingPending) DecrementPending() { c.dec++ }

type EngineSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	remote  *remotememory.Store
	cache   *cache.Store
	pending *countingPending
	ledger  *auditmemory.Store
	audit   *audit.Service
	engine  *Engine
	actor   Actor
	id      domain.AnomalyID
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.now = time.Date(2026, 7, 3, 9, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.remote = remotememory.New(remotememory.WithClock(func() time.Time { return s.now }))
	s.cache = cache.New(s.remote, cache.WithRetryDelay(time.Millisecond))
	s.actor = Actor{UserID: "u-17", Name: "Dana Ruiz", Role: roles.WarehouseManager}
	s.cache.Register(s.actor.Scope(), domain.Severities())
	s.pending = &countingPending{}
	s.ledger = auditmemory.New()
	s.audit = audit.NewService(s.ledger, audit.WithClock(func() time.Time { return s.now }))

	s.id = domain.NewAnomalyID()
	s.remote.PutAnomaly(s.ctx, models.Anomaly{
		ID:            s.id,
		Type:          domain.TypeShipmentDelayed,
		Severity:      domain.SeverityWarning,
		EntityType:    domain.EntityShipment,
		EntityID:      "sh-1042",
		EntityLabel:   "Shipment #SH-1042",
		TriggerSource: domain.TriggerAI,
		Status:        domain.StatusOpen,
		TriggeredAt:   s.now.Add(-time.Hour),
		UpdatedAt:     s.now.Add(-time.Hour),
	})
	_, err := s.cache.Get(s.ctx, s.actor.Scope())
	s.Require().NoError(err)

	coordinator := mutation.New(s.cache, s.pending)
	s.engine = New(s.cache, s.remote, coordinator, s.audit)
}

func (s *EngineSuite) TestFullLifecycleProducesTwoEntries() {
	res, err := s.engine.Apply(s.ctx, s.id, domain.StatusInvestigating, s.actor)
	s.Require().NoError(err)
	s.Equal(domain.StatusInvestigating, res.Anomaly.Status)
	s.Require().NotNil(res.Anomaly.ActionedBy)
	s.Equal("u-17", *res.Anomaly.ActionedBy)
	s.Equal("Status transitioned from open to investigating", *res.Entry.TriggerDetail)

	_, err = s.engine.Apply(s.ctx, s.id, domain.StatusResolved, s.actor)
	s.Require().NoError(err)

	entries, err := s.audit.Scoped(s.ctx, s.id.String())
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	latest := entries[0]
	s.Equal(remote.TableAnomalies, latest.TableName)
	s.Equal("status", latest.FieldChanged)
	s.Equal("investigating", *latest.OldValue)
	s.Equal("resolved", *latest.NewValue)
	s.Equal("Shipment #SH-1042", *latest.RecordLabel)
	s.Equal("Dana Ruiz", *latest.ChangedByName)
	s.Equal("warehouse_manager", *latest.RoleAtTimeOfChange)
	s.Equal(domain.TriggerManual, latest.TriggerSource)

	s.NoError(s.audit.VerifyChain(s.ctx))
	s.Empty(s.cache.Snapshot(s.actor.Scope()).Items, "resolved anomalies leave the active view")
	s.Equal(2, s.pending.inc)
	s.Equal(2, s.pending.dec)
}

func (s *EngineSuite) TestInvalidTransitionTouchesNothing() {
	_, err := s.engine.Apply(s.ctx, s.id, domain.StatusResolved, s.actor)
	s.Require().NoError(err)
	pendingBefore := s.pending.inc

	for _, next := range []domain.AnomalyStatus{domain.StatusOpen, domain.StatusInvestigating, domain.StatusResolved} {
		_, err := s.engine.Apply(s.ctx, s.id, next, s.actor)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition), "resolved -> %s", next)
	}

	s.Equal(pendingBefore, s.pending.inc, "no mutation was issued")
	entries, err := s.audit.Scoped(s.ctx, s.id.String())
	s.Require().NoError(err)
	s.Len(entries, 1)
}

func (s *EngineSuite) TestStaleViewCannotMoveStatusBack() {
	finance := Actor{UserID: "u-5", Name: "Noor Haddad", Role: roles.Finance}
	s.cache.Register(finance.Scope(), domain.Severities())
	_, err := s.cache.Get(s.ctx, finance.Scope())
	s.Require().NoError(err)

	_, err = s.engine.Apply(s.ctx, s.id, domain.StatusResolved, s.actor)
	s.Require().NoError(err)

	cached, ok := s.cache.Find(finance.Scope(), s.id)
	s.Require().True(ok)
	s.Require().Equal(domain.StatusOpen, cached.Status, "finance view has not been refreshed")

	_, err = s.engine.Apply(s.ctx, s.id, domain.StatusInvestigating, finance)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	stored, err := s.remote.ListAnomalies(s.ctx, remote.AnomalyFilter{IDs: []domain.AnomalyID{s.id}})
	s.Require().NoError(err)
	s.Require().Len(stored, 1)
	s.Equal(domain.StatusResolved, stored[0].Status)

	entries, err := s.audit.Scoped(s.ctx, s.id.String())
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("open", *entries[0].OldValue)
	s.Equal("resolved", *entries[0].NewValue)
}

func (s *EngineSuite) TestUnknownAnomaly() {
	_, err := s.engine.Apply(s.ctx, domain.NewAnomalyID(), domain.StatusResolved, s.actor)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *EngineSuite) TestInvalidTargetStatus() {
	_, err := s.engine.Apply(s.ctx, s.id, "archived", s.actor)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *EngineSuite) TestFallsBackToRemoteOutsideTheView() {
	ceo := Actor{UserID: "u-1", Name: "Avery Chen", Role: roles.CEO}
	s.cache.Register(ceo.Scope(), []domain.Severity{domain.SeverityCritical})

	res, err := s.engine.Apply(s.ctx, s.id, domain.StatusInvestigating, ceo)
	s.Require().NoError(err)
	s.Equal(domain.StatusInvestigating, res.Anomaly.Status)
	s.Equal("ceo", *res.Entry.RoleAtTimeOfChange)
}

func TestFailedWriteIsNotAudited(t *testing.T) {
	ctrl := gomock.NewController(t)
	lookup := mocks.NewMockLookup(ctrl)
	repo := mocks.NewMockRepository(ctrl)
	applier := mocks.NewMockApplier(ctrl)
	auditor := mocks.NewMockAuditor(ctrl)

	id := domain.NewAnomalyID()
	actor := Actor{UserID: "u-2", Name: "Sam Otieno", Role: roles.Finance}
	lookup.EXPECT().Find(actor.Scope(), id).Return(models.Anomaly{ID: id, Status: domain.StatusOpen}, true)
	applier.EXPECT().Apply(gomock.Any(), actor.Scope(), mutationName, gomock.Any(), gomock.Any()).
		Return(nil, dErrors.Wrap(errors.New("denied"), dErrors.CodeRemoteWrite, "update anomaly status failed, changes rolled back"))
	auditor.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)

	_, err := New(lookup, repo, applier, auditor).Apply(context.Background(), id, domain.StatusResolved, actor)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRemoteWrite))
}

func TestAuditFailureAfterWriteIsSurfaced(t *testing.T) {
	ctrl := gomock.NewController(t)
	lookup := mocks.NewMockLookup(ctrl)
	repo := mocks.NewMockRepository(ctrl)
	applier := mocks.NewMockApplier(ctrl)
	auditor := mocks.NewMockAuditor(ctrl)

	id := domain.NewAnomalyID()
	actor := Actor{UserID: "u-2", Name: "Sam Otieno", Role: roles.Finance}
	lookup.EXPECT().Find(actor.Scope(), id).Return(models.Anomaly{ID: id, Status: domain.StatusOpen}, true)
	repo.EXPECT().UpdateAnomalyStatus(gomock.Any(), gomock.Any()).
		Return(&models.Anomaly{ID: id, Status: domain.StatusResolved}, nil)
	applier.EXPECT().Apply(gomock.Any(), actor.Scope(), mutationName, gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ cache.ScopeKey, _ string, _ cache.Transform, write mutation.Write) (*mutation.Command, error) {
			return &mutation.Command{}, write(ctx)
		})
	cause := errors.New("ledger offline")
	auditor.EXPECT().Append(gomock.Any(), gomock.Any()).Return(audit.Entry{}, cause)

	res, err := New(lookup, repo, applier, auditor).Apply(context.Background(), id, domain.StatusResolved, actor)
	assert.ErrorIs(t, err, cause)
	if assert.NotNil(t, res) {
		assert.Equal(t, domain.StatusResolved, res.Anomaly.Status)
	}
}
