package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexops/internal/anomaly/models"
	"nexops/internal/anomaly/transition"
	"nexops/internal/audit"
	auditmemory "nexops/internal/audit/store/memory"
	feedmemory "nexops/internal/feed/memory"
	"nexops/internal/kpi"
	"nexops/internal/remote"
	remotememory "nexops/internal/remote/memory"
	"nexops/internal/roles"
	"nexops/internal/syncstate"
	"nexops/pkg/domain"
	dErrors "nexops/pkg/domain-errors"
	"nexops/pkg/platform/sentinel"
	"nexops/pkg/requestcontext"
	"nexops/pkg/testutil"
)

type fixture struct {
	ctx     context.Context
	now     time.Time
	broker  *feedmemory.Broker
	remote  *remotememory.Store
	session *Session
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return buildFixture(t, true, opts...)
}

// newQuietFixture's remote store publishes nothing, so role views only change
// when the session refetches them itself.
func newQuietFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return buildFixture(t, false, opts...)
}

func buildFixture(t *testing.T, publish bool, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2026, 6, 2, 14, 0, 0, 0, time.UTC)}
	f.ctx = requestcontext.WithTime(context.Background(), f.now)
	clock := func() time.Time { return f.now }
	f.broker = feedmemory.NewBroker(feedmemory.WithClock(clock))
	remoteOpts := []remotememory.Option{remotememory.WithClock(clock)}
	if publish {
		remoteOpts = append(remoteOpts, remotememory.WithPublisher(f.broker))
	}
	f.remote = remotememory.New(remoteOpts...)

	base := []Option{WithClock(clock), WithReadRetryDelay(time.Millisecond)}
	s, err := New(Deps{
		Anomalies: f.remote,
		Shipments: f.remote,
		Audit:     auditmemory.New(),
		Feed:      f.broker,
	}, append(base, opts...)...)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	f.session = s
	return f
}

func (f *fixture) waitLive(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.session.SyncState().Status == syncstate.StatusLive
	}, 2*time.Second, 5*time.Millisecond)
}

func (f *fixture) lateShipment(id string, late time.Duration) {
	sched := f.now
	pred := f.now.Add(late)
	f.remote.PutShipment(f.ctx, remote.ShipmentSnapshot{
		ID:              id,
		ReferenceNumber: "REF-" + id,
		CurrentStatus:   domain.ShipmentInTransit,
		ScheduledETA:    &sched,
		PredictedETA:    &pred,
	})
}

func newAnomaly(sev domain.Severity) models.NewAnomaly {
	return models.NewAnomaly{
		Type:          domain.TypeDriverOffline,
		Severity:      sev,
		EntityType:    domain.EntityDriver,
		EntityID:      "drv-4",
		EntityLabel:   "Driver 4",
		TriggerSource: domain.TriggerManual,
	}
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)

	testutil.Then(t, "the session goes live once subscribed", func(t *testing.T) {
		f.waitLive(t)
		assert.Zero(t, f.session.SyncState().PendingOps)
	})

	testutil.When(t, "the session is closed", func(t *testing.T) {
		require.NoError(t, f.session.Close())
		require.NoError(t, f.session.Close())

		assert.Equal(t, syncstate.StatusOffline, f.session.SyncState().Status)
		assert.Zero(t, f.broker.Subscribers())
		assert.ErrorIs(t, f.session.Start(context.Background()), sentinel.ErrClosed)
	})
}

func TestMountRunsDetectionOnce(t *testing.T) {
	f := newFixture(t)
	f.lateShipment("s1", 90*time.Minute)
	f.lateShipment("s2", 45*time.Minute)

	testutil.Given(t, "a shipment predicted 90 minutes late", func(t *testing.T) {
		view, err := f.session.Mount(f.ctx, roles.WarehouseManager)
		require.NoError(t, err)
		require.Len(t, view, 1)
		assert.Equal(t, "Shipment #REF-s1", view[0].EntityLabel)
		assert.Equal(t, domain.SeverityWatch, view[0].Severity)
		assert.Equal(t, domain.TriggerAI, view[0].TriggerSource)
	})

	testutil.When(t, "the role is mounted again", func(t *testing.T) {
		_, err := f.session.Mount(f.ctx, roles.WarehouseManager)
		require.NoError(t, err)

		n, err := f.remote.CountAnomalies(f.ctx, remote.AnomalyFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	testutil.And(t, "a role without watch severity does not see the flag", func(t *testing.T) {
		view, err := f.session.ActiveAnomalies(f.ctx, roles.CEO)
		require.NoError(t, err)
		assert.Empty(t, view)
	})
}

func TestStatusLifecycleIsAudited(t *testing.T) {
	f := newFixture(t)
	actor := transition.Actor{UserID: "u-1", Name: "Sam Okafor", Role: roles.WarehouseManager}

	stored, err := f.session.InsertAnomaly(f.ctx, roles.WarehouseManager, newAnomaly(domain.SeverityCritical))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.ID.IsProvisional())

	view, err := f.session.ActiveAnomalies(f.ctx, roles.WarehouseManager)
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Equal(t, stored.ID, view[0].ID)

	testutil.When(t, "the anomaly is investigated then resolved", func(t *testing.T) {
		_, err := f.session.ApplyStatusTransition(f.ctx, stored.ID, domain.StatusInvestigating, actor)
		require.NoError(t, err)
		res, err := f.session.ApplyStatusTransition(f.ctx, stored.ID, domain.StatusResolved, actor)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusResolved, res.Anomaly.Status)
	})

	testutil.Then(t, "the record history holds both changes and the chain verifies", func(t *testing.T) {
		entries, err := f.session.AuditLog(f.ctx, roles.WarehouseManager, audit.Scope{RecordID: stored.ID.String()})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "resolved", *entries[0].NewValue)
		assert.Equal(t, "investigating", *entries[1].NewValue)
		assert.NoError(t, f.session.VerifyAudit(f.ctx))
	})

	testutil.Then(t, "a resolved anomaly leaves the queue and cannot reopen", func(t *testing.T) {
		view, err := f.session.ActiveAnomalies(f.ctx, roles.WarehouseManager)
		require.NoError(t, err)
		assert.Empty(t, view)

		_, err = f.session.ApplyStatusTransition(f.ctx, stored.ID, domain.StatusOpen, actor)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func TestStaleRoleViewCannotReopenResolvedAnomaly(t *testing.T) {
	f := newQuietFixture(t)
	f.waitLive(t)
	manager := transition.Actor{UserID: "u-1", Name: "Sam Okafor", Role: roles.WarehouseManager}
	ceo := transition.Actor{UserID: "u-2", Name: "Avery Chen", Role: roles.CEO}

	stored, err := f.session.InsertAnomaly(f.ctx, roles.WarehouseManager, newAnomaly(domain.SeverityCritical))
	require.NoError(t, err)

	testutil.Given(t, "both roles hold the anomaly as open", func(t *testing.T) {
		for _, r := range []roles.Role{roles.WarehouseManager, roles.CEO} {
			view, err := f.session.ActiveAnomalies(f.ctx, r)
			require.NoError(t, err)
			require.Len(t, view, 1, r.String())
			assert.Equal(t, domain.StatusOpen, view[0].Status)
		}
	})

	testutil.When(t, "the warehouse manager resolves it", func(t *testing.T) {
		_, err := f.session.ApplyStatusTransition(f.ctx, stored.ID, domain.StatusResolved, manager)
		require.NoError(t, err)
	})

	testutil.Then(t, "the CEO's stale view cannot move it back to investigating", func(t *testing.T) {
		_, err := f.session.ApplyStatusTransition(f.ctx, stored.ID, domain.StatusInvestigating, ceo)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))

		got, err := f.remote.ListAnomalies(f.ctx, remote.AnomalyFilter{IDs: []domain.AnomalyID{stored.ID}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, domain.StatusResolved, got[0].Status)
	})

	testutil.And(t, "only the real change is in the ledger", func(t *testing.T) {
		entries, err := f.session.AuditLog(f.ctx, roles.CEO, audit.Scope{RecordID: stored.ID.String()})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "open", *entries[0].OldValue)
		assert.Equal(t, "resolved", *entries[0].NewValue)
		assert.Empty(t, f.session.PendingMutations())
	})
}

func TestInsertAnomalyValidates(t *testing.T) {
	f := newFixture(t)
	bad := newAnomaly(domain.SeverityWarning)
	bad.EntityLabel = ""

	_, err := f.session.InsertAnomaly(f.ctx, roles.WarehouseManager, bad)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Empty(t, f.session.PendingMutations())
}

func TestAuditAccessByRole(t *testing.T) {
	f := newFixture(t)

	_, err := f.session.AuditLog(f.ctx, roles.WarehouseManager, audit.Scope{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	for _, r := range []roles.Role{roles.CEO, roles.Finance} {
		_, err := f.session.AuditLog(f.ctx, r, audit.Scope{})
		assert.NoError(t, err, r.String())
	}
}

func TestRemoteChangesReachEveryView(t *testing.T) {
	f := newFixture(t)
	f.waitLive(t)

	_, err := f.session.ActiveAnomalies(f.ctx, roles.CEO)
	require.NoError(t, err)

	_, err = f.remote.InsertAnomalies(f.ctx, []models.NewAnomaly{newAnomaly(domain.SeverityCritical)})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		view, err := f.session.ActiveAnomalies(f.ctx, roles.CEO)
		return err == nil && len(view) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotNil(t, f.session.SyncState().LastSynced)
}

func TestKPIsFollowShipmentChanges(t *testing.T) {
	f := newFixture(t)
	f.waitLive(t)

	m, err := f.session.KPIs(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, m.ActiveShipments)

	changed := make(chan struct{}, 1)
	f.session.OnKPIChange(func(m kpi.Metrics) {
		if m.ActiveShipments == 1 {
			select {
			case changed <- struct{}{}:
			default:
			}
		}
	})
	f.lateShipment("s1", 10*time.Minute)

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("kpis were not refreshed after a shipment change")
	}
}

func TestFeedFailureSurfacesAsReconnecting(t *testing.T) {
	f := newFixture(t)
	f.waitLive(t)

	f.broker.Fail(errors.New("socket closed"))
	require.Eventually(t, func() bool {
		return f.session.SyncState().Status == syncstate.StatusReconnecting
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.session.Reconnect())
	f.waitLive(t)
}

func TestUnknownRoleIsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.session.ActiveAnomalies(f.ctx, roles.Role(99))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	_, err = f.session.RunDetectionScan(f.ctx, roles.Role(-1))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
