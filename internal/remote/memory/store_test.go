package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"nexops/internal/anomaly/models"
	"nexops/internal/feed"
	feedmemory "nexops/internal/feed/memory"
	"nexops/internal/remote"
	"nexops/pkg/domain"
	"nexops/pkg/platform/sentinel"
)

type StoreSuite struct {
	suite.Suite
	store  *Store
	broker *feedmemory.Broker
	sub    feed.Subscription
	now    time.Time
	ctx    context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	s.broker = feedmemory.NewBroker()
	s.store = New(WithPublisher(s.broker), WithClock(func() time.Time { return s.now }))

	sub, err := s.broker.Subscribe(s.ctx, feed.Topic{Op: feed.OpAny})
	s.Require().NoError(err)
	<-sub.Status()
	s.sub = sub
}

func (s *StoreSuite) TearDownTest() {
	_ = s.sub.Close()
}

func (s *StoreSuite) nextEvent() feed.Event {
	select {
	case ev := <-s.sub.Events():
		return ev
	case <-time.After(time.Second):
		s.FailNow("no change event published")
	}
	return feed.Event{}
}

func newAnomaly(entity string, sev domain.Severity) models.NewAnomaly {
	return models.NewAnomaly{
		Type:          domain.TypeShipmentDelayed,
		Severity:      sev,
		EntityType:    domain.EntityShipment,
		EntityID:      entity,
		EntityLabel:   "Shipment #" + entity,
		TriggerSource: domain.TriggerAI,
	}
}

func (s *StoreSuite) TestInsertAnomalies() {
	s.Run("assigns identity and open status then publishes inserts", func() {
		out, err := s.store.InsertAnomalies(s.ctx, []models.NewAnomaly{
			newAnomaly("s-1", domain.SeverityWatch),
			newAnomaly("s-2", domain.SeverityCritical),
		})
		s.Require().NoError(err)
		s.Require().Len(out, 2)
		for _, a := range out {
			s.False(a.ID.IsProvisional())
			s.Equal(domain.StatusOpen, a.Status)
			s.Equal(s.now, a.TriggeredAt)
		}
		s.Equal(feed.OpInsert, s.nextEvent().Op)
		s.Equal(feed.OpInsert, s.nextEvent().Op)
	})

	s.Run("empty batch is a no-op", func() {
		out, err := s.store.InsertAnomalies(s.ctx, nil)
		s.NoError(err)
		s.Empty(out)
	})
}

func (s *StoreSuite) TestListAnomaliesFiltersAndOrders() {
	old := models.Anomaly{ID: "old", Severity: domain.SeverityWatch, Status: domain.StatusOpen, TriggeredAt: s.now.Add(-time.Hour)}
	recent := models.Anomaly{ID: "recent", Severity: domain.SeverityWatch, Status: domain.StatusOpen, TriggeredAt: s.now}
	done := models.Anomaly{ID: "done", Severity: domain.SeverityWatch, Status: domain.StatusResolved, TriggeredAt: s.now}
	s.store.PutAnomaly(s.ctx, old)
	s.store.PutAnomaly(s.ctx, recent)
	s.store.PutAnomaly(s.ctx, done)

	got, err := s.store.ListAnomalies(s.ctx, remote.AnomalyFilter{
		ExcludeStatuses: []domain.AnomalyStatus{domain.StatusResolved},
	})
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(domain.AnomalyID("recent"), got[0].ID)
	s.Equal(domain.AnomalyID("old"), got[1].ID)

	capped, err := s.store.ListAnomalies(s.ctx, remote.AnomalyFilter{Limit: 1})
	s.Require().NoError(err)
	s.Len(capped, 1)

	n, err := s.store.CountAnomalies(s.ctx, remote.AnomalyFilter{Limit: 1})
	s.Require().NoError(err)
	s.Equal(3, n)
}

func (s *StoreSuite) TestUpdateAnomalyStatus() {
	s.store.PutAnomaly(s.ctx, models.Anomaly{ID: "a-1", Status: domain.StatusOpen})
	s.nextEvent()

	s.Run("sets actioned fields", func() {
		by := "user-1"
		at := s.now.Add(time.Minute)
		got, err := s.store.UpdateAnomalyStatus(s.ctx, remote.StatusUpdate{
			ID: "a-1", Status: domain.StatusInvestigating, ActionedBy: &by, At: at,
		})
		s.Require().NoError(err)
		s.Equal(domain.StatusInvestigating, got.Status)
		s.Equal(&by, got.ActionedBy)
		s.Equal(at, *got.ActionedAt)
		s.Equal(at, got.UpdatedAt)
		s.Equal(feed.OpUpdate, s.nextEvent().Op)
	})

	s.Run("stale source status is rejected", func() {
		_, err := s.store.UpdateAnomalyStatus(s.ctx, remote.StatusUpdate{
			ID: "a-1", From: domain.StatusOpen, Status: domain.StatusResolved,
		})
		s.ErrorIs(err, sentinel.ErrInvalidState)

		got, err := s.store.ListAnomalies(s.ctx, remote.AnomalyFilter{IDs: []domain.AnomalyID{"a-1"}})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(domain.StatusInvestigating, got[0].Status)
	})

	s.Run("matching source status lands", func() {
		got, err := s.store.UpdateAnomalyStatus(s.ctx, remote.StatusUpdate{
			ID: "a-1", From: domain.StatusInvestigating, Status: domain.StatusResolved,
		})
		s.Require().NoError(err)
		s.Equal(domain.StatusResolved, got.Status)
		s.nextEvent()
	})

	s.Run("missing anomaly is not found", func() {
		_, err := s.store.UpdateAnomalyStatus(s.ctx, remote.StatusUpdate{ID: "nope", Status: domain.StatusResolved})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("soft-deleted anomaly is not found", func() {
		s.Require().NoError(s.store.SoftDeleteAnomaly(s.ctx, "a-1"))
		_, err := s.store.UpdateAnomalyStatus(s.ctx, remote.StatusUpdate{ID: "a-1", Status: domain.StatusResolved})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *StoreSuite) TestListShipments() {
	eta := s.now
	s.store.PutShipment(s.ctx, remote.ShipmentSnapshot{ID: "b", CurrentStatus: domain.ShipmentInTransit, ScheduledETA: &eta, PredictedETA: &eta})
	s.store.PutShipment(s.ctx, remote.ShipmentSnapshot{ID: "a", CurrentStatus: domain.ShipmentDelivered, ScheduledETA: &eta, PredictedETA: &eta})
	s.store.PutShipment(s.ctx, remote.ShipmentSnapshot{ID: "c", CurrentStatus: domain.ShipmentInTransit})

	all, err := s.store.ListShipments(s.ctx, remote.ShipmentFilter{})
	s.Require().NoError(err)
	s.Len(all, 3)
	s.Equal("a", all[0].ID)

	live, err := s.store.ListShipments(s.ctx, remote.ShipmentFilter{
		RequireETAs:     true,
		ExcludeStatuses: []domain.ShipmentStatus{domain.ShipmentDelivered, domain.ShipmentCancelled},
	})
	s.Require().NoError(err)
	s.Require().Len(live, 1)
	s.Equal("b", live[0].ID)
}
