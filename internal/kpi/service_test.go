package kpi

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"nexops/internal/anomaly/models"
	"nexops/internal/remote"
	remotememory "nexops/internal/remote/memory"
	"nexops/internal/remote/mocks"
	"nexops/pkg/domain"
	dErrors "nexops/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	ctx    context.Context
	store  *remotememory.Store
	svc    *Service
	pushed atomic.Int32
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = remotememory.New()
	s.svc = NewService(s.store, s.store, WithClock(func() time.Time { return now }), WithRetryDelay(time.Millisecond))
	s.pushed.Store(0)
	s.svc.OnChange(func(Metrics) { s.pushed.Add(1) })

	s.store.PutShipment(s.ctx, withID("s1", snap(domain.ShipmentDelivered, 0)))
	s.store.PutShipment(s.ctx, withID("s2", snap(domain.ShipmentDelivered, 2*time.Hour)))
	s.putAnomaly(domain.SeverityCritical, domain.StatusOpen)
	s.putAnomaly(domain.SeverityCritical, domain.StatusInvestigating)
	s.putAnomaly(domain.SeverityCritical, domain.StatusResolved)
	s.putAnomaly(domain.SeverityWarning, domain.StatusOpen)
}

func withID(id string, sh remote.ShipmentSnapshot) remote.ShipmentSnapshot {
	sh.ID = id
	return sh
}

func (s *ServiceSuite) putAnomaly(sev domain.Severity, status domain.AnomalyStatus) {
	s.store.PutAnomaly(s.ctx, models.Anomaly{
		ID:          domain.NewAnomalyID(),
		Severity:    sev,
		Status:      status,
		TriggeredAt: now,
	})
}

func (s *ServiceSuite) TestComposesCriticalCount() {
	m, err := s.svc.Metrics(s.ctx)
	s.Require().NoError(err)
	s.Equal(50.0, m.OTIFRate)
	s.Equal(2, m.CriticalAnomalies)
	s.Equal(int32(1), s.pushed.Load())
}

func (s *ServiceSuite) TestMetricsAreCachedUntilInvalidated() {
	_, err := s.svc.Metrics(s.ctx)
	s.Require().NoError(err)

	s.store.PutShipment(s.ctx, withID("s3", snap(domain.ShipmentDelivered, 0)))
	m, err := s.svc.Metrics(s.ctx)
	s.Require().NoError(err)
	s.Equal(50.0, m.OTIFRate)

	s.Require().NoError(s.svc.Invalidate(s.ctx))
	m, err = s.svc.Metrics(s.ctx)
	s.Require().NoError(err)
	s.Equal(66.7, m.OTIFRate)
}

func (s *ServiceSuite) TestRunRefreshesPeriodically() {
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	go func() {
		s.svc.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	s.Eventually(func() bool { return s.pushed.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func (s *ServiceSuite) TestFailedRefreshKeepsPreviousMetrics() {
	ctrl := gomock.NewController(s.T())
	shipments := mocks.NewMockShipmentRepository(ctrl)
	gomock.InOrder(
		shipments.EXPECT().ListShipments(gomock.Any(), gomock.Any()).
			Return([]remote.ShipmentSnapshot{snap(domain.ShipmentDelivered, 0)}, nil),
		shipments.EXPECT().ListShipments(gomock.Any(), gomock.Any()).
			Return(nil, errors.New("connection reset")).Times(2),
	)
	svc := NewService(shipments, s.store, WithRetryDelay(time.Millisecond))

	first, err := svc.Refresh(s.ctx)
	s.Require().NoError(err)

	_, err = svc.Refresh(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeRemoteRead))

	cached, err := svc.Metrics(s.ctx)
	s.Require().NoError(err)
	s.Equal(first, cached)
}

func (s *ServiceSuite) TestReadIsRetriedOnce() {
	ctrl := gomock.NewController(s.T())
	anomalies := mocks.NewMockAnomalyRepository(ctrl)
	gomock.InOrder(
		anomalies.EXPECT().CountAnomalies(gomock.Any(), criticalOpen).Return(0, errors.New("blip")),
		anomalies.EXPECT().CountAnomalies(gomock.Any(), criticalOpen).Return(4, nil),
	)
	svc := NewService(s.store, anomalies, WithRetryDelay(time.Millisecond))

	m, err := svc.Refresh(s.ctx)
	s.Require().NoError(err)
	s.Equal(4, m.CriticalAnomalies)
}
