package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"nexops/internal/feed"
	"nexops/internal/outbox"
	"nexops/internal/outbox/mocks"
	"nexops/internal/outbox/store/memory"
	"nexops/internal/platform/kafka"
	"nexops/pkg/platform/circuit"
)

type WorkerSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	producer *mocks.MockProducer
	store    *memory.Store
	writer   *outbox.Writer
	now      time.Time
	breaker  *circuit.Breaker
	worker   *outbox.Worker
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.producer = mocks.NewMockProducer(s.ctrl)
	s.store = memory.New()
	s.writer = outbox.NewWriter(s.store)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.breaker = circuit.New("test",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return s.now }),
	)
	s.worker = outbox.NewWorker(s.store, s.producer,
		outbox.WithBatchSize(2),
		outbox.WithBreaker(s.breaker),
	)
}

func (s *WorkerSuite) publish(n int) {
	for i := 0; i < n; i++ {
		s.Require().NoError(s.writer.Publish(s.ctx, feed.Event{Table: "anomalies", Op: feed.OpUpdate, RecordID: "a"}))
	}
}

func (s *WorkerSuite) pending() int {
	n, err := s.store.Pending(s.ctx)
	s.Require().NoError(err)
	return n
}

func (s *WorkerSuite) TestRelaysInBatches() {
	s.publish(3)

	s.producer.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kafka.Message) error {
			s.Len(msgs, 2)
			s.Equal("update", msgs[0].Headers["event_type"])
			s.Equal("anomalies", msgs[0].Headers["aggregate_type"])
			s.Equal([]byte("a"), msgs[0].Key)
			return nil
		})
	n, err := s.worker.RelayOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	s.producer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil)
	n, err = s.worker.RelayOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Zero(s.pending())
}

func (s *WorkerSuite) TestEmptyOutboxSendsNothing() {
	n, err := s.worker.RelayOnce(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *WorkerSuite) TestFailedSendKeepsRecords() {
	s.publish(1)
	s.producer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	_, err := s.worker.RelayOnce(s.ctx)
	s.Require().Error(err)
	s.Equal(1, s.pending())
}

func (s *WorkerSuite) TestBreakerPausesRelayUntilCooldown() {
	s.publish(1)
	s.producer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("broker down")).Times(2)

	_, err := s.worker.RelayOnce(s.ctx)
	s.Require().Error(err)
	_, err = s.worker.RelayOnce(s.ctx)
	s.Require().Error(err)
	s.True(s.breaker.IsOpen())

	_, err = s.worker.RelayOnce(s.ctx)
	s.ErrorIs(err, outbox.ErrBreakerOpen)

	s.now = s.now.Add(time.Minute)
	s.producer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil)
	n, err := s.worker.RelayOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.False(s.breaker.IsOpen())
}

func (s *WorkerSuite) TestMetricsObserveEachRelay() {
	metrics := mocks.NewMockMetrics(s.ctrl)
	worker := outbox.NewWorker(s.store, s.producer, outbox.WithMetrics(metrics))
	s.publish(1)

	s.producer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil)
	metrics.EXPECT().ObserveRelay(gomock.Any(), 1, nil)

	_, err := worker.RelayOnce(s.ctx)
	s.Require().NoError(err)
}

func (s *WorkerSuite) TestRunStopsOnCancel() {
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- s.worker.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(2 * time.Second):
		s.Fail("worker did not stop")
	}
}
