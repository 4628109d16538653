//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"nexops/internal/audit"
	"nexops/internal/audit/store/postgres"
	"nexops/pkg/domain"
	"nexops/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	service  *audit.Service
	store    *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.service = audit.NewService(s.store)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_log"))
}

func entry(record string) audit.Entry {
	label := "Shipment #" + record
	detail := "Status transitioned from open to resolved"
	oldV, newV := "open", "resolved"
	return audit.Entry{
		TableName:     "anomalies",
		RecordID:      record,
		RecordLabel:   &label,
		FieldChanged:  "status",
		OldValue:      &oldV,
		NewValue:      &newV,
		TriggerSource: domain.TriggerManual,
		TriggerDetail: &detail,
	}
}

func (s *PostgresStoreSuite) TestAppendAndReadBack() {
	ctx := context.Background()
	written, err := s.service.Append(ctx, entry("a-1"))
	s.Require().NoError(err)

	got, err := s.service.Scoped(ctx, "a-1")
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(written.ID, got[0].ID)
	s.Equal(written.Hash, got[0].Hash)
	s.True(written.ChangedAt.Equal(got[0].ChangedAt))
	s.Equal("Status transitioned from open to resolved", *got[0].TriggerDetail)

	s.NoError(s.service.VerifyChain(ctx), "hashes must survive the round trip through postgres")
}

// TestConcurrentAppendsKeepOneChain verifies the advisory lock: concurrent
// appends still produce a single linear chain.
func (s *PostgresStoreSuite) TestConcurrentAppendsKeepOneChain() {
	ctx := context.Background()
	const writers = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Append(ctx, entry("a-concurrent"))
			s.NoError(err)
		}()
	}
	wg.Wait()

	chain, err := s.store.ListChain(ctx)
	s.Require().NoError(err)
	s.Len(chain, writers)
	s.NoError(audit.Verify(chain))
}

func (s *PostgresStoreSuite) TestLedgerRejectsUpdateAndDelete() {
	ctx := context.Background()
	_, err := s.service.Append(ctx, entry("a-1"))
	s.Require().NoError(err)

	_, err = s.postgres.DB.ExecContext(ctx, `UPDATE audit_log SET new_value = 'open'`)
	s.Error(err)
	_, err = s.postgres.DB.ExecContext(ctx, `DELETE FROM audit_log`)
	s.Error(err)
}

func (s *PostgresStoreSuite) TestListSinceWindow() {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.service.Append(ctx, entry("a-1"))
		s.Require().NoError(err)
	}

	recent, err := s.store.ListSince(ctx, time.Now().Add(-time.Hour), 2)
	s.Require().NoError(err)
	s.Len(recent, 2)
	s.True(recent[0].Seq > recent[1].Seq)

	none, err := s.store.ListSince(ctx, time.Now().Add(time.Hour), 10)
	s.Require().NoError(err)
	s.Empty(none)
}
