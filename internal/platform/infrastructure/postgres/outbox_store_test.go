package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/procopio420/basecommerce/internal/common/types"
	"github.com/procopio420/basecommerce/internal/platform/domain"
	"github.com/procopio420/basecommerce/internal/platform/infrastructure/postgres"
)

type OutboxStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *postgres.OutboxStore
}

func TestOutboxStoreSuite(t *testing.T) {
	suite.Run(t, new(OutboxStoreSuite))
}

func (s *OutboxStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = postgres.NewOutboxStore(getTestPool())
	s.Require().NoError(truncateTables(s.ctx, getTestPool()))
}

func (s *OutboxStoreSuite) append(tenantID types.TenantID, kind domain.EventKind, payload any) *domain.Event {
	event, err := domain.NewEvent(tenantID, kind, payload, "")
	s.Require().NoError(err)

	tx, err := getTestPool().Begin(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(s.ctx, tx, event))
	s.Require().NoError(tx.Commit(s.ctx))
	return event
}

func (s *OutboxStoreSuite) TestAppendRequiresTransaction() {
	event, err := domain.NewEvent(types.NewTenantID(), domain.KindQuoteCreated, nil, "")
	s.Require().NoError(err)
	s.ErrorIs(s.store.Append(s.ctx, nil, event), domain.ErrTransactionRequired)
}

func (s *OutboxStoreSuite) TestAppendRollsBackWithBusinessTransaction() {
	event, err := domain.NewEvent(types.NewTenantID(), domain.KindQuoteCreated, nil, "")
	s.Require().NoError(err)

	tx, err := getTestPool().Begin(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(s.ctx, tx, event))
	s.Require().NoError(tx.Rollback(s.ctx))

	pending, err := s.store.ReadPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *OutboxStoreSuite) TestDuplicateEventIDAbortsTransaction() {
	tenantID := types.NewTenantID()
	event := s.append(tenantID, domain.KindQuoteCreated, map[string]string{"quote_id": "q-1"})

	dup := *event
	dup.Payload = []byte(`{"quote_id":"q-other"}`)

	tx, err := getTestPool().Begin(s.ctx)
	s.Require().NoError(err)
	defer tx.Rollback(s.ctx)
	s.ErrorIs(s.store.Append(s.ctx, tx, &dup), domain.ErrDuplicateEventID)
}

func (s *OutboxStoreSuite) TestReadPendingIsFIFO() {
	tenantID := types.NewTenantID()
	first := s.append(tenantID, domain.KindQuoteCreated, map[string]string{"quote_id": "q-1"})
	time.Sleep(5 * time.Millisecond)
	second := s.append(tenantID, domain.KindQuoteCreated, map[string]string{"quote_id": "q-2"})

	pending, err := s.store.ReadPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(first.ID, pending[0].ID)
	s.Equal(second.ID, pending[1].ID)
	s.Equal(tenantID, pending[0].TenantID)
	s.JSONEq(`{"quote_id":"q-1"}`, string(pending[0].Payload))
}

func (s *OutboxStoreSuite) TestClaimForPublishWinsOnce() {
	event := s.append(types.NewTenantID(), domain.KindSaleRecorded, map[string]string{"order_id": "o-1"})

	claimed, err := s.store.ClaimForPublish(s.ctx, event.ID)
	s.Require().NoError(err)
	s.Require().NotNil(claimed)
	s.Equal(domain.StatusPublishing, claimed.Status)

	// The losing relay gets (nil, nil), not an error.
	again, err := s.store.ClaimForPublish(s.ctx, event.ID)
	s.Require().NoError(err)
	s.Nil(again)
}

func (s *OutboxStoreSuite) TestMarkPublished() {
	event := s.append(types.NewTenantID(), domain.KindSaleRecorded, map[string]string{"order_id": "o-1"})

	s.Run("requires the publishing state", func() {
		s.ErrorIs(s.store.MarkPublished(s.ctx, event.ID), domain.ErrInvalidTransition)
	})

	s.Run("stamps published_at", func() {
		_, err := s.store.ClaimForPublish(s.ctx, event.ID)
		s.Require().NoError(err)
		s.Require().NoError(s.store.MarkPublished(s.ctx, event.ID))

		pending, err := s.store.ReadPending(s.ctx, 10)
		s.Require().NoError(err)
		s.Empty(pending)

		counts, err := s.store.CountByStatus(s.ctx)
		s.Require().NoError(err)
		s.Equal(int64(1), counts[domain.StatusPublished])
	})
}

func (s *OutboxStoreSuite) TestMarkFailedRetriesThenTerminates() {
	event := s.append(types.NewTenantID(), domain.KindSaleRecorded, map[string]string{"order_id": "o-1"})

	// Two failed attempts go back to pending.
	for attempt := 1; attempt <= 2; attempt++ {
		claimed, err := s.store.ClaimForPublish(s.ctx, event.ID)
		s.Require().NoError(err)
		s.Require().NotNil(claimed)
		s.Require().NoError(s.store.MarkFailed(s.ctx, event.ID, "stream unavailable", 3))

		pending, err := s.store.ReadPending(s.ctx, 10)
		s.Require().NoError(err)
		s.Require().Len(pending, 1)
		s.Equal(attempt, pending[0].RetryCount)
		s.Equal("stream unavailable", pending[0].ErrorMessage)
	}

	// The third exhausts the budget.
	claimed, err := s.store.ClaimForPublish(s.ctx, event.ID)
	s.Require().NoError(err)
	s.Require().NotNil(claimed)
	s.Require().NoError(s.store.MarkFailed(s.ctx, event.ID, "stream unavailable", 3))

	counts, err := s.store.CountByStatus(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), counts[domain.StatusFailed])

	// Terminal: claiming a failed row yields nothing.
	again, err := s.store.ClaimForPublish(s.ctx, event.ID)
	s.Require().NoError(err)
	s.Nil(again)
}

func (s *OutboxStoreSuite) TestReclaimStuck() {
	event := s.append(types.NewTenantID(), domain.KindSaleRecorded, map[string]string{"order_id": "o-1"})
	_, err := s.store.ClaimForPublish(s.ctx, event.ID)
	s.Require().NoError(err)

	s.Run("fresh claims are left alone", func() {
		reclaimed, err := s.store.ReclaimStuck(s.ctx, time.Hour)
		s.Require().NoError(err)
		s.Zero(reclaimed)
	})

	s.Run("stale claims return to pending", func() {
		reclaimed, err := s.store.ReclaimStuck(s.ctx, 0)
		s.Require().NoError(err)
		s.Equal(int64(1), reclaimed)

		pending, err := s.store.ReadPending(s.ctx, 10)
		s.Require().NoError(err)
		s.Len(pending, 1)
	})
}

func (s *OutboxStoreSuite) TestPruneOnlyRemovesOldPublishedRows() {
	published := s.append(types.NewTenantID(), domain.KindSaleRecorded, map[string]string{"order_id": "o-1"})
	_, err := s.store.ClaimForPublish(s.ctx, published.ID)
	s.Require().NoError(err)
	s.Require().NoError(s.store.MarkPublished(s.ctx, published.ID))

	s.append(types.NewTenantID(), domain.KindSaleRecorded, map[string]string{"order_id": "o-2"})

	s.Run("rows inside retention survive", func() {
		pruned, err := s.store.Prune(s.ctx, time.Hour)
		s.Require().NoError(err)
		s.Zero(pruned)
	})

	s.Run("only the published row is pruned", func() {
		pruned, err := s.store.Prune(s.ctx, 0)
		s.Require().NoError(err)
		s.Equal(int64(1), pruned)

		counts, err := s.store.CountByStatus(s.ctx)
		s.Require().NoError(err)
		s.Equal(int64(1), counts[domain.StatusPending])
		s.Zero(counts[domain.StatusPublished])
	})
}
