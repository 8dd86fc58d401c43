package application

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/procopio420/basecommerce/internal/common/metrics"
	"github.com/procopio420/basecommerce/internal/common/types"
	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// Publisher appends events to the outbox from inside a producer's business
// transaction. It is the only write path into the outbox.
type Publisher struct {
	outbox domain.OutboxStore
}

// NewPublisher creates a Publisher over the given outbox store.
func NewPublisher(outbox domain.OutboxStore) *Publisher {
	return &Publisher{outbox: outbox}
}

// Publish stages a pending event in the caller's open transaction. The event
// becomes visible to the relay only when the transaction commits; a rollback
// discards it together with the business write.
func (p *Publisher) Publish(ctx context.Context, tx pgx.Tx, tenantID types.TenantID, kind domain.EventKind, payload any, version string) (*domain.Event, error) {
	event, err := domain.NewEvent(tenantID, kind, payload, version)
	if err != nil {
		return nil, err
	}

	if err := p.outbox.Append(ctx, tx, event); err != nil {
		return nil, err
	}

	metrics.OutboxAppendedTotal.WithLabelValues(kind.String()).Inc()
	return event, nil
}
