package application

import (
	"context"
	"fmt"

	"github.com/procopio420/basecommerce/internal/common/logging"
	"github.com/procopio420/basecommerce/internal/common/types"
	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// listPageSize bounds one dead-letter scan while searching for an entry.
const listPageSize = 1000

// DeadLetterService is the operator path for parked entries: inspect, requeue
// after a fix ships, or discard.
type DeadLetterService struct {
	deadLetters domain.DeadLetterStore
	transport   domain.Transport
}

// NewDeadLetterService creates a DeadLetterService.
func NewDeadLetterService(deadLetters domain.DeadLetterStore, transport domain.Transport) *DeadLetterService {
	return &DeadLetterService{deadLetters: deadLetters, transport: transport}
}

// List returns up to limit parked entries for a tenant, oldest first.
func (s *DeadLetterService) List(ctx context.Context, tenantID types.TenantID, limit int) ([]domain.DeadLetter, error) {
	return s.deadLetters.List(ctx, tenantID, limit)
}

// Requeue republishes a parked entry to its kind's stream and removes the
// parked row. The consumer's ledger still guards against double effects, so
// requeueing an already-processed event is harmless.
func (s *DeadLetterService) Requeue(ctx context.Context, tenantID types.TenantID, id types.EventID) error {
	dl, err := s.find(ctx, tenantID, id)
	if err != nil {
		return err
	}

	if _, err := s.transport.Publish(ctx, dl.Envelope.Kind, dl.Envelope); err != nil {
		return fmt.Errorf("republishing dead letter %s: %w", id, err)
	}
	if err := s.deadLetters.Remove(ctx, id); err != nil {
		return err
	}

	logging.InfoContext(logging.WithEventID(ctx, id), "dead letter requeued", "kind", dl.Envelope.Kind.String())
	return nil
}

// Discard drops a parked entry without republishing it.
func (s *DeadLetterService) Discard(ctx context.Context, tenantID types.TenantID, id types.EventID) error {
	if _, err := s.find(ctx, tenantID, id); err != nil {
		return err
	}
	if err := s.deadLetters.Remove(ctx, id); err != nil {
		return err
	}
	logging.InfoContext(logging.WithEventID(ctx, id), "dead letter discarded")
	return nil
}

func (s *DeadLetterService) find(ctx context.Context, tenantID types.TenantID, id types.EventID) (*domain.DeadLetter, error) {
	letters, err := s.deadLetters.List(ctx, tenantID, listPageSize)
	if err != nil {
		return nil, err
	}
	for i := range letters {
		if letters[i].Envelope.EventID == id {
			return &letters[i], nil
		}
	}
	return nil, fmt.Errorf("dead letter %s: %w", id, domain.ErrNotFound)
}
