package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/procopio420/basecommerce/internal/common/types"
	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// DeadLetterStore implements domain.DeadLetterStore against the
// event_dead_letters table.
type DeadLetterStore struct {
	db domain.Querier
}

// NewDeadLetterStore creates a DeadLetterStore over a pool or transaction.
func NewDeadLetterStore(db domain.Querier) *DeadLetterStore {
	return &DeadLetterStore{db: db}
}

// Park records an entry that exhausted its delivery attempts. Parking the same
// event twice keeps the latest cause and delivery count.
func (s *DeadLetterStore) Park(ctx context.Context, env domain.Envelope, cause string, deliveryCount int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO event_dead_letters (event_id, tenant_id, kind, version, payload, cause, delivery_count, parked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (event_id) DO UPDATE
		SET cause = excluded.cause,
		    delivery_count = excluded.delivery_count,
		    parked_at = excluded.parked_at`,
		env.EventID.String(), env.TenantID.String(), string(env.Kind),
		env.Version, []byte(env.Payload), cause, deliveryCount,
	)
	if err != nil {
		return fmt.Errorf("parking event %s: %w", env.EventID, err)
	}
	return nil
}

// List returns up to limit parked entries for a tenant, oldest first.
func (s *DeadLetterStore) List(ctx context.Context, tenantID types.TenantID, limit int) ([]domain.DeadLetter, error) {
	rows, err := s.db.Query(ctx, `
		SELECT event_id::text, tenant_id::text, kind, version, payload, cause, delivery_count, parked_at
		FROM event_dead_letters
		WHERE tenant_id = $1
		ORDER BY parked_at, event_id
		LIMIT $2`,
		tenantID.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing dead letters: %w", err)
	}
	defer rows.Close()

	var letters []domain.DeadLetter
	for rows.Next() {
		var (
			rawID, rawTenant, kind, version, cause string
			payload                                []byte
			deliveryCount                          int
			parkedAt                               time.Time
		)
		if err := rows.Scan(&rawID, &rawTenant, &kind, &version, &payload, &cause, &deliveryCount, &parkedAt); err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}

		id, err := types.ParseEventID(rawID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCorruptData, err)
		}
		tid, err := types.ParseTenantID(rawTenant)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCorruptData, err)
		}

		letters = append(letters, domain.DeadLetter{
			Envelope: domain.Envelope{
				EventID:  id,
				TenantID: tid,
				Kind:     domain.EventKind(kind),
				Version:  version,
				Payload:  payload,
			},
			Cause:         cause,
			DeliveryCount: deliveryCount,
			ParkedAt:      parkedAt,
		})
	}
	return letters, rows.Err()
}

// Remove deletes a parked entry after an operator requeued or discarded it.
func (s *DeadLetterStore) Remove(ctx context.Context, id types.EventID) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM event_dead_letters WHERE event_id = $1`,
		id.String(),
	)
	if err != nil {
		return fmt.Errorf("removing dead letter %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dead letter %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

var _ domain.DeadLetterStore = (*DeadLetterStore)(nil)
