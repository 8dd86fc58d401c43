package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/procopio420/basecommerce/internal/common/types"
	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// Ledger implements domain.Ledger against the processed_events table.
type Ledger struct {
	db domain.Querier
}

// NewLedger creates a Ledger over a pool or transaction.
func NewLedger(db domain.Querier) *Ledger {
	return &Ledger{db: db}
}

// WasProcessed reports whether the event's effects are already committed.
func (l *Ledger) WasProcessed(ctx context.Context, id types.EventID) (bool, error) {
	var exists bool
	err := l.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)`,
		id.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking ledger for event %s: %w", id, err)
	}
	return exists, nil
}

// RecordProcessed inserts the ledger row through the dispatch transaction q so
// the row commits with the handler effects.
func (l *Ledger) RecordProcessed(ctx context.Context, q domain.Querier, id types.EventID, tenantID types.TenantID, kind domain.EventKind, result map[string]any) error {
	var resultJSON []byte
	if result != nil {
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encoding handler result: %w", err)
		}
	}

	_, err := q.Exec(ctx, `
		INSERT INTO processed_events (event_id, tenant_id, kind, result, processed_at)
		VALUES ($1, $2, $3, $4, now())`,
		id.String(), tenantID.String(), string(kind), resultJSON,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("event %s: %w", id, domain.ErrAlreadyProcessed)
		}
		return fmt.Errorf("recording event %s processed: %w", id, err)
	}
	return nil
}

var _ domain.Ledger = (*Ledger)(nil)
