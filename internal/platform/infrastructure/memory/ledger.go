package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/procopio420/basecommerce/internal/common/types"
	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// Ledger is the in-memory processed-event ledger. Writes issued through a
// memory Tx are staged and commit with the Atomic callback.
type Ledger struct {
	store *DataStore
}

// WasProcessed reports whether the event id is recorded.
func (l *Ledger) WasProcessed(ctx context.Context, id types.EventID) (bool, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	_, ok := l.store.processed[id.String()]
	return ok, nil
}

// RecordProcessed stages the ledger row when q is a memory Tx, so a failing
// callback discards it. Outside a Tx the row commits immediately.
func (l *Ledger) RecordProcessed(ctx context.Context, q domain.Querier, id types.EventID, tenantID types.TenantID, kind domain.EventKind, result map[string]any) error {
	row := processedRow{
		tenantID:    tenantID.String(),
		kind:        kind,
		result:      result,
		processedAt: time.Now(),
	}

	if tx, ok := q.(*Tx); ok {
		// Atomic holds the lock while the callback runs.
		if _, dup := tx.parent.processed[id.String()]; dup {
			return fmt.Errorf("event %s: %w", id, domain.ErrAlreadyProcessed)
		}
		if _, dup := tx.stagedProcessed[id.String()]; dup {
			return fmt.Errorf("event %s: %w", id, domain.ErrAlreadyProcessed)
		}
		tx.stagedProcessed[id.String()] = row
		return nil
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if _, dup := l.store.processed[id.String()]; dup {
		return fmt.Errorf("event %s: %w", id, domain.ErrAlreadyProcessed)
	}
	l.store.processed[id.String()] = row
	return nil
}

var _ domain.Ledger = (*Ledger)(nil)
