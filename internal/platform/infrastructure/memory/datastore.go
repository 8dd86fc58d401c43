// Package memory provides in-memory implementations of the platform stores
// for unit tests and the pipeline features. Concurrency: all access is
// guarded by a single mutex, so an Atomic callback sees a stable view.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// DataStore implements domain.AtomicExecutor and holds the in-memory state
// behind the outbox, ledger and dead-letter stores.
type DataStore struct {
	mu          sync.RWMutex
	events      map[string]*eventRow
	order       []string
	processed   map[string]processedRow
	deadLetters map[string]domain.DeadLetter

	outbox     *OutboxStore
	ledger     *Ledger
	deadLetter *DeadLetterStore
}

type eventRow struct {
	event     domain.Event
	claimedAt time.Time
}

type processedRow struct {
	tenantID    string
	kind        domain.EventKind
	result      map[string]any
	processedAt time.Time
}

// NewDataStore creates an empty in-memory DataStore.
func NewDataStore() *DataStore {
	ds := &DataStore{
		events:      make(map[string]*eventRow),
		processed:   make(map[string]processedRow),
		deadLetters: make(map[string]domain.DeadLetter),
	}
	ds.outbox = &OutboxStore{store: ds}
	ds.ledger = &Ledger{store: ds}
	ds.deadLetter = &DeadLetterStore{store: ds}
	return ds
}

// Outbox returns the in-memory outbox store.
func (ds *DataStore) Outbox() domain.OutboxStore {
	return ds.outbox
}

// Ledger returns the in-memory processed-event ledger.
func (ds *DataStore) Ledger() domain.Ledger {
	return ds.ledger
}

// DeadLetters returns the in-memory dead-letter store.
func (ds *DataStore) DeadLetters() domain.DeadLetterStore {
	return ds.deadLetter
}

// Atomic executes the callback against a transactional view.
// Ledger writes issued through the callback's Querier are staged and applied
// only if the callback succeeds; an error or panic discards them.
// Concurrency: the store is locked for the duration of the callback.
func (ds *DataStore) Atomic(ctx context.Context, fn func(q domain.Querier) error) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	tx := &Tx{
		parent:          ds,
		stagedProcessed: make(map[string]processedRow),
	}

	if err := fn(tx); err != nil {
		return err
	}

	for k, v := range tx.stagedProcessed {
		ds.processed[k] = v
	}
	return nil
}

var _ domain.AtomicExecutor = (*DataStore)(nil)
