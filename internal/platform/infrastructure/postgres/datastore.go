package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// DataStore bundles the platform's Postgres-backed stores and implements the
// Atomic pattern the consumer dispatches under.
type DataStore struct {
	pool        *pgxpool.Pool
	outbox      *OutboxStore
	ledger      *Ledger
	deadLetters *DeadLetterStore
}

// NewDataStore creates a DataStore with the given connection pool.
func NewDataStore(pool *pgxpool.Pool) *DataStore {
	return &DataStore{
		pool:        pool,
		outbox:      NewOutboxStore(pool),
		ledger:      NewLedger(pool),
		deadLetters: NewDeadLetterStore(pool),
	}
}

// Outbox returns the outbox store.
func (ds *DataStore) Outbox() domain.OutboxStore {
	return ds.outbox
}

// Ledger returns the processed-event ledger.
func (ds *DataStore) Ledger() domain.Ledger {
	return ds.ledger
}

// DeadLetters returns the dead-letter store.
func (ds *DataStore) DeadLetters() domain.DeadLetterStore {
	return ds.deadLetters
}

// Begin opens a business transaction. Producers append events through it so
// the outbox row commits or rolls back with the business write.
func (ds *DataStore) Begin(ctx context.Context) (pgx.Tx, error) {
	return ds.pool.Begin(ctx)
}

// Atomic executes the callback within a database transaction.
// If the callback returns nil, the transaction is committed.
// If the callback returns an error or panics, the transaction is rolled back.
func (ds *DataStore) Atomic(ctx context.Context, fn func(q domain.Querier) error) (err error) {
	tx, err := ds.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	// Use defer to handle both errors and panics
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p) // Re-throw the panic
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				err = fmt.Errorf("tx error: %v, rollback error: %v", err, rbErr)
			}
		} else {
			err = tx.Commit(ctx)
			if err != nil {
				err = fmt.Errorf("commit transaction: %w", err)
			}
		}
	}()

	err = fn(tx)
	return
}

// Verify interface implementation.
var _ domain.AtomicExecutor = (*DataStore)(nil)
