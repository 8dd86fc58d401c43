package memory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// ErrNoSQL is returned when raw SQL is executed against the memory store.
// Handlers under test either ignore their Querier or run against Postgres.
var ErrNoSQL = errors.New("memory store does not execute sql")

// Tx is the transactional view handed to Atomic callbacks. It stages ledger
// writes and rejects raw SQL.
type Tx struct {
	parent          *DataStore
	stagedProcessed map[string]processedRow
}

// Exec implements domain.Querier.
func (tx *Tx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, ErrNoSQL
}

// Query implements domain.Querier.
func (tx *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, ErrNoSQL
}

// QueryRow implements domain.Querier.
func (tx *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return errRow{err: ErrNoSQL}
}

type errRow struct {
	err error
}

func (r errRow) Scan(dest ...any) error { return r.err }

// NopTx satisfies pgx.Tx for producers writing to the memory outbox, which
// never executes SQL through it. Calling any pgx.Tx method panics.
type NopTx struct {
	pgx.Tx
}

var _ domain.Querier = (*Tx)(nil)
