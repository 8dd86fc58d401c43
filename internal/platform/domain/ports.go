package domain

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/procopio420/basecommerce/internal/common/types"
)

// Querier abstracts database operations that work with both pool and
// transaction. Handlers receive the dispatch transaction through it and must
// not commit or roll back themselves.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AtomicExecutor runs a callback inside one database transaction: commit when
// the callback returns nil, rollback otherwise.
type AtomicExecutor interface {
	Atomic(ctx context.Context, fn func(q Querier) error) error
}

// OutboxStore persists events atomically with business writes and exposes the
// read/mark operations the relay drives.
type OutboxStore interface {
	// Append stages a pending event inside the caller's open transaction.
	// A nil tx fails with ErrTransactionRequired; an event_id collision
	// fails with ErrDuplicateEventID and aborts the enclosing transaction.
	Append(ctx context.Context, tx pgx.Tx, event *Event) error

	// ReadPending returns up to limit pending rows in stable FIFO order
	// (created_at, then event_id). Read-only.
	ReadPending(ctx context.Context, limit int) ([]*Event, error)

	// ClaimForPublish atomically moves pending -> publishing. Returns
	// (nil, nil) when the row is no longer pending: another relay won.
	ClaimForPublish(ctx context.Context, id types.EventID) (*Event, error)

	// MarkPublished moves publishing -> published and stamps published_at.
	MarkPublished(ctx context.Context, id types.EventID) error

	// MarkFailed increments retry_count and either returns the row to
	// pending (below maxRetries) or terminates it as failed. The cause is
	// recorded verbatim.
	MarkFailed(ctx context.Context, id types.EventID, cause string, maxRetries int) error

	// ReclaimStuck returns rows stuck in publishing longer than olderThan
	// to pending; called on relay startup and periodically. This is the
	// crash-window recovery that makes delivery at-least-once.
	ReclaimStuck(ctx context.Context, olderThan time.Duration) (int64, error)

	// Prune deletes published rows older than retention. Unpublished and
	// failed rows are never pruned.
	Prune(ctx context.Context, retention time.Duration) (int64, error)

	// CountByStatus reports row counts per status for monitoring.
	CountByStatus(ctx context.Context) (map[EventStatus]int64, error)
}

// Ledger records which events have been fully processed. Presence of an
// event_id means every handler effect for it is committed.
type Ledger interface {
	// WasProcessed is a point lookup; safe to call outside any transaction.
	WasProcessed(ctx context.Context, id types.EventID) (bool, error)

	// RecordProcessed inserts the ledger row inside the same transaction
	// that commits the handler effects. A duplicate key fails with
	// ErrAlreadyProcessed.
	RecordProcessed(ctx context.Context, q Querier, id types.EventID, tenantID types.TenantID, kind EventKind, result map[string]any) error
}

// DeadLetterStore parks entries that exhausted their delivery attempts,
// keyed by event_id.
type DeadLetterStore interface {
	Park(ctx context.Context, env Envelope, cause string, deliveryCount int) error
	List(ctx context.Context, tenantID types.TenantID, limit int) ([]DeadLetter, error)
	Remove(ctx context.Context, id types.EventID) error
}

// DeadLetter is a parked entry awaiting operator action.
type DeadLetter struct {
	Envelope      Envelope
	Cause         string
	DeliveryCount int
	ParkedAt      time.Time
}

// Entry is one stream element delivered to a consumer group.
type Entry struct {
	// StreamID is the transport's opaque, monotonically increasing entry id.
	StreamID string
	Envelope Envelope
}

// Iterator yields entries for one (kind, group, consumer) binding.
type Iterator interface {
	// Next blocks up to the transport's block timeout. It returns
	// (nil, nil) when the timeout elapsed with no entry and an error
	// wrapping ErrCanceled when ctx was canceled.
	Next(ctx context.Context) (*Entry, error)

	// Close releases the iterator's resources.
	Close() error
}

// Transport is the append-only, consumer-grouped log distributing events to
// the engine workers: one stream per kind, shared by all tenants.
type Transport interface {
	// Publish appends the envelope to the kind's stream and returns the
	// entry id. The transport does not deduplicate; pairing with the
	// outbox claim is what makes the happy path exactly-once.
	Publish(ctx context.Context, kind EventKind, env Envelope) (string, error)

	// Subscribe joins consumer to group on the kind's stream, creating the
	// group on demand.
	Subscribe(ctx context.Context, kind EventKind, group, consumer string) (Iterator, error)

	// Ack removes the entry from the group's pending list. Idempotent.
	Ack(ctx context.Context, kind EventKind, group, entryID string) error

	// ClaimStale re-delivers entries pending longer than minIdle to the
	// calling consumer; used on startup and periodically to absorb
	// crashed peers.
	ClaimStale(ctx context.Context, kind EventKind, group, consumer string, minIdle time.Duration) ([]Entry, error)

	// Trim applies the retention policy to the kind's stream.
	Trim(ctx context.Context, kind EventKind, maxLen int64) error
}

// Handler applies one event kind to engine-owned state. The Querier is the
// same transaction that will record the ledger entry; handlers return errors
// instead of managing the transaction.
type Handler interface {
	// Name identifies the handler in logs and metrics.
	Name() string

	// Apply receives the decoded, validated payload for the kind the
	// handler was registered under.
	Apply(ctx context.Context, tenantID types.TenantID, payload any, q Querier) error
}

// HandlerFunc adapts a named function to the Handler interface.
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, tenantID types.TenantID, payload any, q Querier) error
}

// Name implements Handler.
func (h HandlerFunc) Name() string { return h.HandlerName }

// Apply implements Handler.
func (h HandlerFunc) Apply(ctx context.Context, tenantID types.TenantID, payload any, q Querier) error {
	return h.Fn(ctx, tenantID, payload, q)
}
