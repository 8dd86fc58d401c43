package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/procopio420/basecommerce/internal/common/types"
	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// OutboxStore implements domain.OutboxStore against the event_outbox table.
// Mark operations run on the pool; Append runs inside the producer's
// transaction.
type OutboxStore struct {
	db domain.Querier
}

// NewOutboxStore creates an OutboxStore over a pool or transaction.
func NewOutboxStore(db domain.Querier) *OutboxStore {
	return &OutboxStore{db: db}
}

const outboxColumns = `event_id::text, tenant_id::text, kind, version, payload,
	status, retry_count, coalesce(error_message, ''), created_at, published_at, failed_at`

// Append stages a pending event inside the caller's open transaction.
func (s *OutboxStore) Append(ctx context.Context, tx pgx.Tx, event *Event) error {
	if tx == nil {
		return domain.ErrTransactionRequired
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO event_outbox (event_id, tenant_id, kind, version, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID.String(), event.TenantID.String(), string(event.Kind),
		event.Version, []byte(event.Payload), string(event.Status), event.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("event %s: %w", event.ID, domain.ErrDuplicateEventID)
		}
		return fmt.Errorf("appending outbox event: %w", err)
	}
	return nil
}

// ReadPending returns up to limit pending rows in stable FIFO order.
func (s *OutboxStore) ReadPending(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+outboxColumns+`
		FROM event_outbox
		WHERE status = 'pending'
		ORDER BY created_at, event_id
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("reading pending events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading pending events: %w", err)
	}
	return events, nil
}

// ClaimForPublish atomically moves a pending row to publishing. Losing the
// claim race is not an error; the caller receives (nil, nil) and moves on.
func (s *OutboxStore) ClaimForPublish(ctx context.Context, id types.EventID) (*Event, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE event_outbox
		SET status = 'publishing', claimed_at = now()
		WHERE event_id = $1 AND status = 'pending'
		RETURNING `+outboxColumns,
		id.String(),
	)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return event, nil
}

// MarkPublished moves publishing -> published and stamps published_at.
func (s *OutboxStore) MarkPublished(ctx context.Context, id types.EventID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE event_outbox
		SET status = 'published', published_at = now(), error_message = NULL
		WHERE event_id = $1 AND status = 'publishing'`,
		id.String(),
	)
	if err != nil {
		return fmt.Errorf("marking event %s published: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s not in publishing: %w", id, domain.ErrInvalidTransition)
	}
	return nil
}

// MarkFailed increments retry_count, records the cause, and either returns the
// row to pending or terminates it as failed once maxRetries is reached.
func (s *OutboxStore) MarkFailed(ctx context.Context, id types.EventID, cause string, maxRetries int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE event_outbox
		SET retry_count = retry_count + 1,
		    error_message = $2,
		    status = CASE WHEN retry_count + 1 >= $3 THEN 'failed' ELSE 'pending' END,
		    failed_at = CASE WHEN retry_count + 1 >= $3 THEN now() ELSE failed_at END
		WHERE event_id = $1 AND status = 'publishing'`,
		id.String(), cause, maxRetries,
	)
	if err != nil {
		return fmt.Errorf("marking event %s failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s not in publishing: %w", id, domain.ErrInvalidTransition)
	}
	return nil
}

// ReclaimStuck returns rows stuck in publishing longer than olderThan to
// pending. Such rows belong to a relay that crashed between claim and mark.
func (s *OutboxStore) ReclaimStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE event_outbox
		SET status = 'pending', claimed_at = NULL
		WHERE status = 'publishing' AND claimed_at < now() - $1::interval`,
		olderThan.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaiming stuck events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Prune deletes published rows older than retention. Pending, publishing and
// failed rows are never pruned.
func (s *OutboxStore) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM event_outbox
		WHERE status = 'published' AND published_at < now() - $1::interval`,
		retention.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountByStatus reports row counts per status for the outbox gauges.
func (s *OutboxStore) CountByStatus(ctx context.Context) (map[domain.EventStatus]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT status, count(*) FROM event_outbox GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting outbox rows: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.EventStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("counting outbox rows: %w", err)
		}
		counts[domain.EventStatus(status)] = n
	}
	return counts, rows.Err()
}

// Event is re-exported to keep store signatures readable.
type Event = domain.Event

func scanEvent(row pgx.Row) (*Event, error) {
	var (
		rawID, rawTenant, kind, version, status, errMsg string
		payload                                         []byte
		retryCount                                      int
		createdAt                                       time.Time
		publishedAt, failedAt                           *time.Time
	)
	err := row.Scan(&rawID, &rawTenant, &kind, &version, &payload,
		&status, &retryCount, &errMsg, &createdAt, &publishedAt, &failedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scanning outbox row: %w", err)
	}

	id, err := types.ParseEventID(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptData, err)
	}
	tenantID, err := types.ParseTenantID(rawTenant)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptData, err)
	}

	return &Event{
		ID:           id,
		TenantID:     tenantID,
		Kind:         domain.EventKind(kind),
		Version:      version,
		Payload:      payload,
		Status:       domain.EventStatus(status),
		RetryCount:   retryCount,
		ErrorMessage: errMsg,
		CreatedAt:    createdAt,
		PublishedAt:  publishedAt,
		FailedAt:     failedAt,
	}, nil
}

var _ domain.OutboxStore = (*OutboxStore)(nil)
