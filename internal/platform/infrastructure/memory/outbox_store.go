package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/procopio420/basecommerce/internal/common/types"
	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// OutboxStore is the in-memory outbox. It enforces the same status graph and
// duplicate-id behavior as the Postgres store.
type OutboxStore struct {
	store *DataStore
}

// Append stages a pending event. The tx is required but not interpreted; the
// memory store commits immediately.
func (s *OutboxStore) Append(ctx context.Context, tx pgx.Tx, event *domain.Event) error {
	if tx == nil {
		return domain.ErrTransactionRequired
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	key := event.ID.String()
	if _, ok := s.store.events[key]; ok {
		return fmt.Errorf("event %s: %w", event.ID, domain.ErrDuplicateEventID)
	}
	s.store.events[key] = &eventRow{event: *event}
	s.store.order = append(s.store.order, key)
	return nil
}

// ReadPending returns up to limit pending events in FIFO order.
func (s *OutboxStore) ReadPending(ctx context.Context, limit int) ([]*domain.Event, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	var events []*domain.Event
	for _, key := range s.store.order {
		row := s.store.events[key]
		if row.event.Status != domain.StatusPending {
			continue
		}
		event := row.event
		events = append(events, &event)
		if len(events) >= limit {
			break
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].ID.String() < events[j].ID.String()
	})
	return events, nil
}

// ClaimForPublish moves pending -> publishing, returning (nil, nil) when the
// row is no longer pending.
func (s *OutboxStore) ClaimForPublish(ctx context.Context, id types.EventID) (*domain.Event, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	row, ok := s.store.events[id.String()]
	if !ok || row.event.Status != domain.StatusPending {
		return nil, nil
	}
	row.event.Status = domain.StatusPublishing
	row.claimedAt = time.Now()
	event := row.event
	return &event, nil
}

// MarkPublished moves publishing -> published.
func (s *OutboxStore) MarkPublished(ctx context.Context, id types.EventID) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	row, ok := s.store.events[id.String()]
	if !ok || row.event.Status != domain.StatusPublishing {
		return fmt.Errorf("event %s not in publishing: %w", id, domain.ErrInvalidTransition)
	}
	now := time.Now()
	row.event.Status = domain.StatusPublished
	row.event.PublishedAt = &now
	row.event.ErrorMessage = ""
	return nil
}

// MarkFailed increments retry_count and returns the row to pending, or
// terminates it as failed once maxRetries is reached.
func (s *OutboxStore) MarkFailed(ctx context.Context, id types.EventID, cause string, maxRetries int) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	row, ok := s.store.events[id.String()]
	if !ok || row.event.Status != domain.StatusPublishing {
		return fmt.Errorf("event %s not in publishing: %w", id, domain.ErrInvalidTransition)
	}
	row.event.RetryCount++
	row.event.ErrorMessage = cause
	if row.event.RetryCount >= maxRetries {
		now := time.Now()
		row.event.Status = domain.StatusFailed
		row.event.FailedAt = &now
	} else {
		row.event.Status = domain.StatusPending
	}
	return nil
}

// ReclaimStuck returns publishing rows claimed longer than olderThan ago to
// pending.
func (s *OutboxStore) ReclaimStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var reclaimed int64
	for _, row := range s.store.events {
		if row.event.Status == domain.StatusPublishing && row.claimedAt.Before(cutoff) {
			row.event.Status = domain.StatusPending
			row.claimedAt = time.Time{}
			reclaimed++
		}
	}
	return reclaimed, nil
}

// Prune deletes published rows older than retention.
func (s *OutboxStore) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	var pruned int64
	kept := s.store.order[:0]
	for _, key := range s.store.order {
		row := s.store.events[key]
		if row.event.Status == domain.StatusPublished && row.event.PublishedAt != nil && row.event.PublishedAt.Before(cutoff) {
			delete(s.store.events, key)
			pruned++
			continue
		}
		kept = append(kept, key)
	}
	s.store.order = kept
	return pruned, nil
}

// CountByStatus reports row counts per status.
func (s *OutboxStore) CountByStatus(ctx context.Context) (map[domain.EventStatus]int64, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	counts := make(map[domain.EventStatus]int64)
	for _, row := range s.store.events {
		counts[row.event.Status]++
	}
	return counts, nil
}

// Get returns a copy of the stored event, for assertions in tests.
func (s *OutboxStore) Get(id types.EventID) (*domain.Event, bool) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	row, ok := s.store.events[id.String()]
	if !ok {
		return nil, false
	}
	event := row.event
	return &event, true
}

var _ domain.OutboxStore = (*OutboxStore)(nil)
