package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/procopio420/basecommerce/internal/common/types"
	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// DeadLetterStore is the in-memory dead-letter store.
type DeadLetterStore struct {
	store *DataStore
}

// Park records an entry that exhausted its delivery attempts.
func (s *DeadLetterStore) Park(ctx context.Context, env domain.Envelope, cause string, deliveryCount int) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	s.store.deadLetters[env.EventID.String()] = domain.DeadLetter{
		Envelope:      env,
		Cause:         cause,
		DeliveryCount: deliveryCount,
		ParkedAt:      time.Now(),
	}
	return nil
}

// List returns up to limit parked entries for a tenant, oldest first.
func (s *DeadLetterStore) List(ctx context.Context, tenantID types.TenantID, limit int) ([]domain.DeadLetter, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	var letters []domain.DeadLetter
	for _, dl := range s.store.deadLetters {
		if dl.Envelope.TenantID == tenantID {
			letters = append(letters, dl)
		}
	}
	sort.Slice(letters, func(i, j int) bool {
		if !letters[i].ParkedAt.Equal(letters[j].ParkedAt) {
			return letters[i].ParkedAt.Before(letters[j].ParkedAt)
		}
		return letters[i].Envelope.EventID.String() < letters[j].Envelope.EventID.String()
	})
	if len(letters) > limit {
		letters = letters[:limit]
	}
	return letters, nil
}

// Remove deletes a parked entry.
func (s *DeadLetterStore) Remove(ctx context.Context, id types.EventID) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if _, ok := s.store.deadLetters[id.String()]; !ok {
		return fmt.Errorf("dead letter %s: %w", id, domain.ErrNotFound)
	}
	delete(s.store.deadLetters, id.String())
	return nil
}

var _ domain.DeadLetterStore = (*DeadLetterStore)(nil)
