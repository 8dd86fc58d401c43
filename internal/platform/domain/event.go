package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/procopio420/basecommerce/internal/common/types"
)

// EventStatus tracks an outbox row through its lifecycle.
type EventStatus string

const (
	StatusPending    EventStatus = "pending"
	StatusPublishing EventStatus = "publishing"
	StatusPublished  EventStatus = "published"
	StatusFailed     EventStatus = "failed"
)

// Event is the authoritative outbox record of a business fact. Rows are born
// inside a business transaction, mutated only by the relay, and never deleted
// by it; retention is a separate housekeeping concern.
type Event struct {
	ID           types.EventID
	TenantID     types.TenantID
	Kind         EventKind
	Version      string
	Payload      json.RawMessage
	Status       EventStatus
	RetryCount   int
	ErrorMessage string
	CreatedAt    time.Time
	PublishedAt  *time.Time
	FailedAt     *time.Time
}

// NewEvent builds a pending event with a fresh identity. The payload must be
// JSON-encodable and must not reference mutable rows; the kind must belong to
// the enumerated set. No side effects.
func NewEvent(tenantID types.TenantID, kind EventKind, payload any, version string) (*Event, error) {
	if tenantID.IsEmpty() {
		return nil, ErrEmptyTenantID
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if version == "" {
		version = "1.0"
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	return &Event{
		ID:        types.NewEventID(),
		TenantID:  tenantID,
		Kind:      kind,
		Version:   version,
		Payload:   raw,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// CanTransition reports whether a status change follows the outbox graph:
// pending -> publishing -> published, publishing -> pending (retry),
// publishing -> failed (terminal).
func CanTransition(from, to EventStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusPublishing
	case StatusPublishing:
		return to == StatusPublished || to == StatusPending || to == StatusFailed
	}
	return false
}
