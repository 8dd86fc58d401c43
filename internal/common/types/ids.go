package types

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrEmptyID is returned when parsing an empty string as an ID.
var ErrEmptyID = errors.New("id cannot be empty")

// ErrInvalidUUID is returned when parsing an invalid UUID format.
var ErrInvalidUUID = errors.New("invalid uuid format")

// TenantID identifies the isolation unit every event and derived row belongs to.
// It is a struct wrapper to prevent accidental type confusion at compile time.
type TenantID struct {
	value string
}

// ParseTenantID creates a TenantID from a string, validating UUID format.
func ParseTenantID(s string) (TenantID, error) {
	if s == "" {
		return TenantID{}, fmt.Errorf("tenant_id: %w", ErrEmptyID)
	}
	if _, err := uuid.Parse(s); err != nil {
		return TenantID{}, fmt.Errorf("tenant_id: %w", ErrInvalidUUID)
	}
	return TenantID{value: s}, nil
}

// MustParseTenantID creates a TenantID from a string, panicking on invalid input.
// Use only in tests or initialization code where panicking is acceptable.
func MustParseTenantID(s string) TenantID {
	t, err := ParseTenantID(s)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTenantID generates a new unique TenantID.
func NewTenantID() TenantID {
	return TenantID{value: uuid.NewString()}
}

// String returns the string representation of TenantID.
func (t TenantID) String() string {
	return t.value
}

// IsEmpty checks if the TenantID is empty.
func (t TenantID) IsEmpty() bool {
	return t.value == ""
}

// MarshalText implements encoding.TextMarshaler.
func (t TenantID) MarshalText() ([]byte, error) {
	return []byte(t.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TenantID) UnmarshalText(b []byte) error {
	parsed, err := ParseTenantID(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// EventID uniquely identifies an event. It is the global identity used for
// idempotency across the outbox, the stream and the processed-event ledger.
type EventID struct {
	value string
}

// ParseEventID creates an EventID from a string, validating UUID format.
func ParseEventID(s string) (EventID, error) {
	if s == "" {
		return EventID{}, fmt.Errorf("event_id: %w", ErrEmptyID)
	}
	if _, err := uuid.Parse(s); err != nil {
		return EventID{}, fmt.Errorf("event_id: %w", ErrInvalidUUID)
	}
	return EventID{value: s}, nil
}

// NewEventID generates a new unique EventID.
func NewEventID() EventID {
	return EventID{value: uuid.NewString()}
}

// String returns the string representation of EventID.
func (e EventID) String() string {
	return e.value
}

// IsEmpty checks if the EventID is empty.
func (e EventID) IsEmpty() bool {
	return e.value == ""
}

// MarshalText implements encoding.TextMarshaler.
func (e EventID) MarshalText() ([]byte, error) {
	return []byte(e.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *EventID) UnmarshalText(b []byte) error {
	parsed, err := ParseEventID(string(b))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
