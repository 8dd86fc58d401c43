package domain

import (
	"encoding/json"
	"fmt"

	"github.com/procopio420/basecommerce/internal/common/types"
)

// Envelope is the wire form of an event: a single self-describing JSON byte
// string appended to the stream. The payload rides through as raw bytes, so
// fields unknown to this build are preserved end to end.
type Envelope struct {
	EventID  types.EventID   `json:"event_id"`
	TenantID types.TenantID  `json:"tenant_id"`
	Kind     EventKind       `json:"kind"`
	Version  string          `json:"version"`
	Payload  json.RawMessage `json:"payload"`
}

// Envelope returns the wire form of the event.
func (e *Event) Envelope() Envelope {
	return Envelope{
		EventID:  e.ID,
		TenantID: e.TenantID,
		Kind:     e.Kind,
		Version:  e.Version,
		Payload:  e.Payload,
	}
}

// Encode serializes the envelope for the transport.
func (env Envelope) Encode() ([]byte, error) {
	return json.Marshal(env)
}

// DecodeEnvelope parses a wire envelope. Identity fields are validated; the
// kind is NOT validated against the enumerated set, because a consumer built
// before a kind was added must park such entries rather than drop them.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if env.EventID.IsEmpty() {
		return Envelope{}, fmt.Errorf("%w: envelope without event_id", ErrCorruptData)
	}
	if env.TenantID.IsEmpty() {
		return Envelope{}, fmt.Errorf("%w: envelope without tenant_id", ErrCorruptData)
	}
	return env, nil
}
