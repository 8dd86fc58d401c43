package domain

import "errors"

// Errors shared by the outbox, the relay, the transport and the consumer.
var (
	// ErrTransactionRequired is returned when a producer appends an event
	// outside an open database transaction.
	ErrTransactionRequired = errors.New("publish requires an open transaction")

	// ErrDuplicateEventID is returned when an outbox insert conflicts on event_id.
	// The producer must not retry with the same id.
	ErrDuplicateEventID = errors.New("duplicate event id")

	// ErrTransient marks a transport or database failure that is expected to
	// heal; callers retry with backoff.
	ErrTransient = errors.New("transient infrastructure failure")

	// ErrHandler wraps an error returned by an engine handler.
	ErrHandler = errors.New("handler failed")

	// ErrUnknownKind is returned for an event kind outside the enumerated set.
	ErrUnknownKind = errors.New("unknown event kind")

	// ErrCanceled is returned from blocking calls when shutdown was requested.
	ErrCanceled = errors.New("operation canceled")

	// ErrAlreadyProcessed is returned when recording a ledger entry that
	// already exists; the event's effects are committed elsewhere.
	ErrAlreadyProcessed = errors.New("event already processed")

	// ErrInvalidTransition is returned for a status change outside the
	// pending -> publishing -> published/failed graph.
	ErrInvalidTransition = errors.New("invalid outbox status transition")

	// ErrEmptyTenantID is returned when a required tenant ID is empty.
	ErrEmptyTenantID = errors.New("tenant_id is required")

	// ErrNotFound is returned when an outbox row cannot be found.
	ErrNotFound = errors.New("event not found")

	// ErrCorruptData is returned when data loaded from persistence is invalid.
	ErrCorruptData = errors.New("corrupt data in database")

	// ErrRegistryFrozen is returned when registering a handler after the
	// registry was frozen for consumption.
	ErrRegistryFrozen = errors.New("handler registry is frozen")
)
