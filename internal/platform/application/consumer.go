package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/procopio420/basecommerce/internal/common/logging"
	"github.com/procopio420/basecommerce/internal/common/metrics"
	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// ConsumerConfig tunes the engine worker's dispatch loop.
type ConsumerConfig struct {
	Group           string
	Name            string
	MaxAttempts     int
	HandlerDeadline time.Duration
	ClaimMinIdle    time.Duration
}

// Consumer reads one kind's stream through a consumer group and dispatches
// entries to the registered handlers. All handler effects and the ledger row
// commit in one transaction, which is what makes processing effectively-once
// on top of at-least-once delivery.
type Consumer struct {
	store       domain.AtomicExecutor
	ledger      domain.Ledger
	deadLetters domain.DeadLetterStore
	transport   domain.Transport
	registry    *Registry
	cfg         ConsumerConfig

	mu       sync.Mutex
	attempts map[string]int
}

// NewConsumer creates a Consumer.
func NewConsumer(store domain.AtomicExecutor, ledger domain.Ledger, deadLetters domain.DeadLetterStore, transport domain.Transport, registry *Registry, cfg ConsumerConfig) *Consumer {
	return &Consumer{
		store:       store,
		ledger:      ledger,
		deadLetters: deadLetters,
		transport:   transport,
		registry:    registry,
		cfg:         cfg,
		attempts:    make(map[string]int),
	}
}

// Run consumes the kind's stream until ctx is canceled. On startup it claims
// entries a crashed peer left pending, then blocks on new deliveries,
// reclaiming stale entries periodically. An entry being processed when
// shutdown begins is finished before Run returns.
func (c *Consumer) Run(ctx context.Context, kind domain.EventKind) error {
	it, err := c.transport.Subscribe(ctx, kind, c.cfg.Group, c.cfg.Name)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", kind, err)
	}
	defer it.Close()

	c.claimStale(ctx, kind)

	reclaim := time.NewTicker(c.cfg.ClaimMinIdle)
	defer reclaim.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-reclaim.C:
			c.claimStale(ctx, kind)
		default:
		}

		entry, err := it.Next(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrCanceled) {
				return nil
			}
			logging.ErrorContext(ctx, "reading stream failed", "kind", kind.String(), "error", err)
			continue
		}
		if entry == nil {
			continue
		}

		// Entries are finished even if shutdown started while blocked in
		// Next, so the ack matches the committed effects.
		if err := c.ProcessEntry(context.WithoutCancel(ctx), kind, *entry); err != nil {
			logging.ErrorContext(ctx, "processing entry failed", "kind", kind.String(), "error", err)
		}
	}
}

// ProcessEntry applies one delivery. Outcomes: acked as duplicate, processed
// and acked, left pending for redelivery, or parked and acked.
func (c *Consumer) ProcessEntry(ctx context.Context, kind domain.EventKind, entry domain.Entry) error {
	env := entry.Envelope
	ctx = logging.WithEventID(logging.WithTenantID(ctx, env.TenantID), env.EventID)

	done, err := c.ledger.WasProcessed(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("checking ledger: %w", err)
	}
	if done {
		metrics.ConsumerDuplicatesTotal.WithLabelValues(kind.String()).Inc()
		logging.DebugContext(ctx, "duplicate delivery acked")
		return c.transport.Ack(ctx, kind, c.cfg.Group, entry.StreamID)
	}

	// An envelope kind this build does not know is parked, not dropped; a
	// newer producer may be ahead of this worker.
	if !env.Kind.Valid() {
		return c.park(ctx, kind, entry, fmt.Sprintf("unknown kind %q", env.Kind))
	}

	handlers := c.registry.HandlersFor(env.Kind)
	if len(handlers) == 0 {
		// Nothing subscribed in this worker; the entry is not an error.
		logging.DebugContext(ctx, "no handlers registered", "kind", env.Kind.String())
		return c.transport.Ack(ctx, kind, c.cfg.Group, entry.StreamID)
	}

	payload, err := domain.DecodePayload(env.Kind, env.Payload)
	if err != nil {
		return c.fail(ctx, kind, entry, fmt.Errorf("decoding payload: %w", err))
	}

	if err := c.dispatch(ctx, env, payload, handlers); err != nil {
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			metrics.ConsumerDuplicatesTotal.WithLabelValues(kind.String()).Inc()
			logging.DebugContext(ctx, "lost processing race, acking")
			return c.transport.Ack(ctx, kind, c.cfg.Group, entry.StreamID)
		}
		return c.fail(ctx, kind, entry, err)
	}

	c.clearAttempts(env.EventID.String())
	metrics.ConsumerProcessedTotal.WithLabelValues(kind.String()).Inc()
	logging.InfoContext(ctx, "entry processed", "kind", env.Kind.String())
	return c.transport.Ack(ctx, kind, c.cfg.Group, entry.StreamID)
}

// dispatch runs every handler and the ledger insert in one transaction.
func (c *Consumer) dispatch(ctx context.Context, env domain.Envelope, payload any, handlers []domain.Handler) error {
	hctx := ctx
	if c.cfg.HandlerDeadline > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, c.cfg.HandlerDeadline)
		defer cancel()
	}

	return c.store.Atomic(hctx, func(q domain.Querier) error {
		for _, h := range handlers {
			start := time.Now()
			err := h.Apply(hctx, env.TenantID, payload, q)
			metrics.ObserveHandler(env.Kind.String(), h.Name(), time.Since(start), err)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", domain.ErrHandler, h.Name(), err)
			}
		}
		return c.ledger.RecordProcessed(hctx, q, env.EventID, env.TenantID, env.Kind, nil)
	})
}

// fail counts the delivery attempt and parks the entry once MaxAttempts is
// reached. Below the threshold the entry stays pending and comes back through
// a stale claim.
func (c *Consumer) fail(ctx context.Context, kind domain.EventKind, entry domain.Entry, cause error) error {
	attempts := c.bumpAttempts(entry.Envelope.EventID.String())
	logging.WarnContext(ctx, "delivery failed",
		"kind", kind.String(), "attempt", attempts, "error", cause)

	if attempts < c.cfg.MaxAttempts {
		return nil
	}
	return c.park(ctx, kind, entry, cause.Error())
}

// park moves the entry to the dead-letter store and acks it so the stream
// keeps flowing.
func (c *Consumer) park(ctx context.Context, kind domain.EventKind, entry domain.Entry, cause string) error {
	attempts := c.currentAttempts(entry.Envelope.EventID.String())
	if attempts == 0 {
		attempts = 1
	}

	if err := c.deadLetters.Park(ctx, entry.Envelope, cause, attempts); err != nil {
		return fmt.Errorf("parking entry: %w", err)
	}
	c.clearAttempts(entry.Envelope.EventID.String())
	metrics.ConsumerParkedTotal.WithLabelValues(kind.String()).Inc()
	logging.ErrorContext(ctx, "entry parked", "kind", kind.String(), "cause", cause)
	return c.transport.Ack(ctx, kind, c.cfg.Group, entry.StreamID)
}

// claimStale absorbs entries a crashed or stalled peer left pending.
func (c *Consumer) claimStale(ctx context.Context, kind domain.EventKind) {
	entries, err := c.transport.ClaimStale(ctx, kind, c.cfg.Group, c.cfg.Name, c.cfg.ClaimMinIdle)
	if err != nil {
		logging.ErrorContext(ctx, "claiming stale entries failed", "kind", kind.String(), "error", err)
		return
	}
	for _, entry := range entries {
		if err := c.ProcessEntry(ctx, kind, entry); err != nil {
			logging.ErrorContext(ctx, "processing claimed entry failed", "kind", kind.String(), "error", err)
		}
	}
}

func (c *Consumer) bumpAttempts(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[key]++
	return c.attempts[key]
}

func (c *Consumer) currentAttempts(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[key]
}

func (c *Consumer) clearAttempts(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, key)
}
