package application

import (
	"context"
	"time"

	"github.com/procopio420/basecommerce/internal/common/logging"
	"github.com/procopio420/basecommerce/internal/common/metrics"
	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// RelayConfig tunes the outbox drain loop.
type RelayConfig struct {
	BatchSize      int
	PollInterval   time.Duration
	MaxRetries     int
	ReclaimTimeout time.Duration
	StreamMaxLen   int64
	Retention      time.Duration
}

// Relay drains pending outbox rows to the stream transport. Multiple relay
// processes may run concurrently; the per-row claim makes them race safely.
type Relay struct {
	outbox    domain.OutboxStore
	transport domain.Transport
	cfg       RelayConfig
}

// NewRelay creates a Relay.
func NewRelay(outbox domain.OutboxStore, transport domain.Transport, cfg RelayConfig) *Relay {
	return &Relay{outbox: outbox, transport: transport, cfg: cfg}
}

// Run drains the outbox until ctx is canceled. On startup it reclaims rows a
// crashed relay left in publishing, then alternates draining with polling and
// periodic housekeeping.
func (r *Relay) Run(ctx context.Context) error {
	if reclaimed, err := r.outbox.ReclaimStuck(ctx, r.cfg.ReclaimTimeout); err != nil {
		logging.ErrorContext(ctx, "startup reclaim failed", "error", err)
	} else if reclaimed > 0 {
		metrics.RelayReclaimedTotal.Add(float64(reclaimed))
		logging.InfoContext(ctx, "reclaimed stuck events", "count", reclaimed)
	}

	housekeeping := time.NewTicker(r.cfg.ReclaimTimeout)
	defer housekeeping.Stop()

	consecutiveErrors := 0
	for {
		published, err := r.DrainBatch(ctx)
		if err != nil {
			consecutiveErrors++
			logging.ErrorContext(ctx, "drain batch failed", "error", err)
		} else {
			consecutiveErrors = 0
		}

		// A full batch means more rows are likely waiting; skip the poll
		// sleep and drain again.
		if err == nil && published >= r.cfg.BatchSize {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		wait := backoff(r.cfg.PollInterval, consecutiveErrors)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-housekeeping.C:
			timer.Stop()
			r.housekeep(ctx)
		case <-timer.C:
		}
	}
}

// DrainBatch reads one batch of pending rows and publishes them in FIFO
// order. A row that cannot be published blocks its (tenant, kind) partition
// for the rest of the batch so ordering within the partition is preserved,
// while other partitions keep flowing.
func (r *Relay) DrainBatch(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		metrics.RelayBatchDuration.Observe(time.Since(start).Seconds())
	}()

	events, err := r.outbox.ReadPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	blocked := make(map[string]struct{})
	published := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return published, nil
		}

		partition := event.TenantID.String() + "|" + event.Kind.String()
		if _, stalled := blocked[partition]; stalled {
			continue
		}

		claimed, err := r.outbox.ClaimForPublish(ctx, event.ID)
		if err != nil {
			return published, err
		}
		if claimed == nil {
			// Another relay owns this row. Later rows of the partition
			// must wait for it, so the partition stalls for this batch.
			blocked[partition] = struct{}{}
			continue
		}

		ectx := logging.WithEventID(logging.WithTenantID(ctx, claimed.TenantID), claimed.ID)
		if _, err := r.transport.Publish(ectx, claimed.Kind, claimed.Envelope()); err != nil {
			metrics.RelayPublishErrorsTotal.WithLabelValues(claimed.Kind.String()).Inc()
			logging.ErrorContext(ectx, "publish failed", "kind", claimed.Kind.String(), "error", err)
			if markErr := r.outbox.MarkFailed(ctx, claimed.ID, err.Error(), r.cfg.MaxRetries); markErr != nil {
				logging.ErrorContext(ectx, "mark failed errored", "error", markErr)
			}
			blocked[partition] = struct{}{}
			continue
		}

		if err := r.outbox.MarkPublished(ctx, claimed.ID); err != nil {
			// The entry is on the stream; the row will be reclaimed and
			// republished, and the consumer's ledger absorbs the duplicate.
			logging.ErrorContext(ectx, "mark published errored", "error", err)
			blocked[partition] = struct{}{}
			continue
		}

		metrics.RelayPublishedTotal.WithLabelValues(claimed.Kind.String()).Inc()
		published++
	}
	return published, nil
}

// housekeep reclaims stuck rows, prunes old published rows, trims streams and
// refreshes the outbox gauges.
func (r *Relay) housekeep(ctx context.Context) {
	if reclaimed, err := r.outbox.ReclaimStuck(ctx, r.cfg.ReclaimTimeout); err != nil {
		logging.ErrorContext(ctx, "reclaim failed", "error", err)
	} else if reclaimed > 0 {
		metrics.RelayReclaimedTotal.Add(float64(reclaimed))
		logging.InfoContext(ctx, "reclaimed stuck events", "count", reclaimed)
	}

	if r.cfg.Retention > 0 {
		if pruned, err := r.outbox.Prune(ctx, r.cfg.Retention); err != nil {
			logging.ErrorContext(ctx, "prune failed", "error", err)
		} else if pruned > 0 {
			logging.InfoContext(ctx, "pruned published events", "count", pruned)
		}
	}

	if r.cfg.StreamMaxLen > 0 {
		for _, kind := range domain.Kinds() {
			if err := r.transport.Trim(ctx, kind, r.cfg.StreamMaxLen); err != nil {
				logging.ErrorContext(ctx, "stream trim failed", "kind", kind.String(), "error", err)
			}
		}
	}

	counts, err := r.outbox.CountByStatus(ctx)
	if err != nil {
		logging.ErrorContext(ctx, "counting outbox rows failed", "error", err)
		return
	}
	metrics.OutboxPendingEvents.Set(float64(counts[domain.StatusPending]))
	metrics.OutboxFailedEvents.Set(float64(counts[domain.StatusFailed]))
}

func backoff(base time.Duration, consecutiveErrors int) time.Duration {
	if consecutiveErrors == 0 {
		return base
	}
	wait := base << consecutiveErrors
	if limit := 10 * base; wait > limit {
		wait = limit
	}
	return wait
}
