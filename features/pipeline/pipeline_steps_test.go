package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/procopio420/basecommerce/internal/common/types"
	"github.com/procopio420/basecommerce/internal/platform/application"
	"github.com/procopio420/basecommerce/internal/platform/domain"
	"github.com/procopio420/basecommerce/internal/platform/infrastructure/memory"
)

// pipelineState wires the whole substrate over the in-memory infrastructure:
// outbox, relay, stream transport, consumer, ledger and dead letters.
type pipelineState struct {
	ctx       context.Context
	tenantID  types.TenantID
	store     *memory.DataStore
	transport *memory.Transport
	registry  *application.Registry
	relay     *application.Relay
	consumer  *application.Consumer
	service   *application.DeadLetterService

	handlerErr error
	runs       int
	applied    []string
	appended   []*domain.Event
}

func InitializePipelineScenario(ctx *godog.ScenarioContext) {
	state := &pipelineState{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		state.reset()
		return ctx, nil
	})

	ctx.Step(`^a counting handler registered for "([^"]*)"$`, state.aCountingHandlerRegisteredFor)
	ctx.Step(`^the handler fails with "([^"]*)"$`, state.theHandlerFailsWith)
	ctx.Step(`^the handler is healed$`, state.theHandlerIsHealed)

	ctx.Step(`^a "([^"]*)" event is appended$`, state.anEventIsAppended)
	ctx.Step(`^(\d+) "([^"]*)" events are appended$`, state.eventsAreAppended)
	ctx.Step(`^the relay drains the outbox$`, state.theRelayDrainsTheOutbox)
	ctx.Step(`^the worker consumes the "([^"]*)" stream$`, state.theWorkerConsumesTheStream)
	ctx.Step(`^the worker retries stale deliveries (\d+) times$`, state.theWorkerRetriesStaleDeliveries)
	ctx.Step(`^the same event is published again$`, state.theSameEventIsPublishedAgain)
	ctx.Step(`^the parked event is requeued$`, state.theParkedEventIsRequeued)

	ctx.Step(`^the handler should have run (\d+) times?$`, state.theHandlerShouldHaveRun)
	ctx.Step(`^the handler should have seen the events in append order$`, state.theHandlerShouldHaveSeenAppendOrder)
	ctx.Step(`^the outbox row should be "([^"]*)"$`, state.theOutboxRowShouldBe)
	ctx.Step(`^the event should be recorded as processed$`, state.theEventShouldBeRecordedAsProcessed)
	ctx.Step(`^the event should not be recorded as processed$`, state.theEventShouldNotBeRecordedAsProcessed)
	ctx.Step(`^(\d+) events? should be parked with cause containing "([^"]*)"$`, state.eventsShouldBeParkedWithCause)
	ctx.Step(`^no events should be parked$`, state.noEventsShouldBeParked)
}

func (s *pipelineState) reset() {
	s.ctx = context.Background()
	s.tenantID = types.NewTenantID()
	s.store = memory.NewDataStore()
	s.transport = memory.NewTransport()
	s.registry = application.NewRegistry()
	s.handlerErr = nil
	s.runs = 0
	s.applied = nil
	s.appended = nil

	s.relay = application.NewRelay(s.store.Outbox(), s.transport, application.RelayConfig{
		BatchSize:      100,
		PollInterval:   time.Millisecond,
		MaxRetries:     5,
		ReclaimTimeout: time.Minute,
		StreamMaxLen:   1000,
	})
	s.consumer = application.NewConsumer(s.store, s.store.Ledger(), s.store.DeadLetters(), s.transport, s.registry, application.ConsumerConfig{
		Group:           "engines",
		Name:            "worker-1",
		MaxAttempts:     3,
		HandlerDeadline: time.Second,
		ClaimMinIdle:    time.Minute,
	})
	s.service = application.NewDeadLetterService(s.store.DeadLetters(), s.transport)
}

func (s *pipelineState) aCountingHandlerRegisteredFor(kind string) error {
	parsed, err := domain.ParseKind(kind)
	if err != nil {
		return err
	}
	handler := domain.HandlerFunc{
		HandlerName: "counting",
		Fn: func(ctx context.Context, tenantID types.TenantID, payload any, q domain.Querier) error {
			s.runs++
			if s.handlerErr != nil {
				return s.handlerErr
			}
			sale, ok := payload.(domain.SaleRecordedPayload)
			if !ok {
				return fmt.Errorf("unexpected payload %T", payload)
			}
			s.applied = append(s.applied, sale.OrderID)
			return nil
		},
	}
	if err := s.registry.Register(parsed, handler); err != nil {
		return err
	}
	s.registry.Freeze()
	return nil
}

func (s *pipelineState) theHandlerFailsWith(message string) error {
	s.handlerErr = errors.New(message)
	return nil
}

func (s *pipelineState) theHandlerIsHealed() error {
	s.handlerErr = nil
	return nil
}

func (s *pipelineState) anEventIsAppended(kind string) error {
	return s.eventsAreAppended(1, kind)
}

func (s *pipelineState) eventsAreAppended(count int, kind string) error {
	parsed, err := domain.ParseKind(kind)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		payload := map[string]any{
			"order_id":     fmt.Sprintf("o-%d", len(s.appended)+1),
			"client_id":    "c-1",
			"delivered_at": time.Now().UTC().Format(time.RFC3339),
			"total_value":  "100.00",
		}
		event, err := domain.NewEvent(s.tenantID, parsed, payload, "")
		if err != nil {
			return err
		}
		if err := s.store.Outbox().Append(s.ctx, memory.NopTx{}, event); err != nil {
			return err
		}
		s.appended = append(s.appended, event)
	}
	return nil
}

func (s *pipelineState) theRelayDrainsTheOutbox() error {
	_, err := s.relay.DrainBatch(s.ctx)
	return err
}

func (s *pipelineState) theWorkerConsumesTheStream(kind string) error {
	parsed, err := domain.ParseKind(kind)
	if err != nil {
		return err
	}
	it, err := s.transport.Subscribe(s.ctx, parsed, "engines", "worker-1")
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		entry, err := it.Next(s.ctx)
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		if err := s.consumer.ProcessEntry(s.ctx, parsed, *entry); err != nil {
			return err
		}
	}
}

func (s *pipelineState) theWorkerRetriesStaleDeliveries(count int) error {
	for i := 0; i < count; i++ {
		entries, err := s.transport.ClaimStale(s.ctx, domain.KindSaleRecorded, "engines", "worker-1", 0)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := s.consumer.ProcessEntry(s.ctx, domain.KindSaleRecorded, entry); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *pipelineState) theSameEventIsPublishedAgain() error {
	if len(s.appended) == 0 {
		return errors.New("no event appended")
	}
	_, err := s.transport.Publish(s.ctx, s.appended[0].Kind, s.appended[0].Envelope())
	return err
}

func (s *pipelineState) theParkedEventIsRequeued() error {
	if len(s.appended) == 0 {
		return errors.New("no event appended")
	}
	return s.service.Requeue(s.ctx, s.tenantID, s.appended[0].ID)
}

func (s *pipelineState) theHandlerShouldHaveRun(count int) error {
	if s.runs != count {
		return fmt.Errorf("expected %d handler runs, got %d", count, s.runs)
	}
	return nil
}

func (s *pipelineState) theHandlerShouldHaveSeenAppendOrder() error {
	if len(s.applied) != len(s.appended) {
		return fmt.Errorf("expected %d applications, got %d", len(s.appended), len(s.applied))
	}
	for i := range s.appended {
		want := fmt.Sprintf("o-%d", i+1)
		if s.applied[i] != want {
			return fmt.Errorf("position %d: expected %s, got %s", i, want, s.applied[i])
		}
	}
	return nil
}

func (s *pipelineState) theOutboxRowShouldBe(status string) error {
	if len(s.appended) == 0 {
		return errors.New("no event appended")
	}
	stored, ok := s.store.Outbox().(*memory.OutboxStore).Get(s.appended[0].ID)
	if !ok {
		return errors.New("outbox row not found")
	}
	if string(stored.Status) != status {
		return fmt.Errorf("expected status %q, got %q", status, stored.Status)
	}
	return nil
}

func (s *pipelineState) theEventShouldBeRecordedAsProcessed() error {
	done, err := s.store.Ledger().WasProcessed(s.ctx, s.appended[0].ID)
	if err != nil {
		return err
	}
	if !done {
		return errors.New("event not recorded as processed")
	}
	return nil
}

func (s *pipelineState) theEventShouldNotBeRecordedAsProcessed() error {
	done, err := s.store.Ledger().WasProcessed(s.ctx, s.appended[0].ID)
	if err != nil {
		return err
	}
	if done {
		return errors.New("event unexpectedly recorded as processed")
	}
	return nil
}

func (s *pipelineState) eventsShouldBeParkedWithCause(count int, cause string) error {
	letters, err := s.store.DeadLetters().List(s.ctx, s.tenantID, 100)
	if err != nil {
		return err
	}
	if len(letters) != count {
		return fmt.Errorf("expected %d parked events, got %d", count, len(letters))
	}
	for _, dl := range letters {
		if !strings.Contains(dl.Cause, cause) {
			return fmt.Errorf("cause %q does not contain %q", dl.Cause, cause)
		}
	}
	return nil
}

func (s *pipelineState) noEventsShouldBeParked() error {
	letters, err := s.store.DeadLetters().List(s.ctx, s.tenantID, 100)
	if err != nil {
		return err
	}
	if len(letters) != 0 {
		return fmt.Errorf("expected no parked events, got %d", len(letters))
	}
	return nil
}
