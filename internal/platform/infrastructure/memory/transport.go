package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// Transport is an in-memory stand-in for the stream transport. It keeps the
// consumer-group contract: entries stay pending until acked, stale pending
// entries can be claimed, streams trim from the front.
type Transport struct {
	mu      sync.Mutex
	nextSeq int64
	streams map[domain.EventKind][]streamEntry
	groups  map[string]*groupState
}

type streamEntry struct {
	id  string
	env domain.Envelope
}

type pendingEntry struct {
	entry       streamEntry
	consumer    string
	deliveredAt time.Time
}

type groupState struct {
	offset  int
	pending map[string]pendingEntry
}

// NewTransport creates an empty in-memory Transport.
func NewTransport() *Transport {
	return &Transport{
		streams: make(map[domain.EventKind][]streamEntry),
		groups:  make(map[string]*groupState),
	}
}

// Publish appends the envelope to the kind's stream.
func (t *Transport) Publish(ctx context.Context, kind domain.EventKind, env domain.Envelope) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextSeq++
	id := fmt.Sprintf("%d-0", t.nextSeq)
	t.streams[kind] = append(t.streams[kind], streamEntry{id: id, env: env})
	return id, nil
}

// Subscribe joins consumer to group on the kind's stream.
func (t *Transport) Subscribe(ctx context.Context, kind domain.EventKind, group, consumer string) (domain.Iterator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.group(kind, group)
	return &memoryIterator{t: t, kind: kind, group: group, consumer: consumer}, nil
}

// Ack removes the entry from the group's pending list.
func (t *Transport) Ack(ctx context.Context, kind domain.EventKind, group, entryID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.group(kind, group).pending, entryID)
	return nil
}

// ClaimStale re-delivers entries pending longer than minIdle to consumer.
func (t *Transport) ClaimStale(ctx context.Context, kind domain.EventKind, group, consumer string, minIdle time.Duration) ([]domain.Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g := t.group(kind, group)
	cutoff := time.Now().Add(-minIdle)

	var claimed []domain.Entry
	for id, p := range g.pending {
		if p.deliveredAt.After(cutoff) {
			continue
		}
		p.consumer = consumer
		p.deliveredAt = time.Now()
		g.pending[id] = p
		claimed = append(claimed, domain.Entry{StreamID: p.entry.id, Envelope: p.entry.env})
	}
	return claimed, nil
}

// Trim drops the oldest entries beyond maxLen. Group offsets shift with the
// stream so undelivered entries survive relative order.
func (t *Transport) Trim(ctx context.Context, kind domain.EventKind, maxLen int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := t.streams[kind]
	if int64(len(entries)) <= maxLen {
		return nil
	}
	drop := len(entries) - int(maxLen)
	t.streams[kind] = entries[drop:]
	for key, g := range t.groups {
		if kindOf(key) != kind {
			continue
		}
		g.offset -= drop
		if g.offset < 0 {
			g.offset = 0
		}
	}
	return nil
}

// Pending returns the group's pending entry count, for assertions in tests.
func (t *Transport) Pending(kind domain.EventKind, group string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.group(kind, group).pending)
}

// Len returns the kind's stream length, for assertions in tests.
func (t *Transport) Len(kind domain.EventKind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams[kind])
}

func (t *Transport) group(kind domain.EventKind, group string) *groupState {
	key := groupKey(kind, group)
	g, ok := t.groups[key]
	if !ok {
		g = &groupState{pending: make(map[string]pendingEntry)}
		t.groups[key] = g
	}
	return g
}

func groupKey(kind domain.EventKind, group string) string {
	return kind.String() + "|" + group
}

func kindOf(key string) domain.EventKind {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return domain.EventKind(key[:i])
		}
	}
	return domain.EventKind(key)
}

type memoryIterator struct {
	t        *Transport
	kind     domain.EventKind
	group    string
	consumer string
}

// Next delivers the group's next undelivered entry, or (nil, nil) when the
// stream is drained. It never blocks.
func (it *memoryIterator) Next(ctx context.Context) (*domain.Entry, error) {
	if ctx.Err() != nil {
		return nil, fmt.Errorf("reading %s: %w", it.kind, domain.ErrCanceled)
	}

	it.t.mu.Lock()
	defer it.t.mu.Unlock()

	g := it.t.group(it.kind, it.group)
	entries := it.t.streams[it.kind]
	if g.offset >= len(entries) {
		return nil, nil
	}

	entry := entries[g.offset]
	g.offset++
	g.pending[entry.id] = pendingEntry{entry: entry, consumer: it.consumer, deliveredAt: time.Now()}
	return &domain.Entry{StreamID: entry.id, Envelope: entry.env}, nil
}

// Close implements domain.Iterator.
func (it *memoryIterator) Close() error { return nil }

var (
	_ domain.Transport = (*Transport)(nil)
	_ domain.Iterator  = (*memoryIterator)(nil)
)
