// Package redisstream distributes events over Redis Streams consumer groups.
// Each event kind maps to one stream named after the kind; all tenants share
// the stream and the envelope carries the tenant identity.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/procopio420/basecommerce/internal/platform/domain"
)

// dataField is the single hash field carrying the JSON envelope.
const dataField = "data"

// Transport implements domain.Transport over Redis Streams.
type Transport struct {
	client       *redis.Client
	blockTimeout time.Duration
}

// NewTransport creates a Transport. blockTimeout bounds how long an iterator's
// Next blocks waiting for an entry.
func NewTransport(client *redis.Client, blockTimeout time.Duration) *Transport {
	return &Transport{client: client, blockTimeout: blockTimeout}
}

// Publish appends the envelope to the kind's stream and returns the entry id.
func (t *Transport) Publish(ctx context.Context, kind domain.EventKind, env domain.Envelope) (string, error) {
	data, err := env.Encode()
	if err != nil {
		return "", fmt.Errorf("encoding envelope: %w", err)
	}

	id, err := t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: kind.String(),
		Values: map[string]any{dataField: data},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("%w: xadd %s: %v", domain.ErrTransient, kind, err)
	}
	return id, nil
}

// Subscribe joins consumer to group on the kind's stream, creating the group
// at the start of the stream if it does not exist yet.
func (t *Transport) Subscribe(ctx context.Context, kind domain.EventKind, group, consumer string) (domain.Iterator, error) {
	err := t.client.XGroupCreateMkStream(ctx, kind.String(), group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return nil, fmt.Errorf("%w: creating group %s on %s: %v", domain.ErrTransient, group, kind, err)
	}

	return &iterator{
		client:       t.client,
		stream:       kind.String(),
		group:        group,
		consumer:     consumer,
		blockTimeout: t.blockTimeout,
	}, nil
}

// Ack removes the entry from the group's pending list.
func (t *Transport) Ack(ctx context.Context, kind domain.EventKind, group, entryID string) error {
	if err := t.client.XAck(ctx, kind.String(), group, entryID).Err(); err != nil {
		return fmt.Errorf("%w: xack %s %s: %v", domain.ErrTransient, kind, entryID, err)
	}
	return nil
}

// ClaimStale re-delivers entries pending longer than minIdle to the calling
// consumer. Entries whose envelope no longer decodes are acked and dropped;
// they never decoded for the original consumer either.
func (t *Transport) ClaimStale(ctx context.Context, kind domain.EventKind, group, consumer string, minIdle time.Duration) ([]domain.Entry, error) {
	var entries []domain.Entry
	start := "0-0"
	for {
		msgs, next, err := t.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   kind.String(),
			Group:    group,
			Consumer: consumer,
			MinIdle:  minIdle,
			Start:    start,
			Count:    100,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: xautoclaim %s: %v", domain.ErrTransient, kind, err)
		}

		for _, msg := range msgs {
			entry, err := decodeMessage(msg)
			if err != nil {
				_ = t.client.XAck(ctx, kind.String(), group, msg.ID).Err()
				continue
			}
			entries = append(entries, *entry)
		}

		if next == "0-0" || len(msgs) == 0 {
			return entries, nil
		}
		start = next
	}
}

// Trim caps the kind's stream at approximately maxLen entries.
func (t *Transport) Trim(ctx context.Context, kind domain.EventKind, maxLen int64) error {
	if err := t.client.XTrimMaxLenApprox(ctx, kind.String(), maxLen, 0).Err(); err != nil {
		return fmt.Errorf("%w: xtrim %s: %v", domain.ErrTransient, kind, err)
	}
	return nil
}

type iterator struct {
	client       *redis.Client
	stream       string
	group        string
	consumer     string
	blockTimeout time.Duration
	buffer       []domain.Entry
}

// Next returns the next entry delivered to this consumer, or (nil, nil) when
// the block timeout elapsed with the stream empty.
func (it *iterator) Next(ctx context.Context) (*domain.Entry, error) {
	if len(it.buffer) > 0 {
		entry := it.buffer[0]
		it.buffer = it.buffer[1:]
		return &entry, nil
	}

	streams, err := it.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    it.group,
		Consumer: it.consumer,
		Streams:  []string{it.stream, ">"},
		Count:    10,
		Block:    it.blockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("reading %s: %w", it.stream, domain.ErrCanceled)
		}
		return nil, fmt.Errorf("%w: xreadgroup %s: %v", domain.ErrTransient, it.stream, err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			entry, err := decodeMessage(msg)
			if err != nil {
				// Undecodable entries are acked here so they cannot
				// wedge the pending list; the envelope never carried
				// a recoverable event.
				_ = it.client.XAck(ctx, it.stream, it.group, msg.ID).Err()
				continue
			}
			it.buffer = append(it.buffer, *entry)
		}
	}

	if len(it.buffer) == 0 {
		return nil, nil
	}
	entry := it.buffer[0]
	it.buffer = it.buffer[1:]
	return &entry, nil
}

// Close releases the iterator. The shared client stays open.
func (it *iterator) Close() error {
	it.buffer = nil
	return nil
}

func decodeMessage(msg redis.XMessage) (*domain.Entry, error) {
	raw, ok := msg.Values[dataField].(string)
	if !ok {
		return nil, fmt.Errorf("%w: entry %s has no %s field", domain.ErrCorruptData, msg.ID, dataField)
	}
	env, err := domain.DecodeEnvelope([]byte(raw))
	if err != nil {
		return nil, err
	}
	return &domain.Entry{StreamID: msg.ID, Envelope: env}, nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

var _ domain.Transport = (*Transport)(nil)
var _ domain.Iterator = (*iterator)(nil)
