// Package store defines the persistence contract the rest of the archiver
// depends on, plus a Postgres-backed production adapter and an in-memory
// adapter for tests.
package store

import (
	"context"

	"github.com/nbd-wtf/go-nostr"

	"github.com/bigbrotr/archiver/internal/domain"
)

// Store is the idempotent, pooled, retry-wrapped ingestion surface every
// other subsystem depends on. The core must not reach behind this
// interface: a single production adapter (Postgres) and a single test
// adapter (Memory) are the only implementations.
type Store interface {
	InsertRelay(ctx context.Context, relay domain.Relay, insertedAt int64) error
	InsertRelayBatch(ctx context.Context, relays []domain.Relay, insertedAt int64) error

	InsertEvent(ctx context.Context, event *nostr.Event, relay domain.Relay, seenAt int64) error
	InsertEventBatch(ctx context.Context, events []*nostr.Event, relay domain.Relay, seenAt int64) (inserted int, err error)

	InsertRelayMetadata(ctx context.Context, meta domain.RelayMetadata) error
	InsertRelayMetadataBatch(ctx context.Context, metas []domain.RelayMetadata) error

	DeleteOrphanEvents(ctx context.Context) (deleted int64, err error)
	MaxSeenAt(ctx context.Context, relayURL string) (created int64, ok bool, err error)

	ListRelaysNeedingMetadata(ctx context.Context, olderThan int64) ([]domain.Relay, error)
	ListReadableRelays(ctx context.Context, freshSince int64) ([]domain.Relay, error)
}
