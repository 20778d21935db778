package store

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/bigbrotr/archiver/internal/domain"
)

// Memory is an in-memory Store used by tests. It implements the same
// idempotence and orphan-sweep semantics as Postgres without a database.
type Memory struct {
	mu sync.Mutex

	relays        map[string]domain.Relay
	events        map[string]*nostr.Event
	eventsRelays  map[string]map[string]int64 // eventID -> relayURL -> seenAt
	metadata      []domain.RelayMetadata
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		relays:       make(map[string]domain.Relay),
		events:       make(map[string]*nostr.Event),
		eventsRelays: make(map[string]map[string]int64),
	}
}

func (m *Memory) InsertRelay(_ context.Context, relay domain.Relay, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.relays[relay.URL]; !ok {
		m.relays[relay.URL] = relay
	}
	return nil
}

func (m *Memory) InsertRelayBatch(ctx context.Context, relays []domain.Relay, insertedAt int64) error {
	for _, r := range relays {
		if err := m.InsertRelay(ctx, r, insertedAt); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) InsertEvent(_ context.Context, event *nostr.Event, relay domain.Relay, seenAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.relays[relay.URL]; !ok {
		m.relays[relay.URL] = relay
	}
	m.events[event.ID] = event
	if m.eventsRelays[event.ID] == nil {
		m.eventsRelays[event.ID] = make(map[string]int64)
	}
	if _, exists := m.eventsRelays[event.ID][relay.URL]; !exists {
		m.eventsRelays[event.ID][relay.URL] = seenAt
	}
	return nil
}

func (m *Memory) InsertEventBatch(ctx context.Context, events []*nostr.Event, relay domain.Relay, seenAt int64) (int, error) {
	n := 0
	for _, ev := range events {
		if ev == nil || ev.ID == "" {
			continue
		}
		if err := m.InsertEvent(ctx, ev, relay, seenAt); err != nil {
			continue
		}
		n++
	}
	return n, nil
}

func (m *Memory) InsertRelayMetadata(_ context.Context, meta domain.RelayMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata = append(m.metadata, meta)
	return nil
}

func (m *Memory) InsertRelayMetadataBatch(ctx context.Context, metas []domain.RelayMetadata) error {
	for _, mm := range metas {
		if err := m.InsertRelayMetadata(ctx, mm); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) DeleteOrphanEvents(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, relays := range m.eventsRelays {
		if len(relays) == 0 {
			delete(m.eventsRelays, id)
			delete(m.events, id)
			deleted++
		}
	}
	for id := range m.events {
		if _, ok := m.eventsRelays[id]; !ok {
			delete(m.events, id)
			deleted++
		}
	}
	return deleted, nil
}

// RemoveEventsRelaysRow is a test hook letting scenario tests orphan an
// event deterministically without reaching into unexported state.
func (m *Memory) RemoveEventsRelaysRow(eventID, relayURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if relays, ok := m.eventsRelays[eventID]; ok {
		delete(relays, relayURL)
	}
}

func (m *Memory) MaxSeenAt(_ context.Context, relayURL string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max int64
	found := false
	for eventID, relays := range m.eventsRelays {
		if _, ok := relays[relayURL]; !ok {
			continue
		}
		ev, ok := m.events[eventID]
		if !ok {
			continue
		}
		if !found || int64(ev.CreatedAt) > max {
			max = int64(ev.CreatedAt)
			found = true
		}
	}
	return max, found, nil
}

func (m *Memory) ListRelaysNeedingMetadata(_ context.Context, olderThan int64) ([]domain.Relay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := make(map[string]int64)
	for _, md := range m.metadata {
		if md.GeneratedAt > latest[md.Relay.URL] {
			latest[md.Relay.URL] = md.GeneratedAt
		}
	}
	var out []domain.Relay
	for url, relay := range m.relays {
		if g, ok := latest[url]; !ok || g < olderThan {
			out = append(out, relay)
		}
	}
	return out, nil
}

func (m *Memory) ListReadableRelays(_ context.Context, freshSince int64) ([]domain.Relay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []domain.Relay
	for _, md := range m.metadata {
		if md.GeneratedAt <= freshSince {
			continue
		}
		if md.NIP66 == nil || !md.NIP66.Readable {
			continue
		}
		if seen[md.Relay.URL] {
			continue
		}
		seen[md.Relay.URL] = true
		out = append(out, md.Relay)
	}
	return out, nil
}

var _ Store = (*Memory)(nil)
