package store

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigbrotr/archiver/internal/domain"
)

func testRelay(t *testing.T) domain.Relay {
	t.Helper()
	r, err := domain.NewRelay("wss://relay.example.com")
	require.NoError(t, err)
	return r
}

func TestMemory_InsertEvent_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	relay := testRelay(t)
	ev := &nostr.Event{ID: "abc", CreatedAt: 100}

	for i := 0; i < 3; i++ {
		require.NoError(t, m.InsertEvent(ctx, ev, relay, 1000))
	}

	seen, ok, err := m.MaxSeenAt(ctx, relay.URL)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(100), seen)
	assert.Len(t, m.events, 1)
}

func TestMemory_OrphanSweep(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	relay := testRelay(t)
	ev := &nostr.Event{ID: "orphan-me", CreatedAt: 1}
	require.NoError(t, m.InsertEvent(ctx, ev, relay, 1))

	m.RemoveEventsRelaysRow(ev.ID, relay.URL)

	deleted, err := m.DeleteOrphanEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	_, exists := m.events[ev.ID]
	assert.False(t, exists)

	// Re-calling is a no-op.
	deleted, err = m.DeleteOrphanEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestMemory_MaxSeenAt_ResumesWatermark(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	relay := testRelay(t)
	require.NoError(t, m.InsertEvent(ctx, &nostr.Event{ID: "e1", CreatedAt: 1000}, relay, 1))

	seen, ok, err := m.MaxSeenAt(ctx, relay.URL)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1001), seen+1, "next REQ should start at created_at+1")
}
