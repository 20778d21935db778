package probe

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMineProofOfWork_ZeroTargetJustComputesID(t *testing.T) {
	ev := &nostr.Event{PubKey: "ab", CreatedAt: 1, Kind: 1, Tags: nostr.Tags{}, Content: "hi"}
	err := MineProofOfWork(context.Background(), ev, 0, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
}

func TestMineProofOfWork_SmallDifficultyTerminates(t *testing.T) {
	ev := &nostr.Event{PubKey: "ab", CreatedAt: 1, Kind: 30166, Tags: nostr.Tags{{"d", "wss://x"}}, Content: ""}
	err := MineProofOfWork(context.Background(), ev, 4, time.Now().Add(5*time.Second))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, leadingZeroBits(ev.ID), 4)
}

func TestMineProofOfWork_RespectsDeadline(t *testing.T) {
	ev := &nostr.Event{PubKey: "ab", CreatedAt: 1, Kind: 30166, Tags: nostr.Tags{{"d", "wss://x"}}}
	err := MineProofOfWork(context.Background(), ev, 64, time.Now().Add(10*time.Millisecond))
	assert.Error(t, err)
}
