package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigbrotr/archiver/internal/clock"
	"github.com/bigbrotr/archiver/internal/domain"
	"github.com/bigbrotr/archiver/internal/store"
)

// noopLogger discards everything; used so tests don't need a real sink.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// fakeRelay serves a fixed event set and silently truncates any wide
// window to capLimit events, forcing the engine to bisect.
type fakeRelay struct {
	events   []*nostr.Event
	capLimit int
}

func (r *fakeRelay) matching(since, until int64) []*nostr.Event {
	var out []*nostr.Event
	for _, ev := range r.events {
		ca := int64(ev.CreatedAt)
		if ca >= since && ca <= until {
			out = append(out, ev)
		}
	}
	return out
}

type fakeConn struct {
	relay *fakeRelay
	queue [][]byte
}

func (c *fakeConn) SendText(payload []byte) error {
	var frame []json.RawMessage
	if err := json.Unmarshal(payload, &frame); err != nil {
		return err
	}
	var kind string
	_ = json.Unmarshal(frame[0], &kind)
	if kind != "REQ" {
		return nil
	}
	var subID string
	_ = json.Unmarshal(frame[1], &subID)
	var filterMap map[string]interface{}
	_ = json.Unmarshal(frame[2], &filterMap)
	since := int64(filterMap["since"].(float64))
	until := int64(filterMap["until"].(float64))

	matching := c.relay.matching(since, until)
	if until-since+1 >= 100 && len(matching) > c.relay.capLimit {
		matching = matching[:c.relay.capLimit]
	}
	for _, ev := range matching {
		raw, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		frame, err := json.Marshal([]interface{}{"EVENT", subID, json.RawMessage(raw)})
		if err != nil {
			return err
		}
		c.queue = append(c.queue, frame)
	}
	eose, _ := json.Marshal([]interface{}{"EOSE", subID})
	c.queue = append(c.queue, eose)
	return nil
}

func (c *fakeConn) ReadText(_ time.Time) ([]byte, error) {
	if len(c.queue) == 0 {
		return nil, io.EOF
	}
	msg := c.queue[0]
	c.queue = c.queue[1:]
	return msg, nil
}

func (c *fakeConn) Close() error { return nil }

func buildFakeRelay(n, capLimit int) *fakeRelay {
	events := make([]*nostr.Event, n)
	for i := 0; i < n; i++ {
		events[i] = &nostr.Event{
			ID:        fmt.Sprintf("%064d", i),
			PubKey:    "ab",
			CreatedAt: nostr.Timestamp(i),
			Kind:      1,
			Tags:      nostr.Tags{},
			Content:   "x",
		}
	}
	return &fakeRelay{events: events, capLimit: capLimit}
}

func TestCrawl_BisectsUnderCapAndInsertsEveryEventOnce(t *testing.T) {
	fr := buildFakeRelay(100, 30)
	dial := func(_ context.Context, _ string) (Conn, error) {
		return &fakeConn{relay: fr}, nil
	}

	relay, err := domain.NewRelay("wss://fake.relay")
	require.NoError(t, err)

	mem := store.NewMemory()
	eng := New(mem, noopLogger{}, clock.Real{})

	result, err := eng.Crawl(context.Background(), dial, relay, Config{
		Stop:    99,
		Timeout: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 100, result.EventsInserted)

	seen, ok, err := mem.MaxSeenAt(context.Background(), relay.URL)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(99), seen)
}

func TestCrawl_ResumesFromWatermark(t *testing.T) {
	fr := buildFakeRelay(10, 30)
	dial := func(_ context.Context, _ string) (Conn, error) {
		return &fakeConn{relay: fr}, nil
	}
	relay, err := domain.NewRelay("wss://fake.relay")
	require.NoError(t, err)

	mem := store.NewMemory()
	require.NoError(t, mem.InsertEvent(context.Background(), &nostr.Event{ID: "seed", CreatedAt: 3}, relay, 1))

	eng := New(mem, noopLogger{}, clock.Real{})
	result, err := eng.Crawl(context.Background(), dial, relay, Config{
		Start:   0,
		Stop:    9,
		Timeout: time.Second,
	})
	require.NoError(t, err)
	// Events with created_at <= 3 must not be re-fetched: only 4..9 (6 events) are new.
	assert.Equal(t, 6, result.EventsInserted)
}
