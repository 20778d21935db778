package services

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigbrotr/archiver/internal/clock"
	"github.com/bigbrotr/archiver/internal/domain"
	"github.com/bigbrotr/archiver/internal/engine"
	"github.com/bigbrotr/archiver/internal/store"
)

// emptyConn accepts every frame and answers every read with io.EOF, so an
// Engine.Crawl dials the relay and then ends on the read error, without a
// real relay.
type emptyConn struct{}

func (emptyConn) SendText(payload []byte) error {
	var frame []json.RawMessage
	if err := json.Unmarshal(payload, &frame); err != nil {
		return err
	}
	return nil
}

func (emptyConn) ReadText(_ time.Time) ([]byte, error) {
	return nil, io.EOF
}

func (emptyConn) Close() error { return nil }

func fakeWorkerStore(mem store.Store) WorkerStore {
	return func(workerID int) (store.Store, io.Closer, error) {
		return mem, io.NopCloser(nil), nil
	}
}

func fakeDialer() engine.Dialer {
	return func(_ context.Context, _ string) (engine.Conn, error) {
		return emptyConn{}, nil
	}
}

func seedReadableRelay(t *testing.T, mem *store.Memory, url string, generatedAt int64) domain.Relay {
	t.Helper()
	relay, err := domain.NewRelay(url)
	require.NoError(t, err)
	require.NoError(t, mem.InsertRelay(context.Background(), relay, generatedAt))
	require.NoError(t, mem.InsertRelayMetadata(context.Background(), domain.RelayMetadata{
		Relay:       relay,
		GeneratedAt: generatedAt,
		NIP66:       &domain.NIP66{Readable: true},
	}))
	return relay
}

func TestSynchronizer_CrawlsEveryReadableRelay(t *testing.T) {
	mem := store.NewMemory()
	now := time.Now().Unix()
	seedReadableRelay(t, mem, "wss://a.relay", now)
	seedReadableRelay(t, mem, "wss://b.relay", now)

	var mu sync.Mutex
	var crawled []string
	countingDialer := func(_ context.Context, url string) (engine.Conn, error) {
		mu.Lock()
		crawled = append(crawled, url)
		mu.Unlock()
		return emptyConn{}, nil
	}

	svc := NewSynchronizer(mem, fakeWorkerStore(mem), countingDialer, clock.Real{}, noopLogger{}, SyncConfig{
		Workers: 2,
		Timeout: time.Second,
		Stop:    now,
	})

	svc.runOnce(context.Background())

	assert.ElementsMatch(t, []string{"wss://a.relay", "wss://b.relay"}, crawled)
}

func TestSynchronizer_ExcludesPriorityOwnedRelays(t *testing.T) {
	mem := store.NewMemory()
	now := time.Now().Unix()
	seedReadableRelay(t, mem, "wss://a.relay", now)
	excluded := seedReadableRelay(t, mem, "wss://b.relay", now)

	var crawled []string
	countingDialer := func(_ context.Context, url string) (engine.Conn, error) {
		crawled = append(crawled, url)
		return emptyConn{}, nil
	}

	svc := NewSynchronizer(mem, fakeWorkerStore(mem), countingDialer, clock.Real{}, noopLogger{}, SyncConfig{
		Workers: 1,
		Timeout: time.Second,
		Stop:    now,
	})
	svc.ExcludeURLs = func() ([]string, error) { return []string{excluded.URL}, nil }

	svc.runOnce(context.Background())

	assert.NotContains(t, crawled, excluded.URL)
}

func TestSynchronizer_NoReadableRelaysIsNoop(t *testing.T) {
	mem := store.NewMemory()
	called := false
	dial := func(_ context.Context, _ string) (engine.Conn, error) {
		called = true
		return emptyConn{}, nil
	}

	svc := NewSynchronizer(mem, fakeWorkerStore(mem), dial, clock.Real{}, noopLogger{}, SyncConfig{Workers: 1, Timeout: time.Second})
	svc.runOnce(context.Background())

	assert.False(t, called)
}
