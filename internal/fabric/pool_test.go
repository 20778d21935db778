package fabric

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bigbrotr/archiver/internal/domain"
	"github.com/bigbrotr/archiver/internal/engine"
)

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}

func testRelay(t *testing.T, url string) domain.Relay {
	t.Helper()
	r, err := domain.NewRelay(url)
	if err != nil {
		t.Fatalf("NewRelay(%q): %v", url, err)
	}
	return r
}

func TestPool_ProcessesEveryQueuedRelayExactlyOnce(t *testing.T) {
	relays := []domain.Relay{
		testRelay(t, "wss://a.relay"),
		testRelay(t, "wss://b.relay"),
		testRelay(t, "wss://c.relay"),
	}
	queue := NewQueue(len(relays))
	queue.Fill(relays)
	queue.Close()

	var mu sync.Mutex
	seen := map[string]int{}

	pool := NewPool(2, queue, discardLogger{}, NewShutdownFlag(), NewFailureTracker(10, 0.5))
	pool.Run(context.Background(), func(workerID int) (CrawlFunc, io.Closer) {
		return func(_ context.Context, r domain.Relay) (engine.Result, error) {
			mu.Lock()
			seen[r.URL]++
			mu.Unlock()
			return engine.Result{State: engine.StateDone}, nil
		}, nil
	})

	assert.Len(t, seen, 3)
	for _, count := range seen {
		assert.Equal(t, 1, count)
	}
}

func TestPool_ClosesPerWorkerStoreOnExit(t *testing.T) {
	relays := []domain.Relay{testRelay(t, "wss://a.relay")}
	queue := NewQueue(len(relays))
	queue.Fill(relays)
	queue.Close()

	var closed atomic.Int32
	pool := NewPool(1, queue, discardLogger{}, NewShutdownFlag(), nil)
	pool.Run(context.Background(), func(workerID int) (CrawlFunc, io.Closer) {
		crawl := func(_ context.Context, _ domain.Relay) (engine.Result, error) {
			return engine.Result{State: engine.StateDone}, nil
		}
		return crawl, closerFunc(func() error { closed.Add(1); return nil })
	})

	assert.Equal(t, int32(1), closed.Load())
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
