package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bigbrotr/archiver/internal/clock"
	"github.com/bigbrotr/archiver/internal/engine"
	"github.com/bigbrotr/archiver/internal/store"
)

func TestPrioritySynchronizer_CrawlsEveryFileRelay(t *testing.T) {
	mem := store.NewMemory()
	path := writeSeedFile(t, "wss://priority-a.relay", "wss://priority-b.relay")

	var crawled []string
	dial := func(_ context.Context, url string) (engine.Conn, error) {
		crawled = append(crawled, url)
		return emptyConn{}, nil
	}

	p := NewPrioritySynchronizer(fakeWorkerStore(mem), dial, clock.Real{}, noopLogger{}, PriorityConfig{
		FilePath: path,
		Workers:  1,
		Timeout:  time.Second,
		Stop:     time.Now().Unix(),
	})

	p.runOnce(context.Background())

	assert.ElementsMatch(t, []string{"wss://priority-a.relay", "wss://priority-b.relay"}, crawled)
}

func TestPrioritySynchronizer_URLsReflectsFileContents(t *testing.T) {
	mem := store.NewMemory()
	path := writeSeedFile(t, "wss://priority-a.relay", "wss://priority-b.relay")

	p := NewPrioritySynchronizer(fakeWorkerStore(mem), fakeDialer(), clock.Real{}, noopLogger{}, PriorityConfig{
		FilePath: path,
	})

	urls, err := p.URLs()

	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"wss://priority-a.relay", "wss://priority-b.relay"}, urls)
}

func TestPrioritySynchronizer_EmptyFileIsNoop(t *testing.T) {
	mem := store.NewMemory()
	path := writeSeedFile(t, "")

	called := false
	dial := func(_ context.Context, _ string) (engine.Conn, error) {
		called = true
		return emptyConn{}, nil
	}

	p := NewPrioritySynchronizer(fakeWorkerStore(mem), dial, clock.Real{}, noopLogger{}, PriorityConfig{
		FilePath: path,
		Timeout:  time.Second,
	})
	p.runOnce(context.Background())

	assert.False(t, called)
}
