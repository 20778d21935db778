package services

import (
	"context"
	"sync"
	"time"

	"github.com/bigbrotr/archiver/internal/clock"
	"github.com/bigbrotr/archiver/internal/domain"
	"github.com/bigbrotr/archiver/internal/obslog"
	"github.com/bigbrotr/archiver/internal/probe"
	"github.com/bigbrotr/archiver/internal/store"
)

// Monitor probes every relay whose metadata is missing or stale, on a
// fixed interval, grounded on the original's monitor.py chunked
// process-pool sweep (collapsed here onto a bounded goroutine fan-out:
// one process-per-chunk plus per-chunk thread pool become one semaphore).
type Monitor struct {
	store      store.Store
	prober     *probe.Prober
	clock      clock.Clock
	logger     obslog.Logger
	interval   time.Duration
	staleAfter time.Duration
	concurrency int
}

// NewMonitor builds a Monitor.
func NewMonitor(st store.Store, prober *probe.Prober, clk clock.Clock, logger obslog.Logger, interval, staleAfter time.Duration, concurrency int) *Monitor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Monitor{
		store:       st,
		prober:      prober,
		clock:       clk,
		logger:      logger,
		interval:    interval,
		staleAfter:  staleAfter,
		concurrency: concurrency,
	}
}

// Run ticks forever until ctx is cancelled, running one sweep per tick and
// an initial sweep immediately on start.
func (m *Monitor) Run(ctx context.Context) {
	m.runOnce(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

func (m *Monitor) runOnce(ctx context.Context) {
	threshold := m.clock.Now().Add(-m.staleAfter).Unix()
	relays, err := m.store.ListRelaysNeedingMetadata(ctx, threshold)
	if err != nil {
		m.logger.Error("monitor: list relays needing metadata", "error", err.Error())
		return
	}
	if len(relays) == 0 {
		m.logger.Info("monitor: no relays need probing")
		return
	}
	m.logger.Info("monitor: probing relays", "count", len(relays))

	sem := make(chan struct{}, m.concurrency)
	var mu sync.Mutex
	var results []domain.RelayMetadata
	var wg sync.WaitGroup

	for _, relay := range relays {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		default:
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(r domain.Relay) {
			defer wg.Done()
			defer func() { <-sem }()

			meta, err := m.prober.Probe(ctx, r)
			if err != nil {
				m.logger.Warn("monitor: probe failed", "relay", r.URL, "error", err.Error())
				return
			}
			if meta.NIP11.Absent() && (meta.NIP66 == nil || !meta.NIP66.Openable) {
				return
			}
			mu.Lock()
			results = append(results, meta)
			mu.Unlock()
		}(relay)
	}
	wg.Wait()

	if len(results) == 0 {
		m.logger.Info("monitor: no usable metadata produced", "probed", len(relays))
		return
	}
	if err := m.store.InsertRelayMetadataBatch(ctx, results); err != nil {
		m.logger.Error("monitor: insert relay metadata batch", "error", err.Error())
		return
	}
	m.logger.Info("monitor: sweep complete", "probed", len(relays), "inserted", len(results))
}
