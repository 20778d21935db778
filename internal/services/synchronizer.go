package services

import (
	"context"
	"io"
	"time"

	"github.com/bigbrotr/archiver/internal/clock"
	"github.com/bigbrotr/archiver/internal/domain"
	"github.com/bigbrotr/archiver/internal/engine"
	"github.com/bigbrotr/archiver/internal/fabric"
	"github.com/bigbrotr/archiver/internal/obslog"
	"github.com/bigbrotr/archiver/internal/store"
)

// WorkerStore builds one worker's dedicated Store pool and the teardown
// for it, so each fabric worker owns an independent connection pool per
// spec.md's per-worker-pool requirement.
type WorkerStore func(workerID int) (store.Store, io.Closer, error)

// SyncConfig bounds one Synchronizer crawl cycle.
type SyncConfig struct {
	Interval    time.Duration
	FreshSince  time.Duration // relay readable window: now - FreshSince
	Workers     int           // total goroutine workers (NumCores * RequestsPerCore)
	StartJitter time.Duration
	Start       int64
	Stop        int64 // 0 means "now minus 24h", matching the original's end_time fallback
	Timeout     time.Duration
	Filter      engine.Filter

	FailureWindow    int
	FailureThreshold float64
}

// Synchronizer crawls readable relays on an interval, grounded on
// services/synchronizer.py's main_loop: fetch readable relays, shuffle,
// exclude priority-owned relays, fan out across workers.
type Synchronizer struct {
	store       store.Store
	workerStore WorkerStore
	dial        engine.Dialer
	clock       clock.Clock
	logger      obslog.Logger
	cfg         SyncConfig

	// ExcludeURLs, if set, returns relay URLs the Priority Synchronizer
	// already owns; Synchronizer skips them from its own queue.
	ExcludeURLs func() ([]string, error)
}

// NewSynchronizer builds a Synchronizer.
func NewSynchronizer(st store.Store, workerStore WorkerStore, dial engine.Dialer, clk clock.Clock, logger obslog.Logger, cfg SyncConfig) *Synchronizer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Synchronizer{store: st, workerStore: workerStore, dial: dial, clock: clk, logger: logger, cfg: cfg}
}

// Run ticks forever until ctx is cancelled, running one cycle immediately.
func (s *Synchronizer) Run(ctx context.Context) {
	s.runOnce(ctx)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Synchronizer) runOnce(ctx context.Context) {
	freshSince := s.clock.Now().Add(-s.cfg.FreshSince).Unix()
	relays, err := s.store.ListReadableRelays(ctx, freshSince)
	if err != nil {
		s.logger.Error("synchronizer: list readable relays", "error", err.Error())
		return
	}

	excluded := map[string]bool{}
	if s.ExcludeURLs != nil {
		urls, err := s.ExcludeURLs()
		if err != nil {
			s.logger.Warn("synchronizer: exclude urls lookup failed", "error", err.Error())
		}
		for _, u := range urls {
			excluded[u] = true
		}
	}

	filtered := relays[:0]
	for _, r := range relays {
		if !excluded[r.URL] {
			filtered = append(filtered, r)
		}
	}
	relays = filtered

	Shuffle(relays)
	s.logger.Info("synchronizer: relays to process", "count", len(relays))
	if len(relays) == 0 {
		return
	}

	endTime := s.cfg.Stop
	if endTime == 0 {
		endTime = s.clock.Now().Add(-24 * time.Hour).Unix()
	}

	runWorkers(ctx, relays, s.cfg.Workers, s.cfg.StartJitter, s.cfg.FailureWindow, s.cfg.FailureThreshold, s.logger,
		func(workerID int) (fabric.CrawlFunc, io.Closer) {
			st, closer, err := s.workerStore(workerID)
			if err != nil {
				s.logger.Error("synchronizer: build worker store", "worker", workerID, "error", err.Error())
				return func(context.Context, domain.Relay) (engine.Result, error) {
					return engine.Result{State: engine.StateAborted}, err
				}, nil
			}
			eng := engine.New(st, s.logger, s.clock)
			return func(ctx context.Context, relay domain.Relay) (engine.Result, error) {
				crawlCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
				defer cancel()
				return eng.Crawl(crawlCtx, s.dial, relay, engine.Config{
					Filter:  s.cfg.Filter,
					Start:   s.cfg.Start,
					Stop:    endTime,
					Timeout: s.cfg.Timeout,
				})
			}, closer
		})
}

// runWorkers builds a queue and pool shared by Synchronizer and
// PrioritySynchronizer, delaying each worker's first crawl (after it has
// taken its first relay off the queue) by a random duration below
// startJitter, matching the original's per-task asyncio.sleep(random(0,120)).
func runWorkers(ctx context.Context, relays []domain.Relay, workers int, startJitter time.Duration, failureWindow int, failureThreshold float64, logger obslog.Logger, crawlFor func(workerID int) (fabric.CrawlFunc, io.Closer)) {
	queue := fabric.NewQueue(len(relays))
	queue.Fill(relays)
	queue.Close()

	shutdown := fabric.NewShutdownFlag()
	failures := fabric.NewFailureTracker(failureWindow, failureThreshold)
	pool := fabric.NewPool(workers, queue, logger, shutdown, failures)

	pool.Run(ctx, func(workerID int) (fabric.CrawlFunc, io.Closer) {
		crawl, closer := crawlFor(workerID)
		return jitteredCrawl(startJitter, crawl), closer
	})
}

func jitteredCrawl(startJitter time.Duration, inner fabric.CrawlFunc) fabric.CrawlFunc {
	slept := false
	return func(ctx context.Context, relay domain.Relay) (engine.Result, error) {
		if !slept {
			slept = true
			if startJitter > 0 {
				delay := randDuration(startJitter)
				select {
				case <-ctx.Done():
					return engine.Result{State: engine.StateAborted}, ctx.Err()
				case <-time.After(delay):
				}
			}
		}
		return inner(ctx, relay)
	}
}
