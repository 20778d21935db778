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
)

// PriorityConfig bounds one PrioritySynchronizer crawl cycle.
type PriorityConfig struct {
	Interval    time.Duration
	FilePath    string
	Workers     int
	StartJitter time.Duration
	Start       int64
	Stop        int64
	Timeout     time.Duration
	Filter      engine.Filter

	FailureWindow    int
	FailureThreshold float64
}

// PrioritySynchronizer crawls a fixed, file-pinned relay subset on an
// interval, bypassing the readable-relay filter entirely, grounded on
// services/priority_synchronizer.py. It also serves as the ExcludeURLs
// hook for Synchronizer, so a relay is never crawled by both loops at
// once.
type PrioritySynchronizer struct {
	workerStore WorkerStore
	dial        engine.Dialer
	clock       clock.Clock
	logger      obslog.Logger
	cfg         PriorityConfig
}

// NewPrioritySynchronizer builds a PrioritySynchronizer.
func NewPrioritySynchronizer(workerStore WorkerStore, dial engine.Dialer, clk clock.Clock, logger obslog.Logger, cfg PriorityConfig) *PrioritySynchronizer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &PrioritySynchronizer{workerStore: workerStore, dial: dial, clock: clk, logger: logger, cfg: cfg}
}

// URLs returns the current priority relay list's URLs, satisfying
// Synchronizer.ExcludeURLs.
func (p *PrioritySynchronizer) URLs() ([]string, error) {
	relays, err := ReadRelayFile(p.cfg.FilePath, p.logger)
	if err != nil {
		return nil, err
	}
	urls := make([]string, len(relays))
	for i, r := range relays {
		urls[i] = r.URL
	}
	return urls, nil
}

// Run ticks forever until ctx is cancelled, running one cycle immediately.
func (p *PrioritySynchronizer) Run(ctx context.Context) {
	p.runOnce(ctx)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *PrioritySynchronizer) runOnce(ctx context.Context) {
	relays, err := ReadRelayFile(p.cfg.FilePath, p.logger)
	if err != nil {
		p.logger.Error("priority synchronizer: read priority file", "path", p.cfg.FilePath, "error", err.Error())
		return
	}
	Shuffle(relays)
	p.logger.Info("priority synchronizer: relays to process", "count", len(relays))
	if len(relays) == 0 {
		return
	}

	endTime := p.cfg.Stop
	if endTime == 0 {
		endTime = p.clock.Now().Add(-24 * time.Hour).Unix()
	}

	runWorkers(ctx, relays, p.cfg.Workers, p.cfg.StartJitter, p.cfg.FailureWindow, p.cfg.FailureThreshold, p.logger,
		func(workerID int) (fabric.CrawlFunc, io.Closer) {
			st, closer, err := p.workerStore(workerID)
			if err != nil {
				p.logger.Error("priority synchronizer: build worker store", "worker", workerID, "error", err.Error())
				return func(context.Context, domain.Relay) (engine.Result, error) {
					return engine.Result{State: engine.StateAborted}, err
				}, nil
			}
			eng := engine.New(st, p.logger, p.clock)
			return func(ctx context.Context, relay domain.Relay) (engine.Result, error) {
				crawlCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
				defer cancel()
				return eng.Crawl(crawlCtx, p.dial, relay, engine.Config{
					Filter:  p.cfg.Filter,
					Start:   p.cfg.Start,
					Stop:    endTime,
					Timeout: p.cfg.Timeout,
				})
			}, closer
		})
}
