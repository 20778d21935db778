package fabric

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bigbrotr/archiver/internal/domain"
	"github.com/bigbrotr/archiver/internal/engine"
	"github.com/bigbrotr/archiver/internal/obslog"
)

// CrawlFunc runs one relay crawl to completion. Each worker calls it with
// its own engine (and thus its own Store pool), grounded on the teacher's
// pattern of a dedicated SimplePool/circuit-breaker set per subscriber.
type CrawlFunc func(ctx context.Context, relay domain.Relay) (engine.Result, error)

// Pool fans a Queue of relays out across a fixed number of worker
// goroutines, collapsing the process/thread/task levels of the
// concurrency-mapping design note onto a single Go runtime: each worker is
// a goroutine, pulls relays from the shared MPMC Queue, and owns its own
// Store pool via the CrawlFunc closure it was built with.
type Pool struct {
	workers  int
	queue    *Queue
	logger   obslog.Logger
	shutdown *ShutdownFlag
	failures *FailureTracker
}

// NewPool builds a pool of the given worker count, reading jobs off queue
// until it drains or shutdown is signalled.
func NewPool(workers int, queue *Queue, logger obslog.Logger, shutdown *ShutdownFlag, failures *FailureTracker) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers, queue: queue, logger: logger, shutdown: shutdown, failures: failures}
}

// Run starts all workers and blocks until every one exits: either the
// queue is closed and drained, ctx is cancelled, or the shutdown flag is
// latched. crawl is invoked once per dequeued relay; per-worker crawlers
// (built by crawlFor) let each worker hold an independent Store pool,
// closed via the returned io.Closer once that worker has no more jobs.
func (p *Pool) Run(ctx context.Context, crawlFor func(workerID int) (CrawlFunc, io.Closer)) {
	done := make(chan struct{}, p.workers)
	for i := 0; i < p.workers; i++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			crawl, closer := crawlFor(id)
			if closer != nil {
				defer closer.Close()
			}
			p.runWorker(ctx, id, crawl)
		}(i)
	}
	for i := 0; i < p.workers; i++ {
		<-done
	}
}

// runWorker pulls relays off the queue until Get reports empty (timeout or
// a closed, drained queue), ctx is cancelled, or shutdown is latched; any
// of the three terminates the worker rather than busy-looping.
func (p *Pool) runWorker(ctx context.Context, id int, crawl CrawlFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if p.shutdown.Stopped() {
			return
		}

		relay, ok := p.queue.Get()
		if !ok {
			return
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("panic in worker", "worker", id, "relay", relay.URL, "panic", fmt.Sprintf("%v", r))
					if p.failures != nil {
						p.failures.Record(true)
					}
				}
			}()

			start := time.Now()
			result, err := crawl(ctx, relay)
			elapsed := time.Since(start)

			failed := err != nil || result.State == engine.StateAborted
			if p.failures != nil {
				if rate, justAlerted := p.failures.Record(failed); justAlerted {
					p.logger.Warn("relay failure rate exceeded threshold", "rate", rate)
				}
			}
			if failed {
				p.logger.Warn("crawl failed", "worker", id, "relay", relay.URL, "error", errString(err), "elapsed", elapsed.String())
				return
			}
			p.logger.Info("crawl finished", "worker", id, "relay", relay.URL, "state", result.State.String(),
				"events_inserted", result.EventsInserted, "requests_done", result.RequestsDone, "elapsed", elapsed.String())
		}()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
