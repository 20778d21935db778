// Package ratelimit provides a per-relay-URL token bucket so the fabric
// never dispatches requests to one relay faster than it tolerates.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRequestsPerSecond is the refill rate applied to a newly
	// created bucket when the caller does not override it.
	DefaultRequestsPerSecond = 1.0
	// DefaultBurst is the bucket capacity applied by default: 2x the
	// default rate, matching the original crawler's RelayRateLimiter.
	DefaultBurst = 2
)

// Limiter is a process-local map of per-URL token buckets, guarded by a
// mutex; each bucket's internals are guarded by its own mutex via
// golang.org/x/time/rate.
type Limiter struct {
	requestsPerSecond float64
	burst             int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New creates a Limiter. A requestsPerSecond of 0 selects
// DefaultRequestsPerSecond; a burst of 0 selects DefaultBurst.
func New(requestsPerSecond float64, burst int) *Limiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &Limiter{
		requestsPerSecond: requestsPerSecond,
		burst:             burst,
		buckets:           make(map[string]*rate.Limiter),
	}
}

// bucketFor returns the limiter for url, looking it up and creating it
// lazily under the map mutex so concurrent first-uses of the same URL
// share one bucket instead of racing to create separate ones.
func (l *Limiter) bucketFor(url string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[url]; ok {
		return b
	}
	b := rate.NewLimiter(rate.Limit(l.requestsPerSecond), l.burst)
	l.buckets[url] = b
	return b
}

// Acquire blocks until n tokens are available for url, or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, url string, n int) error {
	return l.bucketFor(url).WaitN(ctx, n)
}

// TryAcquire attempts to take n tokens for url without blocking. It
// reports whether the tokens were available and taken.
func (l *Limiter) TryAcquire(url string, n int) bool {
	return l.bucketFor(url).AllowN(time.Now(), n)
}
