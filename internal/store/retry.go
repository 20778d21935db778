package store

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
)

// transientErrorClasses holds the SQLSTATE classes (first two characters of
// the five-character code) that represent recoverable conditions: lost
// connections, exhausted resources, serialization conflicts and operator
// intervention such as admin-initiated disconnects.
var transientErrorClasses = map[string]bool{
	"08": true, // connection exception
	"53": true, // insufficient resources
	"57": true, // operator intervention
	"40": true, // transaction rollback (serialization failure)
}

// isTransient classifies an error per the taxonomy: connection loss, pool
// exhaustion, query cancellation and OS network errors are transient;
// syntax errors, integrity violations and auth failures are permanent.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if len(pqErr.Code) >= 2 {
			return transientErrorClasses[string(pqErr.Code)[:2]]
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// retryConfig bounds the exponential backoff applied to transient errors.
type retryConfig struct {
	baseDelay   time.Duration
	maxAttempts uint64
}

var defaultRetry = retryConfig{baseDelay: 200 * time.Millisecond, maxAttempts: 5}

// withRetry runs op, retrying with exponential backoff while the error is
// transient, calling op at most cfg.maxAttempts times in all. A permanent
// error is returned immediately without retrying.
func withRetry(ctx context.Context, cfg retryConfig, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.baseDelay
	retries := cfg.maxAttempts
	if retries > 0 {
		retries-- // the first call is not a retry
	}
	bounded := backoff.WithMaxRetries(b, retries)
	withCtx := backoff.WithContext(bounded, ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, withCtx)
}
