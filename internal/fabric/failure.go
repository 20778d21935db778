package fabric

import "sync"

// FailureTracker maintains a rolling count of the last N relay outcomes
// and reports when the failure rate crosses a threshold, generalizing the
// teacher's per-relay publish circuit breaker into a fleet-wide rolling
// failure-rate alert.
type FailureTracker struct {
	mu        sync.Mutex
	window    []bool // true = failure
	size      int
	threshold float64
	alerted   bool
}

// NewFailureTracker builds a tracker over the last windowSize outcomes,
// alerting once the failure rate exceeds threshold (e.g. 0.10 for 10%).
func NewFailureTracker(windowSize int, threshold float64) *FailureTracker {
	if windowSize <= 0 {
		windowSize = 100
	}
	if threshold <= 0 {
		threshold = 0.10
	}
	return &FailureTracker{size: windowSize, threshold: threshold}
}

// Record appends one outcome and reports whether this call just crossed
// the alert threshold (so the caller logs the alert exactly once per
// crossing, not on every subsequent failure).
func (f *FailureTracker) Record(failed bool) (rate float64, justAlerted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.window = append(f.window, failed)
	if len(f.window) > f.size {
		f.window = f.window[len(f.window)-f.size:]
	}

	failures := 0
	for _, v := range f.window {
		if v {
			failures++
		}
	}
	rate = float64(failures) / float64(len(f.window))

	if rate > f.threshold {
		if !f.alerted {
			f.alerted = true
			return rate, true
		}
	} else {
		f.alerted = false
	}
	return rate, false
}
