package fabric

import "sync/atomic"

// ShutdownFlag is a process-wide, concurrency-safe stop signal checked by
// every worker between jobs, mirroring the removed entrypoint's
// signal.NotifyContext-driven graceful shutdown.
type ShutdownFlag struct {
	stopped atomic.Bool
}

// NewShutdownFlag returns a flag in the running state.
func NewShutdownFlag() *ShutdownFlag {
	return &ShutdownFlag{}
}

// Stop latches the flag. Idempotent.
func (f *ShutdownFlag) Stop() {
	f.stopped.Store(true)
}

// Stopped reports whether Stop has been called.
func (f *ShutdownFlag) Stopped() bool {
	return f.stopped.Load()
}
