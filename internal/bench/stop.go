package bench

import "sync/atomic"

// StopFlag tells every worker to stop issuing new round trips. It has exactly
// one writer and any number of readers, and only ever goes from false to
// true. Triggering it again is harmless.
type StopFlag struct {
	stopped atomic.Bool
}

// Stopped is checked by workers once per round trip.
func (f *StopFlag) Stopped() bool {
	return f.stopped.Load()
}

// Trigger tells workers to finish their current round trip and return.
func (f *StopFlag) Trigger() {
	f.stopped.Store(true)
}
