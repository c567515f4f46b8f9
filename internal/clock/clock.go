// Package clock lets timer-driven code run against real time in production
// and against a manually advanced clock in tests.
package clock

import "time"

// Clock is the subset of the time package the terminal core depends on.
type Clock interface {
	Now() time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	// AfterFunc calls f after d has elapsed. The returned Timer can cancel
	// the pending call.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Ticker wraps a periodic timer. C has capacity 1, so ticks that arrive
// while the consumer is busy are dropped rather than queued.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. It does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the timer from firing. It reports whether the call was
// still pending.
func (t *Timer) Stop() bool { return t.stopFunc() }
