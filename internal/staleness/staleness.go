// Package staleness decides whether displayed data is too old to trust.
package staleness

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// IsStale reports whether data last refreshed at lastSuccess is stale at now.
// A zero lastSuccess (never refreshed) is stale. Otherwise data is stale only
// once its age exceeds threshold; an age equal to threshold is still fresh.
func IsStale(now, lastSuccess time.Time, threshold time.Duration) bool {
	if lastSuccess.IsZero() {
		return true
	}
	return now.Sub(lastSuccess) > threshold
}

// Evaluator applies a fixed threshold against a clock.
type Evaluator struct {
	Threshold time.Duration
	clock     clockwork.Clock
}

// NewEvaluator creates an Evaluator. A nil clock means the real clock.
func NewEvaluator(threshold time.Duration, clock clockwork.Clock) *Evaluator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Evaluator{Threshold: threshold, clock: clock}
}

// Stale reports whether lastSuccess is stale now.
func (e *Evaluator) Stale(lastSuccess time.Time) bool {
	return IsStale(e.clock.Now(), lastSuccess, e.Threshold)
}

// Age returns how old lastSuccess is now, or 0 if it is zero.
func (e *Evaluator) Age(lastSuccess time.Time) time.Duration {
	if lastSuccess.IsZero() {
		return 0
	}
	return e.clock.Since(lastSuccess)
}
