package poll

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("poll source closed")

// Config configures a Source.
type Config struct {
	Name       string        // Used in logs and metrics
	Interval   time.Duration // Time between scheduled fetches
	AutoStart  bool          // Start from New
	StaleAfter time.Duration // Staleness threshold (0 = 3 x Interval)
	Timeout    time.Duration // Per-fetch deadline (0 = none)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:  30 * time.Second,
		AutoStart: true,
		Timeout:   10 * time.Second,
	}
}

// Result is a point-in-time view of a Source.
type Result[T any] struct {
	Value    T
	HasValue bool // False until the first successful or fallback fetch

	FetchedAt   time.Time // When Value was stored (real or synthetic)
	LastSuccess time.Time // When a real fetch last succeeded
	IsLoading   bool      // A fetch is in flight
	Err         error     // Last failure; nil after a success

	UsingFallback bool // Value is synthetic
	IsStale       bool // LastSuccess is older than the staleness threshold
}

// Outcome classifies a completed fetch.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFallback  Outcome = "fallback"
	OutcomeError     Outcome = "error"
	OutcomeDiscarded Outcome = "discarded"
)

// Stats counts fetch activity.
type Stats struct {
	Fetches   int64 `json:"fetches"`
	Successes int64 `json:"successes"`
	Fallbacks int64 `json:"fallbacks"`
	Failures  int64 `json:"failures"`
	Skipped   int64 `json:"skipped"`
	Discarded int64 `json:"discarded"`
}

// Observer receives fetch signals, typically for metrics.
type Observer interface {
	FetchSkipped(source string)
	FetchCompleted(source string, outcome Outcome, took time.Duration)
}

type nopObserver struct{}

func (nopObserver) FetchSkipped(string)                           {}
func (nopObserver) FetchCompleted(string, Outcome, time.Duration) {}

type options struct {
	clock    clockwork.Clock
	observer Observer
}

// Option configures a Source.
type Option func(*options)

// WithClock sets the clock driving the schedule and timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithObserver registers an Observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}
