package poll

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/rickgao/scamwatch-ops/internal/fallback"
	"github.com/rickgao/scamwatch-ops/internal/staleness"
)

// run is one liveness scope. Fetches and the ticker loop hold a pointer to
// the run that started them and only act while it is alive. Stop and Close
// kill the run.
type run struct {
	alive atomic.Bool
}

func newRun() *run {
	r := &run{}
	r.alive.Store(true)
	return r
}

// Source periodically fetches a value of type T.
type Source[T any] struct {
	cfg      Config
	policy   *fallback.Policy[T]
	logger   *slog.Logger
	clock    clockwork.Clock
	observer Observer

	ctx    context.Context // Cancelled by Close
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	run      *run
	ticker   clockwork.Ticker
	stopLoop chan struct{}
	closed   bool
	result   Result[T]

	changes chan struct{}

	// Set while any fetch is in flight, including one discarded by Stop
	busy atomic.Bool

	fetches   atomic.Int64
	successes atomic.Int64
	fallbacks atomic.Int64
	failures  atomic.Int64
	skipped   atomic.Int64
	discarded atomic.Int64
}

// New creates a Source fetching through policy. With cfg.AutoStart the first
// fetch is issued before New returns.
func New[T any](cfg Config, policy *fallback.Policy[T], logger *slog.Logger, opts ...Option) *Source[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 3 * cfg.Interval
	}

	o := options{
		clock:    clockwork.NewRealClock(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Source[T]{
		cfg:      cfg,
		policy:   policy,
		logger:   logger.With("component", "poll", "source", cfg.Name),
		clock:    o.clock,
		observer: o.observer,
		ctx:      ctx,
		cancel:   cancel,
		run:      newRun(),
		changes:  make(chan struct{}, 1),
	}

	if cfg.AutoStart {
		s.Start()
	}

	return s
}

// Name returns the configured source name.
func (s *Source[T]) Name() string {
	return s.cfg.Name
}

// Start fetches immediately and then every Interval. Calling Start on a
// running source replaces its schedule.
func (s *Source[T]) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	s.stopTickerLocked()

	ticker := s.clock.NewTicker(s.cfg.Interval)
	stop := make(chan struct{})
	s.ticker = ticker
	s.stopLoop = stop

	r := s.run
	s.wg.Add(1)
	go s.loop(ticker, stop, r)
	s.mu.Unlock()

	s.logger.Debug("poll source started", "interval", s.cfg.Interval)

	s.begin(r)
	return nil
}

// Stop cancels the schedule. A fetch in flight completes but its result is
// discarded; until it returns, fetches started by Start or Refresh are
// skipped.
func (s *Source[T]) Stop() {
	s.mu.Lock()
	wasRunning := s.ticker != nil
	s.stopTickerLocked()

	s.run.alive.Store(false)
	if !s.closed {
		s.run = newRun()
	}

	wasLoading := s.result.IsLoading
	s.result.IsLoading = false
	s.mu.Unlock()

	if wasRunning {
		s.logger.Debug("poll source stopped")
	}
	if wasLoading {
		s.notify()
	}
}

// Refresh issues an out-of-band fetch, leaving the schedule untouched.
// It returns false if the fetch was skipped because one is in flight or the
// source is closed.
func (s *Source[T]) Refresh() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	r := s.run
	s.mu.Unlock()

	return s.begin(r)
}

// Close stops the source for good, cancels any fetch in flight and waits for
// it to return. Close is idempotent.
func (s *Source[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopTickerLocked()
	s.run.alive.Store(false)
	s.result.IsLoading = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// Running reports whether the schedule is active.
func (s *Source[T]) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticker != nil
}

// Snapshot returns the current outcome.
func (s *Source[T]) Snapshot() Result[T] {
	s.mu.Lock()
	res := s.result
	s.mu.Unlock()

	res.IsStale = staleness.IsStale(s.clock.Now(), res.LastSuccess, s.cfg.StaleAfter)
	return res
}

// Stale reports whether the last real success is older than the staleness
// threshold. A source that never succeeded is stale.
func (s *Source[T]) Stale() bool {
	s.mu.Lock()
	last := s.result.LastSuccess
	s.mu.Unlock()

	return staleness.IsStale(s.clock.Now(), last, s.cfg.StaleAfter)
}

// Changes signals after the snapshot changes. Signals coalesce: a receiver
// should re-read Snapshot rather than count signals. The channel is never
// closed.
func (s *Source[T]) Changes() <-chan struct{} {
	return s.changes
}

// Stats returns fetch counters.
func (s *Source[T]) Stats() Stats {
	return Stats{
		Fetches:   s.fetches.Load(),
		Successes: s.successes.Load(),
		Fallbacks: s.fallbacks.Load(),
		Failures:  s.failures.Load(),
		Skipped:   s.skipped.Load(),
		Discarded: s.discarded.Load(),
	}
}

func (s *Source[T]) stopTickerLocked() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stopLoop)
	s.ticker = nil
	s.stopLoop = nil
}

// loop fires scheduled fetches in scope r. A tick that races Stop lands on
// the dead scope and is dropped.
func (s *Source[T]) loop(ticker clockwork.Ticker, stop <-chan struct{}, r *run) {
	defer s.wg.Done()

	for {
		select {
		case <-stop:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.Chan():
			s.begin(r)
		}
	}
}

// begin starts a fetch in scope r unless one is already in flight.
func (s *Source[T]) begin(r *run) bool {
	if !r.alive.Load() {
		return false
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.observer.FetchSkipped(s.cfg.Name)
		s.logger.Debug("fetch in flight, skipping tick")
		return false
	}

	s.mu.Lock()
	if !r.alive.Load() {
		s.mu.Unlock()
		s.busy.Store(false)
		return false
	}
	s.result.IsLoading = true
	s.wg.Add(1)
	s.mu.Unlock()

	s.fetches.Add(1)
	s.notify()

	go s.fetch(r)
	return true
}

func (s *Source[T]) fetch(r *run) {
	defer s.wg.Done()

	ctx := s.ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	started := s.clock.Now()
	res, err := s.policy.Fetch(ctx)
	took := s.clock.Since(started)

	s.mu.Lock()
	if !r.alive.Load() {
		s.mu.Unlock()
		s.busy.Store(false)
		s.discarded.Add(1)
		s.observer.FetchCompleted(s.cfg.Name, OutcomeDiscarded, took)
		s.logger.Debug("discarding result of stopped source")
		return
	}

	now := s.clock.Now()
	var outcome Outcome
	switch {
	case err != nil:
		// Previous value is kept
		s.result.Err = err
		outcome = OutcomeError
	case res.Fallback:
		s.result.Value = res.Value
		s.result.HasValue = true
		s.result.FetchedAt = now
		s.result.Err = res.Cause
		s.result.UsingFallback = true
		outcome = OutcomeFallback
	default:
		s.result.Value = res.Value
		s.result.HasValue = true
		s.result.FetchedAt = now
		s.result.LastSuccess = now
		s.result.Err = nil
		s.result.UsingFallback = false
		outcome = OutcomeSuccess
	}
	s.result.IsLoading = false
	s.busy.Store(false)
	s.mu.Unlock()

	switch outcome {
	case OutcomeError:
		s.failures.Add(1)
		s.logger.Warn("fetch failed", "error", err, "took", took)
	case OutcomeFallback:
		s.fallbacks.Add(1)
		s.logger.Warn("fetch failed, using fallback data", "error", res.Cause, "took", took)
	default:
		s.successes.Add(1)
		s.logger.Debug("fetch succeeded", "took", took)
	}
	s.observer.FetchCompleted(s.cfg.Name, outcome, took)

	s.notify()
}

func (s *Source[T]) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
