// Package fallback substitutes synthetic data for a failed fetch so that a
// panel keeps rendering while the backend is unreachable.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrFetchPanic wraps a panic recovered from a fetch function.
var ErrFetchPanic = errors.New("fetch panicked")

// FetchFunc retrieves one value from the backend.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Generator produces a synthetic value with the same shape as a real one.
type Generator[T any] func() T

// Result is the outcome of Policy.Fetch.
type Result[T any] struct {
	Value T
	// Fallback is true when Value is synthetic.
	Fallback bool
	// Cause is the primary fetch error that triggered the fallback.
	Cause error
}

// Policy wraps a fetch function with an optional synthetic fallback.
type Policy[T any] struct {
	primary  FetchFunc[T]
	generate Generator[T]
	logger   *slog.Logger
}

// New creates a Policy. A nil generate disables the fallback: errors are then
// returned to the caller unchanged.
func New[T any](primary FetchFunc[T], generate Generator[T], logger *slog.Logger) *Policy[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy[T]{
		primary:  primary,
		generate: generate,
		logger:   logger,
	}
}

// Enabled reports whether failures are replaced by synthetic values.
func (p *Policy[T]) Enabled() bool {
	return p.generate != nil
}

// Fetch runs the primary fetch. On failure with a generator configured, the
// error is absorbed and a synthetic value tagged Fallback is returned with the
// original error in Cause. Cancellation of ctx is always returned as an error;
// an expired deadline is an ordinary failure and falls back.
func (p *Policy[T]) Fetch(ctx context.Context) (Result[T], error) {
	value, err := p.callPrimary(ctx)
	if err == nil {
		return Result[T]{Value: value}, nil
	}

	if p.generate == nil || errors.Is(ctx.Err(), context.Canceled) {
		return Result[T]{}, err
	}

	synthetic, genErr := p.callGenerate()
	if genErr != nil {
		p.logger.Warn("fallback generator failed", "error", genErr, "cause", err)
		return Result[T]{}, err
	}

	p.logger.Debug("using fallback data", "cause", err)
	return Result[T]{Value: synthetic, Fallback: true, Cause: err}, nil
}

func (p *Policy[T]) callPrimary(ctx context.Context) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrFetchPanic, r)
		}
	}()
	if p.primary == nil {
		return value, errors.New("no fetch function")
	}
	return p.primary(ctx)
}

func (p *Policy[T]) callGenerate() (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: generator: %v", ErrFetchPanic, r)
		}
	}()
	return p.generate(), nil
}
