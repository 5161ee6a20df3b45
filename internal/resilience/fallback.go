package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] failed or
// had an open breaker. The individual errors are joined to it, so callers
// can still match them with [errors.Is].
var ErrAllFailed = errors.New("resilience: all backends failed")

// fallbackEntry pairs a backend with its own breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup tries interchangeable backends in registration order,
// skipping any whose breaker is open. Entries must be added before the group
// is shared between goroutines.
type FallbackGroup[T any] struct {
	cfg     CircuitBreakerConfig
	entries []fallbackEntry[T]
}

// NewFallbackGroup creates an empty group. cfg is the template for each
// entry's breaker; its Name is replaced by the entry name.
func NewFallbackGroup[T any](cfg CircuitBreakerConfig) *FallbackGroup[T] {
	return &FallbackGroup[T]{cfg: cfg}
}

// Add appends a backend. Backends are tried in the order they are added.
func (fg *FallbackGroup[T]) Add(name string, v T) {
	cfg := fg.cfg
	cfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   v,
		breaker: NewCircuitBreaker(cfg),
	})
}

// Len returns the number of registered backends.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Execute calls fn against each backend until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for functions that also
// return a value. It is a package-level function because methods cannot
// declare type parameters.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", entry.name, err))
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping backend with open circuit", "backend", entry.name)
		} else {
			slog.Debug("resilience: backend failed, trying next", "backend", entry.name, "err", err)
		}
	}
	return zero, errors.Join(append([]error{ErrAllFailed}, errs...)...)
}
