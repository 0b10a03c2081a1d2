package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned by [Failover.Do] when every member failed or was
// short-circuited. It wraps the last member's error.
var ErrAllFailed = errors.New("resilience: all members failed")

// Member is one named candidate of a [Failover].
type Member[T any] struct {
	Name  string
	Value T
}

type failoverMember[T any] struct {
	Member[T]
	breaker *CircuitBreaker
}

// Failover tries a list of interchangeable values in order, each behind its
// own circuit breaker. A member whose breaker is open is skipped until it
// resets.
//
// Failover is safe for concurrent use.
type Failover[T any] struct {
	members []failoverMember[T]
}

// NewFailover creates a Failover over members, most preferred first. cfg is
// the template for every member's breaker; its Name is replaced by the
// member's name. Cancellation of the caller's context never counts as a
// member failure.
func NewFailover[T any](cfg CircuitBreakerConfig, members ...Member[T]) *Failover[T] {
	isFailure := cfg.IsFailure
	cfg.IsFailure = func(err error) bool {
		if errors.Is(err, context.Canceled) {
			return false
		}
		if isFailure != nil {
			return isFailure(err)
		}
		return err != nil
	}

	f := &Failover[T]{members: make([]failoverMember[T], len(members))}
	for i, m := range members {
		c := cfg
		c.Name = m.Name
		f.members[i] = failoverMember[T]{Member: m, breaker: NewCircuitBreaker(c)}
	}
	return f
}

// Do calls fn with each member in order until one returns nil. It stops
// early with ctx's error once ctx is done.
func (f *Failover[T]) Do(ctx context.Context, fn func(ctx context.Context, v T) error) error {
	if len(f.members) == 0 {
		return fmt.Errorf("%w: no members", ErrAllFailed)
	}
	var lastErr error
	for i := range f.members {
		if err := ctx.Err(); err != nil {
			return err
		}
		m := &f.members[i]
		err := m.breaker.Execute(func() error { return fn(ctx, m.Value) })
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping member, circuit open", "member", m.Name)
			continue
		}
		slog.Warn("resilience: member failed, trying next", "member", m.Name, "error", err)
	}
	return fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

// States returns each member's breaker state keyed by member name.
func (f *Failover[T]) States() map[string]State {
	out := make(map[string]State, len(f.members))
	for _, m := range f.members {
		out[m.Name] = m.breaker.State()
	}
	return out
}
