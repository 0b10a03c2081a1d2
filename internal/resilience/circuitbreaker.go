// Package resilience provides the failure-handling primitives used around
// command handlers and speech recognition.
//
// [CircuitBreaker] is a classic three-state breaker (closed → open →
// half-open) and [BreakerGroup] keeps one breaker per key, so a handler
// that keeps failing is rejected quickly without affecting other actions.
// [Retry] re-runs an operation with exponential backoff up to a maximum
// number of attempts.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state; all calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to consecutive failures.
	// Calls are rejected immediately with [ErrCircuitOpen] until the reset
	// timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the reset timeout. A limited
	// number of calls are allowed through; if they succeed the breaker closes,
	// otherwise it re-opens.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker defaults applied by [NewCircuitBreaker].
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 3
)

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values take the
// defaults above.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and state-change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker.
	MaxFailures int

	// ResetTimeout is how long an open breaker rejects calls before letting
	// probes through.
	ResetTimeout time.Duration

	// HalfOpenMax is both the number of probe calls admitted while half-open
	// and the number of successful probes needed to close again.
	HalfOpenMax int

	// IsFailure classifies errors returned by the protected call. Errors for
	// which it returns false count as successes. Default: any non-nil error.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition, outside the
	// breaker's lock.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker rejects calls with [ErrCircuitOpen] after MaxFailures
// consecutive failures, then lets a few probes through once ResetTimeout
// has passed. A failed probe re-opens it; HalfOpenMax successful probes
// close it.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	successes int
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultHalfOpenMax
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// transition is a state change to report once the lock is released.
type transition struct {
	from, to State
}

// Execute calls fn unless the breaker rejects it, and returns fn's error.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	admitted, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(admitted, cb.cfg.IsFailure(err))
	return err
}

// admit decides whether a call may run and returns the state it runs in.
func (cb *CircuitBreaker) admit() (State, error) {
	cb.mu.Lock()
	var changes []transition
	defer func() {
		cb.mu.Unlock()
		cb.notify(changes)
	}()

	if cb.state == StateOpen {
		if time.Since(cb.openedAt) < cb.cfg.ResetTimeout {
			return cb.state, ErrCircuitOpen
		}
		changes = append(changes, cb.setState(StateHalfOpen))
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			return cb.state, ErrCircuitOpen
		}
		cb.probes++
	}
	return cb.state, nil
}

// record books the outcome of a call admitted in state admitted. Outcomes of
// calls that started before the last transition are ignored.
func (cb *CircuitBreaker) record(admitted State, failed bool) {
	cb.mu.Lock()
	var changes []transition
	defer func() {
		cb.mu.Unlock()
		cb.notify(changes)
	}()

	if cb.state != admitted {
		return
	}
	switch cb.state {
	case StateClosed:
		if !failed {
			cb.failures = 0
			return
		}
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			changes = append(changes, cb.setState(StateOpen))
		}
	case StateHalfOpen:
		if failed {
			changes = append(changes, cb.setState(StateOpen))
			return
		}
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenMax {
			changes = append(changes, cb.setState(StateClosed))
		}
	}
}

// setState moves to state and clears the counters. Callers hold cb.mu.
func (cb *CircuitBreaker) setState(to State) transition {
	t := transition{from: cb.state, to: to}
	cb.state = to
	cb.failures, cb.probes, cb.successes = 0, 0, 0
	if to == StateOpen {
		cb.openedAt = time.Now()
	}
	return t
}

func (cb *CircuitBreaker) notify(changes []transition) {
	for _, t := range changes {
		if t.to == StateOpen {
			slog.Warn("resilience: circuit breaker opened", "name", cb.cfg.Name, "from", t.from)
		} else {
			slog.Info("resilience: circuit breaker state changed", "name", cb.cfg.Name, "from", t.from, "to", t.to)
		}
		if cb.cfg.OnStateChange != nil {
			cb.cfg.OnStateChange(cb.cfg.Name, t.from, t.to)
		}
	}
}

// State returns the current state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	var changes []transition
	if cb.state != StateClosed {
		changes = append(changes, cb.setState(StateClosed))
	} else {
		cb.failures = 0
	}
	cb.mu.Unlock()
	cb.notify(changes)
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}

// BreakerGroup keeps one [CircuitBreaker] per key, created on first use
// from a shared configuration. The key becomes the breaker's name.
type BreakerGroup struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewBreakerGroup returns an empty group.
func NewBreakerGroup(cfg CircuitBreakerConfig) *BreakerGroup {
	return &BreakerGroup{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for key, creating it on first use.
func (g *BreakerGroup) Get(key string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cb, ok := g.breakers[key]; ok {
		return cb
	}
	cfg := g.cfg
	cfg.Name = key
	cb := NewCircuitBreaker(cfg)
	g.breakers[key] = cb
	return cb
}

// Execute runs fn through the breaker for key.
func (g *BreakerGroup) Execute(key string, fn func() error) error {
	return g.Get(key).Execute(fn)
}

// States reports the state of every breaker created so far.
func (g *BreakerGroup) States() map[string]State {
	g.mu.Lock()
	breakers := maps.Clone(g.breakers)
	g.mu.Unlock()

	out := make(map[string]State, len(breakers))
	for k, cb := range breakers {
		out[k] = cb.State()
	}
	return out
}

// Reset closes every breaker in the group.
func (g *BreakerGroup) Reset() {
	g.mu.Lock()
	breakers := maps.Clone(g.breakers)
	g.mu.Unlock()
	for _, cb := range breakers {
		cb.Reset()
	}
}
