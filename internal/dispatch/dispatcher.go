// Package dispatch executes catalog commands through registered action
// handlers.
//
// A [Dispatcher] owns its [Registry], a bounded history of successfully
// executed command keys and one circuit breaker per action. Every outcome,
// including unknown commands, missing handlers, handler errors, panics and
// timeouts, is reported as a [Result] value; Execute never panics and never
// returns an error.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/motto/internal/catalog"
	"github.com/MrWong99/motto/internal/observe"
	"github.com/MrWong99/motto/internal/resilience"
)

// Sentinel errors carried in [Result.Err].
var (
	// ErrUnknownCommand means the key is not in the catalog or its entry has
	// no action.
	ErrUnknownCommand = errors.New("dispatch: unknown command")

	// ErrNoHandler means no handler is registered for the command's action.
	ErrNoHandler = errors.New("dispatch: no handler")

	// ErrHandlerFailure wraps errors, panics, timeouts, breaker rejections
	// and [Response.Failed] outcomes from handler execution.
	ErrHandlerFailure = errors.New("dispatch: handler failed")
)

// Defaults applied by [New] for zero-valued [Config] fields.
const (
	DefaultHandlerTimeout = 10 * time.Second
	DefaultHistorySize    = 5
)

// Result is the normalised outcome of [Dispatcher.Execute].
type Result struct {
	Command string `json:"command"`
	Action  string `json:"action,omitempty"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`

	// Err is nil on success and otherwise matches one of the package
	// sentinels with [errors.Is].
	Err error `json:"-"`
}

// Config tunes a [Dispatcher].
type Config struct {
	// HandlerTimeout bounds a single handler call.
	HandlerTimeout time.Duration

	// HistorySize bounds [Dispatcher.History].
	HistorySize int

	// Breaker configures the per-action circuit breakers.
	Breaker resilience.CircuitBreakerConfig
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithRegistry uses r instead of a fresh registry, e.g. to share handlers
// between dispatchers.
func WithRegistry(r *Registry) Option {
	return func(d *Dispatcher) { d.registry = r }
}

// Dispatcher executes commands. Safe for concurrent use.
type Dispatcher struct {
	catalog  *catalog.Catalog
	registry *Registry
	breakers *resilience.BreakerGroup
	metrics  *observe.Metrics
	timeout  time.Duration
	histSize int

	mu      sync.Mutex
	history []string
}

// New returns a Dispatcher for the commands in cat.
func New(cat *catalog.Catalog, cfg Config, opts ...Option) *Dispatcher {
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = DefaultHandlerTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	// Breakers only count handler faults; caller cancellation is not the
	// handler's fault.
	cfg.Breaker.IsFailure = func(err error) bool {
		return err != nil && !errors.Is(err, context.Canceled)
	}

	d := &Dispatcher{
		catalog:  cat,
		timeout:  cfg.HandlerTimeout,
		histSize: cfg.HistorySize,
	}
	for _, o := range opts {
		o(d)
	}
	if d.registry == nil {
		d.registry = NewRegistry()
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	next := cfg.Breaker.OnStateChange
	cfg.Breaker.OnStateChange = func(action string, from, to resilience.State) {
		d.metrics.RecordBreakerTransition(context.Background(), action, to.String())
		if next != nil {
			next(action, from, to)
		}
	}
	d.breakers = resilience.NewBreakerGroup(cfg.Breaker)
	return d
}

// Register binds h to action, replacing any previous handler.
func (d *Dispatcher) Register(action string, h Handler) {
	d.registry.Register(action, h)
}

// Clear removes every handler. Used on teardown.
func (d *Dispatcher) Clear() {
	d.registry.Clear()
}

// Registry returns the dispatcher's handler registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Breakers returns the per-action circuit breakers.
func (d *Dispatcher) Breakers() *resilience.BreakerGroup {
	return d.breakers
}

// History returns the keys of the most recent successful executions, oldest
// first.
func (d *Dispatcher) History() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.history...)
}

// ClearHistory forgets every executed command.
func (d *Dispatcher) ClearHistory() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = nil
}

func (d *Dispatcher) remember(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = append(d.history, key)
	if over := len(d.history) - d.histSize; over > 0 {
		d.history = append(d.history[:0], d.history[over:]...)
	}
}

// Execute runs the command key with its default parameters merged with
// override (override wins).
func (d *Dispatcher) Execute(ctx context.Context, key string, override map[string]any) Result {
	ctx, span := observe.StartSpan(ctx, "dispatch.Execute",
		trace.WithAttributes(attribute.String("command", key)),
	)
	defer span.End()
	log := observe.Logger(ctx)

	entry, ok := d.catalog.Lookup(key)
	if !ok || entry.Action == "" {
		err := fmt.Errorf("%w: %q", ErrUnknownCommand, key)
		log.Error("dispatch: unknown command", "command", key)
		span.SetStatus(codes.Error, err.Error())
		return Result{Command: key, Message: "unknown command: " + key, Err: err}
	}
	action := entry.Action
	span.SetAttributes(attribute.String("action", action))

	h, ok := d.registry.Lookup(action)
	if !ok {
		msg := "no handler for action: " + action
		log.Warn("dispatch: no handler", "command", key, "action", action)
		d.metrics.RecordDispatch(ctx, action, observe.StatusNoOp, 0)
		span.SetStatus(codes.Error, msg)
		return Result{Command: key, Action: action, Message: msg, Err: fmt.Errorf("%w for action %q", ErrNoHandler, action)}
	}

	params := entry.Params()
	maps.Copy(params, override)
	meta := Meta{Command: key, Entry: entry}

	start := time.Now()
	var resp Response
	err := d.breakers.Execute(action, func() error {
		var callErr error
		resp, callErr = d.invoke(ctx, h, params, meta)
		return callErr
	})
	elapsed := time.Since(start)

	if err != nil {
		status := observe.StatusError
		msg := err.Error()
		if errors.Is(err, resilience.ErrCircuitOpen) {
			status = observe.StatusRejected
			msg = "action temporarily disabled: " + action
		}
		log.Error("dispatch: handler failed",
			"command", key,
			"action", action,
			"duration", elapsed,
			"error", err,
		)
		d.metrics.RecordDispatch(ctx, action, status, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		return Result{
			Command: key,
			Action:  action,
			Message: msg,
			Err:     fmt.Errorf("%w: %w", ErrHandlerFailure, err),
		}
	}

	if resp.Failed {
		msg := resp.Message
		if msg == "" {
			msg = "command failed"
		}
		log.Warn("dispatch: handler reported failure",
			"command", key,
			"action", action,
			"duration", elapsed,
			"message", msg,
		)
		d.metrics.RecordDispatch(ctx, action, observe.StatusError, elapsed)
		span.SetStatus(codes.Error, msg)
		return Result{
			Command: key,
			Action:  action,
			Message: msg,
			Data:    resp.Data,
			Err:     fmt.Errorf("%w: %s", ErrHandlerFailure, msg),
		}
	}

	d.remember(key)
	d.metrics.RecordDispatch(ctx, action, observe.StatusOK, elapsed)
	log.Info("dispatch: executed", "command", key, "action", action, "duration", elapsed)

	msg := resp.Message
	if msg == "" {
		msg = "executed"
	}
	return Result{Command: key, Action: action, Success: true, Message: msg, Data: resp.Data}
}

type outcome struct {
	resp Response
	err  error
}

// invoke runs h on its own goroutine and waits for it, the handler timeout
// or ctx, whichever comes first. A panicking handler becomes an error.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, params map[string]any, meta Meta) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("dispatch: handler panicked",
					"command", meta.Command,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				done <- outcome{err: fmt.Errorf("handler panicked: %v", r)}
			}
		}()
		resp, err := h(ctx, params, meta)
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case o := <-done:
		return o.resp, o.err
	case <-ctx.Done():
		return Response{}, fmt.Errorf("handler did not finish: %w", ctx.Err())
	}
}
