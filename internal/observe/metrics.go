// Package observe provides application-wide observability primitives for
// motto: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all motto metrics.
const meterName = "github.com/MrWong99/motto"

// Dispatch status attribute values.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusNoOp     = "no_handler"
	StatusRejected = "rejected"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// MatchDuration tracks the time to resolve one utterance.
	MatchDuration metric.Float64Histogram

	// DispatchDuration tracks handler execution latency. Use with attribute:
	//   attribute.String("action", ...)
	DispatchDuration metric.Float64Histogram

	// --- Counters ---

	// Matches counts resolutions. Use with attributes:
	//   attribute.String("type", ...), attribute.Bool("cached", ...)
	Matches metric.Int64Counter

	// CacheEvictions counts FIFO evictions from the match cache.
	CacheEvictions metric.Int64Counter

	// Dispatches counts command executions. Use with attributes:
	//   attribute.String("action", ...), attribute.String("status", ...)
	Dispatches metric.Int64Counter

	// Suggestions counts suggestion lists returned after a failed match.
	Suggestions metric.Int64Counter

	// UtterancesDiscarded counts utterances dropped before matching. Use with
	// attribute:
	//   attribute.String("reason", ...)
	UtterancesDiscarded metric.Int64Counter

	// RecognitionRetries counts recognizer restarts after a failure.
	RecognitionRetries metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes:
	//   attribute.String("breaker", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live assistant sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time by method,
	// route pattern and status. Recorded by [Middleware].
	HTTPRequestDuration metric.Float64Histogram
}

// matchBuckets are histogram boundaries (in seconds) for in-memory matching.
var matchBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
}

// latencyBuckets are histogram boundaries (in seconds) for handler calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.MatchDuration, err = m.Float64Histogram("motto.match.duration",
		metric.WithDescription("Latency of resolving an utterance to a command."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(matchBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("motto.dispatch.duration",
		metric.WithDescription("Latency of command handler execution by action."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Matches, err = m.Int64Counter("motto.matches",
		metric.WithDescription("Total utterance resolutions by match type and cache hit."),
	); err != nil {
		return nil, err
	}
	if met.CacheEvictions, err = m.Int64Counter("motto.cache.evictions",
		metric.WithDescription("Total entries evicted from the match cache."),
	); err != nil {
		return nil, err
	}
	if met.Dispatches, err = m.Int64Counter("motto.dispatches",
		metric.WithDescription("Total command executions by action and status."),
	); err != nil {
		return nil, err
	}
	if met.Suggestions, err = m.Int64Counter("motto.suggestions",
		metric.WithDescription("Total suggestion lists offered after a failed match."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesDiscarded, err = m.Int64Counter("motto.utterances.discarded",
		metric.WithDescription("Total utterances dropped before matching by reason."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionRetries, err = m.Int64Counter("motto.recognition.retries",
		metric.WithDescription("Total speech recognizer restarts after a failure."),
	); err != nil {
		return nil, err
	}

	if met.BreakerTransitions, err = m.Int64Counter("motto.breaker.transitions",
		metric.WithDescription("Total circuit breaker state changes by breaker and new state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("motto.active_sessions",
		metric.WithDescription("Number of live assistant sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("motto.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordMatch records one resolution with its latency. matchType is "none"
// when nothing matched.
func (m *Metrics) RecordMatch(ctx context.Context, matchType string, cached bool, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("type", matchType),
		attribute.Bool("cached", cached),
	)
	m.Matches.Add(ctx, 1, attrs)
	m.MatchDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordCacheEviction records one FIFO eviction.
func (m *Metrics) RecordCacheEviction(ctx context.Context) {
	m.CacheEvictions.Add(ctx, 1)
}

// RecordDispatch records one command execution with its status and latency.
func (m *Metrics) RecordDispatch(ctx context.Context, action, status string, d time.Duration) {
	m.Dispatches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("status", status),
		),
	)
	m.DispatchDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("action", action)),
	)
}

// RecordSuggestions records a suggestion list being offered. Empty lists are
// not counted.
func (m *Metrics) RecordSuggestions(ctx context.Context, n int) {
	if n == 0 {
		return
	}
	m.Suggestions.Add(ctx, 1)
}

// RecordDiscard records an utterance dropped before matching.
func (m *Metrics) RecordDiscard(ctx context.Context, reason string) {
	m.UtterancesDiscarded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordRetry records a recognizer restart.
func (m *Metrics) RecordRetry(ctx context.Context) {
	m.RecognitionRetries.Add(ctx, 1)
}

// RecordBreakerTransition records breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("state", state),
		),
	)
}
