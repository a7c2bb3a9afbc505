// Package observe provides application-wide observability primitives for
// tunehunt: OpenTelemetry metrics and the HTTP middleware that records them.
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

// meterName is the instrumentation scope name used for all tunehunt metrics.
const meterName = "github.com/pshemk/tunehunt"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Gauges ---

	// ActiveRooms tracks the number of rooms currently held in memory.
	ActiveRooms metric.Int64UpDownCounter

	// ActiveMembers tracks connected members across all rooms.
	ActiveMembers metric.Int64UpDownCounter

	// --- Counters ---

	// RoundsStarted counts successfully started rounds. Attributes:
	//   attribute.String("mode", ...), attribute.String("game_type", ...)
	RoundsStarted metric.Int64Counter

	// Guesses counts evaluated text-mode guesses. Attribute:
	//   attribute.String("result", "full"|"title"|"miss")
	Guesses metric.Int64Counter

	// Buzzes counts accepted buzzer presses.
	Buzzes metric.Int64Counter

	// ResolveOutcomes counts playback resolutions. Attribute:
	//   attribute.String("outcome", "audio"|"video"|"none")
	ResolveOutcomes metric.Int64Counter

	// StoreErrors counts swallowed snapshot-store failures. Attribute:
	//   attribute.String("op", ...)
	StoreErrors metric.Int64Counter

	// Events counts inbound protocol events by name.
	Events metric.Int64Counter

	// --- Histograms ---

	// ResolveDuration tracks playback resolution latency.
	ResolveDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// outbound catalog calls and request handling.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Gauges (UpDownCounters).
	if met.ActiveRooms, err = m.Int64UpDownCounter("tunehunt.active_rooms",
		metric.WithDescription("Number of rooms currently held in memory."),
	); err != nil {
		return nil, err
	}
	if met.ActiveMembers, err = m.Int64UpDownCounter("tunehunt.active_members",
		metric.WithDescription("Number of connected members across all rooms."),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.RoundsStarted, err = m.Int64Counter("tunehunt.rounds.started",
		metric.WithDescription("Total rounds started by mode and game type."),
	); err != nil {
		return nil, err
	}
	if met.Guesses, err = m.Int64Counter("tunehunt.guesses",
		metric.WithDescription("Total evaluated text-mode guesses by result."),
	); err != nil {
		return nil, err
	}
	if met.Buzzes, err = m.Int64Counter("tunehunt.buzzes",
		metric.WithDescription("Total accepted buzzer presses."),
	); err != nil {
		return nil, err
	}
	if met.ResolveOutcomes, err = m.Int64Counter("tunehunt.resolve.outcomes",
		metric.WithDescription("Total playback resolutions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.StoreErrors, err = m.Int64Counter("tunehunt.store.errors",
		metric.WithDescription("Total swallowed snapshot-store failures by operation."),
	); err != nil {
		return nil, err
	}
	if met.Events, err = m.Int64Counter("tunehunt.events",
		metric.WithDescription("Total inbound protocol events by name."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.ResolveDuration, err = m.Float64Histogram("tunehunt.resolve.duration",
		metric.WithDescription("Latency of playback resolution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("tunehunt.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
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

// RecordResolve records one playback resolution with its outcome and latency.
func (m *Metrics) RecordResolve(ctx context.Context, outcome string, d time.Duration) {
	m.ResolveOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
	m.ResolveDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordGuess records one evaluated text-mode guess.
func (m *Metrics) RecordGuess(ctx context.Context, result string) {
	m.Guesses.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)))
}

// RecordRoundStart records one started round.
func (m *Metrics) RecordRoundStart(ctx context.Context, mode, gameType string) {
	m.RoundsStarted.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("game_type", gameType),
		))
}

// RecordStoreError records one swallowed store failure.
func (m *Metrics) RecordStoreError(ctx context.Context, op string) {
	m.StoreErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("op", op)))
}

// RecordEvent records one inbound protocol event.
func (m *Metrics) RecordEvent(ctx context.Context, event string) {
	m.Events.Add(ctx, 1,
		metric.WithAttributes(attribute.String("event", event)))
}
