// Package observe provides application-wide observability primitives for
// earshot: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported via
// a Prometheus bridge set up by [InitProvider]. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all earshot metrics.
const meterName = "github.com/MrWong99/earshot"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Scheduler ---

	// TickDuration tracks the wall time of one scheduler tick.
	TickDuration metric.Float64Histogram

	// TrackedEntries tracks the number of entries in the registry.
	TrackedEntries metric.Int64UpDownCounter

	// ActiveVoices tracks the number of entries that own a live voice.
	ActiveVoices metric.Int64UpDownCounter

	// Evictions counts entries that turned Dead. Use with attribute:
	//   attribute.String("reason", ...)
	Evictions metric.Int64Counter

	// --- Voice lifecycle ---

	// VoiceLoads counts completed load attempts. Use with attribute:
	//   attribute.String("status", "ok" | "error" | "discarded")
	VoiceLoads metric.Int64Counter

	// VoiceUnloads counts unload jobs. Use with attributes:
	//   attribute.String("reason", ...), attribute.String("status", ...)
	VoiceUnloads metric.Int64Counter

	// LoadDuration tracks how long backend voice creation takes.
	LoadDuration metric.Float64Histogram

	// BackendErrors counts failed backend calls. Use with attribute:
	//   attribute.String("op", "create" | "play" | "stop" | "destroy")
	BackendErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with attributes:
	//   attribute.String("breaker", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// --- Queues ---

	// WorkJobs counts background jobs run. Use with attribute:
	//   attribute.String("status", "ok" | "panic")
	WorkJobs metric.Int64Counter

	// WorkQueueDepth tracks jobs waiting for the background worker.
	WorkQueueDepth metric.Int64UpDownCounter

	// SliceDuration tracks how long each background time slice ran.
	SliceDuration metric.Float64Histogram

	// DispatchJobs counts closures run on the simulation goroutine.
	DispatchJobs metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// tickBuckets are histogram boundaries (seconds) sized for a 60 Hz tick.
var tickBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.0167, 0.033, 0.1,
}

// jobBuckets are histogram boundaries (seconds) for blocking backend work
// and background slices.
var jobBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TickDuration, err = m.Float64Histogram("earshot.scheduler.tick.duration",
		metric.WithDescription("Wall time of one scheduler tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(tickBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LoadDuration, err = m.Float64Histogram("earshot.voice.load.duration",
		metric.WithDescription("Latency of backend voice creation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(jobBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SliceDuration, err = m.Float64Histogram("earshot.workqueue.slice.duration",
		metric.WithDescription("Time spent in one background work slice."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(jobBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Evictions, err = m.Int64Counter("earshot.scheduler.evictions",
		metric.WithDescription("Entries marked dead, by reason."),
	); err != nil {
		return nil, err
	}
	if met.VoiceLoads, err = m.Int64Counter("earshot.voice.loads",
		metric.WithDescription("Completed voice loads by status."),
	); err != nil {
		return nil, err
	}
	if met.VoiceUnloads, err = m.Int64Counter("earshot.voice.unloads",
		metric.WithDescription("Voice unloads by reason and status."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("earshot.backend.errors",
		metric.WithDescription("Failed backend calls by operation."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("earshot.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes."),
	); err != nil {
		return nil, err
	}
	if met.WorkJobs, err = m.Int64Counter("earshot.workqueue.jobs",
		metric.WithDescription("Background jobs run by status."),
	); err != nil {
		return nil, err
	}
	if met.DispatchJobs, err = m.Int64Counter("earshot.dispatch.jobs",
		metric.WithDescription("Closures run on the simulation goroutine."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.TrackedEntries, err = m.Int64UpDownCounter("earshot.entries.tracked",
		metric.WithDescription("Number of entries in the scheduler registry."),
	); err != nil {
		return nil, err
	}
	if met.ActiveVoices, err = m.Int64UpDownCounter("earshot.voices.active",
		metric.WithDescription("Number of entries owning a live voice."),
	); err != nil {
		return nil, err
	}
	if met.WorkQueueDepth, err = m.Int64UpDownCounter("earshot.workqueue.depth",
		metric.WithDescription("Jobs waiting for the background worker."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("earshot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
//
// The global provider delegates to whatever [InitProvider] installs later, so
// it is safe to grab DefaultMetrics before the SDK is configured.
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

// RecordLoad records a completed load attempt.
func (m *Metrics) RecordLoad(ctx context.Context, status string) {
	m.VoiceLoads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordUnload records an unload job outcome.
func (m *Metrics) RecordUnload(ctx context.Context, reason, status string) {
	m.VoiceUnloads.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("reason", reason),
			attribute.String("status", status),
		),
	)
}

// RecordEviction records an entry turning Dead.
func (m *Metrics) RecordEviction(ctx context.Context, reason string) {
	m.Evictions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordBackendError records a failed backend call.
func (m *Metrics) RecordBackendError(ctx context.Context, op string) {
	m.BackendErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordBreakerTransition records a circuit breaker entering state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("to", to),
		),
	)
}
