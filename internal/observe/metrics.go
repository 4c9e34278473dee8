// Package observe provides application-wide observability primitives for
// sayso: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all sayso metrics.
const meterName = "github.com/MrWong99/sayso"

// Dispatch outcome labels used with [Metrics.RecordDispatch].
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusPanic    = "panic"
	StatusMissing  = "missing"
	StatusRejected = "rejected"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ResolveDuration tracks how long resolving one transcript takes.
	ResolveDuration metric.Float64Histogram

	// DispatchDuration tracks handler execution latency. Use with attribute:
	//   attribute.String("handler", ...)
	DispatchDuration metric.Float64Histogram

	// --- Counters ---

	// Resolutions counts resolved transcripts. Use with attribute:
	//   attribute.String("kind", ...) // none, exact or fuzzy
	Resolutions metric.Int64Counter

	// Dispatches counts handler invocations. Use with attributes:
	//   attribute.String("handler", ...), attribute.String("status", ...)
	Dispatches metric.Int64Counter

	// VocabularyReloads counts vocabulary reload attempts. Use with attribute:
	//   attribute.String("status", ...)
	VocabularyReloads metric.Int64Counter

	// --- Gauges ---

	// VocabularyCommands reports the number of commands in the live
	// vocabulary.
	VocabularyCommands metric.Int64Gauge

	// ActiveStreams tracks the number of connected transcript streams.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// resolveBuckets covers in-memory matching, which finishes well below a
// millisecond for typical vocabularies.
var resolveBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05,
}

// dispatchBuckets covers handler latencies from key presses to process
// launches.
var dispatchBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ResolveDuration, err = m.Float64Histogram("sayso.resolve.duration",
		metric.WithDescription("Latency of resolving one transcript to a command."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(resolveBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("sayso.dispatch.duration",
		metric.WithDescription("Latency of command handler execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(dispatchBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Resolutions, err = m.Int64Counter("sayso.resolutions",
		metric.WithDescription("Total resolved transcripts by match kind."),
	); err != nil {
		return nil, err
	}
	if met.Dispatches, err = m.Int64Counter("sayso.dispatches",
		metric.WithDescription("Total handler invocations by handler and status."),
	); err != nil {
		return nil, err
	}
	if met.VocabularyReloads, err = m.Int64Counter("sayso.vocabulary.reloads",
		metric.WithDescription("Total vocabulary reload attempts by status."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.VocabularyCommands, err = m.Int64Gauge("sayso.vocabulary.commands",
		metric.WithDescription("Number of commands in the live vocabulary."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("sayso.active_streams",
		metric.WithDescription("Number of connected transcript streams."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("sayso.http.request.duration",
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

// RecordResolution records one resolved transcript and its latency.
func (m *Metrics) RecordResolution(ctx context.Context, kind string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.Resolutions.Add(ctx, 1, attrs)
	m.ResolveDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordDispatch records one handler invocation with its outcome and
// latency.
func (m *Metrics) RecordDispatch(ctx context.Context, handler, status string, d time.Duration) {
	m.Dispatches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("handler", handler),
			attribute.String("status", status),
		),
	)
	m.DispatchDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("handler", handler)),
	)
}

// RecordVocabularyReload records a reload attempt. commands is the size of
// the vocabulary that is live afterwards.
func (m *Metrics) RecordVocabularyReload(ctx context.Context, status string, commands int) {
	m.VocabularyReloads.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	m.VocabularyCommands.Record(ctx, int64(commands))
}
