// Package observe provides application-wide observability primitives for the
// mock interviewer: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/mockinterview"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ExchangeDuration tracks the time from sending an utterance to the
	// completed assistant turn. Use with attribute:
	//   attribute.String("outcome", ...)
	ExchangeDuration metric.Float64Histogram

	// TimeToFirstDelta tracks the time from opening a completion stream to
	// the first non-empty delta.
	TimeToFirstDelta metric.Float64Histogram

	// PromptTokens tracks the estimated prompt size per exchange.
	PromptTokens metric.Int64Histogram

	// --- Counters ---

	// Exchanges counts finished exchanges. Use with attribute:
	//   attribute.String("outcome", ...)
	Exchanges metric.Int64Counter

	// Deltas counts streamed text deltas applied to the transcript.
	Deltas metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveInterviews tracks interviews that are past topic submission and
	// not yet ended.
	ActiveInterviews metric.Int64UpDownCounter

	// RendererConnections tracks connected websocket renderers.
	RendererConnections metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// hosted model round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

var tokenBuckets = []float64{
	64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ExchangeDuration, err = m.Float64Histogram("mockinterview.exchange.duration",
		metric.WithDescription("Latency of one interview exchange from utterance to completed reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TimeToFirstDelta, err = m.Float64Histogram("mockinterview.exchange.first_delta",
		metric.WithDescription("Latency until the first streamed delta of a reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PromptTokens, err = m.Int64Histogram("mockinterview.exchange.prompt_tokens",
		metric.WithDescription("Estimated prompt tokens sent per exchange."),
		metric.WithUnit("{token}"),
		metric.WithExplicitBucketBoundaries(tokenBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Exchanges, err = m.Int64Counter("mockinterview.exchanges",
		metric.WithDescription("Total finished exchanges by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Deltas, err = m.Int64Counter("mockinterview.deltas",
		metric.WithDescription("Total streamed deltas applied to transcripts."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("mockinterview.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("mockinterview.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveInterviews, err = m.Int64UpDownCounter("mockinterview.active_interviews",
		metric.WithDescription("Number of interviews currently in progress."),
	); err != nil {
		return nil, err
	}
	if met.RendererConnections, err = m.Int64UpDownCounter("mockinterview.renderer_connections",
		metric.WithDescription("Number of connected websocket renderers."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("mockinterview.http.request.duration",
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

// RecordExchange records the duration and outcome of one finished exchange
// together with the number of deltas it applied.
func (m *Metrics) RecordExchange(ctx context.Context, outcome string, d time.Duration, deltas int) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.ExchangeDuration.Record(ctx, d.Seconds(), attrs)
	m.Exchanges.Add(ctx, 1, attrs)
	if deltas > 0 {
		m.Deltas.Add(ctx, int64(deltas))
	}
}

// RecordFirstDelta records the latency until the first delta of a reply.
func (m *Metrics) RecordFirstDelta(ctx context.Context, d time.Duration) {
	m.TimeToFirstDelta.Record(ctx, d.Seconds())
}

// RecordPromptTokens records the estimated prompt size of an exchange.
func (m *Metrics) RecordPromptTokens(ctx context.Context, tokens int) {
	m.PromptTokens.Record(ctx, int64(tokens))
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
