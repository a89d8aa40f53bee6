// Package observe provides application-wide observability primitives for
// voxbridge: OpenTelemetry metrics, distributed tracing, structured logging,
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxbridge metrics.
const meterName = "github.com/MrWong99/voxbridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// RecognitionDuration tracks recognizer latency. Attribute: kind.
	RecognitionDuration metric.Float64Histogram

	// TranslationDuration tracks translator latency. Attribute: kind.
	TranslationDuration metric.Float64Histogram

	// --- Segmentation counters ---

	SegmentsOpened metric.Int64Counter

	// SegmentsClosed counts closed segments. Attribute: reason.
	SegmentsClosed metric.Int64Counter

	// SegmentsDiscarded counts onsets discarded as noise bursts.
	SegmentsDiscarded metric.Int64Counter

	// EnvironmentTransitions counts committed environment changes.
	EnvironmentTransitions metric.Int64Counter

	// --- Pipeline counters ---

	// QueueDrops counts lost frames and tasks. Attribute: link.
	QueueDrops metric.Int64Counter

	// EngineFailures counts failed inference calls. Attribute: stage.
	EngineFailures metric.Int64Counter

	// InputUnderruns counts capture stalls beyond the watchdog interval.
	InputUnderruns metric.Int64Counter

	// AbandonedCalls counts inference calls that ignored cancellation.
	// Attribute: stage.
	AbandonedCalls metric.Int64Counter

	// DraftsSuperseded counts drafts discarded because a newer result for
	// the same segment existed.
	DraftsSuperseded metric.Int64Counter

	// GateDecisions counts semantic gate outcomes. Attribute: reason.
	GateDecisions metric.Int64Counter

	// EventsEmitted counts events handed to sinks. Attribute: kind.
	EventsEmitted metric.Int64Counter

	// --- Provider counters ---

	// ProviderRequests counts provider API calls. Attributes: provider,
	// kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// NoiseFloor and Threshold are observed through callbacks registered
	// with [Metrics.ObserveAdaptation].
	NoiseFloor metric.Float64ObservableGauge
	Threshold  metric.Float64ObservableGauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, route, status.
	HTTPRequestDuration metric.Float64Histogram

	meter metric.Meter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// inference latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	// Histograms.
	if met.RecognitionDuration, err = m.Float64Histogram("voxbridge.recognition.duration",
		metric.WithDescription("Latency of speech recognition calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslationDuration, err = m.Float64Histogram("voxbridge.translation.duration",
		metric.WithDescription("Latency of translation calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.SegmentsOpened, "voxbridge.segments.opened", "Speech segments opened."},
		{&met.SegmentsClosed, "voxbridge.segments.closed", "Speech segments closed by reason."},
		{&met.SegmentsDiscarded, "voxbridge.segments.discarded", "Speech onsets discarded as noise bursts."},
		{&met.EnvironmentTransitions, "voxbridge.environment.transitions", "Committed environment changes."},
		{&met.QueueDrops, "voxbridge.queue.drops", "Frames and tasks lost to queue overflow by link."},
		{&met.EngineFailures, "voxbridge.engine.failures", "Failed recognition and translation calls by stage."},
		{&met.InputUnderruns, "voxbridge.input.underruns", "Capture stalls beyond the watchdog interval."},
		{&met.AbandonedCalls, "voxbridge.calls.abandoned", "Inference calls abandoned after ignoring cancellation."},
		{&met.DraftsSuperseded, "voxbridge.drafts.superseded", "Drafts discarded in favour of a newer result."},
		{&met.GateDecisions, "voxbridge.gate.decisions", "Semantic gate decisions by reason."},
		{&met.EventsEmitted, "voxbridge.events.emitted", "Transcript events emitted by kind."},
		{&met.ProviderRequests, "voxbridge.provider.requests", "Total provider API requests by provider, kind, and status."},
		{&met.ProviderErrors, "voxbridge.provider.errors", "Total provider errors by provider and kind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	// Gauges.
	if met.NoiseFloor, err = m.Float64ObservableGauge("voxbridge.noise_floor",
		metric.WithDescription("Estimated background noise floor."),
		metric.WithUnit("dBFS"),
	); err != nil {
		return nil, err
	}
	if met.Threshold, err = m.Float64ObservableGauge("voxbridge.vad.threshold",
		metric.WithDescription("Current speech probability threshold."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxbridge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// ObserveAdaptation registers fn as the source of the noise floor and
// threshold gauges. The returned function unregisters the callback.
func (m *Metrics) ObserveAdaptation(fn func() (floorDB, threshold float64)) (func() error, error) {
	reg, err := m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		floor, thr := fn()
		o.ObserveFloat64(m.NoiseFloor, floor)
		o.ObserveFloat64(m.Threshold, thr)
		return nil
	}, m.NoiseFloor, m.Threshold)
	if err != nil {
		return nil, err
	}
	return reg.Unregister, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// Inc adds one to c with a single string attribute. An empty key records no
// attribute.
func Inc(ctx context.Context, c metric.Int64Counter, key, value string) {
	if key == "" {
		c.Add(ctx, 1)
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.String(key, value)))
}

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
