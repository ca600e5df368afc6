// Package observe provides application-wide observability for Voxwire:
// OpenTelemetry metrics, tracing, and HTTP middleware tying them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Voxwire metrics.
const meterName = "github.com/voxwire/voxwire"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// SynthesisDuration tracks text-to-speech request latency across the
	// whole fallback chain.
	SynthesisDuration metric.Float64Histogram

	// PlaybackDuration tracks how long played clips ran, watchdog
	// timeouts included.
	PlaybackDuration metric.Float64Histogram

	// FramesProcessed counts capture frames run through the detector.
	FramesProcessed metric.Int64Counter

	// FramesSent counts frames admitted by the send policy and shipped
	// upstream.
	FramesSent metric.Int64Counter

	// InboundMessages counts decoded service messages. Use with
	// attribute.String("kind", ...).
	InboundMessages metric.Int64Counter

	// PlaybackFailures counts playback requests that exhausted every
	// decode strategy or failed at the sink.
	PlaybackFailures metric.Int64Counter

	// SessionSNR records the per-frame signal-to-noise ratio in dB.
	SessionSNR metric.Float64Histogram

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// snrBuckets covers the usable SNR range in dB.
var snrBuckets = []float64{0, 3, 5, 10, 15, 20, 30, 40}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SynthesisDuration, err = m.Float64Histogram("voxwire.synthesis.duration",
		metric.WithDescription("Latency of text-to-speech synthesis requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("voxwire.playback.duration",
		metric.WithDescription("Wall time of audio playback requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.FramesProcessed, err = m.Int64Counter("voxwire.frames.processed",
		metric.WithDescription("Capture frames run through the speech detector."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("voxwire.frames.sent",
		metric.WithDescription("Frames admitted by the send policy and sent upstream."),
	); err != nil {
		return nil, err
	}
	if met.InboundMessages, err = m.Int64Counter("voxwire.messages.inbound",
		metric.WithDescription("Decoded inbound service messages by kind."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackFailures, err = m.Int64Counter("voxwire.playback.failures",
		metric.WithDescription("Playback requests that failed every decode strategy or the sink."),
	); err != nil {
		return nil, err
	}

	if met.SessionSNR, err = m.Float64Histogram("voxwire.session.snr",
		metric.WithDescription("Per-frame signal-to-noise ratio."),
		metric.WithUnit("dB"),
		metric.WithExplicitBucketBoundaries(snrBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voxwire.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voxwire.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen
// with the global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity
// at call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordInboundMessage increments the inbound message counter for a kind.
func (m *Metrics) RecordInboundMessage(ctx context.Context, kind string) {
	m.InboundMessages.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
