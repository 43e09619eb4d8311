// Package metrics records VAD engine metrics through the OpenTelemetry
// Metrics API. [InitProvider] installs a Prometheus exporter so the server
// can expose them on /metrics. Tests should use [NewMetrics] with their own
// [metric.MeterProvider].
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/realtime-ai/supervad/pkg/vad"
)

const meterName = "github.com/realtime-ai/supervad"

// Metrics holds all metric instruments. The OTel types are safe for
// concurrent use.
type Metrics struct {
	// TokensProcessed counts tokens that went through the state machine.
	TokensProcessed metric.Int64Counter

	// Events counts transitions. Attribute: attribute.String("kind", ...)
	Events metric.Int64Counter

	// SegmentsCompleted counts emitted segments.
	SegmentsCompleted metric.Int64Counter

	// SegmentDuration tracks the audio length of completed segments.
	SegmentDuration metric.Float64Histogram

	// ScorerDuration tracks per-window inference latency.
	ScorerDuration metric.Float64Histogram

	// ScorerErrors counts failed Score calls.
	ScorerErrors metric.Int64Counter

	// SinkErrors counts segment sink failures. Attribute: attribute.String("sink", ...)
	SinkErrors metric.Int64Counter

	// TranscriptionDuration tracks STT request latency.
	TranscriptionDuration metric.Float64Histogram

	// ActiveSessions tracks open ingest sessions.
	ActiveSessions metric.Int64UpDownCounter
}

var scorerBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1,
}

var segmentBuckets = []float64{
	0.25, 0.5, 1, 2, 5, 10, 20, 30, 60,
}

var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TokensProcessed, err = m.Int64Counter("supervad.tokens",
		metric.WithDescription("Tokens processed by the hysteresis state machine."),
	); err != nil {
		return nil, err
	}
	if met.Events, err = m.Int64Counter("supervad.events",
		metric.WithDescription("State machine transitions by kind."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsCompleted, err = m.Int64Counter("supervad.segments",
		metric.WithDescription("Completed speech segments."),
	); err != nil {
		return nil, err
	}
	if met.SegmentDuration, err = m.Float64Histogram("supervad.segment.duration",
		metric.WithDescription("Audio duration of completed segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(segmentBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ScorerDuration, err = m.Float64Histogram("supervad.scorer.duration",
		metric.WithDescription("Latency of one scorer inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(scorerBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ScorerErrors, err = m.Int64Counter("supervad.scorer.errors",
		metric.WithDescription("Failed scorer inferences."),
	); err != nil {
		return nil, err
	}
	if met.SinkErrors, err = m.Int64Counter("supervad.sink.errors",
		metric.WithDescription("Segment sink failures by sink."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("supervad.transcription.duration",
		metric.WithDescription("Latency of segment transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("supervad.active_sessions",
		metric.WithDescription("Number of open ingest sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance, created on first call
// from [otel.GetMeterProvider]. Call it after [InitProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("metrics: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// ObserveEvents records the events returned by one Feed call.
func (m *Metrics) ObserveEvents(ctx context.Context, events []vad.Event) {
	if len(events) == 0 {
		return
	}
	m.TokensProcessed.Add(ctx, int64(len(events)))
	for _, ev := range events {
		if ev.Kind == vad.EventUnchanged {
			continue
		}
		m.Events.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", ev.Kind.String())))
		if ev.Kind == vad.EventComplete {
			m.SegmentsCompleted.Add(ctx, 1)
			m.SegmentDuration.Record(ctx, float64(len(ev.Segment))/vad.SampleRate)
		}
	}
}

// RecordSinkError counts a failed segment delivery.
func (m *Metrics) RecordSinkError(ctx context.Context, sink string) {
	m.SinkErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
}

// RecordTranscription records the latency of one STT request.
func (m *Metrics) RecordTranscription(ctx context.Context, provider string, d time.Duration) {
	m.TranscriptionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
}
