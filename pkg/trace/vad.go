package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentSession creates a span covering one VAD stream session.
// source is "websocket", "microphone" or "file".
func InstrumentSession(ctx context.Context, sessionID, source string) (context.Context, trace.Span) {
	attrs := SessionAttrs(sessionID)
	attrs = append(attrs, attribute.String("session.source", source))
	return StartSpan(ctx, "vad.session", trace.WithAttributes(attrs...))
}

// AddVADEvent records a hysteresis transition on the span in ctx.
func AddVADEvent(ctx context.Context, kind, phase string, token int64, probability float32) {
	trace.SpanFromContext(ctx).AddEvent("vad."+kind, trace.WithAttributes(VADEventAttrs(kind, phase, token, probability)...))
}

// InstrumentSegment creates a span for delivering a completed segment to a sink.
func InstrumentSegment(ctx context.Context, sink, sessionID, segmentID string, samples int, durationMs int64) (context.Context, trace.Span) {
	attrs := SegmentAttrs(sessionID, segmentID, samples, durationMs)
	attrs = append(attrs, attribute.String(AttrSegmentSink, sink))
	return StartSpan(ctx, "segment.deliver", trace.WithAttributes(attrs...))
}

// InstrumentTranscription creates a span for an STT request on one segment.
func InstrumentTranscription(ctx context.Context, provider, segmentID string, samples int) (context.Context, trace.Span) {
	return StartSpan(ctx, "stt.transcribe",
		trace.WithAttributes(
			attribute.String(AttrSTTProvider, provider),
			attribute.String(AttrSegmentID, segmentID),
			attribute.Int(AttrSegmentSamples, samples),
		),
	)
}
