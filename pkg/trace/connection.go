package trace

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// InstrumentConnectionCreated creates a span for an accepted ingest connection
func InstrumentConnectionCreated(ctx context.Context, connID, connType string) (context.Context, trace.Span) {
	return StartSpan(ctx, "connection.created",
		trace.WithAttributes(
			ConnectionAttrs(connID, connType, "created")...,
		),
	)
}

// InstrumentConnectionError creates a span for connection errors
func InstrumentConnectionError(ctx context.Context, connID, connType string, err error) (context.Context, trace.Span) {
	attrs := ConnectionAttrs(connID, connType, "error")
	attrs = append(attrs, ErrorAttrs("connection", err.Error())...)
	ctx, span := StartSpan(ctx, "connection.error", trace.WithAttributes(attrs...))

	RecordError(span, err)
	return ctx, span
}

// InstrumentConnectionClosed creates a span for connection closure
func InstrumentConnectionClosed(ctx context.Context, connID, connType string) (context.Context, trace.Span) {
	return StartSpan(ctx, "connection.closed",
		trace.WithAttributes(
			ConnectionAttrs(connID, connType, "closed")...,
		),
	)
}
