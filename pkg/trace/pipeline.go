package trace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/realtime-ai/supervad/pkg/pipeline"
)

// InstrumentPipelineStart creates a span covering pipeline startup.
func InstrumentPipelineStart(ctx context.Context, pipelineName string, elementNames []string) (context.Context, trace.Span) {
	return StartSpan(ctx, "pipeline.start",
		trace.WithAttributes(
			attribute.String(AttrPipelineName, pipelineName),
			attribute.StringSlice(AttrPipelineElements, elementNames),
		),
	)
}

// InstrumentPipelineStop creates a span covering pipeline shutdown.
func InstrumentPipelineStop(ctx context.Context, pipelineName string) (context.Context, trace.Span) {
	return StartSpan(ctx, "pipeline.stop",
		trace.WithAttributes(attribute.String(AttrPipelineName, pipelineName)),
	)
}

// InstrumentElementProcess creates a span for element message processing
func InstrumentElementProcess(ctx context.Context, elementName string, msg *pipeline.PipelineMessage) (context.Context, trace.Span) {
	spanName := fmt.Sprintf("element.%s.process", elementName)

	attrs := []attribute.KeyValue{
		attribute.String(AttrPipelineElement, elementName),
		attribute.String(AttrSessionID, msg.SessionID),
		attribute.Int(AttrMessageType, int(msg.Type)),
	}

	if msg.Type == pipeline.MsgTypeAudio && msg.AudioData != nil {
		attrs = append(attrs, AudioAttrs(
			msg.AudioData.SampleRate,
			msg.AudioData.Channels,
			len(msg.AudioData.Data),
			msg.AudioData.MediaType,
		)...)
	}

	return StartSpan(ctx, spanName, trace.WithAttributes(attrs...))
}
