package segment

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/realtime-ai/supervad/pkg/asr"
	"github.com/realtime-ai/supervad/pkg/metrics"
	"github.com/realtime-ai/supervad/pkg/trace"
)

// TranscribeSink sends every segment to an ASR provider.
type TranscribeSink struct {
	provider asr.Provider
	config   asr.RecognitionConfig
	onResult func(Segment, *asr.RecognitionResult)
	metrics  *metrics.Metrics
}

// TranscribeOption configures a TranscribeSink.
type TranscribeOption func(*TranscribeSink)

// WithRecognitionConfig sets the per-request recognition settings.
func WithRecognitionConfig(cfg asr.RecognitionConfig) TranscribeOption {
	return func(s *TranscribeSink) {
		s.config = cfg
	}
}

// WithResultHandler receives every successful transcription.
func WithResultHandler(fn func(Segment, *asr.RecognitionResult)) TranscribeOption {
	return func(s *TranscribeSink) {
		s.onResult = fn
	}
}

// WithMetrics records transcription latency on m.
func WithMetrics(m *metrics.Metrics) TranscribeOption {
	return func(s *TranscribeSink) {
		s.metrics = m
	}
}

func NewTranscribeSink(provider asr.Provider, opts ...TranscribeOption) *TranscribeSink {
	s := &TranscribeSink{provider: provider}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TranscribeSink) Consume(ctx context.Context, seg Segment) error {
	ctx, span := trace.InstrumentTranscription(ctx, s.provider.Name(), seg.ID.String(), len(seg.Samples))
	defer span.End()

	start := time.Now()
	result, err := s.provider.Recognize(ctx, seg.Samples, seg.SampleRate, s.config)
	if s.metrics != nil {
		s.metrics.RecordTranscription(ctx, s.provider.Name(), time.Since(start))
	}
	if err != nil {
		trace.RecordError(span, err)
		return fmt.Errorf("transcribe segment %s: %w", seg.ID, err)
	}

	log.Print(trace.LogWithTrace(ctx, fmt.Sprintf("[Transcribe] %s (%.2fs): %s", seg.ID, seg.Duration().Seconds(), result.Text)))
	if s.onResult != nil {
		s.onResult(seg, result)
	}
	return nil
}
