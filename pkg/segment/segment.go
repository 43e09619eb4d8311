// Package segment defines completed speech segments and the sinks that
// consume them.
package segment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/realtime-ai/supervad/pkg/vad"
)

// Segment is one completed utterance: pre-roll plus every token up to and
// including the one that confirmed the end of speech.
type Segment struct {
	ID         uuid.UUID
	SessionID  string
	Samples    []float32
	SampleRate int
	// StartToken and EndToken are stream token indexes, both inclusive.
	StartToken  int64
	EndToken    int64
	CompletedAt time.Time
}

// FromEvent builds a Segment from an EventComplete. The event's sample slice
// is taken over, not copied.
func FromEvent(sessionID string, ev vad.Event) Segment {
	tokens := int64(len(ev.Segment) / vad.TokenSize)
	return Segment{
		ID:          uuid.New(),
		SessionID:   sessionID,
		Samples:     ev.Segment,
		SampleRate:  vad.SampleRate,
		StartToken:  ev.Token - tokens + 1,
		EndToken:    ev.Token,
		CompletedAt: time.Now(),
	}
}

// Duration returns the audio length of the segment.
func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}

// Sink consumes completed segments.
type Sink interface {
	Consume(ctx context.Context, seg Segment) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, seg Segment) error

func (f SinkFunc) Consume(ctx context.Context, seg Segment) error {
	return f(ctx, seg)
}

// Handler returns a feeder callback that wraps every completed event in a
// Segment for sessionID and hands it to sink.
func Handler(sessionID string, sink Sink) vad.SegmentFunc {
	return func(ctx context.Context, ev vad.Event) error {
		return sink.Consume(ctx, FromEvent(sessionID, ev))
	}
}
