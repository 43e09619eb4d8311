package segment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/realtime-ai/supervad/pkg/audio"
	"github.com/realtime-ai/supervad/pkg/trace"
)

// Collector keeps every segment in memory.
type Collector struct {
	mu       sync.Mutex
	segments []Segment
}

func (c *Collector) Consume(ctx context.Context, seg Segment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segments = append(c.segments, seg)
	return nil
}

// Segments returns the collected segments in arrival order.
func (c *Collector) Segments() []Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Segment, len(c.segments))
	copy(out, c.segments)
	return out
}

// WAVFileSink writes each segment to <dir>/<session>-<id>.wav.
type WAVFileSink struct {
	dir string
}

// NewWAVFileSink creates dir if needed.
func NewWAVFileSink(dir string) (*WAVFileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create segment dir: %w", err)
	}
	return &WAVFileSink{dir: dir}, nil
}

// Path returns the file a segment is written to.
func (w *WAVFileSink) Path(seg Segment) string {
	session := seg.SessionID
	if session == "" {
		session = "session"
	}
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.wav", session, seg.ID))
}

func (w *WAVFileSink) Consume(ctx context.Context, seg Segment) (err error) {
	ctx, span := trace.InstrumentSegment(ctx, "wav", seg.SessionID, seg.ID.String(), len(seg.Samples), seg.Duration().Milliseconds())
	defer func() {
		trace.RecordError(span, err)
		span.End()
	}()

	path := w.Path(seg)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := audio.WriteWAV(f, seg.Samples, seg.SampleRate); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	log.Print(trace.LogWithTrace(ctx, fmt.Sprintf("[Segment] wrote %s (%.2fs)", path, seg.Duration().Seconds())))
	return nil
}

// Multi delivers every segment to all sinks in order and joins their errors.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, seg Segment) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Consume(ctx, seg); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
