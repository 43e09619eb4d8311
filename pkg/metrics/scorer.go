package metrics

import (
	"context"
	"time"

	"github.com/realtime-ai/supervad/pkg/vad"
)

// meteredScorer records latency and failures of the wrapped scorer.
type meteredScorer struct {
	vad.Scorer
	m *Metrics
}

// WrapScorer returns a Scorer that records every call on m.
func WrapScorer(s vad.Scorer, m *Metrics) vad.Scorer {
	return &meteredScorer{Scorer: s, m: m}
}

func (s *meteredScorer) Score(ctx context.Context, window []float32) (float32, error) {
	start := time.Now()
	p, err := s.Scorer.Score(ctx, window)
	s.m.ScorerDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.m.ScorerErrors.Add(ctx, 1)
	}
	return p, err
}
