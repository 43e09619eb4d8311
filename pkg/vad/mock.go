package vad

import (
	"context"
	"sync"
)

// MockScorer is a mock implementation of Scorer for testing.
// It allows customizing the behavior of Score through the ScoreFunc field.
type MockScorer struct {
	// ScoreFunc is called when Score is invoked.
	// If nil, returns 0.0 (no speech detected).
	ScoreFunc func(ctx context.Context, window []float32) (float32, error)

	// ScoreCalls records all windows passed to Score.
	ScoreCalls [][]float32

	// DestroyCalled tracks if Destroy was called.
	DestroyCalled bool

	mu sync.Mutex
}

// NewMockScorer creates a new MockScorer that always returns 0.
func NewMockScorer() *MockScorer {
	return &MockScorer{}
}

// NewMockScorerWithProb creates a MockScorer that returns a fixed probability.
func NewMockScorerWithProb(prob float32) *MockScorer {
	return &MockScorer{
		ScoreFunc: func(ctx context.Context, window []float32) (float32, error) {
			return prob, nil
		},
	}
}

// NewMockScorerWithSequence creates a MockScorer that returns probabilities in
// sequence. After all probabilities are returned, it cycles back to the beginning.
func NewMockScorerWithSequence(probs []float32) *MockScorer {
	idx := 0
	return &MockScorer{
		ScoreFunc: func(ctx context.Context, window []float32) (float32, error) {
			if len(probs) == 0 {
				return 0, nil
			}
			prob := probs[idx]
			idx = (idx + 1) % len(probs)
			return prob, nil
		},
	}
}

// Score implements Scorer.
func (m *MockScorer) Score(ctx context.Context, window []float32) (float32, error) {
	m.mu.Lock()
	windowCopy := make([]float32, len(window))
	copy(windowCopy, window)
	m.ScoreCalls = append(m.ScoreCalls, windowCopy)
	fn := m.ScoreFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, window)
	}
	return 0.0, nil
}

// Destroy implements Scorer.
func (m *MockScorer) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DestroyCalled = true
	return nil
}

// CallCount returns the number of times Score was called.
func (m *MockScorer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ScoreCalls)
}

// Ensure MockScorer implements Scorer at compile time.
var _ Scorer = (*MockScorer)(nil)
