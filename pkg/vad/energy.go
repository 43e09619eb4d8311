package vad

import (
	"context"
	"fmt"
	"math"
)

// EnergyScorerConfig holds the RMS levels mapped onto the probability range.
type EnergyScorerConfig struct {
	// FloorRMS maps to probability 0. Typical: 0.005.
	FloorRMS float64
	// CeilRMS maps to probability 1. Typical: 0.05.
	CeilRMS float64
	// TokenSize is the number of trailing window samples measured.
	TokenSize int
}

// DefaultEnergyScorerConfig returns levels suitable for 16kHz microphone input.
func DefaultEnergyScorerConfig() EnergyScorerConfig {
	return EnergyScorerConfig{
		FloorRMS:  0.005,
		CeilRMS:   0.05,
		TokenSize: TokenSize,
	}
}

// EnergyScorer is a pure-Go scorer that linearly maps the RMS level of the
// newest token in the window onto [0, 1]. It needs no model and is meant for
// development and environments without ONNX Runtime.
type EnergyScorer struct {
	cfg EnergyScorerConfig
}

// NewEnergyScorer creates an EnergyScorer.
func NewEnergyScorer(cfg EnergyScorerConfig) (*EnergyScorer, error) {
	if cfg.TokenSize <= 0 {
		return nil, fmt.Errorf("invalid TokenSize: should be positive")
	}
	if cfg.FloorRMS < 0 || cfg.CeilRMS <= cfg.FloorRMS {
		return nil, fmt.Errorf("invalid RMS range: floor=%v ceil=%v", cfg.FloorRMS, cfg.CeilRMS)
	}
	return &EnergyScorer{cfg: cfg}, nil
}

// Score implements Scorer.
func (s *EnergyScorer) Score(ctx context.Context, window []float32) (float32, error) {
	if len(window) < s.cfg.TokenSize {
		return 0, fmt.Errorf("window too short: %d samples", len(window))
	}

	var sum float64
	for _, v := range window[len(window)-s.cfg.TokenSize:] {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		sum += f * f
	}
	level := math.Sqrt(sum / float64(s.cfg.TokenSize))

	p := (level - s.cfg.FloorRMS) / (s.cfg.CeilRMS - s.cfg.FloorRMS)
	return float32(math.Max(0, math.Min(1, p))), nil
}

// Destroy implements Scorer.
func (s *EnergyScorer) Destroy() error {
	return nil
}

var _ Scorer = (*EnergyScorer)(nil)
