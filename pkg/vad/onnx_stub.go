//go:build !vad

package vad

import (
	"context"
	"fmt"
)

// ONNXScorerConfig holds configuration for creating an ONNXScorer.
type ONNXScorerConfig struct {
	ModelPath string
	Threads   int
}

// ONNXScorer is a stub when built without the 'vad' build tag.
type ONNXScorer struct{}

// NewONNXScorer returns an error indicating that ONNX support is not built in.
func NewONNXScorer(cfg ONNXScorerConfig) (*ONNXScorer, error) {
	return nil, fmt.Errorf("ONNX scorer is not enabled. Rebuild with '-tags vad' and ensure ONNX Runtime is installed")
}

// InitRuntime is a no-op without the 'vad' build tag.
func InitRuntime(libraryPath string) error {
	return nil
}

// DestroyRuntime is a no-op without the 'vad' build tag.
func DestroyRuntime() error {
	return nil
}

// Score returns an error for the stub implementation.
func (s *ONNXScorer) Score(ctx context.Context, window []float32) (float32, error) {
	return 0, fmt.Errorf("ONNX scorer is not enabled")
}

// Destroy is a no-op for the stub implementation.
func (s *ONNXScorer) Destroy() error {
	return nil
}

var _ Scorer = (*ONNXScorer)(nil)
