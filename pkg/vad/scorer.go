// Package vad implements the SuperVAD streaming voice activity detector.
//
// A stream is cut into fixed-size tokens (20ms at 16kHz). Every token is
// shifted into a sliding window that is scored by a Scorer, and the speech
// probability drives a four-phase hysteresis machine
// (deactivated, activating, active, deactivating). When a segment is
// confirmed finished the machine emits the complete utterance, including a
// short pre-roll captured before activation.
//
// Usage:
//
//	engine, err := vad.NewStreamEngine(vad.DefaultConfig(), scorer)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	feeder := vad.NewFeeder(engine, vad.WithSegmentSink(sink))
//	events, err := feeder.Feed(ctx, samples)
package vad

import "context"

// Scorer maps a fixed-length window of samples to a speech probability.
// This interface allows for mock implementations in testing.
type Scorer interface {
	// Score returns the speech probability in [0, 1] for window, which is
	// always WindowSize samples long. It may block.
	Score(ctx context.Context, window []float32) (float32, error)

	// Destroy releases all resources held by the scorer.
	// The scorer should not be used after calling Destroy.
	Destroy() error
}
