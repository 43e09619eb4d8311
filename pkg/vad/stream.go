package vad

import (
	"context"
	"fmt"
	"math"
)

// StreamEngine couples a Framer, a Scorer and a Machine for one audio
// stream. It is not safe for concurrent use; wrap it in a Feeder when more
// than one goroutine produces audio.
type StreamEngine struct {
	framer  *Framer
	machine *Machine
	scorer  Scorer

	state  State
	tokens int64
}

// NewStreamEngine validates cfg and creates an engine in PhaseDeactivated.
func NewStreamEngine(cfg Config, scorer Scorer) (*StreamEngine, error) {
	if scorer == nil {
		return nil, invalidConfig("scorer is required")
	}
	machine, err := NewMachine(cfg, TokenSize)
	if err != nil {
		return nil, err
	}
	framer, err := NewFramer(TokenSize, WindowTokens)
	if err != nil {
		return nil, err
	}
	return &StreamEngine{
		framer:  framer,
		machine: machine,
		scorer:  scorer,
	}, nil
}

// Process scores one token and advances the hysteresis machine. On any
// error the engine is left exactly as it was before the call.
func (e *StreamEngine) Process(ctx context.Context, token []float32) (Event, error) {
	window, err := e.framer.Preview(token)
	if err != nil {
		return Event{}, err
	}

	p, err := e.scorer.Score(ctx, window)
	if err != nil {
		return Event{}, &Error{
			Code:    ErrCodeScorerFailure,
			Message: fmt.Sprintf("scoring token %d failed", e.tokens),
			Err:     err,
		}
	}
	if math.IsNaN(float64(p)) || p < 0 || p > 1 {
		return Event{}, &Error{
			Code:    ErrCodeScorerFailure,
			Message: fmt.Sprintf("scorer returned probability %v outside [0, 1] for token %d", p, e.tokens),
		}
	}

	if _, err := e.framer.Submit(token); err != nil {
		return Event{}, err
	}

	var ev Event
	e.state, ev = e.machine.Step(e.state, token, p)
	ev.Token = e.tokens
	e.tokens++
	return ev, nil
}

// Phase returns the current hysteresis phase.
func (e *StreamEngine) Phase() Phase {
	return e.state.Phase
}

// Config returns the engine parameters.
func (e *StreamEngine) Config() Config {
	return e.machine.Config()
}

// Tokens returns the number of tokens processed so far.
func (e *StreamEngine) Tokens() int64 {
	return e.tokens
}

// ActiveSamples returns the length of the open segment buffer.
func (e *StreamEngine) ActiveSamples() int {
	return len(e.state.Active)
}
