package vad

import (
	"context"
	"log"

	"golang.org/x/sync/semaphore"
)

// SegmentFunc receives completed segments. It runs inside the feeder's
// critical section, so a slow handler delays the next token.
type SegmentFunc func(ctx context.Context, ev Event) error

// FeederOption configures a Feeder.
type FeederOption func(*Feeder)

// WithSegmentSink delivers every EventComplete to fn in stream order.
// Handler errors are logged and do not fail the stream.
func WithSegmentSink(fn SegmentFunc) FeederOption {
	return func(f *Feeder) {
		f.onSegment = fn
	}
}

// WithVerbose logs every transition.
func WithVerbose(verbose bool) FeederOption {
	return func(f *Feeder) {
		f.verbose = verbose
	}
}

// Feeder accepts arbitrarily sized sample chunks, cuts them into tokens and
// drives them through a StreamEngine one at a time. Concurrent Feed calls
// queue in arrival order and never interleave.
type Feeder struct {
	sem    *semaphore.Weighted
	engine *StreamEngine

	onSegment SegmentFunc
	verbose   bool

	// Guarded by sem.
	pending []float32
	failed  error
}

// NewFeeder wraps engine. The engine must not be used directly afterwards.
func NewFeeder(engine *StreamEngine, opts ...FeederOption) *Feeder {
	f := &Feeder{
		sem:    semaphore.NewWeighted(1),
		engine: engine,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Feed appends samples to the carry-over and processes every complete
// token, returning the resulting events in order. A remainder shorter than
// one token is kept for the next call.
//
// If ctx is canceled while queued, samples are discarded. If it is canceled
// while draining, the tokens not yet processed stay in the carry-over.
// After a scorer failure the feeder is unusable and every call returns an
// ErrCodeStreamFailed error.
func (f *Feeder) Feed(ctx context.Context, samples []float32) ([]Event, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer f.sem.Release(1)

	if f.failed != nil {
		return nil, &Error{
			Code:    ErrCodeStreamFailed,
			Message: "stream failed earlier",
			Err:     f.failed,
		}
	}

	f.pending = append(f.pending, samples...)

	var events []Event
	consumed := 0
	for len(f.pending)-consumed >= TokenSize {
		if err := ctx.Err(); err != nil {
			f.compact(consumed)
			return events, err
		}

		token := f.pending[consumed : consumed+TokenSize]
		ev, err := f.engine.Process(ctx, token)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				f.compact(consumed)
				return events, ctxErr
			}
			log.Printf("[SuperVAD] stream failed at token %d: %v", f.engine.Tokens(), err)
			f.failed = err
			f.pending = nil
			return events, err
		}
		consumed += TokenSize

		if f.verbose && ev.Kind != EventUnchanged {
			log.Printf("[SuperVAD] token=%d p=%.3f %s -> %s", ev.Token, ev.Probability, ev.Kind, ev.Phase)
		}

		if ev.Kind == EventComplete && f.onSegment != nil {
			if err := f.onSegment(ctx, ev); err != nil {
				log.Printf("[SuperVAD] segment sink error: %v", err)
			}
		}
		events = append(events, ev)
	}

	f.compact(consumed)
	return events, nil
}

// compact drops the first n pending samples without retaining the old array.
func (f *Feeder) compact(n int) {
	rest := len(f.pending) - n
	if rest == 0 {
		f.pending = f.pending[:0]
		return
	}
	next := make([]float32, rest)
	copy(next, f.pending[n:])
	f.pending = next
}

// Pending returns the number of carry-over samples waiting for a full token.
func (f *Feeder) Pending() int {
	if err := f.sem.Acquire(context.Background(), 1); err != nil {
		return 0
	}
	defer f.sem.Release(1)
	return len(f.pending)
}

// Phase returns the engine phase.
func (f *Feeder) Phase() Phase {
	if err := f.sem.Acquire(context.Background(), 1); err != nil {
		return PhaseDeactivated
	}
	defer f.sem.Release(1)
	return f.engine.Phase()
}
