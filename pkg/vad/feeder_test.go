package vad

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeeder(t *testing.T, scorer Scorer, opts ...FeederOption) *Feeder {
	t.Helper()
	engine, err := NewStreamEngine(DefaultConfig(), scorer)
	require.NoError(t, err)
	return NewFeeder(engine, opts...)
}

func TestFeederChunking(t *testing.T) {
	scorer := NewMockScorer()
	f := newTestFeeder(t, scorer)
	ctx := context.Background()

	events, err := f.Feed(ctx, make([]float32, 1000))
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, 40, f.Pending())

	events, err = f.Feed(ctx, make([]float32, 280))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(3), events[0].Token)
	assert.Equal(t, 0, f.Pending())

	events, err = f.Feed(ctx, make([]float32, 100))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 100, f.Pending())
	assert.Equal(t, 4, scorer.CallCount())
}

func TestFeederCarryOverKeepsSampleOrder(t *testing.T) {
	scorer := NewMockScorer()
	f := newTestFeeder(t, scorer)

	var stream []float32
	for i := 0; i < 4; i++ {
		stream = append(stream, seqToken(i)...)
	}
	for _, size := range []int{7, 500, 313, 460} {
		_, err := f.Feed(context.Background(), stream[:size])
		require.NoError(t, err)
		stream = stream[size:]
	}

	require.Equal(t, 4, scorer.CallCount())
	for i, window := range scorer.ScoreCalls {
		assert.Equal(t, seqToken(i), window[WindowSize-TokenSize:])
	}
}

func TestFeederDeliversSegments(t *testing.T) {
	cfg := DefaultConfig()
	probs := []float32{0.9, 0.9, 0.9}
	for i := 0; i < cfg.DeactivationTokens; i++ {
		probs = append(probs, 0.1)
	}
	probs = append(probs, 0, 0, 0)

	var segments []Event
	engine, err := NewStreamEngine(cfg, NewMockScorerWithSequence(probs))
	require.NoError(t, err)
	f := NewFeeder(engine, WithVerbose(true), WithSegmentSink(func(ctx context.Context, ev Event) error {
		segments = append(segments, ev)
		return errors.New("sink errors are logged only")
	}))

	events, err := f.Feed(context.Background(), make([]float32, len(probs)*TokenSize))
	require.NoError(t, err)
	require.Len(t, events, len(probs))

	require.Len(t, segments, 1)
	assert.Equal(t, EventComplete, segments[0].Kind)
	assert.Len(t, segments[0].Segment, (1+2+cfg.DeactivationTokens)*TokenSize)
	assert.Equal(t, PhaseDeactivated, f.Phase())
}

func TestFeederSerializesConcurrentCallers(t *testing.T) {
	var inflight, maxInflight int32
	scorer := &MockScorer{
		ScoreFunc: func(ctx context.Context, window []float32) (float32, error) {
			n := atomic.AddInt32(&inflight, 1)
			for {
				m := atomic.LoadInt32(&maxInflight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInflight, m, n) {
					break
				}
			}
			runtime.Gosched()
			atomic.AddInt32(&inflight, -1)
			return 0.2, nil
		},
	}
	f := newTestFeeder(t, scorer)

	const callers = 8
	const tokensPerCaller = 5
	var wg sync.WaitGroup
	var total int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, err := f.Feed(context.Background(), make([]float32, tokensPerCaller*TokenSize))
			assert.NoError(t, err)
			atomic.AddInt32(&total, int32(len(events)))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(callers*tokensPerCaller), total)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInflight))
	assert.Equal(t, callers*tokensPerCaller, scorer.CallCount())
}

func TestFeederEventsAreContiguousPerCall(t *testing.T) {
	f := newTestFeeder(t, NewMockScorer())

	const callers = 6
	results := make([][]Event, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			events, err := f.Feed(context.Background(), make([]float32, 3*TokenSize))
			assert.NoError(t, err)
			results[i] = events
		}(i)
	}
	wg.Wait()

	for _, events := range results {
		require.Len(t, events, 3)
		assert.Equal(t, events[0].Token+1, events[1].Token)
		assert.Equal(t, events[1].Token+1, events[2].Token)
	}
}

func TestFeederScorerFailurePoisonsStream(t *testing.T) {
	scoreErr := errors.New("boom")
	calls := 0
	scorer := &MockScorer{
		ScoreFunc: func(ctx context.Context, window []float32) (float32, error) {
			calls++
			if calls == 2 {
				return 0, scoreErr
			}
			return 0, nil
		},
	}
	f := newTestFeeder(t, scorer)

	events, err := f.Feed(context.Background(), make([]float32, 3*TokenSize))
	assert.True(t, IsCode(err, ErrCodeScorerFailure))
	assert.Len(t, events, 1)

	_, err = f.Feed(context.Background(), make([]float32, TokenSize))
	assert.True(t, IsCode(err, ErrCodeStreamFailed))
	assert.ErrorIs(t, err, scoreErr)
	assert.Equal(t, 2, scorer.CallCount())
}

func TestFeederCanceledContext(t *testing.T) {
	scorer := NewMockScorer()
	f := newTestFeeder(t, scorer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events, err := f.Feed(ctx, make([]float32, 2*TokenSize))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, events)
	assert.Equal(t, 0, scorer.CallCount())

	// The feeder stays usable.
	events, err = f.Feed(context.Background(), make([]float32, TokenSize))
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestFeederCancelMidDrainKeepsRemainder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scorer := &MockScorer{
		ScoreFunc: func(c context.Context, window []float32) (float32, error) {
			cancel()
			return 0, nil
		},
	}
	f := newTestFeeder(t, scorer)

	events, err := f.Feed(ctx, make([]float32, 3*TokenSize+10))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, events, 1)
	assert.Equal(t, 2*TokenSize+10, f.Pending())
}
