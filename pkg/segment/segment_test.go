package segment

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/supervad/pkg/asr"
	"github.com/realtime-ai/supervad/pkg/audio"
	"github.com/realtime-ai/supervad/pkg/vad"
)

func testSegment(tokens int) Segment {
	return FromEvent("sess", vad.Event{
		Kind:    vad.EventComplete,
		Token:   int64(tokens + 9),
		Segment: make([]float32, tokens*vad.TokenSize),
	})
}

func TestFromEvent(t *testing.T) {
	seg := testSegment(5)

	assert.Equal(t, "sess", seg.SessionID)
	assert.Equal(t, vad.SampleRate, seg.SampleRate)
	assert.Equal(t, int64(14), seg.EndToken)
	assert.Equal(t, int64(10), seg.StartToken)
	assert.Equal(t, 100*time.Millisecond, seg.Duration())
	assert.NotEqual(t, testSegment(5).ID, seg.ID)
	assert.Equal(t, time.Duration(0), Segment{Samples: []float32{1}}.Duration())
}

func TestHandler(t *testing.T) {
	var c Collector
	fn := Handler("abc", &c)

	require.NoError(t, fn(context.Background(), vad.Event{Kind: vad.EventComplete, Token: 3, Segment: make([]float32, 2*vad.TokenSize)}))

	got := c.Segments()
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0].SessionID)
	assert.Equal(t, int64(2), got[0].StartToken)
}

func TestWAVFileSink(t *testing.T) {
	dir := t.TempDir() + "/nested"
	sink, err := NewWAVFileSink(dir)
	require.NoError(t, err)

	seg := testSegment(3)
	seg.Samples[0] = 0.5
	require.NoError(t, sink.Consume(context.Background(), seg))

	path := sink.Path(seg)
	assert.Contains(t, path, "sess-"+seg.ID.String()+".wav")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	samples, rate, err := audio.DecodeWAV(f)
	require.NoError(t, err)
	assert.Equal(t, vad.SampleRate, rate)
	assert.Len(t, samples, 3*vad.TokenSize)
	assert.InDelta(t, 0.5, samples[0], 0.001)
}

func TestMulti(t *testing.T) {
	var a, b Collector
	errA := errors.New("a failed")
	failing := SinkFunc(func(ctx context.Context, seg Segment) error { return errA })

	err := Multi(&a, failing, &b).Consume(context.Background(), testSegment(1))
	assert.ErrorIs(t, err, errA)
	assert.Len(t, a.Segments(), 1)
	assert.Len(t, b.Segments(), 1)

	assert.NoError(t, Multi(&a).Consume(context.Background(), testSegment(1)))
}

func TestAsyncPreservesOrder(t *testing.T) {
	var c Collector
	async := NewAsync(&c, 2)

	var ids []string
	for i := 0; i < 10; i++ {
		seg := testSegment(1)
		ids = append(ids, seg.ID.String())
		require.NoError(t, async.Consume(context.Background(), seg))
	}
	require.NoError(t, async.Close())
	require.NoError(t, async.Close())

	got := c.Segments()
	require.Len(t, got, 10)
	for i := range got {
		assert.Equal(t, ids[i], got[i].ID.String())
	}

	assert.ErrorIs(t, async.Consume(context.Background(), testSegment(1)), ErrClosed)
}

func TestAsyncFullQueueHonorsContext(t *testing.T) {
	release := make(chan struct{})
	blocking := SinkFunc(func(ctx context.Context, seg Segment) error {
		<-release
		return nil
	})
	async := NewAsync(blocking, 1)

	// One segment in the worker, one in the queue.
	require.NoError(t, async.Consume(context.Background(), testSegment(1)))
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()
		return async.Consume(ctx, testSegment(1)) == nil
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, async.Consume(ctx, testSegment(1)), context.DeadlineExceeded)

	close(release)
	require.NoError(t, async.Close())
}

func TestAsyncReportsErrors(t *testing.T) {
	var mu sync.Mutex
	var failed int
	boom := errors.New("boom")
	async := NewAsync(SinkFunc(func(ctx context.Context, seg Segment) error { return boom }), 4,
		WithErrorHandler(func(seg Segment, err error) {
			mu.Lock()
			defer mu.Unlock()
			assert.ErrorIs(t, err, boom)
			failed++
		}))

	for i := 0; i < 3; i++ {
		require.NoError(t, async.Consume(context.Background(), testSegment(1)))
	}
	require.NoError(t, async.Close())
	assert.Equal(t, 3, failed)
}

type fakeProvider struct {
	text  string
	err   error
	calls int
	rate  int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Recognize(ctx context.Context, samples []float32, sampleRate int, cfg asr.RecognitionConfig) (*asr.RecognitionResult, error) {
	p.calls++
	p.rate = sampleRate
	if p.err != nil {
		return nil, p.err
	}
	return &asr.RecognitionResult{Text: p.text, Language: cfg.Language}, nil
}

func (p *fakeProvider) Close() error { return nil }

func TestTranscribeSink(t *testing.T) {
	provider := &fakeProvider{text: "hello"}
	var results []*asr.RecognitionResult
	sink := NewTranscribeSink(provider,
		WithRecognitionConfig(asr.RecognitionConfig{Language: "en"}),
		WithResultHandler(func(seg Segment, r *asr.RecognitionResult) {
			results = append(results, r)
		}))

	require.NoError(t, sink.Consume(context.Background(), testSegment(10)))
	require.Len(t, results, 1)
	assert.Equal(t, "hello", results[0].Text)
	assert.Equal(t, "en", results[0].Language)
	assert.Equal(t, vad.SampleRate, provider.rate)

	provider.err = errors.New("quota")
	err := sink.Consume(context.Background(), testSegment(10))
	assert.ErrorIs(t, err, provider.err)
	assert.Len(t, results, 1)
}
