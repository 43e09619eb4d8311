package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/supervad/pkg/audio"
	"github.com/realtime-ai/supervad/pkg/segment"
	"github.com/realtime-ai/supervad/pkg/vad"
)

// fastConfig activates on one token and completes on the second silent one.
func fastConfig() *Config {
	cfg := DefaultConfig()
	cfg.VAD = vad.Config{
		ActivationThreshold:   0.5,
		ActivationTokens:      1,
		DeactivationThreshold: 0.3,
		DeactivationTokens:    1,
		PrebufferTokens:       1,
	}
	return cfg
}

func newTestServer(t *testing.T, cfg *Config, scorer vad.Scorer, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(cfg, scorer, opts...)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Stop(context.Background())
		ts.Close()
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server, encoding string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/vad"
	if encoding != "" {
		url += "?encoding=" + encoding
	}
	return websocket.DefaultDialer.Dial(url, nil)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func connect(t *testing.T, ts *httptest.Server, encoding string) (*websocket.Conn, string) {
	t.Helper()
	conn, _, err := dial(t, ts, encoding)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	created := readMessage(t, conn)
	require.Equal(t, MsgSessionCreated, created.Type)
	require.NotEmpty(t, created.SessionID)
	return conn, created.SessionID
}

func TestNewRequiresScorer(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.VAD.PrebufferTokens = 0
	_, err = New(cfg, vad.NewMockScorer())
	assert.True(t, vad.IsCode(err, vad.ErrCodeInvalidConfiguration))
}

func TestSessionEmitsTransitionsAndSegment(t *testing.T) {
	collector := &segment.Collector{}
	scorer := vad.NewMockScorerWithSequence([]float32{0.9, 0.1, 0.1})
	_, ts := newTestServer(t, fastConfig(), scorer, WithSink(collector))

	conn, sessionID := connect(t, ts, EncodingPCM16)

	frame := audio.Float32ToPCM16(make([]float32, 3*vad.TokenSize))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))

	active := readMessage(t, conn)
	assert.Equal(t, "active", active.Type)
	assert.Equal(t, sessionID, active.SessionID)
	require.NotNil(t, active.Token)
	assert.Equal(t, int64(0), *active.Token)
	require.NotNil(t, active.Probability)
	assert.InDelta(t, 0.9, *active.Probability, 1e-6)
	assert.Empty(t, active.SegmentID)

	deactivating := readMessage(t, conn)
	assert.Equal(t, "deactivating", deactivating.Type)
	assert.Equal(t, int64(1), *deactivating.Token)

	complete := readMessage(t, conn)
	assert.Equal(t, "complete", complete.Type)
	assert.Equal(t, int64(2), *complete.Token)
	assert.Equal(t, "deactivated", complete.Phase)
	assert.NotEmpty(t, complete.SegmentID)
	assert.Equal(t, 3*vad.TokenSize, complete.Samples)
	assert.Equal(t, int64(60), complete.DurationMs)

	segs := collector.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, sessionID, segs[0].SessionID)
	assert.Equal(t, complete.SegmentID, segs[0].ID.String())
	assert.Equal(t, int64(0), segs[0].StartToken)
	assert.Equal(t, int64(2), segs[0].EndToken)
}

func TestSessionCarriesPartialFrames(t *testing.T) {
	scorer := vad.NewMockScorerWithProb(0.9)
	_, ts := newTestServer(t, fastConfig(), scorer)

	conn, _ := connect(t, ts, EncodingPCM16)

	half := audio.Float32ToPCM16(make([]float32, vad.TokenSize/2))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, half))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, half))

	msg := readMessage(t, conn)
	assert.Equal(t, "active", msg.Type)
	assert.Equal(t, 1, scorer.CallCount())
}

func TestSessionMuLaw(t *testing.T) {
	_, ts := newTestServer(t, fastConfig(), vad.NewMockScorerWithProb(0.9))

	conn, _ := connect(t, ts, EncodingMuLaw)

	frame := audio.Float32ToMuLaw(make([]float32, vad.TokenSize))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))

	msg := readMessage(t, conn)
	assert.Equal(t, "active", msg.Type)
}

func TestSessionRejectsBadFrames(t *testing.T) {
	_, ts := newTestServer(t, fastConfig(), vad.NewMockScorer())

	conn, _ := connect(t, ts, EncodingPCM16)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	msg := readMessage(t, conn)
	assert.Equal(t, MsgError, msg.Type)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	msg = readMessage(t, conn)
	assert.Equal(t, MsgError, msg.Type)
	assert.Contains(t, msg.Error, "odd")
}

func TestSessionRejectsNonFiniteFloat32(t *testing.T) {
	scorer := vad.NewMockScorerWithProb(0.9)
	_, ts := newTestServer(t, fastConfig(), scorer)

	conn, _ := connect(t, ts, EncodingFloat32)

	frame := make([]byte, 4*vad.TokenSize)
	binary.LittleEndian.PutUint32(frame[8:], math.Float32bits(float32(math.NaN())))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))

	msg := readMessage(t, conn)
	assert.Equal(t, MsgError, msg.Type)
	assert.Contains(t, msg.Error, "not finite")
	assert.Equal(t, 0, scorer.CallCount())

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 4*vad.TokenSize)))
	msg = readMessage(t, conn)
	assert.Equal(t, "active", msg.Type)
}

func TestSessionScorerFailureClosesStream(t *testing.T) {
	scorer := &vad.MockScorer{
		ScoreFunc: func(ctx context.Context, window []float32) (float32, error) {
			return 0, errors.New("model exploded")
		},
	}
	_, ts := newTestServer(t, fastConfig(), scorer)

	conn, _ := connect(t, ts, EncodingPCM16)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, audio.Float32ToPCM16(make([]float32, vad.TokenSize))))

	msg := readMessage(t, conn)
	assert.Equal(t, MsgError, msg.Type)
	assert.Contains(t, msg.Error, "model exploded")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr))
}

func TestUnsupportedEncoding(t *testing.T) {
	_, ts := newTestServer(t, fastConfig(), vad.NewMockScorer())

	_, resp, err := dial(t, ts, "opus")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMaxSessions(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxSessions = 1
	s, ts := newTestServer(t, cfg, vad.NewMockScorer())

	first, _ := connect(t, ts, "")
	assert.Equal(t, 1, s.SessionCount())

	_, resp, err := dial(t, ts, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	first.Close()
	require.Eventually(t, func() bool {
		return s.SessionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	connect(t, ts, "")
}

func TestMaxSessionsConcurrentReservations(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxSessions = 2
	s, err := New(cfg, vad.NewMockScorer())
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.reserveSlot() {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(2), granted.Load())

	s.releaseSlot()
	assert.True(t, s.reserveSlot())
	assert.False(t, s.reserveSlot())
}

func TestUnlimitedSessions(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxSessions = 0
	s, ts := newTestServer(t, cfg, vad.NewMockScorer())

	for i := 0; i < 3; i++ {
		connect(t, ts, "")
	}
	require.Eventually(t, func() bool {
		return s.SessionCount() == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "supervad_tokens_total 0\n")
	})
	_, ts := newTestServer(t, fastConfig(), vad.NewMockScorer(), WithMetricsHandler(metricsHandler))

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(0), health["sessions"])

	resp2, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp2.Body.Close()
	body, err := io.ReadAll(resp2.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "supervad_tokens_total")
}

func TestStopClosesSessions(t *testing.T) {
	s, ts := newTestServer(t, fastConfig(), vad.NewMockScorer())

	conn, _ := connect(t, ts, "")
	require.NoError(t, s.Stop(context.Background()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))

	_, resp, err := dial(t, ts, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
