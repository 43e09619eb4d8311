// Package server exposes the SuperVAD engine over WebSocket. Each connection
// is one stream: the client sends binary audio frames and receives a JSON
// text frame for every state transition.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/realtime-ai/supervad/pkg/audio"
	"github.com/realtime-ai/supervad/pkg/metrics"
	"github.com/realtime-ai/supervad/pkg/segment"
	"github.com/realtime-ai/supervad/pkg/trace"
	"github.com/realtime-ai/supervad/pkg/vad"
)

// Encodings accepted in the "encoding" query parameter.
const (
	EncodingPCM16   = "pcm16"
	EncodingMuLaw   = "mulaw"
	EncodingFloat32 = "f32"
)

const connType = "websocket"

// Config holds the configuration for the VAD server.
type Config struct {
	// Addr is the address to listen on (e.g., ":8080").
	Addr string

	// Path is the WebSocket endpoint path.
	Path string

	// VAD is applied to every session.
	VAD vad.Config

	// MaxSessions limits concurrent streams. 0 means no limit.
	MaxSessions int

	// ReadLimit caps the size of one incoming frame in bytes.
	ReadLimit int64

	ReadBufferSize  int
	WriteBufferSize int

	Verbose bool
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		Path:            "/v1/vad",
		VAD:             vad.DefaultConfig(),
		MaxSessions:     64,
		ReadLimit:       1 << 20,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithSink hands every completed segment to sink.
func WithSink(sink segment.Sink) Option {
	return func(s *Server) {
		s.sink = sink
	}
}

// WithMetrics records per-session metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// Server is the WebSocket VAD server.
type Server struct {
	config *Config
	scorer vad.Scorer

	sink           segment.Sink
	metrics        *metrics.Metrics
	metricsHandler http.Handler

	sessions   map[string]*websocket.Conn
	reserved   int // slots taken by upgrades not yet registered
	sessionsMu sync.RWMutex

	httpServer *http.Server
	upgrader   websocket.Upgrader
	handler    http.Handler
	handlerMu  sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a server. scorer is shared by all sessions and must be safe
// for concurrent use.
func New(config *Config, scorer vad.Scorer, opts ...Option) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if scorer == nil {
		return nil, errors.New("server: scorer is required")
	}
	if err := config.VAD.Validate(); err != nil {
		return nil, err
	}
	if config.Path == "" {
		config.Path = "/v1/vad"
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   config,
		scorer:   scorer,
		sessions: make(map[string]*websocket.Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the HTTP handler serving the WebSocket endpoint,
// /healthz and, if configured, /metrics.
func (s *Server) Handler() http.Handler {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	if s.handler != nil {
		return s.handler
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}
	s.handler = mux
	return mux
}

// Start starts listening in the background.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("[VADServer] starting on %s%s", s.config.Addr, s.config.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop closes every session and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()

	s.sessionsMu.Lock()
	for id, conn := range s.sessions {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		delete(s.sessions, id)
	}
	s.sessionsMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// SessionCount returns the number of open sessions.
func (s *Server) SessionCount() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.SessionCount(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	encoding := r.URL.Query().Get("encoding")
	if encoding == "" {
		encoding = EncodingPCM16
	}
	decode, ok := decoders[encoding]
	if !ok {
		http.Error(w, fmt.Sprintf("unsupported encoding: %s", encoding), http.StatusBadRequest)
		return
	}

	if s.ctx.Err() != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	if !s.reserveSlot() {
		http.Error(w, "too many sessions", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.releaseSlot()
		log.Printf("[VADServer] websocket upgrade failed: %v", err)
		return
	}
	if s.config.ReadLimit > 0 {
		conn.SetReadLimit(s.config.ReadLimit)
	}

	sess, err := s.newSession(conn, decode)
	if err != nil {
		s.releaseSlot()
		log.Printf("[VADServer] failed to create session: %v", err)
		conn.WriteJSON(errorMessage("", err))
		conn.Close()
		return
	}

	s.registerSession(sess.id, conn)
	defer s.unregisterSession(sess.id)

	sess.run(s.ctx)
}

// reserveSlot claims room for one session, counting upgrades still in flight.
func (s *Server) reserveSlot() bool {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	if s.config.MaxSessions > 0 && len(s.sessions)+s.reserved >= s.config.MaxSessions {
		return false
	}
	s.reserved++
	return true
}

func (s *Server) releaseSlot() {
	s.sessionsMu.Lock()
	s.reserved--
	s.sessionsMu.Unlock()
}

// registerSession turns a reserved slot into a registered session.
func (s *Server) registerSession(id string, conn *websocket.Conn) {
	s.sessionsMu.Lock()
	s.reserved--
	s.sessions[id] = conn
	s.sessionsMu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(s.ctx, 1)
	}
	log.Printf("[VADServer] [session %s] registered", id)
}

func (s *Server) unregisterSession(id string) {
	s.sessionsMu.Lock()
	if conn, ok := s.sessions[id]; ok {
		conn.Close()
		delete(s.sessions, id)
	}
	s.sessionsMu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	log.Printf("[VADServer] [session %s] unregistered", id)
}

type decodeFunc func([]byte) ([]float32, error)

var decoders = map[string]decodeFunc{
	EncodingPCM16: audio.PCM16ToFloat32,
	EncodingMuLaw: func(b []byte) ([]float32, error) {
		return audio.MuLawToFloat32(b), nil
	},
	EncodingFloat32: audio.Float32LEToFloat32,
}

// session is one WebSocket stream. All writes happen on the read goroutine.
type session struct {
	id      string
	conn    *websocket.Conn
	decode  decodeFunc
	feeder  *vad.Feeder
	metrics *metrics.Metrics

	// segments completed by the current Feed call, keyed by end token
	completed map[int64]*segment.Segment
}

func (s *Server) newSession(conn *websocket.Conn, decode decodeFunc) (*session, error) {
	engine, err := vad.NewStreamEngine(s.config.VAD, s.scorer)
	if err != nil {
		return nil, err
	}

	sess := &session{
		id:        uuid.New().String(),
		conn:      conn,
		decode:    decode,
		metrics:   s.metrics,
		completed: make(map[int64]*segment.Segment),
	}

	sink := s.sink
	sess.feeder = vad.NewFeeder(engine,
		vad.WithVerbose(s.config.Verbose),
		vad.WithSegmentSink(func(ctx context.Context, ev vad.Event) error {
			seg := segment.FromEvent(sess.id, ev)
			sess.completed[ev.Token] = &seg
			if sink == nil {
				return nil
			}
			if err := sink.Consume(ctx, seg); err != nil {
				if sess.metrics != nil {
					sess.metrics.RecordSinkError(ctx, "server")
				}
				return err
			}
			return nil
		}),
	)
	return sess, nil
}

func (sess *session) run(ctx context.Context) {
	ctx, span := trace.InstrumentSession(ctx, sess.id, connType)
	defer span.End()

	_, created := trace.InstrumentConnectionCreated(ctx, sess.id, connType)
	created.End()

	if err := sess.send(Message{Type: MsgSessionCreated, SessionID: sess.id}); err != nil {
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		msgType, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[VADServer] [session %s] read error: %v", sess.id, err)
				_, errSpan := trace.InstrumentConnectionError(ctx, sess.id, connType, err)
				errSpan.End()
			}
			_, closed := trace.InstrumentConnectionClosed(ctx, sess.id, connType)
			closed.End()
			return
		}

		if msgType != websocket.BinaryMessage {
			if err := sess.send(errorMessage(sess.id, errors.New("audio must be sent as binary frames"))); err != nil {
				return
			}
			continue
		}

		samples, err := sess.decode(data)
		if err != nil {
			if err := sess.send(errorMessage(sess.id, err)); err != nil {
				return
			}
			continue
		}

		if !sess.feed(ctx, samples) {
			return
		}
	}
}

// feed runs one chunk through the feeder and reports transitions. It
// returns false when the session must end.
func (sess *session) feed(ctx context.Context, samples []float32) bool {
	events, err := sess.feeder.Feed(ctx, samples)
	if sess.metrics != nil {
		sess.metrics.ObserveEvents(ctx, events)
	}

	for _, ev := range events {
		if ev.Kind == vad.EventUnchanged {
			continue
		}
		trace.AddVADEvent(ctx, ev.Kind.String(), ev.Phase.String(), ev.Token, ev.Probability)

		seg := sess.completed[ev.Token]
		delete(sess.completed, ev.Token)
		if sendErr := sess.send(eventMessage(sess.id, ev, seg)); sendErr != nil {
			return false
		}
	}

	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		log.Printf("%s", trace.LogWithTrace(ctx, fmt.Sprintf("[VADServer] [session %s] stream failed: %v", sess.id, err)))
		sess.send(errorMessage(sess.id, err))
		sess.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "stream failed"),
			time.Now().Add(time.Second))
		return false
	}
	return true
}

func (sess *session) send(msg Message) error {
	if err := sess.conn.WriteJSON(msg); err != nil {
		log.Printf("[VADServer] [session %s] write failed: %v", sess.id, err)
		return err
	}
	return nil
}
