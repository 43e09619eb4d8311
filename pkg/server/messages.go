package server

import (
	"github.com/realtime-ai/supervad/pkg/segment"
	"github.com/realtime-ai/supervad/pkg/vad"
)

// Message types sent to the client as JSON text frames.
const (
	MsgSessionCreated = "session.created"
	MsgError          = "error"
)

// Message is one server-to-client frame. Event frames use the event kind
// ("activating", "active", ..., "complete") as Type.
type Message struct {
	Type        string   `json:"type"`
	SessionID   string   `json:"session_id"`
	Token       *int64   `json:"token,omitempty"`
	Probability *float32 `json:"probability,omitempty"`
	Phase       string   `json:"phase,omitempty"`

	// Set on "complete" only.
	SegmentID  string `json:"segment_id,omitempty"`
	Samples    int    `json:"samples,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`

	Error string `json:"error,omitempty"`
}

func eventMessage(sessionID string, ev vad.Event, seg *segment.Segment) Message {
	token, p := ev.Token, ev.Probability
	msg := Message{
		Type:        ev.Kind.String(),
		SessionID:   sessionID,
		Token:       &token,
		Probability: &p,
		Phase:       ev.Phase.String(),
	}
	if seg != nil {
		msg.SegmentID = seg.ID.String()
		msg.Samples = len(seg.Samples)
		msg.DurationMs = seg.Duration().Milliseconds()
	}
	return msg
}

func errorMessage(sessionID string, err error) Message {
	return Message{Type: MsgError, SessionID: sessionID, Error: err.Error()}
}
