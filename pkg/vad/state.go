package vad

// Phase is the hysteresis phase of a stream engine.
type Phase int

const (
	// PhaseDeactivated is the initial phase and the phase reached after
	// every completed or canceled segment.
	PhaseDeactivated Phase = iota
	// PhaseActivating means speech was seen but not yet confirmed.
	PhaseActivating
	// PhaseActive means a segment is open.
	PhaseActive
	// PhaseDeactivating means silence was seen but not yet confirmed.
	PhaseDeactivating
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseDeactivated:
		return "deactivated"
	case PhaseActivating:
		return "activating"
	case PhaseActive:
		return "active"
	case PhaseDeactivating:
		return "deactivating"
	default:
		return "unknown"
	}
}

// EventKind enumerates the outcomes of processing one token.
type EventKind int

const (
	EventUnchanged EventKind = iota
	EventActivating
	EventActive
	EventActivationCanceled
	EventDeactivating
	EventDeactivationCanceled
	EventComplete
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventUnchanged:
		return "unchanged"
	case EventActivating:
		return "activating"
	case EventActive:
		return "active"
	case EventActivationCanceled:
		return "activation-canceled"
	case EventDeactivating:
		return "deactivating"
	case EventDeactivationCanceled:
		return "deactivation-canceled"
	case EventComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Event is the result of processing one token.
type Event struct {
	// Kind is the transition that happened.
	Kind EventKind

	// Phase is the phase after the token was processed.
	Phase Phase

	// Token is the zero-based sequence number of the token within the
	// stream. Set by StreamEngine; a bare Machine leaves it zero.
	Token int64

	// Probability is the scorer output for the token.
	Probability float32

	// Segment holds the samples of the completed utterance, in original
	// order. Only set when Kind is EventComplete.
	Segment []float32
}

// State is the complete mutable state of the hysteresis machine.
type State struct {
	Phase Phase

	// Counter is only meaningful while Activating or Deactivating.
	Counter int

	// PreRoll holds the most recent PrebufferTokens tokens.
	PreRoll []float32

	// Active holds the samples of the segment being built.
	Active []float32
}
