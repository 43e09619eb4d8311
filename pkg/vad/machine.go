package vad

// Machine is the hysteresis reducer. It holds only immutable parameters;
// all mutable data lives in State, which Step consumes and returns.
//
// Step takes ownership of the buffers in the state passed to it: the
// returned State may share memory with the argument, so callers must
// continue from the returned value and drop the old one.
type Machine struct {
	cfg          Config
	tokenSize    int
	preRollLimit int
}

// NewMachine validates cfg and returns a machine for tokens of tokenSize samples.
func NewMachine(cfg Config, tokenSize int) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tokenSize <= 0 {
		return nil, invalidConfig("token size must be positive, got %d", tokenSize)
	}
	return &Machine{
		cfg:          cfg,
		tokenSize:    tokenSize,
		preRollLimit: cfg.PrebufferTokens * tokenSize,
	}, nil
}

// Config returns the machine parameters.
func (m *Machine) Config() Config {
	return m.cfg
}

// Step advances the machine by one token with speech probability p. The
// transition is chosen from the phase the state is in on entry, so one token
// causes at most one transition.
func (m *Machine) Step(s State, token []float32, p float32) (State, Event) {
	s.PreRoll = pushPreRoll(s.PreRoll, token, m.preRollLimit)

	var kind EventKind
	var segment []float32
	switch s.Phase {
	case PhaseDeactivated:
		s, kind = m.stepDeactivated(s, p)
	case PhaseActivating:
		s, kind = m.stepActivating(s, token, p)
	case PhaseActive:
		s, kind = m.stepActive(s, token, p)
	case PhaseDeactivating:
		s, kind, segment = m.stepDeactivating(s, token, p)
	}

	return s, Event{
		Kind:        kind,
		Phase:       s.Phase,
		Probability: p,
		Segment:     segment,
	}
}

func (m *Machine) stepDeactivated(s State, p float32) (State, EventKind) {
	if p < m.cfg.ActivationThreshold {
		return s, EventUnchanged
	}

	// The pre-roll already ends with the current token.
	s.Active = append([]float32(nil), s.PreRoll...)
	if m.cfg.ActivationTokens <= 1 {
		s.Phase = PhaseActive
		s.Counter = 0
		return s, EventActive
	}
	s.Phase = PhaseActivating
	s.Counter = 1
	return s, EventActivating
}

func (m *Machine) stepActivating(s State, token []float32, p float32) (State, EventKind) {
	s.Active = append(s.Active, token...)
	if p >= m.cfg.ActivationThreshold {
		s.Counter++
	} else {
		s.Counter--
	}

	if s.Counter <= 0 {
		s.Phase = PhaseDeactivated
		s.Counter = 0
		s.Active = nil
		return s, EventActivationCanceled
	}
	if s.Counter >= m.cfg.ActivationTokens {
		s.Phase = PhaseActive
		s.Counter = 0
		return s, EventActive
	}
	return s, EventUnchanged
}

func (m *Machine) stepActive(s State, token []float32, p float32) (State, EventKind) {
	s.Active = append(s.Active, token...)
	if p <= m.cfg.DeactivationThreshold {
		s.Phase = PhaseDeactivating
		s.Counter = 1
		return s, EventDeactivating
	}
	return s, EventUnchanged
}

func (m *Machine) stepDeactivating(s State, token []float32, p float32) (State, EventKind, []float32) {
	s.Active = append(s.Active, token...)

	if p >= m.cfg.ActivationThreshold {
		s.Phase = PhaseActive
		s.Counter = 0
		return s, EventDeactivationCanceled, nil
	}

	if p <= m.cfg.DeactivationThreshold {
		s.Counter++
	} else {
		s.Counter--
	}

	if s.Counter <= 0 {
		s.Phase = PhaseActive
		s.Counter = 0
		return s, EventDeactivationCanceled, nil
	}
	if s.Counter >= m.cfg.DeactivationTokens {
		segment := s.Active
		s.Active = nil
		s.Phase = PhaseDeactivated
		s.Counter = 0
		return s, EventComplete, segment
	}
	return s, EventUnchanged, nil
}

// pushPreRoll returns a new slice holding pre followed by token, trimmed from
// the front to at most limit samples. pre is never modified.
func pushPreRoll(pre, token []float32, limit int) []float32 {
	total := len(pre) + len(token)
	drop := 0
	if total > limit {
		drop = total - limit
	}

	out := make([]float32, 0, total-drop)
	if drop < len(pre) {
		out = append(out, pre[drop:]...)
		return append(out, token...)
	}
	return append(out, token[drop-len(pre):]...)
}
