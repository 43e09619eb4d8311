package vad

import (
	"fmt"
	"math"
)

const (
	// SampleRate is the only sample rate the SuperVAD model accepts.
	SampleRate = 16000

	// TokenSize is the number of samples in one token (20ms at 16kHz).
	TokenSize = 320

	// WindowTokens is the number of tokens the scorer sees at once.
	WindowTokens = 10

	// WindowSize is the length of the scorer window in samples.
	WindowSize = TokenSize * WindowTokens
)

// Config holds the hysteresis parameters of a stream engine. It is fixed for
// the lifetime of the engine.
type Config struct {
	// ActivationThreshold is the probability at or above which a token counts
	// as speech. Range: [0, 1].
	ActivationThreshold float32 `yaml:"activation_threshold"`

	// ActivationTokens is the number of agreeing tokens needed before a
	// segment becomes Active. A value of 1 activates on the first token.
	ActivationTokens int `yaml:"activation_tokens"`

	// DeactivationThreshold is the probability at or below which a token
	// counts as silence while a segment is open. Range: [0, 1].
	DeactivationThreshold float32 `yaml:"deactivation_threshold"`

	// DeactivationTokens is the number of agreeing silent tokens needed to
	// complete a segment.
	DeactivationTokens int `yaml:"deactivation_tokens"`

	// PrebufferTokens is the number of most recent tokens kept as pre-roll
	// and prepended to every segment.
	PrebufferTokens int `yaml:"prebuffer_tokens"`
}

// DefaultConfig returns parameters tuned for conversational speech captured
// from a laptop microphone.
func DefaultConfig() Config {
	return Config{
		ActivationThreshold:   0.5,
		ActivationTokens:      3,
		DeactivationThreshold: 0.3,
		DeactivationTokens:    25,
		PrebufferTokens:       10,
	}
}

// Validate checks every parameter and returns an ErrCodeInvalidConfiguration
// error describing the first violation.
func (c Config) Validate() error {
	if err := validateThreshold("activation_threshold", c.ActivationThreshold); err != nil {
		return err
	}
	if err := validateThreshold("deactivation_threshold", c.DeactivationThreshold); err != nil {
		return err
	}
	if c.ActivationTokens < 1 {
		return invalidConfig("activation_tokens must be >= 1, got %d", c.ActivationTokens)
	}
	if c.DeactivationTokens < 1 {
		return invalidConfig("deactivation_tokens must be >= 1, got %d", c.DeactivationTokens)
	}
	if c.PrebufferTokens < 1 {
		return invalidConfig("prebuffer_tokens must be >= 1, got %d", c.PrebufferTokens)
	}
	return nil
}

func validateThreshold(name string, v float32) error {
	if math.IsNaN(float64(v)) || v < 0 || v > 1 {
		return invalidConfig("%s must be between 0 and 1, got %v", name, v)
	}
	return nil
}

func invalidConfig(format string, args ...interface{}) error {
	return &Error{
		Code:    ErrCodeInvalidConfiguration,
		Message: fmt.Sprintf(format, args...),
	}
}
