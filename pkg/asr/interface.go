// Package asr transcribes completed speech segments.
package asr

import (
	"context"
	"time"
)

// RecognitionResult represents the output of speech recognition.
type RecognitionResult struct {
	// Text is the recognized text
	Text string

	// Language used for recognition, empty when auto-detected
	Language string

	// Latency of the recognition request
	Latency time.Duration

	// Timestamp when recognition completed
	Timestamp time.Time

	// Additional provider-specific metadata
	Metadata map[string]interface{}
}

// RecognitionConfig contains settings for speech recognition.
type RecognitionConfig struct {
	// Language code (e.g., "en", "zh", empty for auto-detection)
	Language string

	// Model to use (provider-specific, e.g., "whisper-1" for OpenAI)
	Model string

	// Prompt or context to guide the recognition (if supported)
	Prompt string

	// Temperature for sampling (0.0-1.0)
	Temperature float32
}

// Provider transcribes one complete segment of mono float32 samples.
type Provider interface {
	// Name returns the provider name (e.g., "openai-whisper")
	Name() string

	// Recognize performs speech recognition on a complete audio segment.
	Recognize(ctx context.Context, samples []float32, sampleRate int, config RecognitionConfig) (*RecognitionResult, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Error types for ASR operations
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeInvalidConfig
	ErrCodeInvalidAudio
	ErrCodeProviderError
)
