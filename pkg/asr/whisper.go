package asr

import (
	"bytes"
	"context"
	"log"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/realtime-ai/supervad/pkg/audio"
)

// minSegmentDuration is the shortest audio the Whisper API accepts.
const minSegmentDuration = 100 * time.Millisecond

// WhisperConfig configures a WhisperProvider.
type WhisperConfig struct {
	APIKey string
	// BaseURL overrides the OpenAI endpoint, e.g. for a compatible local server.
	BaseURL string
	// Defaults apply when a Recognize call leaves a field empty.
	Defaults RecognitionConfig
}

// WhisperProvider implements the Provider interface using OpenAI's Whisper API.
type WhisperProvider struct {
	client   *openai.Client
	defaults RecognitionConfig
}

// NewWhisperProvider creates a new OpenAI Whisper ASR provider.
func NewWhisperProvider(cfg WhisperConfig) (*WhisperProvider, error) {
	if cfg.APIKey == "" {
		return nil, &Error{
			Code:    ErrCodeInvalidConfig,
			Message: "OpenAI API key is required",
		}
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
		log.Printf("[Whisper] Using BaseURL: %s", clientConfig.BaseURL)
	}

	return &WhisperProvider{
		client:   openai.NewClientWithConfig(clientConfig),
		defaults: cfg.Defaults,
	}, nil
}

// Name returns the provider name.
func (w *WhisperProvider) Name() string {
	return "openai-whisper"
}

// Recognize encodes samples as WAV and sends them to the transcription endpoint.
func (w *WhisperProvider) Recognize(ctx context.Context, samples []float32, sampleRate int, config RecognitionConfig) (*RecognitionResult, error) {
	if sampleRate <= 0 {
		return nil, &Error{
			Code:    ErrCodeInvalidAudio,
			Message: "sample rate must be positive",
		}
	}
	if time.Duration(len(samples))*time.Second/time.Duration(sampleRate) < minSegmentDuration {
		return nil, &Error{
			Code:    ErrCodeInvalidAudio,
			Message: "audio segment is too short",
		}
	}

	wavData, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeInvalidAudio,
			Message: "failed to encode WAV",
			Err:     err,
		}
	}

	config = w.withDefaults(config)
	req := openai.AudioRequest{
		Model:       config.Model,
		FilePath:    "segment.wav", // Filename hint for API
		Reader:      bytes.NewReader(wavData),
		Prompt:      config.Prompt,
		Language:    config.Language,
		Temperature: config.Temperature,
	}

	startTime := time.Now()
	resp, err := w.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeProviderError,
			Message: "Whisper API request failed",
			Err:     err,
		}
	}

	return &RecognitionResult{
		Text:      resp.Text,
		Language:  config.Language,
		Latency:   time.Since(startTime),
		Timestamp: time.Now(),
		Metadata: map[string]interface{}{
			"model": req.Model,
		},
	}, nil
}

func (w *WhisperProvider) withDefaults(config RecognitionConfig) RecognitionConfig {
	if config.Model == "" {
		config.Model = w.defaults.Model
	}
	if config.Model == "" {
		config.Model = openai.Whisper1
	}
	if config.Language == "" {
		config.Language = w.defaults.Language
	}
	if config.Prompt == "" {
		config.Prompt = w.defaults.Prompt
	}
	if config.Temperature == 0 {
		config.Temperature = w.defaults.Temperature
	}
	return config
}

// Close releases any resources held by the provider.
func (w *WhisperProvider) Close() error {
	return nil
}

var _ Provider = (*WhisperProvider)(nil)
