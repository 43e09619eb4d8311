// Package config loads runtime settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/realtime-ai/supervad/pkg/vad"
)

const (
	ScorerONNX   = "onnx"
	ScorerEnergy = "energy"
)

type Scorer struct {
	// Kind is "onnx" or "energy"
	Kind      string  `yaml:"kind"`
	ModelPath string  `yaml:"model_path"`
	Threads   int     `yaml:"threads"`
	FloorRMS  float64 `yaml:"floor_rms"`
	CeilRMS   float64 `yaml:"ceil_rms"`
}

type Server struct {
	Addr string `yaml:"addr"`
	// MaxSessions limits concurrent streams; 0 means no limit
	MaxSessions int `yaml:"max_sessions"`
	// ReadLimit caps a single websocket frame, in bytes
	ReadLimit int64 `yaml:"read_limit"`
}

type Segments struct {
	Dir       string `yaml:"dir"`
	QueueSize int    `yaml:"queue_size"`
}

type Transcribe struct {
	Enabled  bool   `yaml:"enabled"`
	APIKey   string `yaml:"-"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

type Trace struct {
	// Exporter is "stdout", "otlp" or "none"
	Exporter     string `yaml:"exporter"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

type Config struct {
	VAD        vad.Config `yaml:"vad"`
	Scorer     Scorer     `yaml:"scorer"`
	Server     Server     `yaml:"server"`
	Segments   Segments   `yaml:"segments"`
	Transcribe Transcribe `yaml:"transcribe"`
	Trace      Trace      `yaml:"trace"`
	Verbose    bool       `yaml:"verbose"`
}

// Default returns the built-in settings.
func Default() *Config {
	energy := vad.DefaultEnergyScorerConfig()
	return &Config{
		VAD: vad.DefaultConfig(),
		Scorer: Scorer{
			Kind:      ScorerONNX,
			ModelPath: "models/supervad.onnx",
			Threads:   1,
			FloorRMS:  energy.FloorRMS,
			CeilRMS:   energy.CeilRMS,
		},
		Server: Server{
			Addr:        ":8080",
			MaxSessions: 64,
			ReadLimit:   1 << 20,
		},
		Segments: Segments{
			Dir:       "segments",
			QueueSize: 16,
		},
		Trace: Trace{
			Exporter:     "none",
			OTLPEndpoint: "localhost:4317",
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// SUPERVAD_CONFIG (if set) and the environment, then validates it.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("SUPERVAD_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []string
	setFloat32 := func(key string, dst *float32) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 32)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q: %v", key, v, err))
				return
			}
			*dst = float32(f)
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q: %v", key, v, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q: %v", key, v, err))
				return
			}
			*dst = b
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setFloat32("SUPERVAD_ACTIVATION_THRESHOLD", &c.VAD.ActivationThreshold)
	setInt("SUPERVAD_ACTIVATION_TOKENS", &c.VAD.ActivationTokens)
	setFloat32("SUPERVAD_DEACTIVATION_THRESHOLD", &c.VAD.DeactivationThreshold)
	setInt("SUPERVAD_DEACTIVATION_TOKENS", &c.VAD.DeactivationTokens)
	setInt("SUPERVAD_PREBUFFER_TOKENS", &c.VAD.PrebufferTokens)

	setString("SUPERVAD_SCORER", &c.Scorer.Kind)
	setString("SUPERVAD_MODEL_PATH", &c.Scorer.ModelPath)
	setInt("SUPERVAD_THREADS", &c.Scorer.Threads)

	setString("SUPERVAD_ADDR", &c.Server.Addr)
	setInt("SUPERVAD_MAX_SESSIONS", &c.Server.MaxSessions)
	setString("SUPERVAD_SEGMENT_DIR", &c.Segments.Dir)

	setBool("SUPERVAD_TRANSCRIBE", &c.Transcribe.Enabled)
	setString("OPENAI_API_KEY", &c.Transcribe.APIKey)
	setString("OPENAI_BASE_URL", &c.Transcribe.BaseURL)
	setString("SUPERVAD_TRANSCRIBE_LANGUAGE", &c.Transcribe.Language)

	setString("TRACE_EXPORTER", &c.Trace.Exporter)
	setString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Trace.OTLPEndpoint)
	setBool("SUPERVAD_VERBOSE", &c.Verbose)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.VAD.Validate(); err != nil {
		return err
	}
	switch c.Scorer.Kind {
	case ScorerONNX:
		if c.Scorer.ModelPath == "" {
			return fmt.Errorf("scorer.model_path is required for the onnx scorer")
		}
	case ScorerEnergy:
	default:
		return fmt.Errorf("unknown scorer %q, expected %q or %q", c.Scorer.Kind, ScorerONNX, ScorerEnergy)
	}
	if c.Server.MaxSessions < 0 {
		return fmt.Errorf("server.max_sessions must be >= 0, got %d", c.Server.MaxSessions)
	}
	if c.Transcribe.Enabled && c.Transcribe.APIKey == "" {
		return fmt.Errorf("transcription enabled but OPENAI_API_KEY is not set")
	}
	return nil
}
