package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/realtime-ai/supervad/pkg/asr"
	"github.com/realtime-ai/supervad/pkg/config"
	"github.com/realtime-ai/supervad/pkg/metrics"
	"github.com/realtime-ai/supervad/pkg/segment"
	"github.com/realtime-ai/supervad/pkg/trace"
	"github.com/realtime-ai/supervad/pkg/vad"
)

// stack is the process-wide setup shared by every subcommand.
type stack struct {
	cfg      *config.Config
	provider *metrics.Provider
	metrics  *metrics.Metrics

	closers []func() error
}

func setup(ctx context.Context) (*stack, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Verbose = true
	}

	traceCfg := trace.DefaultConfig()
	traceCfg.ExporterType = cfg.Trace.Exporter
	traceCfg.OTLPEndpoint = cfg.Trace.OTLPEndpoint
	if err := trace.Initialize(ctx, traceCfg); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	provider, err := metrics.InitProvider(ctx, metrics.ProviderConfig{ServiceVersion: traceCfg.ServiceVersion})
	if err != nil {
		trace.Shutdown(ctx)
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	log.Printf("[SuperVAD] config: activation=%.2f/%d deactivation=%.2f/%d prebuffer=%d scorer=%s",
		cfg.VAD.ActivationThreshold, cfg.VAD.ActivationTokens,
		cfg.VAD.DeactivationThreshold, cfg.VAD.DeactivationTokens,
		cfg.VAD.PrebufferTokens, cfg.Scorer.Kind)

	return &stack{
		cfg:      cfg,
		provider: provider,
		metrics:  metrics.DefaultMetrics(),
	}, nil
}

// newScorer builds the configured scorer. The caller owns it.
func (s *stack) newScorer() (vad.Scorer, error) {
	switch s.cfg.Scorer.Kind {
	case config.ScorerONNX:
		scorer, err := vad.NewONNXScorer(vad.ONNXScorerConfig{
			ModelPath: s.cfg.Scorer.ModelPath,
			Threads:   s.cfg.Scorer.Threads,
		})
		if err != nil {
			return nil, err
		}
		return scorer, nil
	case config.ScorerEnergy:
		ec := vad.DefaultEnergyScorerConfig()
		ec.FloorRMS = s.cfg.Scorer.FloorRMS
		ec.CeilRMS = s.cfg.Scorer.CeilRMS
		scorer, err := vad.NewEnergyScorer(ec)
		if err != nil {
			return nil, err
		}
		return scorer, nil
	default:
		return nil, fmt.Errorf("unknown scorer %q", s.cfg.Scorer.Kind)
	}
}

// newSink writes segments to the segment directory and, when enabled,
// transcribes them. Delivery runs off the token path.
func (s *stack) newSink() (segment.Sink, error) {
	wav, err := segment.NewWAVFileSink(s.cfg.Segments.Dir)
	if err != nil {
		return nil, err
	}
	sinks := []segment.Sink{wav}

	if s.cfg.Transcribe.Enabled {
		provider, err := asr.NewWhisperProvider(asr.WhisperConfig{
			APIKey:  s.cfg.Transcribe.APIKey,
			BaseURL: s.cfg.Transcribe.BaseURL,
			Defaults: asr.RecognitionConfig{
				Model:    s.cfg.Transcribe.Model,
				Language: s.cfg.Transcribe.Language,
			},
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, provider.Close)

		sinks = append(sinks, segment.NewTranscribeSink(provider,
			segment.WithMetrics(s.metrics),
			segment.WithResultHandler(func(seg segment.Segment, res *asr.RecognitionResult) {
				fmt.Printf("[%s] %s\n", seg.ID.String()[:8], res.Text)
			}),
		))
	}

	async := segment.NewAsync(segment.Multi(sinks...), s.cfg.Segments.QueueSize,
		segment.WithErrorHandler(func(seg segment.Segment, err error) {
			log.Printf("[SuperVAD] segment %s delivery failed: %v", seg.ID, err)
			s.metrics.RecordSinkError(context.Background(), "async")
		}),
	)
	// Drain queued segments before the provider closes.
	s.closers = append([]func() error{async.Close}, s.closers...)
	log.Printf("[SuperVAD] writing segments to %s (transcribe=%v)", s.cfg.Segments.Dir, s.cfg.Transcribe.Enabled)
	return async, nil
}

func (s *stack) shutdown(ctx context.Context) error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.provider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := trace.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
