package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/realtime-ai/supervad/pkg/audio"
	"github.com/realtime-ai/supervad/pkg/metrics"
	"github.com/realtime-ai/supervad/pkg/segment"
	"github.com/realtime-ai/supervad/pkg/trace"
	"github.com/realtime-ai/supervad/pkg/vad"
)

var chunkMs int

var fileCmd = &cobra.Command{
	Use:   "file <input.wav>",
	Short: "Segment a 16kHz mono 16-bit WAV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFile(cmd.Context(), args[0])
	},
}

func init() {
	fileCmd.Flags().IntVar(&chunkMs, "chunk-ms", 100, "feed the file in chunks of this many milliseconds")
}

func runFile(ctx context.Context, path string) error {
	st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.shutdown(shutdownCtx); err != nil {
			log.Printf("[SuperVAD] shutdown: %v", err)
		}
	}()

	var samples []float32
	err = trace.WithSpan(ctx, "file.decode", func(ctx context.Context) error {
		var err error
		samples, err = readWAV(path)
		return err
	}, oteltrace.WithAttributes(attribute.String("file.path", path)))
	if err != nil {
		return err
	}

	scorer, err := st.newScorer()
	if err != nil {
		return err
	}
	defer scorer.Destroy()

	sink, err := st.newSink()
	if err != nil {
		return err
	}

	engine, err := vad.NewStreamEngine(st.cfg.VAD, metrics.WrapScorer(scorer, st.metrics))
	if err != nil {
		return err
	}

	sessionID := uuid.New().String()
	ctx, span := trace.InstrumentSession(ctx, sessionID, "file")
	defer span.End()

	feeder := vad.NewFeeder(engine,
		vad.WithVerbose(st.cfg.Verbose),
		vad.WithSegmentSink(segment.Handler(sessionID, sink)),
	)

	chunk := vad.SampleRate * chunkMs / 1000
	if chunk < 1 {
		chunk = vad.TokenSize
	}

	segments := 0
	for start := 0; start < len(samples); start += chunk {
		end := min(start+chunk, len(samples))
		events, err := feeder.Feed(ctx, samples[start:end])
		st.metrics.ObserveEvents(ctx, events)
		for _, ev := range events {
			if ev.Kind == vad.EventUnchanged {
				continue
			}
			trace.AddVADEvent(ctx, ev.Kind.String(), ev.Phase.String(), ev.Token, ev.Probability)
			if ev.Kind == vad.EventComplete {
				segments++
				log.Printf("[SuperVAD] segment %d ends at %.2fs (%.2fs long)",
					segments, tokenTime(ev.Token+1).Seconds(),
					float64(len(ev.Segment))/vad.SampleRate)
			}
		}
		if err != nil {
			return err
		}
	}

	trace.SetAttributes(span,
		attribute.Int("file.segments", segments),
		attribute.Int64("file.tokens", int64(len(samples)/vad.TokenSize)),
	)
	if phase := feeder.Phase(); phase != vad.PhaseDeactivated {
		log.Printf("[SuperVAD] file ended while %s, trailing speech not emitted", phase)
	}
	log.Printf("[SuperVAD] %s: %.2fs of audio, %d segments", path,
		float64(len(samples))/vad.SampleRate, segments)
	return nil
}

func readWAV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	samples, rate, err := audio.DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if rate != vad.SampleRate {
		return nil, fmt.Errorf("%s is %d Hz, expected %d Hz", path, rate, vad.SampleRate)
	}
	return samples, nil
}

func tokenTime(tokens int64) time.Duration {
	return time.Duration(tokens) * vad.TokenSize * time.Second / vad.SampleRate
}
