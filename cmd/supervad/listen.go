package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/realtime-ai/supervad/pkg/capture"
	"github.com/realtime-ai/supervad/pkg/elements"
	"github.com/realtime-ai/supervad/pkg/pipeline"
	"github.com/realtime-ai/supervad/pkg/segment"
	"github.com/realtime-ai/supervad/pkg/trace"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Segment speech from the default microphone",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runListen(ctx)
	},
}

func runListen(ctx context.Context) error {
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

	scorer, err := st.newScorer()
	if err != nil {
		return err
	}
	sink, err := st.newSink()
	if err != nil {
		scorer.Destroy()
		return err
	}

	// The element owns the scorer from here on.
	vadElement, err := elements.NewSuperVADElement(elements.SuperVADConfig{
		VAD:     st.cfg.VAD,
		Scorer:  scorer,
		Mode:    elements.VADModeSegments,
		Sink:    sink,
		Metrics: st.metrics,
		Verbose: st.cfg.Verbose,
	})
	if err != nil {
		scorer.Destroy()
		return err
	}

	sessionID := uuid.New().String()
	ctx, span := trace.InstrumentSession(ctx, sessionID, "microphone")
	defer span.End()

	p := pipeline.NewPipeline("supervad-listen")
	p.AddElement(vadElement)

	events := make(chan pipeline.Event, 64)
	for _, t := range []pipeline.EventType{
		pipeline.EventVADSpeechStart,
		pipeline.EventVADSegment,
		pipeline.EventError,
	} {
		p.Bus().Subscribe(t, events)
	}

	_, startSpan := trace.InstrumentPipelineStart(ctx, p.Name(), []string{vadElement.GetName()})
	err = p.Start(ctx)
	trace.RecordError(startSpan, err)
	startSpan.End()
	if err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	defer func() {
		_, stopSpan := trace.InstrumentPipelineStop(ctx, p.Name())
		trace.RecordError(stopSpan, p.Stop())
		stopSpan.End()
	}()

	mic := capture.NewMicrophone(sessionID, func(msg *pipeline.PipelineMessage) {
		p.Push(msg)
	})
	if err := mic.Start(); err != nil {
		return err
	}
	defer mic.Close()

	st.metrics.ActiveSessions.Add(ctx, 1)
	defer st.metrics.ActiveSessions.Add(context.Background(), -1)

	log.Printf("[SuperVAD] listening, session %s (Ctrl+C to stop)", sessionID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return logBusEvents(gctx, events)
	})
	go drainSegments(p)

	err = g.Wait()
	trace.RecordError(span, err)
	return err
}

// logBusEvents returns the first stream failure, which ends the session.
func logBusEvents(ctx context.Context, events <-chan pipeline.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-events:
			switch payload := evt.Payload.(type) {
			case elements.VADEventPayload:
				if payload.Segment != nil {
					log.Printf("[SuperVAD] segment %s: %.2fs (tokens %d-%d)",
						payload.Segment.ID, payload.Segment.Duration().Seconds(),
						payload.Segment.StartToken, payload.Segment.EndToken)
					continue
				}
				log.Printf("[SuperVAD] %s at token %d (p=%.2f)", evt.Type, payload.Token, payload.Probability)
			case error:
				if elements.IsStreamFailure(payload) {
					return payload
				}
				log.Printf("[SuperVAD] %v", payload)
			}
		}
	}
}

// drainSegments consumes the element output so it never blocks. Sinks have
// already seen every segment by the time it arrives here.
func drainSegments(p *pipeline.Pipeline) {
	for {
		msg := p.Pull()
		if msg == nil {
			return
		}
		if seg, ok := msg.Metadata.(segment.Segment); ok && verbose {
			log.Printf("[SuperVAD] forwarded segment %s (%d bytes)", seg.ID, len(msg.AudioData.Data))
		}
	}
}
