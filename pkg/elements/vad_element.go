package elements

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"sync"
	"time"

	"github.com/realtime-ai/supervad/pkg/audio"
	"github.com/realtime-ai/supervad/pkg/metrics"
	"github.com/realtime-ai/supervad/pkg/pipeline"
	"github.com/realtime-ai/supervad/pkg/segment"
	"github.com/realtime-ai/supervad/pkg/trace"
	"github.com/realtime-ai/supervad/pkg/vad"
)

const elementName = "supervad-element"

// VADMode defines the operating mode of the VAD element
type VADMode int

const (
	// VADModePassthrough forwards all input audio as well as segments
	VADModePassthrough VADMode = iota
	// VADModeSegments only emits completed segments
	VADModeSegments
)

// VADEventPayload is the bus payload for every VAD event
type VADEventPayload struct {
	SessionID   string
	Kind        vad.EventKind
	Token       int64
	Probability float32
	Timestamp   time.Time
	// Segment is set for EventVADSegment only
	Segment *segment.Segment
}

// SuperVADConfig holds configuration for the element
type SuperVADConfig struct {
	VAD vad.Config
	// Scorer is owned by the element and destroyed on Stop
	Scorer vad.Scorer
	Mode   VADMode
	// Sink optionally receives every segment before it is forwarded
	Sink    segment.Sink
	Metrics *metrics.Metrics
	Verbose bool
}

// SuperVADElement runs the hysteresis VAD over a single audio stream. All
// input is consumed by one goroutine, so tokens are processed strictly in
// arrival order.
type SuperVADElement struct {
	*pipeline.BaseElement

	cfg    SuperVADConfig
	feeder *vad.Feeder

	stateLock sync.Mutex
	phase     vad.Phase

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSuperVADElement validates config and creates the element
func NewSuperVADElement(config SuperVADConfig) (*SuperVADElement, error) {
	if config.Scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	if err := config.VAD.Validate(); err != nil {
		return nil, err
	}

	elem := &SuperVADElement{
		BaseElement: pipeline.NewBaseElement(elementName, 100),
		cfg:         config,
	}

	if err := elem.registerProperties(); err != nil {
		return nil, fmt.Errorf("failed to register properties: %w", err)
	}
	return elem, nil
}

func (e *SuperVADElement) registerProperties() error {
	props := []pipeline.PropertyDesc{
		{
			Name:     "activation-threshold",
			Type:     reflect.TypeOf(float32(0)),
			Readable: true,
			Default:  e.cfg.VAD.ActivationThreshold,
		},
		{
			Name:     "deactivation-threshold",
			Type:     reflect.TypeOf(float32(0)),
			Readable: true,
			Default:  e.cfg.VAD.DeactivationThreshold,
		},
		{
			Name:     "mode",
			Type:     reflect.TypeOf(int(0)),
			Writable: true,
			Readable: true,
			Default:  int(e.cfg.Mode),
		},
	}

	for _, prop := range props {
		if err := e.RegisterProperty(prop); err != nil {
			return err
		}
	}
	return nil
}

// Init creates the stream engine
func (e *SuperVADElement) Init(ctx context.Context) error {
	scorer := e.cfg.Scorer
	if e.cfg.Metrics != nil {
		scorer = metrics.WrapScorer(scorer, e.cfg.Metrics)
	}
	engine, err := vad.NewStreamEngine(e.cfg.VAD, scorer)
	if err != nil {
		return fmt.Errorf("failed to create VAD engine: %w", err)
	}
	e.feeder = vad.NewFeeder(engine, vad.WithVerbose(e.cfg.Verbose))

	log.Printf("[SuperVAD] Initialized with activation=%.2f/%d deactivation=%.2f/%d prebuffer=%d mode=%d",
		e.cfg.VAD.ActivationThreshold, e.cfg.VAD.ActivationTokens,
		e.cfg.VAD.DeactivationThreshold, e.cfg.VAD.DeactivationTokens,
		e.cfg.VAD.PrebufferTokens, e.cfg.Mode)
	return nil
}

// Start starts the processing goroutine
func (e *SuperVADElement) Start(ctx context.Context) error {
	if e.feeder == nil {
		return fmt.Errorf("element not initialized")
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.processAudio(ctx)
	}()
	return nil
}

// Stop stops processing and destroys the scorer
func (e *SuperVADElement) Stop() error {
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
		e.cancel = nil
	}

	if e.cfg.Scorer != nil {
		if err := e.cfg.Scorer.Destroy(); err != nil {
			log.Printf("[SuperVAD] Failed to destroy scorer: %v", err)
		}
		e.cfg.Scorer = nil
	}
	return nil
}

func (e *SuperVADElement) processAudio(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-e.BaseElement.InChan:
			if !ok {
				return
			}
			if msg.Type != pipeline.MsgTypeAudio || msg.AudioData == nil || len(msg.AudioData.Data) == 0 {
				continue
			}

			if msg.AudioData.SampleRate != vad.SampleRate {
				log.Printf("[SuperVAD] Dropping %dHz audio, expected %dHz", msg.AudioData.SampleRate, vad.SampleRate)
				continue
			}

			if err := e.handleAudioData(ctx, msg); IsStreamFailure(err) {
				log.Printf("[SuperVAD] [session %s] stream failed, no longer consuming audio", msg.SessionID)
				return
			}
		}
	}
}

// IsStreamFailure reports whether err ends the stream. After a scorer
// failure the feeder rejects all further input.
func IsStreamFailure(err error) bool {
	return vad.IsCode(err, vad.ErrCodeScorerFailure) || vad.IsCode(err, vad.ErrCodeStreamFailed)
}

func (e *SuperVADElement) handleAudioData(ctx context.Context, msg *pipeline.PipelineMessage) error {
	ctx, span := trace.InstrumentElementProcess(ctx, elementName, msg)
	defer span.End()

	samples, err := decodeSamples(msg.AudioData)
	if err != nil {
		log.Printf("[SuperVAD] %v", err)
		trace.RecordError(span, err)
		return nil
	}

	events, err := e.feeder.Feed(ctx, samples)
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.ObserveEvents(ctx, events)
	}
	for _, ev := range events {
		e.handleEvent(ctx, msg.SessionID, ev)
	}
	if err != nil {
		trace.RecordError(span, err)
		e.publishError(msg.SessionID, err)
		if ctx.Err() == nil {
			log.Print(trace.LogWithTrace(ctx, fmt.Sprintf("[SuperVAD] feed failed: %v", err)))
		}
		return err
	}

	if e.mode() == VADModePassthrough {
		e.forward(ctx, msg)
	}
	return nil
}

func (e *SuperVADElement) handleEvent(ctx context.Context, sessionID string, ev vad.Event) {
	e.stateLock.Lock()
	e.phase = ev.Phase
	e.stateLock.Unlock()

	eventType, ok := busEventType(ev.Kind)
	if !ok {
		return
	}
	trace.AddVADEvent(ctx, ev.Kind.String(), ev.Phase.String(), ev.Token, ev.Probability)

	payload := VADEventPayload{
		SessionID:   sessionID,
		Kind:        ev.Kind,
		Token:       ev.Token,
		Probability: ev.Probability,
		Timestamp:   time.Now(),
	}

	if ev.Kind == vad.EventComplete {
		seg := segment.FromEvent(sessionID, ev)
		payload.Segment = &seg
		if e.cfg.Sink != nil {
			if err := e.cfg.Sink.Consume(ctx, seg); err != nil {
				log.Printf("[SuperVAD] Segment sink error: %v", err)
				if e.cfg.Metrics != nil {
					e.cfg.Metrics.RecordSinkError(ctx, "element")
				}
			}
		}
		e.forward(ctx, &pipeline.PipelineMessage{
			Type:      pipeline.MsgTypeSegment,
			SessionID: sessionID,
			Timestamp: seg.CompletedAt,
			AudioData: &pipeline.AudioData{
				Data:       audio.Float32ToPCM16(seg.Samples),
				SampleRate: seg.SampleRate,
				Channels:   1,
				MediaType:  string(pipeline.AudioMediaTypeRaw),
				Timestamp:  seg.CompletedAt,
			},
			Metadata: seg,
		})
	}

	if bus := e.Bus(); bus != nil {
		bus.Publish(pipeline.Event{
			Type:      eventType,
			Timestamp: payload.Timestamp,
			Payload:   payload,
		})
	}
}

func (e *SuperVADElement) publishError(sessionID string, err error) {
	if bus := e.Bus(); bus != nil {
		bus.Publish(pipeline.Event{
			Type:      pipeline.EventError,
			Timestamp: time.Now(),
			Payload:   fmt.Errorf("session %s: %w", sessionID, err),
		})
	}
}

func (e *SuperVADElement) forward(ctx context.Context, msg *pipeline.PipelineMessage) {
	select {
	case e.BaseElement.OutChan <- msg:
	case <-ctx.Done():
	}
}

func (e *SuperVADElement) mode() VADMode {
	v, err := e.GetProperty("mode")
	if err != nil {
		return e.cfg.Mode
	}
	return VADMode(v.(int))
}

// Phase returns the phase after the last processed token
func (e *SuperVADElement) Phase() vad.Phase {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()
	return e.phase
}

func decodeSamples(data *pipeline.AudioData) ([]float32, error) {
	switch pipeline.AudioMediaType(data.MediaType) {
	case pipeline.AudioMediaTypeRaw, "":
		return audio.PCM16ToFloat32(data.Data)
	case pipeline.AudioMediaTypeFloat32:
		return audio.Float32LEToFloat32(data.Data)
	case pipeline.AudioMediaTypeMuLaw:
		return audio.MuLawToFloat32(data.Data), nil
	default:
		return nil, fmt.Errorf("unsupported media type %q", data.MediaType)
	}
}

func busEventType(kind vad.EventKind) (pipeline.EventType, bool) {
	switch kind {
	case vad.EventActivating:
		return pipeline.EventVADActivating, true
	case vad.EventActive:
		return pipeline.EventVADSpeechStart, true
	case vad.EventActivationCanceled:
		return pipeline.EventVADActivationCanceled, true
	case vad.EventDeactivating:
		return pipeline.EventVADDeactivating, true
	case vad.EventDeactivationCanceled:
		return pipeline.EventVADDeactivationCanceled, true
	case vad.EventComplete:
		return pipeline.EventVADSegment, true
	default:
		return 0, false
	}
}
