// Package capture reads audio from the default input device.
package capture

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/realtime-ai/supervad/pkg/pipeline"
	"github.com/realtime-ai/supervad/pkg/vad"
)

const (
	SampleRate = vad.SampleRate
	Channels   = 1

	// PeriodMilliseconds is the device callback period; one period is one token.
	PeriodMilliseconds = 20
)

// Handler receives one audio message per device callback. It runs on the
// audio thread and must not block.
type Handler func(msg *pipeline.PipelineMessage)

// Microphone captures 16kHz mono S16 audio.
type Microphone struct {
	mu sync.Mutex

	sessionID    string
	handler      Handler
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	started      bool
}

// NewMicrophone creates a microphone whose messages carry sessionID.
func NewMicrophone(sessionID string, handler Handler) *Microphone {
	if handler == nil {
		handler = func(*pipeline.PipelineMessage) {}
	}
	return &Microphone{
		sessionID: sessionID,
		handler:   handler,
	}
}

// Start opens the default capture device and starts delivering audio.
func (m *Microphone) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Printf("[Capture] %s", message)
	})
	if err != nil {
		return fmt.Errorf("failed to initialize context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.PeriodSizeInMilliseconds = PeriodMilliseconds
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = Channels
	deviceConfig.SampleRate = SampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, framecount uint32) {
			m.onData(inputSamples)
		},
	})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	m.audioContext = ctx
	m.device = device
	m.started = true
	log.Printf("[Capture] microphone started at %d Hz", SampleRate)
	return nil
}

// onData copies the device buffer, which malgo reuses between callbacks.
func (m *Microphone) onData(input []byte) {
	if len(input) == 0 {
		return
	}
	data := make([]byte, len(input))
	copy(data, input)

	m.handler(&pipeline.PipelineMessage{
		Type:      pipeline.MsgTypeAudio,
		SessionID: m.sessionID,
		Timestamp: time.Now(),
		AudioData: &pipeline.AudioData{
			Data:       data,
			SampleRate: SampleRate,
			Channels:   Channels,
			MediaType:  string(pipeline.AudioMediaTypeRaw),
			Timestamp:  time.Now(),
		},
	})
}

// Close stops the device and releases the audio context.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}

	if m.device != nil {
		m.device.Stop()
		m.device.Uninit()
		m.device = nil
	}
	if m.audioContext != nil {
		if err := m.audioContext.Uninit(); err != nil {
			log.Printf("[Capture] context uninit: %v", err)
		}
		m.audioContext.Free()
		m.audioContext = nil
	}
	m.started = false
	return nil
}
