package pipeline

import (
	"context"
	"sync"
	"time"
)

// EventType identifies a bus event.
type EventType int

const (
	EventError EventType = iota
	EventWarning

	// EventVADActivating: a token crossed the activation threshold.
	EventVADActivating
	// EventVADSpeechStart: activation confirmed, a segment is open.
	EventVADSpeechStart
	EventVADActivationCanceled
	EventVADDeactivating
	EventVADDeactivationCanceled
	// EventVADSegment carries a completed segment.
	EventVADSegment
)

func (t EventType) String() string {
	switch t {
	case EventError:
		return "error"
	case EventWarning:
		return "warning"
	case EventVADActivating:
		return "vad.activating"
	case EventVADSpeechStart:
		return "vad.speech_start"
	case EventVADActivationCanceled:
		return "vad.activation_canceled"
	case EventVADDeactivating:
		return "vad.deactivating"
	case EventVADDeactivationCanceled:
		return "vad.deactivation_canceled"
	case EventVADSegment:
		return "vad.segment"
	default:
		return "unknown"
	}
}

type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// Bus fans events out to subscriber channels. Publish never blocks: a
// subscriber whose channel is full misses the event.
type Bus interface {
	Subscribe(eventType EventType, ch chan<- Event)
	Unsubscribe(eventType EventType, ch chan<- Event)
	// Publish reports whether every subscriber received the event.
	Publish(evt Event) bool
	Start(ctx context.Context) error
	Stop()
}

type eventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan<- Event
	stopped     bool
}

func NewEventBus() Bus {
	return &eventBus{
		subscribers: make(map[EventType][]chan<- Event),
	}
}

func (b *eventBus) Subscribe(eventType EventType, ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
}

func (b *eventBus) Unsubscribe(eventType EventType, ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[eventType]
	for i, sub := range subs {
		if sub == ch {
			b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (b *eventBus) Publish(evt Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return false
	}

	delivered := true
	for _, ch := range b.subscribers[evt.Type] {
		select {
		case ch <- evt:
		default:
			delivered = false
		}
	}
	return delivered
}

// Start re-enables publishing after Stop. A new bus is already started.
func (b *eventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = false
	return nil
}

// Stop drops every later event until Start is called again.
func (b *eventBus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
}
