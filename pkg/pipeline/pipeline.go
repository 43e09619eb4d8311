package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

type AudioData struct {
	Data       []byte
	SampleRate int
	Channels   int
	MediaType  string // "audio/x-raw", "audio/x-mulaw", etc.
	Timestamp  time.Time
}

type PipelineMessageType int

const (
	MsgTypeAudio PipelineMessageType = iota
	// MsgTypeSegment carries a completed speech segment as raw PCM audio.
	MsgTypeSegment
)

type PipelineMessage struct {
	Type PipelineMessageType

	// SessionID 会话 ID
	SessionID string
	// Timestamp 时间戳
	Timestamp time.Time

	// AudioData 音频数据块
	AudioData *AudioData

	// Metadata 元数据
	Metadata interface{}
}

func (p *PipelineMessage) String() string {
	return fmt.Sprintf("PipelineMessage{Type: %d, SessionID: %s, Timestamp: %s}", p.Type, p.SessionID, p.Timestamp)
}

type Pipeline struct {
	sync.Mutex
	name     string
	bus      Bus
	elements []Element
}

func NewPipeline(name string) *Pipeline {
	return &Pipeline{
		name:     name,
		bus:      NewEventBus(),
		elements: []Element{},
	}
}

func (p *Pipeline) Name() string {
	return p.name
}

func (p *Pipeline) AddElement(element Element) {
	p.Lock()
	defer p.Unlock()
	element.SetBus(p.bus)
	p.elements = append(p.elements, element)
}

func (p *Pipeline) AddElements(elements []Element) {
	p.Lock()
	defer p.Unlock()
	for _, element := range elements {
		element.SetBus(p.bus)
	}
	p.elements = append(p.elements, elements...)
}

// Link forwards a.Out() into b.In() until the returned unlink func is
// called or a.Out() is closed.
func (p *Pipeline) Link(a, b Element) func() {
	done := make(chan struct{})
	go func() {
		for {
			select {
			case msg, ok := <-a.Out():
				if !ok {
					return
				}
				select {
				case b.In() <- msg:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

func (p *Pipeline) Bus() Bus {
	return p.bus
}

// Push 向第一个元素发送消息，队列已满时丢弃
func (p *Pipeline) Push(msg *PipelineMessage) bool {
	p.Lock()
	defer p.Unlock()
	if len(p.elements) == 0 {
		return false
	}
	select {
	case p.elements[0].In() <- msg:
		return true
	default:
		log.Printf("[Pipeline] %s input channel is full, dropping message", p.name)
		return false
	}
}

// Pull 从 pipeline 的最后一个元素获取消息
func (p *Pipeline) Pull() *PipelineMessage {
	p.Lock()
	if len(p.elements) == 0 {
		p.Unlock()
		return nil
	}
	last := p.elements[len(p.elements)-1]
	p.Unlock()
	return <-last.Out()
}

// Start initializes and starts every element in order, then the bus.
func (p *Pipeline) Start(ctx context.Context) error {
	p.Lock()
	defer p.Unlock()
	for _, e := range p.elements {
		if err := e.Init(ctx); err != nil {
			return fmt.Errorf("init %s: %w", e.GetName(), err)
		}
		if err := e.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", e.GetName(), err)
		}
	}
	return p.bus.Start(ctx)
}

func (p *Pipeline) Stop() error {
	p.Lock()
	defer p.Unlock()
	// 倒序停止更稳妥
	for i := len(p.elements) - 1; i >= 0; i-- {
		if err := p.elements[i].Stop(); err != nil {
			return err
		}
	}
	p.bus.Stop()
	return nil
}
