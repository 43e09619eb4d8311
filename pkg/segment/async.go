package segment

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrClosed is returned by Async.Consume after Close.
var ErrClosed = errors.New("segment sink closed")

// Async hands segments to a wrapped sink from a single goroutine, in order.
// Consume only blocks while the queue is full.
type Async struct {
	sink    Sink
	queue   chan Segment
	onError func(Segment, error)

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// AsyncOption configures an Async sink.
type AsyncOption func(*Async)

// WithErrorHandler is called from the worker for every failed delivery.
// By default failures are logged.
func WithErrorHandler(fn func(Segment, error)) AsyncOption {
	return func(a *Async) {
		a.onError = fn
	}
}

// NewAsync starts the worker. queueSize below 1 is treated as 1.
func NewAsync(sink Sink, queueSize int, opts ...AsyncOption) *Async {
	if queueSize < 1 {
		queueSize = 1
	}
	a := &Async{
		sink:  sink,
		queue: make(chan Segment, queueSize),
		onError: func(seg Segment, err error) {
			log.Printf("[Segment] sink failed for %s: %v", seg.ID, err)
		},
	}
	for _, opt := range opts {
		opt(a)
	}

	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for seg := range a.queue {
		// The producer's context may be long gone by now.
		if err := a.sink.Consume(context.Background(), seg); err != nil {
			a.onError(seg, err)
		}
	}
}

// Consume enqueues seg.
func (a *Async) Consume(ctx context.Context, seg Segment) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}

	select {
	case a.queue <- seg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting segments and waits for the queue to drain.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	a.wg.Wait()
	return nil
}
