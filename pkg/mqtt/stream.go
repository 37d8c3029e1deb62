package mqtt

import (
	"sync"
	"sync/atomic"

	"github.com/tramcast/tramcast/pkg/log"
)

// stream is the event channel shared by both client implementations.
// Connected may be reported many times, Disconnected at most once.
type stream struct {
	cfg *ClientConfig

	ch         chan Event
	done       chan struct{}
	closeOnce  sync.Once
	connected  atomic.Bool
	terminated atomic.Bool
}

func newStream(cfg *ClientConfig) *stream {
	return &stream{
		cfg:  cfg,
		ch:   make(chan Event, cfg.EventBuffer),
		done: make(chan struct{}),
	}
}

// emit blocks until the event is consumed or the stream is closed, so a slow
// consumer applies backpressure to the network reader.
func (s *stream) emit(ev Event) {
	if s.terminated.Load() {
		return
	}
	select {
	case s.ch <- ev:
	case <-s.done:
	}
}

// offer never blocks. It is used from the consumer's own goroutine.
func (s *stream) offer(ev Event) {
	if s.terminated.Load() {
		return
	}
	select {
	case s.ch <- ev:
	default:
		log.Warn("MQTT event stream full, dropping event", "kind", ev.Kind, "topic", ev.Topic)
	}
}

func (s *stream) up() {
	s.connected.Store(true)
	s.emit(Event{Kind: EventConnected})
}

func (s *stream) down(err error) {
	s.connected.Store(false)
	if !s.terminated.CompareAndSwap(false, true) {
		return
	}
	select {
	case s.ch <- Event{Kind: EventDisconnected, Err: err}:
	case <-s.done:
	}
}

// deliver emits one Received event per frame of the publication.
func (s *stream) deliver(id uint16, topic string, payload []byte) {
	bufferSize := 0
	if s.cfg.fragments(topic) {
		bufferSize = s.cfg.BufferSize
	}
	// The library may reuse its buffer once the callback returns.
	owned := append([]byte(nil), payload...)
	for _, m := range Fragment(id, topic, owned, bufferSize) {
		s.emit(Event{Kind: EventReceived, Message: &m})
	}
}

func (s *stream) close() {
	s.closeOnce.Do(func() { close(s.done) })
}
