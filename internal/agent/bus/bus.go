// Package bus carries state events from the network pipeline to the display.
package bus

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/internal/pkg/metrics"
	"github.com/tramcast/tramcast/pkg/log"
)

// DefaultCapacity is the number of undelivered events kept for a slow consumer.
const DefaultCapacity = 64

// Bus is a bounded many-writer, one-reader queue of state events. Send never
// blocks. When the bus is full the oldest event superseded by the new one
// (same key) is evicted, or else the oldest event overall.
type Bus struct {
	mu       sync.Mutex
	events   []core.StateEvent
	capacity int

	ready   chan struct{}
	dropped atomic.Uint64
}

var _ core.Publisher = (*Bus)(nil)

// New returns a Bus holding at most capacity events.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		events:   make([]core.StateEvent, 0, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Send enqueues a copy of ev.
func (b *Bus) Send(ev core.StateEvent) {
	ev.Status = ev.Status.Clone()

	b.mu.Lock()
	if len(b.events) >= b.capacity {
		b.evictLocked(ev.Key())
	}
	b.events = append(b.events, ev)
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
}

func (b *Bus) evictLocked(key string) {
	idx := slices.IndexFunc(b.events, func(e core.StateEvent) bool { return e.Key() == key })
	if idx < 0 {
		idx = 0
	}
	evicted := b.events[idx]
	b.events = slices.Delete(b.events, idx, idx+1)

	b.dropped.Add(1)
	metrics.BusDroppedTotal.Inc()
	log.Debug("Event bus full, evicted event", "evicted", evicted.String())
}

// Drain returns every pending event in insertion order and empties the bus.
func (b *Bus) Drain() []core.StateEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		return nil
	}
	out := b.events
	b.events = make([]core.StateEvent, 0, b.capacity)
	return out
}

// Ready is signaled after a Send. A single signal may cover several events.
func (b *Bus) Ready() <-chan struct{} {
	return b.ready
}

// Len returns the number of pending events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Dropped returns the number of events evicted so far.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
