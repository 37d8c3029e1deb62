package agent

import (
	"sync/atomic"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/internal/pkg/metrics"
)

// Status observes every state event on its way to the display. It keeps the
// readiness flags for the health endpoint and mirrors them as gauges.
type Status struct {
	next core.Publisher

	network  atomic.Bool
	session  atomic.Bool
	synced   atomic.Bool
	sessions atomic.Uint64
}

var _ core.Publisher = (*Status)(nil)

// NewStatus returns a Status forwarding to next. A nil next drops events
// after recording them.
func NewStatus(next core.Publisher) *Status {
	return &Status{next: next}
}

func (s *Status) Send(ev core.StateEvent) {
	switch ev.Kind {
	case core.ConnectivityChanged:
		s.network.Store(ev.Value)
		metrics.NetworkUp.Set(metrics.BoolToFloat(ev.Value))
	case core.SessionChanged:
		s.session.Store(ev.Value)
		if ev.Value {
			s.sessions.Add(1)
		}
		metrics.SessionUp.Set(metrics.BoolToFloat(ev.Value))
	case core.TimeSynced:
		s.synced.Store(ev.Value)
		metrics.TimeSynced.Set(metrics.BoolToFloat(ev.Value))
	}

	if s.next != nil {
		s.next.Send(ev)
	}
}

// Ready reports whether the network, the broker session and the clock are all up.
func (s *Status) Ready() bool {
	return s.network.Load() && s.session.Load() && s.synced.Load()
}

// Sessions returns how many times a broker session came up.
func (s *Status) Sessions() uint64 {
	return s.sessions.Load()
}
