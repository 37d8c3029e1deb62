package display

import (
	"time"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/pkg/mqtt/topic"
)

// Snapshot is the display's fold of every state event seen so far.
type Snapshot struct {
	Network    bool
	Session    bool
	TimeSynced bool

	// Tram and Metro are the next departures, nil when unknown.
	Tram  *time.Time
	Metro *time.Time
}

// Ready reports whether status data may be shown.
func (s *Snapshot) Ready() bool {
	return s.Network && s.Session && s.TimeSynced
}

// Apply folds ev into the snapshot. A record carrying only the time left is
// anchored at now, the time it was observed.
func (s *Snapshot) Apply(ev core.StateEvent, now time.Time) {
	switch ev.Kind {
	case core.ConnectivityChanged:
		s.Network = ev.Value
	case core.SessionChanged:
		s.Session = ev.Value
	case core.TimeSynced:
		s.TimeSynced = ev.Value
	case core.StatusChanged:
		switch ev.Topic {
		case topic.Tram:
			s.Tram = departure(ev.Status, now)
		case topic.Metro:
			s.Metro = departure(ev.Status, now)
		}
	}
}

func departure(r *core.StatusRecord, now time.Time) *time.Time {
	switch {
	case r.Empty():
		return nil
	case r.DepartAt != nil:
		t := *r.DepartAt
		return &t
	default:
		t := now.Add(time.Duration(*r.TimeLeftMs) * time.Millisecond)
		return &t
	}
}
