// Package fake provides in-memory collaborators for tests and simulations.
package fake

import (
	"context"
	"sync"

	"github.com/tramcast/tramcast/internal/agent/core"
)

// Recorder is a core.Publisher that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []core.StateEvent
}

var _ core.Publisher = (*Recorder)(nil)

func (r *Recorder) Send(ev core.StateEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Status = ev.Status.Clone()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []core.StateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.StateEvent(nil), r.events...)
}

// Values returns the values of the recorded events of the given kind.
func (r *Recorder) Values(kind core.EventKind) []bool {
	var out []bool
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			out = append(out, ev.Value)
		}
	}
	return out
}

// Network is a core.Network whose link state is set by the test.
type Network struct {
	mu             sync.Mutex
	up             bool
	connectErr     error
	isConnectedErr error
	connectCalls   int
}

var _ core.Network = (*Network)(nil)

func (n *Network) Connect(ctx context.Context, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connectCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.connectErr != nil {
		return n.connectErr
	}
	n.up = true
	return nil
}

func (n *Network) IsConnected(context.Context) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.up, n.isConnectedErr
}

// SetUp forces the link state.
func (n *Network) SetUp(up bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.up = up
}

// FailConnect makes every Connect call return err.
func (n *Network) FailConnect(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connectErr = err
}

// FailIsConnected makes IsConnected return err.
func (n *Network) FailIsConnected(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.isConnectedErr = err
}

func (n *Network) ConnectCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connectCalls
}

// TimeSource reports Pending for the first PendingPolls polls of each
// Start, then Completed.
type TimeSource struct {
	mu           sync.Mutex
	PendingPolls int
	StartErr     error
	StatusErr    error

	starts int
	polls  int
}

var _ core.TimeSource = (*TimeSource)(nil)

func (s *TimeSource) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	s.polls = 0
	return s.StartErr
}

func (s *TimeSource) Status(context.Context) (core.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if s.StatusErr != nil {
		return core.SyncPending, s.StatusErr
	}
	if s.polls <= s.PendingPolls {
		return core.SyncPending, nil
	}
	return core.SyncCompleted, nil
}

// FailStatus makes Status return err; nil restores normal behavior.
func (s *TimeSource) FailStatus(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StatusErr = err
}

func (s *TimeSource) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *TimeSource) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}
