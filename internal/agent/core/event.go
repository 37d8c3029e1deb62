package core

import (
	"fmt"
	"time"
)

// EventKind tags a StateEvent.
type EventKind string

const (
	ConnectivityChanged EventKind = "connectivity.changed"
	SessionChanged      EventKind = "session.changed"
	TimeSynced          EventKind = "time.synced"
	StatusChanged       EventKind = "status.changed"
)

// StatusRecord is the structural content of a status topic. Both fields are
// optional and a record with neither carries no data. Records never expire.
type StatusRecord struct {
	DepartAt   *time.Time `json:"departAt"`
	TimeLeftMs *int64     `json:"timeLeftMs"`
}

// Empty reports whether the record carries no data.
func (r *StatusRecord) Empty() bool {
	return r == nil || (r.DepartAt == nil && r.TimeLeftMs == nil)
}

// Clone returns a deep copy so that events never share memory across goroutines.
func (r *StatusRecord) Clone() *StatusRecord {
	if r == nil {
		return nil
	}
	out := &StatusRecord{}
	if r.DepartAt != nil {
		t := *r.DepartAt
		out.DepartAt = &t
	}
	if r.TimeLeftMs != nil {
		ms := *r.TimeLeftMs
		out.TimeLeftMs = &ms
	}
	return out
}

// StateEvent is a state change published to the display.
// Value is used by the boolean kinds, Topic and Status by StatusChanged.
type StateEvent struct {
	Kind   EventKind
	Value  bool
	Topic  string
	Status *StatusRecord
}

// Key identifies the piece of state an event replaces. A later event with
// the same key supersedes an earlier one.
func (e StateEvent) Key() string {
	if e.Kind == StatusChanged {
		return string(e.Kind) + "/" + e.Topic
	}
	return string(e.Kind)
}

func (e StateEvent) String() string {
	if e.Kind == StatusChanged {
		return fmt.Sprintf("%s(%s)", e.Kind, e.Topic)
	}
	return fmt.Sprintf("%s(%t)", e.Kind, e.Value)
}

func Connectivity(up bool) StateEvent { return StateEvent{Kind: ConnectivityChanged, Value: up} }
func Session(up bool) StateEvent      { return StateEvent{Kind: SessionChanged, Value: up} }
func Synced() StateEvent              { return StateEvent{Kind: TimeSynced, Value: true} }

// Status returns a StatusChanged event carrying a copy of r.
func Status(topic string, r *StatusRecord) StateEvent {
	return StateEvent{Kind: StatusChanged, Topic: topic, Status: r.Clone()}
}

// Publisher accepts state events. Send must not block.
type Publisher interface {
	Send(ev StateEvent)
}

// PublisherFunc adapts a function to a Publisher.
type PublisherFunc func(ev StateEvent)

func (f PublisherFunc) Send(ev StateEvent) { f(ev) }
