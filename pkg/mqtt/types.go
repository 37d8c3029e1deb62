package mqtt

import (
	"context"
)

// QoS is the delivery guarantee requested for a publish or subscription.
type QoS byte

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
)

// EventKind classifies the events a Client yields.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventReceived
	EventSubscribed
	EventUnsubscribed
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "Connected"
	case EventDisconnected:
		return "Disconnected"
	case EventReceived:
		return "Received"
	case EventSubscribed:
		return "Subscribed"
	case EventUnsubscribed:
		return "Unsubscribed"
	default:
		return "Unknown"
	}
}

// ChunkKind describes where a received frame sits in a (possibly
// fragmented) publication.
type ChunkKind int

const (
	// ChunkComplete is a whole publication delivered in one frame.
	ChunkComplete ChunkKind = iota
	// ChunkInitial is the first fragment. It carries the topic and the total size.
	ChunkInitial
	// ChunkSubsequent is a continuation fragment. Its topic is empty.
	ChunkSubsequent
)

func (k ChunkKind) String() string {
	switch k {
	case ChunkComplete:
		return "Complete"
	case ChunkInitial:
		return "Initial"
	case ChunkSubsequent:
		return "Subsequent"
	default:
		return "Unknown"
	}
}

// Details is the positional metadata of a received frame.
type Details struct {
	Kind ChunkKind
	// Offset is the position of the first byte of this frame within the publication.
	Offset int
	// Total is the size of the whole publication.
	Total int
}

// Message is one inbound frame.
type Message struct {
	ID uint16
	// Topic is empty for continuation fragments.
	Topic   string
	Payload []byte
	Details Details
}

// Event is one item of a client's event stream.
type Event struct {
	Kind    EventKind
	Message *Message
	// Topic is set for Subscribed and Unsubscribed acknowledgements.
	Topic string
	// Err is the cause of a Disconnected event, if known.
	Err error
}

// Client defines the interface for a generic MQTT client.
// It abstracts the underlying paho implementation details.
type Client interface {
	// Start initiates the connection to the broker.
	// It is non-blocking and returns immediately. Progress is reported on Events.
	Start(ctx context.Context) error

	// Events returns the stream of connection, delivery and acknowledgement events.
	// Disconnected is reported at most once and nothing follows it.
	Events() <-chan Event

	// Subscribe sends a SUBSCRIBE packet for the topic filter.
	Subscribe(ctx context.Context, topic string, qos QoS) error

	// Unsubscribe sends an UNSUBSCRIBE packet.
	Unsubscribe(ctx context.Context, topic string) error

	// Publish sends a message to the specified topic.
	Publish(ctx context.Context, topic string, qos QoS, retain bool, payload []byte) error

	// Disconnect cleanly closes the connection.
	Disconnect(ctx context.Context)
}
