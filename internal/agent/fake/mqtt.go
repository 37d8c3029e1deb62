package fake

import (
	"context"
	"errors"
	"sync"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/pkg/mqtt"
)

// Publication is a message published through a fake Client.
type Publication struct {
	Topic   string
	QoS     mqtt.QoS
	Retain  bool
	Payload []byte
}

// Subscription is a subscription made through a fake Client.
type Subscription struct {
	Topic string
	QoS   mqtt.QoS
}

// Client is an mqtt.Client driven by the test through Connect, Deliver and Drop.
type Client struct {
	mu            sync.Mutex
	events        chan mqtt.Event
	started       bool
	disconnected  bool
	subscriptions []Subscription
	publications  []Publication

	SubscribeErr error
	PublishErr   error
	StartErr     error

	// AwaitSuback, when set, runs before every Subscribe is acknowledged.
	AwaitSuback func(ctx context.Context) error
}

var _ mqtt.Client = (*Client)(nil)

func NewClient() *Client {
	return &Client{events: make(chan mqtt.Event, 256)}
}

func (c *Client) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return c.StartErr
}

func (c *Client) Events() <-chan mqtt.Event {
	return c.events
}

func (c *Client) Subscribe(ctx context.Context, topic string, qos mqtt.QoS) error {
	if c.AwaitSuback != nil {
		if err := c.AwaitSuback(ctx); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubscribeErr != nil {
		return c.SubscribeErr
	}
	c.subscriptions = append(c.subscriptions, Subscription{Topic: topic, QoS: qos})
	return nil
}

func (c *Client) Unsubscribe(context.Context, string) error {
	return nil
}

func (c *Client) Publish(_ context.Context, topic string, qos mqtt.QoS, retain bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PublishErr != nil {
		return c.PublishErr
	}
	c.publications = append(c.publications, Publication{Topic: topic, QoS: qos, Retain: retain, Payload: payload})
	return nil
}

func (c *Client) Disconnect(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

// Connect emits a Connected event.
func (c *Client) Connect() {
	c.events <- mqtt.Event{Kind: mqtt.EventConnected}
}

// Drop emits a Disconnected event.
func (c *Client) Drop(err error) {
	c.events <- mqtt.Event{Kind: mqtt.EventDisconnected, Err: err}
}

// Deliver emits a Received event.
func (c *Client) Deliver(m mqtt.Message) {
	c.events <- mqtt.Event{Kind: mqtt.EventReceived, Message: &m}
}

// DeliverPublication emits the frames of a publication fragmented at bufferSize.
func (c *Client) DeliverPublication(topic string, payload []byte, bufferSize int) {
	for _, m := range mqtt.Fragment(0, topic, payload, bufferSize) {
		c.Deliver(m)
	}
}

func (c *Client) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *Client) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func (c *Client) Subscriptions() []Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Subscription(nil), c.subscriptions...)
}

func (c *Client) Publications() []Publication {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Publication(nil), c.publications...)
}

// ErrNoClient is returned by Broker.Open when no client is queued.
var ErrNoClient = errors.New("fake broker: no client queued")

// Broker hands out queued clients, one per Open.
type Broker struct {
	mu      sync.Mutex
	clients []*Client
	opened  []string
	OpenErr error
}

var _ core.Broker = (*Broker)(nil)

// NewBroker returns a Broker that serves the given clients in order.
func NewBroker(clients ...*Client) *Broker {
	return &Broker{clients: clients}
}

func (b *Broker) Open(_ context.Context, endpoint, clientID string) (mqtt.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	if len(b.clients) == 0 {
		return nil, ErrNoClient
	}
	c := b.clients[0]
	b.clients = b.clients[1:]
	b.opened = append(b.opened, endpoint+"|"+clientID)
	return c, nil
}

// Opened returns "endpoint|clientID" for every successful Open.
func (b *Broker) Opened() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.opened...)
}
