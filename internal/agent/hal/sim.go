package hal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/pkg/log"
	"github.com/tramcast/tramcast/pkg/mqtt"
	"github.com/tramcast/tramcast/pkg/mqtt/topic"
)

// SimNetwork is a wireless link that comes up after a short delay.
type SimNetwork struct {
	Delay time.Duration

	mu sync.Mutex
	up bool
}

var _ core.Network = (*SimNetwork)(nil)

func (n *SimNetwork) Connect(ctx context.Context, ssid, _ string) error {
	log.Info("Simulated wireless association", "ssid", ssid)
	select {
	case <-time.After(n.Delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.up = true
	return nil
}

func (n *SimNetwork) IsConnected(context.Context) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.up, nil
}

// SimTimeSource reports the clock synchronized after PendingPolls polls.
type SimTimeSource struct {
	PendingPolls int

	mu    sync.Mutex
	polls int
}

var _ core.TimeSource = (*SimTimeSource)(nil)

func (t *SimTimeSource) Start(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.polls = 0
	return nil
}

func (t *SimTimeSource) Status(context.Context) (core.SyncStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.polls++
	if t.polls > t.PendingPolls {
		return core.SyncCompleted, nil
	}
	return core.SyncPending, nil
}

// SimBroker opens clients that publish generated departures on the status
// topics every interval.
type SimBroker struct {
	topics   *topic.Table
	interval time.Duration
	clock    clock.WithTicker
}

var _ core.Broker = (*SimBroker)(nil)

func NewSimBroker(topics *topic.Table, interval time.Duration, clk clock.WithTicker) *SimBroker {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &SimBroker{topics: topics, interval: interval, clock: clk}
}

func (b *SimBroker) Open(_ context.Context, endpoint, clientID string) (mqtt.Client, error) {
	log.Info("Opening simulated broker client", "endpoint", endpoint, "clientID", clientID)
	return &simClient{
		broker:     b,
		events:     make(chan mqtt.Event, 16),
		subscribed: make(map[string]bool),
	}, nil
}

type simClient struct {
	broker *SimBroker
	events chan mqtt.Event

	mu         sync.Mutex
	cancel     context.CancelFunc
	subscribed map[string]bool
}

var _ mqtt.Client = (*simClient)(nil)

func (c *simClient) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
	return nil
}

func (c *simClient) run(ctx context.Context) {
	if !c.emit(ctx, mqtt.Event{Kind: mqtt.EventConnected}) {
		return
	}

	t := c.broker.clock.NewTicker(c.broker.interval)
	defer t.Stop()

	for n := 0; ; n++ {
		for _, m := range c.departures(n) {
			if !c.isSubscribed(m.Topic) {
				continue
			}
			if !c.emit(ctx, mqtt.Event{Kind: mqtt.EventReceived, Message: &m}) {
				return
			}
		}

		select {
		case <-t.C():
		case <-ctx.Done():
			return
		}
	}
}

// departures returns the n-th round of generated status messages.
func (c *simClient) departures(n int) []mqtt.Message {
	now := c.broker.clock.Now().UTC()
	departAt := now.Add(time.Duration(n%8+2) * time.Minute)
	timeLeft := int64(n%5+1) * time.Minute.Milliseconds()

	tram, _ := json.Marshal(core.StatusRecord{DepartAt: &departAt})
	metro, _ := json.Marshal(core.StatusRecord{TimeLeftMs: &timeLeft})

	return []mqtt.Message{
		{Topic: c.broker.topics.Tram, Payload: tram, Details: mqtt.Details{Kind: mqtt.ChunkComplete, Total: len(tram)}},
		{Topic: c.broker.topics.Metro, Payload: metro, Details: mqtt.Details{Kind: mqtt.ChunkComplete, Total: len(metro)}},
	}
}

func (c *simClient) emit(ctx context.Context, ev mqtt.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *simClient) isSubscribed(t string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed[t]
}

func (c *simClient) Events() <-chan mqtt.Event {
	return c.events
}

func (c *simClient) Subscribe(_ context.Context, t string, _ mqtt.QoS) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return mqtt.ErrNotStarted
	}
	c.subscribed[t] = true
	return nil
}

func (c *simClient) Unsubscribe(_ context.Context, t string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribed, t)
	return nil
}

func (c *simClient) Publish(_ context.Context, t string, qos mqtt.QoS, retain bool, payload []byte) error {
	log.Debug("Simulated publish", "topic", t, "qos", qos, "retain", retain, "payload", string(payload))
	return nil
}

func (c *simClient) Disconnect(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}
