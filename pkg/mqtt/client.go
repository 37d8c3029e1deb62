package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/tramcast/tramcast/pkg/log"
)

var (
	// ErrNotStarted is returned by operations invoked before Start.
	ErrNotStarted = errors.New("client not started")
	// ErrNotConnected is returned when the broker connection is down.
	ErrNotConnected = errors.New("client not connected")
)

type pahoClient struct {
	cfg    *ClientConfig
	cm     *autopaho.ConnectionManager
	cancel context.CancelFunc

	*stream
}

// NewClient creates a new MQTT client implementing the Client interface.
// ProtocolVersion selects between the MQTT v5 and the MQTT 3.1.1 implementation.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mqtt config is required")
	}

	setDefaultConfig(cfg)

	// Basic validation using the config's own logic
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}

	if cfg.ProtocolVersion == ProtocolV311 {
		return newV3Client(cfg), nil
	}

	return &pahoClient{
		cfg:    cfg,
		stream: newStream(cfg),
	}, nil
}

func (c *pahoClient) Start(ctx context.Context) error {
	brokerURL, _ := url.Parse(c.cfg.BrokerURL) // Already validated

	logger := log.WithName("paho")

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: c.cfg.CleanStart,
		SessionExpiryInterval:         c.cfg.SessionExpiry,
		ReconnectBackoff:              autopaho.NewConstantBackoff(3 * time.Second),
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		TlsCfg: &tls.Config{
			InsecureSkipVerify: c.cfg.InsecureSkipVerify,
		},
		WillMessage: c.willMessage(),
		Errors:      log.NewPrintfLogger(logger, true),
		PahoErrors:  log.NewPrintfLogger(logger, true),
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.onPublishReceived,
			},
		},
		OnConnectionUp: c.onConnectionUp,
		OnConnectError: c.onConnectError,
	}

	log.Info("Starting MQTT Client", "broker", c.cfg.BrokerURL, "clientID", c.cfg.ClientID, "protocol", ProtocolV5)

	ctx, cancel := context.WithCancel(ctx)
	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		cancel()
		return err
	}
	c.cm = cm
	c.cancel = cancel
	return nil
}

func (c *pahoClient) Events() <-chan Event {
	return c.ch
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	c.close()
	if c.cm == nil {
		return
	}
	if err := c.cm.Disconnect(ctx); err != nil {
		log.Debug("MQTT disconnect", "error", err)
	}
	c.cancel()
	log.Info("MQTT Client disconnected")
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos QoS, retain bool, payload []byte) error {
	if c.cm == nil {
		return ErrNotStarted
	}

	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	})

	return err
}

func (c *pahoClient) Subscribe(ctx context.Context, topic string, qos QoS) error {
	if c.cm == nil {
		return ErrNotStarted
	}

	suback, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: topic, QoS: byte(qos)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send subscription packet: %w", err)
	}
	if suback != nil {
		for _, reason := range suback.Reasons {
			if reason >= 0x80 {
				return fmt.Errorf("subscription to %q rejected with reason code 0x%02x", topic, reason)
			}
		}
	}

	log.Info("Subscribed to topic", "topic", topic, "qos", qos)
	c.offer(Event{Kind: EventSubscribed, Topic: topic})
	return nil
}

func (c *pahoClient) Unsubscribe(ctx context.Context, topic string) error {
	if c.cm == nil {
		return ErrNotStarted
	}

	if _, err := c.cm.Unsubscribe(ctx, &paho.Unsubscribe{
		Topics: []string{topic},
	}); err != nil {
		return err
	}

	c.offer(Event{Kind: EventUnsubscribed, Topic: topic})
	return nil
}

// --- Internal Callbacks ---

// onConnectionUp is called when the connection is established or re-established.
func (c *pahoClient) onConnectionUp(_ *autopaho.ConnectionManager, _ *paho.Connack) {
	log.Info("MQTT Connection established")
	c.up()
}

func (c *pahoClient) onConnectError(err error) {
	log.Error(err, "MQTT Connection failed, retrying...")
}

func (c *pahoClient) onClientError(err error) {
	log.Error(err, "MQTT Client internal error")
	c.down(err)
}

func (c *pahoClient) onServerDisconnect(d *paho.Disconnect) {
	reason := ""
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	log.Warn("MQTT Server requested disconnect", "reason", reason, "code", d.ReasonCode)
	c.down(fmt.Errorf("server disconnect: reason code 0x%02x", d.ReasonCode))
}

// onPublishReceived forwards the publication to the event stream in arrival order.
func (c *pahoClient) onPublishReceived(p paho.PublishReceived) (bool, error) {
	c.deliver(p.Packet.PacketID, p.Packet.Topic, p.Packet.Payload)
	return true, nil
}

func (c *pahoClient) willMessage() *paho.WillMessage {
	if c.cfg.WillTopic == "" {
		return nil
	}
	return &paho.WillMessage{
		Topic:   c.cfg.WillTopic,
		Payload: c.cfg.WillPayload,
		QoS:     c.cfg.WillQoS,
		Retain:  c.cfg.WillRetain,
	}
}
