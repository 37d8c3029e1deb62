package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	pahov3 "github.com/eclipse/paho.mqtt.golang"

	"github.com/tramcast/tramcast/pkg/log"
)

var setV3LoggersOnce sync.Once

// v3Client speaks MQTT 3.1.1 for brokers that do not support v5.
// Automatic reconnection is disabled: a lost connection ends the stream.
type v3Client struct {
	cfg    *ClientConfig
	client pahov3.Client

	*stream
}

var _ Client = (*v3Client)(nil)

func newV3Client(cfg *ClientConfig) *v3Client {
	setV3LoggersOnce.Do(func() {
		logger := log.WithName("paho")
		pahov3.ERROR = log.NewPrintfLogger(logger, true)
		pahov3.CRITICAL = log.NewPrintfLogger(logger, true)
	})
	return &v3Client{cfg: cfg, stream: newStream(cfg)}
}

func (c *v3Client) Start(ctx context.Context) error {
	opts := pahov3.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetUsername(c.cfg.Username).
		SetPassword(c.cfg.Password).
		SetKeepAlive(time.Duration(c.cfg.KeepAlive) * time.Second).
		SetConnectTimeout(c.cfg.ConnectTimeout).
		SetCleanSession(c.cfg.CleanStart).
		SetAutoReconnect(false).
		SetConnectRetry(true).
		SetConnectRetryInterval(3 * time.Second).
		SetOrderMatters(true).
		SetTLSConfig(&tls.Config{InsecureSkipVerify: c.cfg.InsecureSkipVerify}).
		SetDefaultPublishHandler(c.onMessage).
		SetOnConnectHandler(func(pahov3.Client) {
			log.Info("MQTT Connection established")
			c.up()
		}).
		SetConnectionLostHandler(func(_ pahov3.Client, err error) {
			log.Error(err, "MQTT Connection lost")
			c.down(err)
		})

	if c.cfg.WillTopic != "" {
		opts.SetBinaryWill(c.cfg.WillTopic, c.cfg.WillPayload, c.cfg.WillQoS, c.cfg.WillRetain)
	}

	log.Info("Starting MQTT Client", "broker", c.cfg.BrokerURL, "clientID", c.cfg.ClientID, "protocol", ProtocolV311)

	c.client = pahov3.NewClient(opts)
	// With ConnectRetry the token only completes once connected; progress is
	// reported through the OnConnect handler instead.
	c.client.Connect()
	return nil
}

func (c *v3Client) Events() <-chan Event {
	return c.ch
}

func (c *v3Client) Disconnect(ctx context.Context) {
	c.close()
	if c.client == nil {
		return
	}
	quiesce := uint(250)
	if deadline, ok := ctx.Deadline(); ok {
		quiesce = uint(max(time.Until(deadline).Milliseconds(), 0))
	}
	c.client.Disconnect(quiesce)
	log.Info("MQTT Client disconnected")
}

func (c *v3Client) Publish(ctx context.Context, topic string, qos QoS, retain bool, payload []byte) error {
	if c.client == nil {
		return ErrNotStarted
	}
	if !c.connected.Load() {
		return ErrNotConnected
	}
	return wait(ctx, c.client.Publish(topic, byte(qos), retain, payload))
}

func (c *v3Client) Subscribe(ctx context.Context, topic string, qos QoS) error {
	if c.client == nil {
		return ErrNotStarted
	}

	token := c.client.Subscribe(topic, byte(qos), nil)
	if err := wait(ctx, token); err != nil {
		return fmt.Errorf("failed to send subscription packet: %w", err)
	}
	if st, ok := token.(*pahov3.SubscribeToken); ok {
		if granted, ok := st.Result()[topic]; ok && granted >= 0x80 {
			return fmt.Errorf("subscription to %q rejected by broker", topic)
		}
	}

	log.Info("Subscribed to topic", "topic", topic, "qos", qos)
	c.offer(Event{Kind: EventSubscribed, Topic: topic})
	return nil
}

func (c *v3Client) Unsubscribe(ctx context.Context, topic string) error {
	if c.client == nil {
		return ErrNotStarted
	}
	if err := wait(ctx, c.client.Unsubscribe(topic)); err != nil {
		return err
	}
	c.offer(Event{Kind: EventUnsubscribed, Topic: topic})
	return nil
}

func (c *v3Client) onMessage(_ pahov3.Client, m pahov3.Message) {
	c.deliver(m.MessageID(), m.Topic(), m.Payload())
}

func wait(ctx context.Context, token pahov3.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
