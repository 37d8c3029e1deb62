package mqtt

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"
)

const (
	ProtocolV311 = 3
	ProtocolV5   = 5

	// DefaultBufferSize mirrors the receive buffer of the device's broker
	// client. Larger publications on fragmenting topics are split.
	DefaultBufferSize = 4096
)

var supportedSchemes = []string{"tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss"}

// ClientConfig holds the configuration for creating a new MQTT Client.
type ClientConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// ProtocolVersion selects the client implementation: 5 (autopaho) or 3 (MQTT 3.1.1).
	ProtocolVersion int

	// KeepAlive in seconds. Default is 60.
	KeepAlive uint16

	// ConnectTimeout for the initial connection. Default is 5s.
	ConnectTimeout time.Duration

	// CleanStart indicates whether to start a clean session.
	// Sessions are never resumed across epochs, so this is normally true.
	CleanStart bool

	// SessionExpiry in seconds (MQTT v5 only).
	SessionExpiry uint32

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	WillTopic   string
	WillPayload []byte
	WillQoS     byte
	WillRetain  bool

	// BufferSize is the largest frame delivered whole. Default is DefaultBufferSize.
	BufferSize int

	// FragmentTopics lists the topics whose publications are split into
	// chunks of BufferSize bytes.
	FragmentTopics []string

	// EventBuffer is the capacity of the Events channel. Default is 64.
	EventBuffer int
}

// setDefaultConfig applies safe default values to the configuration.
func setDefaultConfig(cfg *ClientConfig) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60
	}

	if cfg.ProtocolVersion == 0 {
		cfg.ProtocolVersion = ProtocolV5
	}

	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	if cfg.EventBuffer == 0 {
		cfg.EventBuffer = 64
	}
}

// Validate checks if the configuration is valid.
func (c *ClientConfig) Validate() error {
	var errs []error

	if c.BrokerURL == "" {
		errs = append(errs, errors.New("broker url is required"))
	} else if u, err := url.Parse(c.BrokerURL); err != nil {
		errs = append(errs, err)
	} else if !slices.Contains(supportedSchemes, u.Scheme) {
		errs = append(errs, fmt.Errorf("unsupported broker url scheme %q", u.Scheme))
	}

	if c.ClientID == "" {
		errs = append(errs, errors.New("client id is required"))
	}

	if c.ProtocolVersion != ProtocolV311 && c.ProtocolVersion != ProtocolV5 {
		errs = append(errs, fmt.Errorf("unsupported protocol version %d", c.ProtocolVersion))
	}

	if c.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("buffer size must not be negative, got %d", c.BufferSize))
	}

	if c.WillQoS > byte(ExactlyOnce) {
		errs = append(errs, fmt.Errorf("invalid will qos %d", c.WillQoS))
	}

	return errors.Join(errs...)
}

func (c *ClientConfig) fragments(topic string) bool {
	return slices.Contains(c.FragmentTopics, topic)
}
