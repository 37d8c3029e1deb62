package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/tramcast/tramcast/pkg/mqtt"
	"github.com/tramcast/tramcast/pkg/mqtt/topic"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions contains configuration for MQTT client and topics.
type MqttOptions struct {
	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	// ProtocolVersion is 5 for MQTT v5 or 3 for MQTT 3.1.1.
	ProtocolVersion int `json:"protocol-version" mapstructure:"protocol-version"`

	// Client behavior
	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	SessionExpiry  uint32        `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart     bool          `json:"clean-start" mapstructure:"clean-start"`

	// InsecureSkipVerify controls whether a client verifies the server's certificate chain and host name.
	// If true, TLS accepts any certificate presented by the server and any host name in that certificate.
	// In this mode, TLS is susceptible to man-in-the-middle attacks. This should be used only for testing.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// QoS used for every subscription.
	QoS int `json:"qos" mapstructure:"qos"`

	// BufferSize is the largest OTA data frame delivered whole.
	BufferSize int `json:"buffer-size" mapstructure:"buffer-size"`

	// Readiness publishes the readiness notice after every connect.
	Readiness bool `json:"readiness" mapstructure:"readiness"`

	// Topic Topology definition
	// Using prefixes allows us to construct topics like: {TopicRoot}/{XXX}
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		Broker:          "mqtt://localhost:1883",
		ClientID:        "tramcast",
		ProtocolVersion: mqtt.ProtocolV5,
		KeepAlive:       60 * time.Second,
		ConnectTimeout:  5 * time.Second,
		SessionExpiry:   0,
		CleanStart:      true,
		QoS:             int(mqtt.ExactlyOnce),
		BufferSize:      mqtt.DefaultBufferSize,
		Readiness:       true,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.Broker == "" {
		errors = append(errors, fmt.Errorf("--mqtt.broker must be specified"))
	}
	if o.ClientID == "" {
		errors = append(errors, fmt.Errorf("--mqtt.client-id must be specified"))
	}
	if o.ProtocolVersion != mqtt.ProtocolV311 && o.ProtocolVersion != mqtt.ProtocolV5 {
		errors = append(errors, fmt.Errorf("--mqtt.protocol-version must be 3 or 5, got %d", o.ProtocolVersion))
	}
	if o.QoS < int(mqtt.AtMostOnce) || o.QoS > int(mqtt.ExactlyOnce) {
		errors = append(errors, fmt.Errorf("--mqtt.qos must be between 0 and 2, got %d", o.QoS))
	}
	if o.BufferSize <= 0 {
		errors = append(errors, fmt.Errorf("--mqtt.buffer-size must be positive, got %d", o.BufferSize))
	}
	if _, err := topic.NewTable(o.TopicRoot); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "The URL of the MQTT broker.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "The MQTT client ID of this device.")
	fs.IntVar(&o.ProtocolVersion, "mqtt.protocol-version", o.ProtocolVersion, "MQTT protocol version, 5 or 3 (3.1.1).")

	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT Keep Alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "mqtt.connect-timeout", o.ConnectTimeout, "Timeout for establishing MQTT connection.")
	fs.Uint32Var(&o.SessionExpiry, "mqtt.session-expiry", o.SessionExpiry, "MQTT Session Expiry Interval in seconds.")
	fs.BoolVar(&o.CleanStart, "mqtt.clean-start", o.CleanStart, "Start every connection with a clean session.")
	fs.BoolVar(&o.InsecureSkipVerify, "mqtt.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")

	fs.IntVar(&o.QoS, "mqtt.qos", o.QoS, "QoS level of the topic subscriptions.")
	fs.IntVar(&o.BufferSize, "mqtt.buffer-size", o.BufferSize, "Receive buffer size; larger OTA data publications are delivered in fragments.")
	fs.BoolVar(&o.Readiness, "mqtt.readiness", o.Readiness, "Publish a readiness notice on the OTA result topic after connecting.")

	// Topics
	fs.StringVar(&o.TopicRoot, "mqtt.topic-root", o.TopicRoot, "Optional namespace prepended to every topic.")
}

// ToClientConfig converts the options into a client configuration. The OTA
// data topic is the only topic whose publications are fragmented.
func (o *MqttOptions) ToClientConfig() *mqtt.ClientConfig {
	cfg := &mqtt.ClientConfig{
		BrokerURL:          o.Broker,
		Username:           o.Username,
		Password:           o.Password,
		ClientID:           o.ClientID,
		ProtocolVersion:    o.ProtocolVersion,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		SessionExpiry:      o.SessionExpiry,
		ConnectTimeout:     o.ConnectTimeout,
		CleanStart:         o.CleanStart,
		InsecureSkipVerify: o.InsecureSkipVerify,
		BufferSize:         o.BufferSize,
	}
	if table, err := topic.NewTable(o.TopicRoot); err == nil {
		cfg.FragmentTopics = []string{table.OTAData}
	}
	return cfg
}
