package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientConfigValidate(t *testing.T) {
	valid := func() *ClientConfig {
		cfg := &ClientConfig{BrokerURL: "mqtt://broker.local:1883", ClientID: "tramcast"}
		setDefaultConfig(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*ClientConfig)
		wantErr string
	}{
		{"valid", func(*ClientConfig) {}, ""},
		{"missing broker", func(c *ClientConfig) { c.BrokerURL = "" }, "broker url is required"},
		{"bad scheme", func(c *ClientConfig) { c.BrokerURL = "http://broker.local" }, "unsupported broker url scheme"},
		{"missing client id", func(c *ClientConfig) { c.ClientID = "" }, "client id is required"},
		{"bad protocol", func(c *ClientConfig) { c.ProtocolVersion = 4 }, "unsupported protocol version 4"},
		{"bad will qos", func(c *ClientConfig) { c.WillQoS = 3 }, "invalid will qos"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSetDefaultConfig(t *testing.T) {
	cfg := &ClientConfig{}
	setDefaultConfig(cfg)

	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, uint16(60), cfg.KeepAlive)
	assert.Equal(t, ProtocolV5, cfg.ProtocolVersion)
	assert.Equal(t, DefaultBufferSize, cfg.BufferSize)
	assert.Equal(t, 64, cfg.EventBuffer)
}

func TestNewClientSelectsProtocol(t *testing.T) {
	c, err := NewClient(&ClientConfig{BrokerURL: "tcp://localhost:1883", ClientID: "a", ProtocolVersion: ProtocolV311})
	assert.NoError(t, err)
	assert.IsType(t, &v3Client{}, c)

	c, err = NewClient(&ClientConfig{BrokerURL: "tcp://localhost:1883", ClientID: "a"})
	assert.NoError(t, err)
	assert.IsType(t, &pahoClient{}, c)

	_, err = NewClient(nil)
	assert.Error(t, err)
}
