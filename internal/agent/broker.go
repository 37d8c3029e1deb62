package agent

import (
	"context"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/pkg/mqtt"
)

// mqttBroker opens real broker clients from a base configuration.
type mqttBroker struct {
	base *mqtt.ClientConfig
}

var _ core.Broker = (*mqttBroker)(nil)

func (b *mqttBroker) Open(_ context.Context, endpoint, clientID string) (mqtt.Client, error) {
	cfg := *b.base
	cfg.BrokerURL = endpoint
	cfg.ClientID = clientID
	return mqtt.NewClient(&cfg)
}
