// Package connectivity owns the wireless association of the device.
package connectivity

import (
	"context"
	"errors"
	"fmt"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/pkg/log"
)

// ErrAssociation is wrapped in the fatal error returned when the network
// collaborator gives up on associating.
var ErrAssociation = errors.New("network association failed")

// Credentials of the wireless network.
type Credentials struct {
	SSID     string
	Password string
}

// Manager reports connectivity transitions. It publishes an event only when
// the observed state differs from the last published one, so the same value
// is never published twice in a row. The first observation is always
// published.
type Manager struct {
	network   core.Network
	creds     Credentials
	publisher core.Publisher

	state    core.ConnectivityState
	reported bool
}

func NewManager(network core.Network, creds Credentials, publisher core.Publisher) *Manager {
	return &Manager{
		network:   network,
		creds:     creds,
		publisher: publisher,
	}
}

// EnsureConnected returns once the link is usable, associating first when it
// is down. A failed association is fatal; retrying is the network
// collaborator's job.
func (m *Manager) EnsureConnected(ctx context.Context) (core.ConnectivityState, error) {
	up, err := m.network.IsConnected(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return m.state, ctx.Err()
		}
		log.Warn("Failed to query link state, assuming disconnected", "error", err)
	}
	if err == nil && up {
		m.report(core.Connected)
		return core.Connected, nil
	}

	m.report(core.Disconnected)

	log.Info("Associating with wireless network", "ssid", m.creds.SSID)
	if err := m.network.Connect(ctx, m.creds.SSID, m.creds.Password); err != nil {
		if ctx.Err() != nil {
			return m.state, ctx.Err()
		}
		return m.state, core.Fatal(fmt.Errorf("%w: ssid %q: %w", ErrAssociation, m.creds.SSID, err))
	}

	log.Info("Wireless network connected", "ssid", m.creds.SSID)
	m.report(core.Connected)
	return core.Connected, nil
}

// State returns the last reported state.
func (m *Manager) State() core.ConnectivityState {
	return m.state
}

func (m *Manager) report(state core.ConnectivityState) {
	if m.reported && m.state == state {
		return
	}
	m.reported = true
	m.state = state
	m.publisher.Send(core.Connectivity(state == core.Connected))
}
