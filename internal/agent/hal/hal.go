// Package hal binds the agent's collaborator interfaces to the host:
// NetworkManager and systemd-timedated over D-Bus, A/B firmware slots on
// disk or in an S3 bucket, and the reboot syscall.
package hal

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/tramcast/tramcast/internal/agent/core"
)

const dbusPropertiesGet = "org.freedesktop.DBus.Properties.Get"

// getProperty reads one D-Bus property with ctx.
func getProperty(ctx context.Context, obj dbus.BusObject, iface, name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := obj.CallWithContext(ctx, dbusPropertiesGet, 0, iface, name).Store(&v)
	return v, err
}

// StaticNetwork is a core.Network for hosts whose link is managed elsewhere.
// It always reports connected.
type StaticNetwork struct{}

var _ core.Network = StaticNetwork{}

func (StaticNetwork) Connect(context.Context, string, string) error { return nil }
func (StaticNetwork) IsConnected(context.Context) (bool, error)     { return true, nil }

// SystemClock is a core.TimeSource that trusts the host clock.
type SystemClock struct{}

var _ core.TimeSource = SystemClock{}

func (SystemClock) Start(context.Context) error { return nil }

func (SystemClock) Status(context.Context) (core.SyncStatus, error) {
	return core.SyncCompleted, nil
}
