package hal

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/pkg/log"
)

const (
	nmService   = "org.freedesktop.NetworkManager"
	nmPath      = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmInterface = "org.freedesktop.NetworkManager"

	// NM_STATE_CONNECTED_SITE: an address is assigned, which is all the
	// broker on the local network needs.
	nmStateConnectedSite uint32 = 60
)

// NetworkManager associates a wireless interface through NetworkManager.
type NetworkManager struct {
	obj   dbus.BusObject
	iface string

	backoff      wait.Backoff
	pollInterval time.Duration
	linkTimeout  time.Duration
}

var _ core.Network = (*NetworkManager)(nil)

// NewNetworkManager connects to the system bus.
func NewNetworkManager(iface string) (*NetworkManager, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the system bus: %w", err)
	}
	return newNetworkManager(conn.Object(nmService, nmPath), iface), nil
}

func newNetworkManager(obj dbus.BusObject, iface string) *NetworkManager {
	return &NetworkManager{
		obj:   obj,
		iface: iface,
		backoff: wait.Backoff{
			Duration: 2 * time.Second,
			Factor:   2,
			Jitter:   0.1,
			Steps:    5,
			Cap:      30 * time.Second,
		},
		pollInterval: 500 * time.Millisecond,
		linkTimeout:  30 * time.Second,
	}
}

func (n *NetworkManager) IsConnected(ctx context.Context) (bool, error) {
	v, err := getProperty(ctx, n.obj, nmInterface, "State")
	if err != nil {
		return false, fmt.Errorf("failed to read NetworkManager state: %w", err)
	}
	state, ok := v.Value().(uint32)
	if !ok {
		return false, fmt.Errorf("unexpected NetworkManager state type %s", v.Signature())
	}
	return state >= nmStateConnectedSite, nil
}

// Connect activates a connection for ssid and waits until the link is up.
// Activation is retried with backoff; the error of the last attempt is
// returned once the attempts are exhausted.
func (n *NetworkManager) Connect(ctx context.Context, ssid, password string) error {
	var device dbus.ObjectPath
	if err := n.obj.CallWithContext(ctx, nmInterface+".GetDeviceByIpIface", 0, n.iface).Store(&device); err != nil {
		return fmt.Errorf("failed to find device %s: %w", n.iface, err)
	}

	var lastErr error
	err := wait.ExponentialBackoffWithContext(ctx, n.backoff, func(ctx context.Context) (bool, error) {
		if err := n.activate(ctx, device, ssid, password); err != nil {
			lastErr = err
			log.Warn("Wireless activation failed, retrying", "ssid", ssid, "error", err)
			return false, nil
		}
		if err := n.waitForLink(ctx); err != nil {
			lastErr = fmt.Errorf("link did not come up: %w", err)
			log.Warn("Wireless link not up, retrying", "ssid", ssid, "error", err)
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if lastErr != nil {
			return lastErr
		}
		return err
	}

	log.Info("Wireless link up", "ssid", ssid, "interface", n.iface)
	return nil
}

func (n *NetworkManager) activate(ctx context.Context, device dbus.ObjectPath, ssid, password string) error {
	settings := map[string]map[string]dbus.Variant{
		"connection": {
			"id":          dbus.MakeVariant("tramcast-" + ssid),
			"type":        dbus.MakeVariant("802-11-wireless"),
			"autoconnect": dbus.MakeVariant(true),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(ssid)),
			"mode": dbus.MakeVariant("infrastructure"),
		},
		"ipv4": {"method": dbus.MakeVariant("auto")},
		"ipv6": {"method": dbus.MakeVariant("auto")},
	}
	if password != "" {
		settings["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(password),
		}
	}

	var conn, active dbus.ObjectPath
	call := n.obj.CallWithContext(ctx, nmInterface+".AddAndActivateConnection", 0, settings, device, dbus.ObjectPath("/"))
	if err := call.Store(&conn, &active); err != nil {
		return fmt.Errorf("AddAndActivateConnection: %w", err)
	}
	log.Debug("Wireless connection activating", "connection", conn, "active", active)
	return nil
}

func (n *NetworkManager) waitForLink(ctx context.Context) error {
	return wait.PollUntilContextTimeout(ctx, n.pollInterval, n.linkTimeout, true, func(ctx context.Context) (bool, error) {
		up, err := n.IsConnected(ctx)
		if err != nil {
			log.Debug("NetworkManager state unavailable", "error", err)
			return false, nil
		}
		return up, nil
	})
}
