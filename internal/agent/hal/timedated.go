package hal

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/tramcast/tramcast/internal/agent/core"
)

const (
	timedateService   = "org.freedesktop.timedate1"
	timedatePath      = dbus.ObjectPath("/org/freedesktop/timedate1")
	timedateInterface = "org.freedesktop.timedate1"
)

// Timedated reads NTP synchronization from systemd-timedated.
type Timedated struct {
	obj dbus.BusObject
}

var _ core.TimeSource = (*Timedated)(nil)

func NewTimedated() (*Timedated, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the system bus: %w", err)
	}
	return &Timedated{obj: conn.Object(timedateService, timedatePath)}, nil
}

// Start enables NTP. Enabling it when already enabled is a no-op.
func (t *Timedated) Start(ctx context.Context) error {
	if err := t.obj.CallWithContext(ctx, timedateInterface+".SetNTP", 0, true, false).Err; err != nil {
		return fmt.Errorf("SetNTP: %w", err)
	}
	return nil
}

func (t *Timedated) Status(ctx context.Context) (core.SyncStatus, error) {
	v, err := getProperty(ctx, t.obj, timedateInterface, "NTPSynchronized")
	if err != nil {
		return core.SyncPending, fmt.Errorf("failed to read NTPSynchronized: %w", err)
	}
	if synced, ok := v.Value().(bool); ok && synced {
		return core.SyncCompleted, nil
	}
	return core.SyncPending, nil
}
