package hal

import (
	"context"
	"fmt"
)

// Restarter boots the configured boot partition. It does not return on success.
type Restarter interface {
	Restart(ctx context.Context) error
}

// RestartFunc adapts a function to a Restarter.
type RestartFunc func(ctx context.Context) error

func (f RestartFunc) Restart(ctx context.Context) error { return f(ctx) }

// NewRestarter returns the restarter named by kind: "reboot" reboots the
// host and "exec" replaces the running agent with its binary on disk.
func NewRestarter(kind string) (Restarter, error) {
	switch kind {
	case "reboot":
		return RestartFunc(reboot), nil
	case "exec":
		return RestartFunc(reexec), nil
	default:
		return nil, fmt.Errorf("unknown restart method %q", kind)
	}
}
