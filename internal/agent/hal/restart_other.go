//go:build !linux

package hal

import (
	"context"
	"errors"
	"fmt"
)

func reboot(context.Context) error {
	return fmt.Errorf("reboot: %w", errors.ErrUnsupported)
}

func reexec(context.Context) error {
	return fmt.Errorf("exec: %w", errors.ErrUnsupported)
}
