//go:build linux

package hal

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/tramcast/tramcast/pkg/log"
)

func reboot(context.Context) error {
	log.Warn("Rebooting")
	_ = log.Sync()
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}
	return nil
}

func reexec(context.Context) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate the agent binary: %w", err)
	}
	log.Warn("Re-executing agent", "path", exe)
	_ = log.Sync()
	if err := unix.Exec(exe, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("exec %s: %w", exe, err)
	}
	return nil
}
