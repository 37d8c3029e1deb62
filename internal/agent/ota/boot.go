package ota

import (
	"context"
	"fmt"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/pkg/log"
)

// BootControl forwards post-reboot confirm and rollback requests to the
// storage. The confirm window itself is enforced by the bootloader.
type BootControl struct {
	storage core.FirmwareStorage
}

func NewBootControl(storage core.FirmwareStorage) *BootControl {
	return &BootControl{storage: storage}
}

// Confirm marks the running image valid.
func (b *BootControl) Confirm(ctx context.Context) error {
	if err := b.storage.MarkCurrentPartitionValid(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMarkValid, err)
	}
	log.Info("Running image confirmed")
	return nil
}

// Rollback boots the previous image. It always returns a fatal error: the
// storage call does not return on success.
func (b *BootControl) Rollback(ctx context.Context) error {
	log.Warn("Rolling back to the previous image")
	if err := b.storage.RollbackAndReboot(ctx); err != nil {
		return core.Fatal(fmt.Errorf("%w: %w", ErrRollbackFailed, err))
	}
	return core.Fatal(ErrRebootReturned)
}
