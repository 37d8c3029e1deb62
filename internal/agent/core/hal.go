package core

import (
	"context"
	"io"

	"github.com/tramcast/tramcast/pkg/mqtt"
)

// Network associates the device with the wireless network. Transient
// failures are retried by the implementation; a returned error is final.
type Network interface {
	// Connect blocks until the link is usable (address assigned).
	Connect(ctx context.Context, ssid, password string) error
	IsConnected(ctx context.Context) (bool, error)
}

// TimeSource reports wall-clock synchronization. It is polled; there is no
// completion notification.
type TimeSource interface {
	Start(ctx context.Context) error
	Status(ctx context.Context) (SyncStatus, error)
}

// Broker opens a broker client. The returned client is not started.
type Broker interface {
	Open(ctx context.Context, endpoint, clientID string) (mqtt.Client, error)
}

// FirmwareStorage owns the firmware slots and the boot pointer.
type FirmwareStorage interface {
	// BeginWrite opens a writer on the spare slot.
	BeginWrite(ctx context.Context) (FirmwareWriter, error)

	// MarkCurrentPartitionValid cancels the pending automatic rollback of a
	// freshly booted image.
	MarkCurrentPartitionValid(ctx context.Context) error

	// RollbackAndReboot boots the previous image. It does not return on success.
	RollbackAndReboot(ctx context.Context) error
}

// FirmwareWriter receives the image bytes in order.
type FirmwareWriter interface {
	io.Writer

	// Finalize flushes and verifies the written image.
	Finalize(ctx context.Context) (FirmwareImage, error)

	// Abort discards everything written so far.
	Abort() error
}

// FirmwareImage is a finalized image in the spare slot.
type FirmwareImage interface {
	SetAsBootPartition(ctx context.Context) error

	// Restart boots the boot partition. It does not return on success.
	Restart(ctx context.Context) error
}
