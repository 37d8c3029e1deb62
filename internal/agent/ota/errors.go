package ota

import "errors"

// Protocol violations. Each is returned wrapped in a core.FatalError.
var (
	ErrUnexpectedInitial = errors.New("initial chunk while a transfer is in progress")
	ErrUnexpectedChunk   = errors.New("chunk without a transfer in progress")
	ErrChunkAfterEnd     = errors.New("chunk after the transfer ended")
	ErrInvalidTotal      = errors.New("invalid declared total size")
	ErrTotalMismatch     = errors.New("declared total size changed during the transfer")
	ErrOffsetMismatch    = errors.New("declared offset does not match bytes written")
	ErrEmptyChunk        = errors.New("empty chunk")
	ErrOvershoot         = errors.New("chunk overshoots the declared total size")
	ErrSizeMismatch      = errors.New("bytes written differ from the declared total size")
)

// Storage and boot failures. Also fatal.
var (
	ErrStorage         = errors.New("firmware storage failure")
	ErrRestartReturned = errors.New("restart returned")
	ErrRollbackFailed  = errors.New("rollback failed")
	ErrRebootReturned  = errors.New("rollback reboot returned")
)

// ErrMarkValid is returned when the storage refuses to mark the running
// image valid. It is recoverable: the bootloader rolls back on its own if
// no later confirm succeeds.
var ErrMarkValid = errors.New("failed to mark the running image valid")
