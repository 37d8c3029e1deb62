package core

import (
	"errors"
)

// FatalError marks a failure the agent must not recover from in-process.
// It travels up to the supervisor, which stops and lets the external
// watchdog restart the device.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as a FatalError. A nil or already fatal err is returned as is.
func Fatal(err error) error {
	if err == nil || IsFatal(err) {
		return err
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether any error in err's chain is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
