package flash

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrInvalidGame is returned when the requested file name is malformed
	// or would resolve outside the games directory.
	ErrInvalidGame = errors.New("flash: invalid game file name")

	// ErrGameNotFound is returned when the image does not exist.
	ErrGameNotFound = errors.New("flash: game not found")

	// ErrDeviceBusy is returned when another flash is already running.
	ErrDeviceBusy = errors.New("flash: device busy")

	// ErrCommandNotFound is returned when the flashing binary is missing.
	ErrCommandNotFound = errors.New("flash: command not found")

	// ErrPortUnavailable is returned when the serial port does not exist.
	ErrPortUnavailable = errors.New("flash: serial port unavailable")

	// ErrTimeout is returned when the configured timeout expires.
	ErrTimeout = errors.New("flash: timed out")
)

// ExitError reports a flashing command that exited non-zero.
type ExitError struct {
	// Code is the process exit code.
	Code int

	// Command is the binary that was run.
	Command string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("flash: %s exited with status %d", e.Command, e.Code)
}

// IsExitError reports whether err is (or wraps) an ExitError.
func IsExitError(err error) bool {
	var ee *ExitError
	return errors.As(err, &ee)
}
