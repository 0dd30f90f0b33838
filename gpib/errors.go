package gpib

import "errors"

var (
	// ErrConfig indicates invalid addressing parameters. It is fatal to opening a session.
	ErrConfig = errors.New("gpib: invalid device configuration")

	// ErrNotFound indicates the device descriptor could not be obtained.
	ErrNotFound = errors.New("gpib: device not found")

	// ErrUnresponsive indicates the device did not answer the liveness check.
	ErrUnresponsive = errors.New("gpib: device is not responding")

	// ErrSessionClosed indicates an operation on a session without an open device.
	ErrSessionClosed = errors.New("gpib: session is closed")
)

var (
	// ErrDriver indicates the driver reported an error. A device clear recovers it.
	ErrDriver = errors.New("gpib: driver error")

	// ErrTimeout indicates the time budget of a transfer was exhausted.
	ErrTimeout = errors.New("gpib: transfer timeout")

	// ErrAborted indicates a transfer was stopped by a pending abort.
	ErrAborted = errors.New("gpib: transfer aborted")

	// ErrPreviousError indicates a bus access refused because an earlier call failed.
	ErrPreviousError = errors.New("gpib: previous bus error")
)
