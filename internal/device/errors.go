package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDevicePaired is returned when removing a device the enumerator
	// still reports as paired, or whose pairing state cannot be determined.
	ErrDevicePaired = errors.New("device: still paired")

	// ErrInvalidTransition is returned when an operation status change is
	// not an allowed edge.
	ErrInvalidTransition = errors.New("device: invalid status transition")

	// ErrInvalidStatus is returned when an operation status is not recognised.
	ErrInvalidStatus = errors.New("device: invalid operation status")

	// ErrKeyNotFound is returned by a Store when the key has never been set.
	ErrKeyNotFound = errors.New("device: store key not found")
)
