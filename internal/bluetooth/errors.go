package bluetooth

import "errors"

var (
	// ErrUnavailable is returned when the enumeration source cannot be
	// queried (tool missing, daemon down, bad output).
	ErrUnavailable = errors.New("bluetooth: enumeration unavailable")

	// ErrUnknownOperation is returned for an Operation outside pair/connect/unpair.
	ErrUnknownOperation = errors.New("bluetooth: unknown operation")

	// ErrBlueZNotFound is returned when org.bluez is not on the system bus.
	ErrBlueZNotFound = errors.New("bluetooth: org.bluez not found on system bus")
)
