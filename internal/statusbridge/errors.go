package statusbridge

import "errors"

var (
	// ErrInvalidCommand is returned for a command payload that cannot be decoded.
	ErrInvalidCommand = errors.New("statusbridge: invalid command")

	// ErrUnknownAction is returned for a command action that is not supported.
	ErrUnknownAction = errors.New("statusbridge: unknown action")
)
