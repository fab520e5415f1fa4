package bluetooth

import "context"

// UnknownName is used when a device reports no name.
const UnknownName = "Unknown Device"

// PairedDevice is one live observation from an Enumerator.
type PairedDevice struct {
	// Address is the device identifier (MAC address in the platform's
	// notation). Never empty.
	Address   string `json:"address"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// Operation is a backend action.
type Operation string

const (
	OpPair    Operation = "pair"
	OpConnect Operation = "connect"
	OpUnpair  Operation = "unpair"
)

// Valid reports whether op is one of the known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpPair, OpConnect, OpUnpair:
		return true
	}
	return false
}

// Enumerator lists the currently paired peripherals.
//
// An error means the source is unavailable for this call; callers treat it
// as "no information" rather than "no devices".
type Enumerator interface {
	ListPaired(ctx context.Context) ([]PairedDevice, error)
}

// Backend performs pair/connect/unpair for a device and returns whatever
// text the platform produced. A non-nil error marks the attempt failed.
type Backend interface {
	Execute(ctx context.Context, id string, op Operation) (string, error)
}

// Logger is the logging interface used by the backends.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
