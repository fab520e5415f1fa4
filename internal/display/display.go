package display

import (
	"context"
	"time"
)

// Source reports whether an external display is currently attached.
type Source interface {
	HasExternalDisplay(ctx context.Context) (bool, error)
}

// Event is emitted when the external display state flips.
type Event struct {
	External bool      `json:"external"`
	At       time.Time `json:"at"`
}

// Logger is the logging interface used by this package.
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
