package pairing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/autopair-core/internal/bluetooth"
	"github.com/nerrad567/autopair-core/internal/device"
)

// DefaultErrorPatterns are the output fragments reported as the reason for
// an unconfirmed operation. Matching is case-sensitive.
var DefaultErrorPatterns = []string{"error", "Failed", "Timeout", "0x"}

// Logger defines the logging interface used by this package.
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

// StatusSetter receives operation status resets from the Executor.
type StatusSetter interface {
	SetOperationStatus(id string, status device.OperationStatus) error
}

// Result is the outcome of one Attempt.
type Result struct {
	DeviceID  string              `json:"device_id"`
	Operation bluetooth.Operation `json:"operation"`
	Success   bool                `json:"success"`
	Attempts  int                 `json:"attempts"`
	Elapsed   time.Duration       `json:"elapsed"`

	// Output is the backend text from the last attempt.
	Output string `json:"output,omitempty"`

	// Err is ErrAttemptsExhausted or the context error. Nil on success.
	Err error `json:"-"`
}

// Executor performs single backend operations and judges their outcome.
type Executor struct {
	backend  bluetooth.Backend
	enum     bluetooth.Enumerator
	status   StatusSetter
	patterns []string
	logger   Logger
}

// NewExecutor creates an executor. status may be nil. Empty patterns fall
// back to DefaultErrorPatterns.
func NewExecutor(backend bluetooth.Backend, enum bluetooth.Enumerator, status StatusSetter, patterns []string) *Executor {
	if len(patterns) == 0 {
		patterns = DefaultErrorPatterns
	}
	return &Executor{
		backend:  backend,
		enum:     enum,
		status:   status,
		patterns: append([]string(nil), patterns...),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the executor.
func (e *Executor) SetLogger(logger Logger) {
	e.logger = logger
}

// Execute makes one backend call for id and reports whether it succeeded,
// together with the backend output.
//
// Unpair is not verified and always counts as done. Pair succeeds only when
// the enumerator lists id afterwards and connect only when it reports id
// connected. The output and any backend error never decide the result; they
// only explain a failure in the logs.
func (e *Executor) Execute(ctx context.Context, op bluetooth.Operation, id string) (bool, string) {
	output, err := e.backend.Execute(ctx, id, op)

	if op == bluetooth.OpUnpair {
		if err != nil {
			e.logger.Warn("unpair command failed", "device_id", id, "error", err)
		}
		return true, output
	}

	var ok bool
	switch op {
	case bluetooth.OpPair:
		ok = e.paired(ctx, id)
	case bluetooth.OpConnect:
		ok = e.connected(ctx, id)
	}
	if !ok {
		e.logger.Debug("operation not confirmed by enumeration", "operation", op, "device_id", id,
			"reason", e.failureReason(output, err))
	}
	return ok, output
}

// failureReason describes why an unconfirmed call most likely failed.
func (e *Executor) failureReason(output string, err error) string {
	if err != nil {
		return err.Error()
	}
	if strings.TrimSpace(output) == "" {
		return "no output"
	}
	for _, p := range e.patterns {
		if strings.Contains(output, p) {
			return fmt.Sprintf("output contains %q", p)
		}
	}
	return "not confirmed"
}

func (e *Executor) lookup(ctx context.Context, id string) (bluetooth.PairedDevice, bool) {
	devices, err := e.enum.ListPaired(ctx)
	if err != nil {
		return bluetooth.PairedDevice{}, false
	}
	for _, d := range devices {
		if d.Address == id {
			return d, true
		}
	}
	return bluetooth.PairedDevice{}, false
}

func (e *Executor) paired(ctx context.Context, id string) bool {
	_, ok := e.lookup(ctx, id)
	return ok
}

func (e *Executor) connected(ctx context.Context, id string) bool {
	d, ok := e.lookup(ctx, id)
	return ok && d.Connected
}

// Attempt runs op up to maxAttempts times, waiting delay between attempts.
// It stops at the first success. On exhaustion or cancellation the device
// status is reset to idle.
func (e *Executor) Attempt(ctx context.Context, op bluetooth.Operation, id string, maxAttempts int, delay time.Duration) Result {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	start := time.Now()
	res := Result{DeviceID: id, Operation: op}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		e.logger.Info("backend operation", "operation", op, "device_id", id, "attempt", attempt, "max_attempts", maxAttempts)

		res.Attempts = attempt
		ok, output := e.Execute(ctx, op, id)
		res.Output = strings.TrimSpace(output)
		if ok {
			res.Success = true
			res.Elapsed = time.Since(start)
			e.logger.Info("backend operation succeeded", "operation", op, "device_id", id, "attempt", attempt)
			return res
		}

		e.logger.Warn("backend operation failed", "operation", op, "device_id", id,
			"attempt", attempt, "max_attempts", maxAttempts, "output", res.Output)

		if attempt < maxAttempts {
			if err := wait(ctx, delay); err != nil {
				res.Err = err
				break
			}
		}
	}

	res.Elapsed = time.Since(start)
	if res.Err == nil {
		res.Err = fmt.Errorf("%w: %s %s after %d attempts", ErrAttemptsExhausted, op, id, res.Attempts)
	}
	e.logger.Error("backend operation gave up", "operation", op, "device_id", id, "attempts", res.Attempts, "error", res.Err)
	e.resetStatus(id)
	return res
}

func (e *Executor) resetStatus(id string) {
	if e.status == nil {
		return
	}
	if err := e.status.SetOperationStatus(id, device.StatusIdle); err != nil {
		e.logger.Debug("status reset skipped", "device_id", id, "error", err)
	}
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
