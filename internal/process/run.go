package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrTimeout is returned by Run when the command outlives its timeout.
var ErrTimeout = errors.New("process: command timed out")

// Result is the outcome of a one-shot command.
type Result struct {
	// Output holds stdout followed by stderr.
	Output   string
	ExitCode int
	Duration time.Duration
}

// Runner executes one-shot commands. *Exec is the production
// implementation; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, binary string, args ...string) (Result, error)
}

// Exec runs commands with os/exec.
type Exec struct {
	// Timeout bounds each command. 0 means only ctx bounds it.
	Timeout time.Duration
}

// Run executes binary and waits for it. A non-zero exit is not an error:
// callers judge success from Output and ExitCode. An error is returned only
// when the command could not run or was cut short by ctx or Timeout.
func (e Exec) Run(ctx context.Context, binary string, args ...string) (Result, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec // Binary comes from validated config
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Output:   stdout.String() + stderr.String(),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && e.Timeout > 0 {
			return res, fmt.Errorf("%w: %s after %v", ErrTimeout, binary, e.Timeout)
		}
		return res, fmt.Errorf("running %s: %w", binary, ctxErr)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("running %s: %w", binary, err)
	}
	return res, nil
}
