package bluetooth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/autopair-core/internal/process"
)

// Blueutil drives the macOS blueutil CLI. It serves as both Enumerator and
// Backend.
type Blueutil struct {
	path   string
	runner process.Runner
	logger Logger
}

// NewBlueutil returns a Blueutil invoking the binary at path through runner.
func NewBlueutil(path string, runner process.Runner) *Blueutil {
	return &Blueutil{path: path, runner: runner, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (b *Blueutil) SetLogger(logger Logger) {
	b.logger = logger
}

// blueutilDevice mirrors one element of `blueutil --paired --format json`.
type blueutilDevice struct {
	Address   string `json:"address"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// ListPaired runs `blueutil --paired --format json`. blueutil does not
// report device class, so every paired device is returned.
func (b *Blueutil) ListPaired(ctx context.Context) ([]PairedDevice, error) {
	res, err := b.runner.Run(ctx, b.path, "--paired", "--format", "json")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("%w: blueutil exited %d: %s", ErrUnavailable, res.ExitCode, strings.TrimSpace(res.Output))
	}
	return b.parsePaired([]byte(res.Output))
}

func (b *Blueutil) parsePaired(data []byte) ([]PairedDevice, error) {
	var raw []blueutilDevice
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding blueutil output: %w", ErrUnavailable, err)
	}

	devices := make([]PairedDevice, 0, len(raw))
	for _, d := range raw {
		if d.Address == "" {
			b.logger.Warn("found device with no address, skipping", "name", d.Name)
			continue
		}
		name := d.Name
		if name == "" {
			name = UnknownName
		}
		devices = append(devices, PairedDevice{Address: d.Address, Name: name, Connected: d.Connected})
	}
	return devices, nil
}

// Execute runs `blueutil --<op> <id>` and returns its combined output.
// Output classification is left to the caller.
func (b *Blueutil) Execute(ctx context.Context, id string, op Operation) (string, error) {
	if !op.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}

	res, err := b.runner.Run(ctx, b.path, "--"+string(op), id)
	b.logger.Debug("blueutil finished",
		"operation", op,
		"device_id", id,
		"exit_code", res.ExitCode,
		"output", strings.TrimSpace(res.Output),
		"duration", res.Duration,
	)
	if err != nil {
		return res.Output, fmt.Errorf("blueutil --%s %s: %w", op, id, err)
	}
	return res.Output, nil
}
