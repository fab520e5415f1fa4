package display

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDRMPath is the sysfs DRM class directory on Linux.
const DefaultDRMPath = "/sys/class/drm"

// builtinConnectors are connector types wired to a laptop's own panel.
var builtinConnectors = []string{"eDP", "LVDS", "DSI"}

// DRMSource reads connector status files under /sys/class/drm.
//
// Each connector appears as a directory named card<N>-<type>-<index>
// holding a status file that reads "connected" or "disconnected". A
// connected connector whose type is not a built-in panel counts as an
// external display.
type DRMSource struct {
	root string
}

// NewDRMSource returns a source reading from root. An empty root uses
// DefaultDRMPath.
func NewDRMSource(root string) *DRMSource {
	if root == "" {
		root = DefaultDRMPath
	}
	return &DRMSource{root: root}
}

// HasExternalDisplay implements Source.
func (s *DRMSource) HasExternalDisplay(ctx context.Context) (bool, error) {
	connectors, err := s.Connectors(ctx)
	if err != nil {
		return false, err
	}
	for _, c := range connectors {
		if c.Connected && !c.Builtin {
			return true, nil
		}
	}
	return false, nil
}

// Connector is one DRM connector and its status.
type Connector struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Builtin   bool   `json:"builtin"`
}

// Connectors lists every connector with a readable status file.
func (s *DRMSource) Connectors(ctx context.Context) ([]Connector, error) {
	if _, err := os.Stat(s.root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	paths, err := filepath.Glob(filepath.Join(s.root, "card*-*", "status"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	connectors := make([]Connector, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			// Connectors can vanish between glob and read on hot-unplug.
			continue
		}
		name := connectorType(filepath.Base(filepath.Dir(p)))
		connectors = append(connectors, Connector{
			Name:      name,
			Connected: strings.TrimSpace(string(data)) == "connected",
			Builtin:   isBuiltin(name),
		})
	}
	return connectors, nil
}

// connectorType strips the card prefix: "card1-HDMI-A-1" -> "HDMI-A-1".
func connectorType(dir string) string {
	_, rest, ok := strings.Cut(dir, "-")
	if !ok {
		return dir
	}
	return rest
}

func isBuiltin(name string) bool {
	for _, prefix := range builtinConnectors {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
