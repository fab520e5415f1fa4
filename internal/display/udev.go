package display

import (
	"context"
	"strings"
	"time"

	"github.com/nerrad567/autopair-core/internal/process"
)

// DefaultUdevadmPath is where udevadm lives on most distributions.
const DefaultUdevadmPath = "/usr/bin/udevadm"

// UdevMonitor runs `udevadm monitor` for the drm subsystem under process
// supervision and calls onHotplug for every uevent, so hotplugs are
// probed immediately instead of on the next poll.
type UdevMonitor struct {
	mgr *process.Manager
}

// NewUdevMonitor creates a monitor. onHotplug is called from the output
// capture goroutine and must not block.
func NewUdevMonitor(udevadmPath string, onHotplug func()) *UdevMonitor {
	if udevadmPath == "" {
		udevadmPath = DefaultUdevadmPath
	}
	mgr := process.NewManager(process.Config{
		Name:               "udevadm-monitor",
		Binary:             udevadmPath,
		Args:               []string{"monitor", "--udev", "--subsystem-match=drm"},
		RestartOnFailure:   true,
		RestartDelay:       5 * time.Second,
		MaxRestartAttempts: 0,
		GracefulTimeout:    2 * time.Second,
		OnLine: func(_, line string) {
			if isDRMEvent(line) {
				onHotplug()
			}
		},
	})
	return &UdevMonitor{mgr: mgr}
}

// SetLogger sets the logger for the supervised process.
func (u *UdevMonitor) SetLogger(logger process.Logger) {
	u.mgr.SetLogger(logger)
}

// Start launches udevadm.
func (u *UdevMonitor) Start(ctx context.Context) error {
	return u.mgr.Start(ctx)
}

// Stop terminates udevadm.
func (u *UdevMonitor) Stop() error {
	return u.mgr.Stop()
}

// isDRMEvent matches uevent lines such as
// "UDEV  [1234.5678] change   /devices/pci0000:00/.../drm/card0 (drm)".
func isDRMEvent(line string) bool {
	if !strings.HasSuffix(strings.TrimSpace(line), "(drm)") {
		return false
	}
	for _, action := range []string{" change ", " add ", " remove "} {
		if strings.Contains(line, action) {
			return true
		}
	}
	return false
}
