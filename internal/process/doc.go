// Package process runs external programs for autopair.
//
// Two shapes are supported:
//   - Exec.Run for one-shot commands such as `blueutil --pair <id>`,
//     returning combined output for the caller to classify
//   - Manager for long-running helpers such as `udevadm monitor`, with
//     line-by-line output callbacks, restart on failure and process-group
//     shutdown
//
// Example:
//
//	mgr := process.NewManager(process.Config{
//	    Name:             "udevadm-monitor",
//	    Binary:           "/usr/bin/udevadm",
//	    Args:             []string{"monitor", "--udev", "--subsystem-match=drm"},
//	    RestartOnFailure: true,
//	    OnLine:           func(_, line string) { trigger() },
//	})
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
