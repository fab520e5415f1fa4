package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/autopair-core/internal/api"
	"github.com/nerrad567/autopair-core/internal/device"
	"github.com/nerrad567/autopair-core/internal/infrastructure/config"
	"github.com/nerrad567/autopair-core/internal/infrastructure/logging"
)

const testSecret = "test-secret-for-development-only-0123456789"

// writeConfig writes content to a temp file and points AUTOPAIR_CONFIG at it.
func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("AUTOPAIR_CONFIG", path)
	t.Setenv("AUTOPAIR_JWT_SECRET", "")
}

// TestRun_InvalidConfig verifies run fails before touching any hardware
// when the config cannot be loaded.
func TestRun_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			content: "bluetooth: [not a map",
			wantErr: "parsing config file",
		},
		{
			name: "unknown backend",
			content: `
bluetooth:
  backend: carrier-pigeon
`,
			wantErr: "bluetooth.backend",
		},
		{
			name: "short jwt secret",
			content: `
security:
  jwt:
    secret: "too-short"
`,
			wantErr: "at least 32 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, tt.content)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err := run(ctx)
			if err == nil {
				t.Fatal("run() should fail with invalid config")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("run() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("AUTOPAIR_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("AUTOPAIR_CONFIG", "/etc/autopair/config.yaml")
	if got := getConfigPath(); got != "/etc/autopair/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env value", got)
	}
}

func TestRunToken(t *testing.T) {
	writeConfig(t, `
security:
  jwt:
    secret: "`+testSecret+`"
`)

	var out bytes.Buffer
	if err := runToken([]string{"-subject", "desk-agent", "-ttl", "1h"}, &out); err != nil {
		t.Fatalf("runToken() error = %v", err)
	}

	subject, err := api.ParseToken(testSecret, strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if subject != "desk-agent" {
		t.Errorf("subject = %q, want desk-agent", subject)
	}
}

func TestRunToken_NoSecret(t *testing.T) {
	writeConfig(t, "logging:\n  level: warn\n")

	var out bytes.Buffer
	err := runToken(nil, &out)
	if err == nil {
		t.Fatal("runToken() should fail without a secret")
	}
	if out.Len() != 0 {
		t.Errorf("runToken() wrote %q on failure", out.String())
	}
}

func TestRunToken_BadFlag(t *testing.T) {
	writeConfig(t, "")
	if err := runToken([]string{"-ttl", "soon"}, &bytes.Buffer{}); err == nil {
		t.Fatal("runToken() should reject an unparseable ttl")
	}
}

func TestPrintVersion(t *testing.T) {
	var out bytes.Buffer
	printVersion(&out)
	if !strings.HasPrefix(out.String(), "autopair "+version) {
		t.Errorf("printVersion() = %q", out.String())
	}
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := config.PairingConfig{
		DisplayPairAttempts: 30,
		PairAttempts:        2,
		ConnectAttempts:     5,
		RetryDelay:          time.Second,
		SettleDelay:         500 * time.Millisecond,
		MaxParallel:         4,
	}

	p := policyFromConfig(cfg)
	if p.DisplayPairAttempts != 30 || p.PairAttempts != 2 || p.ConnectAttempts != 5 {
		t.Errorf("attempts = %d/%d/%d, want 30/2/5", p.DisplayPairAttempts, p.PairAttempts, p.ConnectAttempts)
	}
	if p.RetryDelay != time.Second || p.SettleDelay != 500*time.Millisecond {
		t.Errorf("delays = %v/%v", p.RetryDelay, p.SettleDelay)
	}
	if p.MaxParallel != 4 {
		t.Errorf("MaxParallel = %d, want 4", p.MaxParallel)
	}
}

func TestInventoryCounts(t *testing.T) {
	devices := []device.Device{
		{ID: "AA:BB", IsSaved: true, IsConnected: true},
		{ID: "CC:DD", IsSaved: true},
		{ID: "EE:FF", IsConnected: true},
		{ID: "11:22"},
	}

	total, saved, connected := inventoryCounts(devices)
	if total != 4 || saved != 2 || connected != 2 {
		t.Errorf("inventoryCounts() = %d/%d/%d, want 4/2/2", total, saved, connected)
	}

	total, saved, connected = inventoryCounts(nil)
	if total != 0 || saved != 0 || connected != 0 {
		t.Errorf("inventoryCounts(nil) = %d/%d/%d, want zeros", total, saved, connected)
	}
}

func TestOpenBluetooth(t *testing.T) {
	log := logging.Discard()

	t.Run("blueutil", func(t *testing.T) {
		cfg := config.BluetoothConfig{
			Backend:        config.BackendBlueutil,
			BlueutilPath:   "/usr/local/bin/blueutil",
			CommandTimeout: time.Second,
		}
		bt, bluez, err := openBluetooth(context.Background(), cfg, log)
		if err != nil {
			t.Fatalf("openBluetooth() error = %v", err)
		}
		if bt == nil {
			t.Error("backend should not be nil")
		}
		if bluez != nil {
			t.Error("blueutil backend should not return a BlueZ handle")
		}
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := openBluetooth(context.Background(), config.BluetoothConfig{Backend: "nope"}, log)
		if err == nil {
			t.Fatal("openBluetooth() should reject an unknown backend")
		}
	})
}

func TestSetupDisplay(t *testing.T) {
	log := logging.Discard()
	ctx := context.Background()

	t.Run("api source returns setter", func(t *testing.T) {
		cfg := config.Default()
		cfg.Display.Source = config.DisplaySourceAPI

		watcher, manual, err := setupDisplay(ctx, cfg, nil, log)
		if err != nil {
			t.Fatalf("setupDisplay() error = %v", err)
		}
		if watcher == nil || manual == nil {
			t.Fatal("api source should return a watcher and a manual source")
		}
	})

	t.Run("drm source has no setter", func(t *testing.T) {
		cfg := config.Default()
		cfg.Display.Source = config.DisplaySourceDRM
		cfg.Display.DRMPath = t.TempDir()
		cfg.Display.UdevMonitor = false

		watcher, manual, err := setupDisplay(ctx, cfg, nil, log)
		if err != nil {
			t.Fatalf("setupDisplay() error = %v", err)
		}
		if watcher == nil {
			t.Fatal("watcher should not be nil")
		}
		if manual != nil {
			t.Error("drm source should not expose a manual setter")
		}
	})

	t.Run("mqtt source without client", func(t *testing.T) {
		cfg := config.Default()
		cfg.Display.Source = config.DisplaySourceMQTT

		if _, _, err := setupDisplay(ctx, cfg, nil, log); err == nil {
			t.Fatal("mqtt source should require an MQTT client")
		}
	})
}
