package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
bluetooth:
  backend: "blueutil"
  blueutil_path: "/usr/local/bin/blueutil"
display:
  source: "api"
reconcile:
  interval: 10s
pairing:
  display_pair_attempts: 12
  connect_attempts: 3
  retry_delay: 500ms
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Bluetooth.Backend != BackendBlueutil {
		t.Errorf("Bluetooth.Backend = %q, want %q", cfg.Bluetooth.Backend, BackendBlueutil)
	}
	if cfg.Reconcile.Interval != 10*time.Second {
		t.Errorf("Reconcile.Interval = %v, want 10s", cfg.Reconcile.Interval)
	}
	if cfg.Pairing.DisplayPairAttempts != 12 {
		t.Errorf("DisplayPairAttempts = %d, want 12", cfg.Pairing.DisplayPairAttempts)
	}
	if cfg.Pairing.RetryDelay != 500*time.Millisecond {
		t.Errorf("RetryDelay = %v, want 500ms", cfg.Pairing.RetryDelay)
	}
	// Untouched values keep their defaults.
	if cfg.Pairing.PairAttempts != 1 {
		t.Errorf("PairAttempts = %d, want default 1", cfg.Pairing.PairAttempts)
	}
	if cfg.Pairing.SettleDelay != time.Second {
		t.Errorf("SettleDelay = %v, want default 1s", cfg.Pairing.SettleDelay)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pairing.DisplayPairAttempts != 30 {
		t.Errorf("DisplayPairAttempts = %d, want 30", cfg.Pairing.DisplayPairAttempts)
	}
	if cfg.Pairing.ConnectAttempts != 5 {
		t.Errorf("ConnectAttempts = %d, want 5", cfg.Pairing.ConnectAttempts)
	}
	if cfg.Reconcile.Interval != 5*time.Second {
		t.Errorf("Reconcile.Interval = %v, want 5s", cfg.Reconcile.Interval)
	}
	if len(cfg.Pairing.ErrorPatterns) != 4 {
		t.Errorf("ErrorPatterns = %v, want 4 defaults", cfg.Pairing.ErrorPatterns)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AUTOPAIR_DATABASE_PATH", "/var/lib/autopair/env.db")
	t.Setenv("AUTOPAIR_BLUETOOTH_BACKEND", "blueutil")
	t.Setenv("AUTOPAIR_API_PORT", "9999")

	cfg, err := Load(writeConfig(t, "database:\n  path: /tmp/file.db\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/var/lib/autopair/env.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Bluetooth.Backend != BackendBlueutil {
		t.Errorf("Bluetooth.Backend = %q, want env override", cfg.Bluetooth.Backend)
	}
	if cfg.API.Port != 9999 {
		t.Errorf("API.Port = %d, want 9999", cfg.API.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "bad qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Bluetooth.Backend = "bluetoothctl" },
			wantErr: "bluetooth.backend",
		},
		{
			name:    "mqtt display source without mqtt",
			mutate:  func(c *Config) { c.Display.Source = DisplaySourceMQTT },
			wantErr: "requires mqtt.enabled",
		},
		{
			name:    "zero reconcile interval",
			mutate:  func(c *Config) { c.Reconcile.Interval = 0 },
			wantErr: "reconcile.interval",
		},
		{
			name:    "zero connect attempts",
			mutate:  func(c *Config) { c.Pairing.ConnectAttempts = 0 },
			wantErr: "connect_attempts",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: "jwt.secret",
		},
		{
			name:    "negative history retention",
			mutate:  func(c *Config) { c.History.Retention = -time.Hour },
			wantErr: "history.retention",
		},
		{
			name:    "zero history queue",
			mutate:  func(c *Config) { c.History.QueueSize = 0 },
			wantErr: "history.queue_size",
		},
		{
			name:    "api port out of range",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = ""
	cfg.Pairing.PairAttempts = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	if !strings.Contains(err.Error(), "database.path") || !strings.Contains(err.Error(), "pair_attempts") {
		t.Errorf("Validate() error = %v, want both problems reported", err)
	}
}

func TestTimeoutHelpers(t *testing.T) {
	cfg := Default()
	if cfg.GetReadTimeout() != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", cfg.GetReadTimeout())
	}
	if cfg.GetWriteTimeout() != 30*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 30s", cfg.GetWriteTimeout())
	}
	if cfg.GetIdleTimeout() != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", cfg.GetIdleTimeout())
	}
}
