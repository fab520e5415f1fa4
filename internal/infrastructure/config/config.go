package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for autopair.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Bluetooth BluetoothConfig `yaml:"bluetooth"`
	Display   DisplayConfig   `yaml:"display"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Pairing   PairingConfig   `yaml:"pairing"`
	History   HistoryConfig   `yaml:"history"`
	Security  SecurityConfig  `yaml:"security"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Bluetooth backend names.
const (
	BackendBlueutil = "blueutil"
	BackendBlueZ    = "bluez"
)

// BluetoothConfig selects and configures the pairing backend and
// enumeration source.
type BluetoothConfig struct {
	// Backend is "blueutil" (macOS, shells out) or "bluez" (Linux, D-Bus).
	Backend string `yaml:"backend"`

	// BlueutilPath is the blueutil executable used by the blueutil backend.
	BlueutilPath string `yaml:"blueutil_path"`

	// Adapter is the BlueZ adapter name (e.g. "hci0").
	Adapter string `yaml:"adapter"`

	// CommandTimeout bounds a single backend command. 0 disables the bound.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// Display topology source names.
const (
	DisplaySourceDRM  = "drm"
	DisplaySourceMQTT = "mqtt"
	DisplaySourceAPI  = "api"
)

// DisplayConfig configures where external display events come from.
type DisplayConfig struct {
	// Source is "drm" (Linux sysfs), "mqtt" or "api" (pushed via HTTP only).
	Source string `yaml:"source"`

	// DRMPath is the sysfs DRM class directory.
	DRMPath string `yaml:"drm_path"`

	// PollInterval is how often the DRM source is probed.
	PollInterval time.Duration `yaml:"poll_interval"`

	// UdevMonitor runs a supervised `udevadm monitor` to probe on hotplug
	// instead of waiting for the next poll.
	UdevMonitor bool   `yaml:"udev_monitor"`
	UdevadmPath string `yaml:"udevadm_path"`

	// MQTTTopic carries {"external": bool} payloads for the mqtt source.
	MQTTTopic string `yaml:"mqtt_topic"`
}

// ReconcileConfig controls the periodic enumeration refresh.
type ReconcileConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// PairingConfig holds the retry bounds and delays for pairing workflows.
type PairingConfig struct {
	// DisplayPairAttempts bounds pairing during a display-connect cascade.
	DisplayPairAttempts int `yaml:"display_pair_attempts"`

	// PairAttempts bounds an individually triggered pair.
	PairAttempts int `yaml:"pair_attempts"`

	// ConnectAttempts bounds every connect.
	ConnectAttempts int `yaml:"connect_attempts"`

	RetryDelay  time.Duration `yaml:"retry_delay"`
	SettleDelay time.Duration `yaml:"settle_delay"`

	// MaxParallel caps concurrent device workflows per event. 0 = no cap.
	MaxParallel int `yaml:"max_parallel"`

	// ErrorPatterns are substrings logged as the reason an unconfirmed
	// operation failed.
	ErrorPatterns []string `yaml:"error_patterns"`
}

// HistoryConfig controls the persisted log of pairing operation results.
type HistoryConfig struct {
	// Retention is how long entries are kept. 0 keeps them forever.
	Retention time.Duration `yaml:"retention"`

	// QueueSize is how many results may wait for the writer before new
	// ones are dropped.
	QueueSize int `yaml:"queue_size"`
}

// SecurityConfig contains API security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT bearer token settings.
// An empty secret leaves the API unauthenticated (loopback deployments).
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults); a missing file keeps the defaults
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AUTOPAIR_SECTION_KEY
// For example: AUTOPAIR_DATABASE_PATH, AUTOPAIR_BLUETOOTH_BACKEND
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
// Pairing bounds mirror the desktop behaviour users expect: 30 pair
// attempts when a monitor appears, 5 connect attempts, one second apart.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/autopair.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "autopair-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8765,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Bluetooth: BluetoothConfig{
			Backend:      BackendBlueZ,
			BlueutilPath: "/opt/homebrew/bin/blueutil",
			Adapter:      "hci0",
		},
		Display: DisplayConfig{
			Source:       DisplaySourceDRM,
			DRMPath:      "/sys/class/drm",
			PollInterval: 2 * time.Second,
			UdevadmPath:  "/usr/bin/udevadm",
			MQTTTopic:    "autopair/display/state",
		},
		Reconcile: ReconcileConfig{
			Interval: 5 * time.Second,
		},
		Pairing: PairingConfig{
			DisplayPairAttempts: 30,
			PairAttempts:        1,
			ConnectAttempts:     5,
			RetryDelay:          time.Second,
			SettleDelay:         time.Second,
			ErrorPatterns:       []string{"error", "Failed", "Timeout", "0x"},
		},
		History: HistoryConfig{
			Retention: 30 * 24 * time.Hour,
			QueueSize: 64,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUTOPAIR_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("AUTOPAIR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AUTOPAIR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AUTOPAIR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("AUTOPAIR_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("AUTOPAIR_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("AUTOPAIR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("AUTOPAIR_BLUETOOTH_BACKEND"); v != "" {
		cfg.Bluetooth.Backend = v
	}
	if v := os.Getenv("AUTOPAIR_BLUEUTIL_PATH"); v != "" {
		cfg.Bluetooth.BlueutilPath = v
	}

	if v := os.Getenv("AUTOPAIR_DISPLAY_SOURCE"); v != "" {
		cfg.Display.Source = v
	}

	if v := os.Getenv("AUTOPAIR_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors.
// All problems are reported together rather than one at a time.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Enabled && (c.WebSocket.PingInterval < 1 || c.WebSocket.PongTimeout < 1) {
		errs = append(errs, "websocket.ping_interval and pong_timeout must be positive")
	}

	switch c.Bluetooth.Backend {
	case BackendBlueZ:
		if c.Bluetooth.Adapter == "" {
			errs = append(errs, "bluetooth.adapter is required for the bluez backend")
		}
	case BackendBlueutil:
		if c.Bluetooth.BlueutilPath == "" {
			errs = append(errs, "bluetooth.blueutil_path is required for the blueutil backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("bluetooth.backend must be %q or %q", BackendBlueZ, BackendBlueutil))
	}
	if c.Bluetooth.CommandTimeout < 0 {
		errs = append(errs, "bluetooth.command_timeout must not be negative")
	}

	switch c.Display.Source {
	case DisplaySourceDRM:
		if c.Display.PollInterval <= 0 {
			errs = append(errs, "display.poll_interval must be positive")
		}
	case DisplaySourceMQTT:
		if !c.MQTT.Enabled {
			errs = append(errs, "display.source mqtt requires mqtt.enabled")
		}
		if c.Display.MQTTTopic == "" {
			errs = append(errs, "display.mqtt_topic is required for the mqtt source")
		}
	case DisplaySourceAPI:
		if !c.API.Enabled {
			errs = append(errs, "display.source api requires api.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("display.source must be one of %q, %q, %q",
			DisplaySourceDRM, DisplaySourceMQTT, DisplaySourceAPI))
	}

	if c.Reconcile.Interval <= 0 {
		errs = append(errs, "reconcile.interval must be positive")
	}

	if c.Pairing.DisplayPairAttempts < 1 {
		errs = append(errs, "pairing.display_pair_attempts must be at least 1")
	}
	if c.Pairing.PairAttempts < 1 {
		errs = append(errs, "pairing.pair_attempts must be at least 1")
	}
	if c.Pairing.ConnectAttempts < 1 {
		errs = append(errs, "pairing.connect_attempts must be at least 1")
	}
	if c.Pairing.RetryDelay < 0 || c.Pairing.SettleDelay < 0 {
		errs = append(errs, "pairing delays must not be negative")
	}
	if c.Pairing.MaxParallel < 0 {
		errs = append(errs, "pairing.max_parallel must not be negative")
	}

	if c.History.Retention < 0 {
		errs = append(errs, "history.retention must not be negative")
	}
	if c.History.QueueSize < 1 {
		errs = append(errs, "history.queue_size must be at least 1")
	}

	const minJWTSecretLength = 32
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
