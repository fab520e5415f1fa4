// autopair keeps Bluetooth peripherals following the desk.
//
// When an external display appears, every saved peripheral is paired and
// connected; when the last external display goes away they are unpaired so
// another machine can take them. The device list, manual controls and a
// live status stream are exposed over HTTP and, optionally, MQTT.
//
// Usage:
//
//	autopair [run]                   run the daemon (default)
//	autopair version                 print build information
//	autopair token [-subject s] [-ttl d]
//	                                 mint an API bearer token
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/autopair-core/migrations"

	"github.com/nerrad567/autopair-core/internal/api"
	"github.com/nerrad567/autopair-core/internal/bluetooth"
	"github.com/nerrad567/autopair-core/internal/device"
	"github.com/nerrad567/autopair-core/internal/display"
	"github.com/nerrad567/autopair-core/internal/history"
	"github.com/nerrad567/autopair-core/internal/infrastructure/config"
	"github.com/nerrad567/autopair-core/internal/infrastructure/database"
	"github.com/nerrad567/autopair-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/autopair-core/internal/infrastructure/logging"
	"github.com/nerrad567/autopair-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/autopair-core/internal/pairing"
	"github.com/nerrad567/autopair-core/internal/process"
	"github.com/nerrad567/autopair-core/internal/statusbridge"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// inventoryInterval is how often device counts are written to InfluxDB.
const inventoryInterval = time.Minute

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd, args := "run", []string(nil)
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	var err error
	switch cmd {
	case "run":
		err = run(ctx)
	case "version":
		printVersion(os.Stdout)
	case "token":
		err = runToken(args, os.Stdout)
	default:
		err = fmt.Errorf("unknown command %q (want run, version or token)", cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "autopair %s (commit %s, built %s)\n", version, commit, date)
}

// runToken prints a bearer token signed with the configured JWT secret.
func runToken(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	subject := fs.String("subject", "autopair-cli", "token subject")
	ttl := fs.Duration("ttl", 0, "token lifetime; 0 means no expiry")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parsing token flags: %w", err)
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		return errors.New("security.jwt.secret is not set; the API is unauthenticated")
	}

	token, err := api.IssueToken(cfg.Security.JWT.Secret, *subject, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, token)
	return nil
}

// bluetoothStack is what the pairing stack needs from a backend.
type bluetoothStack interface {
	bluetooth.Enumerator
	bluetooth.Backend
}

// run is the daemon, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting autopair",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Bluetooth backend
	bt, bluez, err := openBluetooth(ctx, cfg.Bluetooth, log)
	if err != nil {
		return err
	}
	if bluez != nil {
		defer func() {
			if closeErr := bluez.Close(); closeErr != nil {
				log.Error("error closing D-Bus connection", "error", closeErr)
			}
		}()
	}

	// Device registry
	registry := device.NewRegistry(bt, device.NewSQLiteStore(db))
	registry.SetLogger(log)
	if loadErr := registry.Load(ctx); loadErr != nil {
		log.Warn("persisted devices unreadable, starting empty", "error", loadErr)
	}
	reconciler := device.NewReconciler(registry, cfg.Reconcile.Interval)
	reconciler.SetLogger(log)

	// Pairing
	exec := pairing.NewExecutor(bt, bt, registry, cfg.Pairing.ErrorPatterns)
	exec.SetLogger(log)
	orch := pairing.NewOrchestrator(registry, exec, policyFromConfig(cfg.Pairing))
	orch.SetLogger(log)

	// Pairing history
	historyRepo := history.NewSQLiteRepository(db)
	historyRec := history.NewRecorder(historyRepo, cfg.History.QueueSize, cfg.History.Retention)
	historyRec.SetLogger(log)
	recorders := pairing.Recorders{historyRec}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		recorders = append(recorders, pairing.NewInfluxRecorder(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	orch.SetRecorder(recorders)

	// Display topology
	watcher, manual, err := setupDisplay(ctx, cfg, mqttClient, log)
	if err != nil {
		return err
	}

	// HTTP API (optional)
	var apiServer *api.Server
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:    cfg.API,
			WS:        cfg.WebSocket,
			Security:  cfg.Security,
			Logger:    log,
			Registry:  registry,
			Workflows: orch,
			Display:   watcher,
			History:   historyRepo,
			Version:   version,
		}
		if manual != nil {
			deps.DisplaySetter = manual
		}
		apiServer, err = api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		if cfg.Security.JWT.Secret == "" {
			log.Warn("API authentication disabled; keep api.host on loopback")
		}
	}

	watcher.OnChange(func(ev display.Event) {
		log.Info("display_changed", "external", ev.External)
		if influxClient != nil {
			influxClient.WriteDisplayChange(ev.External)
		}
		if apiServer != nil {
			apiServer.NotifyDisplayChange(ev)
		}
	})

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return reconciler.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return orch.Run(gctx, watcher.Events()) })
	g.Go(func() error { return historyRec.Run(gctx) })

	if bluez != nil {
		g.Go(func() error {
			// Signals only speed reconciliation up; polling still covers it.
			if watchErr := bluez.Watch(gctx, reconciler.Trigger); watchErr != nil {
				log.Warn("BlueZ signal watch stopped", "error", watchErr)
			}
			return nil
		})
	}

	if mqttClient != nil {
		bridge := statusbridge.New(mqttClient, registry, orch)
		bridge.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
			bridge.Resync()
		})
		g.Go(func() error { return bridge.Run(gctx) })
	}

	if influxClient != nil {
		g.Go(func() error {
			inventoryLoop(gctx, registry, influxClient)
			return nil
		})
	}

	log.Info("initialisation complete, waiting for shutdown signal", "devices", registry.Count())

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("autopair stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AUTOPAIR_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AUTOPAIR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openBluetooth creates the configured backend. The second return value is
// set only for BlueZ, which also supplies change signals.
func openBluetooth(ctx context.Context, cfg config.BluetoothConfig, log *logging.Logger) (bluetoothStack, *bluetooth.BlueZ, error) {
	switch cfg.Backend {
	case config.BackendBlueZ:
		bz, err := bluetooth.ConnectBlueZ(ctx, cfg.Adapter)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to BlueZ: %w", err)
		}
		bz.SetLogger(log)
		log.Info("bluetooth backend ready", "backend", cfg.Backend, "adapter", cfg.Adapter)
		return bz, bz, nil

	case config.BackendBlueutil:
		bu := bluetooth.NewBlueutil(cfg.BlueutilPath, process.Exec{Timeout: cfg.CommandTimeout})
		bu.SetLogger(log)
		log.Info("bluetooth backend ready", "backend", cfg.Backend, "path", cfg.BlueutilPath)
		return bu, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown bluetooth backend %q", cfg.Backend)
}

// setupDisplay builds the display watcher for the configured source. The
// ManualSource is returned only for the api source.
func setupDisplay(ctx context.Context, cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) (*display.Watcher, *display.ManualSource, error) {
	var (
		source display.Source
		manual *display.ManualSource
		hooks  []func(w *display.Watcher) error
	)

	switch cfg.Display.Source {
	case config.DisplaySourceDRM:
		source = display.NewDRMSource(cfg.Display.DRMPath)
		if cfg.Display.UdevMonitor {
			hooks = append(hooks, func(w *display.Watcher) error {
				mon := display.NewUdevMonitor(cfg.Display.UdevadmPath, w.Trigger)
				mon.SetLogger(log)
				if err := mon.Start(ctx); err != nil {
					// Polling still works without hotplug events.
					log.Warn("udev monitor failed to start", "error", err)
					return nil
				}
				go func() {
					<-ctx.Done()
					//nolint:errcheck // Best-effort stop on shutdown
					mon.Stop()
				}()
				return nil
			})
		}

	case config.DisplaySourceMQTT:
		if mqttClient == nil {
			return nil, nil, errors.New("display source mqtt requires an MQTT connection")
		}
		ms := display.NewMQTTSource(mqttClient, cfg.Display.MQTTTopic)
		ms.SetLogger(log)
		source = ms
		hooks = append(hooks, func(w *display.Watcher) error {
			ms.OnSet(w.Trigger)
			if err := ms.Start(); err != nil {
				return fmt.Errorf("subscribing to display topic: %w", err)
			}
			return nil
		})

	case config.DisplaySourceAPI:
		manual = display.NewManualSource()
		source = manual
		hooks = append(hooks, func(w *display.Watcher) error {
			manual.OnSet(w.Trigger)
			return nil
		})

	default:
		return nil, nil, fmt.Errorf("unknown display source %q", cfg.Display.Source)
	}

	watcher := display.NewWatcher(source, cfg.Display.PollInterval)
	watcher.SetLogger(log)
	for _, hook := range hooks {
		if err := hook(watcher); err != nil {
			return nil, nil, err
		}
	}
	log.Info("display watcher ready", "source", cfg.Display.Source)
	return watcher, manual, nil
}

// policyFromConfig maps the pairing section onto an orchestrator policy.
func policyFromConfig(cfg config.PairingConfig) pairing.Policy {
	return pairing.Policy{
		DisplayPairAttempts: cfg.DisplayPairAttempts,
		PairAttempts:        cfg.PairAttempts,
		ConnectAttempts:     cfg.ConnectAttempts,
		RetryDelay:          cfg.RetryDelay,
		SettleDelay:         cfg.SettleDelay,
		MaxParallel:         cfg.MaxParallel,
	}
}

// inventoryCounts summarises the registry for metrics.
func inventoryCounts(devices []device.Device) (total, saved, connected int) {
	for _, d := range devices {
		total++
		if d.IsSaved {
			saved++
		}
		if d.IsConnected {
			connected++
		}
	}
	return total, saved, connected
}

// inventoryLoop writes device counts to InfluxDB until ctx is done.
func inventoryLoop(ctx context.Context, registry *device.Registry, influxClient *influxdb.Client) {
	ticker := time.NewTicker(inventoryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			influxClient.WriteInventory(inventoryCounts(registry.Devices()))
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
