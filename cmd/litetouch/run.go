package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/gray-logic-litetouch/migrations"

	"github.com/nerrad567/gray-logic-litetouch/internal/audit"
	"github.com/nerrad567/gray-logic-litetouch/internal/bridges/litetouch"
	"github.com/nerrad567/gray-logic-litetouch/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-litetouch/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-litetouch/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-litetouch/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-litetouch/internal/infrastructure/mqtt"
)

// defaultStatsInterval is used when bridge.health_interval is 0.
const defaultStatsInterval = 30 * time.Second

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the MQTT bridge daemon",
		Long: `Run the bridge: connect to the panel and the MQTT broker, translate
Gray Logic commands into panel frames and publish keypad LED state.

SIGINT/SIGTERM shut down gracefully. SIGHUP reloads the device map
named by bridge.config_file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return runBridge(cmd.Context(), cfg)
		},
	}
}

// runBridge is the daemon, separated from the command for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - cfg: Validated configuration
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func runBridge(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Last thing to go

	log.Info("starting LiteTouch bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load the device map (loads and keypad buttons)
	devices, err := litetouch.LoadConfig(cfg.Bridge.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading device map: %w", err)
	}
	log.Info("device map loaded",
		"path", cfg.Bridge.ConfigFile,
		"devices", len(devices.Devices),
	)

	// Command history (optional)
	var (
		db      *database.DB
		auditor litetouch.CommandAuditor
	)
	if cfg.Database.Enabled {
		db, err = database.Open(database.FromConfig(cfg.Database))
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

		recorder := audit.NewRecorder(audit.NewSQLiteRepository(db.DB), log)
		defer recorder.Close()
		auditor = recorder
	} else {
		log.Info("command audit disabled")
	}

	// Connect to the panel
	panel, err := connectPanel(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing panel connection")
		if closeErr := panel.Close(); closeErr != nil {
			log.Error("error closing panel", "error", closeErr)
		}
	}()

	// Connect to MQTT with the bridge's offline health as the will
	will, err := bridgeWill(cfg.Bridge.ID)
	if err != nil {
		return err
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT, will)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var (
		influxClient *influxdb.Client
		stateRec     litetouch.StateRecorder
	)
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection", "write_errors", influxClient.WriteErrors())
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		stateRec = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	bridge, err := litetouch.NewBridge(litetouch.BridgeOptions{
		Config:         devices,
		BridgeID:       cfg.Bridge.ID,
		Version:        version,
		PanelAddress:   cfg.Panel.Address(),
		HealthInterval: cfg.GetHealthInterval(),
		MQTTClient:     &mqttBridgeAdapter{client: mqttClient},
		Panel:          panel,
		Logger:         log,
		Recorder:       stateRec,
		Auditor:        auditor,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	// Subscriptions are restored by the MQTT client; health is re-announced here
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		if pubErr := bridge.HealthReporter().PublishNow(); pubErr != nil {
			log.Warn("health publish after reconnect failed", "error", pubErr)
		}
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	if influxClient != nil {
		go recordPanelStats(ctx, influxClient, panel, cfg.Panel.Address(), cfg.GetHealthInterval())
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient, panel); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received, cleaning up")
			return nil
		case <-reload:
			reloadDevices(cfg.Bridge.ConfigFile, bridge, log)
		}
	}
}

// bridgeWill builds the MQTT will: the bridge's offline health message,
// retained on its health topic, with a graceful variant for Close.
func bridgeWill(bridgeID string) (mqtt.Will, error) {
	lwt := litetouch.NewLWTMessage(bridgeID)
	payload, err := json.Marshal(lwt)
	if err != nil {
		return mqtt.Will{}, fmt.Errorf("encoding will: %w", err)
	}

	lwt.Reason = "graceful_shutdown"
	shutdown, err := json.Marshal(lwt)
	if err != nil {
		return mqtt.Will{}, fmt.Errorf("encoding will: %w", err)
	}
	return mqtt.Will{Topic: litetouch.HealthTopic(), Payload: payload, Shutdown: shutdown}, nil
}

// reloadDevices swaps in a fresh device map. A bad file keeps the old map.
func reloadDevices(path string, bridge *litetouch.Bridge, log *logging.Logger) {
	devices, err := litetouch.LoadConfig(path)
	if err != nil {
		log.Error("device map reload failed, keeping current map", "path", path, "error", err)
		return
	}
	bridge.ReloadDevices(devices)
}

// statsWriter is the part of the InfluxDB client the stats loop uses.
type statsWriter interface {
	WritePanelStats(panel string, stats litetouch.Stats)
}

// recordPanelStats writes panel link counters every interval until ctx ends.
func recordPanelStats(ctx context.Context, w statsWriter, panel litetouch.Connector, address string, interval time.Duration) {
	if interval <= 0 {
		interval = defaultStatsInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.WritePanelStats(address, panel.Stats())
		}
	}
}

// healthCheck verifies all connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database to check (may be nil if disabled)
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - panel: Panel client to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, panel *litetouch.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := panel.HealthCheck(ctx); err != nil {
		return fmt.Errorf("panel: %w", err)
	}

	return nil
}
