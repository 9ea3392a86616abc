// DaVinci Bridge
//
// Keeps a persistent session with a DaVinci fireplace controller and
// exposes its state and commands over MQTT, an HTTP/WebSocket API and
// Prometheus metrics. State snapshots are recorded to SQLite and,
// optionally, InfluxDB.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/nerrad567/davinci-bridge/internal/api"
	"github.com/nerrad567/davinci-bridge/internal/auth"
	"github.com/nerrad567/davinci-bridge/internal/bridges/davinci"
	"github.com/nerrad567/davinci-bridge/internal/device"
	"github.com/nerrad567/davinci-bridge/internal/fireplace"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/config"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/database"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/metrics"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/davinci-bridge/migrations"
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

// probeTimeout bounds the startup reachability check.
const probeTimeout = 5 * time.Second

func main() {
	hashKey := flag.Bool("hash-api-key", false, "read an API key from stdin, print its argon2id hash and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("davincibridge %s (%s, %s)\n", version, commit, date)
		return
	}

	if *hashKey {
		if err := hashAPIKey(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting DaVinci bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	fpCfg := fireplaceConfig(cfg)

	if cfg.Fireplace.ProbeOnStart {
		if probeErr := fireplace.TestConnection(ctx, fpCfg.Host, fpCfg.Port, probeTimeout); probeErr != nil {
			// The coordinator retries forever, so an offline fireplace is
			// not fatal.
			log.Warn("fireplace not reachable at startup", "host", fpCfg.Host, "port", fpCfg.Port, "error", probeErr)
		} else {
			log.Info("fireplace reachable", "host", fpCfg.Host, "port", fpCfg.Port)
		}
	}

	coordinator, err := fireplace.New(fpCfg, log.Component("fireplace"))
	if err != nil {
		return fmt.Errorf("creating fireplace coordinator: %w", err)
	}

	// Storage
	var (
		db      *database.DB
		history device.StateHistoryRepository
		cmdLog  device.CommandLogRepository
	)
	if cfg.Database.Path != "" {
		db, err = database.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		cmdLog = device.NewSQLiteCommandLogRepository(db.DB)
		if cfg.History.Enabled {
			history = device.NewSQLiteStateHistoryRepository(db.DB)
		}
	}

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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	if history != nil || influxClient != nil {
		recorder, recErr := newRecorder(cfg, coordinator, history, influxClient, log)
		if recErr != nil {
			return recErr
		}
		g.Go(func() error { return recorder.Run(gctx) })
	}

	var exporter *metrics.Exporter
	if cfg.Metrics.Enabled {
		exporter = metrics.New(cfg.Fireplace.DeviceID)
		detach := exporter.Attach(coordinator)
		defer detach()
	}

	// Coordinator starts after its observers are attached so the first
	// snapshot is seen by all of them.
	if startErr := coordinator.Start(gctx); startErr != nil {
		return fmt.Errorf("starting fireplace coordinator: %w", startErr)
	}
	defer func() {
		log.Info("stopping fireplace coordinator")
		coordinator.Stop()
	}()

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		var bridge *davinci.Bridge
		mqttClient, bridge, err = startBridge(gctx, cfg, coordinator, cmdLog, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		defer func() {
			log.Info("stopping MQTT bridge")
			bridge.Stop()
		}()
	} else {
		log.Info("MQTT bridge disabled")
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Security:   cfg.Security,
			Logger:     log.Component("api"),
			Fireplace:  coordinator,
			History:    history,
			CommandLog: cmdLog,
			Version:    version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		if db != nil {
			deps.DB = db
		}
		if exporter != nil {
			deps.Metrics = exporter.Handler()
			deps.MetricsPath = cfg.Metrics.Path
		}

		server, srvErr := api.New(deps)
		if srvErr != nil {
			return fmt.Errorf("creating API server: %w", srvErr)
		}
		if startErr := server.Start(gctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
		log.Info("API server started", "addr", server.Addr(), "auth", cfg.AuthEnabled())
	} else {
		log.Info("API server disabled")
	}

	if err := healthCheck(gctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-gctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("DaVinci bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DAVINCI_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DAVINCI_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// fireplaceConfig converts file settings (seconds and milliseconds) into
// coordinator settings.
func fireplaceConfig(cfg *config.Config) fireplace.Config {
	fc := cfg.Fireplace
	return fireplace.Config{
		Host:               fc.Host,
		Port:               fc.Port,
		DeviceID:           fc.DeviceID,
		ScanInterval:       cfg.GetScanInterval(),
		ConnectTimeout:     time.Duration(fc.ConnectTimeout) * time.Second,
		ReadTimeout:        time.Duration(fc.ReadTimeout) * time.Second,
		SettleDelay:        time.Duration(fc.SettleDelay) * time.Second,
		CommandDelay:       time.Duration(fc.CommandDelayMS) * time.Millisecond,
		CorrelationTimeout: time.Duration(fc.CorrelationTimeoutMS) * time.Millisecond,
		QueueSize:          fc.QueueSize,
	}
}

func newRecorder(cfg *config.Config, src device.StateSource, history device.StateHistoryRepository, influxClient *influxdb.Client, log *logging.Logger) (*device.StateRecorder, error) {
	opts := device.RecorderOptions{
		DeviceID:  cfg.Fireplace.DeviceID,
		Source:    src,
		History:   history,
		Retention: cfg.GetHistoryRetention(),
		Logger:    log.Component("recorder"),
	}
	// A nil *influxdb.Client must not become a non-nil interface.
	if influxClient != nil {
		opts.Writer = influxClient
	}

	recorder, err := device.NewStateRecorder(opts)
	if err != nil {
		return nil, fmt.Errorf("creating state recorder: %w", err)
	}
	return recorder, nil
}

// startBridge connects to the broker and starts the MQTT bridge.
func startBridge(ctx context.Context, cfg *config.Config, coordinator *fireplace.Coordinator, cmdLog device.CommandLogRepository, log *logging.Logger) (*mqtt.Client, *davinci.Bridge, error) {
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	bridge, err := davinci.NewBridge(davinci.BridgeOptions{
		DeviceID:       cfg.Fireplace.DeviceID,
		BridgeID:       cfg.MQTT.Broker.ClientID,
		Version:        version,
		HealthInterval: time.Duration(cfg.MQTT.HealthInterval) * time.Second,
		MQTTClient:     mqttClient,
		Fireplace:      coordinator,
		CommandLog:     cmdLog,
		Logger:         log.Component("bridge"),
	})
	if err != nil {
		_ = mqttClient.Close()
		return nil, nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}

	if err := bridge.Start(ctx); err != nil {
		_ = mqttClient.Close()
		return nil, nil, fmt.Errorf("starting MQTT bridge: %w", err)
	}

	// Retained state may have been lost while the broker was away.
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		bridge.Resync()
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	log.Info("MQTT bridge started", "device_id", cfg.Fireplace.DeviceID)
	return mqttClient, bridge, nil
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
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

// hashAPIKey reads a key (without echo on a terminal) and writes its
// argon2id hash, ready to paste into security.api_key.
func hashAPIKey(in *os.File, out io.Writer) error {
	var key string
	if term.IsTerminal(int(in.Fd())) {
		fmt.Fprint(os.Stderr, "API key: ")
		raw, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading key: %w", err)
		}
		key = string(raw)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading key: %w", err)
		}
		key = line
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("empty API key")
	}

	hash, err := auth.HashAPIKey(key)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hash)
	return nil
}
