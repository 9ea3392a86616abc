// DaVinci Console
//
// An interactive shell that opens its own session with a DaVinci fireplace
// for manual testing. Type protocol lines such as "GET LAMP" or
// "SET FLAME ON", named commands such as "lamp_on brightness=128", or
// "help" for the full list.
//
// Do not run the console alongside the bridge: the fireplace accepts a
// single session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/davinci-bridge/internal/console"
	"github.com/nerrad567/davinci-bridge/internal/device"
	"github.com/nerrad567/davinci-bridge/internal/fireplace"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/config"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/database"
	"github.com/nerrad567/davinci-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/davinci-bridge/migrations"
)

var version = "dev"

const probeTimeout = 5 * time.Second

type options struct {
	configPath  string
	host        string
	port        int
	historyFile string
	verbose     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", os.Getenv("DAVINCI_CONFIG"), "bridge config file; supplies fireplace settings and the command log database")
	flag.StringVar(&opts.host, "host", os.Getenv("DAVINCI_FIREPLACE_HOST"), "fireplace host (overrides the config file)")
	flag.IntVar(&opts.port, "port", 0, "fireplace port (default 10001)")
	flag.StringVar(&opts.historyFile, "history", "", "readline history file (default ~/.davinci_history)")
	flag.BoolVar(&opts.verbose, "v", false, "log session activity to stderr")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	logCfg := config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}
	if opts.verbose {
		logCfg.Level = "debug"
	}
	log := logging.New(logCfg, version)

	fpCfg := fireplace.Config{}
	var cmdLog device.CommandLogRepository

	if opts.configPath != "" {
		cfg, err := config.Load(opts.configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		fpCfg = fireplace.Config{
			Host:         cfg.Fireplace.Host,
			Port:         cfg.Fireplace.Port,
			DeviceID:     cfg.Fireplace.DeviceID,
			ScanInterval: cfg.GetScanInterval(),
			QueueSize:    cfg.Fireplace.QueueSize,
		}

		if cfg.Database.Path != "" {
			db, err := database.Open(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close() //nolint:errcheck // best effort on exit
			if err := db.Migrate(ctx, migrations.FS); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			cmdLog = device.NewSQLiteCommandLogRepository(db.DB)
		}
	}
	if opts.host != "" {
		fpCfg.Host = opts.host
	}
	if opts.port != 0 {
		fpCfg.Port = opts.port
	}
	if fpCfg.Host == "" {
		return errors.New("fireplace host is required (-host, -config or DAVINCI_FIREPLACE_HOST)")
	}

	coordinator, err := fireplace.New(fpCfg, log.Component("fireplace"))
	if err != nil {
		return fmt.Errorf("creating fireplace coordinator: %w", err)
	}

	cfg := coordinator.Config()
	con, err := console.New(console.Options{
		Fireplace:  coordinator,
		CommandLog: cmdLog,
		Out:        os.Stdout,
		Probe: func(ctx context.Context) error {
			return fireplace.TestConnection(ctx, cfg.Host, cfg.Port, probeTimeout)
		},
		Logger: log,
	})
	if err != nil {
		return err
	}

	if err := coordinator.Start(ctx); err != nil {
		return fmt.Errorf("starting fireplace coordinator: %w", err)
	}
	defer coordinator.Stop()

	editor := console.NewLineEditor(opts.historyFile)
	defer editor.Close()

	return con.Run(ctx, editor)
}
