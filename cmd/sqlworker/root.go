package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/sqlworker/internal/events"
	"github.com/nerrad567/sqlworker/internal/infrastructure/config"
	"github.com/nerrad567/sqlworker/internal/infrastructure/database"
	"github.com/nerrad567/sqlworker/internal/infrastructure/logging"
	"github.com/nerrad567/sqlworker/internal/telemetry"
	"github.com/nerrad567/sqlworker/internal/worker"
)

const defaultConfigPath = "configs/config.yaml"

var (
	configPath  string
	showVersion bool
)

var rootCmd = &cobra.Command{
	Use:           "sqlworker",
	Short:         "Serialized SQLite access engine",
	Long:          "sqlworker funnels every statement through a single dispatch loop over one SQLite connection, giving concurrent callers serialized execution with correlated responses.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if showVersion {
			fmt.Printf("sqlworker %s (commit %s, built %s)\n", version, commit, date)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
}

// engine bundles everything a subcommand needs.
type engine struct {
	cfg    *config.Config
	log    *logging.Logger
	worker *worker.Worker

	publisher *events.Publisher
	recorder  *telemetry.Recorder
}

// openEngine loads config, opens the database and starts the worker,
// attaching the optional event and telemetry bridges.
func openEngine() (*engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)

	conn, err := database.Open(database.Config{
		Path:           cfg.Database.Path,
		WALMode:        cfg.Database.WALMode,
		BusyTimeout:    cfg.Database.BusyTimeout,
		InitStatements: cfg.Database.InitStatements,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	w := worker.New(conn, worker.Options{
		Retry: worker.RetryPolicy{
			MaxRetries: cfg.Worker.MaxRetries,
			BaseDelay:  cfg.RetryDelay(),
			MaxDelay:   cfg.RetryMaxDelay(),
		},
		Logger: log,
	})

	e := &engine{cfg: cfg, log: log, worker: w}

	if cfg.MQTT.Enabled {
		publisher, err := events.Connect(cfg.MQTT)
		if err != nil {
			log.Warn("event publisher unavailable", "error", err)
		} else {
			publisher.SetLogger(log)
			publisher.Attach(w)
			e.publisher = publisher
		}
	}

	if cfg.InfluxDB.Enabled {
		recorder, err := telemetry.Connect(cfg.InfluxDB)
		if err != nil {
			log.Warn("telemetry recorder unavailable", "error", err)
		} else {
			recorder.Attach(w, 0)
			e.recorder = recorder
		}
	}

	return e, nil
}

// close shuts the engine down in reverse dependency order. The worker
// drains before the bridges stop so the last statements still emit
// their events and counts.
func (e *engine) close() {
	if err := e.worker.Close(); err != nil {
		e.log.Error("closing worker", "error", err)
	}
	if e.recorder != nil {
		if err := e.recorder.Close(); err != nil {
			e.log.Error("closing telemetry recorder", "error", err)
		}
	}
	if e.publisher != nil {
		if err := e.publisher.Close(); err != nil {
			e.log.Error("closing event publisher", "error", err)
		}
	}
}
