// Command moderationd runs the moderation backend as a standalone daemon.
// Players and commands are driven from the operator console; a game server
// embeds pkg/server instead.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/NicolasHaas/gomoderate/pkg/config"
	"github.com/NicolasHaas/gomoderate/pkg/datastore"
	"github.com/NicolasHaas/gomoderate/pkg/logging"
	"github.com/NicolasHaas/gomoderate/pkg/notify"
	"github.com/NicolasHaas/gomoderate/pkg/server"
	"github.com/NicolasHaas/gomoderate/pkg/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		driver      string
		dsn         string
		metricsAddr string
		logLevel    string
		logFormat   string
		console     bool
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("moderationd", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "YAML config file (defaults are used if empty)")
	flagSet.StringVar(&driver, "db-driver", "", "record store driver: sqlite or postgres")
	flagSet.StringVar(&dsn, "db", "", "SQLite file path or Postgres URL")
	flagSet.StringVar(&metricsAddr, "metrics", "", "HTTP bind address for Prometheus /metrics (empty to disable)")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: "+logging.LevelNames())
	flagSet.StringVar(&logFormat, "log-format", "", "log format: text or json")
	flagSet.BoolVar(&console, "console", true, "read operator commands from stdin")
	flagSet.BoolVar(&showVersion, "version", false, "print the version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Println("moderationd", version.Full())
		return nil
	}

	settings := config.Default()
	if configPath != "" {
		var err error
		if settings, err = config.Load(configPath); err != nil {
			return err
		}
	} else if err := settings.ApplyEnv(nil); err != nil {
		return err
	}

	// flags win over the file and the environment
	if flagSet.Changed("db-driver") {
		settings.Storage.Driver = driver
	}
	if flagSet.Changed("db") {
		settings.Storage.DSN = dsn
	}
	if flagSet.Changed("metrics") {
		settings.Metrics.Addr = metricsAddr
	}
	if flagSet.Changed("log-level") {
		settings.Log.Level = logLevel
	}
	if flagSet.Changed("log-format") {
		settings.Log.Format = logFormat
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logOpts := settings.Logging()
	logOpts.Output = os.Stderr
	if err := logging.Setup(logOpts); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	slog.Info("starting moderationd", "version", version.Full())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := datastore.Open(ctx, settings.StorageOptions())
	if err != nil {
		return err
	}

	catalog, err := notify.NewCatalog(settings.Routing())
	if err != nil {
		_ = st.Close()
		return err
	}
	sinks := notify.Multi{notify.LogSink{Logger: logging.For("notify"), Templates: catalog}}
	if settings.Notify.Kafka.Enabled {
		kafka := notify.NewKafkaSink(settings.Kafka(), catalog, logging.For("kafka"))
		defer func() { _ = kafka.Close() }()
		sinks = append(sinks, kafka)
		slog.Info("kafka notifications enabled", "brokers", settings.Notify.Kafka.Brokers, "prefix", settings.Notify.Kafka.TopicPrefix)
	}

	srv, err := server.New(server.Config{Settings: settings, ConfigPath: configPath}, server.Dependencies{
		Store:   st,
		Sink:    sinks,
		Catalog: catalog,
	})
	if err != nil {
		_ = st.Close()
		return err
	}

	if console {
		go func() {
			if err := srv.ServeConsole(ctx, os.Stdin); err != nil {
				slog.Error("console error", "err", err)
			}
		}()
	}

	return srv.Run(ctx)
}
