// Package main provides the veilmixd daemon - a mixnet relay node.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/veilmix-network/veilmix/internal/config"
	"github.com/veilmix-network/veilmix/internal/storage"
	"github.com/veilmix-network/veilmix/internal/ticketdb"
	"github.com/veilmix-network/veilmix/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.veilmix", "Data directory")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		queueCap    = flag.Int("ticket-queue", 0, "Ticket ingestion queue capacity (0 = config value)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      *logLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("veilmixd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(*dataDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// CLI flags take precedence over the config file.
	cfg.Logging.Level = *logLevel
	cfg.Storage.DataDir = *dataDir
	if *queueCap > 0 {
		cfg.Tickets.QueueCapacity = *queueCap
	}

	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", config.Path(*dataDir))

	store, err := storage.Open(&storage.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		log.Fatal("Failed to open ticket store", "error", err)
	}
	defer store.Close()

	log.Info("Ticket store opened", "path", store.Path())

	tickets, err := ticketdb.NewManager(store, ticketdb.Options{
		QueueCapacity: cfg.Tickets.QueueCapacity,
		CacheEntries:  cfg.Tickets.CacheEntries,
	})
	if err != nil {
		log.Fatal("Failed to create ticket manager", "error", err)
	}

	// Settlement and telemetry hang off the notifier; without consumers
	// wired in, persisted tickets are logged and dropped.
	notifier := ticketdb.NewChanNotifier(1024)
	if err := tickets.Start(notifier); err != nil {
		log.Fatal("Failed to start ticket processing", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		settleLog := log.Component("settlement")
		for {
			select {
			case t := <-notifier.C():
				settleLog.Debug("winning ticket ready for settlement",
					"channel", t.ChannelID,
					"epoch", t.Epoch,
					"index", t.Index,
					"amount", t.Amount)
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("veilmixd started", "version", version)

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Info("Shutting down", "signal", sig)

	// Drain the ingestion queue before closing the store.
	tickets.Stop()
	cancel()

	log.Info("Shutdown complete")
}
