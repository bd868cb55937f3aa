// Command backfill runs one long-range collection pass, meant for seeding
// a fresh database or repairing gaps.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"candleflow/assets"
	"candleflow/collector"
	"candleflow/config"
	"candleflow/logger"
	"candleflow/writer"
)

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	assetsPath := flag.String("assets", "", "Path to asset CSV (overrides collection.assets_file)")
	days := flag.Int("days", 365, "Number of days to backfill")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	if logger.InitCloudWatchFromEnv(cfg.Candleflow.Name, cfg.Logging.DashboardName) {
		log.Info("CloudWatch metric publishing enabled")
	}

	log.WithFields(logger.Fields{
		"service": cfg.Candleflow.Name,
		"version": cfg.Candleflow.Version,
		"days":    *days,
	}).Info("starting backfill")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
	}()

	path := cfg.Collection.AssetsFile
	if *assetsPath != "" {
		path = *assetsPath
	}
	specs, err := assets.Load(path)
	if err != nil {
		log.WithError(err).Error("failed to load asset configuration")
		os.Exit(1)
	}

	w, err := writer.NewWriter(cfg.InfluxDB)
	if err != nil {
		log.WithError(err).Error("failed to connect to InfluxDB")
		os.Exit(1)
	}
	defer w.Close()

	c := collector.New(cfg, collector.NewDefaultRegistry(cfg), w)

	end := time.Now().UTC()
	start := end.Add(-time.Duration(*days) * 24 * time.Hour)
	summary := c.Run(ctx, specs, start, end)

	if summary.Interrupted {
		log.Info("backfill interrupted")
	}
	if summary.Failed > 0 {
		for _, f := range summary.Failures {
			log.WithComponent("backfill").Warn(f)
		}
	}
	log.Info("backfill finished")
}
