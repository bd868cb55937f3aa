package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
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

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	assetsPath := flag.String("assets", "", "Path to asset CSV (overrides collection.assets_file)")
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
	}).Info("starting candleflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

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

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
	}()

	lookback := time.Duration(float64(24*time.Hour) * float64(cfg.Collection.Days))

	runPass := func() {
		end := time.Now().UTC()
		summary := c.Run(ctx, specs, end.Add(-lookback), end)
		if summary.Interrupted {
			log.Info("collection pass interrupted")
		}
	}

	runPass()

	if cfg.Collection.Interval > 0 {
		ticker := time.NewTicker(cfg.Collection.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info("candleflow stopped")
				return
			case <-ticker.C:
				runPass()
			}
		}
	}

	log.Info("candleflow stopped")
}
