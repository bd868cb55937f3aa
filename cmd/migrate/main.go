// Command migrate renames stored series to the canonical symbol scheme:
// volatility indexes become <BASE>_DVOL, everything else
// <SYMBOL>_<EXCHANGE>. Points are copied before the old identity is
// deleted, so an interrupted run can safely be repeated.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	client "github.com/influxdata/influxdb1-client/v2"

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
	dryRun := flag.Bool("dry-run", false, "Plan and report without copying or deleting anything")
	verifyOnly := flag.Bool("verify", false, "Only report remaining legacy identities")
	cleanup := flag.Bool("cleanup", false, "Delete legacy identities whose canonical target already holds data")
	yes := flag.Bool("yes", false, "Skip the interactive confirmation")
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

	sink, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     cfg.InfluxDB.Addr(),
		Username: cfg.InfluxDB.Username,
		Password: cfg.InfluxDB.Password,
		Timeout:  cfg.InfluxDB.Timeout,
	})
	if err != nil {
		log.WithError(err).Error("failed to connect to InfluxDB")
		os.Exit(1)
	}
	defer sink.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()

	m := writer.NewMigrator(sink, cfg.InfluxDB.Database)

	if *verifyOnly {
		verify(ctx, m, log)
		return
	}

	if *cleanup {
		runCleanup(ctx, m, log, *dryRun, *yes)
		return
	}

	ids, err := m.DistinctIdentities(ctx)
	if err != nil {
		log.WithError(err).Error("failed to enumerate stored identities")
		os.Exit(1)
	}
	plan := writer.PlanMigration(ids)

	fmt.Printf("found %d stored identities, %d need migration\n", len(ids), len(plan))
	for _, step := range plan {
		count, err := m.CountPoints(ctx, step.From)
		if err != nil {
			log.WithError(err).Error("failed to count points")
			os.Exit(1)
		}
		fmt.Printf("  %-20s (%s, %s, %q) -> %-20s %d points\n",
			step.From.Symbol, step.From.Exchange, step.From.Kind, step.From.Period, step.Target, count)
	}
	if len(plan) == 0 {
		fmt.Println("nothing to migrate")
		return
	}

	if !*dryRun && !*yes && !confirm() {
		fmt.Println("aborted")
		return
	}

	report := m.Execute(ctx, plan, *dryRun)
	fmt.Printf("migrated: %d  skipped: %d  failed: %d\n", report.Migrated, report.Skipped, report.Failed)
	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Printf("  FAILED %s: %v\n", res.Step.From.Symbol, res.Err)
		}
	}
	if *dryRun {
		fmt.Println("dry run, no data was modified")
		return
	}

	verify(ctx, m, log)
	if report.Failed > 0 {
		os.Exit(1)
	}
}

// runCleanup deletes legacy series shadowed by canonical data. The pairs
// are listed before anything is touched, and the confirmation applies to
// the whole set.
func runCleanup(ctx context.Context, m *writer.Migrator, log *logger.Log, dryRun, yes bool) {
	results, err := m.CleanupDuplicates(ctx, true)
	if err != nil {
		log.WithError(err).Error("failed to enumerate legacy duplicates")
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Println("no legacy duplicates found")
		return
	}

	fmt.Printf("found %d legacy identities shadowed by canonical data:\n", len(results))
	for _, res := range results {
		fmt.Printf("  %-20s (%s, %s, %q) -> %-20s %d points\n",
			res.From.Symbol, res.From.Exchange, res.From.Kind, res.From.Period, res.Target, res.Count)
	}
	if dryRun {
		fmt.Println("dry run, no data was modified")
		return
	}
	if !yes && !confirm() {
		fmt.Println("aborted")
		return
	}

	results, err = m.CleanupDuplicates(ctx, false)
	if err != nil {
		log.WithError(err).Error("cleanup failed")
		os.Exit(1)
	}
	deleted, failed := 0, 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Printf("  FAILED %s: %v\n", res.From.Symbol, res.Err)
			continue
		}
		if res.Deleted {
			deleted++
		}
	}
	fmt.Printf("deleted: %d  failed: %d\n", deleted, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func confirm() bool {
	fmt.Print("proceed with migration? type 'yes' to continue: ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	return strings.TrimSpace(strings.ToLower(scanner.Text())) == "yes"
}

func verify(ctx context.Context, m *writer.Migrator, log *logger.Log) {
	result, err := m.Verify(ctx)
	if err != nil {
		log.WithError(err).Error("verification failed")
		os.Exit(1)
	}
	if len(result.Legacy) == 0 {
		fmt.Println("no legacy identities remain")
	} else {
		fmt.Printf("%d legacy identities remain:\n", len(result.Legacy))
		for _, id := range result.Legacy {
			fmt.Printf("  %s (%s, %s, %q)\n", id.Symbol, id.Exchange, id.Kind, id.Period)
		}
	}
	for sym, count := range result.Canonical {
		fmt.Printf("  %-20s %d points\n", sym, count)
	}
}
