package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	client "github.com/influxdata/influxdb1-client/v2"

	"candleflow/logger"
	"candleflow/models"
)

// copyBatchSize bounds each copy query and write during migration.
const copyBatchSize = 5000

// Step is one planned symbol rename: every point under From is rewritten
// under the Target symbol with the canonical data kind.
type Step struct {
	From   models.Identity
	Target string
}

// PlanMigration selects the identities that still need renaming. Symbols
// already in canonical form are skipped; the function is pure and safe to
// call on every run.
func PlanMigration(identities []models.Identity) []Step {
	var plan []Step
	for _, id := range identities {
		if id.Migrated() {
			continue
		}
		plan = append(plan, Step{From: id, Target: id.TargetSymbol()})
	}
	return plan
}

// StepResult records the outcome of one executed step.
type StepResult struct {
	Step    Step
	Count   int64
	Skipped bool
	Reason  string
	Err     error
}

// Report summarizes a migration run.
type Report struct {
	Results  []StepResult
	Migrated int
	Skipped  int
	Failed   int
}

// Migrator executes naming migrations against a sink.
type Migrator struct {
	sink     InfluxClient
	database string
	log      *logger.Log
}

func NewMigrator(sink InfluxClient, database string) *Migrator {
	return &Migrator{sink: sink, database: database, log: logger.GetLogger()}
}

// DistinctIdentities enumerates every stored (symbol, exchange, kind,
// period) combination by walking the tag hierarchy with SHOW TAG VALUES.
// Combinations whose point count probes to zero are dropped: tag values
// outlive deleted points in InfluxDB 1.x.
func (m *Migrator) DistinctIdentities(ctx context.Context) ([]models.Identity, error) {
	symbols, err := m.tagValues(ctx, "symbol", "")
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}

	var ids []models.Identity
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		exchanges, err := m.tagValues(ctx, "exchange", fmt.Sprintf(`"symbol" = '%s'`, escapeTag(sym)))
		if err != nil {
			return nil, fmt.Errorf("list exchanges for %s: %w", sym, err)
		}
		for _, exch := range exchanges {
			kinds, err := m.tagValues(ctx, "data_kind",
				fmt.Sprintf(`"symbol" = '%s' AND "exchange" = '%s'`, escapeTag(sym), escapeTag(exch)))
			if err != nil {
				return nil, fmt.Errorf("list kinds for %s/%s: %w", sym, exch, err)
			}
			for _, kind := range kinds {
				where := fmt.Sprintf(`"symbol" = '%s' AND "exchange" = '%s' AND "data_kind" = '%s'`,
					escapeTag(sym), escapeTag(exch), escapeTag(kind))
				periods, err := m.tagValues(ctx, "period", where)
				if err != nil {
					return nil, fmt.Errorf("list periods for %s/%s/%s: %w", sym, exch, kind, err)
				}
				if len(periods) == 0 {
					periods = []string{""}
				}
				for _, period := range periods {
					id := models.Identity{Symbol: sym, Exchange: exch, Kind: models.DataKind(kind), Period: period}
					count, err := m.CountPoints(ctx, id)
					if err != nil {
						return nil, fmt.Errorf("count points for %s: %w", sym, err)
					}
					if count > 0 {
						ids = append(ids, id)
					}
				}
			}
		}
	}
	return ids, nil
}

// Execute runs the plan step by step. A failing step is recorded and the
// migration moves on; the old identity is deleted only after the copied
// point count verifies against the source.
func (m *Migrator) Execute(ctx context.Context, plan []Step, dryRun bool) Report {
	log := m.log.WithComponent("migrator").WithFields(logger.Fields{
		"run_id":  uuid.New().String(),
		"dry_run": dryRun,
	})
	var report Report

	for _, step := range plan {
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, StepResult{Step: step, Err: err})
			report.Failed++
			break
		}
		res := m.executeStep(ctx, step, dryRun)
		report.Results = append(report.Results, res)
		switch {
		case res.Err != nil:
			report.Failed++
			log.WithError(res.Err).WithFields(logger.Fields{
				"symbol": step.From.Symbol,
				"target": step.Target,
			}).Error("migration step failed")
		case res.Skipped:
			report.Skipped++
		default:
			report.Migrated++
			log.WithFields(logger.Fields{
				"symbol": step.From.Symbol,
				"target": step.Target,
				"points": res.Count,
			}).Info("migration step complete")
		}
	}
	return report
}

func (m *Migrator) executeStep(ctx context.Context, step Step, dryRun bool) StepResult {
	res := StepResult{Step: step}

	count, err := m.CountPoints(ctx, step.From)
	if err != nil {
		res.Err = fmt.Errorf("count source: %w", err)
		return res
	}
	res.Count = count
	if count == 0 {
		res.Skipped = true
		res.Reason = "no points under source identity"
		return res
	}

	target := step.From
	target.Symbol = step.Target
	target.Kind = step.From.Kind.Canonical()

	targetCount, err := m.CountPoints(ctx, target)
	if err != nil {
		res.Err = fmt.Errorf("count target: %w", err)
		return res
	}
	if targetCount > 0 {
		res.Skipped = true
		res.Reason = fmt.Sprintf("target already has %d points", targetCount)
		return res
	}

	if dryRun {
		res.Reason = "dry run"
		return res
	}

	if err := m.copyPoints(ctx, step.From, target); err != nil {
		res.Err = fmt.Errorf("copy points: %w", err)
		return res
	}

	copied, err := m.CountPoints(ctx, target)
	if err != nil {
		res.Err = fmt.Errorf("verify copy: %w", err)
		return res
	}
	if copied != count {
		res.Err = fmt.Errorf("copy verification failed: source %d points, target %d", count, copied)
		return res
	}

	if err := m.deletePoints(ctx, step.From); err != nil {
		res.Err = fmt.Errorf("delete source: %w", err)
		return res
	}
	return res
}

// copyPoints streams the source series into the target identity in bounded
// batches so a large series never loads into memory at once.
func (m *Migrator) copyPoints(ctx context.Context, from, to models.Identity) error {
	w := NewWriterWithSink(m.sink, m.database, copyBatchSize)

	for offset := 0; ; offset += copyBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd := fmt.Sprintf(
			`SELECT "open", "high", "low", "close", "volume" FROM "%s" WHERE %s LIMIT %d OFFSET %d`,
			Measurement, identityWhere(from), copyBatchSize, offset)
		values, err := m.queryValues(ctx, cmd)
		if err != nil {
			return err
		}
		if len(values) == 0 {
			break
		}

		candles := make([]models.Candle, 0, len(values))
		for _, row := range values {
			c, err := rowToCandle(row)
			if err != nil {
				return err
			}
			candles = append(candles, c)
		}
		if _, err := w.Write(candles, to.Symbol, to.Exchange, to.Kind, to.Period); err != nil {
			return err
		}
		if _, err := w.Flush(); err != nil {
			return err
		}
		if len(values) < copyBatchSize {
			break
		}
	}
	return nil
}

func rowToCandle(row []interface{}) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("short result row: %d columns", len(row))
	}
	ms, err := toInt64(row[0])
	if err != nil {
		return models.Candle{}, fmt.Errorf("row time: %w", err)
	}
	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := toFloat64(row[i+1])
		if err != nil {
			return models.Candle{}, fmt.Errorf("row field %d: %w", i, err)
		}
		vals[i] = v
	}
	return models.Candle{
		Time:   time.UnixMilli(ms).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func (m *Migrator) deletePoints(ctx context.Context, id models.Identity) error {
	cmd := fmt.Sprintf(`DELETE FROM "%s" WHERE %s`, Measurement, identityWhere(id))
	_, err := m.queryValues(ctx, cmd)
	return err
}

// CountPoints probes the number of points stored under an identity.
func (m *Migrator) CountPoints(ctx context.Context, id models.Identity) (int64, error) {
	cmd := fmt.Sprintf(`SELECT COUNT("close") FROM "%s" WHERE %s`, Measurement, identityWhere(id))
	values, err := m.queryValues(ctx, cmd)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 || len(values[0]) < 2 {
		return 0, nil
	}
	return toInt64(values[0][1])
}

// VerifyResult reports the post-migration state of the database.
type VerifyResult struct {
	Legacy    []models.Identity
	Canonical map[string]int64
}

// Verify lists identities still in legacy naming and the point counts
// stored under canonical symbols.
func (m *Migrator) Verify(ctx context.Context) (*VerifyResult, error) {
	ids, err := m.DistinctIdentities(ctx)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Canonical: make(map[string]int64)}
	for _, id := range ids {
		count, err := m.CountPoints(ctx, id)
		if err != nil {
			return nil, err
		}
		if id.Migrated() {
			result.Canonical[id.Symbol] += count
		} else {
			result.Legacy = append(result.Legacy, id)
		}
	}
	return result, nil
}

// CleanupResult records one legacy identity handled by CleanupDuplicates.
type CleanupResult struct {
	From    models.Identity
	Target  string
	Count   int64
	Deleted bool
	Err     error
}

// CleanupDuplicates removes legacy identities whose canonical target
// already holds data. Such leftovers come from migration steps skipped
// because the target had been written independently; the legacy copy is
// dead weight by then. With dryRun set the pairs are only reported.
func (m *Migrator) CleanupDuplicates(ctx context.Context, dryRun bool) ([]CleanupResult, error) {
	log := m.log.WithComponent("migrator").WithFields(logger.Fields{
		"run_id":  uuid.New().String(),
		"dry_run": dryRun,
	})

	ids, err := m.DistinctIdentities(ctx)
	if err != nil {
		return nil, err
	}

	var results []CleanupResult
	for _, id := range ids {
		if id.Migrated() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		target := id
		target.Symbol = id.TargetSymbol()
		target.Kind = id.Kind.Canonical()

		targetCount, err := m.CountPoints(ctx, target)
		if err != nil {
			results = append(results, CleanupResult{From: id, Target: target.Symbol, Err: err})
			continue
		}
		if targetCount == 0 {
			// still awaiting migration, not a duplicate
			continue
		}

		count, err := m.CountPoints(ctx, id)
		if err != nil {
			results = append(results, CleanupResult{From: id, Target: target.Symbol, Err: err})
			continue
		}

		res := CleanupResult{From: id, Target: target.Symbol, Count: count}
		if !dryRun {
			if err := m.deletePoints(ctx, id); err != nil {
				res.Err = fmt.Errorf("delete legacy identity: %w", err)
			} else {
				res.Deleted = true
				log.WithFields(logger.Fields{
					"symbol": id.Symbol,
					"target": target.Symbol,
					"points": count,
				}).Info("legacy duplicate removed")
			}
		}
		results = append(results, res)
	}
	return results, nil
}

// tagValues runs SHOW TAG VALUES for one key with an optional WHERE clause.
func (m *Migrator) tagValues(ctx context.Context, key, where string) ([]string, error) {
	cmd := fmt.Sprintf(`SHOW TAG VALUES FROM "%s" WITH KEY = "%s"`, Measurement, key)
	if where != "" {
		cmd += " WHERE " + where
	}
	values, err := m.queryValues(ctx, cmd)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(values))
	for _, row := range values {
		// SHOW TAG VALUES rows are [key, value].
		if len(row) < 2 {
			continue
		}
		if s, ok := row[1].(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Migrator) queryValues(ctx context.Context, cmd string) ([][]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger.IncrementQuery()

	resp, err := m.sink.Query(client.NewQuery(cmd, m.database, "ms"))
	if err != nil {
		return nil, err
	}
	if resp.Error() != nil {
		return nil, resp.Error()
	}
	if len(resp.Results) == 0 || len(resp.Results[0].Series) == 0 {
		return nil, nil
	}
	return resp.Results[0].Series[0].Values, nil
}

func identityWhere(id models.Identity) string {
	return fmt.Sprintf(`"symbol" = '%s' AND "exchange" = '%s' AND "data_kind" = '%s' AND "period" = '%s'`,
		escapeTag(id.Symbol), escapeTag(id.Exchange), escapeTag(string(id.Kind)), escapeTag(id.Period))
}

func escapeTag(v string) string {
	return strings.ReplaceAll(v, "'", `\'`)
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}
