// Package collector orchestrates one collection pass: for every configured
// asset it fetches candles and funding rates from each assigned provider,
// validates them, and hands them to the writer. The pass is deliberately
// single-threaded; pacing and cooldowns keep the providers friendly.
package collector

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	appconfig "candleflow/config"
	"candleflow/logger"
	"candleflow/models"
	"candleflow/processor"
	"candleflow/reader"
	"candleflow/timeframe"
	"candleflow/writer"
)

// State is the collector run state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCooldown
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCooldown:
		return "cooldown"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Summary aggregates the outcome of one collection pass.
type Summary struct {
	Symbols     int
	Succeeded   int
	Failed      int
	Fetched     int
	Valid       int
	Rejected    int
	Written     int
	Failures    []string
	Interrupted bool
	Elapsed     time.Duration
}

// Collector drives one pass over the resolved asset set.
type Collector struct {
	config   *appconfig.Config
	registry *reader.Registry
	writer   *writer.Writer
	periods  *writer.PeriodCache
	state    atomic.Int32
	log      *logger.Log
}

func New(cfg *appconfig.Config, registry *reader.Registry, w *writer.Writer) *Collector {
	return &Collector{
		config:   cfg,
		registry: registry,
		writer:   w,
		periods:  writer.NewPeriodCache(),
		log:      logger.GetLogger(),
	}
}

// State reports the current run state.
func (c *Collector) State() State {
	return State(c.state.Load())
}

func (c *Collector) setState(s State) {
	c.state.Store(int32(s))
}

// Run collects every asset over [start, end). Provider failures are
// contained: the pair is recorded in Failures and the pass continues. On
// context cancellation the pass stops between chunks, flushes the writer,
// and returns with Interrupted set.
func (c *Collector) Run(ctx context.Context, specs map[string]models.AssetSpec, start, end time.Time) Summary {
	log := c.log.WithComponent("collector").WithFields(logger.Fields{
		"run_id": uuid.New().String(),
	})
	began := time.Now()

	symbols := make([]string, 0, len(specs))
	for sym := range specs {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	summary := Summary{Symbols: len(symbols)}
	c.setState(StateRunning)
	defer c.setState(StateDone)

	log.WithFields(logger.Fields{
		"symbols":   len(symbols),
		"start":     start.Format(time.RFC3339),
		"end":       end.Format(time.RFC3339),
		"timeframe": c.config.Collection.Timeframe,
	}).Info("collection pass started")

	for i, sym := range symbols {
		if ctx.Err() != nil {
			summary.Interrupted = true
			break
		}

		failures := c.collectSymbol(ctx, specs[sym], start, end, &summary)
		if len(failures) == 0 {
			summary.Succeeded++
		} else {
			summary.Failed++
			summary.Failures = append(summary.Failures, failures...)
		}

		if ctx.Err() != nil {
			summary.Interrupted = true
			break
		}
		if done := i + 1; done < len(symbols) && done%c.config.Collection.CooldownEvery == 0 {
			if !c.cooldown(ctx, done) {
				summary.Interrupted = true
				break
			}
		}
	}

	if n, err := c.writer.Flush(); err != nil {
		log.WithError(err).Error("final flush failed")
		summary.Failures = append(summary.Failures, fmt.Sprintf("flush: %v", err))
	} else {
		summary.Written += n
	}

	summary.Elapsed = time.Since(began)
	log.WithFields(logger.Fields{
		"symbols":     summary.Symbols,
		"succeeded":   summary.Succeeded,
		"failed":      summary.Failed,
		"fetched":     summary.Fetched,
		"valid":       summary.Valid,
		"rejected":    summary.Rejected,
		"written":     summary.Written,
		"interrupted": summary.Interrupted,
		"elapsed":     summary.Elapsed.String(),
	}).Info("collection pass finished")
	return summary
}

// cooldown pauses between symbol groups. Returns false when the context
// was cancelled during the pause.
func (c *Collector) cooldown(ctx context.Context, done int) bool {
	c.setState(StateCooldown)
	defer c.setState(StateRunning)

	c.log.WithComponent("collector").WithFields(logger.Fields{
		"symbols_done": done,
		"duration":     c.config.Collection.CooldownDuration.String(),
	}).Info("cooldown pause")

	timer := time.NewTimer(c.config.Collection.CooldownDuration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Collector) collectSymbol(ctx context.Context, spec models.AssetSpec, start, end time.Time, summary *Summary) []string {
	var failures []string

	for _, p := range spec.OHLC {
		if ctx.Err() != nil {
			return failures
		}
		if err := c.collectOHLC(ctx, spec.Symbol, p, start, end, summary); err != nil {
			failures = append(failures, fmt.Sprintf("%s/%s ohlc: %v", spec.Symbol, p, err))
		}
	}
	for _, p := range spec.Funding {
		if ctx.Err() != nil {
			return failures
		}
		if err := c.collectFunding(ctx, spec.Symbol, p, end, summary); err != nil {
			failures = append(failures, fmt.Sprintf("%s/%s funding: %v", spec.Symbol, p, err))
		}
	}
	return failures
}

func (c *Collector) collectOHLC(ctx context.Context, symbol string, p models.Provider, start, end time.Time, summary *Summary) error {
	log := c.log.WithComponent("collector").WithFields(logger.Fields{
		"symbol":   symbol,
		"provider": string(p),
		"kind":     "ohlc",
	})

	fetcher, ok := c.registry.OHLC(p)
	if !ok {
		log.Warn("provider serves no candles, pair skipped")
		return nil
	}

	tf := c.config.Collection.Timeframe
	token, maxRows, err := timeframe.Translate(tf, p)
	if err != nil {
		log.WithError(err).Warn("timeframe not supported by provider, pair skipped")
		return nil
	}
	windows, err := timeframe.Chunks(start, end, tf, maxRows)
	if err != nil {
		return err
	}

	kind := c.registry.DataKind(p)

	for _, win := range windows {
		if err := ctx.Err(); err != nil {
			return nil
		}
		candles, err := fetcher.FetchOHLC(ctx, symbol, win.Start, win.End, token)
		if err != nil {
			log.WithError(err).Warn("chunk fetch failed")
			return err
		}
		summary.Fetched += len(candles)

		valid, rejected := processor.Validate(candles)
		summary.Valid += len(valid)
		summary.Rejected += len(rejected)
		if len(valid) == 0 {
			continue
		}

		written, err := c.writer.Write(valid, symbol, string(p), kind, tf)
		summary.Written += written
		if err != nil {
			log.WithError(err).Error("write failed")
			return err
		}
	}
	return nil
}

func (c *Collector) collectFunding(ctx context.Context, symbol string, p models.Provider, end time.Time, summary *Summary) error {
	log := c.log.WithComponent("collector").WithFields(logger.Fields{
		"symbol":   symbol,
		"provider": string(p),
		"kind":     "funding_rate",
	})

	fetcher, ok := c.registry.Funding(p)
	if !ok {
		log.Warn("provider serves no funding rates, pair skipped")
		return nil
	}

	c.resolvePeriod(ctx, symbol, p)

	start := end.Add(-time.Duration(c.config.Collection.FundingDays) * 24 * time.Hour)
	rates, err := fetcher.FetchFundingRates(ctx, symbol, start, end)
	if err != nil {
		log.WithError(err).Warn("funding fetch failed")
		return err
	}
	summary.Fetched += len(rates)

	valid, rejected := processor.ValidateFunding(rates)
	summary.Valid += len(valid)
	summary.Rejected += len(rejected)
	if len(valid) == 0 {
		return nil
	}

	period := c.periods.Get(symbol, string(p))
	written, err := c.writer.Write(valid, symbol, string(p), models.KindFundingRate, period)
	summary.Written += written
	if err != nil {
		log.WithError(err).Error("write failed")
		return err
	}
	return nil
}

// resolvePeriod fetches the funding settlement interval once per pair and
// caches it. Failures leave the cache on the "unknown" sentinel.
func (c *Collector) resolvePeriod(ctx context.Context, symbol string, p models.Provider) {
	if c.periods.Get(symbol, string(p)) != models.FundingPeriodUnknown {
		return
	}
	pf, ok := c.registry.FundingPeriod(p)
	if !ok {
		return
	}
	hours, err := pf.FetchFundingPeriod(ctx, symbol)
	if err != nil {
		c.log.WithComponent("collector").WithError(err).WithFields(logger.Fields{
			"symbol":   symbol,
			"provider": string(p),
		}).Warn("funding period lookup failed, period stays unknown")
		return
	}
	c.periods.Set(symbol, string(p), fmt.Sprintf("%dh", hours))
}
