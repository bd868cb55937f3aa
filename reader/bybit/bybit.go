// Package bybit fetches linear-perpetual candles and funding history from
// the Bybit v5 market API.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"
	"golang.org/x/time/rate"

	appconfig "candleflow/config"
	"candleflow/logger"
	"candleflow/models"
	"candleflow/reader"
)

const (
	klinePageLimit   = 1000
	fundingPageLimit = 200
)

// Reader serves OHLC candles, funding-rate history and funding settlement
// intervals for Bybit linear perpetuals.
type Reader struct {
	config  *appconfig.Config
	client  *bybit.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewReader creates a Bybit market-data reader.
func NewReader(cfg *appconfig.Config) *Reader {
	client := bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(cfg.Source.Bybit.URL))
	client.HTTPClient = reader.NewHTTPClient(cfg.Reader)

	log := logger.GetLogger()
	log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"base_url": cfg.Source.Bybit.URL,
		"timeout":  cfg.Reader.Timeout,
	}).Info("bybit reader initialized")

	return &Reader{
		config:  cfg,
		client:  client,
		limiter: reader.NewLimiter(cfg.Reader.RateLimit),
		log:     log,
	}
}

type klineResult struct {
	Category string     `json:"category"`
	Symbol   string     `json:"symbol"`
	List     [][]string `json:"list"`
}

// FetchOHLC returns candles with open times inside [start, end), oldest
// first. Bybit serves rows newest first and caps pages at 1000 rows; older
// history is reached by walking the end timestamp below the oldest bar.
func (r *Reader) FetchOHLC(ctx context.Context, symbol string, start, end time.Time, interval string) ([]models.Candle, error) {
	log := r.log.WithComponent("bybit_reader").WithFields(logger.Fields{"symbol": symbol})

	var candles []models.Candle
	endMs := end.UnixMilli() - 1

	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		params := map[string]interface{}{
			"category": "linear",
			"symbol":   symbol,
			"interval": interval,
			"start":    start.UnixMilli(),
			"end":      endMs,
			"limit":    klinePageLimit,
		}

		began := time.Now()
		resp, err := r.client.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
		if err != nil {
			return nil, fmt.Errorf("bybit kline request for %s: %w", symbol, err)
		}
		logger.LogPerformanceEntry(log, "bybit_reader", "api_request", time.Since(began), logger.Fields{"symbol": symbol})

		var result klineResult
		if err := reparse(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("bybit kline response for %s: %w", symbol, err)
		}
		if len(result.List) == 0 {
			break
		}

		oldest := endMs
		for _, row := range result.List {
			if len(row) < 6 {
				continue
			}
			c, err := parseKlineRow(row)
			if err != nil {
				return nil, fmt.Errorf("bybit kline row for %s: %w", symbol, err)
			}
			if ms := c.Time.UnixMilli(); ms < oldest {
				oldest = ms
			}
			if c.Time.Before(start) || !c.Time.Before(end) {
				continue
			}
			candles = append(candles, c)
		}

		if len(result.List) < klinePageLimit || oldest <= start.UnixMilli() {
			break
		}
		endMs = oldest - 1
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	logger.IncrementFetched("bybit", len(candles))
	return candles, nil
}

func parseKlineRow(row []string) (models.Candle, error) {
	ms, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return models.Candle{}, err
	}
	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return models.Candle{}, err
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

type fundingResult struct {
	Category string `json:"category"`
	List     []struct {
		Symbol               string `json:"symbol"`
		FundingRate          string `json:"fundingRate"`
		FundingRateTimestamp string `json:"fundingRateTimestamp"`
	} `json:"list"`
}

// FetchFundingRates returns settled funding rates inside [start, end),
// oldest first. Bybit caps each page at 200 rows newest first.
func (r *Reader) FetchFundingRates(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	var out []models.Candle
	endMs := end.UnixMilli() - 1

	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		params := map[string]interface{}{
			"category":  "linear",
			"symbol":    symbol,
			"startTime": start.UnixMilli(),
			"endTime":   endMs,
			"limit":     fundingPageLimit,
		}
		resp, err := r.client.NewUtaBybitServiceWithParams(params).GetFundingRateHistory(ctx)
		if err != nil {
			return nil, fmt.Errorf("bybit funding request for %s: %w", symbol, err)
		}

		var result fundingResult
		if err := reparse(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("bybit funding response for %s: %w", symbol, err)
		}
		if len(result.List) == 0 {
			break
		}

		oldest := endMs
		for _, row := range result.List {
			ms, err := strconv.ParseInt(row.FundingRateTimestamp, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bybit funding timestamp for %s: %w", symbol, err)
			}
			rateVal, err := strconv.ParseFloat(row.FundingRate, 64)
			if err != nil {
				return nil, fmt.Errorf("bybit funding rate for %s: %w", symbol, err)
			}
			if ms < oldest {
				oldest = ms
			}
			t := time.UnixMilli(ms).UTC()
			if !t.Before(start) && t.Before(end) {
				out = append(out, models.FundingObservation(t, rateVal))
			}
		}

		if len(result.List) < fundingPageLimit || oldest <= start.UnixMilli() {
			break
		}
		endMs = oldest - 1
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	logger.IncrementFetched("bybit", len(out))
	return out, nil
}

type instrumentResult struct {
	Category string `json:"category"`
	List     []struct {
		Symbol          string `json:"symbol"`
		FundingInterval int    `json:"fundingInterval"`
	} `json:"list"`
}

// FetchFundingPeriod resolves the funding settlement interval in hours from
// the instrument metadata. Bybit reports the interval in minutes.
func (r *Reader) FetchFundingPeriod(ctx context.Context, symbol string) (int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	params := map[string]interface{}{
		"category": "linear",
		"symbol":   symbol,
	}
	resp, err := r.client.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
	if err != nil {
		return 0, fmt.Errorf("bybit instrument request for %s: %w", symbol, err)
	}

	var result instrumentResult
	if err := reparse(resp.Result, &result); err != nil {
		return 0, fmt.Errorf("bybit instrument response for %s: %w", symbol, err)
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("bybit instrument info for %s: no such symbol", symbol)
	}
	minutes := result.List[0].FundingInterval
	if minutes <= 0 {
		return 0, fmt.Errorf("bybit instrument info for %s: funding interval not reported", symbol)
	}
	return minutes / 60, nil
}

// reparse round-trips the SDK's untyped Result into a typed struct.
func reparse(result interface{}, dst interface{}) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, dst)
}
