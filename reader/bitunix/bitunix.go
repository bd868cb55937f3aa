// Package bitunix fetches futures candles and the current funding rate from
// the Bitunix REST API. Every response arrives in a code/msg envelope; a
// non-zero code is an API-level failure even on HTTP 200.
package bitunix

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	appconfig "candleflow/config"
	"candleflow/logger"
	"candleflow/models"
	"candleflow/reader"
)

const (
	klinePageLimit = 200

	// Bitunix settles funding every eight hours on its perpetuals.
	fundingPeriodHours = 8
)

// Reader serves OHLC candles and the latest funding rate for Bitunix
// perpetual futures.
type Reader struct {
	config     *appconfig.Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Log
}

// NewReader creates a Bitunix market-data reader.
func NewReader(cfg *appconfig.Config) *Reader {
	log := logger.GetLogger()
	log.WithComponent("bitunix_reader").WithFields(logger.Fields{
		"base_url": cfg.Source.Bitunix.URL,
		"timeout":  cfg.Reader.Timeout,
	}).Info("bitunix reader initialized")

	return &Reader{
		config:     cfg,
		baseURL:    cfg.Source.Bitunix.URL,
		httpClient: reader.NewHTTPClient(cfg.Reader),
		limiter:    reader.NewLimiter(cfg.Reader.RateLimit),
		log:        log,
	}
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type klineRow struct {
	Time    int64  `json:"time"`
	Open    string `json:"open"`
	High    string `json:"high"`
	Low     string `json:"low"`
	Close   string `json:"close"`
	BaseVol string `json:"baseVol"`
}

// FetchOHLC returns candles with open times inside [start, end), oldest
// first. Pages are capped at 200 rows; the cursor advances past the last
// bar of each page.
func (r *Reader) FetchOHLC(ctx context.Context, symbol string, start, end time.Time, interval string) ([]models.Candle, error) {
	log := r.log.WithComponent("bitunix_reader").WithFields(logger.Fields{"symbol": symbol})

	var candles []models.Candle
	cursor := start.UnixMilli()
	endMs := end.UnixMilli() - 1

	for cursor <= endMs {
		q := url.Values{}
		q.Set("symbol", symbol)
		q.Set("interval", interval)
		q.Set("startTime", strconv.FormatInt(cursor, 10))
		q.Set("endTime", strconv.FormatInt(endMs, 10))
		q.Set("limit", strconv.Itoa(klinePageLimit))

		began := time.Now()
		data, err := r.get(ctx, "/api/v1/futures/market/kline", q)
		if err != nil {
			return nil, fmt.Errorf("bitunix kline request for %s: %w", symbol, err)
		}
		logger.LogPerformanceEntry(log, "bitunix_reader", "api_request", time.Since(began), logger.Fields{"symbol": symbol})

		var rows []klineRow
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("bitunix kline response for %s: %w", symbol, err)
		}
		if len(rows) == 0 {
			break
		}

		last := cursor
		for _, row := range rows {
			c, err := convertKlineRow(row)
			if err != nil {
				return nil, fmt.Errorf("bitunix kline row for %s: %w", symbol, err)
			}
			if row.Time > last {
				last = row.Time
			}
			if c.Time.Before(start) || !c.Time.Before(end) {
				continue
			}
			candles = append(candles, c)
		}

		if len(rows) < klinePageLimit {
			break
		}
		cursor = last + 1
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	logger.IncrementFetched("bitunix", len(candles))
	return candles, nil
}

func convertKlineRow(row klineRow) (models.Candle, error) {
	vals := make([]float64, 5)
	for i, s := range []string{row.Open, row.High, row.Low, row.Close, row.BaseVol} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Candle{}, err
		}
		vals[i] = v
	}
	return models.Candle{
		Time:   time.UnixMilli(row.Time).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

type fundingData struct {
	Symbol      string `json:"symbol"`
	FundingRate string `json:"fundingRate"`
}

// FetchFundingRates returns the current funding rate as a single
// observation stamped with the fetch time. Bitunix exposes no funding
// history endpoint, so the window bounds only gate staleness.
func (r *Reader) FetchFundingRates(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	data, err := r.get(ctx, "/api/v1/futures/market/funding_rate", q)
	if err != nil {
		return nil, fmt.Errorf("bitunix funding request for %s: %w", symbol, err)
	}

	var fd fundingData
	if err := json.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("bitunix funding response for %s: %w", symbol, err)
	}
	if fd.FundingRate == "" {
		return nil, nil
	}
	rateVal, err := strconv.ParseFloat(fd.FundingRate, 64)
	if err != nil {
		return nil, fmt.Errorf("bitunix funding rate for %s: %w", symbol, err)
	}

	now := time.Now().UTC()
	if now.Before(start) || !now.Before(end) {
		return nil, nil
	}
	logger.IncrementFetched("bitunix", 1)
	return []models.Candle{models.FundingObservation(now, rateVal)}, nil
}

// FetchFundingPeriod reports the fixed eight-hour settlement interval.
func (r *Reader) FetchFundingPeriod(ctx context.Context, symbol string) (int, error) {
	return fundingPeriodHours, nil
}

// get performs one GET, waits on the pacer, and unwraps the envelope.
func (r *Reader) get(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("api error code %d: %s", env.Code, env.Msg)
	}
	return env.Data, nil
}
