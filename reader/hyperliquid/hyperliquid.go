// Package hyperliquid fetches funding-rate history from the Hyperliquid
// info endpoint. The venue serves no candle history here, so the adapter
// implements only the funding capabilities.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
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
	fundingPageLimit = 500

	// Hyperliquid settles funding hourly but quotes history in eight-hour
	// equivalent terms, matching the other perpetual venues.
	fundingPeriodHours = 8
)

// Reader serves funding-rate history for Hyperliquid perpetuals.
type Reader struct {
	config     *appconfig.Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Log
}

// NewReader creates a Hyperliquid funding-rate reader.
func NewReader(cfg *appconfig.Config) *Reader {
	log := logger.GetLogger()
	log.WithComponent("hyperliquid_reader").WithFields(logger.Fields{
		"base_url": cfg.Source.Hyperliquid.URL,
		"timeout":  cfg.Reader.Timeout,
	}).Info("hyperliquid reader initialized")

	return &Reader{
		config:     cfg,
		baseURL:    cfg.Source.Hyperliquid.URL,
		httpClient: reader.NewHTTPClient(cfg.Reader),
		limiter:    reader.NewLimiter(cfg.Reader.RateLimit),
		log:        log,
	}
}

type fundingEntry struct {
	Coin        string `json:"coin"`
	FundingRate string `json:"fundingRate"`
	Time        int64  `json:"time"`
}

// FetchFundingRates returns funding rates inside [start, end), oldest
// first. Hyperliquid quotes rates as percentage strings, so each value is
// divided by 100 before storage. Responses cap at 500 rows oldest first;
// the cursor advances past the last entry of each page.
func (r *Reader) FetchFundingRates(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	coin := models.BaseCurrency(symbol)
	log := r.log.WithComponent("hyperliquid_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"coin":   coin,
	})

	var out []models.Candle
	cursor := start.UnixMilli()
	endMs := end.UnixMilli() - 1

	for cursor <= endMs {
		entries, err := r.fundingHistory(ctx, coin, cursor, endMs)
		if err != nil {
			return nil, fmt.Errorf("hyperliquid funding request for %s: %w", coin, err)
		}
		if len(entries) == 0 {
			break
		}

		last := cursor
		for _, e := range entries {
			pct, err := strconv.ParseFloat(e.FundingRate, 64)
			if err != nil {
				return nil, fmt.Errorf("hyperliquid funding rate for %s: %w", coin, err)
			}
			if e.Time > last {
				last = e.Time
			}
			t := time.UnixMilli(e.Time).UTC()
			if t.Before(start) || !t.Before(end) {
				continue
			}
			out = append(out, models.FundingObservation(t, pct/100))
		}

		if len(entries) < fundingPageLimit {
			break
		}
		cursor = last + 1
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	log.WithFields(logger.Fields{"rows": len(out)}).Debug("funding history fetched")
	logger.IncrementFetched("hyperliquid", len(out))
	return out, nil
}

// FetchFundingPeriod reports the eight-hour equivalent settlement interval.
func (r *Reader) FetchFundingPeriod(ctx context.Context, symbol string) (int, error) {
	return fundingPeriodHours, nil
}

func (r *Reader) fundingHistory(ctx context.Context, coin string, startMs, endMs int64) ([]fundingEntry, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"type":      "fundingHistory",
		"coin":      coin,
		"startTime": startMs,
		"endTime":   endMs,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/info", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

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

	var entries []fundingEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
