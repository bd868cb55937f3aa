// Package deribit fetches DVOL volatility-index candles from the Deribit
// public API. Pair symbols are reduced to their base currency before the
// request (BTCUSDT asks for BTC).
package deribit

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

// Reader serves volatility-index candles for currencies with a DVOL index.
type Reader struct {
	config     *appconfig.Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Log
}

// NewReader creates a Deribit volatility-index reader.
func NewReader(cfg *appconfig.Config) *Reader {
	log := logger.GetLogger()
	log.WithComponent("deribit_reader").WithFields(logger.Fields{
		"base_url": cfg.Source.Deribit.URL,
		"timeout":  cfg.Reader.Timeout,
	}).Info("deribit reader initialized")

	return &Reader{
		config:     cfg,
		baseURL:    cfg.Source.Deribit.URL,
		httpClient: reader.NewHTTPClient(cfg.Reader),
		limiter:    reader.NewLimiter(cfg.Reader.RateLimit),
		log:        log,
	}
}

// DataKind marks candles from this reader as volatility-index data.
func (r *Reader) DataKind() models.DataKind {
	return models.KindVolatilityIndex
}

type volIndexResponse struct {
	Result struct {
		Data         [][]float64 `json:"data"`
		Continuation *int64      `json:"continuation"`
	} `json:"result"`
}

// FetchOHLC returns volatility-index candles inside [start, end), oldest
// first, with volume 0. Deribit paginates through a continuation timestamp
// that walks the range backwards; currencies without a DVOL index answer
// HTTP 400 and yield an empty result.
func (r *Reader) FetchOHLC(ctx context.Context, symbol string, start, end time.Time, interval string) ([]models.Candle, error) {
	currency := models.BaseCurrency(symbol)
	log := r.log.WithComponent("deribit_reader").WithFields(logger.Fields{
		"symbol":   symbol,
		"currency": currency,
	})

	var candles []models.Candle
	endMs := end.UnixMilli() - 1

	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		q := url.Values{}
		q.Set("currency", currency)
		q.Set("start_timestamp", strconv.FormatInt(start.UnixMilli(), 10))
		q.Set("end_timestamp", strconv.FormatInt(endMs, 10))
		q.Set("resolution", interval)

		began := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			r.baseURL+"/api/v2/public/get_volatility_index_data?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		resp, err := r.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("deribit volatility request for %s: %w", currency, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("deribit volatility response for %s: %w", currency, err)
		}
		logger.LogPerformanceEntry(log, "deribit_reader", "api_request", time.Since(began), logger.Fields{"currency": currency})

		if resp.StatusCode == http.StatusBadRequest {
			log.Debug("currency has no volatility index")
			return nil, nil
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("deribit volatility request for %s: unexpected status %d", currency, resp.StatusCode)
		}

		var parsed volIndexResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("deribit volatility response for %s: %w", currency, err)
		}
		if len(parsed.Result.Data) == 0 {
			break
		}

		for _, row := range parsed.Result.Data {
			if len(row) < 5 {
				continue
			}
			t := time.UnixMilli(int64(row[0])).UTC()
			if t.Before(start) || !t.Before(end) {
				continue
			}
			candles = append(candles, models.Candle{
				Time:   t,
				Open:   row[1],
				High:   row[2],
				Low:    row[3],
				Close:  row[4],
				Volume: 0,
			})
		}

		cont := parsed.Result.Continuation
		if cont == nil || *cont <= start.UnixMilli() || *cont >= endMs {
			break
		}
		endMs = *cont
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	logger.IncrementFetched("deribit", len(candles))
	return candles, nil
}
