// Package yfinance fetches OHLC history from the Yahoo Finance chart API.
// The endpoint rejects default Go user agents, which the shared transport's
// browser agent string works around.
package yfinance

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

// Reader serves OHLC candles for traditional-market symbols.
type Reader struct {
	config     *appconfig.Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Log
}

// NewReader creates a Yahoo Finance chart reader.
func NewReader(cfg *appconfig.Config) *Reader {
	log := logger.GetLogger()
	log.WithComponent("yfinance_reader").WithFields(logger.Fields{
		"base_url": cfg.Source.YFinance.URL,
		"timeout":  cfg.Reader.Timeout,
	}).Info("yfinance reader initialized")

	return &Reader{
		config:     cfg,
		baseURL:    cfg.Source.YFinance.URL,
		httpClient: reader.NewHTTPClient(cfg.Reader),
		limiter:    reader.NewLimiter(cfg.Reader.RateLimit),
		log:        log,
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchOHLC returns candles inside [start, end), oldest first. Yahoo marks
// halted or missing buckets with null slots, which are skipped.
func (r *Reader) FetchOHLC(ctx context.Context, symbol string, start, end time.Time, interval string) ([]models.Candle, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	log := r.log.WithComponent("yfinance_reader").WithFields(logger.Fields{"symbol": symbol})

	q := url.Values{}
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	q.Set("interval", interval)

	began := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.baseURL+"/v8/finance/chart/"+url.PathEscape(symbol)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yfinance chart request for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yfinance chart response for %s: %w", symbol, err)
	}
	logger.LogPerformanceEntry(log, "yfinance_reader", "api_request", time.Since(began), logger.Fields{"symbol": symbol})

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yfinance chart request for %s: unexpected status %d: %s", symbol, resp.StatusCode, body)
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("yfinance chart response for %s: %w", symbol, err)
	}
	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("yfinance chart response for %s: %s: %s",
			symbol, parsed.Chart.Error.Code, parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 || len(parsed.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := parsed.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	candles := make([]models.Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			break
		}
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil {
			continue
		}
		t := time.Unix(ts, 0).UTC()
		if t.Before(start) || !t.Before(end) {
			continue
		}
		volume := 0.0
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}
		candles = append(candles, models.Candle{
			Time:   t,
			Open:   *quote.Open[i],
			High:   *quote.High[i],
			Low:    *quote.Low[i],
			Close:  *quote.Close[i],
			Volume: volume,
		})
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	logger.IncrementFetched("yfinance", len(candles))
	return candles, nil
}
