// Package binance fetches USD-margined futures candles and funding history
// through the go-binance futures client.
package binance

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	appconfig "candleflow/config"
	"candleflow/logger"
	"candleflow/models"
	"candleflow/reader"
)

const (
	klinePageLimit   = 1500
	fundingPageLimit = 1000

	// Binance settles funding every eight hours on all USD-M perpetuals.
	fundingPeriodHours = 8
)

// Reader serves OHLC candles and funding-rate history for Binance futures.
type Reader struct {
	config  *appconfig.Config
	client  *futures.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewReader creates a Binance futures market-data reader.
func NewReader(cfg *appconfig.Config) *Reader {
	client := futures.NewClient("", "")
	client.HTTPClient = reader.NewHTTPClient(cfg.Reader)
	if cfg.Source.Binance.URL != "" {
		client.SetApiEndpoint(cfg.Source.Binance.URL)
	}

	log := logger.GetLogger()
	log.WithComponent("binance_reader").WithFields(logger.Fields{
		"base_url": cfg.Source.Binance.URL,
		"timeout":  cfg.Reader.Timeout,
	}).Info("binance reader initialized")

	return &Reader{
		config:  cfg,
		client:  client,
		limiter: reader.NewLimiter(cfg.Reader.RateLimit),
		log:     log,
	}
}

// FetchOHLC returns candles with open times inside [start, end), oldest
// first. Binance serves pages oldest first; the cursor advances past the
// close time of the last bar of each page.
func (r *Reader) FetchOHLC(ctx context.Context, symbol string, start, end time.Time, interval string) ([]models.Candle, error) {
	log := r.log.WithComponent("binance_reader").WithFields(logger.Fields{"symbol": symbol})

	var candles []models.Candle
	cursor := start.UnixMilli()
	endMs := end.UnixMilli() - 1

	for cursor <= endMs {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		began := time.Now()
		klines, err := r.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(cursor).
			EndTime(endMs).
			Limit(klinePageLimit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance kline request for %s: %w", symbol, err)
		}
		logger.LogPerformanceEntry(log, "binance_reader", "api_request", time.Since(began), logger.Fields{"symbol": symbol})

		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			c, err := convertKline(k)
			if err != nil {
				return nil, fmt.Errorf("binance kline row for %s: %w", symbol, err)
			}
			if c.Time.Before(start) || !c.Time.Before(end) {
				continue
			}
			candles = append(candles, c)
		}

		if len(klines) < klinePageLimit {
			break
		}
		cursor = klines[len(klines)-1].CloseTime + 1
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	logger.IncrementFetched("binance", len(candles))
	return candles, nil
}

func convertKline(k *futures.Kline) (models.Candle, error) {
	vals := make([]float64, 5)
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Candle{}, err
		}
		vals[i] = v
	}
	return models.Candle{
		Time:   time.UnixMilli(k.OpenTime).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// FetchFundingRates returns settled funding rates inside [start, end),
// oldest first. Binance serves pages oldest first with a 1000-row cap.
func (r *Reader) FetchFundingRates(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	var out []models.Candle
	cursor := start.UnixMilli()
	endMs := end.UnixMilli() - 1

	for cursor <= endMs {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		rates, err := r.client.NewFundingRateService().
			Symbol(symbol).
			StartTime(cursor).
			EndTime(endMs).
			Limit(fundingPageLimit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance funding request for %s: %w", symbol, err)
		}
		if len(rates) == 0 {
			break
		}

		for _, fr := range rates {
			rateVal, err := strconv.ParseFloat(fr.FundingRate, 64)
			if err != nil {
				return nil, fmt.Errorf("binance funding rate for %s: %w", symbol, err)
			}
			t := time.UnixMilli(fr.FundingTime).UTC()
			if !t.Before(start) && t.Before(end) {
				out = append(out, models.FundingObservation(t, rateVal))
			}
		}

		if len(rates) < fundingPageLimit {
			break
		}
		cursor = rates[len(rates)-1].FundingTime + 1
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	logger.IncrementFetched("binance", len(out))
	return out, nil
}

// FetchFundingPeriod reports the fixed eight-hour settlement interval.
func (r *Reader) FetchFundingPeriod(ctx context.Context, symbol string) (int, error) {
	return fundingPeriodHours, nil
}
