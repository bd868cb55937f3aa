// Package timeframe translates logical timeframes into provider-native
// interval tokens and splits long date ranges into request-sized windows.
// All lookups are static data; the package performs no I/O.
package timeframe

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"candleflow/models"
)

// ErrUnsupportedTimeframe is returned when a provider has no native
// interval matching the requested logical timeframe.
var ErrUnsupportedTimeframe = errors.New("unsupported timeframe")

// spec pins one provider's token for a logical timeframe together with the
// provider's row cap per request.
type spec struct {
	token   string
	maxRows int
}

// Each provider's interval vocabulary and row cap are fixed upstream facts.
// Bybit and Deribit use minute counts (with letter buckets above hours),
// Binance and Bitunix use duration strings, Yahoo Finance its own variants.
const (
	bybitMaxRows    = 1000
	binanceMaxRows  = 1500
	bitunixMaxRows  = 200
	deribitMaxRows  = 1000
	yfinanceMaxRows = 720
)

var tables = map[models.Provider]map[string]spec{
	models.ProviderBybit: {
		"1m": {"1", bybitMaxRows}, "3m": {"3", bybitMaxRows}, "5m": {"5", bybitMaxRows},
		"15m": {"15", bybitMaxRows}, "30m": {"30", bybitMaxRows},
		"1h": {"60", bybitMaxRows}, "2h": {"120", bybitMaxRows}, "4h": {"240", bybitMaxRows},
		"6h": {"360", bybitMaxRows}, "12h": {"720", bybitMaxRows},
		"1d": {"D", bybitMaxRows}, "1w": {"W", bybitMaxRows}, "1M": {"M", bybitMaxRows},
	},
	models.ProviderBinance: {
		"1m": {"1m", binanceMaxRows}, "3m": {"3m", binanceMaxRows}, "5m": {"5m", binanceMaxRows},
		"15m": {"15m", binanceMaxRows}, "30m": {"30m", binanceMaxRows},
		"1h": {"1h", binanceMaxRows}, "2h": {"2h", binanceMaxRows}, "4h": {"4h", binanceMaxRows},
		"6h": {"6h", binanceMaxRows}, "8h": {"8h", binanceMaxRows}, "12h": {"12h", binanceMaxRows},
		"1d": {"1d", binanceMaxRows}, "3d": {"3d", binanceMaxRows},
		"1w": {"1w", binanceMaxRows}, "1M": {"1M", binanceMaxRows},
	},
	models.ProviderBitunix: {
		"1m": {"1m", bitunixMaxRows}, "3m": {"3m", bitunixMaxRows}, "5m": {"5m", bitunixMaxRows},
		"15m": {"15m", bitunixMaxRows}, "30m": {"30m", bitunixMaxRows},
		"1h": {"1h", bitunixMaxRows}, "2h": {"2h", bitunixMaxRows}, "4h": {"4h", bitunixMaxRows},
		"6h": {"6h", bitunixMaxRows}, "8h": {"8h", bitunixMaxRows}, "12h": {"12h", bitunixMaxRows},
		"1d": {"1d", bitunixMaxRows}, "3d": {"3d", bitunixMaxRows},
		"1w": {"1w", bitunixMaxRows}, "1M": {"1M", bitunixMaxRows},
	},
	models.ProviderDeribit: {
		"1m": {"1", deribitMaxRows}, "3m": {"3", deribitMaxRows}, "5m": {"5", deribitMaxRows},
		"10m": {"10", deribitMaxRows}, "15m": {"15", deribitMaxRows}, "30m": {"30", deribitMaxRows},
		"1h": {"60", deribitMaxRows}, "2h": {"120", deribitMaxRows}, "3h": {"180", deribitMaxRows},
		"6h": {"360", deribitMaxRows}, "12h": {"720", deribitMaxRows},
		"1d": {"1D", deribitMaxRows},
	},
	models.ProviderYFinance: {
		"1m": {"1m", yfinanceMaxRows}, "2m": {"2m", yfinanceMaxRows}, "5m": {"5m", yfinanceMaxRows},
		"15m": {"15m", yfinanceMaxRows}, "30m": {"30m", yfinanceMaxRows},
		"1h": {"60m", yfinanceMaxRows}, "90m": {"90m", yfinanceMaxRows},
		"1d": {"1d", yfinanceMaxRows}, "5d": {"5d", yfinanceMaxRows},
		"1w": {"1wk", yfinanceMaxRows}, "1M": {"1mo", yfinanceMaxRows}, "3M": {"3mo", yfinanceMaxRows},
	},
	// Hyperliquid serves no candle data; its table is intentionally absent.
}

// Translate resolves a logical timeframe to the provider's native interval
// token and the provider's row cap per request.
func Translate(tf string, p models.Provider) (string, int, error) {
	table, ok := tables[p]
	if !ok {
		return "", 0, fmt.Errorf("%w: provider %s serves no candle intervals", ErrUnsupportedTimeframe, p)
	}
	s, ok := table[tf]
	if !ok {
		return "", 0, fmt.Errorf("%w: %s has no %s interval", ErrUnsupportedTimeframe, p, tf)
	}
	return s.token, s.maxRows, nil
}

// Duration converts a logical timeframe into its bucket width. Months are
// approximated as 30 days, which is only used for chunk sizing.
func Duration(tf string) (time.Duration, error) {
	if len(tf) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedTimeframe, tf)
	}
	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedTimeframe, tf)
	}
	switch tf[len(tf)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case 'M':
		return time.Duration(n) * 30 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedTimeframe, tf)
}

// Window is one half-open request range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Chunks splits [start, end) into consecutive windows containing at most
// maxRows buckets of the given timeframe. Windows cover the full range with
// no gap and no overlap: each window ends exactly where the next begins.
func Chunks(start, end time.Time, tf string, maxRows int) ([]Window, error) {
	if !start.Before(end) {
		return nil, nil
	}
	bucket, err := Duration(tf)
	if err != nil {
		return nil, err
	}
	if maxRows <= 0 {
		return []Window{{Start: start, End: end}}, nil
	}

	step := bucket * time.Duration(maxRows)
	windows := make([]Window, 0, int(end.Sub(start)/step)+1)
	for cur := start; cur.Before(end); cur = cur.Add(step) {
		wEnd := cur.Add(step)
		if wEnd.After(end) {
			wEnd = end
		}
		windows = append(windows, Window{Start: cur, End: wEnd})
	}
	return windows, nil
}
