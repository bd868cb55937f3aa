package yfinance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appconfig "candleflow/config"
)

func testReader(t *testing.T, handler http.Handler) *Reader {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &appconfig.Config{
		Reader: appconfig.ReaderConfig{
			Timeout:   5 * time.Second,
			RateLimit: appconfig.RateLimitConfig{RequestsPerSecond: 100, BurstSize: 100},
		},
	}
	cfg.Source.YFinance.URL = srv.URL
	return NewReader(cfg)
}

func TestFetchOHLC(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)
	t0 := start.Unix()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/GC=F" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("interval") != "60m" {
			t.Errorf("unexpected interval: %s", q.Get("interval"))
		}
		// the middle bucket is a null slot and must be skipped
		fmt.Fprintf(w, `{"chart":{"result":[{
			"timestamp":[%d,%d,%d],
			"indicators":{"quote":[{
				"open":[2050.1,null,2055.0],
				"high":[2052.0,null,2058.3],
				"low":[2048.5,null,2053.2],
				"close":[2051.2,null,2057.1],
				"volume":[1200,null,null]
			}]}
		}],"error":null}}`, t0, t0+3600, t0+7200)
	})

	r := testReader(t, handler)
	candles, err := r.FetchOHLC(context.Background(), "GC=F", start, end, "60m")
	if err != nil {
		t.Fatalf("FetchOHLC failed: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles after null slot skip, got %d", len(candles))
	}
	if candles[0].Open != 2050.1 || candles[0].Volume != 1200 {
		t.Errorf("unexpected first candle: %+v", candles[0])
	}
	// null volume on a priced bucket falls back to zero
	if candles[1].Volume != 0 {
		t.Errorf("expected zero volume fallback, got %v", candles[1].Volume)
	}
	if !candles[0].Time.Before(candles[1].Time) {
		t.Error("candles not sorted ascending")
	}
}

func TestFetchOHLCChartError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	})

	r := testReader(t, handler)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := r.FetchOHLC(context.Background(), "NOPE", start, start.Add(time.Hour), "60m")
	if err == nil {
		t.Fatal("expected error for chart-level failure")
	}
}

func TestFetchOHLCHTTPError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	})

	r := testReader(t, handler)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := r.FetchOHLC(context.Background(), "^GSPC", start, start.Add(time.Hour), "60m")
	if err == nil {
		t.Fatal("expected error for non-200 status")
	}
}
