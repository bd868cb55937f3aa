package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"

	appconfig "candleflow/config"
	"candleflow/models"
	"candleflow/reader"
	"candleflow/writer"
)

// memWriterSink records every batch the writer flushes.
type memWriterSink struct {
	batches [][]*client.Point
}

func (s *memWriterSink) Write(bp client.BatchPoints) error {
	s.batches = append(s.batches, bp.Points())
	return nil
}

func (s *memWriterSink) Query(q client.Query) (*client.Response, error) {
	return &client.Response{}, nil
}

func (s *memWriterSink) Close() error { return nil }

func (s *memWriterSink) points() []*client.Point {
	var out []*client.Point
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

type fetchWindow struct {
	start, end time.Time
}

// fakeOHLC serves one candle per hour across the requested window.
type fakeOHLC struct {
	calls []fetchWindow
	err   error
}

func (f *fakeOHLC) FetchOHLC(ctx context.Context, symbol string, start, end time.Time, interval string) ([]models.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, fetchWindow{start, end})
	var out []models.Candle
	for t := start; t.Before(end); t = t.Add(time.Hour) {
		out = append(out, models.Candle{Time: t, Open: 100, High: 110, Low: 90, Close: 105, Volume: 1})
	}
	return out, nil
}

// fakeFunding serves a fixed set of funding observations and an 8h period.
type fakeFunding struct {
	rates     []models.Candle
	periodErr error
}

func (f *fakeFunding) FetchFundingRates(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	return f.rates, nil
}

func (f *fakeFunding) FetchFundingPeriod(ctx context.Context, symbol string) (int, error) {
	if f.periodErr != nil {
		return 0, f.periodErr
	}
	return 8, nil
}

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Collection: appconfig.CollectionConfig{
			Timeframe:        "1h",
			Days:             50,
			FundingDays:      2,
			CooldownEvery:    100,
			CooldownDuration: time.Millisecond,
		},
	}
}

func testCollector(cfg *appconfig.Config, reg *reader.Registry) (*Collector, *memWriterSink) {
	sink := &memWriterSink{}
	w := writer.NewWriterWithSink(sink, "market_data", 0)
	return New(cfg, reg, w), sink
}

// A 50-day hourly collection against a 1000-row page cap must split into
// two fetches and deliver 1200 candles end to end.
func TestRunChunkedOHLC(t *testing.T) {
	fetcher := &fakeOHLC{}
	reg := reader.NewRegistry()
	reg.Register(models.ProviderBybit, fetcher)

	c, sink := testCollector(testConfig(), reg)

	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	start := end.Add(-50 * 24 * time.Hour)
	specs := map[string]models.AssetSpec{
		"BTCUSDT": {Symbol: "BTCUSDT", OHLC: []models.Provider{models.ProviderBybit}},
	}

	summary := c.Run(context.Background(), specs, start, end)

	if len(fetcher.calls) != 2 {
		t.Fatalf("expected 2 chunked fetches, got %d", len(fetcher.calls))
	}
	if fetcher.calls[0].end != fetcher.calls[1].start {
		t.Errorf("chunks not contiguous: %v then %v", fetcher.calls[0], fetcher.calls[1])
	}
	if summary.Fetched != 1200 || summary.Valid != 1200 || summary.Written != 1200 {
		t.Errorf("unexpected summary: fetched=%d valid=%d written=%d",
			summary.Fetched, summary.Valid, summary.Written)
	}
	if summary.Succeeded != 1 || summary.Failed != 0 {
		t.Errorf("unexpected outcome counts: %+v", summary)
	}

	pts := sink.points()
	if len(pts) != 1200 {
		t.Fatalf("expected 1200 stored points, got %d", len(pts))
	}
	for i := 1; i < len(pts); i++ {
		if !pts[i-1].Time().Before(pts[i].Time()) {
			t.Fatalf("points not strictly increasing at index %d", i)
		}
	}
	tags := pts[0].Tags()
	if tags["data_kind"] != "ohlc" || tags["period"] != "1h" || tags["exchange"] != "bybit" {
		t.Errorf("unexpected tags: %v", tags)
	}
	if c.State() != StateDone {
		t.Errorf("expected done state, got %s", c.State())
	}
}

// One provider failing must not abort the pass; the failure is recorded and
// the remaining symbols still collect.
func TestRunProviderFailureContained(t *testing.T) {
	reg := reader.NewRegistry()
	reg.Register(models.ProviderBybit, &fakeOHLC{err: errors.New("upstream 503")})
	reg.Register(models.ProviderBinance, &fakeOHLC{})

	c, sink := testCollector(testConfig(), reg)

	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	start := end.Add(-24 * time.Hour)
	specs := map[string]models.AssetSpec{
		"AAAUSDT": {Symbol: "AAAUSDT", OHLC: []models.Provider{models.ProviderBybit}},
		"BBBUSDT": {Symbol: "BBBUSDT", OHLC: []models.Provider{models.ProviderBinance}},
	}

	summary := c.Run(context.Background(), specs, start, end)

	if summary.Failed != 1 || summary.Succeeded != 1 {
		t.Fatalf("expected 1 failed and 1 succeeded, got %+v", summary)
	}
	if len(summary.Failures) != 1 {
		t.Fatalf("expected 1 failure entry, got %v", summary.Failures)
	}
	if want := "AAAUSDT/bybit ohlc"; len(summary.Failures[0]) < len(want) || summary.Failures[0][:len(want)] != want {
		t.Errorf("unexpected failure entry: %q", summary.Failures[0])
	}
	if len(sink.points()) != 24 {
		t.Errorf("expected 24 points from the surviving symbol, got %d", len(sink.points()))
	}
}

func TestRunFundingPeriodTag(t *testing.T) {
	ts := time.Date(2024, 2, 29, 16, 0, 0, 0, time.UTC)
	reg := reader.NewRegistry()
	reg.Register(models.ProviderBybit, &fakeFunding{
		rates: []models.Candle{models.FundingObservation(ts, 0.0001)},
	})

	c, sink := testCollector(testConfig(), reg)

	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	specs := map[string]models.AssetSpec{
		"BTCUSDT": {Symbol: "BTCUSDT", Funding: []models.Provider{models.ProviderBybit}},
	}

	summary := c.Run(context.Background(), specs, end.Add(-24*time.Hour), end)
	if summary.Written != 1 {
		t.Fatalf("expected 1 written point, got %d", summary.Written)
	}

	pts := sink.points()
	tags := pts[0].Tags()
	if tags["data_kind"] != "funding_rate" {
		t.Errorf("unexpected data_kind: %q", tags["data_kind"])
	}
	if tags["period"] != "8h" {
		t.Errorf("expected resolved 8h period tag, got %q", tags["period"])
	}
}

// A failed period lookup keeps the sentinel tag but the rates still land.
func TestRunFundingPeriodLookupFailure(t *testing.T) {
	ts := time.Date(2024, 2, 29, 16, 0, 0, 0, time.UTC)
	reg := reader.NewRegistry()
	reg.Register(models.ProviderBybit, &fakeFunding{
		rates:     []models.Candle{models.FundingObservation(ts, -0.0002)},
		periodErr: errors.New("instrument info unavailable"),
	})

	c, sink := testCollector(testConfig(), reg)

	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	specs := map[string]models.AssetSpec{
		"BTCUSDT": {Symbol: "BTCUSDT", Funding: []models.Provider{models.ProviderBybit}},
	}

	summary := c.Run(context.Background(), specs, end.Add(-24*time.Hour), end)
	if summary.Written != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if got := sink.points()[0].Tags()["period"]; got != models.FundingPeriodUnknown {
		t.Errorf("expected sentinel period tag, got %q", got)
	}
}

// fakeVolIndex serves candles stored under the volatility-index kind.
type fakeVolIndex struct {
	fakeOHLC
}

func (f *fakeVolIndex) DataKind() models.DataKind { return models.KindVolatilityIndex }

// An adapter reporting its own data kind stores under that kind, not ohlc.
func TestRunAdapterReportedKind(t *testing.T) {
	reg := reader.NewRegistry()
	reg.Register(models.ProviderDeribit, &fakeVolIndex{})

	c, sink := testCollector(testConfig(), reg)

	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	specs := map[string]models.AssetSpec{
		"BTCUSDT": {Symbol: "BTCUSDT", OHLC: []models.Provider{models.ProviderDeribit}},
	}

	c.Run(context.Background(), specs, end.Add(-2*time.Hour), end)

	pts := sink.points()
	if len(pts) == 0 {
		t.Fatal("no points written")
	}
	if got := pts[0].Tags()["data_kind"]; got != "volatility_index" {
		t.Errorf("expected volatility_index kind, got %q", got)
	}
}

// A provider with no mapping for the configured timeframe is skipped without
// counting as a failure.
func TestRunUnsupportedTimeframeSkipped(t *testing.T) {
	reg := reader.NewRegistry()
	reg.Register(models.ProviderHyperliquid, &fakeOHLC{})

	c, sink := testCollector(testConfig(), reg)

	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	specs := map[string]models.AssetSpec{
		"BTCUSDT": {Symbol: "BTCUSDT", OHLC: []models.Provider{models.ProviderHyperliquid}},
	}

	summary := c.Run(context.Background(), specs, end.Add(-24*time.Hour), end)
	if summary.Failed != 0 || summary.Succeeded != 1 {
		t.Errorf("skip counted as failure: %+v", summary)
	}
	if len(sink.points()) != 0 {
		t.Errorf("skipped pair still wrote %d points", len(sink.points()))
	}
}

func TestRunCancelled(t *testing.T) {
	reg := reader.NewRegistry()
	reg.Register(models.ProviderBybit, &fakeOHLC{})

	c, _ := testCollector(testConfig(), reg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	specs := map[string]models.AssetSpec{
		"BTCUSDT": {Symbol: "BTCUSDT", OHLC: []models.Provider{models.ProviderBybit}},
	}

	summary := c.Run(ctx, specs, end.Add(-24*time.Hour), end)
	if !summary.Interrupted {
		t.Error("expected interrupted pass")
	}
	if summary.Succeeded != 0 {
		t.Errorf("cancelled pass reported %d successes", summary.Succeeded)
	}
}

// A pass with a cooldown after every symbol still finishes every symbol.
func TestRunCooldownBetweenSymbols(t *testing.T) {
	reg := reader.NewRegistry()
	reg.Register(models.ProviderBybit, &fakeOHLC{})

	cfg := testConfig()
	cfg.Collection.CooldownEvery = 1
	cfg.Collection.CooldownDuration = time.Millisecond

	c, _ := testCollector(cfg, reg)

	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	specs := map[string]models.AssetSpec{
		"AAAUSDT": {Symbol: "AAAUSDT", OHLC: []models.Provider{models.ProviderBybit}},
		"BBBUSDT": {Symbol: "BBBUSDT", OHLC: []models.Provider{models.ProviderBybit}},
	}

	summary := c.Run(context.Background(), specs, end.Add(-2*time.Hour), end)
	if summary.Succeeded != 2 || summary.Interrupted {
		t.Errorf("unexpected summary: %+v", summary)
	}
}
