package writer

import (
	"errors"
	"testing"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"

	"candleflow/models"
)

// fakeSink records batches and optionally fails every write.
type fakeSink struct {
	batches [][]*client.Point
	queries []client.Query
	failAll bool
}

func (s *fakeSink) Write(bp client.BatchPoints) error {
	if s.failAll {
		return errors.New("sink unavailable")
	}
	s.batches = append(s.batches, bp.Points())
	return nil
}

func (s *fakeSink) Query(q client.Query) (*client.Response, error) {
	s.queries = append(s.queries, q)
	return &client.Response{}, nil
}

func (s *fakeSink) Close() error { return nil }

func makeCandles(n int) []models.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{
			Time: base.Add(time.Duration(i) * time.Hour),
			Open: 100, High: 110, Low: 90, Close: 105, Volume: 1,
		}
	}
	return out
}

// 2500 points against a 500-point batch must auto-flush exactly five times,
// leaving nothing for the final flush.
func TestWriteAutoFlush(t *testing.T) {
	sink := &fakeSink{}
	w := NewWriterWithSink(sink, "market_data", 500)

	written, err := w.Write(makeCandles(2500), "BTCUSDT", "bybit", models.KindOHLC, "1h")
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if written != 2500 {
		t.Errorf("expected 2500 written during Write, got %d", written)
	}
	if len(sink.batches) != 5 {
		t.Fatalf("expected 5 sink writes, got %d", len(sink.batches))
	}
	for i, batch := range sink.batches {
		if len(batch) != 500 {
			t.Errorf("batch %d has %d points, want 500", i, len(batch))
		}
	}

	n, err := w.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if n != 0 {
		t.Errorf("final flush wrote %d points, want 0", n)
	}
	if w.Pending() != 0 {
		t.Errorf("pending after flush: %d", w.Pending())
	}
}

func TestFlushEmptiesOnSinkError(t *testing.T) {
	sink := &fakeSink{failAll: true}
	w := NewWriterWithSink(sink, "market_data", 100)

	if _, err := w.Write(makeCandles(10), "BTCUSDT", "bybit", models.KindOHLC, "1h"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if w.Pending() != 10 {
		t.Fatalf("expected 10 pending points, got %d", w.Pending())
	}

	n, err := w.Flush()
	if err == nil {
		t.Fatal("expected flush error")
	}
	if n != 0 {
		t.Errorf("failed flush reported %d points written", n)
	}
	if w.Pending() != 0 {
		t.Errorf("batch not emptied after failed flush: %d pending", w.Pending())
	}

	// a retry flush has nothing left to send
	n, err = w.Flush()
	if err != nil || n != 0 {
		t.Errorf("flush after failed flush: n=%d err=%v", n, err)
	}
}

func TestWrittenCountExcludesFailedBatches(t *testing.T) {
	sink := &fakeSink{failAll: true}
	w := NewWriterWithSink(sink, "market_data", 5)

	written, err := w.Write(makeCandles(12), "BTCUSDT", "bybit", models.KindOHLC, "1h")
	if err == nil {
		t.Fatal("expected error from auto-flush")
	}
	if written != 0 {
		t.Errorf("written count includes rejected batch: %d", written)
	}
}

func TestWriteTags(t *testing.T) {
	sink := &fakeSink{}
	w := NewWriterWithSink(sink, "market_data", 10)

	if _, err := w.Write(makeCandles(1), "BTC USDT,x", "by=bit", models.KindFundingRate, "8h"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(sink.batches) != 1 || len(sink.batches[0]) != 1 {
		t.Fatalf("unexpected batches: %d", len(sink.batches))
	}

	pt := sink.batches[0][0]
	if pt.Name() != Measurement {
		t.Errorf("unexpected measurement: %s", pt.Name())
	}
	tags := pt.Tags()
	if tags["symbol"] != `BTC\ USDT\,x` {
		t.Errorf("symbol tag not sanitized: %q", tags["symbol"])
	}
	if tags["exchange"] != `by\=bit` {
		t.Errorf("exchange tag not sanitized: %q", tags["exchange"])
	}
	if tags["data_kind"] != "funding_rate" || tags["period"] != "8h" {
		t.Errorf("unexpected tags: %v", tags)
	}
}

func TestSanitizeTag(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT":       "BTCUSDT",
		"BTCUSDT_BYBIT": "BTCUSDT_BYBIT",
		"a,b c=d":       `a\,b\ c\=d`,
		`back\slash`:    `back\\slash`,
	}
	for in, want := range cases {
		if got := sanitizeTag(in); got != want {
			t.Errorf("sanitizeTag(%q) = %q, want %q", in, got, want)
		}
	}
}

// Values that differ only in which delimiter they contain must stay
// distinct after sanitization, or two series would merge under one tag.
func TestSanitizeTagInjective(t *testing.T) {
	inputs := []string{"A B", "A,B", "A=B", `A\,B`, `A\ B`, "A_B"}
	seen := map[string]string{}
	for _, in := range inputs {
		got := sanitizeTag(in)
		if prev, dup := seen[got]; dup {
			t.Errorf("sanitizeTag collapsed %q and %q onto %q", prev, in, got)
		}
		seen[got] = in
	}
}
