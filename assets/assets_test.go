package assets

import (
	"os"
	"testing"

	"candleflow/models"
)

func writeTempAssets(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "assets-*.csv")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func TestParseFile(t *testing.T) {
	path := writeTempAssets(t, `symbol,ohlc_exchanges,funding_rate_exchanges
# this line is a comment
BTCUSDT,bybit+binance,bybit
GC=F,yfinance,
`)
	rows, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Symbol != "BTCUSDT" {
		t.Errorf("unexpected symbol: %s", rows[0].Symbol)
	}
	if len(rows[0].OHLC) != 2 || rows[0].OHLC[0] != "bybit" || rows[0].OHLC[1] != "binance" {
		t.Errorf("unexpected ohlc providers: %v", rows[0].OHLC)
	}
	if len(rows[0].Funding) != 1 || rows[0].Funding[0] != "bybit" {
		t.Errorf("unexpected funding providers: %v", rows[0].Funding)
	}
	if len(rows[1].Funding) != 0 {
		t.Errorf("expected no funding providers for yfinance row, got %v", rows[1].Funding)
	}
}

func TestParseFileBadHeader(t *testing.T) {
	path := writeTempAssets(t, "foo,bar,baz\nBTCUSDT,bybit,bybit\n")
	if _, err := ParseFile(path); err == nil {
		t.Fatal("expected error for bad header")
	}
}

func TestResolveSkipsUnknownProvider(t *testing.T) {
	rows := []Row{
		{Symbol: "BTCUSDT", OHLC: []string{"bybit"}, Funding: []string{"bybit"}, LineNum: 2},
		{Symbol: "ETHUSDT", OHLC: []string{"okx"}, Funding: nil, LineNum: 3},
	}
	specs, errs := Resolve(rows)
	if len(specs) != 1 {
		t.Fatalf("expected 1 resolved spec, got %d", len(specs))
	}
	if _, ok := specs["BTCUSDT"]; !ok {
		t.Error("valid row was dropped")
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}
}

func TestResolveSkipsDuplicateSymbol(t *testing.T) {
	rows := []Row{
		{Symbol: "BTCUSDT", OHLC: []string{"bybit"}, LineNum: 2},
		{Symbol: "BTCUSDT", OHLC: []string{"binance"}, LineNum: 3},
	}
	specs, errs := Resolve(rows)
	if len(specs) != 1 {
		t.Fatalf("expected 1 resolved spec, got %d", len(specs))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	// the first occurrence wins
	if got := specs["BTCUSDT"].OHLC[0]; got != models.ProviderBybit {
		t.Errorf("expected first row to win, got provider %s", got)
	}
}

func TestLoad(t *testing.T) {
	path := writeTempAssets(t, `symbol,ohlc_exchanges,funding_rate_exchanges
BTCUSDT,bybit+deribit,bybit+hyperliquid
`)
	specs, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	spec := specs["BTCUSDT"]
	if len(spec.OHLC) != 2 || spec.OHLC[1] != models.ProviderDeribit {
		t.Errorf("unexpected ohlc providers: %v", spec.OHLC)
	}
	if len(spec.Funding) != 2 || spec.Funding[1] != models.ProviderHyperliquid {
		t.Errorf("unexpected funding providers: %v", spec.Funding)
	}
}
