package reader

import (
	"context"
	"testing"
	"time"

	"candleflow/models"
)

type ohlcOnly struct{}

func (ohlcOnly) FetchOHLC(ctx context.Context, symbol string, start, end time.Time, interval string) ([]models.Candle, error) {
	return nil, nil
}

type volIndexAdapter struct {
	ohlcOnly
}

func (volIndexAdapter) DataKind() models.DataKind { return models.KindVolatilityIndex }

func TestRegistryCapabilityLookup(t *testing.T) {
	reg := NewRegistry()
	reg.Register(models.ProviderBybit, ohlcOnly{})

	if _, ok := reg.OHLC(models.ProviderBybit); !ok {
		t.Error("registered OHLC adapter not resolved")
	}
	if _, ok := reg.Funding(models.ProviderBybit); ok {
		t.Error("adapter without funding support resolved as funding fetcher")
	}
	if _, ok := reg.OHLC(models.ProviderBinance); ok {
		t.Error("unregistered provider resolved")
	}
}

func TestRegistryDataKind(t *testing.T) {
	reg := NewRegistry()
	reg.Register(models.ProviderBybit, ohlcOnly{})
	reg.Register(models.ProviderDeribit, volIndexAdapter{})

	if got := reg.DataKind(models.ProviderBybit); got != models.KindOHLC {
		t.Errorf("expected ohlc default, got %q", got)
	}
	if got := reg.DataKind(models.ProviderDeribit); got != models.KindVolatilityIndex {
		t.Errorf("expected reported volatility_index kind, got %q", got)
	}
	// unknown providers fall back to ohlc as well
	if got := reg.DataKind(models.ProviderBinance); got != models.KindOHLC {
		t.Errorf("expected ohlc for unregistered provider, got %q", got)
	}
}
