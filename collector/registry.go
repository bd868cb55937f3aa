package collector

import (
	appconfig "candleflow/config"
	"candleflow/models"
	"candleflow/reader"
	"candleflow/reader/binance"
	"candleflow/reader/bitunix"
	"candleflow/reader/bybit"
	"candleflow/reader/deribit"
	"candleflow/reader/hyperliquid"
	"candleflow/reader/yfinance"
)

// NewDefaultRegistry wires every built-in provider adapter.
func NewDefaultRegistry(cfg *appconfig.Config) *reader.Registry {
	r := reader.NewRegistry()
	r.Register(models.ProviderBybit, bybit.NewReader(cfg))
	r.Register(models.ProviderBinance, binance.NewReader(cfg))
	r.Register(models.ProviderBitunix, bitunix.NewReader(cfg))
	r.Register(models.ProviderDeribit, deribit.NewReader(cfg))
	r.Register(models.ProviderHyperliquid, hyperliquid.NewReader(cfg))
	r.Register(models.ProviderYFinance, yfinance.NewReader(cfg))
	return r
}
