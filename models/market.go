package models

import (
	"math"
	"time"
)

// Provider identifies a market-data source.
type Provider string

const (
	ProviderBybit       Provider = "bybit"
	ProviderBinance     Provider = "binance"
	ProviderBitunix     Provider = "bitunix"
	ProviderDeribit     Provider = "deribit"
	ProviderHyperliquid Provider = "hyperliquid"
	ProviderYFinance    Provider = "yfinance"
)

// Providers lists every known provider in a stable order.
var Providers = []Provider{
	ProviderBybit,
	ProviderBinance,
	ProviderBitunix,
	ProviderDeribit,
	ProviderHyperliquid,
	ProviderYFinance,
}

// KnownProvider reports whether name matches a configured provider.
func KnownProvider(name string) bool {
	for _, p := range Providers {
		if string(p) == name {
			return true
		}
	}
	return false
}

// DataKind classifies a stored series.
type DataKind string

const (
	KindOHLC            DataKind = "ohlc"
	KindFundingRate     DataKind = "funding_rate"
	KindVolatilityIndex DataKind = "volatility_index"

	// Legacy tag values still present in databases written before the
	// naming migration.
	LegacyKindKline DataKind = "kline"
	LegacyKindDVOL  DataKind = "dvol"
)

// Canonical maps legacy tag values onto the current kind vocabulary.
func (k DataKind) Canonical() DataKind {
	switch k {
	case LegacyKindKline:
		return KindOHLC
	case LegacyKindDVOL:
		return KindVolatilityIndex
	default:
		return k
	}
}

// Candle is one OHLCV observation. Time is the candle open time in UTC.
// Funding-rate observations reuse this shape with open=high=low=close=rate
// and volume 0.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// FundingObservation builds the degenerate candle used for funding rates.
func FundingObservation(t time.Time, rate float64) Candle {
	return Candle{Time: t, Open: rate, High: rate, Low: rate, Close: rate, Volume: 0}
}

// Finite reports whether every numeric field is a finite number.
func (c Candle) Finite() bool {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// AssetSpec describes one tracked instrument and which providers serve
// which data kind for it. Immutable for the duration of a run.
type AssetSpec struct {
	Symbol  string
	OHLC    []Provider
	Funding []Provider
}

// FundingPeriodUnknown is the sentinel period tag for symbols whose
// settlement interval was never resolved.
const FundingPeriodUnknown = "unknown"
