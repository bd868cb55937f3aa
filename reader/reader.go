// Package reader defines the provider adapter capability surface and the
// registry the collector resolves providers through. Each provider lives in
// its own subpackage and implements only the interfaces it can serve.
package reader

import (
	"context"
	"errors"
	"time"

	"candleflow/models"
)

// ErrUnknownProvider is returned when a registry lookup names a provider
// nothing was registered for.
var ErrUnknownProvider = errors.New("unknown provider")

// OHLCFetcher is implemented by adapters that serve candle history. The
// interval is the provider-native token from timeframe.Translate; the range
// is half-open [start, end). Returned candles are ordered oldest first with
// open times inside the range.
type OHLCFetcher interface {
	FetchOHLC(ctx context.Context, symbol string, start, end time.Time, interval string) ([]models.Candle, error)
}

// FundingRateFetcher is implemented by adapters that serve historical
// funding rates as decimal fractions per settlement.
type FundingRateFetcher interface {
	FetchFundingRates(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error)
}

// FundingPeriodFetcher is implemented by adapters that can resolve a
// symbol's funding settlement interval in hours.
type FundingPeriodFetcher interface {
	FetchFundingPeriod(ctx context.Context, symbol string) (int, error)
}

// KindReporter is implemented by adapters whose candles are stored under a
// data kind other than plain OHLC.
type KindReporter interface {
	DataKind() models.DataKind
}

// Registry maps providers to their adapters. Capability is discovered by
// interface assertion: an adapter that does not implement a fetcher simply
// does not serve that data kind.
type Registry struct {
	adapters map[models.Provider]interface{}
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.Provider]interface{})}
}

// Register binds an adapter to a provider, replacing any previous binding.
func (r *Registry) Register(p models.Provider, adapter interface{}) {
	r.adapters[p] = adapter
}

// OHLC resolves the candle fetcher for a provider. The second return is
// false when the provider is unknown or serves no candles.
func (r *Registry) OHLC(p models.Provider) (OHLCFetcher, bool) {
	f, ok := r.adapters[p].(OHLCFetcher)
	return f, ok
}

// Funding resolves the funding-rate fetcher for a provider.
func (r *Registry) Funding(p models.Provider) (FundingRateFetcher, bool) {
	f, ok := r.adapters[p].(FundingRateFetcher)
	return f, ok
}

// FundingPeriod resolves the settlement-interval fetcher for a provider.
func (r *Registry) FundingPeriod(p models.Provider) (FundingPeriodFetcher, bool) {
	f, ok := r.adapters[p].(FundingPeriodFetcher)
	return f, ok
}

// DataKind reports the kind the provider's candles are stored under.
// Adapters that do not say otherwise serve plain OHLC.
func (r *Registry) DataKind(p models.Provider) models.DataKind {
	if k, ok := r.adapters[p].(KindReporter); ok {
		return k.DataKind()
	}
	return models.KindOHLC
}

// Known reports whether any adapter is registered for the provider.
func (r *Registry) Known(p models.Provider) bool {
	_, ok := r.adapters[p]
	return ok
}
