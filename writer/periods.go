package writer

import (
	"fmt"
	"sync"

	"candleflow/models"
)

// PeriodCache remembers resolved funding settlement intervals per
// symbol/exchange pair so the period is fetched once per run.
type PeriodCache struct {
	mu    sync.RWMutex
	cache map[string]string
}

func NewPeriodCache() *PeriodCache {
	return &PeriodCache{cache: make(map[string]string)}
}

func periodKey(symbol, exchange string) string {
	return fmt.Sprintf("%s:%s", symbol, exchange)
}

// Set stores a resolved period tag value, e.g. "8h".
func (p *PeriodCache) Set(symbol, exchange, period string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[periodKey(symbol, exchange)] = period
}

// Get returns the cached period, or the "unknown" sentinel on a miss so
// the tag is always present on written points.
func (p *PeriodCache) Get(symbol, exchange string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.cache[periodKey(symbol, exchange)]; ok {
		return v
	}
	return models.FundingPeriodUnknown
}

// Len reports the number of cached entries.
func (p *PeriodCache) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.cache)
}
