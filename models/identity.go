package models

import "strings"

// Identity is the tag tuple naming one stored series. Two logically
// distinct series must never collide on the same tuple.
type Identity struct {
	Symbol   string
	Exchange string
	Kind     DataKind
	Period   string
}

// quoteSuffixes are stripped when reducing a pair symbol to its base
// currency (BTCUSDT -> BTC). Order matters: longer suffixes first.
var quoteSuffixes = []string{"USDT", "USDC", "PERP", "USD"}

// BaseCurrency reduces a pair symbol to its base currency. Symbols without
// a recognized quote suffix are returned unchanged.
func BaseCurrency(symbol string) string {
	for _, suffix := range quoteSuffixes {
		if strings.HasSuffix(symbol, suffix) && len(symbol) > len(suffix) {
			return symbol[:len(symbol)-len(suffix)]
		}
	}
	return symbol
}

// TargetSymbol computes the canonical symbol for this identity under the
// current naming convention: volatility-index series become BASE_DVOL,
// everything else SYMBOL_EXCHANGE with the exchange upper-cased.
func (id Identity) TargetSymbol() string {
	if id.Kind.Canonical() == KindVolatilityIndex {
		return BaseCurrency(id.Symbol) + "_DVOL"
	}
	exchange := strings.ToUpper(strings.ReplaceAll(id.Exchange, " ", ""))
	return id.Symbol + "_" + exchange
}

// Migrated reports whether the identity's symbol already follows the
// canonical naming convention.
func (id Identity) Migrated() bool {
	if !strings.Contains(id.Symbol, "_") {
		return false
	}
	if strings.HasSuffix(id.Symbol, "_DVOL") {
		return true
	}
	exchange := strings.ToUpper(strings.ReplaceAll(id.Exchange, " ", ""))
	return strings.HasSuffix(id.Symbol, "_"+exchange)
}
