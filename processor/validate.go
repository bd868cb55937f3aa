// Package processor validates fetched candles before they reach storage.
// Validation never fails a batch wholesale: bad rows are split off with a
// reason so the collector can count and log them.
package processor

import (
	"candleflow/logger"
	"candleflow/models"
)

// Rejection reasons.
const (
	ReasonNotFinite     = "not_finite"
	ReasonNegativeValue = "negative_value"
	ReasonOHLCOrder     = "ohlc_order"
	ReasonZeroTime      = "zero_time"
)

// Rejection pairs a rejected candle with the first rule it violated.
type Rejection struct {
	Candle models.Candle
	Reason string
}

// Validate splits candles into valid rows and rejections. Rules, in order:
// zero timestamp, non-finite values, negative values, OHLC ordering
// (low <= min(open,close) <= max(open,close) <= high).
func Validate(candles []models.Candle) ([]models.Candle, []Rejection) {
	valid := make([]models.Candle, 0, len(candles))
	var rejected []Rejection

	for _, c := range candles {
		if reason, ok := check(c); !ok {
			rejected = append(rejected, Rejection{Candle: c, Reason: reason})
			continue
		}
		valid = append(valid, c)
	}

	if len(rejected) > 0 {
		logger.IncrementRejected(len(rejected))
		logger.GetLogger().WithComponent("processor").WithFields(logger.Fields{
			"valid":    len(valid),
			"rejected": len(rejected),
			"reason":   rejected[0].Reason,
		}).Warn("candles rejected by validation")
	}
	return valid, rejected
}

func check(c models.Candle) (string, bool) {
	if c.Time.IsZero() {
		return ReasonZeroTime, false
	}
	if !c.Finite() {
		return ReasonNotFinite, false
	}
	if c.Open < 0 || c.High < 0 || c.Low < 0 || c.Close < 0 || c.Volume < 0 {
		return ReasonNegativeValue, false
	}
	lo, hi := c.Open, c.Close
	if lo > hi {
		lo, hi = hi, lo
	}
	if c.Low > lo || c.High < hi {
		return ReasonOHLCOrder, false
	}
	return "", true
}

// ValidateFunding applies the subset of rules meaningful for funding-rate
// observations: timestamps must be set and rates finite. Negative rates are
// legitimate (shorts pay longs).
func ValidateFunding(candles []models.Candle) ([]models.Candle, []Rejection) {
	valid := make([]models.Candle, 0, len(candles))
	var rejected []Rejection

	for _, c := range candles {
		if c.Time.IsZero() {
			rejected = append(rejected, Rejection{Candle: c, Reason: ReasonZeroTime})
			continue
		}
		if !c.Finite() {
			rejected = append(rejected, Rejection{Candle: c, Reason: ReasonNotFinite})
			continue
		}
		valid = append(valid, c)
	}

	if len(rejected) > 0 {
		logger.IncrementRejected(len(rejected))
	}
	return valid, rejected
}
