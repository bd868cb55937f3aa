package processor

import (
	"math"
	"testing"
	"time"

	"candleflow/models"
)

func candleAt(h int, o, hi, lo, c float64) models.Candle {
	return models.Candle{
		Time: time.Date(2024, 1, 1, h, 0, 0, 0, time.UTC),
		Open: o, High: hi, Low: lo, Close: c, Volume: 10,
	}
}

func TestValidateRejectsOHLCOrder(t *testing.T) {
	// high below the open must be rejected.
	in := []models.Candle{candleAt(0, 100, 90, 80, 95)}
	valid, rejected := Validate(in)
	if len(valid) != 0 {
		t.Fatalf("expected no valid candles, got %d", len(valid))
	}
	if len(rejected) != 1 {
		t.Fatalf("expected 1 rejection, got %d", len(rejected))
	}
	if rejected[0].Reason != ReasonOHLCOrder {
		t.Errorf("expected reason %q, got %q", ReasonOHLCOrder, rejected[0].Reason)
	}
}

func TestValidateRejectsNonFinite(t *testing.T) {
	in := []models.Candle{candleAt(0, math.NaN(), 110, 90, 100)}
	_, rejected := Validate(in)
	if len(rejected) != 1 || rejected[0].Reason != ReasonNotFinite {
		t.Fatalf("expected not_finite rejection, got %+v", rejected)
	}

	in = []models.Candle{candleAt(0, math.Inf(1), 110, 90, 100)}
	_, rejected = Validate(in)
	if len(rejected) != 1 || rejected[0].Reason != ReasonNotFinite {
		t.Fatalf("expected not_finite rejection for Inf, got %+v", rejected)
	}
}

func TestValidateRejectsNegative(t *testing.T) {
	c := candleAt(0, 100, 110, 90, 105)
	c.Volume = -1
	_, rejected := Validate([]models.Candle{c})
	if len(rejected) != 1 || rejected[0].Reason != ReasonNegativeValue {
		t.Fatalf("expected negative_value rejection, got %+v", rejected)
	}
}

func TestValidateRejectsZeroTime(t *testing.T) {
	c := models.Candle{Open: 100, High: 110, Low: 90, Close: 105, Volume: 1}
	_, rejected := Validate([]models.Candle{c})
	if len(rejected) != 1 || rejected[0].Reason != ReasonZeroTime {
		t.Fatalf("expected zero_time rejection, got %+v", rejected)
	}
}

func TestValidatePassesGoodCandles(t *testing.T) {
	in := []models.Candle{
		candleAt(0, 100, 110, 90, 105),
		candleAt(1, 105, 106, 104, 105.5),
		candleAt(2, 105.5, 105.5, 105.5, 105.5), // flat bucket is legal
	}
	valid, rejected := Validate(in)
	if len(rejected) != 0 {
		t.Fatalf("unexpected rejections: %+v", rejected)
	}
	if len(valid) != len(in) {
		t.Fatalf("expected %d valid candles, got %d", len(in), len(valid))
	}
	for i, c := range valid {
		lo, hi := c.Open, c.Close
		if lo > hi {
			lo, hi = hi, lo
		}
		if c.Low > lo || c.High < hi {
			t.Errorf("candle %d violates ordering after validation", i)
		}
	}
}

func TestValidateMixedBatch(t *testing.T) {
	in := []models.Candle{
		candleAt(0, 100, 110, 90, 105),
		candleAt(1, 100, 90, 80, 95), // bad ordering
		candleAt(2, 100, 110, 90, 105),
	}
	valid, rejected := Validate(in)
	if len(valid) != 2 || len(rejected) != 1 {
		t.Fatalf("expected 2 valid / 1 rejected, got %d / %d", len(valid), len(rejected))
	}
}

func TestValidateFundingAllowsNegativeRates(t *testing.T) {
	obs := []models.Candle{
		models.FundingObservation(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), -0.0003),
		models.FundingObservation(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), 0.0001),
	}
	valid, rejected := ValidateFunding(obs)
	if len(rejected) != 0 {
		t.Fatalf("unexpected rejections: %+v", rejected)
	}
	if len(valid) != 2 {
		t.Fatalf("expected 2 valid observations, got %d", len(valid))
	}
}

func TestValidateFundingRejectsNaN(t *testing.T) {
	obs := []models.Candle{
		models.FundingObservation(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), math.NaN()),
	}
	valid, rejected := ValidateFunding(obs)
	if len(valid) != 0 || len(rejected) != 1 || rejected[0].Reason != ReasonNotFinite {
		t.Fatalf("expected not_finite rejection, got valid=%d rejected=%+v", len(valid), rejected)
	}
}
