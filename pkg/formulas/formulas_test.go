package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/manuham/fx-coordinator/internal/domain"
)

func bars(closes ...float64) []domain.OHLCBar {
	out := make([]domain.OHLCBar, len(closes))
	for i, c := range closes {
		out[i] = domain.OHLCBar{
			Open:  c - 0.1,
			High:  c + 0.2,
			Low:   c - 0.2,
			Close: c,
		}
	}
	return out
}

func rising(n int) []domain.OHLCBar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	return bars(closes...)
}

func TestRSI(t *testing.T) {
	// Monotonically rising closes push RSI to the top of the scale.
	rsi := RSI(rising(30), DefaultPeriod)
	assert.Greater(t, rsi, 90.0)

	// Not enough history.
	assert.Equal(t, 0.0, RSI(rising(10), DefaultPeriod))
}

func TestATR(t *testing.T) {
	atr := ATR(rising(30), DefaultPeriod)
	// Each bar spans 0.4 with a 1.0 gap between closes.
	assert.False(t, math.IsNaN(atr))
	assert.Greater(t, atr, 0.0)

	assert.Equal(t, 0.0, ATR(rising(5), DefaultPeriod))
}

func TestEnrichMarketData(t *testing.T) {
	m := &domain.MarketData{
		Symbol: "GBPJPY",
		RSIH1:  55.5, // already set, must not change
		OHLCH1: rising(30),
		OHLCM5: rising(30),
	}
	EnrichMarketData(m)

	assert.Equal(t, 55.5, m.RSIH1)
	assert.Greater(t, m.ATRH1, 0.0)
	assert.Greater(t, m.RSIM5, 0.0)
	assert.Greater(t, m.ATRM5, 0.0)
	// No D1 candles, nothing to compute.
	assert.Equal(t, 0.0, m.RSID1)
}
