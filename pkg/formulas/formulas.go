// Package formulas computes the indicator values the analysis prompt
// relies on, for terminals that export raw OHLC candles instead of
// precomputed RSI/ATR.
package formulas

import (
	talib "github.com/markcheno/go-talib"

	"github.com/manuham/fx-coordinator/internal/domain"
)

// DefaultPeriod is the lookback used for both RSI and ATR, matching
// the terminal's chart defaults.
const DefaultPeriod = 14

// RSI returns the latest RSI value over the bars, or 0 when there is
// not enough history.
func RSI(bars []domain.OHLCBar, period int) float64 {
	if len(bars) <= period {
		return 0
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	out := talib.Rsi(closes, period)
	return out[len(out)-1]
}

// ATR returns the latest ATR value over the bars, or 0 when there is
// not enough history.
func ATR(bars []domain.OHLCBar, period int) float64 {
	if len(bars) <= period {
		return 0
	}
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}
	out := talib.Atr(highs, lows, closes, period)
	return out[len(out)-1]
}

// EnrichMarketData fills in any RSI/ATR field the terminal left at
// zero, from the OHLC series it did send. Fields already set are left
// alone.
func EnrichMarketData(m *domain.MarketData) {
	fill := func(rsi, atr *float64, bars []domain.OHLCBar) {
		if len(bars) == 0 {
			return
		}
		if *rsi == 0 {
			*rsi = RSI(bars, DefaultPeriod)
		}
		if *atr == 0 {
			*atr = ATR(bars, DefaultPeriod)
		}
	}
	fill(&m.RSID1, &m.ATRD1, m.OHLCD1)
	fill(&m.RSIH4, &m.ATRH4, m.OHLCH4)
	fill(&m.RSIH1, &m.ATRH1, m.OHLCH1)
	fill(&m.RSIM5, &m.ATRM5, m.OHLCM5)
}
