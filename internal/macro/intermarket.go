package macro

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"
)

const yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart/%s"

// FetchIntermarket returns the pair-relevant index quotes plus a
// derived risk-sentiment signal. Cached for 2 hours.
//
// Pair-specific correlations: JPY pairs watch the Nikkei, GBP the FTSE,
// EUR the DAX, AUD the ASX, CAD oil, and gold adds VIX and the GLD ETF
// with the dollar index inverted.
func (s *Service) FetchIntermarket(ctx context.Context, baseCurrency, quoteCurrency string) (*Intermarket, error) {
	// Two-hour bucket in the key so the cache rolls over intraday.
	now := time.Now().UTC()
	cacheKey := fmt.Sprintf("intermarket_%s_%s_%s_%d",
		baseCurrency, quoteCurrency, now.Format("2006-01-02"), now.Hour()/2)

	var cached Intermarket
	if s.cache.get(cacheKey, intermarketCacheAge, &cached) {
		return &cached, nil
	}

	tickers := map[string]string{
		"dxy":          "DX-Y.NYB",
		"us_10y_yield": "^TNX",
	}

	currencies := map[string]bool{baseCurrency: true, quoteCurrency: true}
	if currencies["JPY"] {
		tickers["nikkei_225"] = "^N225"
	}
	if currencies["GBP"] {
		tickers["ftse_100"] = "^FTSE"
	}
	if currencies["EUR"] {
		tickers["dax"] = "^GDAXI"
	}
	if currencies["XAU"] {
		tickers["gold_etf"] = "GLD"
		tickers["vix"] = "^VIX"
	}
	if currencies["AUD"] {
		tickers["asx_200"] = "^AXJO"
	}
	if currencies["CAD"] {
		tickers["oil_wti"] = "CL=F"
	}

	result := &Intermarket{Indicators: map[string]Indicator{}}
	for name, ticker := range tickers {
		ind, err := s.fetchQuote(ctx, ticker)
		if err != nil {
			s.log.Debug().Err(err).Str("ticker", ticker).Msg("Intermarket fetch failed")
			continue
		}
		result.Indicators[name] = *ind
	}

	if len(result.Indicators) == 0 {
		return nil, fmt.Errorf("no intermarket data for %s/%s", baseCurrency, quoteCurrency)
	}

	result.RiskSentiment = deriveRiskSentiment(result.Indicators)
	if currencies["XAU"] {
		result.GoldBias = deriveGoldBias(result.Indicators)
	}

	s.cache.set(cacheKey, result)
	s.log.Info().
		Int("indicators", len(result.Indicators)).
		Str("risk", result.RiskSentiment).
		Msg("Intermarket data fetched")
	return result, nil
}

func (s *Service) fetchQuote(ctx context.Context, ticker string) (*Indicator, error) {
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("range", "5d")

	var payload struct {
		Chart struct {
			Result []struct {
				Meta       map[string]interface{} `json:"meta"`
				Indicators struct {
					Quote []struct {
						Close []*float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
		} `json:"chart"`
	}

	if err := s.getJSON(ctx, fmt.Sprintf(yahooChartURL, url.PathEscape(ticker)), params, nil, &payload); err != nil {
		return nil, err
	}
	if len(payload.Chart.Result) == 0 {
		return nil, fmt.Errorf("empty chart result for %s", ticker)
	}

	chart := payload.Chart.Result[0]
	price := toFloat(chart.Meta["regularMarketPrice"])
	prevClose := toFloat(chart.Meta["chartPreviousClose"])
	if prevClose == 0 {
		prevClose = toFloat(chart.Meta["previousClose"])
	}

	var closes []float64
	if len(chart.Indicators.Quote) > 0 {
		for _, c := range chart.Indicators.Quote[0].Close {
			if c != nil {
				closes = append(closes, *c)
			}
		}
	}

	ind := &Indicator{Price: round2(price), Trend: "unknown"}
	if price != 0 && prevClose != 0 {
		ind.DailyChangePct = round2((price - prevClose) / prevClose * 100)
	}
	if len(closes) >= 5 && closes[0] != 0 {
		ind.FiveDayChangePct = round2((closes[len(closes)-1] - closes[0]) / closes[0] * 100)
		switch {
		case ind.FiveDayChangePct > 0.5:
			ind.Trend = "up"
		case ind.FiveDayChangePct < -0.5:
			ind.Trend = "down"
		default:
			ind.Trend = "flat"
		}
	}
	return ind, nil
}

var equityIndices = []string{"nikkei_225", "ftse_100", "dax", "asx_200"}

// deriveRiskSentiment counts how many equity indices moved decisively.
func deriveRiskSentiment(indicators map[string]Indicator) string {
	var bullish, bearish int
	for _, idx := range equityIndices {
		ind, ok := indicators[idx]
		if !ok {
			continue
		}
		if ind.DailyChangePct > 0.3 {
			bullish++
		} else if ind.DailyChangePct < -0.3 {
			bearish++
		}
	}
	switch {
	case bullish >= 2:
		return "risk_on"
	case bearish >= 2:
		return "risk_off"
	default:
		return "mixed"
	}
}

// deriveGoldBias reads gold direction from the dollar index and VIX.
func deriveGoldBias(indicators map[string]Indicator) string {
	dxy := indicators["dxy"].DailyChangePct
	vix := indicators["vix"].DailyChangePct
	switch {
	case dxy < -0.3 || vix > 3:
		return "bullish (DXY weak / fear rising)"
	case dxy > 0.3 && vix < -3:
		return "bearish (DXY strong / calm markets)"
	default:
		return "neutral"
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
