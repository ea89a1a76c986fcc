package macro

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

const (
	apiNinjasRateURL = "https://api.api-ninjas.com/v1/interestrate"
	fredSeriesURL    = "https://api.stlouisfed.org/fred/series/observations"
)

var centralBanks = map[string]string{
	"GBP": "Bank of England",
	"JPY": "Bank of Japan",
	"EUR": "European Central Bank",
	"USD": "Federal Reserve",
	"AUD": "Reserve Bank of Australia",
	"CAD": "Bank of Canada",
	"CHF": "Swiss National Bank",
	"NZD": "Reserve Bank of New Zealand",
}

// FRED series ids for the major policy rates, used when API Ninjas is
// not configured or incomplete.
var fredSeries = map[string]string{
	"GBP": "BOERUKM",
	"EUR": "ECBMLFR",
	"USD": "FEDFUNDS",
	"JPY": "IRSTCB01JPM156N",
}

// FetchRateDifferential returns the policy-rate spread between the two
// central banks. Gold has no central bank, so gold pairs skip this
// adapter. Cached for 24 hours.
func (s *Service) FetchRateDifferential(ctx context.Context, baseCurrency, quoteCurrency string) (*RateDifferential, error) {
	if baseCurrency == "XAU" || quoteCurrency == "XAU" {
		return nil, nil
	}

	cacheKey := fmt.Sprintf("rates_%s_%s_%s", baseCurrency, quoteCurrency, time.Now().UTC().Format("2006-01-02"))

	var cached RateDifferential
	if s.cache.get(cacheKey, ratesCacheAge, &cached) {
		return &cached, nil
	}

	result := &RateDifferential{
		BaseCurrency:  baseCurrency,
		QuoteCurrency: quoteCurrency,
		BaseBank:      centralBanks[baseCurrency],
		QuoteBank:     centralBanks[quoteCurrency],
	}

	var haveBase, haveQuote bool
	if s.apiNinjasKey != "" {
		haveBase, haveQuote = s.fetchRatesAPINinjas(ctx, result)
	}

	// Fill in whatever API Ninjas did not cover from FRED.
	if !haveBase || !haveQuote {
		s.fetchRatesFRED(ctx, result, &haveBase, &haveQuote)
	}

	if !haveBase || !haveQuote {
		return nil, fmt.Errorf("rates unavailable for %s/%s", baseCurrency, quoteCurrency)
	}

	result.HasRates = true
	result.SpreadBps = int(math.Round((result.BaseRate - result.QuoteRate) * 100))
	result.CarryTradeStatus = carryStatus(result.SpreadBps)

	s.log.Info().
		Str("pair", baseCurrency+"/"+quoteCurrency).
		Int("spread_bps", result.SpreadBps).
		Str("carry", result.CarryTradeStatus).
		Msg("Rate differential fetched")

	s.cache.set(cacheKey, result)
	return result, nil
}

func (s *Service) fetchRatesAPINinjas(ctx context.Context, result *RateDifferential) (haveBase, haveQuote bool) {
	var payload struct {
		CentralBankRates []map[string]interface{} `json:"central_bank_rates"`
	}
	headers := map[string]string{"X-Api-Key": s.apiNinjasKey}
	if err := s.getJSON(ctx, apiNinjasRateURL, nil, headers, &payload); err != nil {
		s.log.Warn().Err(err).Msg("API Ninjas rate fetch failed")
		return false, false
	}

	for _, bank := range payload.CentralBankRates {
		name := strings.ToLower(toString(bank["central_bank"]))
		rate := toFloat(bank["rate_pct"])
		if result.BaseBank != "" && strings.Contains(name, strings.ToLower(result.BaseBank)) {
			result.BaseRate = rate
			haveBase = true
		} else if result.QuoteBank != "" && strings.Contains(name, strings.ToLower(result.QuoteBank)) {
			result.QuoteRate = rate
			haveQuote = true
		}
	}
	return haveBase, haveQuote
}

func (s *Service) fetchRatesFRED(ctx context.Context, result *RateDifferential, haveBase, haveQuote *bool) {
	for _, cur := range []struct {
		currency string
		have     *bool
		rate     *float64
	}{
		{result.BaseCurrency, haveBase, &result.BaseRate},
		{result.QuoteCurrency, haveQuote, &result.QuoteRate},
	} {
		if *cur.have {
			continue
		}
		seriesID, ok := fredSeries[cur.currency]
		if !ok {
			continue
		}

		params := url.Values{}
		params.Set("series_id", seriesID)
		params.Set("sort_order", "desc")
		params.Set("limit", "1")
		params.Set("file_type", "json")
		if s.fredAPIKey != "" {
			params.Set("api_key", s.fredAPIKey)
		}

		var payload struct {
			Observations []map[string]interface{} `json:"observations"`
		}
		if err := s.getJSON(ctx, fredSeriesURL, params, nil, &payload); err != nil {
			s.log.Debug().Err(err).Str("currency", cur.currency).Msg("FRED fetch failed")
			continue
		}
		if len(payload.Observations) == 0 {
			continue
		}
		value := toString(payload.Observations[0]["value"])
		if value == "" || value == "." {
			continue
		}
		*cur.rate = toFloat(value)
		*cur.have = true
		s.log.Info().Str("currency", cur.currency).Float64("rate", *cur.rate).Msg("FRED rate fetched")
	}
}
