package macro

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// CFTC Socrata endpoint for the weekly futures-only report.
const cotReportURL = "https://publicreporting.cftc.gov/resource/jun7-fc8e.json"

// cftcContracts maps currencies to CFTC contract market names.
var cftcContracts = map[string]string{
	"GBP": "BRITISH POUND STERLING",
	"JPY": "JAPANESE YEN",
	"EUR": "EURO FX",
	"USD": "U.S. DOLLAR INDEX",
	"AUD": "AUSTRALIAN DOLLAR",
	"CAD": "CANADIAN DOLLAR",
	"CHF": "SWISS FRANC",
	"NZD": "NEW ZEALAND DOLLAR",
	"XAU": "GOLD",
}

// FetchCOT returns the latest speculator positioning for the base and
// quote currency futures, with week-over-week change. Reports publish
// weekly; results are cached for 24 hours.
func (s *Service) FetchCOT(ctx context.Context, baseCurrency, quoteCurrency string) (*COTData, error) {
	cacheKey := fmt.Sprintf("cot_%s_%s_%s", baseCurrency, quoteCurrency, time.Now().UTC().Format("2006-01-02"))

	var cached COTData
	if s.cache.get(cacheKey, cotCacheAge, &cached) {
		return &cached, nil
	}

	result := &COTData{}
	for _, cur := range []struct {
		label    string
		currency string
	}{{"base", baseCurrency}, {"quote", quoteCurrency}} {
		entry, err := s.fetchCOTEntry(ctx, cur.currency)
		if err != nil {
			s.log.Warn().Err(err).Str("currency", cur.currency).Msg("COT fetch failed")
			continue
		}
		if entry == nil {
			continue
		}
		if cur.label == "base" {
			result.Base = entry
		} else {
			result.Quote = entry
		}
	}

	if result.Base == nil && result.Quote == nil {
		return nil, fmt.Errorf("no COT data for %s/%s", baseCurrency, quoteCurrency)
	}

	s.cache.set(cacheKey, result)
	return result, nil
}

func (s *Service) fetchCOTEntry(ctx context.Context, currency string) (*COTEntry, error) {
	contract, ok := cftcContracts[currency]
	if !ok {
		return nil, nil
	}

	params := url.Values{}
	params.Set("$where", fmt.Sprintf("contract_market_name like '%%%s%%'", contract))
	params.Set("$order", "report_date_as_yyyy_mm_dd DESC")
	params.Set("$limit", "2") // two weeks for the change calculation

	var reports []map[string]interface{}
	if err := s.getJSON(ctx, cotReportURL, params, nil, &reports); err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("no report rows for %s", contract)
	}

	latest := reports[0]
	specLong := toInt64(latest["noncomm_positions_long_all"])
	specShort := toInt64(latest["noncomm_positions_short_all"])

	entry := &COTEntry{
		Currency:      currency,
		NetSpeculator: specLong - specShort,
		SpecLong:      specLong,
		SpecShort:     specShort,
		ReportDate:    toString(latest["report_date_as_yyyy_mm_dd"]),
	}

	if len(reports) >= 2 {
		prev := reports[1]
		prevNet := toInt64(prev["noncomm_positions_long_all"]) - toInt64(prev["noncomm_positions_short_all"])
		entry.NetChange = entry.NetSpeculator - prevNet
		switch {
		case entry.NetChange > 0:
			entry.PositioningShift = "increasing_long"
		case entry.NetChange < 0:
			entry.PositioningShift = "increasing_short"
		default:
			entry.PositioningShift = "unchanged"
		}
	}

	s.log.Info().
		Str("currency", currency).
		Int64("net", entry.NetSpeculator).
		Int64("change", entry.NetChange).
		Msg("COT positioning fetched")
	return entry, nil
}
