package macro

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const myfxbookOutlookURL = "https://www.myfxbook.com/api/get-community-outlook.json"

// FetchSentiment returns the retail crowd positioning for the pair as a
// contrarian indicator. Cached for 4 hours.
func (s *Service) FetchSentiment(ctx context.Context, symbol string) (*Sentiment, error) {
	cacheKey := fmt.Sprintf("sentiment_%s_%s", symbol, time.Now().UTC().Format("2006-01-02"))

	var cached Sentiment
	if s.cache.get(cacheKey, sentimentCacheAge, &cached) {
		return &cached, nil
	}

	var payload struct {
		Symbols []map[string]interface{} `json:"symbols"`
	}
	if err := s.getJSON(ctx, myfxbookOutlookURL, nil, nil, &payload); err != nil {
		return nil, fmt.Errorf("outlook fetch failed: %w", err)
	}
	if len(payload.Symbols) == 0 {
		return nil, fmt.Errorf("no symbols in outlook response")
	}

	want := strings.ReplaceAll(strings.ToUpper(symbol), "/", "")
	for _, item := range payload.Symbols {
		name := strings.ReplaceAll(strings.ToUpper(toString(item["name"])), "/", "")
		if name != want {
			continue
		}

		pctLong := toFloat(item["longPercentage"])
		pctShort := toFloat(item["shortPercentage"])

		result := &Sentiment{
			Symbol:           symbol,
			PctLong:          pctLong,
			PctShort:         pctShort,
			VolLong:          toInt64(item["longVolume"]),
			VolShort:         toInt64(item["shortVolume"]),
			CrowdBias:        crowdBias(pctLong, pctShort),
			ContrarianSignal: contrarianSignal(pctLong, pctShort),
		}
		s.cache.set(cacheKey, result)
		s.log.Info().
			Str("symbol", symbol).
			Float64("pct_long", pctLong).
			Str("contrarian", result.ContrarianSignal).
			Msg("Retail sentiment fetched")
		return result, nil
	}

	return nil, fmt.Errorf("symbol %s not in outlook data", symbol)
}

func crowdBias(pctLong, pctShort float64) string {
	switch {
	case pctLong > 55:
		return "long"
	case pctShort > 55:
		return "short"
	default:
		return "neutral"
	}
}

// contrarianSignal flips a crowded retail side into the opposite bias.
func contrarianSignal(pctLong, pctShort float64) string {
	switch {
	case pctShort >= 65:
		return "bullish"
	case pctLong >= 65:
		return "bearish"
	default:
		return "neutral"
	}
}
