package macro

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/manuham/fx-coordinator/internal/pairs"
)

// gather runs all four adapters in parallel and returns whatever
// succeeded. Individual failures are logged by the adapters and
// tolerated here.
func (s *Service) gather(ctx context.Context, symbol string, profile pairs.Profile) (*COTData, *Sentiment, *RateDifferential, *Intermarket) {
	var (
		wg          sync.WaitGroup
		cot         *COTData
		sentiment   *Sentiment
		rates       *RateDifferential
		intermarket *Intermarket
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		cot, _ = s.FetchCOT(ctx, profile.BaseCurrency, profile.QuoteCurrency)
	}()
	go func() {
		defer wg.Done()
		sentiment, _ = s.FetchSentiment(ctx, symbol)
	}()
	go func() {
		defer wg.Done()
		rates, _ = s.FetchRateDifferential(ctx, profile.BaseCurrency, profile.QuoteCurrency)
	}()
	go func() {
		defer wg.Done()
		intermarket, _ = s.FetchIntermarket(ctx, profile.BaseCurrency, profile.QuoteCurrency)
	}()
	wg.Wait()

	return cot, sentiment, rates, intermarket
}

// BuildContext composes the macro context block injected into the
// full-analysis prompt. Returns "" when no adapter returned anything.
func (s *Service) BuildContext(ctx context.Context, symbol string, profile pairs.Profile) string {
	cot, sentiment, rates, intermarket := s.gather(ctx, symbol, profile)
	return formatContext(symbol, profile, cot, sentiment, rates, intermarket)
}

// formatContext is split out so the rendering is testable without the
// network.
func formatContext(symbol string, profile pairs.Profile, cot *COTData, sentiment *Sentiment, rates *RateDifferential, intermarket *Intermarket) string {
	var sections []string

	if cot != nil {
		var lines []string
		for _, entry := range []*COTEntry{cot.Base, cot.Quote} {
			if entry == nil {
				continue
			}
			bias := "bearish"
			if entry.NetSpeculator > 0 {
				bias = "bullish"
			}
			lines = append(lines, fmt.Sprintf("  %s: speculators net %+d (%s, WoW change: %+d — %s)",
				entry.Currency, entry.NetSpeculator, bias, entry.NetChange, entry.PositioningShift))
		}
		if len(lines) > 0 {
			sections = append(sections, "COT Positioning (CFTC weekly):\n"+strings.Join(lines, "\n"))
		}
	}

	if sentiment != nil {
		sections = append(sections, fmt.Sprintf(
			"Retail Sentiment (Myfxbook):\n  %s: %.0f%% long / %.0f%% short (crowd %s, contrarian signal: %s)",
			symbol, sentiment.PctLong, sentiment.PctShort, sentiment.CrowdBias, sentiment.ContrarianSignal))
	}

	if rates != nil && rates.HasRates {
		sections = append(sections, fmt.Sprintf(
			"Interest Rate Differential:\n  %s: %.2f%% | %s: %.2f%%\n  Spread: %+d bps — carry trade: %s",
			rates.BaseBank, rates.BaseRate, rates.QuoteBank, rates.QuoteRate,
			rates.SpreadBps, rates.CarryTradeStatus))
	}

	if intermarket != nil {
		var lines []string
		for _, name := range sortedIndicatorNames(intermarket.Indicators) {
			ind := intermarket.Indicators[name]
			lines = append(lines, fmt.Sprintf("  %s: %.2f (%+.2f%% today, 5d trend: %s)",
				displayName(name), ind.Price, ind.DailyChangePct, ind.Trend))
		}
		lines = append(lines, fmt.Sprintf("  Overall risk sentiment: %s", intermarket.RiskSentiment))
		if intermarket.GoldBias != "" {
			lines = append(lines, fmt.Sprintf("  Gold macro bias: %s", intermarket.GoldBias))
		}
		sections = append(sections, "Intermarket Indicators:\n"+strings.Join(lines, "\n"))
	}

	if len(sections) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## MACRO & SENTIMENT CONTEXT (live data)\n")
	b.WriteString(strings.Join(sections, "\n\n"))

	b.WriteString("\n\nUse the above as additional confluence:")
	b.WriteString("\n- If COT opposes your chart bias -> lower confidence by 1 tier")
	b.WriteString("\n- If retail is 65%+ one-sided -> contrarian signal supports opposite direction")

	if profile.IsGold() {
		b.WriteString("\n- Gold: DXY inverse correlation — strong USD = bearish gold. Rising VIX = bullish gold")
		b.WriteString("\n- Gold: US 10Y yield inverse — rising real yields = bearish gold")
	} else {
		if profile.QuoteCurrency == "JPY" {
			b.WriteString(fmt.Sprintf("\n- If Nikkei is risk-off -> JPY strengthens -> bearish for %s", symbol))
		}
		if rates != nil && rates.HasRates {
			b.WriteString("\n- If carry trade weakening -> favor shorter-term setups over swings")
		}
		if profile.BaseCurrency == "GBP" {
			b.WriteString("\n- FTSE 100 rallying supports GBP strength")
		}
		if profile.BaseCurrency == "EUR" {
			b.WriteString("\n- DAX rallying supports EUR via risk-on sentiment")
		}
	}

	b.WriteString("\nDo NOT override chart-based ICT analysis — use this as a tiebreaker or confidence adjuster.")
	return b.String()
}

// Summary renders a compact human-readable report of all adapters for
// the messenger /context command.
func (s *Service) Summary(ctx context.Context, symbol string, profile pairs.Profile) string {
	cot, sentiment, rates, intermarket := s.gather(ctx, symbol, profile)

	var b strings.Builder
	fmt.Fprintf(&b, "%s Market Context\n%s\n", symbol, strings.Repeat("=", 25))

	if cot != nil {
		b.WriteString("\nCOT Positioning:\n")
		for _, entry := range []*COTEntry{cot.Base, cot.Quote} {
			if entry == nil {
				continue
			}
			fmt.Fprintf(&b, "  %s: net %+d (WoW: %+d)\n", entry.Currency, entry.NetSpeculator, entry.NetChange)
		}
	} else {
		b.WriteString("\nCOT: unavailable\n")
	}

	if sentiment != nil {
		fmt.Fprintf(&b, "\nRetail Sentiment:\n  %.0f%% long / %.0f%% short\n  Contrarian: %s\n",
			sentiment.PctLong, sentiment.PctShort, sentiment.ContrarianSignal)
	} else {
		b.WriteString("\nSentiment: unavailable\n")
	}

	if rates != nil && rates.HasRates {
		fmt.Fprintf(&b, "\nRate Differential:\n  %s: %.2f%%\n  %s: %.2f%%\n  Spread: %+d bps (%s)\n",
			rates.BaseBank, rates.BaseRate, rates.QuoteBank, rates.QuoteRate,
			rates.SpreadBps, rates.CarryTradeStatus)
	} else {
		b.WriteString("\nRates: unavailable\n")
	}

	if intermarket != nil {
		fmt.Fprintf(&b, "\nIntermarket (%s):\n", intermarket.RiskSentiment)
		for _, name := range sortedIndicatorNames(intermarket.Indicators) {
			ind := intermarket.Indicators[name]
			fmt.Fprintf(&b, "  %s: %.2f (%+.2f%%)\n", displayName(name), ind.Price, ind.DailyChangePct)
		}
		if intermarket.GoldBias != "" {
			fmt.Fprintf(&b, "  Gold bias: %s\n", intermarket.GoldBias)
		}
	} else {
		b.WriteString("\nIntermarket: unavailable\n")
	}

	b.WriteString("\nData cached — refreshes automatically")
	return b.String()
}

func displayName(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func sortedIndicatorNames(indicators map[string]Indicator) []string {
	names := make([]string, 0, len(indicators))
	for name := range indicators {
		names = append(names, name)
	}
	// Stable prompt ordering keeps the provider prompt-cache effective.
	sort.Strings(names)
	return names
}
