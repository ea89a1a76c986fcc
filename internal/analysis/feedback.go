package analysis

import (
	"fmt"
	"strings"

	"github.com/manuham/fx-coordinator/internal/store"
)

func isWin(outcome string) bool {
	return outcome == store.OutcomeFullWin || outcome == store.OutcomePartialWin
}

func isDecided(outcome string) bool {
	return isWin(outcome) || outcome == store.OutcomeLoss
}

// performanceFeedback assembles the recent track record for a pair into
// a prompt section: per-trade lines, win-rate breakdowns by pattern, and
// the latest post-trade insights. Returns "" when there is no history.
func performanceFeedback(trades []*store.TradeRecord, reviews []store.TradeReview) string {
	if len(trades) == 0 {
		return ""
	}

	symbol := trades[0].Symbol
	var b strings.Builder
	fmt.Fprintf(&b, "## Your last %d completed trades for %s\n", len(trades), symbol)

	wins, losses := 0, 0
	totalPips := 0.0
	for i, t := range trades {
		tag := t.Outcome
		switch t.Outcome {
		case store.OutcomeFullWin:
			tag = "W"
		case store.OutcomePartialWin:
			tag = "PW"
		case store.OutcomeLoss:
			tag = "L"
		}

		trendInfo := t.TrendAlignment
		if trendInfo == "" {
			trendInfo = t.H1Trend
		}
		ct := ""
		if t.CounterTrend {
			ct = " [CT]"
		}

		fmt.Fprintf(&b, "  %d. %s %s (%s) %+.0fp | %s | %s | entry:%s%s",
			i+1, tag, strings.ToUpper(t.Bias), t.Confidence, t.PnLPips,
			trendInfo, t.PriceZone, t.EntryStatus, ct)
		if t.Outcome == store.OutcomeLoss && t.NegativeFactors != "" {
			fmt.Fprintf(&b, " | risks: %s", strings.ReplaceAll(t.NegativeFactors, "\n", "; "))
		}
		b.WriteString("\n")

		if isWin(t.Outcome) {
			wins++
		} else if t.Outcome == store.OutcomeLoss {
			losses++
		}
		totalPips += t.PnLPips
	}

	decided := wins + losses
	winRate := 0.0
	if decided > 0 {
		winRate = float64(wins) / float64(decided) * 100
	}
	fmt.Fprintf(&b, "\nOverall: %.0f%% win rate (%dW / %dL) | Net: %+.0f pips\n", winRate, wins, losses, totalPips)

	if decided >= 3 {
		b.WriteString("\n## Pattern Analysis\n")

		writeRate := func(label string, match func(*store.TradeRecord) bool) {
			w, n := 0, 0
			for _, t := range trades {
				if !match(t) || !isDecided(t.Outcome) {
					continue
				}
				n++
				if isWin(t.Outcome) {
					w++
				}
			}
			if n > 0 {
				fmt.Fprintf(&b, "  %s: %.0f%% (%d/%d)\n", label, float64(w)/float64(n)*100, w, n)
			}
		}

		writeRate("Counter-trend", func(t *store.TradeRecord) bool { return t.CounterTrend })
		writeRate("Trend-aligned", func(t *store.TradeRecord) bool { return !t.CounterTrend })

		for _, prefix := range []string{"4/4", "3/4", "2/4", "1/4"} {
			p := prefix
			writeRate(p+" aligned", func(t *store.TradeRecord) bool { return strings.HasPrefix(t.TrendAlignment, p) })
		}
		for _, conf := range []string{"high", "medium_high", "medium", "low"} {
			c := conf
			label := strings.ReplaceAll(strings.ToUpper(c), "_", "-") + " confidence"
			writeRate(label, func(t *store.TradeRecord) bool { return t.Confidence == c })
		}
		for _, status := range []string{"at_zone", "approaching", "requires_pullback"} {
			s := status
			writeRate(fmt.Sprintf("Entry %q", s), func(t *store.TradeRecord) bool { return t.EntryStatus == s })
		}
		for _, zone := range []string{"premium", "discount", "equilibrium"} {
			z := zone
			writeRate(strings.ToUpper(z)+" zone", func(t *store.TradeRecord) bool { return t.PriceZone == z })
		}
		for _, bias := range []string{"long", "short"} {
			d := bias
			writeRate(strings.ToUpper(d), func(t *store.TradeRecord) bool { return t.Bias == d })
		}
	}

	if len(reviews) > 0 {
		b.WriteString("\n## Recent Post-Trade Insights\n")
		for _, r := range reviews {
			fmt.Fprintf(&b, "  - %s\n", r.Review)
		}
	}

	b.WriteString(`
## Instructions
Use the patterns and insights above to improve your current analysis:
- If a pattern consistently loses, AVOID it or rate confidence LOW
- If a pattern consistently wins, actively LOOK FOR similar setups
- If 'requires_pullback' entries lose often, prefer 'at_zone' entries
- If counter-trend trades lose, only propose them with very strong reversal evidence`)

	return b.String()
}
