package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/manuham/fx-coordinator/internal/domain"
	"github.com/manuham/fx-coordinator/internal/watch"
)

var separator = strings.Repeat("━", 20)

func fmtPrice(price float64, digits int) string {
	return strconv.FormatFloat(price, 'f', digits, 64)
}

func checklistNum(score string) int {
	if !strings.Contains(score, "/") {
		return 0
	}
	n, _ := strconv.Atoi(strings.SplitN(score, "/", 2)[0])
	return n
}

// SetupCard renders one proposed setup as a chat card.
func SetupCard(setup domain.TradeSetup, summary, symbol string, digits int, autoQueued bool) string {
	directionEmoji, directionLabel := "🟢", "LONG"
	if setup.Bias == "short" {
		directionEmoji, directionLabel = "🔴", "SHORT"
	}

	confidenceEmoji := map[string]string{
		"high": "🔥", "medium": "⚠️", "low": "❓",
	}[setup.Confidence]

	tfLabel := setup.TimeframeType
	if tfLabel != "" {
		tfLabel = strings.ToUpper(tfLabel[:1]) + tfLabel[1:]
	}

	lines := []string{
		fmt.Sprintf("%s %s %s Setup (%s)", directionEmoji, symbol, directionLabel, tfLabel),
		separator,
	}

	if setup.TrendAlignment != "" {
		alignEmoji := "🔴"
		if strings.HasPrefix(setup.TrendAlignment, "4/4") || strings.HasPrefix(setup.TrendAlignment, "3/4") {
			alignEmoji = "🟢"
		} else if strings.HasPrefix(setup.TrendAlignment, "2/4") {
			alignEmoji = "🟡"
		}
		lines = append(lines, fmt.Sprintf("%s Trend: %s", alignEmoji, setup.TrendAlignment))
	} else if setup.H1Trend != "" {
		trendEmoji := map[string]string{
			"bullish": "🟢", "bearish": "🔴", "ranging": "↔️",
		}[setup.H1Trend]
		lines = append(lines, fmt.Sprintf("%s H1 Trend: %s", trendEmoji, strings.ToUpper(setup.H1Trend)))
	}
	if setup.PriceZone != "" {
		lines = append(lines, fmt.Sprintf("📍 Zone: %s", strings.ToUpper(setup.PriceZone)))
	}
	if setup.CounterTrend {
		lines = append(lines, "⚠️ COUNTER-TREND TRADE")
	}
	if setup.ChecklistScore != "" {
		clEmoji := "🔴"
		if n := checklistNum(setup.ChecklistScore); n >= 10 {
			clEmoji = "🟢"
		} else if n >= 7 {
			clEmoji = "🟡"
		}
		lines = append(lines, fmt.Sprintf("%s ICT Checklist: %s", clEmoji, setup.ChecklistScore))
	}
	if setup.EntryStatus != "" {
		statusEmoji := map[string]string{
			"at_zone": "🟢", "approaching": "🟡", "requires_pullback": "🔴",
		}[setup.EntryStatus]
		entry := fmt.Sprintf("%s Entry: %s", statusEmoji, strings.ToUpper(strings.ReplaceAll(setup.EntryStatus, "_", " ")))
		if setup.EntryDistPips > 0 {
			entry += fmt.Sprintf(" (%.0fp away)", setup.EntryDistPips)
		}
		lines = append(lines, entry)
	}
	if autoQueued {
		lines = append(lines, "🤖 AUTO-QUEUED — watching entry zone")
	}

	tp1Pct := watch.TP1ClosePct(setup.ChecklistScore)
	lines = append(lines,
		"",
		fmt.Sprintf("📍 Entry: %s - %s", fmtPrice(setup.EntryMin, digits), fmtPrice(setup.EntryMax, digits)),
		fmt.Sprintf("🔴 SL: %s (%.0f pips)", fmtPrice(setup.StopLoss, digits), setup.SLPips),
		fmt.Sprintf("🎯 TP1: %s (%.0f pips) — close %.0f%%", fmtPrice(setup.TP1, digits), setup.TP1Pips, tp1Pct),
		fmt.Sprintf("🎯 TP2: %s (%.0f pips) — runner", fmtPrice(setup.TP2, digits), setup.TP2Pips),
		fmt.Sprintf("📊 R:R: 1:%.1f (TP1) | 1:%.1f (TP2)", setup.RRTP1, setup.RRTP2),
		fmt.Sprintf("%s Confidence: %s", confidenceEmoji, strings.ToUpper(setup.Confidence)),
		"",
		"Confluence:",
	)
	for _, reason := range setup.Confluence {
		lines = append(lines, "• "+reason)
	}

	if len(setup.NegativeFactors) > 0 {
		lines = append(lines, "", "Risks:")
		for _, factor := range setup.NegativeFactors {
			lines = append(lines, "⚠️ "+factor)
		}
	}
	if setup.NewsWarning != "" {
		lines = append(lines, "", "⚠️ "+setup.NewsWarning)
	}

	lines = append(lines, "", "📋 Summary: "+summary)
	return strings.Join(lines, "\n")
}

// NoSetupCard renders the analysis summary when no setup was found.
func NoSetupCard(result *domain.AnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 %s Analysis Complete\n%s\n\n❌ No valid trade setups identified.\n\n", result.Symbol, separator)
	if result.H1TrendAnalysis != "" {
		fmt.Fprintf(&b, "📈 H1 Trend: %s\n\n", result.H1TrendAnalysis)
	}
	fmt.Fprintf(&b, "📋 %s\n\n", result.MarketSummary)
	if result.PrimaryScenario != "" {
		fmt.Fprintf(&b, "📈 Primary: %s\n", result.PrimaryScenario)
	}
	if result.AlternativeScenario != "" {
		fmt.Fprintf(&b, "📉 Alternative: %s\n", result.AlternativeScenario)
	}
	if len(result.UpcomingEvents) > 0 {
		b.WriteString("\n📅 Upcoming events:\n")
		for _, evt := range result.UpcomingEvents {
			fmt.Fprintf(&b, "• %s\n", evt)
		}
	}
	return b.String()
}

// WatchStartedCard announces a new entry-zone watch.
func WatchStartedCard(w domain.WatchTrade, digits int) string {
	return fmt.Sprintf(
		"👀 %s Watch Started — %s\n%s\n🆔 Watch ID: %s\n📍 Zone: %s - %s\n🔴 SL: %s (%.0f pips)\n🎯 TP1: %s (close %.0f%%) | TP2: %s\n✅ ICT Checklist: %s\n\nThe terminal is watching the zone; an M1 check runs before entry (%d attempts max).",
		w.Symbol, strings.ToUpper(w.Bias), separator, w.ID,
		fmtPrice(w.EntryMin, digits), fmtPrice(w.EntryMax, digits),
		fmtPrice(w.StopLoss, digits), w.SLPips,
		fmtPrice(w.TP1, digits), w.TP1ClosePct, fmtPrice(w.TP2, digits),
		w.ChecklistScore, w.MaxConfirmations)
}

// ZoneReachedCard announces that price touched a watched zone.
func ZoneReachedCard(w domain.WatchTrade, attempt int) string {
	return fmt.Sprintf(
		"📡 %s Zone Reached\n%s\n🆔 Watch: %s (%s)\nRunning M1 confirmation (attempt %d/%d)...",
		w.Symbol, separator, w.ID, strings.ToUpper(w.Bias), attempt, w.MaxConfirmations)
}

// ConfirmationCard reports one M1 verdict.
func ConfirmationCard(w domain.WatchTrade, confirmed bool, reasoning string, remaining int) string {
	if confirmed {
		return fmt.Sprintf(
			"✅ %s M1 CONFIRMED\n%s\n🆔 Trade: %s\n💬 %s\n\nTrade queued — the terminal picks it up within 60s.",
			w.Symbol, separator, w.ID, reasoning)
	}
	if remaining <= 0 {
		return fmt.Sprintf(
			"❌ %s M1 REJECTED — watch cancelled\n%s\n🆔 Watch: %s\n💬 %s\n\nAll confirmation attempts used.",
			w.Symbol, separator, w.ID, reasoning)
	}
	return fmt.Sprintf(
		"❌ %s M1 rejected\n%s\n🆔 Watch: %s\n💬 %s\n\n%d attempt(s) remaining.",
		w.Symbol, separator, w.ID, reasoning, remaining)
}

// WatchExpiredCard announces a kill-zone expiry.
func WatchExpiredCard(w domain.WatchTrade) string {
	return fmt.Sprintf(
		"⏰ %s Watch Expired\n%s\n🆔 Watch: %s (%s)\nKill zone ended — no more entries today for this setup.",
		w.Symbol, separator, w.ID, strings.ToUpper(w.Bias))
}

// ExecutionCard reports the terminal's order placement.
func ExecutionCard(r domain.TradeExecutionReport, digits int) string {
	switch r.Status {
	case "pending":
		return fmt.Sprintf(
			"⏳ %s Limit Orders Placed!\n%s\n🆔 Trade ID: %s\n📍 Limit Entry: %s\n🔴 SL: %s\n🎯 TP1: %s (%.2f lots) — order #%d\n🎯 TP2: %s (%.2f lots) — order #%d\n\nWaiting for price to reach entry zone...",
			r.Symbol, separator, r.TradeID,
			fmtPrice(r.ActualEntry, digits), fmtPrice(r.ActualSL, digits),
			fmtPrice(r.ActualTP1, digits), r.LotsTP1, r.TicketTP1,
			fmtPrice(r.ActualTP2, digits), r.LotsTP2, r.TicketTP2)
	case "executed":
		return fmt.Sprintf(
			"✅ %s Trade Executed!\n%s\n🆔 Trade ID: %s\n💰 Entry: %s\n🔴 SL: %s\n🎯 TP1: %s (%.2f lots) — ticket #%d\n🎯 TP2: %s (%.2f lots) — ticket #%d",
			r.Symbol, separator, r.TradeID,
			fmtPrice(r.ActualEntry, digits), fmtPrice(r.ActualSL, digits),
			fmtPrice(r.ActualTP1, digits), r.LotsTP1, r.TicketTP1,
			fmtPrice(r.ActualTP2, digits), r.LotsTP2, r.TicketTP2)
	default:
		return fmt.Sprintf(
			"❌ %s Trade Failed!\n%s\n🆔 Trade ID: %s\n⚠️ Error: %s",
			r.Symbol, separator, r.TradeID, r.ErrorMessage)
	}
}

// CloseCard reports one closed leg.
func CloseCard(r domain.TradeCloseReport, digits int) string {
	reasonEmoji := map[string]string{
		"tp1": "🎯", "tp2": "🎯🎯", "sl": "🔴", "manual": "✋", "cancelled": "➖",
	}[r.Reason]
	if reasonEmoji == "" {
		reasonEmoji = "❓"
	}
	pnlEmoji := "🟢"
	if r.Profit < 0 {
		pnlEmoji = "🔴"
	}
	return fmt.Sprintf(
		"%s %s Position Closed — %s\n%s\n🆔 Trade: %s\n💰 Close: %s\n%s Profit: $%+.2f",
		reasonEmoji, r.Symbol, strings.ToUpper(r.Reason), separator, r.TradeID,
		fmtPrice(r.ClosePrice, digits), pnlEmoji, r.Profit)
}

// BlockedCard reports a risk-gate rejection.
func BlockedCard(symbol, rule, reason string) string {
	titles := map[string]string{
		"news":        "News Restriction",
		"drawdown":    "Daily Drawdown Limit",
		"max_open":    "Max Open Trades",
		"correlation": "Correlation Risk",
	}
	title := titles[rule]
	if title == "" {
		title = "Risk Filter"
	}
	return fmt.Sprintf("🚫 %s TRADE BLOCKED — %s\n%s\n⚠️ %s", symbol, title, separator, reason)
}

// MissedScanCard warns that the kill zone opened without a scan.
func MissedScanCard(symbol string, killZoneStart int) string {
	return fmt.Sprintf(
		"⚠️ %s Missed Scan\n%s\nKill zone opened at %02d:00 but no scan has arrived today. Check the terminal and the chart exporter.",
		symbol, separator, killZoneStart)
}

// UpcomingEventsCard lists the analysis' upcoming events.
func UpcomingEventsCard(symbol string, events []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 %s Upcoming Events:\n", symbol)
	for _, evt := range events {
		fmt.Fprintf(&b, "• %s\n", evt)
	}
	return b.String()
}
