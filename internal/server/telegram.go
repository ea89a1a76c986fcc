package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/manuham/fx-coordinator/internal/domain"
	"github.com/manuham/fx-coordinator/internal/notify"
	"github.com/manuham/fx-coordinator/internal/pairs"
)

const helpText = `Commands:
/status — coordinator state
/stats [symbol] [days] — performance report
/news — upcoming high-impact events
/drawdown — today's P&L
/scan SYMBOL — re-run analysis from the last submission
/context SYMBOL — macro market context
/dismiss SYMBOL — cancel the active watch
/reset — drop watches, hand-offs and cached analysis
/report — latest monthly report
/help — this message`

// HandleCommand backs the chat listener. Returns the reply text.
func (s *Server) HandleCommand(ctx context.Context, command string, args []string) string {
	switch command {
	case "help", "start":
		return helpText
	case "status":
		return s.statusText()
	case "stats":
		return s.statsText(args)
	case "news":
		return s.newsText(ctx)
	case "drawdown":
		pnl, err := s.store.DailyPnL()
		if err != nil {
			return "Failed to read today's P&L."
		}
		return fmt.Sprintf("💰 Today's P&L: $%+.2f", pnl)
	case "scan":
		if len(args) == 0 {
			return "Usage: /scan SYMBOL"
		}
		return s.rescanFromChat(strings.ToUpper(args[0]))
	case "dismiss":
		if len(args) == 0 {
			return "Usage: /dismiss SYMBOL"
		}
		symbol := strings.ToUpper(args[0])
		if wt, ok := s.registry.Dismiss(symbol); ok {
			return fmt.Sprintf("🗑 Watch %s on %s dismissed.", wt.ID, symbol)
		}
		return "No active watch on " + symbol + "."
	case "context":
		if len(args) == 0 {
			return "Usage: /context SYMBOL"
		}
		return s.contextText(ctx, strings.ToUpper(args[0]))
	case "reset":
		return s.resetState()
	case "backtest":
		return "Backtesting runs offline against the exported trade log; it is not available from chat."
	case "report":
		return s.reportText()
	default:
		return "Unknown command. Try /help."
	}
}

func (s *Server) statusText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "🟢 Coordinator up %s\n", time.Since(s.startedAt).Round(time.Minute))

	open, err := s.store.OpenTrades()
	if err == nil {
		fmt.Fprintf(&b, "Open trades: %d\n", len(open))
		for _, t := range open {
			fmt.Fprintf(&b, "• %s %s (%s)\n", t.Symbol, t.Bias, t.Status)
		}
	}

	watches := s.registry.Active()
	fmt.Fprintf(&b, "Active watches: %d\n", len(watches))
	for _, wt := range watches {
		fmt.Fprintf(&b, "• %s %s %s (%d/%d attempts)\n",
			wt.Symbol, wt.Bias, wt.ID, wt.ConfirmationsUsed, wt.MaxConfirmations)
	}

	if pending := s.queue.Snapshot(); len(pending) > 0 {
		b.WriteString("Pending hand-offs:\n")
		for symbol, st := range pending {
			fmt.Fprintf(&b, "• %s (%ds left)\n", symbol, st.TTLRemaining)
		}
	}
	return b.String()
}

func (s *Server) statsText(args []string) string {
	symbol := ""
	days := 30
	if len(args) > 0 {
		symbol = strings.ToUpper(args[0])
	}
	if len(args) > 1 {
		if d, err := strconv.Atoi(args[1]); err == nil && d > 0 {
			days = d
		}
	}

	stats, err := s.store.Stats(symbol, days)
	if err != nil {
		return "Failed to build stats."
	}
	if stats.ClosedTrades == 0 {
		return fmt.Sprintf("No closed trades for %s in the last %d days.", stats.Symbol, days)
	}
	return fmt.Sprintf(
		"📊 %s, last %d days\n%s\nClosed: %d (%dW / %dL) — %.0f%% win rate\nNet: %+.0f pips ($%+.2f)\nAvg win %+.0fp | avg loss %+.0fp",
		stats.Symbol, days, strings.Repeat("━", 20),
		stats.ClosedTrades, stats.Wins, stats.Losses, stats.WinRate,
		stats.TotalPnLPips, stats.TotalPnLMoney, stats.AvgWinPips, stats.AvgLossPips)
}

func (s *Server) newsText(ctx context.Context) string {
	if s.calendar == nil {
		return "News calendar is not configured."
	}

	currencySet := map[string]bool{}
	for _, symbol := range s.cfg.ActivePairs {
		p := pairs.Get(symbol)
		currencySet[p.BaseCurrency] = true
		currencySet[p.QuoteCurrency] = true
	}
	currencies := make([]string, 0, len(currencySet))
	for c := range currencySet {
		currencies = append(currencies, c)
	}

	events := s.calendar.Upcoming(ctx, currencies, 48, time.Now())
	if len(events) == 0 {
		return "No high-impact events in the next 48 hours."
	}

	var b strings.Builder
	b.WriteString("📅 High-impact events, next 48h:\n")
	for _, e := range events {
		fmt.Fprintf(&b, "• %s %s — %s\n", e.Currency, e.Title,
			e.Time.In(domain.TradingZone).Format("Mon 15:04"))
	}
	return b.String()
}

func (s *Server) contextText(ctx context.Context, symbol string) string {
	if s.macroSvc == nil {
		return "Market context is not configured."
	}
	return s.macroSvc.Summary(ctx, symbol, pairs.Get(symbol))
}

// resetState drops all live session state: active watches, queued
// hand-offs and the cached analysis results. The trade log is untouched.
func (s *Server) resetState() string {
	dismissed := 0
	for _, wt := range s.registry.Active() {
		if _, ok := s.registry.Dismiss(wt.Symbol); ok {
			dismissed++
		}
	}
	cleared := 0
	for symbol := range s.queue.Snapshot() {
		s.queue.Clear(symbol)
		cleared++
	}

	s.mu.Lock()
	s.lastResult = make(map[string]*domain.AnalysisResult)
	s.lastRejected = make(map[string]domain.WatchTrade)
	s.mu.Unlock()

	return fmt.Sprintf("🔄 Reset: %d watch(es) dismissed, %d hand-off(s) cleared.", dismissed, cleared)
}

func (s *Server) rescanFromChat(symbol string) string {
	bundle, ok, err := s.archive.LoadSnapshot(symbol)
	if err != nil || !ok {
		return "No archived submission for " + symbol + " yet."
	}
	go s.runAnalysis(bundle)
	return "🔍 Re-running analysis for " + symbol + "..."
}

func (s *Server) reportText() string {
	now := time.Now().In(domain.TradingZone)
	prev := now.AddDate(0, -1, 0)
	if _, ok, err := s.reports.Load(prev.Year(), int(prev.Month())); err == nil && ok {
		return fmt.Sprintf("🗓 Latest report: /public/report/%d/%d", prev.Year(), int(prev.Month()))
	}
	return "No monthly report generated yet."
}

// HandleCallback backs the inline buttons: execute/skip on setup
// cards, force past a risk block, dismiss a watch.
func (s *Server) HandleCallback(ctx context.Context, action, symbol, arg string) string {
	symbol = strings.ToUpper(symbol)
	switch action {
	case "execute", "force":
		if index, err := strconv.Atoi(arg); err == nil {
			return s.startWatchFromSetup(ctx, symbol, index, action == "force")
		}
		if action == "force" {
			// Non-numeric arg is a watch id: force a rejected confirmation
			// straight onto the hand-off queue.
			return s.forceRejectedTrade(symbol, arg)
		}
		return "Malformed setup reference."
	case "skip":
		return "➖ Skipped " + symbol + " setup."
	case "dismiss":
		if wt, ok := s.registry.Dismiss(symbol); ok && (arg == "" || arg == wt.ID) {
			return fmt.Sprintf("🗑 Watch %s on %s dismissed.", wt.ID, symbol)
		}
		s.mu.Lock()
		if wt, ok := s.lastRejected[symbol]; ok && wt.ID == arg {
			delete(s.lastRejected, symbol)
			s.mu.Unlock()
			return "➖ Dismissed " + symbol + "."
		}
		s.mu.Unlock()
		return "No active watch on " + symbol + "."
	default:
		return ""
	}
}

// forceRejectedTrade overrides an M1 rejection: the operator takes the
// trade anyway and it goes straight to the terminal, risk gate and all
// further confirmation skipped.
func (s *Server) forceRejectedTrade(symbol, watchID string) string {
	s.mu.Lock()
	wt, ok := s.lastRejected[symbol]
	if ok && wt.ID == watchID {
		delete(s.lastRejected, symbol)
	}
	s.mu.Unlock()
	if !ok || wt.ID != watchID {
		return "That trade is no longer available — run a fresh scan."
	}

	s.publishTrade(wt)
	s.log.Warn().Str("symbol", symbol).Str("watch_id", wt.ID).Msg("Rejected trade force-queued from chat")
	return fmt.Sprintf("⚠️ Forced. %s %s handed to the terminal for the next 60s.", symbol, wt.Bias)
}

func (s *Server) startWatchFromSetup(ctx context.Context, symbol string, index int, force bool) string {
	s.mu.Lock()
	result := s.lastResult[symbol]
	s.mu.Unlock()

	if result == nil || index < 0 || index >= len(result.Setups) {
		return "That setup is no longer available — run a fresh scan."
	}
	setup := result.Setups[index]

	if !force {
		verdict := s.gate.Check(ctx, symbol, setup.Bias, s.balanceFor(symbol))
		if !verdict.Allowed {
			return notify.BlockedCard(symbol, verdict.Rule, verdict.Reason)
		}
	}

	wt := s.registry.Create(symbol, setup)
	s.log.Info().Str("symbol", symbol).Str("watch_id", wt.ID).Bool("forced", force).Msg("Watch started from chat")
	return notify.WatchStartedCard(wt, pairs.Get(symbol).Digits)
}
