package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/manuham/fx-coordinator/internal/analysis"
	"github.com/manuham/fx-coordinator/internal/domain"
	"github.com/manuham/fx-coordinator/internal/feed"
	"github.com/manuham/fx-coordinator/internal/notify"
	"github.com/manuham/fx-coordinator/internal/pairs"
	"github.com/manuham/fx-coordinator/internal/store"
	"github.com/manuham/fx-coordinator/internal/watch"
	"github.com/manuham/fx-coordinator/pkg/formulas"
)

const analysisTimeout = 10 * time.Minute

func localDate() string {
	return time.Now().In(domain.TradingZone).Format("2006-01-02")
}

func parseChecklist(score string) int {
	n, _ := strconv.Atoi(strings.SplitN(score, "/", 2)[0])
	return n
}

// handleHealth reports liveness plus a small operational snapshot.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	watching := make([]string, 0)
	for _, wt := range s.registry.Active() {
		watching = append(watching, wt.Symbol)
	}

	cpuPct := 0.0
	if pcts, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pcts) > 0 {
		cpuPct = pcts[0]
	}
	memPct := 0.0
	if vm, err := mem.VirtualMemory(); err == nil {
		memPct = vm.UsedPercent
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"active_pairs":   s.cfg.ActivePairs,
		"watching":       watching,
		"pending_trades": s.queue.Snapshot(),
		"system": map[string]float64{
			"cpu_percent": cpuPct,
			"mem_percent": memPct,
		},
	})
}

// handleAnalyze accepts the terminal's multipart submission (four
// chart screenshots plus the market snapshot) and kicks off the
// pipeline in the background.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	var market domain.MarketData
	if err := json.Unmarshal([]byte(r.FormValue("market_data")), &market); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid market_data JSON")
		return
	}
	if market.Symbol == "" {
		s.writeError(w, http.StatusBadRequest, "market_data.symbol is required")
		return
	}
	symbol := strings.ToUpper(market.Symbol)
	// Terminals that export raw candles get their indicators computed
	// here instead.
	formulas.EnrichMarketData(&market)

	screenshots := make(map[string][]byte)
	for _, tf := range []string{"d1", "h4", "h1", "m5"} {
		data, ok := s.formFile(r, "screenshot_"+tf)
		if ok {
			screenshots[tf] = data
		}
	}
	// The screener tier runs on H1+M5; without those there is nothing
	// to analyze.
	if len(screenshots["h1"]) == 0 || len(screenshots["m5"]) == 0 {
		s.writeError(w, http.StatusBadRequest, "screenshot_h1 and screenshot_m5 are required")
		return
	}

	bundle := &domain.Bundle{
		Symbol:      symbol,
		Screenshots: screenshots,
		Market:      market,
		ReceivedAt:  time.Now(),
	}

	if err := s.archive.SaveBundle(bundle); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to archive bundle")
	}

	s.mu.Lock()
	s.lastBalance[symbol] = market.AccountBalance
	s.lastSession[symbol] = market.Session
	s.mu.Unlock()

	go s.runAnalysis(bundle)

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "processing", "symbol": symbol})
}

func (s *Server) formFile(r *http.Request, field string) ([]byte, bool) {
	f, _, err := r.FormFile(field)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

// runAnalysis drives the pipeline for one submission and pushes the
// outcome to the operator chat.
func (s *Server) runAnalysis(bundle *domain.Bundle) {
	ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
	defer cancel()

	symbol := bundle.Symbol
	result := s.engine.Analyze(ctx, bundle)

	s.mu.Lock()
	s.lastResult[symbol] = result
	s.mu.Unlock()

	if err := s.store.RecordScanCompleted(symbol, time.Now(), localDate()); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to record scan")
	}

	if len(result.Setups) == 0 {
		s.notifier.Send(notify.NoSetupCard(result))
		return
	}

	digits := pairs.Get(symbol).Digits
	for i, setup := range result.Setups {
		if parseChecklist(setup.ChecklistScore) >= s.cfg.AutoQueueMinChecklist {
			s.autoQueueSetup(ctx, symbol, i, setup, result.MarketSummary, digits)
			continue
		}
		s.notifier.SendWithButtons(
			notify.SetupCard(setup, result.MarketSummary, symbol, digits, false),
			[][]notify.Button{{
				{Text: "✅ Execute", CallbackData: fmt.Sprintf("execute_%s_%d", symbol, i)},
				{Text: "❌ Skip", CallbackData: fmt.Sprintf("skip_%s_%d", symbol, i)},
			}})
	}
}

func (s *Server) autoQueueSetup(ctx context.Context, symbol string, index int, setup domain.TradeSetup, summary string, digits int) {
	verdict := s.gate.Check(ctx, symbol, setup.Bias, s.balanceFor(symbol))
	if !verdict.Allowed {
		s.notifier.Send(notify.SetupCard(setup, summary, symbol, digits, false))
		s.notifier.SendWithButtons(
			notify.BlockedCard(symbol, verdict.Rule, verdict.Reason),
			[][]notify.Button{{
				{Text: "⚠️ Force", CallbackData: fmt.Sprintf("force_%s_%d", symbol, index)},
			}})
		return
	}

	wt := s.registry.Create(symbol, setup)
	s.notifier.Send(notify.SetupCard(setup, summary, symbol, digits, true))
	s.notifier.SendWithButtons(
		notify.WatchStartedCard(wt, digits),
		[][]notify.Button{{
			{Text: "🗑 Dismiss", CallbackData: fmt.Sprintf("dismiss_%s_%s", symbol, wt.ID)},
		}})
}

func (s *Server) balanceFor(symbol string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBalance[symbol]
}

// handleScan replays the latest archived bundle for a symbol through
// the pipeline, typically after a restart or a chat /scan command.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if symbol == "" {
		symbol = strings.ToUpper(r.FormValue("symbol"))
	}
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	bundle, ok, err := s.archive.LoadSnapshot(symbol)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "no archived submission for "+symbol)
		return
	}

	go s.runAnalysis(bundle)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "processing", "symbol": symbol})
}

// handleStats serves the aggregate performance report.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	days := 30
	if d, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && d > 0 {
		days = d
	}

	stats, err := s.store.Stats(symbol, days)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to build stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handlePendingTrade is the terminal's hand-off poll. The queued entry
// is served to every poll inside its TTL.
func (s *Server) handlePendingTrade(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	trade, remaining, ok := s.queue.Get(symbol)
	if !ok {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"pending": nil})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending":       trade,
		"ttl_remaining": remaining,
	})
}

// handleWatchTrade reports whether the terminal should keep watching a
// zone for a symbol.
func (s *Server) handleWatchTrade(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	wt, ok := s.registry.Get(symbol)
	if !ok {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"watching": false})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"watching": true, "watch": wt})
}

// handleConfirmEntry runs the M1 gate when price reaches a watched
// zone. A transport failure does not consume a confirmation attempt.
func (s *Server) handleConfirmEntry(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	symbol := strings.ToUpper(r.FormValue("symbol"))
	watchID := r.FormValue("watch_id")
	if watchID == "" {
		// Older terminals send the id under the name it will carry once
		// queued.
		watchID = r.FormValue("trade_id")
	}
	if symbol == "" || watchID == "" {
		s.writeError(w, http.StatusBadRequest, "symbol and watch_id are required")
		return
	}
	currentPrice, _ := strconv.ParseFloat(r.FormValue("current_price"), 64)
	if balance, err := strconv.ParseFloat(r.FormValue("account_balance"), 64); err == nil && balance > 0 {
		s.mu.Lock()
		s.lastBalance[symbol] = balance
		s.mu.Unlock()
	}

	m1, ok := s.formFile(r, "screenshot_m1")
	if !ok {
		s.writeError(w, http.StatusBadRequest, "screenshot_m1 is required")
		return
	}

	wt, err := s.registry.CheckActive(symbol, watchID)
	switch err {
	case nil:
	case watch.ErrExhausted:
		s.writeError(w, http.StatusConflict, "watch has no confirmation attempts left")
		return
	default:
		s.writeError(w, http.StatusNotFound, "no active watch for this symbol and id")
		return
	}

	s.notifier.Send(notify.ZoneReachedCard(wt, wt.ConfirmationsUsed+1))

	verdict, err := s.engine.ConfirmEntry(r.Context(), analysis.ConfirmRequest{
		Symbol:       symbol,
		Bias:         wt.Bias,
		CurrentPrice: currentPrice,
		EntryMin:     wt.EntryMin,
		EntryMax:     wt.EntryMax,
		Confluence:   wt.Confluence,
		ScreenshotM1: m1,
	})
	if err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("Confirmation call failed")
		s.writeError(w, http.StatusInternalServerError, "confirmation failed, attempt not consumed")
		return
	}

	resolved, outcome, err := s.registry.ResolveAttempt(symbol, watchID, verdict.Confirmed)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "watch disappeared during confirmation")
		return
	}

	switch outcome {
	case watch.Confirmed:
		s.queueConfirmedTrade(r.Context(), w, resolved, verdict.Reasoning)
	case watch.Rejected:
		s.mu.Lock()
		s.lastRejected[symbol] = resolved
		s.mu.Unlock()
		s.notifier.SendWithButtons(
			notify.ConfirmationCard(resolved, false, verdict.Reasoning, 0),
			[][]notify.Button{{
				{Text: "⚠️ Force Execute", CallbackData: fmt.Sprintf("force_%s_%s", symbol, resolved.ID)},
				{Text: "🗑 Dismiss", CallbackData: fmt.Sprintf("dismiss_%s_%s", symbol, resolved.ID)},
			}})
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"confirmed": false, "reason": verdict.Reasoning, "attempts_remaining": 0, "watch_cancelled": true,
		})
	default:
		remaining := resolved.MaxConfirmations - resolved.ConfirmationsUsed
		s.notifier.Send(notify.ConfirmationCard(resolved, false, verdict.Reasoning, remaining))
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"confirmed": false, "reason": verdict.Reasoning, "attempts_remaining": remaining,
		})
	}
}

// queueConfirmedTrade runs the risk gate last and publishes the
// hand-off when it passes.
func (s *Server) queueConfirmedTrade(ctx context.Context, w http.ResponseWriter, wt domain.WatchTrade, reasoning string) {
	verdict := s.gate.Check(ctx, wt.Symbol, wt.Bias, s.balanceFor(wt.Symbol))
	if !verdict.Allowed {
		s.notifier.Send(notify.BlockedCard(wt.Symbol, verdict.Rule, verdict.Reason))
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"confirmed": false, "reason": "risk filter: " + verdict.Reason, "watch_cancelled": true,
		})
		return
	}

	pending := s.publishTrade(wt)
	s.notifier.Send(notify.ConfirmationCard(wt, true, reasoning, 0))
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"confirmed": true, "trade": pending})
}

// publishTrade broadcasts the hand-off and logs the queued trade row.
func (s *Server) publishTrade(wt domain.WatchTrade) domain.PendingTrade {
	pending := domain.PendingTrade{
		ID:          wt.ID,
		Symbol:      wt.Symbol,
		Bias:        wt.Bias,
		EntryMin:    wt.EntryMin,
		EntryMax:    wt.EntryMax,
		StopLoss:    wt.StopLoss,
		TP1:         wt.TP1,
		TP2:         wt.TP2,
		SLPips:      wt.SLPips,
		Confidence:  wt.Confidence,
		TP1ClosePct: wt.TP1ClosePct,
	}
	s.queue.Publish(pending)

	s.mu.Lock()
	session := s.lastSession[wt.Symbol]
	s.mu.Unlock()

	if err := s.store.LogTradeQueued(&store.TradeRecord{
		ID:             wt.ID,
		Symbol:         wt.Symbol,
		Bias:           wt.Bias,
		Confidence:     wt.Confidence,
		Session:        session,
		EntryMin:       wt.EntryMin,
		EntryMax:       wt.EntryMax,
		StopLoss:       wt.StopLoss,
		TP1:            wt.TP1,
		TP2:            wt.TP2,
		SLPips:         wt.SLPips,
		ChecklistScore: wt.ChecklistScore,
		TP1ClosePct:    wt.TP1ClosePct,
	}); err != nil {
		s.log.Error().Err(err).Str("trade_id", wt.ID).Msg("Failed to log queued trade")
	}
	return pending
}

// handleTradeExecuted records the terminal's order placement report.
func (s *Server) handleTradeExecuted(w http.ResponseWriter, r *http.Request) {
	var rep domain.TradeExecutionReport
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid execution report")
		return
	}
	if rep.TradeID == "" {
		s.writeError(w, http.StatusBadRequest, "trade_id is required")
		return
	}

	if err := s.store.LogTradeExecuted(rep.TradeID, rep.Status,
		rep.ActualEntry, rep.TicketTP1, rep.TicketTP2, rep.LotsTP1, rep.LotsTP2); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to record execution")
		return
	}

	s.queue.Clear(rep.Symbol)
	s.notifier.Send(notify.ExecutionCard(rep, pairs.Get(rep.Symbol).Digits))
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTradeClosed records one closed leg and, once the trade is
// fully resolved, kicks off the post-trade review.
func (s *Server) handleTradeClosed(w http.ResponseWriter, r *http.Request) {
	var rep domain.TradeCloseReport
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid close report")
		return
	}
	if rep.TradeID == "" {
		s.writeError(w, http.StatusBadRequest, "trade_id is required")
		return
	}

	if err := s.store.LogTradeClosed(rep.TradeID, rep.Ticket, rep.ClosePrice, rep.Reason, rep.Profit); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to record close")
		return
	}

	s.notifier.Send(notify.CloseCard(rep, pairs.Get(rep.Symbol).Digits))

	if t, err := s.store.GetTrade(rep.TradeID); err == nil && t != nil &&
		t.Status == store.StatusClosed && t.Outcome != store.OutcomeCancelled {
		go s.reviewClosedTrade(t)
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) reviewClosedTrade(t *store.TradeRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	review, err := s.engine.ReviewTrade(ctx, t)
	if err != nil {
		s.log.Warn().Err(err).Str("trade_id", t.ID).Msg("Post-trade review failed")
		return
	}
	if review != "" {
		s.notifier.Send(fmt.Sprintf("📝 %s trade review\n%s\n%s", t.Symbol, strings.Repeat("━", 20), review))
	}
}

// handlePublicTrades serves the redacted trade feed.
func (s *Server) handlePublicTrades(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.PublicFeedEnabled {
		s.writeError(w, http.StatusNotFound, "public feed disabled")
		return
	}
	limit := 50
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 200 {
		limit = n
	}
	trades, err := feed.Trades(s.store, limit, strings.ToUpper(r.URL.Query().Get("symbol")))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load trades")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

// handlePublicStats serves the redacted aggregate view.
func (s *Server) handlePublicStats(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.PublicFeedEnabled {
		s.writeError(w, http.StatusNotFound, "public feed disabled")
		return
	}
	days := 30
	if d, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && d > 0 {
		days = d
	}
	stats, err := feed.Stats(s.store, days)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to build stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handlePublicReport serves a persisted monthly report.
func (s *Server) handlePublicReport(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.PublicFeedEnabled {
		s.writeError(w, http.StatusNotFound, "public feed disabled")
		return
	}
	year, err1 := strconv.Atoi(chi.URLParam(r, "year"))
	month, err2 := strconv.Atoi(chi.URLParam(r, "month"))
	if err1 != nil || err2 != nil || month < 1 || month > 12 {
		s.writeError(w, http.StatusBadRequest, "invalid year or month")
		return
	}

	data, ok, err := s.reports.Load(year, month)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "no report for that month")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
