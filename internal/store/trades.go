package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/manuham/fx-coordinator/internal/database"
)

// Trade status values.
const (
	StatusQueued   = "queued"
	StatusPending  = "pending"
	StatusExecuted = "executed"
	StatusClosed   = "closed"
	StatusFailed   = "failed"
)

// Trade outcome values.
const (
	OutcomeOpen       = "open"
	OutcomeFullWin    = "full_win"
	OutcomePartialWin = "partial_win"
	OutcomeLoss       = "loss"
	OutcomeBreakeven  = "breakeven"
	OutcomeCancelled  = "cancelled"
	OutcomeFailed     = "failed"
)

// TradeRecord is the durable log row for one trade, from queueing
// through execution to close. The analysis context columns travel with
// it so outcomes can later be regressed against setup features.
type TradeRecord struct {
	ID         string
	Symbol     string
	Bias       string
	Confidence string
	Session    string

	EntryMin float64
	EntryMax float64
	StopLoss float64
	TP1      float64
	TP2      float64
	SLPips   float64
	TP1Pips  float64
	TP2Pips  float64
	RRTP1    float64
	RRTP2    float64

	Status      string
	ActualEntry float64
	TicketTP1   int64
	TicketTP2   int64
	LotsTP1     float64
	LotsTP2     float64

	TP1Hit        bool
	TP2Hit        bool
	SLHit         bool
	ClosePriceTP1 float64
	ClosePriceTP2 float64
	PnLPips       float64
	PnLMoney      float64
	Outcome       string

	CreatedAt  string
	ExecutedAt string
	ClosedAt   string

	H1Trend       string
	CounterTrend  bool
	MarketSummary string

	D1Trend           string
	H4Trend           string
	TrendAlignment    string
	PriceZone         string
	EntryStatus       string
	EntryDistancePips float64
	NegativeFactors   string // newline-joined
	ChecklistScore    string
	TP1ClosePct       float64
	RawResponse       string
}

const tradeColumns = `id, symbol, bias, confidence, session,
	entry_min, entry_max, stop_loss, tp1, tp2,
	sl_pips, tp1_pips, tp2_pips, rr_tp1, rr_tp2,
	status, actual_entry, ticket_tp1, ticket_tp2, lots_tp1, lots_tp2,
	tp1_hit, tp2_hit, sl_hit, close_price_tp1, close_price_tp2,
	pnl_pips, pnl_money, outcome,
	COALESCE(created_at, ''), COALESCE(executed_at, ''), COALESCE(closed_at, ''),
	h1_trend, counter_trend, market_summary,
	d1_trend, h4_trend, trend_alignment, price_zone, entry_status,
	entry_distance_pips, negative_factors, checklist_score, tp1_close_pct, raw_response`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (*TradeRecord, error) {
	var t TradeRecord
	var tp1Hit, tp2Hit, slHit, counterTrend int
	err := row.Scan(
		&t.ID, &t.Symbol, &t.Bias, &t.Confidence, &t.Session,
		&t.EntryMin, &t.EntryMax, &t.StopLoss, &t.TP1, &t.TP2,
		&t.SLPips, &t.TP1Pips, &t.TP2Pips, &t.RRTP1, &t.RRTP2,
		&t.Status, &t.ActualEntry, &t.TicketTP1, &t.TicketTP2, &t.LotsTP1, &t.LotsTP2,
		&tp1Hit, &tp2Hit, &slHit, &t.ClosePriceTP1, &t.ClosePriceTP2,
		&t.PnLPips, &t.PnLMoney, &t.Outcome,
		&t.CreatedAt, &t.ExecutedAt, &t.ClosedAt,
		&t.H1Trend, &counterTrend, &t.MarketSummary,
		&t.D1Trend, &t.H4Trend, &t.TrendAlignment, &t.PriceZone, &t.EntryStatus,
		&t.EntryDistancePips, &t.NegativeFactors, &t.ChecklistScore, &t.TP1ClosePct, &t.RawResponse,
	)
	if err != nil {
		return nil, err
	}
	t.TP1Hit = tp1Hit != 0
	t.TP2Hit = tp2Hit != 0
	t.SLHit = slHit != 0
	t.CounterTrend = counterTrend != 0
	return &t, nil
}

// LogTradeQueued inserts a trade in queued status. Idempotent on id:
// re-queueing the same id replaces the planned levels without touching
// lifecycle columns of a fresh row.
func (s *Store) LogTradeQueued(t *TradeRecord) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.exec(
		`INSERT OR REPLACE INTO trades
		(id, symbol, bias, confidence, session,
		 entry_min, entry_max, stop_loss, tp1, tp2,
		 sl_pips, tp1_pips, tp2_pips, rr_tp1, rr_tp2,
		 status, created_at, h1_trend, counter_trend, market_summary,
		 d1_trend, h4_trend, trend_alignment, price_zone, entry_status,
		 entry_distance_pips, negative_factors, checklist_score, tp1_close_pct, raw_response)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'queued', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, t.Bias, t.Confidence, t.Session,
		t.EntryMin, t.EntryMax, t.StopLoss, t.TP1, t.TP2,
		t.SLPips, t.TP1Pips, t.TP2Pips, t.RRTP1, t.RRTP2,
		now, t.H1Trend, boolToInt(t.CounterTrend), t.MarketSummary,
		t.D1Trend, t.H4Trend, t.TrendAlignment, t.PriceZone, t.EntryStatus,
		t.EntryDistancePips, t.NegativeFactors, t.ChecklistScore, t.TP1ClosePct, t.RawResponse,
	)
	if err != nil {
		return fmt.Errorf("failed to log queued trade %s: %w", t.ID, err)
	}
	s.log.Info().Str("symbol", t.Symbol).Str("trade_id", t.ID).Msg("Trade logged as queued")
	return nil
}

// LogTradeExecuted advances a trade when the terminal confirms
// execution. Status "pending" means a limit order was acknowledged but
// not yet filled. Replaying the same report is a same-status update and
// produces no P&L delta.
func (s *Store) LogTradeExecuted(tradeID, status string, actualEntry float64, ticketTP1, ticketTP2 int64, lotsTP1, lotsTP2 float64) error {
	now := time.Now().UTC().Format(time.RFC3339)

	// Anything the terminal reports outside the known lifecycle values
	// lands as failed rather than inventing a new status.
	dbStatus := status
	switch status {
	case StatusExecuted, StatusPending, StatusFailed:
	default:
		s.log.Warn().Str("trade_id", tradeID).Str("status", status).Msg("Unknown execution status, recording as failed")
		dbStatus = StatusFailed
	}

	outcome := OutcomeOpen
	if dbStatus == StatusFailed {
		outcome = OutcomeFailed
	}

	_, err := s.exec(
		`UPDATE trades SET
			status = ?, outcome = ?, actual_entry = ?,
			ticket_tp1 = ?, ticket_tp2 = ?,
			lots_tp1 = ?, lots_tp2 = ?,
			executed_at = ?
		WHERE id = ?`,
		dbStatus, outcome, actualEntry,
		ticketTP1, ticketTP2, lotsTP1, lotsTP2,
		now, tradeID,
	)
	if err != nil {
		return fmt.Errorf("failed to update trade %s to %s: %w", tradeID, dbStatus, err)
	}
	s.log.Info().Str("trade_id", tradeID).Str("status", dbStatus).Msg("Trade execution recorded")
	return nil
}

// LogTradeClosed applies one close report to a trade.
//
// Monetary P&L accumulates on every report, including reports that
// arrive after the record is already resolved (a late manual close adds
// money but never re-derives pips or outcome). Pip P&L is derived
// exactly once, at the report that resolves the record:
//
//	SL only            -> -sl_pips, loss
//	TP1 and TP2        -> tp1_pips + tp2_pips, full_win
//	TP1 then SL runner -> tp1_pips (runner stopped at break-even), partial_win
//	cancelled          -> 0, cancelled
//
// Both legs of one position can report in the same tick, so the
// read-modify-write runs inside a single transaction, serialised per
// store.
func (s *Store) LogTradeClosed(tradeID string, ticket int64, closePrice float64, reason string, profit float64) error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE id = ?`, tradeID)
		t, err := scanTrade(row)
		if err == sql.ErrNoRows {
			s.log.Warn().Str("trade_id", tradeID).Msg("Trade not found for close update")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load trade %s for close: %w", tradeID, err)
		}

		t.PnLMoney += profit

		switch reason {
		case "tp1":
			t.TP1Hit = true
			t.ClosePriceTP1 = closePrice
		case "tp2":
			t.TP2Hit = true
			t.ClosePriceTP2 = closePrice
		case "sl":
			t.SLHit = true
		}

		resolved := t.SLHit || (t.TP1Hit && t.TP2Hit) || reason == "cancelled"

		alreadyResolved := t.Outcome != OutcomeOpen && t.Status == StatusClosed
		if resolved && !alreadyResolved {
			switch {
			case t.SLHit && !t.TP1Hit && !t.TP2Hit:
				t.PnLPips = -t.SLPips
				t.Outcome = OutcomeLoss
			case t.TP1Hit && t.TP2Hit:
				t.PnLPips = t.TP1Pips + t.TP2Pips
				t.Outcome = OutcomeFullWin
			case t.TP1Hit && t.SLHit:
				// Runner is moved to break-even after TP1 by contract, so the
				// stop on the second leg costs nothing.
				t.PnLPips = t.TP1Pips
				t.Outcome = OutcomePartialWin
			case reason == "cancelled":
				t.PnLPips = 0
				t.Outcome = OutcomeCancelled
			default:
				// SL plus TP2 without TP1: the runner paid, the first leg stopped.
				t.PnLPips = t.TP2Pips - t.SLPips
				t.Outcome = OutcomePartialWin
			}
			t.ClosedAt = time.Now().UTC().Format(time.RFC3339)
			t.Status = StatusClosed
		}

		_, err = tx.Exec(
			`UPDATE trades SET
				tp1_hit = ?, tp2_hit = ?, sl_hit = ?,
				close_price_tp1 = ?, close_price_tp2 = ?,
				pnl_pips = ?, pnl_money = ?, outcome = ?,
				status = ?, closed_at = ?
			WHERE id = ?`,
			boolToInt(t.TP1Hit), boolToInt(t.TP2Hit), boolToInt(t.SLHit),
			t.ClosePriceTP1, t.ClosePriceTP2,
			t.PnLPips, t.PnLMoney, t.Outcome,
			t.Status, nullIfEmpty(t.ClosedAt), tradeID,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to apply close to trade %s: %w", tradeID, err)
	}
	s.log.Info().Str("trade_id", tradeID).Str("reason", reason).Float64("profit", profit).Msg("Trade close recorded")
	return nil
}

// GetTrade returns one trade by id, or nil when absent.
func (s *Store) GetTrade(id string) (*TradeRecord, error) {
	row := s.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade %s: %w", id, err)
	}
	return t, nil
}

// RecentTrades returns trades ordered newest first, optionally filtered
// by symbol.
func (s *Store) RecentTrades(limit int, symbol string) ([]*TradeRecord, error) {
	var rows *sql.Rows
	var err error
	if symbol != "" {
		rows, err = s.db.Query(
			`SELECT `+tradeColumns+` FROM trades WHERE symbol = ? ORDER BY created_at DESC LIMIT ?`,
			symbol, limit)
	} else {
		rows, err = s.db.Query(
			`SELECT `+tradeColumns+` FROM trades ORDER BY created_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query recent trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// OpenTrades returns all rows still awaiting resolution.
func (s *Store) OpenTrades() ([]*TradeRecord, error) {
	rows, err := s.db.Query(
		`SELECT ` + tradeColumns + ` FROM trades WHERE outcome = 'open' AND status IN ('executed', 'pending')`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// RecentClosedForPair returns the last n resolved trades for one
// symbol, newest first. Feeds the performance-feedback builder.
func (s *Store) RecentClosedForPair(symbol string, n int) ([]*TradeRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+tradeColumns+` FROM trades
		 WHERE symbol = ? AND status = 'closed' AND outcome != 'cancelled'
		 ORDER BY closed_at DESC LIMIT ?`,
		symbol, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed trades for %s: %w", symbol, err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// DailyPnL sums the monetary P&L of all trades closed today (UTC).
func (s *Store) DailyPnL() (float64, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour).Format(time.RFC3339)
	var pnl float64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(pnl_money), 0) FROM trades WHERE closed_at >= ?`,
		midnight).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("failed to sum daily pnl: %w", err)
	}
	return pnl, nil
}

// CleanupStaleOpenTrades force-closes open records older than maxAge.
// The terminal stopped reporting on these; accumulated money is kept,
// pips stay at zero. Returns the number of rows swept.
func (s *Store) CleanupStaleOpenTrades(maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339)
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.exec(
		`UPDATE trades SET status = 'closed', outcome = 'cancelled', closed_at = ?
		 WHERE outcome = 'open' AND created_at < ?`,
		now, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale trades: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Warn().Int64("count", n).Msg("Force-closed stale open trades")
	}
	return int(n), nil
}

func collectTrades(rows *sql.Rows) ([]*TradeRecord, error) {
	var out []*TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
