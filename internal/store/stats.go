package store

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// PairStats is the per-symbol slice of an aggregate report.
type PairStats struct {
	Total    int     `json:"total"`
	Closed   int     `json:"closed"`
	Wins     int     `json:"wins"`
	WinRate  float64 `json:"win_rate"`
	PnLPips  float64 `json:"pnl_pips"`
	PnLMoney float64 `json:"pnl_money"`
}

// BucketStats is a win-rate bucket (per confidence tier, session, ...).
type BucketStats struct {
	Total   int     `json:"total"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"win_rate"`
}

// Stats is the aggregate performance report over a trailing window.
type Stats struct {
	PeriodDays      int                    `json:"period_days"`
	Symbol          string                 `json:"symbol"`
	TotalTrades     int                    `json:"total_trades"`
	OpenTrades      int                    `json:"open_trades"`
	ClosedTrades    int                    `json:"closed_trades"`
	FailedTrades    int                    `json:"failed_trades"`
	CancelledTrades int                    `json:"cancelled_trades"`
	Wins            int                    `json:"wins"`
	FullWins        int                    `json:"full_wins"`
	PartialWins     int                    `json:"partial_wins"`
	Losses          int                    `json:"losses"`
	WinRate         float64                `json:"win_rate"`
	TotalPnLPips    float64                `json:"total_pnl_pips"`
	TotalPnLMoney   float64                `json:"total_pnl_money"`
	AvgWinPips      float64                `json:"avg_win_pips"`
	AvgLossPips     float64                `json:"avg_loss_pips"`
	PairStats       map[string]PairStats   `json:"pair_stats"`
	ConfidenceStats map[string]BucketStats `json:"confidence_stats"`
	SessionStats    map[string]BucketStats `json:"session_stats"`
}

func isWin(outcome string) bool {
	return outcome == OutcomeFullWin || outcome == OutcomePartialWin
}

// Stats aggregates performance over the trailing window, optionally for
// one symbol.
func (s *Store) Stats(symbol string, days int) (*Stats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)

	query := `SELECT ` + tradeColumns + ` FROM trades WHERE created_at >= ?`
	args := []interface{}{cutoff}
	if symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for stats: %w", err)
	}
	defer rows.Close()

	trades, err := collectTrades(rows)
	if err != nil {
		return nil, err
	}

	out := &Stats{
		PeriodDays:      days,
		Symbol:          symbol,
		TotalTrades:     len(trades),
		PairStats:       map[string]PairStats{},
		ConfidenceStats: map[string]BucketStats{},
		SessionStats:    map[string]BucketStats{},
	}
	if symbol == "" {
		out.Symbol = "ALL"
	}
	if len(trades) == 0 {
		return out, nil
	}

	var closed []*TradeRecord
	var winPips, lossPips []float64
	for _, t := range trades {
		switch {
		case t.Status == StatusClosed && t.Outcome != OutcomeCancelled:
			closed = append(closed, t)
		case t.Outcome == OutcomeCancelled:
			out.CancelledTrades++
		case t.Status == StatusFailed:
			out.FailedTrades++
		case t.Outcome == OutcomeOpen:
			out.OpenTrades++
		}
	}

	out.ClosedTrades = len(closed)
	for _, t := range closed {
		out.TotalPnLPips += t.PnLPips
		out.TotalPnLMoney += t.PnLMoney
		switch t.Outcome {
		case OutcomeFullWin:
			out.FullWins++
			out.Wins++
			winPips = append(winPips, t.PnLPips)
		case OutcomePartialWin:
			out.PartialWins++
			out.Wins++
			winPips = append(winPips, t.PnLPips)
		case OutcomeLoss:
			out.Losses++
			lossPips = append(lossPips, t.PnLPips)
		}
	}
	if out.ClosedTrades > 0 {
		out.WinRate = float64(out.Wins) / float64(out.ClosedTrades) * 100
	}
	if len(winPips) > 0 {
		out.AvgWinPips = stat.Mean(winPips, nil)
	}
	if len(lossPips) > 0 {
		out.AvgLossPips = stat.Mean(lossPips, nil)
	}

	// Per-pair breakdown
	symbols := map[string]bool{}
	for _, t := range trades {
		symbols[t.Symbol] = true
	}
	var symbolList []string
	for sym := range symbols {
		symbolList = append(symbolList, sym)
	}
	sort.Strings(symbolList)
	for _, sym := range symbolList {
		ps := PairStats{}
		for _, t := range trades {
			if t.Symbol != sym {
				continue
			}
			ps.Total++
		}
		for _, t := range closed {
			if t.Symbol != sym {
				continue
			}
			ps.Closed++
			ps.PnLPips += t.PnLPips
			ps.PnLMoney += t.PnLMoney
			if isWin(t.Outcome) {
				ps.Wins++
			}
		}
		if ps.Closed > 0 {
			ps.WinRate = float64(ps.Wins) / float64(ps.Closed) * 100
		}
		out.PairStats[sym] = ps
	}

	out.ConfidenceStats = bucketBy(closed, func(t *TradeRecord) string { return t.Confidence })
	out.SessionStats = bucketBy(closed, func(t *TradeRecord) string { return t.Session })

	return out, nil
}

func bucketBy(closed []*TradeRecord, key func(*TradeRecord) string) map[string]BucketStats {
	buckets := map[string]BucketStats{}
	for _, t := range closed {
		k := key(t)
		if k == "" {
			continue
		}
		b := buckets[k]
		b.Total++
		if isWin(t.Outcome) {
			b.Wins++
		}
		buckets[k] = b
	}
	for k, b := range buckets {
		if b.Total > 0 {
			b.WinRate = float64(b.Wins) / float64(b.Total) * 100
			buckets[k] = b
		}
	}
	return buckets
}
