// Package feed builds the unauthenticated public views: recent trades
// and aggregate stats with account-identifying fields stripped. Money
// amounts, lot sizes and raw model output never leave this filter.
package feed

import (
	"github.com/manuham/fx-coordinator/internal/store"
)

// PublicTrade is the redacted row served on the public feed.
type PublicTrade struct {
	Symbol         string  `json:"symbol"`
	Bias           string  `json:"bias"`
	Confidence     string  `json:"confidence"`
	Session        string  `json:"session,omitempty"`
	EntryMin       float64 `json:"entry_min"`
	EntryMax       float64 `json:"entry_max"`
	StopLoss       float64 `json:"stop_loss"`
	TP1            float64 `json:"tp1"`
	TP2            float64 `json:"tp2"`
	Status         string  `json:"status"`
	Outcome        string  `json:"outcome"`
	PnLPips        float64 `json:"pnl_pips"`
	ChecklistScore string  `json:"checklist_score,omitempty"`
	CounterTrend   bool    `json:"counter_trend"`
	CreatedAt      string  `json:"created_at"`
	ClosedAt       string  `json:"closed_at,omitempty"`
}

// PublicStats is the redacted aggregate view. No money totals.
type PublicStats struct {
	PeriodDays   int                          `json:"period_days"`
	TotalTrades  int                          `json:"total_trades"`
	ClosedTrades int                          `json:"closed_trades"`
	Wins         int                          `json:"wins"`
	Losses       int                          `json:"losses"`
	WinRate      float64                      `json:"win_rate"`
	TotalPnLPips float64                      `json:"total_pnl_pips"`
	AvgWinPips   float64                      `json:"avg_win_pips"`
	AvgLossPips  float64                      `json:"avg_loss_pips"`
	PairStats    map[string]PublicPair        `json:"pair_stats"`
	Confidence   map[string]store.BucketStats `json:"confidence_stats"`
}

// PublicPair is the per-symbol slice without money columns.
type PublicPair struct {
	Total   int     `json:"total"`
	Closed  int     `json:"closed"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"win_rate"`
	PnLPips float64 `json:"pnl_pips"`
}

// Trades returns the redacted recent-trade list, optionally filtered
// to one symbol.
func Trades(st *store.Store, limit int, symbol string) ([]PublicTrade, error) {
	records, err := st.RecentTrades(limit, symbol)
	if err != nil {
		return nil, err
	}
	out := make([]PublicTrade, 0, len(records))
	for _, t := range records {
		out = append(out, PublicTrade{
			Symbol:         t.Symbol,
			Bias:           t.Bias,
			Confidence:     t.Confidence,
			Session:        t.Session,
			EntryMin:       t.EntryMin,
			EntryMax:       t.EntryMax,
			StopLoss:       t.StopLoss,
			TP1:            t.TP1,
			TP2:            t.TP2,
			Status:         t.Status,
			Outcome:        t.Outcome,
			PnLPips:        t.PnLPips,
			ChecklistScore: t.ChecklistScore,
			CounterTrend:   t.CounterTrend,
			CreatedAt:      t.CreatedAt,
			ClosedAt:       t.ClosedAt,
		})
	}
	return out, nil
}

// Stats returns the redacted aggregate view over the trailing window.
func Stats(st *store.Store, days int) (*PublicStats, error) {
	full, err := st.Stats("", days)
	if err != nil {
		return nil, err
	}
	out := &PublicStats{
		PeriodDays:   full.PeriodDays,
		TotalTrades:  full.TotalTrades,
		ClosedTrades: full.ClosedTrades,
		Wins:         full.Wins,
		Losses:       full.Losses,
		WinRate:      full.WinRate,
		TotalPnLPips: full.TotalPnLPips,
		AvgWinPips:   full.AvgWinPips,
		AvgLossPips:  full.AvgLossPips,
		PairStats:    make(map[string]PublicPair, len(full.PairStats)),
		Confidence:   full.ConfidenceStats,
	}
	for sym, ps := range full.PairStats {
		out.PairStats[sym] = PublicPair{
			Total:   ps.Total,
			Closed:  ps.Closed,
			Wins:    ps.Wins,
			WinRate: ps.WinRate,
			PnLPips: ps.PnLPips,
		}
	}
	return out, nil
}
