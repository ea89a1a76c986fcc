package report

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manuham/fx-coordinator/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// A second pooled connection would see a different empty in-memory DB.
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })

	s := store.NewFromConn(conn, zerolog.Nop())
	require.NoError(t, s.Init())
	return s
}

func seedTrades(t *testing.T, s *store.Store) {
	t.Helper()
	require.NoError(t, s.LogTradeQueued(&store.TradeRecord{
		ID: "t1", Symbol: "GBPJPY", Bias: "short", Confidence: "high",
		SLPips: 35, TP1Pips: 55, TP2Pips: 125,
	}))
	require.NoError(t, s.LogTradeExecuted("t1", "executed", 185.48, 1, 2, 0.4, 0.6))
	require.NoError(t, s.LogTradeClosed("t1", 1, 184.90, "tp1", 110))
	require.NoError(t, s.LogTradeClosed("t1", 2, 184.20, "tp2", 240))

	require.NoError(t, s.LogTradeQueued(&store.TradeRecord{
		ID: "t2", Symbol: "XAUUSD", Bias: "long", Confidence: "medium",
		SLPips: 40, TP1Pips: 60, TP2Pips: 120,
	}))
	require.NoError(t, s.LogTradeExecuted("t2", "executed", 2390.0, 3, 4, 0.1, 0.1))
	require.NoError(t, s.LogTradeClosed("t2", 3, 2386.0, "sl", -80))
}

func TestGenerateMonthlyAndLoad(t *testing.T) {
	st := newTestStore(t)
	seedTrades(t, st)
	require.NoError(t, st.LogScreening("GBPJPY", true, "clean setup"))
	require.NoError(t, st.LogScreening("GBPJPY", false, "ranging"))

	svc, err := NewService(st, t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	// Generated on Sep 1st, covering August.
	now := time.Date(2026, 9, 1, 0, 5, 0, 0, time.UTC)
	r, err := svc.GenerateMonthly(now)
	require.NoError(t, err)
	assert.Equal(t, 2026, r.Year)
	assert.Equal(t, 8, r.Month)
	assert.Equal(t, 2, r.Stats.ClosedTrades)
	assert.Equal(t, 1, r.Stats.Wins)
	// Gross win 180 pips vs gross loss 40.
	assert.InDelta(t, 4.5, r.ProfitFactor, 0.01)
	assert.Greater(t, r.PipsStdDev, 0.0)
	require.Len(t, r.Screening, 1)
	assert.Equal(t, 2, r.Screening[0].Total)

	// Cumulative pip curve ends at +180 - 40.
	require.Len(t, r.Equity, 2)
	assert.InDelta(t, 140.0, r.Equity[1].CumPips, 0.01)

	data, ok, err := svc.Load(2026, 8)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(data), `"profit_factor"`)

	_, ok, err = svc.Load(2026, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWeeklySummary(t *testing.T) {
	st := newTestStore(t)
	seedTrades(t, st)

	stats, err := st.Stats("", 7)
	require.NoError(t, err)
	screening, err := st.ScreeningStatsSince(7)
	require.NoError(t, err)

	text := WeeklySummary(stats, screening)
	assert.Contains(t, text, "📊 Weekly Summary")
	assert.Contains(t, text, "2 closed (1W / 1L)")
	assert.Contains(t, text, "50% win rate")
	assert.Contains(t, text, "• GBPJPY: 1 closed, 100% wins, +180p")
	assert.Contains(t, text, "• XAUUSD: 1 closed, 0% wins, -40p")
}

func TestWeeklySummary_NoTrades(t *testing.T) {
	text := WeeklySummary(&store.Stats{}, nil)
	assert.Contains(t, text, "No trades closed this week.")
}
