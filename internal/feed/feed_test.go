package feed

import (
	"database/sql"
	"encoding/json"
	"testing"

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

func TestTrades_RedactsSensitiveFields(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.LogTradeQueued(&store.TradeRecord{
		ID: "t1", Symbol: "GBPJPY", Bias: "short", Confidence: "high",
		SLPips: 35, TP1Pips: 55, TP2Pips: 125,
		RawResponse: "full model transcript",
	}))
	require.NoError(t, st.LogTradeExecuted("t1", "executed", 185.48, 1, 2, 0.4, 0.6))
	require.NoError(t, st.LogTradeClosed("t1", 1, 185.85, "sl", -75))

	trades, err := Trades(st, 50, "")
	require.NoError(t, err)
	require.Len(t, trades, 1)

	// Symbol filter.
	none, err := Trades(st, 50, "XAUUSD")
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Equal(t, "GBPJPY", trades[0].Symbol)
	assert.Equal(t, store.OutcomeLoss, trades[0].Outcome)
	assert.Equal(t, -35.0, trades[0].PnLPips)

	raw, err := json.Marshal(trades)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "transcript")
	assert.NotContains(t, string(raw), "lots")
	assert.NotContains(t, string(raw), "pnl_money")
}

func TestStats_NoMoneyColumns(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.LogTradeQueued(&store.TradeRecord{
		ID: "t1", Symbol: "GBPJPY", Bias: "short", Confidence: "high",
		SLPips: 35, TP1Pips: 55, TP2Pips: 125,
	}))
	require.NoError(t, st.LogTradeExecuted("t1", "executed", 185.48, 1, 2, 0.4, 0.6))
	require.NoError(t, st.LogTradeClosed("t1", 1, 184.90, "tp1", 110))
	require.NoError(t, st.LogTradeClosed("t1", 2, 184.20, "tp2", 240))

	stats, err := Stats(st, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ClosedTrades)
	assert.Equal(t, 100.0, stats.WinRate)
	assert.Equal(t, 180.0, stats.TotalPnLPips)

	raw, err := json.Marshal(stats)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "pnl_money")
	assert.NotContains(t, string(raw), "total_pnl_money")
}
