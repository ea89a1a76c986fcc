package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manuham/fx-coordinator/internal/analysis"
	"github.com/manuham/fx-coordinator/internal/archive"
	"github.com/manuham/fx-coordinator/internal/config"
	"github.com/manuham/fx-coordinator/internal/domain"
	"github.com/manuham/fx-coordinator/internal/notify"
	"github.com/manuham/fx-coordinator/internal/queue"
	"github.com/manuham/fx-coordinator/internal/report"
	"github.com/manuham/fx-coordinator/internal/risk"
	"github.com/manuham/fx-coordinator/internal/store"
	"github.com/manuham/fx-coordinator/internal/watch"
)

type fakeEngine struct {
	mu            sync.Mutex
	analyzeResult *domain.AnalysisResult
	analyzed      chan *domain.Bundle
	verdict       *analysis.ConfirmVerdict
	confirmErr    error
	reviewText    string
	reviewed      chan string
}

func (f *fakeEngine) Analyze(_ context.Context, b *domain.Bundle) *domain.AnalysisResult {
	f.mu.Lock()
	result := f.analyzeResult
	f.mu.Unlock()
	if result == nil {
		result = &domain.AnalysisResult{Symbol: b.Symbol, MarketSummary: "nothing today"}
	}
	if f.analyzed != nil {
		f.analyzed <- b
	}
	return result
}

func (f *fakeEngine) ConfirmEntry(context.Context, analysis.ConfirmRequest) (*analysis.ConfirmVerdict, error) {
	return f.verdict, f.confirmErr
}

func (f *fakeEngine) ReviewTrade(_ context.Context, t *store.TradeRecord) (string, error) {
	if f.reviewed != nil {
		f.reviewed <- t.ID
	}
	return f.reviewText, nil
}

type fakeMessenger struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeMessenger) Send(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
}

func (f *fakeMessenger) SendWithButtons(text string, _ [][]notify.Button) {
	f.Send(text)
}

func (f *fakeMessenger) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type testEnv struct {
	server    *Server
	store     *store.Store
	registry  *watch.Registry
	queue     *queue.Queue
	engine    *fakeEngine
	messenger *fakeMessenger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// A second pooled connection would see a different empty in-memory DB.
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })

	st := store.NewFromConn(conn, zerolog.Nop())
	require.NoError(t, st.Init())

	arch, err := archive.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	reports, err := report.NewService(st, t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	engine := &fakeEngine{}
	messenger := &fakeMessenger{}
	registry := watch.NewRegistry(st, 3, zerolog.Nop())
	q := queue.New(60*time.Second, zerolog.Nop())

	cfg := &config.Config{
		APIKey:                "test-key",
		ActivePairs:           []string{"GBPJPY"},
		AutoQueueMinChecklist: 7,
		PublicFeedEnabled:     true,
	}
	gate := risk.NewGate(st, nil, risk.Config{
		MaxDailyDrawdownPct: 3, MaxOpenTrades: 2, NewsWindow: 2 * time.Minute,
	}, zerolog.Nop())

	srv := New(Deps{
		Config:   cfg,
		Log:      zerolog.Nop(),
		Store:    st,
		Engine:   engine,
		Registry: registry,
		Queue:    q,
		Gate:     gate,
		Notifier: messenger,
		Archive:  arch,
		Reports:  reports,
	})

	return &testEnv{server: srv, store: st, registry: registry, queue: q, engine: engine, messenger: messenger}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.Header.Set("X-API-Key", "test-key")
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func analyzeRequest(t *testing.T, balance float64) *http.Request {
	market, err := json.Marshal(domain.MarketData{
		Symbol: "GBPJPY", Session: "london", Bid: 185.42, Ask: 185.45, AccountBalance: balance,
	})
	require.NoError(t, err)

	body, contentType := multipartBody(t,
		map[string]string{"market_data": string(market)},
		map[string][]byte{
			"screenshot_d1": []byte("d1"), "screenshot_h4": []byte("h4"),
			"screenshot_h1": []byte("h1"), "screenshot_m5": []byte("m5"),
		})
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func highChecklistSetup() domain.TradeSetup {
	return domain.TradeSetup{
		Bias: "short", EntryMin: 185.40, EntryMax: 185.55, StopLoss: 185.85,
		SLPips: 35, TP1: 184.90, TP1Pips: 55, TP2: 184.20, TP2Pips: 125,
		Confidence: "high", Confluence: []string{"OB", "sweep", "CHoCH"},
		TimeframeType: "intraday", ChecklistScore: "10/12", EntryStatus: "at_zone",
	}
}

func waitForMessages(t *testing.T, m *fakeMessenger, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(m.all()) >= n }, 3*time.Second, 10*time.Millisecond)
	return m.all()
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health is public.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestAnalyze_NoSetup(t *testing.T) {
	env := newTestEnv(t)
	env.engine.analyzed = make(chan *domain.Bundle, 1)

	rec := env.do(t, analyzeRequest(t, 10000))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "processing")

	bundle := <-env.engine.analyzed
	assert.Equal(t, "GBPJPY", bundle.Symbol)
	assert.Equal(t, []byte("h1"), bundle.Screenshots["h1"])

	msgs := waitForMessages(t, env.messenger, 1)
	assert.Contains(t, msgs[0], "No valid trade setups")

	// The scan is recorded for the missed-scan watchdog.
	require.Eventually(t, func() bool {
		_, _, ok, err := env.store.LastScan("GBPJPY")
		return err == nil && ok
	}, 3*time.Second, 10*time.Millisecond)
}

func TestAnalyze_MissingScreenshots(t *testing.T) {
	env := newTestEnv(t)
	market, _ := json.Marshal(domain.MarketData{Symbol: "GBPJPY"})
	body, contentType := multipartBody(t,
		map[string]string{"market_data": string(market)},
		map[string][]byte{"screenshot_h1": []byte("h1")}) // no m5
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyze_AutoQueuesHighChecklist(t *testing.T) {
	env := newTestEnv(t)
	env.engine.analyzed = make(chan *domain.Bundle, 1)
	env.engine.analyzeResult = &domain.AnalysisResult{
		Symbol: "GBPJPY", MarketSummary: "bearish day",
		Setups: []domain.TradeSetup{highChecklistSetup()},
	}

	rec := env.do(t, analyzeRequest(t, 10000))
	require.Equal(t, http.StatusOK, rec.Code)
	<-env.engine.analyzed

	msgs := waitForMessages(t, env.messenger, 2)
	assert.Contains(t, msgs[0], "AUTO-QUEUED")
	assert.Contains(t, msgs[1], "Watch Started")

	require.Eventually(t, func() bool {
		_, ok := env.registry.Get("GBPJPY")
		return ok
	}, 3*time.Second, 10*time.Millisecond)
}

func TestAnalyze_LowChecklistGetsButtons(t *testing.T) {
	env := newTestEnv(t)
	env.engine.analyzed = make(chan *domain.Bundle, 1)
	setup := highChecklistSetup()
	setup.ChecklistScore = "5/12"
	env.engine.analyzeResult = &domain.AnalysisResult{
		Symbol: "GBPJPY", MarketSummary: "marginal",
		Setups: []domain.TradeSetup{setup},
	}

	env.do(t, analyzeRequest(t, 10000))
	<-env.engine.analyzed

	msgs := waitForMessages(t, env.messenger, 1)
	assert.Contains(t, msgs[0], "5/12")
	// Manual setups never start a watch on their own.
	_, ok := env.registry.Get("GBPJPY")
	assert.False(t, ok)
}

func TestConfirmEntry_ConfirmedQueuesTrade(t *testing.T) {
	env := newTestEnv(t)
	wt := env.registry.Create("GBPJPY", highChecklistSetup())
	env.engine.verdict = &analysis.ConfirmVerdict{Confirmed: true, Reasoning: "M1 rejection at zone"}

	body, contentType := multipartBody(t,
		map[string]string{"symbol": "GBPJPY", "watch_id": wt.ID, "current_price": "185.45", "account_balance": "10000"},
		map[string][]byte{"screenshot_m1": []byte("m1")})
	req := httptest.NewRequest(http.MethodPost, "/confirm_entry", body)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Confirmed bool                `json:"confirmed"`
		Trade     domain.PendingTrade `json:"trade"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Confirmed)
	assert.Equal(t, wt.ID, resp.Trade.ID)
	assert.Equal(t, 40.0, resp.Trade.TP1ClosePct)

	// Trade is on the hand-off queue and in the durable log.
	pending, _, ok := env.queue.Get("GBPJPY")
	require.True(t, ok)
	assert.Equal(t, wt.ID, pending.ID)
	rec2, err := env.store.GetTrade(wt.ID)
	require.NoError(t, err)
	require.NotNil(t, rec2)
	assert.Equal(t, store.StatusQueued, rec2.Status)

	// The watch is gone.
	_, ok = env.registry.Get("GBPJPY")
	assert.False(t, ok)
}

func TestConfirmEntry_DenialConsumesAttempt(t *testing.T) {
	env := newTestEnv(t)
	wt := env.registry.Create("GBPJPY", highChecklistSetup())
	env.engine.verdict = &analysis.ConfirmVerdict{Confirmed: false, Reasoning: "no M1 shift yet"}

	body, contentType := multipartBody(t,
		map[string]string{"symbol": "GBPJPY", "watch_id": wt.ID, "current_price": "185.45"},
		map[string][]byte{"screenshot_m1": []byte("m1")})
	req := httptest.NewRequest(http.MethodPost, "/confirm_entry", body)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"confirmed":false`)
	assert.Contains(t, rec.Body.String(), `"attempts_remaining":2`)

	after, ok := env.registry.Get("GBPJPY")
	require.True(t, ok)
	assert.Equal(t, 1, after.ConfirmationsUsed)
}

func TestConfirmEntry_TransportErrorKeepsAttempt(t *testing.T) {
	env := newTestEnv(t)
	wt := env.registry.Create("GBPJPY", highChecklistSetup())
	env.engine.confirmErr = assert.AnError

	body, contentType := multipartBody(t,
		map[string]string{"symbol": "GBPJPY", "watch_id": wt.ID, "current_price": "185.45"},
		map[string][]byte{"screenshot_m1": []byte("m1")})
	req := httptest.NewRequest(http.MethodPost, "/confirm_entry", body)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(t, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	after, ok := env.registry.Get("GBPJPY")
	require.True(t, ok)
	assert.Equal(t, 0, after.ConfirmationsUsed)
}

func TestConfirmEntry_UnknownWatch(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartBody(t,
		map[string]string{"symbol": "GBPJPY", "watch_id": "deadbeef", "current_price": "185.45"},
		map[string][]byte{"screenshot_m1": []byte("m1")})
	req := httptest.NewRequest(http.MethodPost, "/confirm_entry", body)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(t, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPendingAndWatchEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/pending_trade?symbol=GBPJPY", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending":null`)

	wt := env.registry.Create("GBPJPY", highChecklistSetup())
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/watch_trade?symbol=GBPJPY", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"watching":true`)
	assert.Contains(t, rec.Body.String(), wt.ID)

	env.queue.Publish(domain.PendingTrade{ID: wt.ID, Symbol: "GBPJPY", Bias: "short"})
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/pending_trade?symbol=GBPJPY", nil))
	assert.Contains(t, rec.Body.String(), `"ttl_remaining"`)
	assert.Contains(t, rec.Body.String(), wt.ID)
}

func TestTradeLifecycleReports(t *testing.T) {
	env := newTestEnv(t)
	env.engine.reviewText = "Entry quality was good; exit was early."
	env.engine.reviewed = make(chan string, 1)

	require.NoError(t, env.store.LogTradeQueued(&store.TradeRecord{
		ID: "t1", Symbol: "GBPJPY", Bias: "short", SLPips: 35, TP1Pips: 55, TP2Pips: 125,
	}))
	env.queue.Publish(domain.PendingTrade{ID: "t1", Symbol: "GBPJPY"})

	exec, _ := json.Marshal(domain.TradeExecutionReport{
		TradeID: "t1", Symbol: "GBPJPY", Status: "executed",
		ActualEntry: 185.48, TicketTP1: 1, TicketTP2: 2, LotsTP1: 0.4, LotsTP2: 0.6,
	})
	rec := env.do(t, httptest.NewRequest(http.MethodPost, "/trade_executed", bytes.NewReader(exec)))
	require.Equal(t, http.StatusOK, rec.Code)

	// Hand-off is consumed once the terminal reports execution.
	_, _, ok := env.queue.Get("GBPJPY")
	assert.False(t, ok)

	closeSL, _ := json.Marshal(domain.TradeCloseReport{
		TradeID: "t1", Symbol: "GBPJPY", Ticket: 1, ClosePrice: 185.85, Reason: "sl", Profit: -75,
	})
	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/trade_closed", bytes.NewReader(closeSL)))
	require.Equal(t, http.StatusOK, rec.Code)

	// Resolved trade triggers the post-trade review.
	select {
	case id := <-env.engine.reviewed:
		assert.Equal(t, "t1", id)
	case <-time.After(3 * time.Second):
		t.Fatal("review was not triggered")
	}

	trade, err := env.store.GetTrade("t1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusClosed, trade.Status)
	assert.Equal(t, store.OutcomeLoss, trade.Outcome)
}

func TestPublicEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public/trades", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pnl_money")

	rec = httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public/report/2026/7", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCommand(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.Contains(t, env.server.HandleCommand(ctx, "help", nil), "/stats")
	assert.Contains(t, env.server.HandleCommand(ctx, "status", nil), "Active watches: 0")
	assert.Contains(t, env.server.HandleCommand(ctx, "stats", nil), "No closed trades")
	assert.Contains(t, env.server.HandleCommand(ctx, "drawdown", nil), "Today's P&L")
	assert.Contains(t, env.server.HandleCommand(ctx, "news", nil), "not configured")
	assert.Contains(t, env.server.HandleCommand(ctx, "bogus", nil), "Unknown command")

	env.registry.Create("GBPJPY", highChecklistSetup())
	assert.Contains(t, env.server.HandleCommand(ctx, "dismiss", []string{"GBPJPY"}), "dismissed")
	assert.Contains(t, env.server.HandleCommand(ctx, "dismiss", []string{"GBPJPY"}), "No active watch")
}

func TestConfirmEntry_RejectionAllowsForceExecute(t *testing.T) {
	env := newTestEnv(t)
	wt := env.registry.Create("GBPJPY", highChecklistSetup())
	env.engine.verdict = &analysis.ConfirmVerdict{Confirmed: false, Reasoning: "momentum against entry"}

	// Burn all three attempts; the last one cancels the watch.
	var rec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		body, contentType := multipartBody(t,
			map[string]string{"symbol": "GBPJPY", "watch_id": wt.ID, "current_price": "185.45"},
			map[string][]byte{"screenshot_m1": []byte("m1")})
		req := httptest.NewRequest(http.MethodPost, "/confirm_entry", body)
		req.Header.Set("Content-Type", contentType)
		rec = env.do(t, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Contains(t, rec.Body.String(), `"watch_cancelled":true`)
	_, ok := env.registry.Get("GBPJPY")
	assert.False(t, ok)

	// The operator overrides via the Force Execute button.
	reply := env.server.HandleCallback(context.Background(), "force", "GBPJPY", wt.ID)
	assert.Contains(t, reply, "Forced")

	pending, _, ok := env.queue.Get("GBPJPY")
	require.True(t, ok)
	assert.Equal(t, wt.ID, pending.ID)

	// A second force on the same watch is refused.
	reply = env.server.HandleCallback(context.Background(), "force", "GBPJPY", wt.ID)
	assert.Contains(t, reply, "no longer available")
}

func TestHandleCommand_Reset(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Create("GBPJPY", highChecklistSetup())
	env.queue.Publish(domain.PendingTrade{ID: "t1", Symbol: "GBPJPY"})

	reply := env.server.HandleCommand(context.Background(), "reset", nil)
	assert.Contains(t, reply, "1 watch(es) dismissed")
	assert.Contains(t, reply, "1 hand-off(s) cleared")

	_, ok := env.registry.Get("GBPJPY")
	assert.False(t, ok)
	_, _, ok = env.queue.Get("GBPJPY")
	assert.False(t, ok)
}

func TestHandleCommand_ContextUnconfigured(t *testing.T) {
	env := newTestEnv(t)
	assert.Contains(t, env.server.HandleCommand(context.Background(), "context", []string{"GBPJPY"}), "not configured")
	assert.Contains(t, env.server.HandleCommand(context.Background(), "context", nil), "Usage")
}

func TestHandleCallback_ExecuteStartsWatch(t *testing.T) {
	env := newTestEnv(t)
	env.server.mu.Lock()
	env.server.lastResult["GBPJPY"] = &domain.AnalysisResult{
		Symbol: "GBPJPY", Setups: []domain.TradeSetup{highChecklistSetup()},
	}
	env.server.lastBalance["GBPJPY"] = 10000
	env.server.mu.Unlock()

	reply := env.server.HandleCallback(context.Background(), "execute", "GBPJPY", "0")
	assert.Contains(t, reply, "Watch Started")
	_, ok := env.registry.Get("GBPJPY")
	assert.True(t, ok)

	// Stale index after a new scan.
	reply = env.server.HandleCallback(context.Background(), "execute", "GBPJPY", "5")
	assert.Contains(t, reply, "no longer available")
}
