package analysis

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manuham/fx-coordinator/internal/contextcache"
	"github.com/manuham/fx-coordinator/internal/domain"
	"github.com/manuham/fx-coordinator/internal/llm"
	"github.com/manuham/fx-coordinator/internal/store"
)

type fakeCaller struct {
	replies  []func(*llm.Request) (*llm.Response, error)
	requests []*llm.Request
}

func (f *fakeCaller) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	f.requests = append(f.requests, req)
	if len(f.replies) == 0 {
		return nil, errors.New("unexpected model call")
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply(req)
}

func textReply(text string) func(*llm.Request) (*llm.Response, error) {
	return func(*llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: []llm.ResponseBlock{{Type: "text", Text: text}}}, nil
	}
}

func errReply(err error) func(*llm.Request) (*llm.Response, error) {
	return func(*llm.Request) (*llm.Response, error) { return nil, err }
}

func newTestConn(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// A second pooled connection would see a different empty in-memory DB.
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newTestEngine(t *testing.T, caller *fakeCaller, fundamentals *contextcache.Cache) (*Engine, *store.Store) {
	t.Helper()
	s := store.NewFromConn(newTestConn(t), zerolog.Nop())
	require.NoError(t, s.Init())

	cfg := Config{ScreenerModel: "screener-model", AnalysisModel: "deep-model", ConfirmModel: "fast-model"}
	return NewEngine(caller, cfg, s, nil, fundamentals, zerolog.Nop()), s
}

func newFundamentalsCache(t *testing.T) *contextcache.Cache {
	t.Helper()
	c := contextcache.NewFromConn("fundamentals", newTestConn(t), zerolog.Nop())
	require.NoError(t, c.Init())
	return c
}

func testBundle() *domain.Bundle {
	return &domain.Bundle{
		Symbol: "GBPJPY",
		Screenshots: map[string][]byte{
			"d1": testPNG(), "h4": testPNG(), "h1": testPNG(), "m5": testPNG(),
		},
		Market: domain.MarketData{Symbol: "GBPJPY", Bid: 185.30, Ask: 185.33},
	}
}

func testPNG() []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	return buf.Bytes()
}

const deepReply = `{
	"setups": [{
		"bias": "short", "entry_min": 185.40, "entry_max": 185.55,
		"stop_loss": 185.85, "sl_pips": 35, "tp1": 185.10, "tp1_pips": 35,
		"tp2": 184.70, "tp2_pips": 75, "rr_tp1": 1.0, "rr_tp2": 2.1,
		"confluence": ["asian sweep", "h1 order block"],
		"invalidation": "close above 185.85",
		"timeframe_type": "intraday", "confidence": "high",
		"counter_trend": false, "h1_trend": "bearish", "h4_trend": "bearish", "d1_trend": "bearish",
		"trend_alignment": "4/4 bearish", "price_zone": "premium",
		"entry_distance_pips": 12, "entry_status": "approaching",
		"negative_factors": ["SL near cap"], "checklist_score": "10/12"
	}],
	"h1_trend_analysis": "Bearish structure intact.",
	"market_summary": "Price rejecting PDH.",
	"primary_scenario": "Short from premium.",
	"alternative_scenario": "Reclaim of PDH flips bias.",
	"fundamental_bias": "bearish_gbp",
	"upcoming_events": ["BoE minutes"]
}`

func TestAnalyze_ScreenerNoSetup(t *testing.T) {
	caller := &fakeCaller{replies: []func(*llm.Request) (*llm.Response, error){
		textReply(`{"has_setup": false, "h1_trend": "ranging", "reasoning": "mid-range chop", "market_summary": "Tight range under PDC."}`),
	}}
	e, s := newTestEngine(t, caller, nil)

	result := e.Analyze(context.Background(), testBundle())

	require.Len(t, caller.requests, 1)
	assert.Equal(t, "screener-model", caller.requests[0].Model)
	assert.Equal(t, 500, caller.requests[0].MaxTokens)
	require.NotEmpty(t, caller.requests[0].System)
	assert.NotNil(t, caller.requests[0].System[0].CacheControl)

	assert.Empty(t, result.Setups)
	assert.Equal(t, "H1 trend: ranging", result.H1TrendAnalysis)
	assert.Equal(t, "Tight range under PDC.", result.MarketSummary)

	stats, err := s.ScreeningStatsSince(1)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Total)
	assert.Equal(t, 0, stats[0].Passed)
}

func TestAnalyze_ScreenerErrorFailsOpen(t *testing.T) {
	caller := &fakeCaller{replies: []func(*llm.Request) (*llm.Response, error){
		errReply(errors.New("upstream flaked")),
		textReply(deepReply),
	}}
	e, _ := newTestEngine(t, caller, nil)

	result := e.Analyze(context.Background(), testBundle())

	require.Len(t, caller.requests, 2)
	deep := caller.requests[1]
	assert.Equal(t, "deep-model", deep.Model)
	assert.True(t, deep.Stream)
	require.NotNil(t, deep.Thinking)
	assert.Equal(t, 6000, deep.Thinking.BudgetTokens)
	// No fundamentals cached, so the deep tier gets the search tool.
	require.Len(t, deep.Tools, 1)
	assert.Equal(t, "web_search", deep.Tools[0].Name)

	require.Len(t, result.Setups, 1)
	assert.Equal(t, "short", result.Setups[0].Bias)
	assert.Equal(t, "10/12", result.Setups[0].ChecklistScore)
	assert.Equal(t, "bearish_gbp", result.FundamentalBias)
}

func TestAnalyze_CachedFundamentalsSkipWebSearch(t *testing.T) {
	fundamentals := newFundamentalsCache(t)
	fundamentals.Put("GBPJPY", localDate(), "BoE hawkish, BoJ on hold.")

	caller := &fakeCaller{replies: []func(*llm.Request) (*llm.Response, error){
		textReply(`{"has_setup": true, "h1_trend": "bearish", "reasoning": "sweep and displacement"}`),
		textReply(deepReply),
	}}
	e, _ := newTestEngine(t, caller, fundamentals)

	e.Analyze(context.Background(), testBundle())

	// Cached fundamentals: no tier-0 fetch, no search tool on the deep call.
	require.Len(t, caller.requests, 2)
	deep := caller.requests[1]
	assert.Empty(t, deep.Tools)
	assert.Contains(t, deep.System[0].Text, "pre-loaded")
	assert.Contains(t, deep.System[0].Text, "BoE hawkish")
}

func TestAnalyze_FundamentalsFetchedOncePerDay(t *testing.T) {
	fundamentals := newFundamentalsCache(t)
	caller := &fakeCaller{replies: []func(*llm.Request) (*llm.Response, error){
		textReply("GBP supported by gilt yields; JPY soft."),
		textReply(`{"has_setup": false, "reasoning": "flat"}`),
		textReply(`{"has_setup": false, "reasoning": "still flat"}`),
	}}
	e, _ := newTestEngine(t, caller, fundamentals)

	e.Analyze(context.Background(), testBundle())
	e.Analyze(context.Background(), testBundle())

	// Three calls total: one fundamentals fetch, two screens.
	require.Len(t, caller.requests, 3)
	require.Len(t, caller.requests[0].Tools, 1)
	assert.Equal(t, "web_search", caller.requests[0].Tools[0].Name)

	text, ok := fundamentals.Get("GBPJPY", localDate())
	require.True(t, ok)
	assert.Contains(t, text, "gilt yields")

	// The second screen carries the cached digest in its prompt.
	assert.Contains(t, caller.requests[2].System[0].Text, "gilt yields")
}

func TestAnalyze_UnparsableDeepReplyKeepsRawResponse(t *testing.T) {
	caller := &fakeCaller{replies: []func(*llm.Request) (*llm.Response, error){
		textReply(`{"has_setup": true, "reasoning": "worth a look"}`),
		textReply("I could not produce the analysis."),
	}}
	e, _ := newTestEngine(t, caller, nil)

	result := e.Analyze(context.Background(), testBundle())

	assert.Empty(t, result.Setups)
	assert.Contains(t, result.MarketSummary, "parsing failed")
	assert.Equal(t, "I could not produce the analysis.", result.RawResponse)
}

func TestConfirmEntry_Confirmed(t *testing.T) {
	caller := &fakeCaller{replies: []func(*llm.Request) (*llm.Response, error){
		textReply(`{"confirmed": true, "reasoning": "wick rejection off support in last 3 candles"}`),
	}}
	e, _ := newTestEngine(t, caller, nil)

	verdict, err := e.ConfirmEntry(context.Background(), ConfirmRequest{
		Symbol: "GBPJPY", Bias: "long",
		CurrentPrice: 185.25, EntryMin: 185.20, EntryMax: 185.40,
		Confluence:   []string{"asian sweep", "h1 ob", "fvg ce", "ote"},
		ScreenshotM1: testPNG(),
	})
	require.NoError(t, err)
	assert.True(t, verdict.Confirmed)

	req := caller.requests[0]
	assert.Equal(t, "fast-model", req.Model)
	assert.Equal(t, 200, req.MaxTokens)
	// Price lines use the pair's digit count (3 for JPY crosses).
	var userText strings.Builder
	for _, b := range req.Messages[0].Content {
		userText.WriteString(b.Text)
	}
	assert.Contains(t, userText.String(), "185.200 - 185.400")
	// Only the top three confluence factors travel.
	assert.Contains(t, userText.String(), "fvg ce")
	assert.NotContains(t, userText.String(), "ote")
}

func TestConfirmEntry_ParseFailureIsAnError(t *testing.T) {
	caller := &fakeCaller{replies: []func(*llm.Request) (*llm.Response, error){
		textReply("looks fine to me"),
	}}
	e, _ := newTestEngine(t, caller, nil)

	verdict, err := e.ConfirmEntry(context.Background(), ConfirmRequest{
		Symbol: "GBPJPY", Bias: "long", ScreenshotM1: testPNG(),
	})
	require.Error(t, err)
	assert.Nil(t, verdict)
}

func TestConfirmEntry_NotConfiguredDenies(t *testing.T) {
	caller := &fakeCaller{replies: []func(*llm.Request) (*llm.Response, error){
		errReply(llm.ErrNotConfigured),
	}}
	e, _ := newTestEngine(t, caller, nil)

	verdict, err := e.ConfirmEntry(context.Background(), ConfirmRequest{
		Symbol: "GBPJPY", Bias: "short", ScreenshotM1: testPNG(),
	})
	require.NoError(t, err)
	assert.False(t, verdict.Confirmed)
}

func TestReviewTrade_SavesInsight(t *testing.T) {
	caller := &fakeCaller{replies: []func(*llm.Request) (*llm.Response, error){
		textReply("Counter-trend shorts below 8/12 keep losing; require stronger reversal evidence."),
	}}
	e, s := newTestEngine(t, caller, nil)

	review, err := e.ReviewTrade(context.Background(), &store.TradeRecord{
		ID: "t1", Symbol: "GBPJPY", Bias: "short", Outcome: store.OutcomeLoss,
		PnLPips: -30, Confidence: "medium", ChecklistScore: "7/12",
	})
	require.NoError(t, err)
	assert.Contains(t, review, "Counter-trend")

	reviews, err := s.RecentReviews("GBPJPY", 5)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "t1", reviews[0].TradeID)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ok   bool
		want string
	}{
		{"plain", `{"a":1}`, true, `{"a":1}`},
		{"fenced", "Here you go:\n```json\n{\"a\":1}\n```", true, `{"a":1}`},
		{"fenced no tag", "```\n{\"a\":1}\n```", true, `{"a":1}`},
		{"prose wrapped", `The verdict is {"confirmed": true} as requested.`, true, `{"confirmed": true}`},
		{"no json", "nothing here", false, ""},
		{"empty", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, ok := extractJSON(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.JSONEq(t, tt.want, string(raw))
			}
		})
	}
}

func TestCompressImage(t *testing.T) {
	data, mediaType := compressImage(testPNG())
	assert.Equal(t, "image/jpeg", mediaType)
	assert.NotEmpty(t, data)

	garbage := []byte("not an image")
	data, mediaType = compressImage(garbage)
	assert.Equal(t, "image/png", mediaType)
	assert.Equal(t, garbage, data)
}

func TestPerformanceFeedback(t *testing.T) {
	trades := []*store.TradeRecord{
		{Symbol: "GBPJPY", Bias: "short", Confidence: "high", Outcome: store.OutcomeFullWin,
			PnLPips: 60, TrendAlignment: "4/4 bearish", PriceZone: "premium", EntryStatus: "at_zone"},
		{Symbol: "GBPJPY", Bias: "short", Confidence: "high", Outcome: store.OutcomePartialWin,
			PnLPips: 20, TrendAlignment: "3/4 bearish", PriceZone: "premium", EntryStatus: "approaching"},
		{Symbol: "GBPJPY", Bias: "long", Confidence: "medium", Outcome: store.OutcomeLoss,
			PnLPips: -30, CounterTrend: true, PriceZone: "discount", EntryStatus: "requires_pullback",
			NegativeFactors: "D1 opposes\nOB stale"},
	}
	reviews := []store.TradeReview{{Review: "at_zone entries outperform requires_pullback"}}

	text := performanceFeedback(trades, reviews)

	assert.Contains(t, text, "last 3 completed trades for GBPJPY")
	assert.Contains(t, text, "67% win rate (2W / 1L)")
	assert.Contains(t, text, "Net: +50 pips")
	assert.Contains(t, text, "Counter-trend: 0% (0/1)")
	assert.Contains(t, text, "HIGH confidence: 100% (2/2)")
	assert.Contains(t, text, "risks: D1 opposes; OB stale")
	assert.Contains(t, text, "at_zone entries outperform requires_pullback")

	assert.Empty(t, performanceFeedback(nil, nil))
}
