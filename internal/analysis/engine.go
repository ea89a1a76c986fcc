// Package analysis runs the tiered model pipeline: a cheap screening
// pass on every scan, a deep ICT analysis only when the screener sees
// something, a fast M1 confirmation when price reaches a watched zone,
// and a short post-trade review after each close. Fundamentals are
// fetched once per pair per day and cached.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/manuham/fx-coordinator/internal/contextcache"
	"github.com/manuham/fx-coordinator/internal/domain"
	"github.com/manuham/fx-coordinator/internal/llm"
	"github.com/manuham/fx-coordinator/internal/macro"
	"github.com/manuham/fx-coordinator/internal/pairs"
	"github.com/manuham/fx-coordinator/internal/store"
)

// Config carries the model names for the three tiers.
type Config struct {
	ScreenerModel string
	AnalysisModel string
	ConfirmModel  string
}

// Engine coordinates the pipeline. One full analysis runs at a time;
// entry confirmations bypass the pipeline lock so a slow deep analysis
// for one pair never delays an M1 check for another.
type Engine struct {
	caller       llm.Caller
	cfg          Config
	store        *store.Store
	macro        *macro.Service
	fundamentals *contextcache.Cache
	log          zerolog.Logger

	mu sync.Mutex
}

// NewEngine wires the pipeline. macroSvc and fundamentals may be nil;
// the matching prompt sections are then simply omitted.
func NewEngine(caller llm.Caller, cfg Config, st *store.Store, macroSvc *macro.Service, fundamentals *contextcache.Cache, log zerolog.Logger) *Engine {
	return &Engine{
		caller:       caller,
		cfg:          cfg,
		store:        st,
		macro:        macroSvc,
		fundamentals: fundamentals,
		log:          log.With().Str("component", "analysis").Logger(),
	}
}

func localDate() string {
	return time.Now().In(domain.TradingZone).Format("2006-01-02")
}

// Analyze runs screening and, when it passes, the full analysis.
// Always returns a result; degraded paths carry the error text in
// MarketSummary so the notifier has something to report.
func (e *Engine) Analyze(ctx context.Context, bundle *domain.Bundle) *domain.AnalysisResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	symbol := bundle.Symbol
	profile := pairs.Get(symbol)
	log := e.log.With().Str("symbol", symbol).Logger()

	fundamentals := e.fetchFundamentals(ctx, symbol, profile)

	screen := e.screen(ctx, bundle, profile, fundamentals)
	if err := e.store.LogScreening(symbol, screen.HasSetup, screen.Reasoning); err != nil {
		log.Warn().Err(err).Msg("Failed to log screening result")
	}

	if !screen.HasSetup {
		log.Info().Str("reasoning", screen.Reasoning).Msg("Screener found no setup, skipping deep analysis")
		h1 := screen.H1Trend
		if h1 == "" {
			h1 = "unknown"
		}
		summary := screen.MarketSummary
		if summary == "" {
			summary = screen.Reasoning
		}
		if summary == "" {
			summary = "No valid setup identified."
		}
		return &domain.AnalysisResult{
			Symbol:          symbol,
			Digits:          profile.Digits,
			H1TrendAnalysis: "H1 trend: " + h1,
			MarketSummary:   summary,
			PrimaryScenario: screen.Reasoning,
		}
	}

	log.Info().Msg("Screener found potential setup, escalating to deep analysis")
	return e.analyzeFull(ctx, bundle, profile, fundamentals)
}

// fetchFundamentals returns today's cached fundamentals digest,
// fetching it via web search at most once per pair per day. Failures
// degrade to an empty string; the deep tier then searches itself.
func (e *Engine) fetchFundamentals(ctx context.Context, symbol string, profile pairs.Profile) string {
	if e.fundamentals == nil {
		return ""
	}

	text, err := e.fundamentals.GetOrFetch(ctx, symbol, localDate(), func(ctx context.Context) (string, error) {
		system := fmt.Sprintf("You are a forex news analyst. Search for current %s/%s fundamentals and news. Be concise.",
			profile.BaseCurrency, profile.QuoteCurrency)
		resp, err := e.caller.Complete(ctx, &llm.Request{
			Model:     e.cfg.ScreenerModel,
			MaxTokens: 1500,
			System:    []llm.ContentBlock{llm.TextBlock(system)},
			Tools:     []llm.Tool{llm.WebSearchTool(5)},
			Messages: []llm.Message{{
				Role:    "user",
				Content: []llm.ContentBlock{llm.TextBlock(fundamentalsPrompt(profile))},
			}},
		})
		if err != nil {
			return "", err
		}
		digest := strings.TrimSpace(resp.Text())
		if digest == "" {
			return "", errors.New("empty fundamentals reply")
		}
		return digest, nil
	})
	if err != nil {
		if !errors.Is(err, llm.ErrNotConfigured) {
			e.log.Warn().Err(err).Str("symbol", symbol).Msg("Fundamentals fetch failed")
		}
		return ""
	}
	return text
}

// screen is the cheap gate in front of the deep tier. It fails open:
// any transport or parse problem escalates to the full analysis rather
// than silently dropping a scan.
func (e *Engine) screen(ctx context.Context, bundle *domain.Bundle, profile pairs.Profile, fundamentals string) domain.ScreenerResult {
	content := chartContent([]chartFrame{
		{"H1 (Hourly)", bundle.Screenshots["h1"]},
		{"M5 (5-Minute)", bundle.Screenshots["m5"]},
	})
	content = append(content,
		marketDataBlock("--- Market Data (includes D1/H4 RSI/ATR, session levels) ---", bundle.Market),
		llm.TextBlock("Screen these H1/M5 charts plus the market data (D1/H4 bias from RSI/ATR/PDH/PDL). Is there a valid ICT setup? Reply with JSON only."),
	)

	resp, err := e.caller.Complete(ctx, &llm.Request{
		Model:     e.cfg.ScreenerModel,
		MaxTokens: 500,
		System:    []llm.ContentBlock{llm.CachedTextBlock(screeningPrompt(profile, fundamentals))},
		Messages:  []llm.Message{{Role: "user", Content: content}},
	})
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			return domain.ScreenerResult{HasSetup: true, Reasoning: "Model not configured, skipping screen"}
		}
		e.log.Error().Err(err).Str("symbol", bundle.Symbol).Msg("Screening call failed, escalating")
		return domain.ScreenerResult{HasSetup: true, Reasoning: "Screen error: " + err.Error()}
	}

	raw, ok := extractJSON(resp.Text())
	if !ok {
		e.log.Warn().Str("symbol", bundle.Symbol).Msg("Screening reply unparsable, escalating")
		return domain.ScreenerResult{HasSetup: true, Reasoning: "Parse failed, escalating"}
	}
	var result domain.ScreenerResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.ScreenerResult{HasSetup: true, Reasoning: "Parse failed, escalating"}
	}
	return result
}

// analysisPayload is the JSON contract of the deep tier's reply.
type analysisPayload struct {
	Setups              []domain.TradeSetup `json:"setups"`
	H1TrendAnalysis     string              `json:"h1_trend_analysis"`
	MarketSummary       string              `json:"market_summary"`
	PrimaryScenario     string              `json:"primary_scenario"`
	AlternativeScenario string              `json:"alternative_scenario"`
	FundamentalBias     string              `json:"fundamental_bias"`
	UpcomingEvents      []string            `json:"upcoming_events"`
}

func (e *Engine) analyzeFull(ctx context.Context, bundle *domain.Bundle, profile pairs.Profile, fundamentals string) *domain.AnalysisResult {
	symbol := bundle.Symbol
	log := e.log.With().Str("symbol", symbol).Logger()

	content := chartContent([]chartFrame{
		{"D1 (Daily)", bundle.Screenshots["d1"]},
		{"H4 (4-Hour)", bundle.Screenshots["h4"]},
		{"H1 (Hourly)", bundle.Screenshots["h1"]},
		{"M5 (5-Minute)", bundle.Screenshots["m5"]},
	})
	content = append(content, marketDataBlock("--- Market Data (session levels, RSI, ATR) ---", bundle.Market))

	if e.macro != nil {
		if marketCtx := e.macro.BuildContext(ctx, symbol, profile); marketCtx != "" {
			content = append(content, llm.TextBlock("--- "+marketCtx))
			log.Info().Int("chars", len(marketCtx)).Msg("Macro context injected")
		}
	}

	trades, err := e.store.RecentClosedForPair(symbol, 20)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load performance history")
	}
	reviews, _ := e.store.RecentReviews(symbol, 5)
	if feedback := performanceFeedback(trades, reviews); feedback != "" {
		content = append(content, llm.TextBlock("--- Your Recent Trade Performance ---\n"+feedback))
	}

	useWebSearch := fundamentals == ""
	if useWebSearch {
		content = append(content, llm.TextBlock("Analyze the D1/H4/H1/M5 charts and market data above (including session levels, RSI, ATR). First use web_search to check fundamentals and news, then provide your full ICT analysis as JSON."))
	} else {
		content = append(content, llm.TextBlock("Analyze the D1/H4/H1/M5 charts and market data above (including session levels, RSI, ATR) using the pre-loaded fundamentals. Provide your full ICT analysis as JSON."))
	}

	req := &llm.Request{
		Model:     e.cfg.AnalysisModel,
		MaxTokens: 8000,
		// Thinking lets the model reason through the top-down read before
		// committing to JSON; 6k covers a typical analysis. Streaming is
		// required at this max_tokens with thinking enabled.
		Thinking: &llm.Thinking{Type: "enabled", BudgetTokens: 6000},
		Stream:   true,
		System:   []llm.ContentBlock{llm.CachedTextBlock(systemPrompt(profile, fundamentals))},
		Messages: []llm.Message{{Role: "user", Content: content}},
	}
	if useWebSearch {
		req.Tools = []llm.Tool{llm.WebSearchTool(10)}
	}

	log.Info().
		Str("model", e.cfg.AnalysisModel).
		Bool("web_search", useWebSearch).
		Msg("Running full analysis")

	resp, err := e.caller.Complete(ctx, req)
	if err != nil {
		summary := "Analysis error: " + err.Error()
		if errors.Is(err, llm.ErrNotConfigured) {
			summary = "Error: API key not configured"
		}
		log.Error().Err(err).Msg("Full analysis failed")
		return &domain.AnalysisResult{Symbol: symbol, Digits: profile.Digits, MarketSummary: summary}
	}

	rawText := resp.Text()
	raw, ok := extractJSON(rawText)
	if !ok {
		log.Warn().Msg("Failed to parse JSON from analysis reply")
		return &domain.AnalysisResult{
			Symbol:        symbol,
			Digits:        profile.Digits,
			MarketSummary: "Analysis received but JSON parsing failed.",
			RawResponse:   rawText,
		}
	}

	var payload analysisPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Warn().Err(err).Msg("Analysis reply did not match the expected contract")
		return &domain.AnalysisResult{
			Symbol:        symbol,
			Digits:        profile.Digits,
			MarketSummary: "Analysis received but JSON parsing failed.",
			RawResponse:   rawText,
		}
	}

	if payload.FundamentalBias == "" {
		payload.FundamentalBias = "neutral"
	}

	// A web-search run doubles as the day's fundamentals fetch.
	if useWebSearch && e.fundamentals != nil {
		cacheText := fmt.Sprintf("Fundamental bias: %s\nUpcoming events: %s",
			payload.FundamentalBias, strings.Join(payload.UpcomingEvents, ", "))
		e.fundamentals.Put(symbol, localDate(), cacheText)
	}

	return &domain.AnalysisResult{
		Symbol:              symbol,
		Digits:              profile.Digits,
		Setups:              payload.Setups,
		H1TrendAnalysis:     payload.H1TrendAnalysis,
		MarketSummary:       payload.MarketSummary,
		PrimaryScenario:     payload.PrimaryScenario,
		AlternativeScenario: payload.AlternativeScenario,
		FundamentalBias:     payload.FundamentalBias,
		UpcomingEvents:      payload.UpcomingEvents,
		RawResponse:         rawText,
	}
}
