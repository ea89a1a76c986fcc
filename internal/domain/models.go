// Package domain defines the shared data model of the coordinator:
// market snapshots pushed by the terminal, analysis output, watch
// candidacies, queued hand-offs and terminal lifecycle reports.
package domain

import "time"

// TradingZone is the fixed offset the session clock runs on. Kill-zone
// hours, daily cache keys and the scheduler all use it; it deliberately
// ignores DST so the hours stay aligned with the terminal's config.
var TradingZone = time.FixedZone("UTC+1", 3600)

// OHLCBar is a single candle from the terminal's OHLC export.
type OHLCBar struct {
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// MarketData is one snapshot for one symbol at one time. Immutable once
// received.
type MarketData struct {
	Symbol     string  `json:"symbol"`
	Session    string  `json:"session"`
	Timestamp  string  `json:"timestamp"`
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
	SpreadPips float64 `json:"spread_pips"`

	ATRD1 float64 `json:"atr_d1"`
	ATRH4 float64 `json:"atr_h4"`
	ATRH1 float64 `json:"atr_h1"`
	ATRM5 float64 `json:"atr_m5"`

	DailyHigh      float64 `json:"daily_high"`
	DailyLow       float64 `json:"daily_low"`
	DailyRangePips float64 `json:"daily_range_pips"`

	PrevDayHigh  float64 `json:"prev_day_high"`
	PrevDayLow   float64 `json:"prev_day_low"`
	PrevDayClose float64 `json:"prev_day_close"`

	WeekHigh float64 `json:"week_high"`
	WeekLow  float64 `json:"week_low"`

	AsianHigh float64 `json:"asian_high"`
	AsianLow  float64 `json:"asian_low"`

	RSID1 float64 `json:"rsi_d1"`
	RSIH4 float64 `json:"rsi_h4"`
	RSIH1 float64 `json:"rsi_h1"`
	RSIM5 float64 `json:"rsi_m5"`

	AccountBalance float64 `json:"account_balance"`

	OHLCD1 []OHLCBar `json:"ohlc_d1,omitempty"`
	OHLCH4 []OHLCBar `json:"ohlc_h4,omitempty"`
	OHLCH1 []OHLCBar `json:"ohlc_h1,omitempty"`
	OHLCM5 []OHLCBar `json:"ohlc_m5,omitempty"`
}

// TradeSetup is an opinion produced by the full-analysis tier. Immutable.
type TradeSetup struct {
	Bias             string   `json:"bias"` // "long" or "short"
	EntryMin         float64  `json:"entry_min"`
	EntryMax         float64  `json:"entry_max"`
	StopLoss         float64  `json:"stop_loss"`
	SLPips           float64  `json:"sl_pips"`
	TP1              float64  `json:"tp1"`
	TP1Pips          float64  `json:"tp1_pips"`
	TP2              float64  `json:"tp2"`
	TP2Pips          float64  `json:"tp2_pips"`
	RRTP1            float64  `json:"rr_tp1"`
	RRTP2            float64  `json:"rr_tp2"`
	Confluence       []string `json:"confluence"`
	Invalidation     string   `json:"invalidation"`
	TimeframeType    string   `json:"timeframe_type"`
	Confidence       string   `json:"confidence"` // high | medium_high | medium | low
	NewsWarning      string   `json:"news_warning,omitempty"`
	CounterTrend     bool     `json:"counter_trend"`
	H1Trend          string   `json:"h1_trend"`
	D1Trend          string   `json:"d1_trend"`
	H4Trend          string   `json:"h4_trend"`
	TrendAlignment   string   `json:"trend_alignment"` // e.g. "4/4 bearish"
	PriceZone        string   `json:"price_zone"`
	EntryDistPips    float64  `json:"entry_distance_pips"`
	EntryStatus      string   `json:"entry_status"` // at_zone | approaching | requires_pullback
	NegativeFactors  []string `json:"negative_factors"`
	ChecklistScore   string   `json:"checklist_score"` // e.g. "10/12"
}

// AnalysisResult is the full output of one analysis pipeline run.
type AnalysisResult struct {
	Symbol              string       `json:"symbol"`
	Digits              int          `json:"digits"`
	Setups              []TradeSetup `json:"setups"`
	H1TrendAnalysis     string       `json:"h1_trend_analysis"`
	MarketSummary       string       `json:"market_summary"`
	PrimaryScenario     string       `json:"primary_scenario"`
	AlternativeScenario string       `json:"alternative_scenario"`
	FundamentalBias     string       `json:"fundamental_bias"`
	UpcomingEvents      []string     `json:"upcoming_events"`
	RawResponse         string       `json:"raw_response"`
}

// ScreenerResult is the compact verdict of the cheap screening tier.
type ScreenerResult struct {
	HasSetup      bool   `json:"has_setup"`
	Reasoning     string `json:"reasoning"`
	H1Trend       string `json:"h1_trend"`
	MarketSummary string `json:"market_summary"`
}

// Watch status values.
const (
	WatchStatusWatching  = "watching"
	WatchStatusConfirmed = "confirmed"
	WatchStatusRejected  = "rejected"
	WatchStatusExpired   = "expired"
)

// WatchTrade is the active candidacy for one symbol. Mutated only by the
// watch registry; everyone else gets copies.
type WatchTrade struct {
	ID                string   `json:"id"`
	Symbol            string   `json:"symbol"`
	Bias              string   `json:"bias"`
	EntryMin          float64  `json:"entry_min"`
	EntryMax          float64  `json:"entry_max"`
	StopLoss          float64  `json:"stop_loss"`
	TP1               float64  `json:"tp1"`
	TP2               float64  `json:"tp2"`
	SLPips            float64  `json:"sl_pips"`
	Confidence        string   `json:"confidence"`
	Confluence        []string `json:"confluence"` // at most 3 kept for the confirmation prompt
	ChecklistScore    string   `json:"checklist_score"`
	TP1ClosePct       float64  `json:"tp1_close_pct"`
	CreatedAt         float64  `json:"created_at"` // unix seconds
	MaxConfirmations  int      `json:"max_confirmations"`
	ConfirmationsUsed int      `json:"confirmations_used"`
	Status            string   `json:"status"`
}

// PendingTrade is an approved instruction broadcast on the hand-off
// queue for the TTL window. It keeps the id of the watch it came from so
// terminals can de-duplicate.
type PendingTrade struct {
	ID          string  `json:"id"`
	Symbol      string  `json:"symbol"`
	Bias        string  `json:"bias"`
	EntryMin    float64 `json:"entry_min"`
	EntryMax    float64 `json:"entry_max"`
	StopLoss    float64 `json:"stop_loss"`
	TP1         float64 `json:"tp1"`
	TP2         float64 `json:"tp2"`
	SLPips      float64 `json:"sl_pips"`
	Confidence  string  `json:"confidence"`
	TP1ClosePct float64 `json:"tp1_close_pct"`
	QueuedAt    float64 `json:"queued_at"` // unix seconds
}

// TradeExecutionReport is the terminal's confirmation after placing the
// order(s).
type TradeExecutionReport struct {
	TradeID      string  `json:"trade_id"`
	Symbol       string  `json:"symbol"`
	TicketTP1    int64   `json:"ticket_tp1"`
	TicketTP2    int64   `json:"ticket_tp2"`
	LotsTP1      float64 `json:"lots_tp1"`
	LotsTP2      float64 `json:"lots_tp2"`
	ActualEntry  float64 `json:"actual_entry"`
	ActualSL     float64 `json:"actual_sl"`
	ActualTP1    float64 `json:"actual_tp1"`
	ActualTP2    float64 `json:"actual_tp2"`
	Status       string  `json:"status"` // "executed", "pending" or "failed"
	ErrorMessage string  `json:"error_message"`
}

// TradeCloseReport is the terminal's report when one leg of a position
// closes.
type TradeCloseReport struct {
	TradeID    string  `json:"trade_id"`
	Symbol     string  `json:"symbol"`
	Ticket     int64   `json:"ticket"`
	ClosePrice float64 `json:"close_price"`
	Reason     string  `json:"reason"` // "tp1", "tp2", "sl", "cancelled", "manual"
	Profit     float64 `json:"profit"`
}

// ScanMetadata records the most recent completed full analysis per symbol.
type ScanMetadata struct {
	Symbol   string
	ScanTime time.Time
	ScanDate string // local date, YYYY-MM-DD
}

// Bundle is the in-memory copy of the most recent analysis submission
// for one symbol: the screenshots by timeframe tag plus the market
// snapshot they were captured with.
type Bundle struct {
	Symbol      string
	Screenshots map[string][]byte
	Market      MarketData
	ReceivedAt  time.Time
}
