// Package macro fetches the external context the screenshots cannot
// show: institutional positioning, retail sentiment, central-bank rate
// differentials and intermarket indicators. Every adapter caches its
// result with its own horizon and tolerates failure; the builder
// composes whatever returned.
package macro

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/manuham/fx-coordinator/internal/database"
)

// Per-adapter cache horizons. Positioning reports update weekly,
// sentiment drifts intraday, rates move at most monthly, intermarket
// data is intraday.
const (
	cotCacheAge         = 24 * time.Hour
	sentimentCacheAge   = 4 * time.Hour
	ratesCacheAge       = 24 * time.Hour
	intermarketCacheAge = 2 * time.Hour
)

// Service is the macro-context fetcher.
type Service struct {
	client       *http.Client
	cache        *jsonCache
	apiNinjasKey string
	fredAPIKey   string
	log          zerolog.Logger
}

// Config holds the optional provider credentials.
type Config struct {
	APINinjasKey string
	FREDAPIKey   string
}

// NewService creates the macro service over the context-cache database.
func NewService(db *database.DB, cfg Config, log zerolog.Logger) *Service {
	return &Service{
		client:       &http.Client{Timeout: 15 * time.Second},
		cache:        newJSONCache(db.Conn()),
		apiNinjasKey: cfg.APINinjasKey,
		fredAPIKey:   cfg.FREDAPIKey,
		log:          log.With().Str("component", "macro").Logger(),
	}
}

// Init creates the cache table.
func (s *Service) Init() error {
	return s.cache.init()
}

// COTEntry is the speculator positioning for one currency's futures.
type COTEntry struct {
	Currency         string `json:"currency"`
	NetSpeculator    int64  `json:"net_speculator"`
	SpecLong         int64  `json:"spec_long"`
	SpecShort        int64  `json:"spec_short"`
	ReportDate       string `json:"report_date"`
	NetChange        int64  `json:"net_change"`
	PositioningShift string `json:"positioning_shift"` // increasing_long | increasing_short | unchanged
}

// COTData pairs base and quote positioning.
type COTData struct {
	Base  *COTEntry `json:"base,omitempty"`
	Quote *COTEntry `json:"quote,omitempty"`
}

// Sentiment is the retail crowd positioning for one pair.
type Sentiment struct {
	Symbol           string  `json:"symbol"`
	PctLong          float64 `json:"pct_long"`
	PctShort         float64 `json:"pct_short"`
	VolLong          int64   `json:"vol_long"`
	VolShort         int64   `json:"vol_short"`
	CrowdBias        string  `json:"crowd_bias"`        // long | short | neutral
	ContrarianSignal string  `json:"contrarian_signal"` // bullish | bearish | neutral
}

// RateDifferential is the carry-trade spread between the two central banks.
type RateDifferential struct {
	BaseCurrency     string  `json:"base_currency"`
	QuoteCurrency    string  `json:"quote_currency"`
	BaseBank         string  `json:"base_bank"`
	QuoteBank        string  `json:"quote_bank"`
	BaseRate         float64 `json:"base_rate"`
	QuoteRate        float64 `json:"quote_rate"`
	HasRates         bool    `json:"has_rates"`
	SpreadBps        int     `json:"spread_bps"`
	CarryTradeStatus string  `json:"carry_trade_status"` // strong | moderate | weakening | minimal
}

// Indicator is one intermarket quote.
type Indicator struct {
	Price            float64 `json:"price"`
	DailyChangePct   float64 `json:"daily_change_pct"`
	FiveDayChangePct float64 `json:"five_day_change_pct"`
	Trend            string  `json:"trend"` // up | down | flat | unknown
}

// Intermarket is the set of pair-relevant indices plus derived signals.
type Intermarket struct {
	Indicators    map[string]Indicator `json:"indicators"`
	RiskSentiment string               `json:"risk_sentiment"` // risk_on | risk_off | mixed
	GoldBias      string               `json:"gold_bias,omitempty"`
}

func carryStatus(spreadBps int) string {
	switch {
	case spreadBps >= 400:
		return "strong"
	case spreadBps >= 250:
		return "moderate"
	case spreadBps >= 100:
		return "weakening"
	default:
		return "minimal"
	}
}
