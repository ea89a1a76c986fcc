// Package pairs holds the static per-symbol configuration table: price
// digits, kill-zone hours, currencies and context-search hints. Unknown
// symbols fall back to inferred defaults.
package pairs

import (
	"fmt"
	"strings"
)

// Profile describes one instrument.
type Profile struct {
	Symbol         string
	Digits         int // decimal digits for price formatting
	TypicalSpread  string
	KeySessions    string
	BaseCurrency   string
	QuoteCurrency  string
	Specialization string
	KillZoneStart  int // local hour, inclusive
	KillZoneEnd    int // local hour, exclusive for new setups
	SearchQueries  []string
	BiasOptions    string // phrasing hint for the fundamental-bias field
}

var profiles = map[string]Profile{
	"GBPJPY": {
		Symbol:         "GBPJPY",
		Digits:         3,
		TypicalSpread:  "2-3 pips",
		KeySessions:    "London Kill Zone (08:00-11:00 MEZ)",
		BaseCurrency:   "GBP",
		QuoteCurrency:  "JPY",
		Specialization: "GBPJPY London Kill Zone — Asian range sweep patterns",
		KillZoneStart:  8,
		KillZoneEnd:    20,
		SearchQueries: []string{
			"GBPJPY forecast today",
			"GBP news today",
			"JPY news today",
			"forex economic calendar today GBP JPY",
		},
		BiasOptions: `"bullish_gbp" or "bearish_gbp" or "neutral"`,
	},
	"EURUSD": {
		Symbol:         "EURUSD",
		Digits:         5,
		TypicalSpread:  "0.5-1.5 pips",
		KeySessions:    "London & NY overlap",
		BaseCurrency:   "EUR",
		QuoteCurrency:  "USD",
		Specialization: "major EUR pairs",
		KillZoneStart:  8,
		KillZoneEnd:    20,
		SearchQueries: []string{
			"EURUSD forecast today",
			"EUR news today",
			"USD news today",
			"forex economic calendar today EUR USD",
		},
		BiasOptions: `"bullish_eur" or "bearish_eur" or "neutral"`,
	},
	"GBPUSD": {
		Symbol:         "GBPUSD",
		Digits:         5,
		TypicalSpread:  "1-2 pips",
		KeySessions:    "London & NY overlap",
		BaseCurrency:   "GBP",
		QuoteCurrency:  "USD",
		Specialization: "major GBP pairs",
		KillZoneStart:  8,
		KillZoneEnd:    20,
		SearchQueries: []string{
			"GBPUSD forecast today",
			"GBP news today",
			"USD news today",
			"forex economic calendar today GBP USD",
		},
		BiasOptions: `"bullish_gbp" or "bearish_gbp" or "neutral"`,
	},
	"XAUUSD": {
		Symbol:         "XAUUSD",
		Digits:         2,
		TypicalSpread:  "2-4 pips",
		KeySessions:    "London & NY overlap",
		BaseCurrency:   "XAU",
		QuoteCurrency:  "USD",
		Specialization: "gold / precious metals",
		KillZoneStart:  8,
		KillZoneEnd:    20,
		SearchQueries: []string{
			"XAUUSD gold forecast today",
			"gold price news today",
			"USD news today",
			"forex economic calendar today USD gold",
		},
		BiasOptions: `"bullish_gold" or "bearish_gold" or "neutral"`,
	},
	"USDJPY": {
		Symbol:         "USDJPY",
		Digits:         3,
		TypicalSpread:  "1-2 pips",
		KeySessions:    "Tokyo & NY overlap",
		BaseCurrency:   "USD",
		QuoteCurrency:  "JPY",
		Specialization: "JPY crosses",
		KillZoneStart:  8,
		KillZoneEnd:    20,
		SearchQueries: []string{
			"USDJPY forecast today",
			"USD news today",
			"JPY news today",
			"forex economic calendar today USD JPY",
		},
		BiasOptions: `"bullish_usd" or "bearish_usd" or "neutral"`,
	},
	"EURJPY": {
		Symbol:         "EURJPY",
		Digits:         3,
		TypicalSpread:  "2-3 pips",
		KeySessions:    "London & Tokyo overlap",
		BaseCurrency:   "EUR",
		QuoteCurrency:  "JPY",
		Specialization: "JPY crosses",
		KillZoneStart:  8,
		KillZoneEnd:    20,
		SearchQueries: []string{
			"EURJPY forecast today",
			"EUR news today",
			"JPY news today",
			"forex economic calendar today EUR JPY",
		},
		BiasOptions: `"bullish_eur" or "bearish_eur" or "neutral"`,
	},
}

// Get returns the profile for symbol, or inferred defaults for unknown
// symbols (digits and spread guessed from the JPY/gold suffix, base and
// quote split at position 3).
func Get(symbol string) Profile {
	symbol = strings.ToUpper(symbol)
	if p, ok := profiles[symbol]; ok {
		return p
	}

	isJPY := strings.HasSuffix(symbol, "JPY")
	isGold := strings.HasPrefix(symbol, "XAU")

	base, quote := symbol, ""
	if len(symbol) >= 6 {
		base, quote = symbol[:3], symbol[3:]
	}

	digits := 5
	spread := "1-2 pips"
	if isJPY {
		digits = 3
		spread = "2-3 pips"
	}
	if isGold {
		digits = 2
		spread = "2-4 pips"
	}

	return Profile{
		Symbol:         symbol,
		Digits:         digits,
		TypicalSpread:  spread,
		KeySessions:    "London & NY overlap",
		BaseCurrency:   base,
		QuoteCurrency:  quote,
		Specialization: "forex pairs",
		KillZoneStart:  8,
		KillZoneEnd:    20,
		SearchQueries: []string{
			fmt.Sprintf("%s forecast today", symbol),
			fmt.Sprintf("%s news today", base),
			fmt.Sprintf("%s news today", quote),
			fmt.Sprintf("forex economic calendar today %s %s", base, quote),
		},
		BiasOptions: fmt.Sprintf(`"bullish_%s" or "bearish_%s" or "neutral"`, strings.ToLower(base), strings.ToLower(base)),
	}
}

// FormatPrice renders a price with the profile's digit count.
func (p Profile) FormatPrice(price float64) string {
	return fmt.Sprintf("%.*f", p.Digits, price)
}

// IsGold reports whether the instrument is a precious-metal pair.
func (p Profile) IsGold() bool {
	return strings.HasPrefix(p.Symbol, "XAU") || strings.HasPrefix(p.Symbol, "XAG")
}
