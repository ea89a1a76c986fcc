// Package risk gates every trade before it reaches the hand-off queue:
// news restriction, daily drawdown, open-position count and currency
// correlation, checked in that order. Infrastructure failures inside a
// check are logged and skipped; only an explicit rule hit blocks.
package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/manuham/fx-coordinator/internal/news"
	"github.com/manuham/fx-coordinator/internal/pairs"
	"github.com/manuham/fx-coordinator/internal/store"
)

// Rule names, used in logs and operator messages.
const (
	RuleNews        = "news"
	RuleDrawdown    = "drawdown"
	RuleMaxOpen     = "max_open"
	RuleCorrelation = "correlation"
)

// Config carries the gate limits.
type Config struct {
	MaxDailyDrawdownPct float64
	MaxOpenTrades       int
	NewsWindow          time.Duration
}

// Verdict is the gate's decision. Reason is empty when allowed.
type Verdict struct {
	Allowed bool
	Rule    string
	Reason  string
}

func allowed() Verdict { return Verdict{Allowed: true} }

func blocked(rule, reason string) Verdict {
	return Verdict{Allowed: false, Rule: rule, Reason: reason}
}

// Calendar is the slice of the news service the gate needs.
type Calendar interface {
	HighImpactWithin(ctx context.Context, currencies []string, window time.Duration, now time.Time) *news.Event
}

// Gate evaluates the filters.
type Gate struct {
	store *store.Store
	news  Calendar
	cfg   Config
	log   zerolog.Logger
	now   func() time.Time
}

// NewGate wires the gate. calendar may be nil; the news rule is then
// skipped.
func NewGate(st *store.Store, calendar Calendar, cfg Config, log zerolog.Logger) *Gate {
	return &Gate{
		store: st,
		news:  calendar,
		cfg:   cfg,
		log:   log.With().Str("component", "risk").Logger(),
		now:   time.Now,
	}
}

// Check runs all filters for a prospective trade. accountBalance comes
// from the latest market snapshot; zero disables the drawdown rule for
// this call.
func (g *Gate) Check(ctx context.Context, symbol, bias string, accountBalance float64) Verdict {
	profile := pairs.Get(symbol)

	if v := g.checkNews(ctx, profile); !v.Allowed {
		return v
	}
	if v := g.checkDrawdown(accountBalance); !v.Allowed {
		return v
	}

	open, err := g.store.OpenTrades()
	if err != nil {
		g.log.Error().Err(err).Msg("Open trades lookup failed, skipping count and correlation rules")
		return allowed()
	}
	if v := g.checkMaxOpen(open); !v.Allowed {
		return v
	}
	return g.checkCorrelation(symbol, bias, open)
}

func (g *Gate) checkNews(ctx context.Context, profile pairs.Profile) Verdict {
	if g.news == nil {
		return allowed()
	}
	currencies := []string{profile.BaseCurrency, profile.QuoteCurrency}
	event := g.news.HighImpactWithin(ctx, currencies, g.cfg.NewsWindow, g.now())
	if event == nil {
		return allowed()
	}
	g.log.Info().Str("symbol", profile.Symbol).Str("event", event.Title).Msg("Trade blocked by news restriction")
	return blocked(RuleNews, fmt.Sprintf("%s: %s at %s (high impact, ±%s restriction)",
		event.Currency, event.Title, event.Time.Format("15:04 MST"), g.cfg.NewsWindow))
}

func (g *Gate) checkDrawdown(accountBalance float64) Verdict {
	if accountBalance <= 0 {
		return allowed()
	}
	dailyPnL, err := g.store.DailyPnL()
	if err != nil {
		g.log.Error().Err(err).Msg("Daily P&L lookup failed, skipping drawdown rule")
		return allowed()
	}

	loss := -dailyPnL
	if loss < 0 {
		loss = 0
	}
	drawdownPct := loss / accountBalance * 100
	if drawdownPct < g.cfg.MaxDailyDrawdownPct {
		return allowed()
	}
	g.log.Info().Float64("daily_pnl", dailyPnL).Float64("drawdown_pct", drawdownPct).Msg("Trade blocked by daily drawdown")
	return blocked(RuleDrawdown, fmt.Sprintf("daily P&L %+.2f is %.1f%% drawdown, limit %.1f%% of balance %.0f",
		dailyPnL, drawdownPct, g.cfg.MaxDailyDrawdownPct, accountBalance))
}

func (g *Gate) checkMaxOpen(open []*store.TradeRecord) Verdict {
	if len(open) < g.cfg.MaxOpenTrades {
		return allowed()
	}
	symbols := make([]string, len(open))
	for i, t := range open {
		symbols[i] = t.Symbol
	}
	g.log.Info().Int("open", len(open)).Int("max", g.cfg.MaxOpenTrades).Msg("Trade blocked by open-trade cap")
	return blocked(RuleMaxOpen, fmt.Sprintf("%d/%d trades already open (%s)",
		len(open), g.cfg.MaxOpenTrades, strings.Join(symbols, ", ")))
}

// exposure is a directional currency position: long GBPJPY means long
// GBP and short JPY.
type exposure struct {
	currency string
	long     bool
}

func exposures(symbol, bias string) []exposure {
	profile := pairs.Get(symbol)
	long := bias == "long"
	return []exposure{
		{currency: profile.BaseCurrency, long: long},
		{currency: profile.QuoteCurrency, long: !long},
	}
}

// checkCorrelation blocks a trade that would double an existing
// directional currency exposure through a different pair. The same
// symbol never conflicts with itself; the open-trade cap handles that.
func (g *Gate) checkCorrelation(symbol, bias string, open []*store.TradeRecord) Verdict {
	wanted := exposures(symbol, bias)
	for _, t := range open {
		if t.Symbol == symbol {
			continue
		}
		for _, have := range exposures(t.Symbol, t.Bias) {
			for _, want := range wanted {
				if have.currency == want.currency && have.long == want.long {
					direction := "short"
					if want.long {
						direction = "long"
					}
					g.log.Info().
						Str("symbol", symbol).
						Str("conflicts_with", t.Symbol).
						Str("currency", want.currency).
						Msg("Trade blocked by correlation rule")
					return blocked(RuleCorrelation, fmt.Sprintf(
						"open %s %s already carries %s %s exposure",
						t.Symbol, t.Bias, direction, want.currency))
				}
			}
		}
	}
	return allowed()
}
