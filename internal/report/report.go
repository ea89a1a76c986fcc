// Package report assembles the periodic performance digests: a weekly
// summary pushed to the operator chat and a persisted monthly report
// served over the public feed.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/manuham/fx-coordinator/internal/domain"
	"github.com/manuham/fx-coordinator/internal/store"
)

// MonthlyReport is the persisted month-end digest.
type MonthlyReport struct {
	Year         int                    `json:"year"`
	Month        int                    `json:"month"`
	GeneratedAt  time.Time              `json:"generated_at"`
	Stats        *store.Stats           `json:"stats"`
	Screening    []store.ScreeningStats `json:"screening"`
	PipsStdDev   float64                `json:"pips_std_dev"`
	ProfitFactor float64                `json:"profit_factor"`
	Equity       []EquityPoint          `json:"equity"`
}

// EquityPoint is one step of the cumulative pip curve, in close order.
type EquityPoint struct {
	Date    string  `json:"date"` // local close date
	CumPips float64 `json:"cum_pips"`
}

// Service builds and persists reports.
type Service struct {
	store      *store.Store
	reportsDir string
	log        zerolog.Logger
}

// NewService creates the reports directory under dataDir.
func NewService(st *store.Store, dataDir string, log zerolog.Logger) (*Service, error) {
	dir := filepath.Join(dataDir, "reports")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}
	return &Service{
		store:      st,
		reportsDir: dir,
		log:        log.With().Str("component", "report").Logger(),
	}, nil
}

// GenerateMonthly builds and persists the report for the month that
// just ended. Meant to run shortly after month rollover, so the
// trailing window lines up with the previous calendar month.
func (s *Service) GenerateMonthly(now time.Time) (*MonthlyReport, error) {
	local := now.In(domain.TradingZone)
	prev := local.AddDate(0, -1, 0)
	days := daysInMonth(prev.Year(), prev.Month())

	stats, err := s.store.Stats("", days)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly stats: %w", err)
	}
	screening, err := s.store.ScreeningStatsSince(days)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate screening stats: %w", err)
	}

	pips, grossWin, grossLoss, equity := pipSeries(s.store, days)
	report := &MonthlyReport{
		Year:        prev.Year(),
		Month:       int(prev.Month()),
		GeneratedAt: now.UTC(),
		Stats:       stats,
		Screening:   screening,
		Equity:      equity,
	}
	if len(pips) > 1 {
		report.PipsStdDev = stat.StdDev(pips, nil)
	}
	if grossLoss > 0 {
		report.ProfitFactor = grossWin / grossLoss
	}

	if err := s.save(report); err != nil {
		return nil, err
	}
	s.log.Info().Int("year", report.Year).Int("month", report.Month).Msg("Monthly report generated")
	return report, nil
}

func pipSeries(st *store.Store, days int) (pips []float64, grossWin, grossLoss float64, equity []EquityPoint) {
	trades, err := st.RecentTrades(1000, "")
	if err != nil {
		return nil, 0, 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)

	var closed []*store.TradeRecord
	for _, t := range trades {
		if t.Status != store.StatusClosed || t.CreatedAt < cutoff {
			continue
		}
		closed = append(closed, t)
		pips = append(pips, t.PnLPips)
		if t.PnLPips > 0 {
			grossWin += t.PnLPips
		} else {
			grossLoss += -t.PnLPips
		}
	}

	// Equity curve runs in close order, oldest first.
	sort.Slice(closed, func(i, j int) bool { return closed[i].ClosedAt < closed[j].ClosedAt })
	cum := 0.0
	for _, t := range closed {
		cum += t.PnLPips
		date := t.ClosedAt
		if ts, err := time.Parse(time.RFC3339, t.ClosedAt); err == nil {
			date = ts.In(domain.TradingZone).Format("2006-01-02")
		}
		equity = append(equity, EquityPoint{Date: date, CumPips: cum})
	}
	return pips, grossWin, grossLoss, equity
}

func (s *Service) save(r *MonthlyReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	path := s.path(r.Year, r.Month)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Load returns the raw JSON of a persisted report, or false when none
// exists for that month.
func (s *Service) Load(year, month int) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(year, month))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read report: %w", err)
	}
	return data, true, nil
}

func (s *Service) path(year, month int) string {
	return filepath.Join(s.reportsDir, fmt.Sprintf("%04d-%02d.json", year, month))
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// WeeklySummary renders the operator chat digest for the trailing week.
func WeeklySummary(stats *store.Stats, screening []store.ScreeningStats) string {
	var b strings.Builder
	b.WriteString("📊 Weekly Summary\n")
	b.WriteString(strings.Repeat("━", 20) + "\n")

	if stats.ClosedTrades == 0 {
		b.WriteString("No trades closed this week.\n")
	} else {
		fmt.Fprintf(&b, "Trades: %d closed (%dW / %dL) — %.0f%% win rate\n",
			stats.ClosedTrades, stats.Wins, stats.Losses, stats.WinRate)
		fmt.Fprintf(&b, "Net: %+.0f pips ($%+.2f)\n", stats.TotalPnLPips, stats.TotalPnLMoney)
		if stats.AvgWinPips != 0 || stats.AvgLossPips != 0 {
			fmt.Fprintf(&b, "Avg win: %+.0fp | Avg loss: %+.0fp\n", stats.AvgWinPips, stats.AvgLossPips)
		}

		var symbols []string
		for sym := range stats.PairStats {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)
		for _, sym := range symbols {
			ps := stats.PairStats[sym]
			if ps.Closed == 0 {
				continue
			}
			fmt.Fprintf(&b, "• %s: %d closed, %.0f%% wins, %+.0fp\n", sym, ps.Closed, ps.WinRate, ps.PnLPips)
		}
	}

	if len(screening) > 0 {
		b.WriteString("\nScreener:\n")
		for _, sc := range screening {
			fmt.Fprintf(&b, "• %s: %d scans, %.0f%% passed to full analysis\n", sc.Symbol, sc.Total, sc.PassRate)
		}
	}
	return b.String()
}
