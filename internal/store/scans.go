package store

import (
	"database/sql"
	"fmt"
	"time"
)

// RecordScanCompleted updates scan metadata for the symbol. The date is
// stored separately so the missed-scan check can compare local days.
func (s *Store) RecordScanCompleted(symbol string, ts time.Time, localDate string) error {
	_, err := s.exec(
		`INSERT OR REPLACE INTO scan_metadata (symbol, scan_time, scan_date) VALUES (?, ?, ?)`,
		symbol, ts.UTC().Format(time.RFC3339), localDate)
	if err != nil {
		return fmt.Errorf("failed to record scan for %s: %w", symbol, err)
	}
	return nil
}

// LastScan returns the stored (timestamp, local date) pair for symbol,
// or ok=false when the symbol has never been scanned.
func (s *Store) LastScan(symbol string) (ts time.Time, date string, ok bool, err error) {
	var raw string
	err = s.db.QueryRow(
		`SELECT scan_time, scan_date FROM scan_metadata WHERE symbol = ?`, symbol,
	).Scan(&raw, &date)
	if err == sql.ErrNoRows {
		return time.Time{}, "", false, nil
	}
	if err != nil {
		return time.Time{}, "", false, fmt.Errorf("failed to read scan metadata for %s: %w", symbol, err)
	}
	ts, err = time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, "", false, fmt.Errorf("bad scan timestamp for %s: %w", symbol, err)
	}
	return ts, date, true, nil
}

// LogScreening appends one screener verdict.
func (s *Store) LogScreening(symbol string, hasSetup bool, reasoning string) error {
	_, err := s.exec(
		`INSERT INTO screening_log (symbol, has_setup, reasoning, created_at) VALUES (?, ?, ?, ?)`,
		symbol, boolToInt(hasSetup), reasoning, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to log screening for %s: %w", symbol, err)
	}
	return nil
}

// ScreeningStats aggregates screener verdicts over the last N days:
// total screens, pass count and pass rate per symbol.
type ScreeningStats struct {
	Symbol   string  `json:"symbol"`
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	PassRate float64 `json:"pass_rate"`
}

// ScreeningStatsSince returns per-symbol screener aggregates for the
// trailing window.
func (s *Store) ScreeningStatsSince(days int) ([]ScreeningStats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	rows, err := s.db.Query(
		`SELECT symbol, COUNT(*), COALESCE(SUM(has_setup), 0)
		 FROM screening_log WHERE created_at >= ?
		 GROUP BY symbol ORDER BY symbol`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query screening stats: %w", err)
	}
	defer rows.Close()

	var out []ScreeningStats
	for rows.Next() {
		var st ScreeningStats
		if err := rows.Scan(&st.Symbol, &st.Total, &st.Passed); err != nil {
			return nil, fmt.Errorf("failed to scan screening stats: %w", err)
		}
		if st.Total > 0 {
			st.PassRate = float64(st.Passed) / float64(st.Total) * 100
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
