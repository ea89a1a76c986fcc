package store

import (
	"fmt"
	"strings"

	"github.com/manuham/fx-coordinator/internal/domain"
)

// PersistWatch upserts the full watch row. Called by the registry on
// every mutation so a restart can resume mid-candidacy.
func (s *Store) PersistWatch(w *domain.WatchTrade) error {
	_, err := s.exec(
		`INSERT OR REPLACE INTO watched_trades
		(id, symbol, bias, entry_min, entry_max, stop_loss, tp1, tp2, sl_pips,
		 confidence, confluence, checklist_score, tp1_close_pct,
		 created_at, max_confirmations, confirmations_used, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Symbol, w.Bias, w.EntryMin, w.EntryMax, w.StopLoss, w.TP1, w.TP2, w.SLPips,
		w.Confidence, strings.Join(w.Confluence, "\n"), w.ChecklistScore, w.TP1ClosePct,
		w.CreatedAt, w.MaxConfirmations, w.ConfirmationsUsed, w.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to persist watch %s: %w", w.ID, err)
	}
	return nil
}

// DeleteWatch removes the persisted row. Called on any terminal status.
func (s *Store) DeleteWatch(id string) error {
	if _, err := s.exec(`DELETE FROM watched_trades WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete watch %s: %w", id, err)
	}
	return nil
}

// UpdateWatchStatus writes just the status and attempt counter.
func (s *Store) UpdateWatchStatus(id, status string, confirmationsUsed int) error {
	_, err := s.exec(
		`UPDATE watched_trades SET status = ?, confirmations_used = ? WHERE id = ?`,
		status, confirmationsUsed, id)
	if err != nil {
		return fmt.Errorf("failed to update watch %s status: %w", id, err)
	}
	return nil
}

// LoadActiveWatches returns all rows still in watching status. Used
// only at start-up to seed the registry.
func (s *Store) LoadActiveWatches() ([]*domain.WatchTrade, error) {
	rows, err := s.db.Query(
		`SELECT id, symbol, bias, entry_min, entry_max, stop_loss, tp1, tp2, sl_pips,
		        confidence, confluence, checklist_score, tp1_close_pct,
		        created_at, max_confirmations, confirmations_used, status
		 FROM watched_trades WHERE status = 'watching'`)
	if err != nil {
		return nil, fmt.Errorf("failed to load active watches: %w", err)
	}
	defer rows.Close()

	var out []*domain.WatchTrade
	for rows.Next() {
		var w domain.WatchTrade
		var confluence string
		if err := rows.Scan(
			&w.ID, &w.Symbol, &w.Bias, &w.EntryMin, &w.EntryMax, &w.StopLoss, &w.TP1, &w.TP2, &w.SLPips,
			&w.Confidence, &confluence, &w.ChecklistScore, &w.TP1ClosePct,
			&w.CreatedAt, &w.MaxConfirmations, &w.ConfirmationsUsed, &w.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan watch row: %w", err)
		}
		if confluence != "" {
			w.Confluence = strings.Split(confluence, "\n")
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}
