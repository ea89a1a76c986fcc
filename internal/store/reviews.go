package store

import (
	"fmt"
	"time"
)

// TradeReview is the stored post-trade insight for one closed trade.
type TradeReview struct {
	TradeID   string
	Symbol    string
	Review    string
	CreatedAt string
}

// SaveReview stores the post-trade insight for a trade, replacing any
// earlier one for the same id.
func (s *Store) SaveReview(tradeID, symbol, review string) error {
	_, err := s.exec(
		`INSERT OR REPLACE INTO trade_reviews (trade_id, symbol, review, created_at) VALUES (?, ?, ?, ?)`,
		tradeID, symbol, review, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save review for trade %s: %w", tradeID, err)
	}
	return nil
}

// RecentReviews returns the newest n reviews for a symbol.
func (s *Store) RecentReviews(symbol string, n int) ([]TradeReview, error) {
	rows, err := s.db.Query(
		`SELECT trade_id, symbol, review, created_at FROM trade_reviews
		 WHERE symbol = ? ORDER BY created_at DESC LIMIT ?`, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []TradeReview
	for rows.Next() {
		var r TradeReview
		if err := rows.Scan(&r.TradeID, &r.Symbol, &r.Review, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
