// Package store is the durable layer: trade lifecycle rows, persisted
// watches, scan metadata, screener verdicts and post-trade reviews.
// All writes funnel through a retry-on-busy path; in-memory registries
// stay authoritative when a write fails.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/manuham/fx-coordinator/internal/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    bias TEXT NOT NULL,
    confidence TEXT DEFAULT '',
    session TEXT DEFAULT '',

    entry_min REAL DEFAULT 0,
    entry_max REAL DEFAULT 0,
    stop_loss REAL DEFAULT 0,
    tp1 REAL DEFAULT 0,
    tp2 REAL DEFAULT 0,
    sl_pips REAL DEFAULT 0,
    tp1_pips REAL DEFAULT 0,
    tp2_pips REAL DEFAULT 0,
    rr_tp1 REAL DEFAULT 0,
    rr_tp2 REAL DEFAULT 0,

    status TEXT DEFAULT 'queued',
    actual_entry REAL DEFAULT 0,
    ticket_tp1 INTEGER DEFAULT 0,
    ticket_tp2 INTEGER DEFAULT 0,
    lots_tp1 REAL DEFAULT 0,
    lots_tp2 REAL DEFAULT 0,

    tp1_hit INTEGER DEFAULT 0,
    tp2_hit INTEGER DEFAULT 0,
    sl_hit INTEGER DEFAULT 0,
    close_price_tp1 REAL DEFAULT 0,
    close_price_tp2 REAL DEFAULT 0,
    pnl_pips REAL DEFAULT 0,
    pnl_money REAL DEFAULT 0,
    outcome TEXT DEFAULT 'open',

    created_at TEXT,
    executed_at TEXT,
    closed_at TEXT,

    h1_trend TEXT DEFAULT '',
    counter_trend INTEGER DEFAULT 0,
    market_summary TEXT DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
CREATE INDEX IF NOT EXISTS idx_trades_created ON trades(created_at);

CREATE TABLE IF NOT EXISTS watched_trades (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    bias TEXT NOT NULL,
    entry_min REAL DEFAULT 0,
    entry_max REAL DEFAULT 0,
    stop_loss REAL DEFAULT 0,
    tp1 REAL DEFAULT 0,
    tp2 REAL DEFAULT 0,
    sl_pips REAL DEFAULT 0,
    confidence TEXT DEFAULT '',
    confluence TEXT DEFAULT '',
    checklist_score TEXT DEFAULT '',
    tp1_close_pct REAL DEFAULT 0,
    created_at REAL DEFAULT 0,
    max_confirmations INTEGER DEFAULT 3,
    confirmations_used INTEGER DEFAULT 0,
    status TEXT DEFAULT 'watching'
);

CREATE INDEX IF NOT EXISTS idx_watched_symbol ON watched_trades(symbol);

CREATE TABLE IF NOT EXISTS scan_metadata (
    symbol TEXT PRIMARY KEY,
    scan_time TEXT,
    scan_date TEXT
);

CREATE TABLE IF NOT EXISTS screening_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL,
    has_setup INTEGER DEFAULT 0,
    reasoning TEXT DEFAULT '',
    created_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_screening_symbol ON screening_log(symbol);

CREATE TABLE IF NOT EXISTS trade_reviews (
    trade_id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    review TEXT DEFAULT '',
    created_at TEXT
);
`

// migrations are additive column changes applied after the base schema.
// Each runs every start and is skipped when the column already exists.
var migrations = []string{
	`ALTER TABLE trades ADD COLUMN d1_trend TEXT DEFAULT ''`,
	`ALTER TABLE trades ADD COLUMN h4_trend TEXT DEFAULT ''`,
	`ALTER TABLE trades ADD COLUMN trend_alignment TEXT DEFAULT ''`,
	`ALTER TABLE trades ADD COLUMN price_zone TEXT DEFAULT ''`,
	`ALTER TABLE trades ADD COLUMN entry_status TEXT DEFAULT ''`,
	`ALTER TABLE trades ADD COLUMN entry_distance_pips REAL DEFAULT 0`,
	`ALTER TABLE trades ADD COLUMN negative_factors TEXT DEFAULT ''`,
	`ALTER TABLE trades ADD COLUMN checklist_score TEXT DEFAULT ''`,
	`ALTER TABLE trades ADD COLUMN tp1_close_pct REAL DEFAULT 0`,
	`ALTER TABLE trades ADD COLUMN raw_response TEXT DEFAULT ''`,
}

// Store owns the trades database.
type Store struct {
	db  *sql.DB
	log zerolog.Logger

	// Close reports for the two legs of one trade can land in the same
	// tick; the read-modify-write in LogTradeClosed must not interleave.
	closeMu sync.Mutex
}

// New creates a Store over an open database handle.
func New(db *database.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db.Conn(),
		log: log.With().Str("component", "store").Logger(),
	}
}

// NewFromConn creates a Store over a bare connection. Used by tests with
// an in-memory database.
func NewFromConn(conn *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  conn,
		log: log.With().Str("component", "store").Logger(),
	}
}

// Init creates tables and applies additive migrations idempotently.
func (s *Store) Init() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed (%s): %w", m, err)
		}
	}

	s.log.Info().Msg("Store initialized")
	return nil
}

// exec is the serialised write path with busy retries.
func (s *Store) exec(query string, args ...interface{}) (sql.Result, error) {
	return database.ExecRetry(s.db, query, args...)
}
