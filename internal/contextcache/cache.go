// Package contextcache holds the once-per-day text artifacts of the
// analysis pipeline (macro context, fundamentals summary), keyed by
// (symbol, local date). Entries live in memory with a SQLite mirror so
// a restart does not trigger a second provider call for the same day.
package contextcache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/manuham/fx-coordinator/internal/database"
)

// Cache is one named text cache (e.g. "fundamentals").
type Cache struct {
	name string
	db   *sql.DB
	log  zerolog.Logger

	mu  sync.RWMutex
	mem map[string]string // "SYMBOL|date" -> text

	group singleflight.Group
}

// New creates a cache over an open database handle.
func New(name string, db *database.DB, log zerolog.Logger) *Cache {
	return &Cache{
		name: name,
		db:   db.Conn(),
		log:  log.With().Str("component", "contextcache").Str("cache", name).Logger(),
		mem:  make(map[string]string),
	}
}

// NewFromConn creates a cache over a bare connection. Used by tests.
func NewFromConn(name string, conn *sql.DB, log zerolog.Logger) *Cache {
	return &Cache{
		name: name,
		db:   conn,
		log:  log.With().Str("component", "contextcache").Str("cache", name).Logger(),
		mem:  make(map[string]string),
	}
}

// Init creates the backing table.
func (c *Cache) Init() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			symbol TEXT NOT NULL,
			date TEXT NOT NULL,
			content TEXT DEFAULT '',
			created_at TEXT,
			PRIMARY KEY (symbol, date)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create %s cache table: %w", c.name, err)
	}
	return nil
}

func key(symbol, date string) string {
	return symbol + "|" + date
}

// Get returns the cached text for (symbol, date) if present, checking
// memory first and falling back to the persistent mirror.
func (c *Cache) Get(symbol, date string) (string, bool) {
	c.mu.RLock()
	text, ok := c.mem[key(symbol, date)]
	c.mu.RUnlock()
	if ok {
		return text, true
	}

	var content string
	err := c.db.QueryRow(
		`SELECT content FROM entries WHERE symbol = ? AND date = ?`, symbol, date,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", false
	}
	if err != nil {
		c.log.Error().Err(err).Str("symbol", symbol).Msg("Cache read failed")
		return "", false
	}

	c.mu.Lock()
	c.mem[key(symbol, date)] = content
	c.mu.Unlock()
	return content, true
}

// Put stores the text in memory and the mirror. Mirror failures are
// logged; the in-memory copy stays authoritative for this process.
func (c *Cache) Put(symbol, date, text string) {
	c.mu.Lock()
	c.mem[key(symbol, date)] = text
	c.mu.Unlock()

	_, err := database.ExecRetry(c.db,
		`INSERT OR REPLACE INTO entries (symbol, date, content, created_at) VALUES (?, ?, ?, ?)`,
		symbol, date, text, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		c.log.Error().Err(err).Str("symbol", symbol).Msg("Cache mirror write failed")
	}
}

// GetOrFetch returns the cached text for (symbol, date), calling fetch
// at most once per key across concurrent callers. The cache is checked
// again inside the flight so racing callers collapse to one provider
// call.
func (c *Cache) GetOrFetch(ctx context.Context, symbol, date string, fetch func(context.Context) (string, error)) (string, error) {
	if text, ok := c.Get(symbol, date); ok {
		return text, nil
	}

	k := key(symbol, date)
	v, err, _ := c.group.Do(k, func() (interface{}, error) {
		if text, ok := c.Get(symbol, date); ok {
			return text, nil
		}
		text, err := fetch(ctx)
		if err != nil {
			return "", err
		}
		c.Put(symbol, date, text)
		return text, nil
	})
	if err != nil {
		return "", fmt.Errorf("%s fetch for %s failed: %w", c.name, symbol, err)
	}
	return v.(string), nil
}

// PruneBefore drops mirror rows older than the given local date string.
// Old entries are never read again; this keeps the cache file small.
func (c *Cache) PruneBefore(date string) error {
	_, err := database.ExecRetry(c.db, `DELETE FROM entries WHERE date < ?`, date)
	if err != nil {
		return fmt.Errorf("failed to prune %s cache: %w", c.name, err)
	}
	return nil
}
