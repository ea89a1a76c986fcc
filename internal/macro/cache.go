package macro

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/manuham/fx-coordinator/internal/database"
)

// jsonCache stores adapter results as JSON rows with a fetch timestamp.
// Reads tolerate every failure: a cache problem just means a re-fetch.
type jsonCache struct {
	db *sql.DB
}

func newJSONCache(db *sql.DB) *jsonCache {
	return &jsonCache{db: db}
}

func (c *jsonCache) init() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS context_cache (
			cache_key TEXT PRIMARY KEY,
			data_json TEXT NOT NULL,
			fetched_at TEXT NOT NULL
		)`)
	return err
}

// get unmarshals the cached row into v when present and fresh enough.
func (c *jsonCache) get(key string, maxAge time.Duration, v interface{}) bool {
	var dataJSON, fetchedAt string
	err := c.db.QueryRow(
		`SELECT data_json, fetched_at FROM context_cache WHERE cache_key = ?`, key,
	).Scan(&dataJSON, &fetchedAt)
	if err != nil {
		return false
	}

	fetched, err := time.Parse(time.RFC3339, fetchedAt)
	if err != nil {
		return false
	}
	if time.Since(fetched) > maxAge {
		return false
	}

	return json.Unmarshal([]byte(dataJSON), v) == nil
}

func (c *jsonCache) set(key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = database.ExecRetry(c.db,
		`INSERT OR REPLACE INTO context_cache (cache_key, data_json, fetched_at) VALUES (?, ?, ?)`,
		key, string(data), time.Now().UTC().Format(time.RFC3339))
}
