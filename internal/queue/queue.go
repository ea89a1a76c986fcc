// Package queue is the hand-off buffer between a confirmed watch and
// the terminal: one pending trade per symbol, served to every poller
// until the TTL runs out. Eviction is lazy; an expired entry disappears
// on the next read.
package queue

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/manuham/fx-coordinator/internal/domain"
)

// Status is the health-endpoint view of one queued trade.
type Status struct {
	TradeID      string `json:"trade_id"`
	TTLRemaining int    `json:"ttl_remaining"`
}

// Queue holds the pending trades.
type Queue struct {
	ttl time.Duration
	log zerolog.Logger
	now func() time.Time

	mu     sync.Mutex
	trades map[string]*domain.PendingTrade // by symbol
}

// New creates a queue with the given time-to-live per entry.
func New(ttl time.Duration, log zerolog.Logger) *Queue {
	return &Queue{
		ttl:    ttl,
		log:    log.With().Str("component", "queue").Logger(),
		now:    time.Now,
		trades: make(map[string]*domain.PendingTrade),
	}
}

// Publish queues the trade, replacing any earlier entry for the same
// symbol and stamping the TTL clock.
func (q *Queue) Publish(t domain.PendingTrade) {
	t.QueuedAt = float64(q.now().Unix())

	q.mu.Lock()
	q.trades[t.Symbol] = &t
	q.mu.Unlock()

	q.log.Info().
		Str("symbol", t.Symbol).
		Str("id", t.ID).
		Str("bias", t.Bias).
		Dur("ttl", q.ttl).
		Msg("Trade queued for terminal pickup")
}

// Get returns the pending trade for a symbol and its remaining TTL in
// seconds. Entries past their TTL are evicted and reported absent. The
// entry stays queued after a read so every poller inside the window
// sees the same trade.
func (q *Queue) Get(symbol string) (domain.PendingTrade, int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.trades[symbol]
	if !ok {
		return domain.PendingTrade{}, 0, false
	}

	// The window is inclusive: an entry is still served when its age
	// equals the TTL exactly, with zero seconds remaining.
	age := q.now().Unix() - int64(t.QueuedAt)
	remaining := int(q.ttl.Seconds()) - int(age)
	if remaining < 0 {
		delete(q.trades, symbol)
		q.log.Info().Str("symbol", symbol).Str("id", t.ID).Msg("Pending trade expired unclaimed")
		return domain.PendingTrade{}, 0, false
	}
	return *t, remaining, true
}

// Clear drops the pending trade for a symbol, if any. Called when the
// terminal reports execution or the operator cancels.
func (q *Queue) Clear(symbol string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.trades, symbol)
}

// Snapshot returns the live entries for the health endpoint.
func (q *Queue) Snapshot() map[string]Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[string]Status, len(q.trades))
	nowUnix := q.now().Unix()
	for symbol, t := range q.trades {
		remaining := int(q.ttl.Seconds()) - int(nowUnix-int64(t.QueuedAt))
		if remaining < 0 {
			continue
		}
		out[symbol] = Status{TradeID: t.ID, TTLRemaining: remaining}
	}
	return out
}
