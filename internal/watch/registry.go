// Package watch owns the entry-zone candidacies: at most one active
// watch per symbol, bounded confirmation attempts, kill-zone expiry.
// The registry is the only mutator; callers get copies. Every
// transition is persisted so a restart resumes the same watches.
package watch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/manuham/fx-coordinator/internal/domain"
	"github.com/manuham/fx-coordinator/internal/pairs"
	"github.com/manuham/fx-coordinator/internal/store"
)

var (
	// ErrNotFound means no watch exists for the symbol/id pair.
	ErrNotFound = errors.New("watch not found")
	// ErrNotWatching means the watch exists but is no longer active.
	ErrNotWatching = errors.New("watch is not active")
	// ErrExhausted means the confirmation budget was already spent.
	ErrExhausted = errors.New("confirmation attempts exhausted")
)

// Outcome classifies the result of one confirmation attempt.
type Outcome int

const (
	// Confirmed: the watch graduated to a pending trade.
	Confirmed Outcome = iota
	// Denied: attempt consumed, watch stays active.
	Denied
	// Rejected: attempt consumed and the budget is gone.
	Rejected
)

// Registry tracks the active watches.
type Registry struct {
	store            *store.Store
	maxConfirmations int
	log              zerolog.Logger

	mu      sync.Mutex
	watches map[string]*domain.WatchTrade // by symbol
}

// NewRegistry creates an empty registry. Call Seed to restore persisted
// watches after a restart.
func NewRegistry(st *store.Store, maxConfirmations int, log zerolog.Logger) *Registry {
	return &Registry{
		store:            st,
		maxConfirmations: maxConfirmations,
		log:              log.With().Str("component", "watch").Logger(),
		watches:          make(map[string]*domain.WatchTrade),
	}
}

// Seed loads the persisted active watches into memory.
func (r *Registry) Seed() error {
	watches, err := r.store.LoadActiveWatches()
	if err != nil {
		return fmt.Errorf("failed to load persisted watches: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range watches {
		r.watches[w.Symbol] = w
	}
	if len(watches) > 0 {
		r.log.Info().Int("count", len(watches)).Msg("Restored active watches")
	}
	return nil
}

func parseChecklist(score string) int {
	if !strings.Contains(score, "/") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.SplitN(score, "/", 2)[0]))
	if err != nil {
		return 0
	}
	return n
}

// TP1ClosePct derives how much of the position closes at TP1 from the
// checklist score: the stronger the setup, the more is left to run.
func TP1ClosePct(checklistScore string) float64 {
	switch n := parseChecklist(checklistScore); {
	case n >= 10:
		return 40
	case n >= 8:
		return 45
	case n >= 6:
		return 55
	default:
		return 60
	}
}

// Create starts a watch for the setup, replacing any existing watch for
// the symbol. Returns a copy of the new watch.
func (r *Registry) Create(symbol string, setup domain.TradeSetup) domain.WatchTrade {
	confluence := setup.Confluence
	if len(confluence) > 3 {
		confluence = confluence[:3]
	}

	w := &domain.WatchTrade{
		ID:               uuid.New().String()[:8],
		Symbol:           symbol,
		Bias:             setup.Bias,
		EntryMin:         setup.EntryMin,
		EntryMax:         setup.EntryMax,
		StopLoss:         setup.StopLoss,
		TP1:              setup.TP1,
		TP2:              setup.TP2,
		SLPips:           setup.SLPips,
		Confidence:       setup.Confidence,
		Confluence:       append([]string(nil), confluence...),
		ChecklistScore:   setup.ChecklistScore,
		TP1ClosePct:      TP1ClosePct(setup.ChecklistScore),
		CreatedAt:        float64(time.Now().Unix()),
		MaxConfirmations: r.maxConfirmations,
		Status:           domain.WatchStatusWatching,
	}

	r.mu.Lock()
	if old, ok := r.watches[symbol]; ok {
		r.deleteLocked(old, domain.WatchStatusRejected)
	}
	r.watches[symbol] = w
	r.mu.Unlock()

	if err := r.store.PersistWatch(w); err != nil {
		r.log.Error().Err(err).Str("id", w.ID).Msg("Failed to persist watch")
	}
	r.log.Info().
		Str("symbol", symbol).
		Str("id", w.ID).
		Str("bias", w.Bias).
		Str("checklist", w.ChecklistScore).
		Float64("tp1_close_pct", w.TP1ClosePct).
		Msg("Watch started")
	return copyOut(w)
}

// Get returns the active watch for a symbol, if any.
func (r *Registry) Get(symbol string) (domain.WatchTrade, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[symbol]
	if !ok || w.Status != domain.WatchStatusWatching {
		return domain.WatchTrade{}, false
	}
	return copyOut(w), true
}

// Active returns copies of all active watches.
func (r *Registry) Active() []domain.WatchTrade {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.WatchTrade, 0, len(r.watches))
	for _, w := range r.watches {
		if w.Status == domain.WatchStatusWatching {
			out = append(out, copyOut(w))
		}
	}
	return out
}

// CheckActive validates a confirmation request before the (slow) model
// call: the watch must exist under that id, be active, and have budget
// left. A watch found over budget is rejected here.
func (r *Registry) CheckActive(symbol, id string) (domain.WatchTrade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.watches[symbol]
	if !ok || w.ID != id {
		return domain.WatchTrade{}, ErrNotFound
	}
	if w.Status != domain.WatchStatusWatching {
		return copyOut(w), ErrNotWatching
	}
	if w.ConfirmationsUsed >= w.MaxConfirmations {
		r.deleteLocked(w, domain.WatchStatusRejected)
		delete(r.watches, symbol)
		return copyOut(w), ErrExhausted
	}
	return copyOut(w), nil
}

// ResolveAttempt records the verdict of one confirmation attempt. The
// attempt is consumed regardless of the verdict; transient model errors
// must be handled by the caller without calling this.
func (r *Registry) ResolveAttempt(symbol, id string, confirmed bool) (domain.WatchTrade, Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.watches[symbol]
	if !ok || w.ID != id {
		return domain.WatchTrade{}, Denied, ErrNotFound
	}
	if w.Status != domain.WatchStatusWatching {
		return copyOut(w), Denied, ErrNotWatching
	}

	w.ConfirmationsUsed++

	switch {
	case confirmed:
		r.deleteLocked(w, domain.WatchStatusConfirmed)
		delete(r.watches, symbol)
		r.log.Info().Str("symbol", symbol).Str("id", id).Msg("Watch confirmed")
		return copyOut(w), Confirmed, nil

	case w.ConfirmationsUsed >= w.MaxConfirmations:
		r.deleteLocked(w, domain.WatchStatusRejected)
		delete(r.watches, symbol)
		r.log.Info().Str("symbol", symbol).Str("id", id).Msg("Watch rejected, attempts exhausted")
		return copyOut(w), Rejected, nil

	default:
		if err := r.store.UpdateWatchStatus(id, domain.WatchStatusWatching, w.ConfirmationsUsed); err != nil {
			r.log.Error().Err(err).Str("id", id).Msg("Failed to persist attempt count")
		}
		r.log.Info().
			Str("symbol", symbol).
			Str("id", id).
			Int("used", w.ConfirmationsUsed).
			Int("max", w.MaxConfirmations).
			Msg("Confirmation denied, watch stays active")
		return copyOut(w), Denied, nil
	}
}

// ExpireDue expires every active watch whose kill zone has ended at the
// given instant. Returns the expired copies so the caller can notify.
func (r *Registry) ExpireDue(now time.Time) []domain.WatchTrade {
	hour := now.In(domain.TradingZone).Hour()

	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []domain.WatchTrade
	for symbol, w := range r.watches {
		if w.Status != domain.WatchStatusWatching {
			continue
		}
		if hour < pairs.Get(symbol).KillZoneEnd {
			continue
		}
		r.deleteLocked(w, domain.WatchStatusExpired)
		delete(r.watches, symbol)
		expired = append(expired, copyOut(w))
		r.log.Info().Str("symbol", symbol).Str("id", w.ID).Msg("Watch expired, kill zone ended")
	}
	return expired
}

// Dismiss drops the watch for a symbol, if any. Used by the operator's
// dismiss/reset commands.
func (r *Registry) Dismiss(symbol string) (domain.WatchTrade, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.watches[symbol]
	if !ok {
		return domain.WatchTrade{}, false
	}
	r.deleteLocked(w, domain.WatchStatusRejected)
	delete(r.watches, symbol)
	r.log.Info().Str("symbol", symbol).Str("id", w.ID).Msg("Watch dismissed")
	return copyOut(w), true
}

// deleteLocked marks the watch terminal and removes its persisted row.
// Terminal watches never need to survive a restart.
func (r *Registry) deleteLocked(w *domain.WatchTrade, status string) {
	w.Status = status
	if err := r.store.DeleteWatch(w.ID); err != nil {
		r.log.Error().Err(err).Str("id", w.ID).Msg("Failed to delete persisted watch")
	}
}

func copyOut(w *domain.WatchTrade) domain.WatchTrade {
	out := *w
	out.Confluence = append([]string(nil), w.Confluence...)
	return out
}
