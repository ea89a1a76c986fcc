// Package news tracks the economic calendar. The weekly high-impact
// feed is fetched lazily and cached in memory; the risk gate asks it
// whether a restricted window is open for a pair's currencies.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultFeedURL = "https://nfs.faireconomy.media/ff_calendar_thisweek.json"
	// The feed covers the current week; refetching every few hours picks
	// up schedule revisions without hammering the host.
	refreshInterval = 4 * time.Hour
)

// Event is one calendar entry.
type Event struct {
	Title    string    `json:"title"`
	Currency string    `json:"currency"`
	Impact   string    `json:"impact"`
	Time     time.Time `json:"time"`
}

type feedEvent struct {
	Title   string `json:"title"`
	Country string `json:"country"`
	Date    string `json:"date"`
	Impact  string `json:"impact"`
}

// Service is the cached calendar client.
type Service struct {
	url    string
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	events    []Event
	fetchedAt time.Time
}

// NewService creates a calendar client against the default feed.
func NewService(log zerolog.Logger) *Service {
	return &Service{
		url:    defaultFeedURL,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log.With().Str("client", "news").Logger(),
		now:    time.Now,
	}
}

func (s *Service) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build calendar request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; TradingBot/1.0)")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("calendar fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("calendar feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read calendar feed: %w", err)
	}

	var raw []feedEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("failed to decode calendar feed: %w", err)
	}

	events := make([]Event, 0, len(raw))
	for _, e := range raw {
		ts, err := time.Parse(time.RFC3339, e.Date)
		if err != nil {
			continue
		}
		events = append(events, Event{
			Title:    e.Title,
			Currency: strings.ToUpper(e.Country),
			Impact:   e.Impact,
			Time:     ts,
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })

	s.events = events
	s.fetchedAt = s.now()
	s.log.Info().Int("events", len(events)).Msg("Calendar refreshed")
	return nil
}

// snapshot returns the cached events, refreshing when stale. A failed
// refresh keeps serving the previous snapshot.
func (s *Service) snapshot(ctx context.Context) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.now().Sub(s.fetchedAt) >= refreshInterval {
		if err := s.refresh(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Calendar refresh failed, serving stale data")
		}
	}
	return s.events
}

func isHighImpact(e Event) bool {
	return strings.EqualFold(e.Impact, "high")
}

// HighImpactWithin returns the first high-impact event for any of the
// given currencies inside ±window of now, or nil.
func (s *Service) HighImpactWithin(ctx context.Context, currencies []string, window time.Duration, now time.Time) *Event {
	for _, e := range s.snapshot(ctx) {
		if !isHighImpact(e) || !matchesCurrency(e, currencies) {
			continue
		}
		delta := e.Time.Sub(now)
		if delta < 0 {
			delta = -delta
		}
		if delta <= window {
			ev := e
			return &ev
		}
	}
	return nil
}

// Upcoming returns the high-impact events for the given currencies in
// the next hoursAhead hours, soonest first.
func (s *Service) Upcoming(ctx context.Context, currencies []string, hoursAhead int, now time.Time) []Event {
	horizon := now.Add(time.Duration(hoursAhead) * time.Hour)

	var out []Event
	for _, e := range s.snapshot(ctx) {
		if !isHighImpact(e) || !matchesCurrency(e, currencies) {
			continue
		}
		if e.Time.Before(now) || e.Time.After(horizon) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matchesCurrency(e Event, currencies []string) bool {
	for _, c := range currencies {
		if strings.EqualFold(e.Currency, c) {
			return true
		}
	}
	return false
}
