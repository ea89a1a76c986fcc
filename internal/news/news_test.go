package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedFixture = `[
	{"title":"BoE Official Bank Rate","country":"GBP","date":"2026-08-24T12:00:00+01:00","impact":"High"},
	{"title":"BOJ Press Conference","country":"JPY","date":"2026-08-24T07:30:00+01:00","impact":"High"},
	{"title":"German Ifo Business Climate","country":"EUR","date":"2026-08-24T10:00:00+02:00","impact":"Medium"},
	{"title":"Nonfarm Payrolls","country":"USD","date":"2026-08-28T14:30:00+02:00","impact":"High"},
	{"title":"Broken entry","country":"USD","date":"not-a-date","impact":"High"}
]`

func newTestService(t *testing.T, clock time.Time) (*Service, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(feedFixture))
	}))
	t.Cleanup(srv.Close)

	s := NewService(zerolog.Nop())
	s.url = srv.URL
	s.now = func() time.Time { return clock }
	return s, &hits
}

func TestHighImpactWithin(t *testing.T) {
	// The BoE event is at 12:00+01:00 = 11:00 UTC; probe one minute after.
	now := time.Date(2026, 8, 24, 11, 1, 0, 0, time.UTC)
	s, _ := newTestService(t, now)

	event := s.HighImpactWithin(context.Background(), []string{"GBP", "JPY"}, 2*time.Minute, now)
	require.NotNil(t, event)
	assert.Equal(t, "BoE Official Bank Rate", event.Title)
	assert.Equal(t, "GBP", event.Currency)

	// Same instant, but the pair's currencies don't include GBP.
	assert.Nil(t, s.HighImpactWithin(context.Background(), []string{"EUR", "USD"}, 2*time.Minute, now))

	// Outside the window.
	later := now.Add(10 * time.Minute)
	assert.Nil(t, s.HighImpactWithin(context.Background(), []string{"GBP"}, 2*time.Minute, later))
}

func TestHighImpactWithin_MediumImpactIgnored(t *testing.T) {
	// The Ifo event (medium) is at 10:00+02:00 = 08:00 UTC.
	now := time.Date(2026, 8, 24, 8, 0, 0, 0, time.UTC)
	s, _ := newTestService(t, now)

	assert.Nil(t, s.HighImpactWithin(context.Background(), []string{"EUR"}, 2*time.Minute, now))
}

func TestUpcoming(t *testing.T) {
	now := time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)
	s, _ := newTestService(t, now)

	events := s.Upcoming(context.Background(), []string{"GBP", "JPY", "USD"}, 24, now)
	require.Len(t, events, 2)
	// Soonest first.
	assert.Equal(t, "BOJ Press Conference", events[0].Title)
	assert.Equal(t, "BoE Official Bank Rate", events[1].Title)
}

func TestSnapshot_CachedBetweenCalls(t *testing.T) {
	now := time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)
	s, hits := newTestService(t, now)

	ctx := context.Background()
	s.Upcoming(ctx, []string{"GBP"}, 24, now)
	s.Upcoming(ctx, []string{"GBP"}, 24, now)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	// Past the refresh interval the feed is fetched again.
	s.now = func() time.Time { return now.Add(refreshInterval + time.Minute) }
	s.Upcoming(ctx, []string{"GBP"}, 24, now)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}
