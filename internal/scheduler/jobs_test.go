package scheduler

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manuham/fx-coordinator/internal/domain"
	"github.com/manuham/fx-coordinator/internal/notify"
	"github.com/manuham/fx-coordinator/internal/store"
	"github.com/manuham/fx-coordinator/internal/watch"
)

type fakeNotifier struct {
	sent []string
}

func (f *fakeNotifier) Send(text string) { f.sent = append(f.sent, text) }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// A second pooled connection would see a different empty in-memory DB.
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })

	s := store.NewFromConn(conn, zerolog.Nop())
	require.NoError(t, s.Init())
	return s
}

func TestMissedScanJob(t *testing.T) {
	st := newTestStore(t)
	notifier := &fakeNotifier{}
	// GBPJPY kill zone starts 08:00 local; 07:10 UTC is 08:10 local.
	clock := time.Date(2026, 8, 24, 7, 10, 0, 0, time.UTC)
	job := &MissedScanJob{
		Store:    st,
		Symbols:  []string{"GBPJPY"},
		Notifier: notifier,
		Log:      zerolog.Nop(),
		Now:      func() time.Time { return clock },
	}

	require.NoError(t, job.Run())
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0], "GBPJPY Missed Scan")

	// Warned once; the next tick stays silent.
	require.NoError(t, job.Run())
	assert.Len(t, notifier.sent, 1)
}

func TestMissedScanJob_ScanArrivedToday(t *testing.T) {
	st := newTestStore(t)
	clock := time.Date(2026, 8, 24, 7, 10, 0, 0, time.UTC)
	today := clock.In(domain.TradingZone).Format("2006-01-02")
	require.NoError(t, st.RecordScanCompleted("GBPJPY", clock.Add(-30*time.Minute), today))

	notifier := &fakeNotifier{}
	job := &MissedScanJob{
		Store:    st,
		Symbols:  []string{"GBPJPY"},
		Notifier: notifier,
		Log:      zerolog.Nop(),
		Now:      func() time.Time { return clock },
	}

	require.NoError(t, job.Run())
	assert.Empty(t, notifier.sent)
}

func TestMissedScanJob_OutsideWindow(t *testing.T) {
	st := newTestStore(t)
	notifier := &fakeNotifier{}
	// 09:45 local is past the first half hour of the zone.
	clock := time.Date(2026, 8, 24, 8, 45, 0, 0, time.UTC)
	job := &MissedScanJob{
		Store:    st,
		Symbols:  []string{"GBPJPY"},
		Notifier: notifier,
		Log:      zerolog.Nop(),
		Now:      func() time.Time { return clock },
	}

	require.NoError(t, job.Run())
	assert.Empty(t, notifier.sent)
}

func TestWatchExpiryJob(t *testing.T) {
	st := newTestStore(t)
	registry := watch.NewRegistry(st, 3, zerolog.Nop())
	registry.Create("GBPJPY", domain.TradeSetup{
		Bias: "short", EntryMin: 185.40, EntryMax: 185.55, ChecklistScore: "10/12",
	})

	notifier := &fakeNotifier{}
	job := &WatchExpiryJob{Registry: registry, Notifier: notifier, Log: zerolog.Nop()}

	// WatchExpiryJob uses the wall clock; drive expiry through the
	// registry directly and check the notification path separately.
	expired := registry.ExpireDue(time.Date(2026, 8, 24, 21, 0, 0, 0, time.UTC))
	require.Len(t, expired, 1)
	for _, w := range expired {
		notifier.Send(notify.WatchExpiredCard(w))
	}
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0], "Watch Expired")

	// Nothing left to expire on the next tick.
	require.NoError(t, job.Run())
	assert.Len(t, notifier.sent, 1)
}

func TestStaleTradeJob(t *testing.T) {
	st := newTestStore(t)
	job := &StaleTradeJob{Store: st, MaxAge: 72 * time.Hour, Log: zerolog.Nop()}
	require.NoError(t, job.Run())
}

func TestWeeklySummaryJob(t *testing.T) {
	st := newTestStore(t)
	notifier := &fakeNotifier{}
	job := &WeeklySummaryJob{Store: st, Notifier: notifier, Log: zerolog.Nop()}

	require.NoError(t, job.Run())
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0], "Weekly Summary")
}
