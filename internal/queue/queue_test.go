package queue

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manuham/fx-coordinator/internal/domain"
)

func testTrade(id string) domain.PendingTrade {
	return domain.PendingTrade{
		ID: id, Symbol: "GBPJPY", Bias: "short",
		EntryMin: 185.40, EntryMax: 185.55, StopLoss: 185.85,
		TP1: 185.10, TP2: 184.70, SLPips: 35,
		Confidence: "high", TP1ClosePct: 40,
	}
}

func TestGet_ServesEveryPollerInsideTTL(t *testing.T) {
	q := New(60*time.Second, zerolog.Nop())
	q.Publish(testTrade("abc12345"))

	for i := 0; i < 3; i++ {
		got, remaining, ok := q.Get("GBPJPY")
		require.True(t, ok)
		assert.Equal(t, "abc12345", got.ID)
		assert.Positive(t, remaining)
	}
}

func TestGet_EvictsAfterTTL(t *testing.T) {
	clock := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	q := New(60*time.Second, zerolog.Nop())
	q.now = func() time.Time { return clock }

	q.Publish(testTrade("abc12345"))

	clock = clock.Add(59 * time.Second)
	_, remaining, ok := q.Get("GBPJPY")
	require.True(t, ok)
	assert.Equal(t, 1, remaining)

	// The window is inclusive: at age exactly equal to the TTL the
	// entry is still handed out, with nothing left on the clock.
	clock = clock.Add(1 * time.Second)
	got, remaining, ok := q.Get("GBPJPY")
	require.True(t, ok, "entry is served while age <= TTL")
	assert.Equal(t, "abc12345", got.ID)
	assert.Equal(t, 0, remaining)

	clock = clock.Add(1 * time.Second)
	_, _, ok = q.Get("GBPJPY")
	assert.False(t, ok)

	// Eviction is permanent, not a transient clock artifact.
	clock = clock.Add(-10 * time.Second)
	_, _, ok = q.Get("GBPJPY")
	assert.False(t, ok)
}

func TestPublish_ReplacesPerSymbol(t *testing.T) {
	q := New(60*time.Second, zerolog.Nop())
	q.Publish(testTrade("first000"))
	q.Publish(testTrade("second00"))

	got, _, ok := q.Get("GBPJPY")
	require.True(t, ok)
	assert.Equal(t, "second00", got.ID)
}

func TestClearAndSnapshot(t *testing.T) {
	q := New(60*time.Second, zerolog.Nop())
	q.Publish(testTrade("abc12345"))

	snap := q.Snapshot()
	require.Contains(t, snap, "GBPJPY")
	assert.Equal(t, "abc12345", snap["GBPJPY"].TradeID)

	q.Clear("GBPJPY")
	_, _, ok := q.Get("GBPJPY")
	assert.False(t, ok)
	assert.Empty(t, q.Snapshot())
}

func TestGet_UnknownSymbol(t *testing.T) {
	q := New(60*time.Second, zerolog.Nop())
	_, _, ok := q.Get("EURUSD")
	assert.False(t, ok)
}
