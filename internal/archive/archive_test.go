package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manuham/fx-coordinator/internal/domain"
)

func testBundle(receivedAt time.Time) *domain.Bundle {
	return &domain.Bundle{
		Symbol: "GBPJPY",
		Screenshots: map[string][]byte{
			"h1": []byte("h1-bytes"),
			"m5": []byte("m5-bytes"),
			"d1": nil, // empty frames are skipped
		},
		Market:     domain.MarketData{Symbol: "GBPJPY", Bid: 185.42},
		ReceivedAt: receivedAt,
	}
}

func TestSaveBundle_WritesScreenshotsAndSnapshot(t *testing.T) {
	s, err := New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	// 23:30 UTC on the 24th is already the 25th on the session clock.
	received := time.Date(2026, 8, 24, 23, 30, 0, 0, time.UTC)
	require.NoError(t, s.SaveBundle(testBundle(received)))

	dayDir := filepath.Join(s.screenshotDir, "2026-08-25_GBPJPY")
	entries, err := os.ReadDir(dayDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "003000_h1.png", entries[0].Name())
	assert.Equal(t, "003000_m5.png", entries[1].Name())

	loaded, ok, err := s.LoadSnapshot("GBPJPY")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "GBPJPY", loaded.Symbol)
	assert.Equal(t, []byte("h1-bytes"), loaded.Screenshots["h1"])
	assert.Equal(t, 185.42, loaded.Market.Bid)
}

func TestLoadSnapshot_MissingSymbol(t *testing.T) {
	s, err := New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	_, ok, err := s.LoadSnapshot("XAUUSD")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPruneScreenshots(t *testing.T) {
	s, err := New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	old := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveBundle(testBundle(old)))
	require.NoError(t, s.SaveBundle(testBundle(recent)))

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	removed, err := s.PruneScreenshots(30, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entries, err := os.ReadDir(s.screenshotDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "2026-08-23")
}
