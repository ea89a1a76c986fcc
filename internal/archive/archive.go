// Package archive persists what the analysis pipeline consumed: chart
// screenshots on disk for later review, and a msgpack snapshot of the
// latest submission per symbol so a restart can still answer re-scan
// requests without waiting for the next terminal push.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/manuham/fx-coordinator/internal/domain"
)

const dateLayout = "2006-01-02"

// Store writes screenshots and bundle snapshots under one data
// directory.
type Store struct {
	screenshotDir string
	snapshotDir   string
	log           zerolog.Logger
}

// New creates the archive directories under dataDir.
func New(dataDir string, log zerolog.Logger) (*Store, error) {
	s := &Store{
		screenshotDir: filepath.Join(dataDir, "screenshots"),
		snapshotDir:   filepath.Join(dataDir, "snapshots"),
		log:           log.With().Str("component", "archive").Logger(),
	}
	for _, dir := range []string{s.screenshotDir, s.snapshotDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}
	return s, nil
}

// SaveBundle archives a submission's screenshots and refreshes the
// symbol's restart snapshot. Screenshot layout:
// screenshots/<date>_<SYMBOL>/<HHMMSS>_<tf>.png
func (s *Store) SaveBundle(b *domain.Bundle) error {
	local := b.ReceivedAt.In(domain.TradingZone)
	dayDir := filepath.Join(s.screenshotDir,
		fmt.Sprintf("%s_%s", local.Format(dateLayout), b.Symbol))
	if err := os.MkdirAll(dayDir, 0755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	stamp := local.Format("150405")
	for tf, img := range b.Screenshots {
		if len(img) == 0 {
			continue
		}
		path := filepath.Join(dayDir, fmt.Sprintf("%s_%s.png", stamp, tf))
		if err := os.WriteFile(path, img, 0644); err != nil {
			return fmt.Errorf("failed to write screenshot %s: %w", path, err)
		}
	}

	return s.saveSnapshot(b)
}

func (s *Store) saveSnapshot(b *domain.Bundle) error {
	data, err := msgpack.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode bundle snapshot: %w", err)
	}
	path := s.snapshotPath(b.Symbol)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write bundle snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadSnapshot returns the last archived bundle for a symbol, or false
// when none has been written yet.
func (s *Store) LoadSnapshot(symbol string) (*domain.Bundle, bool, error) {
	data, err := os.ReadFile(s.snapshotPath(symbol))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read bundle snapshot: %w", err)
	}
	var b domain.Bundle
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return nil, false, fmt.Errorf("failed to decode bundle snapshot: %w", err)
	}
	return &b, true, nil
}

func (s *Store) snapshotPath(symbol string) string {
	return filepath.Join(s.snapshotDir, strings.ToUpper(symbol)+".bundle")
}

// PruneScreenshots removes screenshot day-directories older than the
// retention window and returns how many were deleted.
func (s *Store) PruneScreenshots(retentionDays int, now time.Time) (int, error) {
	cutoff := now.In(domain.TradingZone).AddDate(0, 0, -retentionDays)

	entries, err := os.ReadDir(s.screenshotDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read screenshot directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		// Directory names start with the local date.
		name := entry.Name()
		if len(name) < len(dateLayout) {
			continue
		}
		day, err := time.ParseInLocation(dateLayout, name[:len(dateLayout)], domain.TradingZone)
		if err != nil {
			continue
		}
		if !day.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.screenshotDir, name)); err != nil {
			s.log.Error().Err(err).Str("dir", name).Msg("Failed to prune screenshot directory")
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("Pruned old screenshot directories")
	}
	return removed, nil
}
