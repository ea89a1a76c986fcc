package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/manuham/fx-coordinator/internal/archive"
	"github.com/manuham/fx-coordinator/internal/contextcache"
	"github.com/manuham/fx-coordinator/internal/domain"
	"github.com/manuham/fx-coordinator/internal/notify"
	"github.com/manuham/fx-coordinator/internal/pairs"
	"github.com/manuham/fx-coordinator/internal/reliability"
	"github.com/manuham/fx-coordinator/internal/report"
	"github.com/manuham/fx-coordinator/internal/store"
	"github.com/manuham/fx-coordinator/internal/watch"
)

// Notifier is the slice of the messenger the jobs need.
type Notifier interface {
	Send(text string)
}

// WatchExpiryJob expires watches whose kill zone has ended and tells
// the operator. Runs every minute.
type WatchExpiryJob struct {
	Registry *watch.Registry
	Notifier Notifier
	Log      zerolog.Logger
}

func (j *WatchExpiryJob) Name() string { return "watch_expiry" }

func (j *WatchExpiryJob) Run() error {
	expired := j.Registry.ExpireDue(time.Now())
	for _, w := range expired {
		j.Log.Info().Str("symbol", w.Symbol).Str("watch_id", w.ID).Msg("Watch expired")
		j.Notifier.Send(notify.WatchExpiredCard(w))
	}
	return nil
}

// MissedScanJob warns once per symbol per day when the kill zone has
// opened but no scan arrived. The check window is the first half hour
// of each symbol's zone. Runs every minute.
type MissedScanJob struct {
	Store    *store.Store
	Symbols  []string
	Notifier Notifier
	Log      zerolog.Logger

	Now    func() time.Time
	warned map[string]string // symbol -> local date already warned
}

func (j *MissedScanJob) Name() string { return "missed_scan" }

func (j *MissedScanJob) Run() error {
	if j.Now == nil {
		j.Now = time.Now
	}
	if j.warned == nil {
		j.warned = make(map[string]string)
	}

	local := j.Now().In(domain.TradingZone)
	today := local.Format("2006-01-02")

	for _, symbol := range j.Symbols {
		profile := pairs.Get(symbol)
		minutesIn := (local.Hour()-profile.KillZoneStart)*60 + local.Minute()
		if minutesIn < 0 || minutesIn > 30 {
			continue
		}
		if j.warned[symbol] == today {
			continue
		}
		_, date, ok, err := j.Store.LastScan(symbol)
		if err != nil {
			return fmt.Errorf("failed to look up last scan for %s: %w", symbol, err)
		}
		if ok && date == today {
			continue
		}
		j.Log.Warn().Str("symbol", symbol).Msg("Kill zone open with no scan today")
		j.Notifier.Send(notify.MissedScanCard(symbol, profile.KillZoneStart))
		j.warned[symbol] = today
	}
	return nil
}

// StaleTradeJob fails trade rows stuck in a pre-close status for too
// long, usually after a terminal crash. Runs hourly.
type StaleTradeJob struct {
	Store  *store.Store
	MaxAge time.Duration
	Log    zerolog.Logger
}

func (j *StaleTradeJob) Name() string { return "stale_trades" }

func (j *StaleTradeJob) Run() error {
	n, err := j.Store.CleanupStaleOpenTrades(j.MaxAge)
	if err != nil {
		return err
	}
	if n > 0 {
		j.Log.Warn().Int("count", n).Msg("Marked stale open trades as failed")
	}
	return nil
}

// MaintenanceJob prunes old screenshots and stale fundamentals cache
// rows. Runs nightly.
type MaintenanceJob struct {
	Archive       *archive.Store
	Fundamentals  *contextcache.Cache
	RetentionDays int
	Log           zerolog.Logger
}

func (j *MaintenanceJob) Name() string { return "maintenance" }

func (j *MaintenanceJob) Run() error {
	if _, err := j.Archive.PruneScreenshots(j.RetentionDays, time.Now()); err != nil {
		return err
	}
	// Fundamentals are daily; anything older than a week is dead weight.
	cutoff := time.Now().In(domain.TradingZone).AddDate(0, 0, -7).Format("2006-01-02")
	return j.Fundamentals.PruneBefore(cutoff)
}

// WeeklySummaryJob pushes the trailing-week digest to the operator.
// Runs Sunday evening before the Asian open.
type WeeklySummaryJob struct {
	Store    *store.Store
	Notifier Notifier
	Log      zerolog.Logger
}

func (j *WeeklySummaryJob) Name() string { return "weekly_summary" }

func (j *WeeklySummaryJob) Run() error {
	stats, err := j.Store.Stats("", 7)
	if err != nil {
		return fmt.Errorf("failed to build weekly stats: %w", err)
	}
	screening, err := j.Store.ScreeningStatsSince(7)
	if err != nil {
		return fmt.Errorf("failed to build screening stats: %w", err)
	}
	j.Notifier.Send(report.WeeklySummary(stats, screening))
	return nil
}

// MonthlyReportJob persists the month-end report shortly after
// rollover and leaves a pointer in the chat.
type MonthlyReportJob struct {
	Reports  *report.Service
	Notifier Notifier
	Log      zerolog.Logger
}

func (j *MonthlyReportJob) Name() string { return "monthly_report" }

func (j *MonthlyReportJob) Run() error {
	r, err := j.Reports.GenerateMonthly(time.Now())
	if err != nil {
		return err
	}
	j.Notifier.Send(fmt.Sprintf(
		"🗓 Monthly report %04d-%02d ready: %d trades, %.0f%% win rate, %+.0f pips. See /public/report/%d/%d.",
		r.Year, r.Month, r.Stats.ClosedTrades, r.Stats.WinRate, r.Stats.TotalPnLPips, r.Year, r.Month))
	return nil
}

// BackupJob ships the nightly archive and rotates old remote copies.
type BackupJob struct {
	Backup *reliability.BackupService
	Log    zerolog.Logger
}

func (j *BackupJob) Name() string { return "backup" }

func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := j.Backup.CreateAndUploadBackup(ctx); err != nil {
		return err
	}
	return j.Backup.RotateOldBackups(ctx)
}
