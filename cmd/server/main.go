package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/manuham/fx-coordinator/internal/analysis"
	"github.com/manuham/fx-coordinator/internal/archive"
	"github.com/manuham/fx-coordinator/internal/config"
	"github.com/manuham/fx-coordinator/internal/contextcache"
	"github.com/manuham/fx-coordinator/internal/database"
	"github.com/manuham/fx-coordinator/internal/domain"
	"github.com/manuham/fx-coordinator/internal/llm"
	"github.com/manuham/fx-coordinator/internal/macro"
	"github.com/manuham/fx-coordinator/internal/news"
	"github.com/manuham/fx-coordinator/internal/notify"
	"github.com/manuham/fx-coordinator/internal/pairs"
	"github.com/manuham/fx-coordinator/internal/queue"
	"github.com/manuham/fx-coordinator/internal/reliability"
	"github.com/manuham/fx-coordinator/internal/report"
	"github.com/manuham/fx-coordinator/internal/risk"
	"github.com/manuham/fx-coordinator/internal/scheduler"
	"github.com/manuham/fx-coordinator/internal/server"
	"github.com/manuham/fx-coordinator/internal/store"
	"github.com/manuham/fx-coordinator/internal/watch"
	"github.com/manuham/fx-coordinator/pkg/logger"
)

const maxConfirmationAttempts = 3

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{Level: "info"})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)
	log.Info().Str("data_dir", cfg.DataDir).Strs("pairs", cfg.ActivePairs).Msg("Starting FX coordinator")

	// Durable trade log and the daily context cache live in separate
	// files so cache churn never touches trade history.
	tradesDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "trades.db"),
		Profile: database.ProfileStandard,
		Name:    "trades",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open trades database")
	}
	defer tradesDB.Close()

	contextDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "context.db"),
		Profile: database.ProfileCache,
		Name:    "context_cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open context database")
	}
	defer contextDB.Close()

	st := store.New(tradesDB, log)
	if err := st.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize trade store")
	}

	fundamentals := contextcache.New("fundamentals", contextDB, log)
	if err := fundamentals.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize fundamentals cache")
	}

	macroSvc := macro.NewService(contextDB, macro.Config{
		APINinjasKey: cfg.APINinjasKey,
		FREDAPIKey:   cfg.FREDAPIKey,
	}, log)
	if err := macroSvc.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize macro service")
	}

	// Startup recovery: fail anything the terminal abandoned, then
	// reload the watches that survived the restart.
	if n, err := st.CleanupStaleOpenTrades(cfg.StaleTradeMaxAge); err != nil {
		log.Error().Err(err).Msg("Stale trade cleanup failed")
	} else if n > 0 {
		log.Warn().Int("count", n).Msg("Marked stale open trades as failed on startup")
	}

	registry := watch.NewRegistry(st, maxConfirmationAttempts, log)
	if err := registry.Seed(); err != nil {
		log.Error().Err(err).Msg("Failed to restore persisted watches")
	}

	llmClient := llm.NewClient(cfg.AnthropicAPIKey, log)
	if !llmClient.Configured() {
		log.Warn().Msg("No Anthropic API key; analysis degrades to screener fail-open defaults")
	}

	engine := analysis.NewEngine(llmClient, analysis.Config{
		ScreenerModel: cfg.ScreenerModel,
		AnalysisModel: cfg.AnalysisModel,
		ConfirmModel:  cfg.ConfirmModel,
	}, st, macroSvc, fundamentals, log)

	arch, err := archive.New(cfg.DataDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize archive")
	}
	reports, err := report.NewService(st, cfg.DataDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize report service")
	}

	calendar := news.NewService(log)
	gate := risk.NewGate(st, calendar, risk.Config{
		MaxDailyDrawdownPct: cfg.MaxDailyDrawdownPct,
		MaxOpenTrades:       cfg.MaxOpenTrades,
		NewsWindow:          time.Duration(cfg.NewsWindowMinutes) * time.Minute,
	}, log)

	notifier := notify.NewClient(cfg.TelegramBotToken, cfg.TelegramChatID, log)
	q := queue.New(cfg.PendingTradeTTL, log)

	srv := server.New(server.Deps{
		Config:   cfg,
		Log:      log,
		Store:    st,
		Engine:   engine,
		Registry: registry,
		Queue:    q,
		Gate:     gate,
		Notifier: notifier,
		Archive:  arch,
		Reports:  reports,
		Calendar: calendar,
		Macro:    macroSvc,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := notify.NewListener(notifier, srv.HandleCommand, srv.HandleCallback, log)
	go listener.Run(ctx)

	sched := scheduler.New(log)
	if err := registerJobs(sched, cfg, log, st, registry, notifier, arch, fundamentals, reports); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()
	defer sched.Stop()

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Coordinator started")
	notifier.Send("🟢 Coordinator online. /help for commands.")
	alertMissedScans(cfg, st, notifier, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Coordinator stopped")
}

// alertMissedScans warns right after a restart when a kill zone is
// already open but no scan has arrived today. The minute tick only
// checks the first half hour of each zone, which a restart can miss.
func alertMissedScans(cfg *config.Config, st *store.Store, notifier *notify.Client, log zerolog.Logger) {
	local := time.Now().In(domain.TradingZone)
	today := local.Format("2006-01-02")
	for _, symbol := range cfg.ActivePairs {
		p := pairs.Get(symbol)
		if local.Hour() < p.KillZoneStart || local.Hour() >= p.KillZoneEnd {
			continue
		}
		_, date, ok, err := st.LastScan(symbol)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("Failed to check last scan")
			continue
		}
		if !ok || date != today {
			notifier.Send(notify.MissedScanCard(symbol, p.KillZoneStart))
		}
	}
}

func registerJobs(
	sched *scheduler.Scheduler,
	cfg *config.Config,
	log zerolog.Logger,
	st *store.Store,
	registry *watch.Registry,
	notifier *notify.Client,
	arch *archive.Store,
	fundamentals *contextcache.Cache,
	reports *report.Service,
) error {
	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{"* * * * *", &scheduler.WatchExpiryJob{Registry: registry, Notifier: notifier, Log: log}},
		{"* * * * *", &scheduler.MissedScanJob{Store: st, Symbols: cfg.ActivePairs, Notifier: notifier, Log: log}},
		{"@hourly", &scheduler.StaleTradeJob{Store: st, MaxAge: cfg.StaleTradeMaxAge, Log: log}},
		{"0 3 * * *", &scheduler.MaintenanceJob{
			Archive: arch, Fundamentals: fundamentals,
			RetentionDays: cfg.ScreenshotRetentionDays, Log: log,
		}},
		{"0 19 * * SUN", &scheduler.WeeklySummaryJob{Store: st, Notifier: notifier, Log: log}},
		{"0 8 1 * *", &scheduler.MonthlyReportJob{Reports: reports, Notifier: notifier, Log: log}},
	}

	if cfg.BackupEnabled {
		s3Client, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Endpoint:        cfg.BackupS3Endpoint,
			Bucket:          cfg.BackupS3Bucket,
			AccessKeyID:     cfg.BackupAccessKeyID,
			SecretAccessKey: cfg.BackupSecretAccessKey,
		}, log)
		if err != nil {
			return err
		}
		backup := reliability.NewBackupService(s3Client, cfg.DataDir, log)
		jobs = append(jobs, struct {
			schedule string
			job      scheduler.Job
		}{"0 2 * * *", &scheduler.BackupJob{Backup: backup, Log: log}})
	}

	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			return err
		}
	}
	return nil
}
