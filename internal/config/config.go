// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// HTTP surface
	APIKey string // Pre-shared key expected in X-API-Key
	Host   string
	Port   int

	// Model provider
	AnthropicAPIKey string
	ScreenerModel   string
	AnalysisModel   string
	ConfirmModel    string

	// Messenger
	TelegramBotToken string
	TelegramChatID   string

	// Risk management
	MaxDailyDrawdownPct   float64
	MaxOpenTrades         int
	AutoQueueMinChecklist int
	NewsWindowMinutes     int

	// Lifecycle
	PendingTradeTTL         time.Duration
	StaleTradeMaxAge        time.Duration
	ScreenshotRetentionDays int

	// Macro adapters
	APINinjasKey string
	FREDAPIKey   string

	// Backup
	BackupEnabled         bool
	BackupS3Bucket        string
	BackupS3Endpoint      string
	BackupAccessKeyID     string
	BackupSecretAccessKey string

	PublicFeedEnabled bool

	ActivePairs []string
	DataDir     string
	LogLevel    string
	DevMode     bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		APIKey: getEnv("API_KEY", ""),
		Host:   getEnv("HOST", "0.0.0.0"),
		Port:   getEnvAsInt("PORT", 8000),

		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		ScreenerModel:   getEnv("SCREENER_MODEL", "claude-3-5-haiku-latest"),
		AnalysisModel:   getEnv("ANALYSIS_MODEL", "claude-sonnet-4-20250514"),
		ConfirmModel:    getEnv("CONFIRM_MODEL", "claude-3-5-haiku-latest"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		MaxDailyDrawdownPct:   getEnvAsFloat("MAX_DAILY_DRAWDOWN_PCT", 3.0),
		MaxOpenTrades:         getEnvAsInt("MAX_OPEN_TRADES", 2),
		AutoQueueMinChecklist: getEnvAsInt("AUTO_QUEUE_MIN_CHECKLIST", 7),
		NewsWindowMinutes:     getEnvAsInt("NEWS_WINDOW_MINUTES", 2),

		PendingTradeTTL:         time.Duration(getEnvAsInt("PENDING_TRADE_TTL_SECONDS", 60)) * time.Second,
		StaleTradeMaxAge:        time.Duration(getEnvAsInt("STALE_TRADE_MAX_AGE_HOURS", 72)) * time.Hour,
		ScreenshotRetentionDays: getEnvAsInt("SCREENSHOT_RETENTION_DAYS", 30),

		APINinjasKey: getEnv("API_NINJAS_KEY", ""),
		FREDAPIKey:   getEnv("FRED_API_KEY", ""),

		BackupEnabled:         getEnvAsBool("BACKUP_ENABLED", false),
		BackupS3Bucket:        getEnv("BACKUP_S3_BUCKET", ""),
		BackupS3Endpoint:      getEnv("BACKUP_S3_ENDPOINT", ""),
		BackupAccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
		BackupSecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),

		PublicFeedEnabled: getEnvAsBool("PUBLIC_FEED_ENABLED", true),

		ActivePairs: splitPairs(getEnv("ACTIVE_PAIRS", "GBPJPY")),
		DataDir:     absDataDir,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DevMode:     getEnvAsBool("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.BackupEnabled && c.BackupS3Bucket == "" {
		return fmt.Errorf("BACKUP_ENABLED requires BACKUP_S3_BUCKET")
	}
	// Anthropic and Telegram credentials are optional: without them the
	// pipeline degrades per the screener/confirmer edge-case rules and
	// notifications become no-ops.
	return nil
}

// splitPairs parses a comma-separated pair list, normalising to upper case.
func splitPairs(raw string) []string {
	parts := strings.Split(raw, ",")
	pairs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			pairs = append(pairs, p)
		}
	}
	return pairs
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
