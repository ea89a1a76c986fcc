// Package logger builds the process-wide zerolog logger. Every
// component derives its sub-logger from the one returned here, so the
// service tag, level and timestamp format are decided exactly once.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// defaultService tags every log line so aggregated output from the
// coordinator and the terminal stays distinguishable.
const defaultService = "fx-coordinator"

// Config holds logger configuration
type Config struct {
	Level   string // debug, info, warn, error
	Pretty  bool   // Enable pretty console output
	Service string // Service tag on every line; empty means fx-coordinator
}

// New creates a new structured logger
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	service := cfg.Service
	if service == "" {
		service = defaultService
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", service).
		Logger()
}

// SetGlobalLogger sets the package-level logger
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
