// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the console writer (default: os.Stderr).
	Output io.Writer

	// File, when set, receives a JSON copy of every event. The file is
	// appended to so consecutive runs share one history.
	File string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. The returned closer releases
// the log file, if any; it is never nil.
func Setup(cfg Config) (zerolog.Logger, io.Closer, error) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05"}
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if dir := filepath.Dir(cfg.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return zerolog.Logger{}, closer, fmt.Errorf("create log dir: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Logger{}, closer, fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, f)
		closer = f
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-call and per-record detail
//   - Portal request issued (endpoint, method, path)
//   - Detail served from cache
//   - Record inserted / updated / unchanged
//
// Info: workflow progress
//   - Harvest workflow start and totals per batch
//   - Pagination progress
//   - Sync summary per entity (inserted, updated, unchanged, skipped)
//   - File picked up / moved to processed
//
// Warn: conditions that lose data but not the run
//   - Portal 401 (token may have expired)
//   - Page failed mid-pagination (partial data kept)
//   - Record skipped for a missing document or key
//   - Record failed and rolled back to its savepoint
//
// Error: conditions that abort a batch or file
//   - Portal request failures (status and body logged)
//   - Broker not found
//   - Store connection or commit failure
//
// Context Fields:
//   - component: emitting package (portal-client, harvester, sync-engine, ...)
//   - run_id: one harvest or sync invocation
//   - broker: broker name the run belongs to
//   - endpoint: portal endpoint template
//   - status: HTTP status code
//   - error_class: client, auth, server, network, decode
//   - entity: customers, proposals, pending_payments, life_products, pension_products
//   - page: page number within a pagination
