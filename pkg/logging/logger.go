// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
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

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	level, err := ParseLevel(string(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name. Unknown names are an error.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ForAccount derives a logger tagged with component and account from base.
func ForAccount(base zerolog.Logger, component, account string) zerolog.Logger {
	return base.With().Str("component", component).Str("account", account).Logger()
}

// Log Level Guidelines:
//
// Debug: per-call detail
//   - Discogs requests (resource, page, status, duration)
//   - Quota reconciliation with nothing unusual
//   - Categories skipped because they are fresh
//
// Info: normal operation
//   - Category refreshed, username resolved
//   - Export started, progress every ten pages, export complete
//   - Server startup/shutdown
//
// Warn: degraded but working
//   - Local denials (floor, budget, cooldown)
//   - Categories deferred to the next tick
//   - Failed category refreshes below the failure threshold
//   - Redis mirror errors
//
// Error: needs attention
//   - Quota at the soft floor or exhausted upstream
//   - Category unavailable after repeated failures
//   - Unauthorized token, failed export persistence
//
// Context Fields:
//   - component: ratelimit, client, cache, coordinator, exporter, server
//   - account: configured account name
//   - resource: Discogs resource (identity, collection_folder, wants, ...)
//   - category: cached category name
//   - kind: export kind, job_id: export job
//   - remaining, limit, used: reported quota
//   - retry_after: time until a denied call may succeed
