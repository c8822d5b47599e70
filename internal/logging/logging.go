// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration. Logs go to a
// rotated file so they never interleave with the live quote stream.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		File:       true,
		FilePath:   filepath.Join(home, ".config", "quotewatch", "logs", "quotewatch.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLoggerWithConfig creates a logger writing to the console, a rotated
// file, or both. The console writer uses stderr because stdout carries
// quotes and --json output. With neither enabled, or when the log directory
// cannot be created, it falls back to stderr.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.TimeOnly,
			NoColor:    os.Getenv("NO_COLOR") != "",
		})
	}

	if cfg.File && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stderr
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Str("app", "quotewatch").
		Logger()
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithComponent adds a component name to the logger context.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// LogQuote logs a dispatched quote at debug level; at 1s crypto cadence
// anything louder floods the file.
func LogQuote(logger zerolog.Logger, symbol string, price, changePercent float64, cadence time.Duration) {
	logger.Debug().
		Str("event", "quote").
		Str("symbol", symbol).
		Float64("price", price).
		Float64("change_percent", changePercent).
		Dur("cadence", cadence).
		Msg("Quote updated")
}

// LogAlert logs an alert trigger.
func LogAlert(logger zerolog.Logger, alertID, symbol, condition string, target, price float64) {
	logger.Info().
		Str("event", "alert").
		Str("alert_id", alertID).
		Str("symbol", symbol).
		Str("condition", condition).
		Float64("target", target).
		Float64("price", price).
		Msg("Alert triggered")
}

// LogFetchFailure logs a failed quote source call.
func LogFetchFailure(logger zerolog.Logger, symbol string, duration time.Duration, err error) {
	logger.Warn().
		Str("event", "fetch").
		Str("symbol", symbol).
		Dur("duration", duration).
		Err(err).
		Msg("Quote fetch failed, keeping last quote")
}

// LogRateFallback logs that a value is shown in its original currency.
func LogRateFallback(logger zerolog.Logger, from, to string, err error) {
	logger.Warn().
		Str("event", "rate_fallback").
		Str("from", from).
		Str("to", to).
		Err(err).
		Msg("Exchange rate unavailable, showing original currency")
}

// LogAPICall logs a request to the quote provider.
func LogAPICall(logger zerolog.Logger, method, endpoint string, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "api_call").
		Str("method", method).
		Str("endpoint", endpoint).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("API call failed")
	} else {
		event.Msg("API call completed")
	}
}
