package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"chatty":  zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	if !cfg.File || cfg.Console || cfg.Level != "info" {
		t.Errorf("sinks = %+v", cfg)
	}
	if cfg.MaxSize != 100 || cfg.MaxBackups != 7 || cfg.MaxAge != 30 {
		t.Errorf("rotation = %d MB, %d backups, %d days; want 100, 7, 30", cfg.MaxSize, cfg.MaxBackups, cfg.MaxAge)
	}
	if filepath.Base(cfg.FilePath) != "quotewatch.log" || filepath.Base(filepath.Dir(cfg.FilePath)) != "logs" {
		t.Errorf("file path = %q", cfg.FilePath)
	}
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "quotewatch.log")
	logger := NewLoggerWithConfig(LogConfig{Level: "info", File: true, FilePath: path, MaxSize: 1})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	LogAlert(logger, "a1", "AAPL", "above", 200, 200.5)
	LogQuote(logger, "AAPL", 200.5, 0.25, 5*time.Second) // debug, filtered

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1:\n%s", len(lines), data)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["event"] != "alert" || entry["app"] != "quotewatch" || entry["target"] != 200.0 {
		t.Errorf("entry = %v", entry)
	}
}

func TestFetchFailureFields(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(zerolog.New(&buf), "scheduler")

	LogFetchFailure(logger, "BTC-USD", 250*time.Millisecond, errors.New("timeout"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["level"] != "warn" || entry["symbol"] != "BTC-USD" || entry["error"] != "timeout" || entry["component"] != "scheduler" {
		t.Errorf("entry = %v", entry)
	}
}
