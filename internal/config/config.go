// Package config provides configuration management for quotewatch.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "quotewatch/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Scheduler     SchedulerConfig    `mapstructure:"scheduler"`
	Source        SourceConfig       `mapstructure:"source"`
	Session       SessionConfig      `mapstructure:"session"`
	Rates         RatesConfig        `mapstructure:"rates"`
	Display       DisplayConfig      `mapstructure:"display"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Store         StoreConfig        `mapstructure:"store"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// SchedulerConfig holds polling cadence configuration.
type SchedulerConfig struct {
	Resolution    time.Duration `mapstructure:"resolution"`
	CryptoCadence time.Duration `mapstructure:"crypto_cadence"`
	ActiveCadence time.Duration `mapstructure:"active_cadence"`
	IdleCadence   time.Duration `mapstructure:"idle_cadence"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
}

// SourceConfig holds the quote provider endpoint and its circuit breaker.
type SourceConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// SessionConfig holds the trading calendar.
type SessionConfig struct {
	Timezone    string          `mapstructure:"timezone"` // zone the windows are expressed in
	WeekendDays []string        `mapstructure:"weekend_days"`
	Windows     []WindowConfig  `mapstructure:"windows"`
	Reference   ReferenceConfig `mapstructure:"reference"`
}

// WindowConfig is a named trading window, "HH:MM" bounds.
type WindowConfig struct {
	Name         string `mapstructure:"name"`
	Start        string `mapstructure:"start"`
	End          string `mapstructure:"end"`
	WeekdaysOnly bool   `mapstructure:"weekdays_only"`
}

// ReferenceConfig holds the reference exchange hours used for the session badge.
type ReferenceConfig struct {
	Timezone   string `mapstructure:"timezone"`
	PreOpen    string `mapstructure:"pre_open"`
	Open       string `mapstructure:"open"`
	Close      string `mapstructure:"close"`
	AfterClose string `mapstructure:"after_close"`
}

// RatesConfig holds currency conversion configuration.
type RatesConfig struct {
	TTL          time.Duration `mapstructure:"ttl"`
	BaseCurrency string        `mapstructure:"base_currency"`
}

// DisplayConfig holds the color scheme passed to rendering.
type DisplayConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	UpColor      string `mapstructure:"up_color"`
	DownColor    string `mapstructure:"down_color"`
	TimeFormat   string `mapstructure:"time_format"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Level    string         `mapstructure:"level"` // all, alerts_only, errors_only
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Terminal TerminalConfig `mapstructure:"terminal"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TerminalConfig holds terminal notification configuration.
type TerminalConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Bell    bool `mapstructure:"bell"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  bool   `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/quotewatch"
	}
	return filepath.Join(home, ".config", "quotewatch")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			Resolution:    time.Second,
			CryptoCadence: time.Second,
			ActiveCadence: 5 * time.Second,
			IdleCadence:   30 * time.Second,
			FetchTimeout:  10 * time.Second,
		},
		Source: SourceConfig{
			FailureThreshold: 5,
			Cooldown:         15 * time.Second,
		},
		Session: DefaultSessionConfig(),
		Rates: RatesConfig{
			TTL:          5 * time.Minute,
			BaseCurrency: "USD",
		},
		Display: DisplayConfig{
			ColorEnabled: true,
			UpColor:      "green",
			DownColor:    "red",
			TimeFormat:   "15:04:05",
		},
		Notifications: NotificationConfig{
			Enabled: true,
			Level:   "all",
			Webhook: WebhookConfig{
				Timeout: 10 * time.Second,
			},
			Terminal: TerminalConfig{
				Enabled: true,
				Bell:    true,
			},
		},
		Store: StoreConfig{
			Path: filepath.Join(DefaultConfigDir(), "quotewatch.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  true,
		},
	}
}

// DefaultSessionConfig returns the trading windows, expressed in Beijing time,
// and New York hours for the session badge.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Timezone:    "Asia/Shanghai",
		WeekendDays: []string{"Saturday", "Sunday"},
		Windows: []WindowConfig{
			{Name: "north_america", Start: "21:30", End: "04:00", WeekdaysOnly: true},
			{Name: "east_asia_morning", Start: "09:30", End: "11:30", WeekdaysOnly: true},
			{Name: "east_asia_afternoon", Start: "13:00", End: "15:00", WeekdaysOnly: true},
			{Name: "europe", Start: "15:00", End: "23:30", WeekdaysOnly: true},
		},
		Reference: ReferenceConfig{
			Timezone:   "America/New_York",
			PreOpen:    "04:00",
			Open:       "09:30",
			Close:      "16:00",
			AfterClose: "20:00",
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrConfigInvalid, err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// First run: write a template and keep the defaults.
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUOTEWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("QUOTEWATCH_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("QUOTEWATCH_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Webhook.URL = v
		cfg.Notifications.Webhook.Enabled = true
	}
	if v := os.Getenv("QUOTEWATCH_BASE_CURRENCY"); v != "" {
		cfg.Rates.BaseCurrency = strings.ToUpper(v)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	s := c.Scheduler
	if s.Resolution <= 0 {
		return fmt.Errorf("scheduler.resolution must be positive")
	}
	if s.CryptoCadence < s.Resolution || s.ActiveCadence < s.Resolution || s.IdleCadence < s.Resolution {
		return fmt.Errorf("scheduler cadences must not be shorter than resolution (%s)", s.Resolution)
	}

	if c.Source.FailureThreshold < 0 {
		return fmt.Errorf("source.failure_threshold must not be negative")
	}

	if len(c.Session.WeekendDays) != 2 {
		return fmt.Errorf("session.weekend_days must name exactly two days")
	}
	for _, d := range c.Session.WeekendDays {
		if _, err := ParseWeekday(d); err != nil {
			return err
		}
	}
	for _, w := range c.Session.Windows {
		if _, err := ParseClock(w.Start); err != nil {
			return fmt.Errorf("session window %q: %w", w.Name, err)
		}
		if _, err := ParseClock(w.End); err != nil {
			return fmt.Errorf("session window %q: %w", w.Name, err)
		}
	}
	ref := c.Session.Reference
	for _, hm := range []string{ref.PreOpen, ref.Open, ref.Close, ref.AfterClose} {
		if _, err := ParseClock(hm); err != nil {
			return fmt.Errorf("session.reference: %w", err)
		}
	}

	if c.Rates.TTL <= 0 {
		return fmt.Errorf("rates.ttl must be positive")
	}
	if len(c.Rates.BaseCurrency) != 3 {
		return fmt.Errorf("invalid rates.base_currency: %q", c.Rates.BaseCurrency)
	}

	switch c.Notifications.Level {
	case "", "all", "alerts_only", "errors_only":
	default:
		return fmt.Errorf("invalid notifications.level: %s (must be all, alerts_only or errors_only)", c.Notifications.Level)
	}

	return nil
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(hm string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hm))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q (want HH:MM)", hm)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ParseWeekday parses an English weekday name, case-insensitively.
func ParseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(name)) ||
			strings.EqualFold(d.String()[:3], strings.TrimSpace(name)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", name)
}
