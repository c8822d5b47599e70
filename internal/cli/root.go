// Package cli provides the command-line interface for quotewatch.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quotewatch/internal/config"
	apperrors "quotewatch/internal/errors"
	"quotewatch/internal/format"
	"quotewatch/internal/logging"
	"quotewatch/internal/market"
	"quotewatch/internal/quotes"
	"quotewatch/internal/rates"
	"quotewatch/internal/resilience"
	"quotewatch/internal/store"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies. The store is opened on first use
// so commands like version work without a database.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Source   quotes.Source
	Breaker  *resilience.Breaker
	Rates    *rates.Cache
	Calendar *market.Calendar
	Scheme   format.Scheme

	storeOnce sync.Once
	store     store.DataStore
	storeErr  error
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	breaker := resilience.NewBreaker("yahoo", resilience.BreakerConfig{
		FailureThreshold: cfg.Source.FailureThreshold,
		Cooldown:         cfg.Source.Cooldown,
	})
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Source:  quotes.NewGuardedSource(quotes.NewYahooSource(cfg.Source.BaseURL, cfg.Scheduler.FetchTimeout, logger), breaker),
		Breaker: breaker,
		Rates:   rates.NewCache(cfg.Rates.TTL, logger),
		Scheme:  format.NewScheme(cfg.Display.UpColor, cfg.Display.DownColor),
	}

	calendar, err := market.NewCalendar(cfg.Session)
	if err != nil {
		logger.Warn().Err(err).Msg("Invalid session calendar, using defaults")
		calendar = market.DefaultCalendar()
	}
	app.Calendar = calendar

	rootCmd := &cobra.Command{
		Use:   "quotewatch",
		Short: "Real-time quote tracker with price alerts",
		Long: `quotewatch keeps a live view of the symbols in your portfolio,
watchlists and alerts.

Quotes refresh every second for crypto pairs, every 5 seconds while any
major market is open and every 30 seconds otherwise. Price alerts fire once
and are delivered through the configured notification channels.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Close()
		},
	}

	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newQuoteCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))
	rootCmd.AddCommand(newSessionCmd(app))
	rootCmd.AddCommand(newAlertCmd(app))
	rootCmd.AddCommand(newWatchlistCmd(app))
	rootCmd.AddCommand(newPortfolioCmd(app))

	return rootCmd
}

// ErrorMessage renders a command error for the terminal. Validation errors
// name the offending input; everything else prints as is.
func ErrorMessage(err error) string {
	var ve *apperrors.ValidationError
	if apperrors.As(err, &ve) {
		return fmt.Sprintf("invalid %s %q: %s", ve.Field, fmt.Sprint(ve.Value), ve.Message)
	}
	return err.Error()
}

// Store opens the SQLite store once.
func (a *App) Store() (store.DataStore, error) {
	a.storeOnce.Do(func() {
		path := a.Config.Store.Path
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			a.storeErr = apperrors.Wrapf(err, "creating data directory %s", filepath.Dir(path))
			return
		}
		a.store, a.storeErr = store.NewSQLiteStore(path)
		if a.storeErr == nil {
			a.Logger.Debug().Str("path", path).Msg("SQLite store initialized")
		}
	})
	return a.store, a.storeErr
}

// Close releases the store if it was opened.
func (a *App) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close store")
		}
	}
}

// output returns an Output carrying the configured color scheme.
func (a *App) output(cmd *cobra.Command) *Output {
	return NewOutput(cmd).WithScheme(a.Scheme, a.Config.Display.ColorEnabled)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("quotewatch v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Scheduler")
	output.Printf("  Resolution:      %s\n", cfg.Scheduler.Resolution)
	output.Printf("  Crypto cadence:  %s\n", cfg.Scheduler.CryptoCadence)
	output.Printf("  Active cadence:  %s\n", cfg.Scheduler.ActiveCadence)
	output.Printf("  Idle cadence:    %s\n", cfg.Scheduler.IdleCadence)
	output.Printf("  Fetch timeout:   %s\n", cfg.Scheduler.FetchTimeout)
	output.Println()

	output.Bold("Source")
	base := cfg.Source.BaseURL
	if base == "" {
		base = "(yahoo default)"
	}
	output.Printf("  Base URL:        %s\n", base)
	output.Printf("  Breaker:         %d failures, %s cooldown\n", cfg.Source.FailureThreshold, cfg.Source.Cooldown)
	output.Println()

	output.Bold("Session")
	output.Printf("  Timezone:        %s\n", cfg.Session.Timezone)
	for _, w := range cfg.Session.Windows {
		output.Printf("  %-16s %s-%s\n", w.Name+":", w.Start, w.End)
	}
	output.Printf("  Reference:       %s %s-%s\n", cfg.Session.Reference.Timezone, cfg.Session.Reference.Open, cfg.Session.Reference.Close)
	output.Println()

	output.Bold("Rates")
	output.Printf("  TTL:             %s\n", cfg.Rates.TTL)
	output.Printf("  Base currency:   %s\n", cfg.Rates.BaseCurrency)
	output.Println()

	output.Bold("Display")
	output.Printf("  Color:           %v\n", cfg.Display.ColorEnabled)
	output.Printf("  Up / Down:       %s / %s\n", cfg.Display.UpColor, cfg.Display.DownColor)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:         %v\n", cfg.Notifications.Enabled)
	output.Printf("  Level:           %s\n", cfg.Notifications.Level)
	output.Printf("  Webhook:         %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Terminal:        %v\n", cfg.Notifications.Terminal.Enabled)
	output.Println()

	output.Bold("Store")
	output.Printf("  Path:            %s\n", cfg.Store.Path)
}
