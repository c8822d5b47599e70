package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quotewatch/internal/alerts"
	"quotewatch/internal/market"
	"quotewatch/internal/models"
	"quotewatch/internal/notify"
	"quotewatch/internal/rates"
	"quotewatch/internal/resilience"
	"quotewatch/internal/scheduler"
	"quotewatch/internal/store"
	"quotewatch/internal/tracker"
)

// watchView sits between the tracker and the scheduler: it forwards the
// tracked set and keeps one render subscription per tracked symbol.
type watchView struct {
	sched    *scheduler.Scheduler
	out      *Output
	calendar *market.Calendar
	timeFmt  string

	// base, when set, adds each price converted through the rate cache.
	base      string
	rates     *rates.Cache
	fetchRate rates.Fetcher

	mu   sync.Mutex
	subs map[string]func()

	writeMu sync.Mutex
}

func newWatchView(sched *scheduler.Scheduler, out *Output, calendar *market.Calendar, timeFmt string) *watchView {
	if timeFmt == "" {
		timeFmt = "15:04:05"
	}
	return &watchView{
		sched:    sched,
		out:      out,
		calendar: calendar,
		timeFmt:  timeFmt,
		subs:     make(map[string]func()),
	}
}

// withBase converts every rendered price into base.
func (v *watchView) withBase(base string, cache *rates.Cache, fetch rates.Fetcher) *watchView {
	v.base = strings.ToUpper(strings.TrimSpace(base))
	v.rates = cache
	v.fetchRate = fetch
	return v
}

// Reconcile implements tracker.Reconciler.
func (v *watchView) Reconcile(symbols []string) error {
	if err := v.sched.Reconcile(symbols); err != nil {
		return err
	}

	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for sym, unsub := range v.subs {
		if !want[sym] {
			unsub()
			delete(v.subs, sym)
		}
	}
	for sym := range want {
		if _, ok := v.subs[sym]; !ok {
			v.subs[sym] = v.sched.OnQuoteUpdate(sym, v.render)
		}
	}
	return nil
}

func (v *watchView) render(_ string, q models.Quote) {
	base := v.base
	if v.rates == nil {
		base = ""
	}
	// The cache serves most cycles; a refetch is bounded like a quote fetch.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	view := convertQuote(ctx, v.rates, v.fetchRate, q, base)
	cancel()

	v.writeMu.Lock()
	defer v.writeMu.Unlock()

	if v.out.IsJSON() {
		data, err := json.Marshal(view)
		if err == nil {
			v.out.Println(string(data))
		}
		return
	}

	v.out.Printf("%s  %s%s  %s\n",
		v.out.DimText(q.Timestamp.Local().Format(v.timeFmt)),
		quoteLine(v.out, q),
		baseSuffix(v.out, view, base),
		sessionBadge(v.out, v.calendar.Classify(q.Timestamp)),
	)
}

func (v *watchView) printf(format string, args ...interface{}) {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	v.out.Printf(format, args...)
}

// watchCommand is one parsed line of interactive input.
type watchCommand struct {
	Verb      string
	Symbol    string
	ID        string
	List      string
	Condition models.AlertCondition
	Target    float64
}

// parseWatchCommand parses an interactive command line.
//
//	add SYM [list]
//	rm SYM [list]
//	alert SYM above|below PRICE
//	unalert ID
//	alerts | status | help | quit
func parseWatchCommand(line string) (watchCommand, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return watchCommand{}, nil
	}

	cmd := watchCommand{Verb: strings.ToLower(fields[0])}
	switch cmd.Verb {
	case "add", "rm":
		if len(fields) < 2 || len(fields) > 3 {
			return cmd, fmt.Errorf("usage: %s SYMBOL [list]", cmd.Verb)
		}
		cmd.Symbol = strings.ToUpper(fields[1])
		cmd.List = store.DefaultWatchlist
		if len(fields) == 3 {
			cmd.List = fields[2]
		}
	case "alert":
		if len(fields) != 4 {
			return cmd, fmt.Errorf("usage: alert SYMBOL above|below PRICE")
		}
		cmd.Symbol = strings.ToUpper(fields[1])
		cmd.Condition = models.AlertCondition(strings.ToLower(fields[2]))
		if !cmd.Condition.Valid() {
			return cmd, fmt.Errorf("condition must be above or below, got %q", fields[2])
		}
		target, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return cmd, fmt.Errorf("invalid price %q", fields[3])
		}
		cmd.Target = target
	case "unalert":
		if len(fields) != 2 {
			return cmd, fmt.Errorf("usage: unalert ID")
		}
		cmd.ID = fields[1]
	case "q", "quit", "exit":
		cmd.Verb = "quit"
	case "alerts", "status", "help":
	default:
		return cmd, fmt.Errorf("unknown command %q, type help", fields[0])
	}
	return cmd, nil
}

const watchHelp = `Commands:
  add SYMBOL [list]               add to a watchlist
  rm SYMBOL [list]                remove from a watchlist
  alert SYMBOL above|below PRICE  create a one-shot price alert
  unalert ID                      remove an alert by ID or prefix
  alerts                          list alerts
  status                          show polling state
  quit                            stop watching
`

// watchSession wires the interactive commands to the store and engine.
type watchSession struct {
	store   store.DataStore
	breaker *resilience.Breaker
	engine  *alerts.Engine
	sched   *scheduler.Scheduler
	view    *watchView
	cancel  context.CancelFunc
}

func (s *watchSession) run(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		cmd, err := parseWatchCommand(scanner.Text())
		if err != nil {
			s.view.printf("%s\n", s.view.out.Named("red", err.Error()))
			continue
		}
		if err := s.exec(ctx, cmd); err != nil {
			s.view.printf("%s\n", s.view.out.Named("red", err.Error()))
		}
		if cmd.Verb == "quit" {
			return
		}
	}
}

func (s *watchSession) exec(ctx context.Context, cmd watchCommand) error {
	switch cmd.Verb {
	case "":
		return nil
	case "add":
		return s.store.AddToWatchlist(ctx, cmd.Symbol, cmd.List)
	case "rm":
		return s.store.RemoveFromWatchlist(ctx, cmd.Symbol, cmd.List)
	case "alert":
		a, err := s.engine.Create(ctx, cmd.Symbol, cmd.Condition, cmd.Target)
		if err != nil {
			return err
		}
		s.view.printf("Alert %s created: %s %s %.4g\n", shortID(a.ID), a.Symbol, a.Condition, a.TargetPrice)
	case "unalert":
		id, err := resolveAlertID(ctx, s.store, cmd.ID)
		if err != nil {
			return err
		}
		if err := s.engine.Remove(ctx, id); err != nil {
			return err
		}
		s.view.printf("Alert %s removed\n", shortID(id))
	case "alerts":
		for _, a := range s.engine.Alerts() {
			status := "active"
			if a.Triggered {
				status = "triggered"
			}
			s.view.printf("  %s  %-10s %-6s %-12.6g %s\n", shortID(a.ID), a.Symbol, a.Condition, a.TargetPrice, status)
		}
	case "status":
		for _, e := range s.sched.Snapshot() {
			last := "-"
			if e.LastQuote != nil {
				last = e.LastQuote.Timestamp.Local().Format("15:04:05")
			}
			s.view.printf("  %-10s every %-4s next %s  last %s\n", e.Symbol, e.Cadence, e.NextDue.Local().Format("15:04:05"), last)
		}
		if s.breaker != nil {
			st := s.breaker.Stats()
			s.view.printf("  source %s, %d consecutive failures\n", st.State, st.Failures)
		}
	case "help":
		s.view.printf("%s", watchHelp)
	case "quit":
		s.cancel()
	}
	return nil
}

func newWatchCmd(app *App) *cobra.Command {
	var (
		noInput bool
		base    string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live quotes for the portfolio, watchlists and alerts",
		Long: `Stream live quotes for every tracked symbol until interrupted.

Tracked symbols are the union of portfolio holdings, all watchlists and
symbols with an active alert. Changes made while watching take effect
immediately. Type 'help' for interactive commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			cfg := app.Config
			output := app.output(cmd)

			st, err := app.Store()
			if err != nil {
				return err
			}

			notifier := notify.NewMultiNotifier(cfg.Notifications, app.Logger)
			if cfg.Notifications.Enabled && cfg.Notifications.Terminal.Enabled {
				notifier.AddChannel(notify.NewTerminalChannel(cmd.OutOrStdout(), cfg.Notifications.Terminal.Bell))
			}

			engine := alerts.NewEngine(st, notifier, app.Logger)
			if err := engine.Load(ctx, st); err != nil {
				return err
			}

			if app.Breaker != nil {
				app.Breaker.SetOnStateChange(sourceStateNotifier(notifier, app.Logger))
				defer app.Breaker.SetOnStateChange(nil)
			}

			sched := scheduler.New(cfg.Scheduler, app.Source, app.Calendar, engine, app.Logger)
			view := newWatchView(sched, output, app.Calendar, cfg.Display.TimeFormat).
				withBase(base, app.Rates, app.Source.GetRate)

			tr := tracker.New(st, engine, view, app.Logger)
			if err := tr.Start(ctx); err != nil {
				return err
			}
			defer tr.Stop()

			if !output.IsJSON() {
				n := len(tr.Symbols())
				if n == 0 {
					output.Warning("Nothing to watch yet. Use 'add SYMBOL' or 'quotewatch watchlist add SYMBOL'.")
				} else {
					output.Info("Watching %d symbols, %d active alerts. Ctrl+C to stop.", n, engine.ActiveCount())
				}
			}

			if !noInput {
				session := &watchSession{store: st, breaker: app.Breaker, engine: engine, sched: sched, view: view, cancel: cancel}
				go session.run(ctx, cmd.InOrStdin())
			}

			start := time.Now()
			sched.Run(ctx)
			sched.Wait()
			engine.Wait()

			app.Logger.Info().Dur("duration", time.Since(start)).Msg("Watch stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&noInput, "no-input", false, "disable interactive commands")
	cmd.Flags().StringVar(&base, "base", "", "also show prices converted into this currency")
	return cmd
}

// sourceStateNotifier reports quote source outages and recoveries. Delivery
// runs off the fetching goroutine so a slow webhook never holds a cycle.
func sourceStateNotifier(n *notify.MultiNotifier, logger zerolog.Logger) func(from, to resilience.CircuitState, lastErr error) {
	return func(from, to resilience.CircuitState, lastErr error) {
		msg, ok := notify.SourceStateNotification("quote source", from, to, lastErr)
		if !ok {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := n.Send(ctx, msg); err != nil {
				logger.Error().Err(err).Str("state", string(to)).Msg("Failed to send source notification")
			}
		}()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
