package cli

import (
	"time"

	"github.com/spf13/cobra"

	"quotewatch/internal/market"
)

type sessionView struct {
	State         string     `json:"state"`
	AnyActive     bool       `json:"any_market_active"`
	ActiveWindows []string   `json:"active_windows"`
	NextActive    *time.Time `json:"next_active,omitempty"`
	PollCadence   string     `json:"poll_cadence"`
	CheckedAt     time.Time  `json:"checked_at"`
}

func buildSessionView(cal *market.Calendar, active, idle time.Duration, now time.Time) sessionView {
	v := sessionView{
		State:         string(cal.Classify(now)),
		ActiveWindows: []string{},
		CheckedAt:     now,
	}
	for _, w := range cal.ActiveWindows(now) {
		v.ActiveWindows = append(v.ActiveWindows, w.Name)
	}
	v.AnyActive = len(v.ActiveWindows) > 0
	v.PollCadence = idle.String()
	if v.AnyActive {
		v.PollCadence = active.String()
	} else if next, ok := cal.NextActive(now); ok {
		v.NextActive = &next
	}
	return v
}

func newSessionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show the market session badge and open trading windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			now := time.Now()
			v := buildSessionView(app.Calendar, app.Config.Scheduler.ActiveCadence, app.Config.Scheduler.IdleCadence, now)

			if output.IsJSON() {
				return output.JSON(v)
			}

			state := app.Calendar.Classify(now)
			output.Printf("Session:  %s\n", sessionBadge(output, state))
			if v.AnyActive {
				for _, name := range v.ActiveWindows {
					output.Printf("  %s %s\n", output.Named("green", "●"), name)
				}
			} else {
				output.Dim("  No market window open")
				if v.NextActive != nil {
					output.Printf("  Next open: %s (in %s)\n",
						v.NextActive.Local().Format("Mon 15:04"),
						v.NextActive.Sub(now).Round(time.Minute))
				}
			}
			output.Printf("Stocks refresh every %s, crypto every %s\n", v.PollCadence, app.Config.Scheduler.CryptoCadence)

			output.Println()
			table := NewTable(output, "Window", "Hours", "Weekdays only", "Open")
			for _, w := range app.Calendar.Windows() {
				open := ""
				for _, name := range v.ActiveWindows {
					if name == w.Name {
						open = output.Named("green", "yes")
					}
				}
				table.AddRow(w.Name, clock(w.Start)+"-"+clock(w.End), yesNo(w.WeekdaysOnly), open)
			}
			table.Render()
			return nil
		},
	}
}

func clock(minute int) string {
	return time.Date(0, 1, 1, minute/60, minute%60, 0, 0, time.UTC).Format("15:04")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
