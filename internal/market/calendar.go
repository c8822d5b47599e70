// Package market classifies symbols and decides which trading sessions are open.
//
// The calendar is deliberately coarse: it does not know which exchange a
// symbol trades on. IsAnyMarketActive answers "is any major market trading
// right now" from a fixed table of windows, and Classify produces the badge
// from a single reference exchange's hours.
package market

import (
	"fmt"
	"time"

	"quotewatch/internal/config"
	"quotewatch/internal/models"
)

const minutesPerDay = 24 * 60

// Window is a named trading window in minutes after midnight.
// Start > End means the window wraps midnight.
type Window struct {
	Name         string
	Start        int
	End          int
	WeekdaysOnly bool
}

// Contains reports whether minute falls inside the window. Start is
// inclusive, End exclusive.
func (w Window) Contains(minute int) bool {
	if w.Start <= w.End {
		return minute >= w.Start && minute < w.End
	}
	return minute >= w.Start || minute < w.End
}

// Hours are the reference exchange boundaries in minutes after midnight.
type Hours struct {
	PreOpen    int
	Open       int
	Close      int
	AfterClose int
}

// Calendar evaluates trading windows against wall-clock time.
type Calendar struct {
	location    *time.Location
	refLocation *time.Location
	windows     []Window
	weekend     map[time.Weekday]bool
	hours       Hours
}

// NewCalendar builds a calendar from configuration.
func NewCalendar(cfg config.SessionConfig) (*Calendar, error) {
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	refLoc, err := loadLocation(cfg.Reference.Timezone)
	if err != nil {
		return nil, err
	}

	c := &Calendar{
		location:    loc,
		refLocation: refLoc,
		weekend:     make(map[time.Weekday]bool, 2),
	}

	for _, name := range cfg.WeekendDays {
		d, err := config.ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		c.weekend[d] = true
	}

	for _, wc := range cfg.Windows {
		start, err := config.ParseClock(wc.Start)
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", wc.Name, err)
		}
		end, err := config.ParseClock(wc.End)
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", wc.Name, err)
		}
		c.windows = append(c.windows, Window{
			Name:         wc.Name,
			Start:        start,
			End:          end,
			WeekdaysOnly: wc.WeekdaysOnly,
		})
	}

	ref := cfg.Reference
	bounds := make([]int, 4)
	for i, hm := range []string{ref.PreOpen, ref.Open, ref.Close, ref.AfterClose} {
		m, err := config.ParseClock(hm)
		if err != nil {
			return nil, fmt.Errorf("reference hours: %w", err)
		}
		bounds[i] = m
	}
	c.hours = Hours{PreOpen: bounds[0], Open: bounds[1], Close: bounds[2], AfterClose: bounds[3]}

	return c, nil
}

// DefaultCalendar returns the calendar for config.DefaultSessionConfig.
func DefaultCalendar() *Calendar {
	c, err := NewCalendar(config.DefaultSessionConfig())
	if err != nil {
		panic(err)
	}
	return c
}

// loadLocation falls back to fixed offsets when the tz database is missing.
func loadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	switch name {
	case "Asia/Shanghai":
		return time.FixedZone("CST", 8*60*60), nil
	case "America/New_York":
		return time.FixedZone("EST", -5*60*60), nil
	case "UTC", "":
		return time.UTC, nil
	}
	return nil, fmt.Errorf("loading timezone %q: %w", name, err)
}

// Windows returns a copy of the configured trading windows.
func (c *Calendar) Windows() []Window {
	out := make([]Window, len(c.windows))
	copy(out, c.windows)
	return out
}

// IsWeekend reports whether the weekday is one of the configured weekend days.
func (c *Calendar) IsWeekend(d time.Weekday) bool {
	return c.weekend[d]
}

// IsAnyMarketActive reports whether now falls inside any trading window.
// Weekday-only windows are checked against the window zone's calendar day,
// so the post-midnight tail of a wrapping window is not active on the first
// weekend day.
func (c *Calendar) IsAnyMarketActive(now time.Time) bool {
	return len(c.ActiveWindows(now)) > 0
}

// ActiveWindows returns the windows open at now.
func (c *Calendar) ActiveWindows(now time.Time) []Window {
	t := now.In(c.location)
	minute := t.Hour()*60 + t.Minute()
	weekend := c.weekend[t.Weekday()]

	var active []Window
	for _, w := range c.windows {
		if w.WeekdaysOnly && weekend {
			continue
		}
		if w.Contains(minute) {
			active = append(active, w)
		}
	}
	return active
}

// Classify returns the session badge for now using the reference exchange hours.
func (c *Calendar) Classify(now time.Time) models.SessionState {
	t := now.In(c.refLocation)
	if c.weekend[t.Weekday()] {
		return models.SessionClosed
	}

	minute := t.Hour()*60 + t.Minute()
	switch {
	case minute >= c.hours.Open && minute < c.hours.Close:
		return models.SessionOpen
	case minute >= c.hours.PreOpen && minute < c.hours.Open:
		return models.SessionPreMarket
	case minute >= c.hours.Close && minute < c.hours.AfterClose:
		return models.SessionAfterHours
	default:
		return models.SessionClosed
	}
}

// NextActive returns the first minute at or after now when some window is
// open, searching one week ahead. ok is false when no window ever opens.
func (c *Calendar) NextActive(now time.Time) (next time.Time, ok bool) {
	t := now.Truncate(time.Minute)
	for i := 0; i <= 7*minutesPerDay; i++ {
		if c.IsAnyMarketActive(t) {
			return t, true
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, false
}
