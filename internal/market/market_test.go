package market

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"quotewatch/internal/config"
	"quotewatch/internal/models"
)

var (
	beijing = time.FixedZone("CST", 8*60*60)
	newYork = time.FixedZone("EST", -5*60*60)
)

// 2024-03-06 is a Wednesday; New York is on EST that week.
func bj(day, hour, min int) time.Time {
	return time.Date(2024, 3, day, hour, min, 0, 0, beijing)
}

func ny(day, hour, min int) time.Time {
	return time.Date(2024, 3, day, hour, min, 0, 0, newYork)
}

func TestWindowContains(t *testing.T) {
	plain := Window{Start: 9*60 + 30, End: 11*60 + 30}
	wrap := Window{Start: 21*60 + 30, End: 4 * 60}

	tests := []struct {
		w      Window
		minute int
		want   bool
	}{
		{plain, 9*60 + 30, true},
		{plain, 11*60 + 29, true},
		{plain, 11*60 + 30, false},
		{plain, 9*60 + 29, false},
		{wrap, 21*60 + 30, true},
		{wrap, 23*60 + 59, true},
		{wrap, 0, true},
		{wrap, 3*60 + 59, true},
		{wrap, 4 * 60, false},
		{wrap, 12 * 60, false},
	}
	for _, tt := range tests {
		if got := tt.w.Contains(tt.minute); got != tt.want {
			t.Errorf("%+v.Contains(%d) = %v, want %v", tt.w, tt.minute, got, tt.want)
		}
	}
}

func TestIsAnyMarketActive(t *testing.T) {
	cal := DefaultCalendar()

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"east asia morning", bj(6, 10, 0), true},
		{"east asia lunch break", bj(6, 12, 0), false},
		{"east asia afternoon", bj(6, 14, 0), true},
		{"europe", bj(6, 16, 0), true},
		{"north america evening", bj(6, 23, 45), true},
		{"north america after midnight", bj(7, 2, 0), true},
		{"early morning gap", bj(7, 5, 0), false},
		{"saturday morning", bj(9, 10, 0), false},
		{"saturday after midnight tail", bj(9, 2, 0), false},
		{"sunday evening", bj(10, 22, 0), false},
		{"monday evening", bj(11, 22, 0), true},
		{"utc instant inside morning session", time.Date(2024, 3, 6, 2, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cal.IsAnyMarketActive(tt.now); got != tt.want {
				t.Errorf("IsAnyMarketActive(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestActiveWindowsOverlap(t *testing.T) {
	cal := DefaultCalendar()
	// 15:00 Beijing closes the afternoon session and opens Europe.
	got := cal.ActiveWindows(bj(6, 15, 0))
	if len(got) != 1 || got[0].Name != "europe" {
		t.Errorf("active at 15:00 = %+v", got)
	}
}

func TestClassify(t *testing.T) {
	cal := DefaultCalendar()

	tests := []struct {
		now  time.Time
		want models.SessionState
	}{
		{ny(6, 10, 0), models.SessionOpen},
		{ny(6, 9, 30), models.SessionOpen},
		{ny(6, 9, 29), models.SessionPreMarket},
		{ny(6, 4, 0), models.SessionPreMarket},
		{ny(6, 3, 59), models.SessionClosed},
		{ny(6, 16, 0), models.SessionAfterHours},
		{ny(6, 19, 59), models.SessionAfterHours},
		{ny(6, 20, 0), models.SessionClosed},
		{ny(9, 11, 0), models.SessionClosed},
		{ny(10, 11, 0), models.SessionClosed},
	}
	for _, tt := range tests {
		if got := cal.Classify(tt.now); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.now, got, tt.want)
		}
	}
}

func TestNextActive(t *testing.T) {
	cal := DefaultCalendar()

	// Saturday noon: the first weekday minute is Monday 00:00, inside the
	// north_america tail.
	next, ok := cal.NextActive(bj(9, 12, 0))
	if !ok || !next.Equal(bj(11, 0, 0)) {
		t.Errorf("NextActive = %v, %v; want %v", next, ok, bj(11, 0, 0))
	}

	// Thursday 05:00 waits for the morning session.
	next, ok = cal.NextActive(bj(7, 5, 0))
	if !ok || !next.Equal(bj(7, 9, 30)) {
		t.Errorf("NextActive = %v, %v; want %v", next, ok, bj(7, 9, 30))
	}

	now := bj(6, 10, 0)
	if next, ok := cal.NextActive(now); !ok || !next.Equal(now) {
		t.Errorf("NextActive while open = %v", next)
	}
}

func TestNewCalendarRejectsBadConfig(t *testing.T) {
	cfg := config.DefaultSessionConfig()
	cfg.Windows = append(cfg.Windows, config.WindowConfig{Name: "bad", Start: "25:00", End: "26:00"})
	if _, err := NewCalendar(cfg); err == nil {
		t.Error("expected error for invalid window")
	}

	cfg = config.DefaultSessionConfig()
	cfg.Timezone = "Mars/Olympus"
	if _, err := NewCalendar(cfg); err == nil {
		t.Error("expected error for unknown zone")
	}
}

func TestClassifySymbol(t *testing.T) {
	tests := map[string]models.AssetClass{
		"BTC-USD":   models.AssetCrypto,
		"eth-usd":   models.AssetCrypto,
		"FOO-USD":   models.AssetEquity,
		"BTC-EUR":   models.AssetEquity,
		"^GSPC":     models.AssetIndex,
		"USDCNY=X":  models.AssetFX,
		"AAPL":      models.AssetEquity,
		"600519.SS": models.AssetEquity,
	}
	for sym, want := range tests {
		if got := Classify(sym); got != want {
			t.Errorf("Classify(%q) = %s, want %s", sym, got, want)
		}
	}
}

func TestProperty_WeekendForcesClosed(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	cal := DefaultCalendar()
	properties.Property("every minute of a New York weekend is closed", prop.ForAll(
		func(day, minute int) bool {
			now := time.Date(2024, 3, 9+day, 0, 0, 0, 0, newYork).Add(time.Duration(minute) * time.Minute)
			return cal.Classify(now) == models.SessionClosed
		},
		gen.IntRange(0, 1),
		gen.IntRange(0, 24*60-1),
	))

	properties.Property("weekday-only windows are closed all Saturday in Beijing", prop.ForAll(
		func(minute int) bool {
			return !cal.IsAnyMarketActive(bj(9, 0, 0).Add(time.Duration(minute) * time.Minute))
		},
		gen.IntRange(0, 24*60-1),
	))

	properties.TestingRun(t)
}
