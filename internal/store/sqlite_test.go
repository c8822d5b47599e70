package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	apperrors "quotewatch/internal/errors"
	"quotewatch/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "quotewatch.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestHoldings(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.AddHolding(ctx, models.Holding{Symbol: "aapl", Quantity: 10, CostBasis: 150}); err != nil {
		t.Fatalf("AddHolding: %v", err)
	}
	if err := st.AddHolding(ctx, models.Holding{Symbol: "600519.SS", Quantity: 2, CostBasis: 1600, Currency: "cny"}); err != nil {
		t.Fatalf("AddHolding: %v", err)
	}
	// Re-adding replaces the position.
	if err := st.AddHolding(ctx, models.Holding{Symbol: "AAPL", Quantity: 12, CostBasis: 155}); err != nil {
		t.Fatalf("AddHolding: %v", err)
	}

	holdings, err := st.GetHoldings(ctx)
	if err != nil {
		t.Fatalf("GetHoldings: %v", err)
	}
	if len(holdings) != 2 {
		t.Fatalf("got %d holdings, want 2", len(holdings))
	}
	bySymbol := map[string]models.Holding{}
	for _, h := range holdings {
		bySymbol[h.Symbol] = h
	}
	if h := bySymbol["AAPL"]; h.Quantity != 12 || h.CostBasis != 155 || h.Currency != "USD" {
		t.Errorf("AAPL = %+v", h)
	}
	if h := bySymbol["600519.SS"]; h.Currency != "CNY" {
		t.Errorf("600519.SS currency = %q", h.Currency)
	}

	if err := st.RemoveHolding(ctx, "aapl"); err != nil {
		t.Fatalf("RemoveHolding: %v", err)
	}
	if err := st.RemoveHolding(ctx, "AAPL"); !errors.Is(err, apperrors.ErrSymbolNotFound) {
		t.Errorf("second remove = %v, want ErrSymbolNotFound", err)
	}

	var ve *apperrors.ValidationError
	if err := st.AddHolding(ctx, models.Holding{Symbol: "  "}); !errors.As(err, &ve) {
		t.Errorf("empty symbol = %v, want ValidationError", err)
	}
}

func TestWatchlists(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, sym := range []string{"msft", "AAPL", "MSFT"} {
		if err := st.AddToWatchlist(ctx, sym, ""); err != nil {
			t.Fatalf("AddToWatchlist(%s): %v", sym, err)
		}
	}
	if err := st.AddToWatchlist(ctx, "BTC-USD", "crypto"); err != nil {
		t.Fatalf("AddToWatchlist: %v", err)
	}

	got, err := st.GetWatchlist(ctx, DefaultWatchlist)
	if err != nil {
		t.Fatalf("GetWatchlist: %v", err)
	}
	if want := []string{"MSFT", "AAPL"}; !reflect.DeepEqual(got, want) {
		t.Errorf("default list = %v, want %v", got, want)
	}

	all, err := st.GetAllWatchlists(ctx)
	if err != nil {
		t.Fatalf("GetAllWatchlists: %v", err)
	}
	if len(all) != 2 || !reflect.DeepEqual(all["crypto"], []string{"BTC-USD"}) {
		t.Errorf("all watchlists = %v", all)
	}

	if err := st.RemoveFromWatchlist(ctx, "msft", ""); err != nil {
		t.Fatalf("RemoveFromWatchlist: %v", err)
	}
	got, _ = st.GetWatchlist(ctx, "")
	if !reflect.DeepEqual(got, []string{"AAPL"}) {
		t.Errorf("after remove = %v", got)
	}
}

func TestAlertsRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	fired := created.Add(time.Hour)
	alerts := []*models.Alert{
		{ID: "a1", Symbol: "aapl", Condition: models.AlertAbove, TargetPrice: 200, CreatedAt: created},
		{ID: "a2", Symbol: "TSLA", Condition: models.AlertBelow, TargetPrice: 150, CreatedAt: created.Add(time.Minute),
			Triggered: true, TriggeredAt: &fired},
	}
	if err := st.SaveAlerts(ctx, alerts); err != nil {
		t.Fatalf("SaveAlerts: %v", err)
	}

	got, err := st.GetAlerts(ctx)
	if err != nil {
		t.Fatalf("GetAlerts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d alerts", len(got))
	}
	if got[0].ID != "a1" || got[0].Symbol != "AAPL" || got[0].Triggered || got[0].TriggeredAt != nil {
		t.Errorf("a1 = %+v", got[0])
	}
	if got[1].Condition != models.AlertBelow || !got[1].Triggered || got[1].TriggeredAt == nil || !got[1].TriggeredAt.Equal(fired) {
		t.Errorf("a2 = %+v", got[1])
	}

	if err := st.DeleteAlert(ctx, "a1"); err != nil {
		t.Fatalf("DeleteAlert: %v", err)
	}
	if err := st.DeleteAlert(ctx, "a1"); !errors.Is(err, apperrors.ErrAlertNotFound) {
		t.Errorf("second delete = %v, want ErrAlertNotFound", err)
	}
}

func TestStaleAlertSnapshotDoesNotRearm(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	fired := created.Add(time.Hour)
	older := []*models.Alert{
		{ID: "a1", Symbol: "AAPL", Condition: models.AlertAbove, TargetPrice: 200, CreatedAt: created,
			Triggered: true, TriggeredAt: &fired},
		{ID: "a2", Symbol: "TSLA", Condition: models.AlertBelow, TargetPrice: 150, CreatedAt: created},
	}
	newer := []*models.Alert{
		{ID: "a1", Symbol: "AAPL", Condition: models.AlertAbove, TargetPrice: 200, CreatedAt: created,
			Triggered: true, TriggeredAt: &fired},
		{ID: "a2", Symbol: "TSLA", Condition: models.AlertBelow, TargetPrice: 150, CreatedAt: created,
			Triggered: true, TriggeredAt: &fired},
	}

	// The newer snapshot commits first; the older one lands after it.
	if err := st.SaveAlerts(ctx, newer); err != nil {
		t.Fatalf("SaveAlerts(newer): %v", err)
	}
	if err := st.SaveAlerts(ctx, older); err != nil {
		t.Fatalf("SaveAlerts(older): %v", err)
	}
	if err := st.SaveAlert(ctx, &models.Alert{ID: "a2", Symbol: "TSLA", Condition: models.AlertBelow, TargetPrice: 150, CreatedAt: created}); err != nil {
		t.Fatalf("SaveAlert: %v", err)
	}

	got, err := st.GetAlerts(ctx)
	if err != nil {
		t.Fatalf("GetAlerts: %v", err)
	}
	for _, a := range got {
		if !a.Triggered || a.TriggeredAt == nil || !a.TriggeredAt.Equal(fired) {
			t.Errorf("%s persisted as %+v, want triggered at %v", a.ID, a, fired)
		}
	}
}

func TestOpenFailureIsDatabaseError(t *testing.T) {
	// A directory cannot be opened as a database file.
	_, err := NewSQLiteStore(t.TempDir())
	if !errors.Is(err, apperrors.ErrDatabaseError) {
		t.Errorf("NewSQLiteStore(dir) = %v, want ErrDatabaseError", err)
	}
}

func TestOnChange(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	var changes []Change
	unsubscribe := st.OnChange(func(c Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})

	_ = st.AddHolding(ctx, models.Holding{Symbol: "nvda", Quantity: 1})
	_ = st.AddToWatchlist(ctx, "msft", "")
	_ = st.SaveAlert(ctx, &models.Alert{ID: "x", Symbol: "tsla", Condition: models.AlertAbove, TargetPrice: 1, CreatedAt: time.Now()})
	_ = st.DeleteAlert(ctx, "x")

	want := []Change{
		{Kind: ChangePortfolio, Symbol: "NVDA"},
		{Kind: ChangeWatchlist, Symbol: "MSFT"},
		{Kind: ChangeAlerts, Symbol: "TSLA"},
		{Kind: ChangeAlerts, Symbol: "TSLA"},
	}
	mu.Lock()
	if !reflect.DeepEqual(changes, want) {
		t.Errorf("changes = %+v, want %+v", changes, want)
	}
	mu.Unlock()

	unsubscribe()
	_ = st.AddToWatchlist(ctx, "amd", "")
	mu.Lock()
	defer mu.Unlock()
	if len(changes) != len(want) {
		t.Errorf("listener called after unsubscribe")
	}
}

func TestFailedMutationDoesNotEmit(t *testing.T) {
	st := newTestStore(t)
	called := false
	st.OnChange(func(Change) { called = true })

	_ = st.RemoveHolding(context.Background(), "GHOST")
	_ = st.DeleteAlert(context.Background(), "ghost")
	if called {
		t.Error("listener called for a mutation that changed nothing")
	}
}
