package portfolio

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"quotewatch/internal/models"
	"quotewatch/internal/rates"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestValuateConvertsIntoBase(t *testing.T) {
	cache := rates.NewCache(rates.DefaultTTL, zerolog.Nop())
	fetch := func(ctx context.Context, from, to string) (float64, error) {
		if from == "CNY" && to == "USD" {
			return 0.14, nil
		}
		return 0, errors.New("unexpected pair")
	}

	holdings := []models.Holding{
		{Symbol: "AAPL", Quantity: 10, CostBasis: 150, Currency: "USD"},
		{Symbol: "600519.SS", Quantity: 2, CostBasis: 1500, Currency: "CNY"},
	}
	quotes := map[string]models.Quote{
		"AAPL":      {Symbol: "AAPL", Price: 190.5, Change: 1.5, Currency: "USD"},
		"600519.SS": {Symbol: "600519.SS", Price: 1600, Change: -10, Currency: "CNY"},
	}

	sum := Valuate(context.Background(), holdings, quotes, cache, fetch, "usd")

	if sum.Base != "USD" || sum.Unconverted != 0 || len(sum.Lines) != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	// Lines are sorted by symbol.
	cn, us := sum.Lines[0], sum.Lines[1]
	if cn.Symbol != "600519.SS" || us.Symbol != "AAPL" {
		t.Fatalf("order = %s, %s", cn.Symbol, us.Symbol)
	}
	if !approx(us.MarketValue, 1905) || !approx(us.PnL, 405) || !approx(us.DayChange, 15) || us.Rate != 1 {
		t.Errorf("AAPL line = %+v", us)
	}
	if !approx(cn.ValueBase, 3200*0.14) || !approx(cn.PnLBase, 200*0.14) {
		t.Errorf("CNY line = %+v", cn)
	}
	wantValue := 1905 + 3200*0.14
	if !approx(sum.TotalValue, wantValue) {
		t.Errorf("total value = %v, want %v", sum.TotalValue, wantValue)
	}
	wantCost := 1500 + 3000*0.14
	if !approx(sum.TotalCost, wantCost) {
		t.Errorf("total cost = %v, want %v", sum.TotalCost, wantCost)
	}
}

func TestValuateFlagsUnconvertedLines(t *testing.T) {
	cache := rates.NewCache(rates.DefaultTTL, zerolog.Nop())
	calls := 0
	fetch := func(ctx context.Context, from, to string) (float64, error) {
		calls++
		return 0, errors.New("offline")
	}

	holdings := []models.Holding{
		{Symbol: "AAPL", Quantity: 1, CostBasis: 100, Currency: "USD"},
		{Symbol: "000001.SS", Quantity: 1, CostBasis: 10, Currency: "CNY"},
		{Symbol: "600000.SS", Quantity: 1, CostBasis: 10, Currency: "CNY"},
	}
	quotes := map[string]models.Quote{
		"AAPL":      {Symbol: "AAPL", Price: 110, Currency: "USD"},
		"000001.SS": {Symbol: "000001.SS", Price: 12, Currency: "CNY"},
	}

	sum := Valuate(context.Background(), holdings, quotes, cache, fetch, "USD")

	if sum.Unconverted != 2 {
		t.Errorf("unconverted = %d, want 2", sum.Unconverted)
	}
	if sum.MissingQuotes != 1 {
		t.Errorf("missing quotes = %d, want 1", sum.MissingQuotes)
	}
	if calls != 1 {
		t.Errorf("rate fetches = %d, want 1 per failed currency", calls)
	}
	if !approx(sum.TotalValue, 110) || !approx(sum.TotalPnL, 10) {
		t.Errorf("totals = %v / %v, want only the USD line", sum.TotalValue, sum.TotalPnL)
	}
	for _, l := range sum.Lines {
		if l.Currency == "CNY" && !l.Unconverted {
			t.Errorf("%s should be unconverted", l.Symbol)
		}
	}
}

func TestProperty_SameCurrencyTotalsMatchLines(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	cache := rates.NewCache(rates.DefaultTTL, zerolog.Nop())
	noFetch := func(ctx context.Context, from, to string) (float64, error) {
		return 0, errors.New("should not fetch")
	}

	properties.Property("USD holdings in a USD base never fetch and sum exactly", prop.ForAll(
		func(qty, cost, price float64) bool {
			holdings := []models.Holding{{Symbol: "X", Quantity: qty, CostBasis: cost, Currency: "USD"}}
			quotes := map[string]models.Quote{"X": {Symbol: "X", Price: price, Currency: "USD"}}
			sum := Valuate(context.Background(), holdings, quotes, cache, noFetch, "USD")
			return sum.Unconverted == 0 &&
				approx(sum.TotalValue, qty*price) &&
				approx(sum.TotalPnL, qty*price-qty*cost)
		},
		gen.Float64Range(0.01, 1000),
		gen.Float64Range(0.01, 1000),
		gen.Float64Range(0.01, 1000),
	))

	properties.TestingRun(t)
}
