package quotes

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	apperrors "quotewatch/internal/errors"
	"quotewatch/internal/models"
	"quotewatch/internal/resilience"
)

const aaplChart = `{
  "chart": {
    "result": [{
      "meta": {
        "currency": "USD",
        "symbol": "AAPL",
        "regularMarketPrice": 190.5,
        "regularMarketTime": 1709740800,
        "regularMarketDayHigh": 191.2,
        "regularMarketDayLow": 188.1,
        "regularMarketVolume": 52000000,
        "chartPreviousClose": 188.0,
        "previousClose": 189.0,
        "marketState": "REGULAR"
      },
      "timestamp": [1709740800],
      "indicators": {"quote": [{"open": [null, 189.4], "close": [190.5]}]}
    }],
    "error": null
  }
}`

const rateChart = `{"chart":{"result":[{"meta":{"currency":"CNY","symbol":"USDCNY=X","regularMarketPrice":7.19}}],"error":null}}`

const notFound = `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/AAPL"):
			_, _ = w.Write([]byte(aaplChart))
		case strings.HasSuffix(r.URL.Path, "/USDCNY=X"):
			_, _ = w.Write([]byte(rateChart))
		case strings.HasSuffix(r.URL.Path, "/BROKEN"):
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(notFound))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestYahooGetQuote(t *testing.T) {
	srv := newTestServer(t)
	src := NewYahooSource(srv.URL, time.Second, zerolog.Nop())

	q, err := src.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if q.Symbol != "AAPL" || q.Price != 190.5 || q.Currency != "USD" {
		t.Errorf("unexpected quote %+v", q)
	}
	if q.PreviousClose != 189.0 {
		t.Errorf("previousClose = %v, want the meta previousClose", q.PreviousClose)
	}
	if q.Open != 189.4 {
		t.Errorf("open = %v, want first non-null bar", q.Open)
	}
	if math.Abs(q.Change-1.5) > 1e-9 {
		t.Errorf("change = %v", q.Change)
	}
	if math.Abs(q.ChangePercent-1.5/189*100) > 1e-9 {
		t.Errorf("changePercent = %v", q.ChangePercent)
	}
	if q.MarketState != models.MarketStateRegular {
		t.Errorf("marketState = %q", q.MarketState)
	}
	if !q.Timestamp.Equal(time.Unix(1709740800, 0)) {
		t.Errorf("timestamp = %v", q.Timestamp)
	}
}

func TestYahooGetRate(t *testing.T) {
	srv := newTestServer(t)
	src := NewYahooSource(srv.URL, time.Second, zerolog.Nop())

	rate, err := src.GetRate(context.Background(), "usd", "cny")
	if err != nil {
		t.Fatalf("GetRate: %v", err)
	}
	if rate != 7.19 {
		t.Errorf("rate = %v", rate)
	}
}

func TestYahooErrors(t *testing.T) {
	srv := newTestServer(t)
	src := NewYahooSource(srv.URL, time.Second, zerolog.Nop())

	_, err := src.GetQuote(context.Background(), "NOPE")
	var fe *apperrors.FetchError
	if !errors.As(err, &fe) || fe.Symbol != "NOPE" {
		t.Fatalf("expected FetchError for NOPE, got %v", err)
	}
	if !strings.Contains(err.Error(), "Not Found") {
		t.Errorf("provider error not surfaced: %v", err)
	}

	if _, err := src.GetQuote(context.Background(), "BROKEN"); err == nil {
		t.Error("expected error for non-JSON body")
	}
}

func TestYahooHonoursContext(t *testing.T) {
	srv := newTestServer(t)
	src := NewYahooSource(srv.URL, time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.GetQuote(ctx, "AAPL"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)

	q := Normalize(models.Quote{
		Symbol:        " btc-usd ",
		Price:         60000,
		PreviousClose: 50000,
		Change:        999, // ignored
		ChangePercent: 999,
	}, now)
	if q.Symbol != "BTC-USD" || q.Currency != "USD" || !q.Timestamp.Equal(now) {
		t.Errorf("unexpected normalized quote %+v", q)
	}
	if q.Change != 10000 || math.Abs(q.ChangePercent-20) > 1e-9 {
		t.Errorf("change = %v / %v", q.Change, q.ChangePercent)
	}

	zero := Normalize(models.Quote{Symbol: "X", Price: 10, Change: 3}, now)
	if zero.Change != 0 || zero.ChangePercent != 0 {
		t.Errorf("zero previous close should give zero change, got %+v", zero)
	}
}

type flakySource struct {
	calls atomic.Int32
	err   error
}

func (f *flakySource) GetQuote(_ context.Context, symbol string) (models.Quote, error) {
	f.calls.Add(1)
	if f.err != nil {
		return models.Quote{}, f.err
	}
	return models.Quote{Symbol: symbol, Price: 1}, nil
}

func (f *flakySource) GetRate(context.Context, string, string) (float64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return 0, f.err
	}
	return 7.2, nil
}

func TestGuardedSourceTripsAndShares(t *testing.T) {
	inner := &flakySource{err: errors.New("boom")}
	g := NewGuardedSource(inner, resilience.NewBreaker("source", resilience.BreakerConfig{
		FailureThreshold: 2,
		Cooldown:         time.Hour,
	}))
	ctx := context.Background()

	_, _ = g.GetQuote(ctx, "AAPL")
	_, _ = g.GetRate(ctx, "USD", "CNY")
	if g.Breaker().State() != resilience.CircuitOpen {
		t.Fatalf("quote and rate failures should share one breaker")
	}

	inner.err = nil
	if _, err := g.GetQuote(ctx, "AAPL"); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("expected fast failure, got %v", err)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("inner source called %d times, want 2", inner.calls.Load())
	}
}

func TestProperty_NormalizeChangeMatchesPrice(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	now := time.Now()
	properties.Property("change is price minus previous close", prop.ForAll(
		func(price, prev float64) bool {
			q := Normalize(models.Quote{Symbol: "T", Price: price, PreviousClose: prev}, now)
			if math.Abs(q.Change-(price-prev)) > 1e-9 {
				return false
			}
			want := (price - prev) / prev * 100
			return math.Abs(q.ChangePercent-want) <= 1e-9*math.Max(1, math.Abs(want))
		},
		gen.Float64Range(0.0001, 1e6),
		gen.Float64Range(0.0001, 1e6),
	))

	properties.TestingRun(t)
}
