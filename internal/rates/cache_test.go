package rates

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "quotewatch/internal/errors"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingFetcher struct {
	calls int32
	rate  float64
	err   error
	gate  chan struct{}
}

func (f *countingFetcher) Fetch(ctx context.Context, from, to string) (float64, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		<-f.gate
	}
	return f.rate, f.err
}

func (f *countingFetcher) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

func newTestCache() (*Cache, *manualClock) {
	clock := &manualClock{now: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)}
	c := NewCache(DefaultTTL, zerolog.Nop())
	c.SetClock(clock.Now)
	return c, clock
}

func TestSameCurrencyNeverFetches(t *testing.T) {
	c, _ := newTestCache()
	f := &countingFetcher{rate: 7}

	rate, err := c.GetRate(context.Background(), "usd", "USD", f.Fetch)
	if err != nil || rate != 1 {
		t.Errorf("GetRate(USD, USD) = %v, %v", rate, err)
	}
	if f.Calls() != 0 {
		t.Errorf("fetches = %d, want 0", f.Calls())
	}
	if c.Len() != 0 {
		t.Errorf("cache entries = %d, want 0", c.Len())
	}
}

func TestRateIsCachedForTTL(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache()
	f := &countingFetcher{rate: 7.1}

	for i := 0; i < 3; i++ {
		rate, err := c.GetRate(ctx, "USD", "CNY", f.Fetch)
		if err != nil || rate != 7.1 {
			t.Fatalf("GetRate = %v, %v", rate, err)
		}
		clock.Advance(time.Minute)
	}
	if f.Calls() != 1 {
		t.Errorf("fetches within ttl = %d, want 1", f.Calls())
	}

	// Fetched at t0; now t0+3m. Exactly at the TTL the entry is still fresh.
	clock.Advance(2 * time.Minute)
	if _, err := c.GetRate(ctx, "USD", "CNY", f.Fetch); err != nil {
		t.Fatal(err)
	}
	if f.Calls() != 1 {
		t.Errorf("fetches at ttl boundary = %d, want 1", f.Calls())
	}

	clock.Advance(time.Second)
	f.rate = 7.2
	rate, err := c.GetRate(ctx, "USD", "CNY", f.Fetch)
	if err != nil || rate != 7.2 {
		t.Errorf("refetched rate = %v, %v", rate, err)
	}
	if f.Calls() != 2 {
		t.Errorf("fetches after ttl = %d, want 2", f.Calls())
	}
}

func TestInversePairIsSeparate(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()
	f := &countingFetcher{rate: 7}

	if _, err := c.GetRate(ctx, "USD", "CNY", f.Fetch); err != nil {
		t.Fatal(err)
	}
	f.rate = 0.14
	rate, err := c.GetRate(ctx, "CNY", "USD", f.Fetch)
	if err != nil || rate != 0.14 {
		t.Errorf("inverse rate = %v, %v", rate, err)
	}
	if f.Calls() != 2 || c.Len() != 2 {
		t.Errorf("fetches = %d, entries = %d", f.Calls(), c.Len())
	}
}

func TestFailureReturnsStaleRateWithError(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache()
	f := &countingFetcher{rate: 7}

	if _, err := c.GetRate(ctx, "USD", "CNY", f.Fetch); err != nil {
		t.Fatal(err)
	}
	clock.Advance(DefaultTTL + time.Second)
	f.err = errors.New("provider down")

	rate, err := c.GetRate(ctx, "USD", "CNY", f.Fetch)
	if rate != 7 {
		t.Errorf("stale rate = %v, want 7", rate)
	}
	var rerr *apperrors.RateError
	if !errors.As(err, &rerr) || !rerr.Stale {
		t.Fatalf("err = %v, want stale RateError", err)
	}
	if !errors.Is(err, apperrors.ErrRateUnavailable) {
		t.Error("error should match ErrRateUnavailable")
	}

	// The stale entry is kept, not refreshed.
	if e, ok := c.Peek("USD", "CNY"); !ok || e.Rate != 7 {
		t.Errorf("entry after failure = %+v, %v", e, ok)
	}
}

func TestFailureWithoutEntry(t *testing.T) {
	c, _ := newTestCache()
	f := &countingFetcher{err: errors.New("timeout")}

	rate, err := c.GetRate(context.Background(), "EUR", "USD", f.Fetch)
	var rerr *apperrors.RateError
	if rate != 0 || !errors.As(err, &rerr) || rerr.Stale {
		t.Errorf("GetRate = %v, %v; want 0 and non-stale RateError", rate, err)
	}
}

func TestInvalidRateIsRejected(t *testing.T) {
	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		c, _ := newTestCache()
		f := &countingFetcher{rate: bad}
		if _, err := c.GetRate(context.Background(), "USD", "CNY", f.Fetch); err == nil {
			t.Errorf("rate %v accepted", bad)
		}
		if c.Len() != 0 {
			t.Errorf("rate %v cached", bad)
		}
	}
}

func TestConcurrentRefreshSharesOneFetch(t *testing.T) {
	c, _ := newTestCache()
	f := &countingFetcher{rate: 7, gate: make(chan struct{})}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rate, err := c.GetRate(context.Background(), "USD", "CNY", f.Fetch); err != nil || rate != 7 {
				t.Errorf("GetRate = %v, %v", rate, err)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	if f.Calls() != 1 {
		t.Errorf("fetches = %d, want 1", f.Calls())
	}
}

func TestConvert(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()

	ok := &countingFetcher{rate: 0.14}
	conv := c.Convert(ctx, 100, "cny", "USD", ok.Fetch)
	if !conv.Converted || conv.Currency != "USD" || math.Abs(conv.Amount-14) > 1e-9 || conv.Err != nil {
		t.Errorf("Convert = %+v", conv)
	}

	failing := &countingFetcher{err: errors.New("offline")}
	conv = c.Convert(ctx, 100, "USD", "EUR", failing.Fetch)
	if conv.Converted || conv.Currency != "USD" || conv.Amount != 100 || conv.Err == nil {
		t.Errorf("fallback Convert = %+v", conv)
	}
}

func TestConvertRefusesStaleRate(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache()
	f := &countingFetcher{rate: 7}

	if conv := c.Convert(ctx, 1, "USD", "CNY", f.Fetch); !conv.Converted {
		t.Fatal("first conversion should succeed")
	}
	clock.Advance(10 * time.Minute)
	f.err = errors.New("down")

	conv := c.Convert(ctx, 2, "USD", "CNY", f.Fetch)
	if conv.Converted || conv.Amount != 2 || conv.Currency != "USD" {
		t.Errorf("stale conversion = %+v, want original amount", conv)
	}
}
