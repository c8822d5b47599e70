// Package rates caches currency conversion rates with a staleness TTL.
package rates

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	apperrors "quotewatch/internal/errors"
	"quotewatch/internal/logging"
	"quotewatch/internal/models"
)

// DefaultTTL is the maximum age of a cached rate before it is refetched.
const DefaultTTL = 5 * time.Minute

// Fetcher fetches the rate that converts one unit of from into to.
type Fetcher func(ctx context.Context, from, to string) (float64, error)

type pair struct {
	from string
	to   string
}

// Cache holds at most one rate per ordered (from, to) pair. The inverse pair
// is a separate entry; rates are never inverted.
type Cache struct {
	ttl     time.Duration
	now     func() time.Time
	logger  zerolog.Logger
	mu      sync.Mutex
	entries map[pair]models.ExchangeRate
	flights singleflight.Group
}

// NewCache creates a rate cache.
func NewCache(ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		logger:  logging.WithComponent(logger, "rates"),
		entries: make(map[pair]models.ExchangeRate),
	}
}

// SetClock replaces the time source.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// GetRate returns the from->to rate. Identical currencies return 1 without
// fetching. A cached rate younger than the TTL is reused; otherwise fetch is
// called and its result replaces the entry.
//
// When the fetch fails, the returned error is a *errors.RateError. If an
// expired entry exists its rate is returned alongside the error with Stale
// set, so the caller can choose a fallback instead of treating it as fresh.
// Concurrent refreshes of the same pair share one fetch.
func (c *Cache) GetRate(ctx context.Context, from, to string, fetch Fetcher) (float64, error) {
	key := pair{from: normalize(from), to: normalize(to)}
	if key.from == key.to {
		return 1, nil
	}

	c.mu.Lock()
	entry, cached := c.entries[key]
	now := c.now()
	c.mu.Unlock()

	if cached && now.Sub(entry.FetchedAt) <= c.ttl {
		return entry.Rate, nil
	}

	v, err, shared := c.flights.Do(key.from+"/"+key.to, func() (interface{}, error) {
		rate, err := fetch(ctx, key.from, key.to)
		if err != nil {
			return 0.0, err
		}
		if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
			return 0.0, apperrors.NewValidationError("rate", rate, "must be a positive number")
		}

		c.mu.Lock()
		c.entries[key] = models.ExchangeRate{
			From:      key.from,
			To:        key.to,
			Rate:      rate,
			FetchedAt: c.now(),
		}
		c.mu.Unlock()
		return rate, nil
	})
	if err != nil {
		c.logger.Debug().Err(err).Str("from", key.from).Str("to", key.to).Bool("stale", cached).Msg("Rate fetch failed")
		if cached {
			return entry.Rate, apperrors.NewRateError(key.from, key.to, true, err)
		}
		return 0, apperrors.NewRateError(key.from, key.to, false, err)
	}
	if shared {
		c.logger.Debug().Str("from", key.from).Str("to", key.to).Msg("Rate fetch shared")
	}
	return v.(float64), nil
}

// Peek returns the cached entry for a pair without fetching.
func (c *Cache) Peek(from, to string) (models.ExchangeRate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[pair{from: normalize(from), to: normalize(to)}]
	return e, ok
}

// Len returns the number of cached pairs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
