// Package quotes defines the quote source boundary and its adapters.
// Adapters normalize provider payloads into models.Quote so nothing past
// this package depends on which provider answered.
package quotes

import (
	"context"
	"math"
	"strings"
	"time"

	"quotewatch/internal/models"
)

// Source fetches quotes and exchange rates. Any error is treated as a
// transient failure by callers.
type Source interface {
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
	GetRate(ctx context.Context, from, to string) (float64, error)
}

// Normalize enforces the Quote invariants: change and changePercent are
// recomputed from price and previousClose instead of trusting the source,
// the symbol and currency are upper-cased, and a missing currency or
// timestamp is filled in.
func Normalize(q models.Quote, now time.Time) models.Quote {
	q.Symbol = strings.ToUpper(strings.TrimSpace(q.Symbol))
	q.Currency = strings.ToUpper(strings.TrimSpace(q.Currency))
	if q.Currency == "" {
		q.Currency = "USD"
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = now
	}

	if q.PreviousClose != 0 && !math.IsNaN(q.PreviousClose) && !math.IsNaN(q.Price) {
		q.Change = q.Price - q.PreviousClose
		q.ChangePercent = q.Change / q.PreviousClose * 100
	} else {
		q.Change = 0
		q.ChangePercent = 0
	}
	return q
}
