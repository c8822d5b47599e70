package rates

import (
	"context"

	"quotewatch/internal/logging"
)

// Conversion is the result of converting an amount for display.
// When Converted is false, Amount and Currency are the original values.
type Conversion struct {
	Amount    float64
	Currency  string
	Converted bool
	Err       error
}

// Convert converts amount from one currency to another. Any rate failure,
// including a stale cached rate, leaves the amount in its original currency:
// an unconverted but labeled value is preferred over a possibly wrong one.
func (c *Cache) Convert(ctx context.Context, amount float64, from, to string, fetch Fetcher) Conversion {
	rate, err := c.GetRate(ctx, from, to, fetch)
	if err != nil {
		logging.LogRateFallback(c.logger, normalize(from), normalize(to), err)
		return Conversion{Amount: amount, Currency: normalize(from), Err: err}
	}
	return Conversion{Amount: amount * rate, Currency: normalize(to), Converted: true}
}
