package quotes

import (
	"context"

	"quotewatch/internal/models"
	"quotewatch/internal/resilience"
)

// GuardedSource wraps a Source with a circuit breaker. While the breaker is
// open calls fail immediately with resilience.ErrCircuitOpen, which callers
// treat like any other transient failure.
type GuardedSource struct {
	source  Source
	breaker *resilience.Breaker
}

// NewGuardedSource wraps source. Quotes and rates share one breaker since
// they hit the same provider.
func NewGuardedSource(source Source, breaker *resilience.Breaker) *GuardedSource {
	return &GuardedSource{source: source, breaker: breaker}
}

// GetQuote implements Source.
func (g *GuardedSource) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	return resilience.Call(ctx, g.breaker, func(ctx context.Context) (models.Quote, error) {
		return g.source.GetQuote(ctx, symbol)
	})
}

// GetRate implements Source.
func (g *GuardedSource) GetRate(ctx context.Context, from, to string) (float64, error) {
	return resilience.Call(ctx, g.breaker, func(ctx context.Context) (float64, error) {
		return g.source.GetRate(ctx, from, to)
	})
}

// Breaker returns the underlying breaker.
func (g *GuardedSource) Breaker() *resilience.Breaker {
	return g.breaker
}
