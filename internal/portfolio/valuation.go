// Package portfolio values holdings against the latest quotes in a single
// base currency.
package portfolio

import (
	"context"
	"sort"
	"strings"

	"quotewatch/internal/models"
	"quotewatch/internal/rates"
)

// RateSource resolves conversion rates, normally a *rates.Cache.
type RateSource interface {
	GetRate(ctx context.Context, from, to string, fetch rates.Fetcher) (float64, error)
}

// Line is the valuation of one holding.
type Line struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	Currency string  `json:"currency"`

	Price       float64 `json:"price"`
	CostBasis   float64 `json:"cost_basis"`
	MarketValue float64 `json:"market_value"`
	CostValue   float64 `json:"cost_value"`
	DayChange   float64 `json:"day_change"`
	PnL         float64 `json:"pnl"`
	PnLPercent  float64 `json:"pnl_percent"`

	// Converted values are in the summary's base currency and are only
	// meaningful when Unconverted is false.
	Rate          float64 `json:"rate,omitempty"`
	ValueBase     float64 `json:"value_base"`
	DayChangeBase float64 `json:"day_change_base"`
	PnLBase       float64 `json:"pnl_base"`
	Unconverted   bool    `json:"unconverted"`
	MissingQuote  bool    `json:"missing_quote"`
}

// Summary is a full portfolio valuation.
type Summary struct {
	Base            string  `json:"base"`
	Lines           []Line  `json:"lines"`
	TotalValue      float64 `json:"total_value"`
	TotalCost       float64 `json:"total_cost"`
	TotalDayChange  float64 `json:"total_day_change"`
	TotalPnL        float64 `json:"total_pnl"`
	TotalPnLPercent float64 `json:"total_pnl_percent"`
	Unconverted     int     `json:"unconverted"`
	MissingQuotes   int     `json:"missing_quotes"`
}

// Valuate values each holding at its latest quote. Holdings without a quote
// are valued at cost with zero change. Each line is converted into base;
// lines whose rate is unavailable keep their own currency, are flagged
// Unconverted and are left out of the totals.
func Valuate(ctx context.Context, holdings []models.Holding, quotes map[string]models.Quote, rs RateSource, fetch rates.Fetcher, base string) Summary {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		base = "USD"
	}

	sum := Summary{Base: base, Lines: make([]Line, 0, len(holdings))}
	rateFor := make(map[string]float64)
	failed := make(map[string]bool)

	for _, h := range holdings {
		line := valueLine(h, quotes)

		if rate, ok := rateFor[line.Currency]; ok {
			line.applyRate(rate)
		} else if failed[line.Currency] {
			line.Unconverted = true
		} else {
			rate, err := rs.GetRate(ctx, line.Currency, base, fetch)
			if err != nil {
				failed[line.Currency] = true
				line.Unconverted = true
			} else {
				rateFor[line.Currency] = rate
				line.applyRate(rate)
			}
		}

		if line.MissingQuote {
			sum.MissingQuotes++
		}
		if line.Unconverted {
			sum.Unconverted++
		} else {
			sum.TotalValue += line.ValueBase
			sum.TotalCost += line.CostValue * line.Rate
			sum.TotalDayChange += line.DayChangeBase
			sum.TotalPnL += line.PnLBase
		}
		sum.Lines = append(sum.Lines, line)
	}

	if sum.TotalCost != 0 {
		sum.TotalPnLPercent = sum.TotalPnL / sum.TotalCost * 100
	}
	sort.SliceStable(sum.Lines, func(i, j int) bool { return sum.Lines[i].Symbol < sum.Lines[j].Symbol })
	return sum
}

func valueLine(h models.Holding, quotes map[string]models.Quote) Line {
	symbol := strings.ToUpper(strings.TrimSpace(h.Symbol))
	currency := strings.ToUpper(h.Currency)
	if currency == "" {
		currency = "USD"
	}

	line := Line{
		Symbol:    symbol,
		Quantity:  h.Quantity,
		Currency:  currency,
		CostBasis: h.CostBasis,
		CostValue: h.Quantity * h.CostBasis,
	}

	q, ok := quotes[symbol]
	if !ok || q.Price <= 0 {
		line.MissingQuote = true
		line.Price = h.CostBasis
		line.MarketValue = line.CostValue
		return line
	}

	// Cost basis is recorded in the holding currency, which is expected to
	// match the listing currency.
	line.Price = q.Price
	line.MarketValue = h.Quantity * q.Price
	line.DayChange = h.Quantity * q.Change
	line.PnL = line.MarketValue - line.CostValue
	if line.CostValue != 0 {
		line.PnLPercent = line.PnL / line.CostValue * 100
	}
	return line
}

func (l *Line) applyRate(rate float64) {
	l.Rate = rate
	l.ValueBase = l.MarketValue * rate
	l.DayChangeBase = l.DayChange * rate
	l.PnLBase = l.PnL * rate
}
