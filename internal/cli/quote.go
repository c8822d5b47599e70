package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quotewatch/internal/format"
	"quotewatch/internal/models"
	"quotewatch/internal/quotes"
	"quotewatch/internal/rates"
)

const maxConcurrentFetches = 4

// fetchQuotes fetches several quotes concurrently. A failed symbol does not
// abort the others; its error is returned in the second map.
func fetchQuotes(ctx context.Context, src quotes.Source, symbols []string) (map[string]models.Quote, map[string]error) {
	var (
		mu     sync.Mutex
		got    = make(map[string]models.Quote, len(symbols))
		failed = make(map[string]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for _, sym := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(sym))
		g.Go(func() error {
			q, err := src.GetQuote(gctx, sym)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[sym] = err
				return nil
			}
			got[sym] = quotes.Normalize(q, time.Now())
			return nil
		})
	}
	_ = g.Wait()
	return got, failed
}

// quoteLine renders one quote: symbol, price, change and percent, with the
// change colored by direction.
func quoteLine(o *Output, q models.Quote) string {
	change := fmt.Sprintf("%s (%s)", format.FormatChange(q.Change, q.Currency), format.FormatPercent(q.ChangePercent))
	return fmt.Sprintf("%s %14s  %s",
		o.BoldText(padRight(q.Symbol, 10)),
		format.FormatPrice(q.Price, q.Currency),
		o.Directional(q.Change, change),
	)
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}

func sessionBadge(o *Output, state models.SessionState) string {
	switch state {
	case models.SessionOpen:
		return o.Named("green", "● open")
	case models.SessionPreMarket:
		return o.Named("yellow", "◐ pre-market")
	case models.SessionAfterHours:
		return o.Named("magenta", "◑ after-hours")
	default:
		return o.DimText("○ closed")
	}
}

type quoteView struct {
	models.Quote
	Display   string  `json:"display_price"`
	Converted bool    `json:"converted,omitempty"`
	BasePrice float64 `json:"base_price,omitempty"`
	Base      string  `json:"base,omitempty"`
}

// convertQuote builds the display view of q, adding its price in base when
// base names a different currency. A failed conversion leaves the view in
// the quote's own currency.
func convertQuote(ctx context.Context, cache *rates.Cache, fetch rates.Fetcher, q models.Quote, base string) quoteView {
	v := quoteView{Quote: q, Display: format.FormatPrice(q.Price, q.Currency)}
	if base == "" || strings.EqualFold(base, q.Currency) {
		return v
	}
	conv := cache.Convert(ctx, q.Price, q.Currency, base, fetch)
	v.Converted = conv.Converted
	if conv.Converted {
		v.BasePrice = conv.Amount
		v.Base = conv.Currency
	}
	return v
}

// baseSuffix renders the converted price, or marks it unavailable.
func baseSuffix(output *Output, v quoteView, base string) string {
	switch {
	case v.Converted:
		return "  " + output.DimText("≈ "+format.FormatPrice(v.BasePrice, v.Base))
	case base != "" && !strings.EqualFold(base, v.Currency):
		return "  " + output.DimText("(rate unavailable)")
	default:
		return ""
	}
}

func newQuoteCmd(app *App) *cobra.Command {
	var base string

	cmd := &cobra.Command{
		Use:   "quote <symbol>...",
		Short: "Fetch the latest quote for one or more symbols",
		Example: `  quotewatch quote AAPL
  quotewatch quote BTC-USD ETH-USD
  quotewatch quote 600519.SS --base USD`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := app.output(cmd)

			got, failed := fetchQuotes(ctx, app.Source, args)
			if len(got) == 0 {
				for sym, err := range failed {
					output.Error("%s: %v", sym, err)
				}
				return fmt.Errorf("no quotes available")
			}

			symbols := make([]string, 0, len(got))
			for sym := range got {
				symbols = append(symbols, sym)
			}
			sort.Strings(symbols)

			views := make([]quoteView, 0, len(symbols))
			for _, sym := range symbols {
				views = append(views, convertQuote(ctx, app.Rates, app.Source.GetRate, got[sym], base))
			}

			if output.IsJSON() {
				return output.JSON(views)
			}

			badge := sessionBadge(output, app.Calendar.Classify(time.Now()))
			for _, v := range views {
				output.Printf("%s%s  %s\n", quoteLine(output, v.Quote), baseSuffix(output, v, base), badge)
			}
			for sym, err := range failed {
				output.Warning("%s: %v", sym, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&base, "base", "", "also show prices converted into this currency")
	return cmd
}
