package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	apperrors "quotewatch/internal/errors"
	"quotewatch/internal/format"
	"quotewatch/internal/models"
	"quotewatch/internal/portfolio"
)

func newPortfolioCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "portfolio",
		Aliases: []string{"pf"},
		Short:   "Manage portfolio holdings",
	}

	cmd.AddCommand(newPortfolioAddCmd(app))
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <symbol>",
		Short: "Remove a holding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}
			if err := st.RemoveHolding(cmd.Context(), args[0]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"removed": strings.ToUpper(args[0])})
			}
			output.Success("✓ Removed %s", strings.ToUpper(args[0]))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List holdings",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}
			holdings, err := st.GetHoldings(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				if holdings == nil {
					holdings = []models.Holding{}
				}
				return output.JSON(holdings)
			}
			if len(holdings) == 0 {
				output.Dim("No holdings")
				return nil
			}
			table := NewTable(output, "Symbol", "Quantity", "Cost", "Currency")
			for _, h := range holdings {
				table.AddRow(h.Symbol, strconv.FormatFloat(h.Quantity, 'f', -1, 64),
					format.FormatPrice(h.CostBasis, h.Currency), h.Currency)
			}
			table.Render()
			return nil
		},
	})
	cmd.AddCommand(newPortfolioValueCmd(app))
	return cmd
}

func newPortfolioAddCmd(app *App) *cobra.Command {
	var currency string

	cmd := &cobra.Command{
		Use:     "add <symbol> <quantity> <cost-per-unit>",
		Short:   "Add or replace a holding",
		Example: "  quotewatch portfolio add AAPL 10 150.25\n  quotewatch portfolio add 600519.SS 2 1500 --currency CNY",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)

			qty, err := strconv.ParseFloat(args[1], 64)
			if err != nil || !(qty > 0) {
				return apperrors.NewValidationError("quantity", args[1], "must be a positive number")
			}
			cost, err := strconv.ParseFloat(args[2], 64)
			if err != nil || cost < 0 {
				return apperrors.NewValidationError("cost", args[2], "must be a non-negative number")
			}

			st, err := app.Store()
			if err != nil {
				return err
			}
			h := models.Holding{
				Symbol:    strings.ToUpper(args[0]),
				Quantity:  qty,
				CostBasis: cost,
				Currency:  strings.ToUpper(currency),
			}
			if err := st.AddHolding(cmd.Context(), h); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(h)
			}
			output.Success("✓ %s: %s @ %s", h.Symbol, args[1], format.FormatPrice(cost, h.Currency))
			return nil
		},
	}

	cmd.Flags().StringVarP(&currency, "currency", "c", "USD", "currency of the cost basis")
	return cmd
}

func newPortfolioValueCmd(app *App) *cobra.Command {
	var base string

	cmd := &cobra.Command{
		Use:   "value",
		Short: "Value holdings at the latest quotes",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx := cmd.Context()

			st, err := app.Store()
			if err != nil {
				return err
			}
			holdings, err := st.GetHoldings(ctx)
			if err != nil {
				return err
			}
			if base == "" {
				base = app.Config.Rates.BaseCurrency
			}

			symbols := make([]string, 0, len(holdings))
			for _, h := range holdings {
				symbols = append(symbols, h.Symbol)
			}
			got, failed := fetchQuotes(ctx, app.Source, symbols)
			for sym, err := range failed {
				app.Logger.Warn().Err(err).Str("symbol", sym).Msg("Quote unavailable, valuing at cost")
			}

			sum := portfolio.Valuate(ctx, holdings, got, app.Rates, app.Source.GetRate, base)
			if output.IsJSON() {
				return output.JSON(sum)
			}
			renderValuation(output, sum)
			return nil
		},
	}

	cmd.Flags().StringVar(&base, "base", "", "currency to value the portfolio in (default from config)")
	return cmd
}

func renderValuation(output *Output, sum portfolio.Summary) {
	if len(sum.Lines) == 0 {
		output.Dim("No holdings")
		return
	}

	table := NewTable(output, "Symbol", "Qty", "Price", "Value", "Day", "P&L", "P&L %", "Value ("+sum.Base+")")
	for _, l := range sum.Lines {
		price := format.FormatPrice(l.Price, l.Currency)
		if l.MissingQuote {
			price = output.DimText(price + "*")
		}
		converted := format.FormatPrice(l.ValueBase, sum.Base)
		if l.Unconverted {
			converted = output.Named("yellow", "n/a")
		}
		table.AddRow(
			l.Symbol,
			strconv.FormatFloat(l.Quantity, 'f', -1, 64),
			price,
			format.FormatPrice(l.MarketValue, l.Currency),
			output.Directional(l.DayChange, format.FormatChange(l.DayChange, l.Currency)),
			output.Directional(l.PnL, format.FormatChange(l.PnL, l.Currency)),
			output.Directional(l.PnLPercent, format.FormatPercent(l.PnLPercent)),
			converted,
		)
	}
	table.Render()
	output.Println()

	output.Printf("Total value:  %s\n", output.BoldText(format.FormatPrice(sum.TotalValue, sum.Base)))
	output.Printf("Day change:   %s\n", output.Directional(sum.TotalDayChange, format.FormatChange(sum.TotalDayChange, sum.Base)))
	output.Printf("Total P&L:    %s (%s)\n",
		output.Directional(sum.TotalPnL, format.FormatChange(sum.TotalPnL, sum.Base)),
		output.Directional(sum.TotalPnLPercent, format.FormatPercent(sum.TotalPnLPercent)))

	if sum.MissingQuotes > 0 {
		output.Dim("* no quote, valued at cost")
	}
	if sum.Unconverted > 0 {
		output.Warning("%d holding(s) could not be converted to %s and are excluded from totals", sum.Unconverted, sum.Base)
	}
}
