package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"quotewatch/internal/alerts"
	apperrors "quotewatch/internal/errors"
	"quotewatch/internal/format"
	"quotewatch/internal/models"
	"quotewatch/internal/store"
)

func newAlertCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Manage one-shot price alerts",
		Long: `Manage price alerts. An alert fires once when the price reaches the
target (inclusive) and is then kept as triggered until removed.`,
	}

	cmd.AddCommand(newAlertAddCmd(app))
	cmd.AddCommand(newAlertListCmd(app))
	cmd.AddCommand(newAlertRmCmd(app))
	return cmd
}

func newAlertAddCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "add <symbol> <above|below> <price>",
		Short:   "Create a price alert",
		Example: "  quotewatch alert add AAPL above 200\n  quotewatch alert add BTC-USD below 60000",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx := cmd.Context()

			condition := models.AlertCondition(strings.ToLower(args[1]))
			target, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return apperrors.NewValidationError("price", args[2], "must be a number")
			}

			st, err := app.Store()
			if err != nil {
				return err
			}
			engine := alerts.NewEngine(st, nil, app.Logger)
			if err := engine.Load(ctx, st); err != nil {
				return err
			}

			a, err := engine.Create(ctx, args[0], condition, target)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(a)
			}
			output.Success("✓ Alert %s: %s %s %s", shortID(a.ID), a.Symbol, a.Condition, format.FormatPrice(a.TargetPrice, ""))
			return nil
		},
	}
}

func newAlertListCmd(app *App) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)

			st, err := app.Store()
			if err != nil {
				return err
			}
			list, err := st.GetAlerts(cmd.Context())
			if err != nil {
				return err
			}
			if activeOnly {
				kept := list[:0]
				for _, a := range list {
					if !a.Triggered {
						kept = append(kept, a)
					}
				}
				list = kept
			}

			if output.IsJSON() {
				if list == nil {
					list = []models.Alert{}
				}
				return output.JSON(list)
			}
			if len(list) == 0 {
				output.Dim("No alerts")
				return nil
			}

			table := NewTable(output, "ID", "Symbol", "Condition", "Target", "Status", "Created")
			for _, a := range list {
				status := output.Named("green", "active")
				if a.Triggered {
					status = output.DimText("triggered")
					if a.TriggeredAt != nil {
						status = output.DimText("triggered " + a.TriggeredAt.Local().Format("01-02 15:04"))
					}
				}
				table.AddRow(shortID(a.ID), a.Symbol, string(a.Condition),
					format.FormatPrice(a.TargetPrice, ""), status, a.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "only show alerts that have not fired")
	return cmd
}

func newAlertRmCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove an alert by ID or unique ID prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			ctx := cmd.Context()

			st, err := app.Store()
			if err != nil {
				return err
			}
			id, err := resolveAlertID(ctx, st, args[0])
			if err != nil {
				return err
			}
			engine := alerts.NewEngine(st, nil, app.Logger)
			if err := engine.Load(ctx, st); err != nil {
				return err
			}
			if err := engine.Remove(ctx, id); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"removed": id})
			}
			output.Success("✓ Removed alert %s", shortID(id))
			return nil
		},
	}
}

// resolveAlertID expands an ID prefix to a full alert ID.
func resolveAlertID(ctx context.Context, st store.DataStore, prefix string) (string, error) {
	list, err := st.GetAlerts(ctx)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, a := range list {
		if a.ID == prefix {
			return a.ID, nil
		}
		if strings.HasPrefix(a.ID, prefix) {
			matches = append(matches, a.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("alert %s: %w", prefix, apperrors.ErrAlertNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("alert ID prefix %q is ambiguous (%d matches)", prefix, len(matches))
	}
}
