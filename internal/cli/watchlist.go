package cli

import (
	"sort"

	"github.com/spf13/cobra"

	"quotewatch/internal/store"
)

func newWatchlistCmd(app *App) *cobra.Command {
	var listName string

	cmd := &cobra.Command{
		Use:     "watchlist",
		Aliases: []string{"wl"},
		Short:   "Manage watchlists",
	}
	cmd.PersistentFlags().StringVarP(&listName, "list", "l", store.DefaultWatchlist, "watchlist name")

	cmd.AddCommand(&cobra.Command{
		Use:   "add <symbol>...",
		Short: "Add symbols to a watchlist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}
			for _, sym := range args {
				if err := st.AddToWatchlist(cmd.Context(), sym, listName); err != nil {
					return err
				}
			}
			if !output.IsJSON() {
				output.Success("✓ Added %d symbol(s) to %s", len(args), listName)
				return nil
			}
			return output.JSON(map[string]interface{}{"list": listName, "added": args})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <symbol>...",
		Short: "Remove symbols from a watchlist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}
			for _, sym := range args {
				if err := st.RemoveFromWatchlist(cmd.Context(), sym, listName); err != nil {
					return err
				}
			}
			if !output.IsJSON() {
				output.Success("✓ Removed %d symbol(s) from %s", len(args), listName)
				return nil
			}
			return output.JSON(map[string]interface{}{"list": listName, "removed": args})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show all watchlists",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}
			lists, err := st.GetAllWatchlists(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(lists)
			}
			if len(lists) == 0 {
				output.Dim("No watchlists")
				return nil
			}

			names := make([]string, 0, len(lists))
			for name := range lists {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				output.Bold("%s (%d)", name, len(lists[name]))
				for _, sym := range lists[name] {
					output.Printf("  %s\n", sym)
				}
			}
			return nil
		},
	})

	return cmd
}
