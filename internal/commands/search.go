package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/kayteedberserker/feedsync/internal/output"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	var pages int
	var refresh bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search posts",
		Long: `Search posts by text.

Results are cached per query like any other feed, so repeating a search
offline prints the last results.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return output.ErrUsage("Search query required")
			}
			if pages < 1 {
				return output.ErrUsage("--pages must be at least 1")
			}

			f, err := app.OpenFeed(searchTarget(query))
			if err != nil {
				return err
			}
			snap := loadFeed(cmd.Context(), f, pages, refresh)
			return writeFeed(app, snap, "result", "results")
		},
	}

	cmd.Flags().IntVarP(&pages, "pages", "n", 1, "Number of pages to load")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass cached results")

	return cmd
}
