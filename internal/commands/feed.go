package commands

import (
	"github.com/spf13/cobra"

	"github.com/kayteedberserker/feedsync/internal/output"
)

// NewFeedCmd creates the feed command.
func NewFeedCmd() *cobra.Command {
	var target targetFlags
	var pages int
	var refresh bool

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show a feed",
		Long: `Show the global feed, or one filtered by category, author or clan.

Cached pages are shown first and revalidated against the server. When the
server cannot be reached the last cached data is printed with an offline
notice instead of failing.`,
		Example: `  feedsync feed
  feedsync feed --category art --pages 3
  feedsync feed --author kay --refresh`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			if pages < 1 {
				return output.ErrUsage("--pages must be at least 1")
			}

			f, err := app.OpenFeed(target.target())
			if err != nil {
				return err
			}
			snap := loadFeed(cmd.Context(), f, pages, refresh)
			return writeFeed(app, snap, "post", "posts")
		},
	}

	target.register(cmd)
	cmd.Flags().IntVarP(&pages, "pages", "n", 1, "Number of pages to load")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass cached pages and reload from the server")

	return cmd
}
