package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kayteedberserker/feedsync/internal/data"
	"github.com/kayteedberserker/feedsync/internal/output"
	"github.com/kayteedberserker/feedsync/internal/tui"
)

// NewBrowseCmd creates the interactive browse command.
func NewBrowseCmd() *cobra.Command {
	var target targetFlags

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse a feed interactively",
		Long: `Browse a feed in a full-screen terminal view.

Cached pages show immediately and are refreshed in the background; page 1
keeps polling while the server is reachable. When it is not, the cached
data stays on screen with an offline badge until a retry succeeds.

Keys: j/k move, enter open, l like, n load more, R refresh, r retry,
/ search, esc clear search, q quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			if !app.IsInteractive() {
				return output.ErrUsageHint("browse requires an interactive terminal",
					"Use 'feedsync feed' for scripted output")
			}

			f, err := app.OpenFeed(target.target())
			if err != nil {
				return err
			}

			searches := data.RealmMember(app.Realm, "browse/search", func(ctx context.Context) *data.KeyedFeeds[string] {
				return data.NewKeyedFeeds(func(q string) *data.Feed {
					t := searchTarget(q)
					k, _ := t.Key()
					return app.NewFeed(ctx, k, app.Fetcher(t))
				})
			})

			return tui.RunBrowse(cmd.Context(), tui.BrowseOptions{
				Feed:     f,
				Search:   searches.Get,
				Forget:   searches.Drop,
				Like:     app.Client.Like,
				View:     app.Client.RecordView,
				Metrics:  app.Metrics,
				Debounce: data.DefaultDebounce,
			})
		},
	}

	target.register(cmd)
	return cmd
}
