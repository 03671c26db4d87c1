package commands

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kayteedberserker/feedsync/internal/appctx"
	"github.com/kayteedberserker/feedsync/internal/data"
	"github.com/kayteedberserker/feedsync/internal/output"
)

// dispatchFunc runs one ledger-gated action on a feed.
type dispatchFunc func(ctx context.Context, f *data.Feed, app *appctx.App, id string) (bool, error)

// NewLikeCmd creates the like command.
func NewLikeCmd() *cobra.Command {
	return newActionCmd("like", "Like a post", "liked",
		func(ctx context.Context, f *data.Feed, app *appctx.App, id string) (bool, error) {
			return f.Like(ctx, id, app.Client.Like)
		})
}

// NewViewCmd creates the view command.
func NewViewCmd() *cobra.Command {
	return newActionCmd("view", "Record a view of a post", "viewed",
		func(ctx context.Context, f *data.Feed, app *appctx.App, id string) (bool, error) {
			return f.RecordView(ctx, id, app.Client.RecordView)
		})
}

func newActionCmd(use, short, past string, dispatch dispatchFunc) *cobra.Command {
	var target targetFlags

	cmd := &cobra.Command{
		Use:   use + " <post-id>",
		Short: short,
		Long: short + `.

Each post is ` + past + ` at most once: the action is recorded in the local
ledger before the request is sent, and repeats are skipped without
contacting the server. The feed containing the post (global by default) is
loaded first so the change is shown against current counts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			if id == "" {
				return output.ErrUsage("Post ID required")
			}

			f, err := app.OpenFeed(target.target())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			f.Mount(ctx)
			f.Wait()

			fired, err := dispatch(ctx, f, app, id)
			if err != nil {
				e := output.AsError(err)
				e.Hint = "Recorded locally; it will not be sent again"
				return e
			}

			result := map[string]any{
				"id":         id,
				"action":     past,
				"dispatched": fired,
			}
			if e, ok := f.Snapshot().Items.Find(id); ok {
				result["post"] = e
			}

			opts := []output.ResponseOption{output.WithSummary("Post " + id + " " + past)}
			if !fired {
				opts = []output.ResponseOption{
					output.WithSummary("Post " + id + " already " + past),
					output.WithNotice("Nothing sent: this action was dispatched before"),
				}
			}
			return app.OK(result, opts...)
		},
	}

	target.register(cmd)
	return cmd
}
