// Package commands implements the feedsync subcommands.
package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/kayteedberserker/feedsync/internal/appctx"
	"github.com/kayteedberserker/feedsync/internal/data"
	"github.com/kayteedberserker/feedsync/internal/output"
)

// targetFlags selects which feed a command works on. At most one of
// category, author and clan may be set; none means the global feed.
type targetFlags struct {
	category string
	author   string
	clan     string
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.category, "category", "c", "", "Global feed filtered by category")
	cmd.Flags().StringVarP(&f.author, "author", "a", "", "Posts by one author")
	cmd.Flags().StringVar(&f.clan, "clan", "", "Posts from one clan")
	cmd.MarkFlagsMutuallyExclusive("category", "author", "clan")
}

func (f *targetFlags) target() appctx.Target {
	switch {
	case f.author != "":
		return appctx.Target{Resource: data.ResourceAuthor, ID: f.author}
	case f.clan != "":
		return appctx.Target{Resource: data.ResourceClan, ID: f.clan}
	case f.category != "":
		return appctx.Target{Resource: data.ResourcePosts, Query: url.Values{"category": {f.category}}}
	default:
		return appctx.Target{Resource: data.ResourcePosts}
	}
}

func searchTarget(query string) appctx.Target {
	return appctx.Target{Resource: data.ResourceSearch, Query: url.Values{"q": {query}}}
}

// requireApp returns the app stored by the root command.
func requireApp(cmd *cobra.Command) (*appctx.App, error) {
	app := appctx.FromContext(cmd.Context())
	if app == nil {
		return nil, appctx.ErrNoApp
	}
	return app, nil
}

// loadFeed mounts the feed, optionally refreshes it, and loads up to pages
// pages, waiting for each background fetch to settle.
func loadFeed(ctx context.Context, f *data.Feed, pages int, refresh bool) data.FeedSnapshot {
	f.Mount(ctx)
	f.Wait()
	if refresh {
		f.Refresh(ctx)
		f.Wait()
	}
	for page := 1; page < pages; page++ {
		if !f.LoadMore(ctx) {
			break
		}
		f.Wait()
	}
	return f.Snapshot()
}

// feedError returns the error to exit with when a feed has nothing to show.
// Stale data is never an error: it is printed with the offline notice.
func feedError(snap data.FeedSnapshot) error {
	if snap.HasData || snap.Err == nil {
		return nil
	}
	return output.AsError(snap.Err)
}

// writeFeed prints a feed snapshot with its freshness metadata.
func writeFeed(app *appctx.App, snap data.FeedSnapshot, noun, nouns string) error {
	if err := feedError(snap); err != nil {
		return err
	}

	summary := app.Locale.Count(len(snap.Items), noun, nouns)
	if snap.Total != nil {
		summary += fmt.Sprintf(" of %s", app.Locale.Number(*snap.Total))
	}
	if snap.HasMore {
		summary += " (more available)"
	}

	opts := []output.ResponseOption{
		output.WithSummary(summary),
		output.WithOffline(snap.Offline()),
		output.WithMeta("feed", snap.Name),
		output.WithMeta("page", snap.Page),
		output.WithMeta("has_more", snap.HasMore),
		output.WithMeta("state", snap.State.String()),
		output.WithMeta("source", snap.Source.String()),
	}
	if !snap.StoredAt.IsZero() {
		opts = append(opts, output.WithMeta("stored_at", snap.StoredAt.UTC().Format(time.RFC3339)))
	}
	if snap.Pending > 0 {
		opts = append(opts, output.WithMeta("pending", snap.Pending))
	}
	if snap.Rejected > 0 {
		opts = append(opts, output.WithMeta("rejected", snap.Rejected))
	}
	if notice := freshnessNotice(snap); notice != "" {
		opts = append(opts, output.WithNotice(notice))
	}

	return app.OK(snap.Items, opts...)
}

func freshnessNotice(snap data.FeedSnapshot) string {
	if !snap.Offline() {
		return ""
	}
	if snap.StoredAt.IsZero() {
		return "Offline: could not reach the server"
	}
	return "Offline: showing data cached " + output.Ago(time.Since(snap.StoredAt), snap.StoredAt)
}
