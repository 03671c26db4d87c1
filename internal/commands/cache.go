package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kayteedberserker/feedsync/internal/data"
	"github.com/kayteedberserker/feedsync/internal/models"
	"github.com/kayteedberserker/feedsync/internal/output"
)

// NewCacheCmd creates the cache command.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect cached pages",
	}
	cmd.AddCommand(newCacheShowCmd())
	return cmd
}

func newCacheShowCmd() *cobra.Command {
	var target targetFlags
	var page int
	var query string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show what each cache tier holds for a page",
		Long: `Show the memory and persistent cache entries for one page of a feed.

Nothing is fetched: this reports only what is already stored locally.
Use --search to inspect a search feed instead of a post feed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			if page < 1 {
				return output.ErrUsage("--page must be at least 1")
			}

			t := target.target()
			if query != "" {
				t = searchTarget(query)
			}
			k, err := t.Key()
			if err != nil {
				return output.ErrUsage(err.Error())
			}
			key := k.WithPage(page).String()

			rows := make([]map[string]any, 0, 2)
			if e, ok := app.Tiers.Memory.Get(key); ok {
				rows = append(rows, describeEntry("memory", e, page))
			}
			if e, ok := app.Tiers.Persistent.Get(cmd.Context(), key); ok {
				rows = append(rows, describeEntry("persistent", e, page))
			}

			summary := "Not cached"
			if len(rows) > 0 {
				summary = fmt.Sprintf("Cached in %s", app.Locale.Count(len(rows), "tier", "tiers"))
			}
			return app.OK(rows,
				output.WithSummary(summary),
				output.WithMeta("key", key),
				output.WithMeta("store", app.Config.Store),
			)
		},
	}

	target.register(cmd)
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number")
	cmd.Flags().StringVar(&query, "search", "", "Inspect a search feed for this query")
	cmd.MarkFlagsMutuallyExclusive("search", "category", "author", "clan")
	return cmd
}

func describeEntry(tier string, e data.Entry, page int) map[string]any {
	row := map[string]any{
		"tier":      tier,
		"stored_at": e.StoredAt.UTC().Format(time.RFC3339),
		"age":       output.Ago(e.Age(), e.StoredAt),
		"bytes":     len(e.Payload),
	}
	if p, err := models.DecodePage(e.Payload, page); err == nil {
		row["items"] = len(p.Items)
		if p.HasNext != nil {
			row["has_next"] = strconv.FormatBool(*p.HasNext)
		}
	} else {
		row["items"] = "unreadable"
	}
	return row
}
