package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kayteedberserker/feedsync/internal/output"
)

// NewLedgerCmd creates the ledger command.
func NewLedgerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "List dispatched actions",
		Long: `List the likes and views this client has dispatched, oldest first.

The ledger keeps a bounded number of entries (ledger_capacity); once full,
the oldest entry is forgotten to make room.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			tokens := app.Ledger.Tokens()
			rows := make([]map[string]any, 0, len(tokens))
			for _, t := range tokens {
				rows = append(rows, map[string]any{
					"id":     t.EntityID,
					"action": string(t.Kind),
				})
			}

			opts := []output.ResponseOption{
				output.WithSummary(app.Locale.Count(len(rows), "action", "actions")),
			}
			if n := app.Ledger.Evicted(); n > 0 {
				opts = append(opts, output.WithNotice(fmt.Sprintf("%d older actions were forgotten", n)))
			}
			return app.OK(rows, opts...)
		},
	}
}
