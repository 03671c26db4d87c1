package commands

import (
	"github.com/spf13/cobra"

	"github.com/kayteedberserker/feedsync/internal/output"
)

// CommandInfo describes a CLI command.
type CommandInfo struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Actions     []string `json:"actions,omitempty"`
}

// CommandCategory groups commands by category.
type CommandCategory struct {
	Name     string        `json:"name"`
	Commands []CommandInfo `json:"commands"`
}

func commandCategories() []CommandCategory {
	return []CommandCategory{
		{
			Name: "Feeds",
			Commands: []CommandInfo{
				{Name: "feed", Category: "feeds", Description: "Show a feed"},
				{Name: "search", Category: "feeds", Description: "Search posts"},
				{Name: "browse", Category: "feeds", Description: "Browse a feed interactively"},
			},
		},
		{
			Name: "Actions",
			Commands: []CommandInfo{
				{Name: "like", Category: "actions", Description: "Like a post"},
				{Name: "view", Category: "actions", Description: "Record a view of a post"},
				{Name: "ledger", Category: "actions", Description: "List dispatched actions"},
			},
		},
		{
			Name: "Cache & Config",
			Commands: []CommandInfo{
				{Name: "cache", Category: "config", Description: "Inspect cached pages", Actions: []string{"show"}},
				{Name: "config", Category: "config", Description: "Show configuration", Actions: []string{"show", "path"}},
			},
		},
		{
			Name: "Additional Commands",
			Commands: []CommandInfo{
				{Name: "commands", Category: "additional", Description: "List all commands"},
				{Name: "help", Category: "additional", Description: "Show help"},
				{Name: "version", Category: "additional", Description: "Show version"},
			},
		},
	}
}

// CatalogCommandNames returns all command names from the catalog.
func CatalogCommandNames() []string {
	var names []string
	for _, cat := range commandCategories() {
		for _, cmd := range cat.Commands {
			names = append(names, cmd.Name)
		}
	}
	return names
}

// NewCommandsCmd creates the commands listing command.
func NewCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "commands",
		Aliases: []string{"cmds"},
		Short:   "List all available commands",
		Long:    "List all available feedsync commands organized by category.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			return app.OK(commandCategories(),
				output.WithSummary("All available feedsync commands"),
			)
		},
	}
}
