package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kayteedberserker/feedsync/internal/config"
	"github.com/kayteedberserker/feedsync/internal/output"
)

// NewConfigCmd creates the config command.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
		Long: `Show feedsync configuration.

Configuration is loaded from multiple sources with the following precedence:
  flags > env > local > global > defaults

Config locations:
  - Global: ~/.config/feedsync/config.yaml
  - Local:  .feedsync/config.yaml

Environment variables use the FEEDSYNC_ prefix, e.g. FEEDSYNC_PAGE_SIZE.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show effective configuration",
			Long:  "Display the current effective configuration with source information.",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigShow(cmd)
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the global config file path",
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := requireApp(cmd)
				if err != nil {
					return err
				}
				return app.OK(map[string]string{"path": config.GlobalConfigPath()})
			},
		},
	)

	return cmd
}

func runConfigShow(cmd *cobra.Command) error {
	app, err := requireApp(cmd)
	if err != nil {
		return err
	}
	cfg := app.Config

	rows := []map[string]string{}
	add := func(key, value string) {
		source := cfg.Sources[key]
		if source == "" {
			source = string(config.SourceDefault)
		}
		rows = append(rows, map[string]string{"key": key, "value": value, "source": source})
	}

	add("base_url", cfg.BaseURL)
	add("request_timeout", cfg.RequestTimeout.String())
	add("rate_limit", strconv.FormatFloat(cfg.RateLimit, 'f', -1, 64))
	add("cache_dir", cfg.CacheDir)
	add("store", cfg.Store)
	if cfg.ValkeyAddress != "" {
		add("valkey_address", cfg.ValkeyAddress)
	}
	add("page_size", strconv.Itoa(cfg.PageSize))
	add("poll_interval", cfg.PollInterval.String())
	add("ledger_capacity", strconv.Itoa(cfg.LedgerCapacity))
	add("format", cfg.Format)
	add("verbose", fmt.Sprintf("%t", cfg.Verbose))

	return app.OK(rows, output.WithSummary("Effective configuration"))
}
