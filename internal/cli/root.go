// Package cli wires the root command, global flags and process exit codes.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kayteedberserker/feedsync/internal/appctx"
	"github.com/kayteedberserker/feedsync/internal/commands"
	"github.com/kayteedberserker/feedsync/internal/config"
	"github.com/kayteedberserker/feedsync/internal/output"
	"github.com/kayteedberserker/feedsync/internal/store"
	"github.com/kayteedberserker/feedsync/internal/telemetry"
	"github.com/kayteedberserker/feedsync/internal/version"
)

// NewRootCmd creates the root cobra command without subcommands.
func NewRootCmd() *cobra.Command {
	var flags appctx.GlobalFlags

	cmd := &cobra.Command{
		Use:           "feedsync",
		Short:         "Offline-first client for paginated content feeds",
		Long:          "feedsync reads paginated feeds through a memory and on-disk cache, keeps them fresh in the background, and keeps working from cached data when the server is unreachable.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipSetup(cmd) {
				return nil
			}

			cfg, err := config.Load(config.FlagOverrides{
				BaseURL:  flags.BaseURL,
				CacheDir: flags.CacheDir,
				Store:    flags.Store,
				PageSize: flags.PageSize,
				Verbose:  flags.Verbose,
			})
			if err != nil {
				return output.ErrUsage(err.Error())
			}

			app, err := appctx.NewApp(cmd.Context(), cfg, appctx.Options{
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			app.Flags = flags
			if err := app.ApplyFlags(cmd.OutOrStdout()); err != nil {
				_ = app.Close()
				return err
			}

			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
	}

	// Allow flags anywhere in the command line
	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	// Output format flags
	cmd.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Output data only, no envelope")
	cmd.PersistentFlags().BoolVar(&flags.Text, "text", false, "Output as text even when piped")
	cmd.PersistentFlags().StringVar(&flags.JQ, "jq", "", "Filter JSON output with a jq expression")

	// Context flags
	cmd.PersistentFlags().StringVar(&flags.BaseURL, "base-url", "", "Content API base URL")
	cmd.PersistentFlags().StringVar(&flags.CacheDir, "cache-dir", "", "Cache directory")
	cmd.PersistentFlags().Var(newChoiceFlag(&flags.Store, store.Drivers...), "store", "Persistent cache backend ("+strings.Join(store.Drivers, ", ")+")")
	cmd.PersistentFlags().IntVar(&flags.PageSize, "page-size", 0, "Items per page")

	// Behavior flags
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Log cache and network activity to stderr")

	cmd.MarkFlagsMutuallyExclusive("json", "quiet", "text")

	return cmd
}

// skipSetup reports whether cmd runs without an App.
func skipSetup(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "version", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return true
	}
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "completion" {
			return true
		}
	}
	return false
}

// RegisterCommands adds every subcommand to root.
func RegisterCommands(root *cobra.Command) {
	root.AddCommand(commands.NewFeedCmd())
	root.AddCommand(commands.NewSearchCmd())
	root.AddCommand(commands.NewBrowseCmd())
	root.AddCommand(commands.NewLikeCmd())
	root.AddCommand(commands.NewViewCmd())
	root.AddCommand(commands.NewLedgerCmd())
	root.AddCommand(commands.NewCacheCmd())
	root.AddCommand(commands.NewConfigCmd())
	root.AddCommand(commands.NewCommandsCmd())
	root.AddCommand(commands.NewVersionCmd())
}

// Execute runs the CLI and exits with its exit code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Run executes args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	shutdown, err := telemetry.Setup(ctx, "feedsync")
	if err != nil {
		appctx.NewLogger(stderr, false).Warn("telemetry disabled", "error", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	cmd := NewRootCmd()
	RegisterCommands(cmd)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	executedCmd, err := cmd.ExecuteContextC(ctx)

	var app *appctx.App
	if executedCmd != nil {
		app = appctx.FromContext(executedCmd.Context())
	}
	if app != nil {
		defer func() { _ = app.Close() }()
	}

	if err == nil {
		return output.ExitOK
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return output.ExitOK
	}

	err = transformCobraError(err)
	apiErr := output.AsError(err)

	if app != nil && app.Output != nil {
		_ = app.Err(err)
		return apiErr.ExitCode()
	}

	// Setup failed before an App existed: honor the format flags directly.
	pf := cmd.PersistentFlags()
	format := output.FormatAuto
	jsonFlag, _ := pf.GetBool("json")
	quiet, _ := pf.GetBool("quiet")
	text, _ := pf.GetBool("text")
	switch {
	case quiet:
		format = output.FormatQuiet
	case jsonFlag:
		format = output.FormatJSON
	case text:
		format = output.FormatText
	}

	writer := output.New(output.Options{Format: format, Writer: stdout})
	_ = writer.Err(err)
	return apiErr.ExitCode()
}

var shorthandFlag = regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)

// transformCobraError turns cobra's parse errors into usage errors with
// consistent wording.
func transformCobraError(err error) error {
	var e *output.Error
	if errors.As(err, &e) {
		return err
	}
	msg := err.Error()

	switch {
	case strings.HasPrefix(msg, "flag needs an argument: "):
		flag := strings.TrimPrefix(msg, "flag needs an argument: ")
		return output.ErrUsage(flag + " requires a value")

	case strings.HasPrefix(msg, "unknown flag: "):
		return output.ErrUsage("Unknown option: " + strings.TrimPrefix(msg, "unknown flag: "))

	case strings.HasPrefix(msg, "unknown shorthand flag: "):
		if m := shorthandFlag.FindStringSubmatch(msg); len(m) > 1 {
			return output.ErrUsage("Unknown option: " + m[1])
		}
		return output.ErrUsage(msg)

	case strings.HasPrefix(msg, "unknown command "):
		return output.ErrUsageHint(msg, "Run 'feedsync commands' to list commands")

	case strings.Contains(msg, "invalid argument"),
		strings.Contains(msg, "if any flags in the group"),
		strings.Contains(msg, "arg(s), received"):
		return output.ErrUsage(msg)
	}

	return err
}
