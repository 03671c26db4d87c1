// Package appctx provides application context helpers.
package appctx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"os"

	"github.com/charmbracelet/x/term"

	"github.com/kayteedberserker/feedsync/internal/api"
	"github.com/kayteedberserker/feedsync/internal/config"
	"github.com/kayteedberserker/feedsync/internal/data"
	"github.com/kayteedberserker/feedsync/internal/output"
	"github.com/kayteedberserker/feedsync/internal/store"
)

// contextKey is a private type for context keys.
type contextKey string

const appKey contextKey = "app"

// App holds the shared application context for all commands. The memory
// tier, persistent store and ledger are created once here and shared by
// every feed the process opens.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   store.Store
	Tiers   *data.Tiers
	Ledger  *data.Ledger
	Client  *api.Client
	Metrics *data.Metrics
	Realm   *data.Realm
	Output  *output.Writer
	Locale  output.Locale

	// Flags holds the global flag values
	Flags GlobalFlags
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	// Output format flags
	JSON  bool
	Quiet bool
	Text  bool
	JQ    string

	// Context flags
	BaseURL  string
	CacheDir string
	Store    string
	PageSize int

	// Behavior flags
	Verbose bool
}

// Options lets tests swap out process-wide resources.
type Options struct {
	Store  store.Store // overrides cfg.Store when set
	Stdout io.Writer
	Stderr io.Writer
}

// NewApp creates the App for cfg, opening the persistent store and
// loading the action ledger from it.
func NewApp(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	logger := NewLogger(stderr, cfg.Verbose)

	st := opts.Store
	if st == nil {
		var err error
		st, err = store.Open(store.Options{
			Driver:        cfg.Store,
			Dir:           cfg.CacheDir,
			ValkeyAddress: cfg.ValkeyAddress,
			Logger:        logger,
		})
		if err != nil {
			return nil, output.ErrStorage(err)
		}
	}

	client, err := api.NewClient(api.Options{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.RequestTimeout,
		RateLimit: cfg.RateLimit,
		Logger:    logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	ledger, err := data.OpenLedger(ctx, st, cfg.LedgerCapacity, logger)
	if err != nil {
		_ = st.Close()
		return nil, output.ErrStorage(err)
	}

	format, err := output.ParseFormat(cfg.Format)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	tiers := data.NewTiers(data.NewMemoryCache(), st, logger)
	if err := tiers.WatchPersistent(ctx); err != nil {
		logger.Debug("persistent store watch unavailable", "error", err)
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		Store:   st,
		Tiers:   tiers,
		Ledger:  ledger,
		Client:  client,
		Metrics: data.NewMetrics(),
		Realm:   data.NewRealm("cli", ctx),
		Locale:  output.DetectLocale(),
		Output: output.New(output.Options{
			Format: format,
			Writer: stdout,
		}),
	}, nil
}

// NewLogger builds the process logger: debug when verbose, warnings
// otherwise.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ApplyFlags applies global output flags. An invalid --jq expression is a
// usage error.
func (a *App) ApplyFlags(stdout io.Writer) error {
	if stdout == nil {
		stdout = os.Stdout
	}
	opts := output.Options{Writer: stdout}

	format, err := output.ParseFormat(a.Config.Format)
	if err != nil {
		return err
	}
	opts.Format = format
	switch {
	case a.Flags.Quiet:
		opts.Format = output.FormatQuiet
	case a.Flags.JSON:
		opts.Format = output.FormatJSON
	case a.Flags.Text:
		opts.Format = output.FormatText
	}

	if a.Flags.JQ != "" {
		code, err := output.CompileFilter(a.Flags.JQ)
		if err != nil {
			return err
		}
		opts.Filter = code
	}
	opts.Verbose = a.Config.Verbose

	a.Output = output.New(opts)
	return nil
}

// OK outputs a success response.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	return a.Output.OK(data, opts...)
}

// Err outputs an error response.
func (a *App) Err(err error) error {
	return a.Output.Err(err)
}

// Target names one feed: a resource, an optional id and filters.
type Target struct {
	Resource string
	ID       string
	Query    url.Values
}

// Key returns the cache key of the target's first page.
func (t Target) Key() (data.Key, error) {
	k := data.NewKey(t.Resource, t.ID, t.Query)
	if err := k.Validate(); err != nil {
		return data.Key{}, output.ErrUsage(err.Error())
	}
	return k, nil
}

// Fetcher returns the page fetcher for t backed by the API client.
func (a *App) Fetcher(t Target) data.PageFetcher {
	return func(ctx context.Context, page, limit int) ([]byte, error) {
		return a.Client.ListPage(ctx, t.Resource, t.ID, t.Query, page, limit)
	}
}

// OpenFeed returns the realm's feed for t, creating it on first use.
func (a *App) OpenFeed(t Target) (*data.Feed, error) {
	k, err := t.Key()
	if err != nil {
		return nil, err
	}
	return data.RealmMember(a.Realm, k.Feed(), func(ctx context.Context) *data.Feed {
		return a.NewFeed(ctx, k, a.Fetcher(t))
	}), nil
}

// NewFeed creates an unregistered feed sharing the app's tiers and ledger.
func (a *App) NewFeed(ctx context.Context, k data.Key, fetch data.PageFetcher) *data.Feed {
	return data.NewFeed(ctx, a.Tiers, data.FeedConfig{
		Key:          k,
		PageSize:     a.Config.PageSize,
		Fetch:        fetch,
		Ledger:       a.Ledger,
		PollInterval: a.Config.PollInterval,
		Logger:       a.Logger,
		Metrics:      a.Metrics,
	})
}

// Close tears down every feed, then closes the store.
func (a *App) Close() error {
	if a.Realm != nil {
		a.Realm.Teardown()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// IsInteractive returns true if the terminal supports interactive TUI.
func (a *App) IsInteractive() bool {
	if a.Flags.JSON || a.Flags.Quiet || a.Flags.JQ != "" {
		return false
	}
	return term.IsTerminal(os.Stdin.Fd()) && term.IsTerminal(os.Stdout.Fd())
}

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	app, _ := ctx.Value(appKey).(*App)
	return app
}

// ErrNoApp is returned by commands run without a PersistentPreRunE.
var ErrNoApp = errors.New("app not initialized")
