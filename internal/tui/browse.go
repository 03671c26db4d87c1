package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	glamourstyles "github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/kayteedberserker/feedsync/internal/data"
	"github.com/kayteedberserker/feedsync/internal/models"
)

// BrowseOptions configures the feed browser.
type BrowseOptions struct {
	// Feed is shown on start and whenever the search box is cleared.
	Feed *data.Feed

	// Search returns the feed for a query. Nil disables search.
	Search func(query string) *data.Feed

	// Forget releases the feed for a query once the browser leaves it.
	Forget func(query string)

	Like    data.SendFunc
	View    data.SendFunc
	Metrics *data.Metrics
	Styles  *Styles

	// Debounce is the idle time before a typed query is searched.
	Debounce time.Duration
}

type (
	feedChangedMsg struct{}
	feedSettledMsg struct{}
	searchMsg      struct{ query string }
	actionDoneMsg  struct {
		verb  string
		id    string
		fired bool
		err   error
	}
)

// BrowseModel is the bubbletea model for browsing one feed at a time.
// Feed updates arrive through a subscription; the model re-reads the
// feed's snapshot whenever it is told something changed.
type BrowseModel struct {
	ctx    context.Context
	opts   BrowseOptions
	styles *Styles
	keys   BrowseKeyMap
	skeys  SearchKeyMap

	active  *data.Feed
	shown   string // query of the active feed, "" for the base feed
	snap    data.FeedSnapshot
	unsub   func()
	changes chan struct{}

	search    textinput.Model
	searching bool
	query     string
	queries   chan string
	debounce  *data.Debouncer

	markdown     *glamour.TermRenderer
	markdownWrap int
	dark         bool

	spinner  spinner.Model
	cursor   int
	expanded bool
	status   string
	width    int
	height   int
	quitting bool
}

// NewBrowseModel creates a browser over opts.Feed.
func NewBrowseModel(ctx context.Context, opts BrowseOptions) *BrowseModel {
	styles := opts.Styles
	if styles == nil {
		styles = NewStyles()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(styles.Theme().Primary)

	ti := textinput.New()
	ti.Placeholder = "search"
	ti.Prompt = "/ "
	ti.CharLimit = 200

	m := &BrowseModel{
		ctx:      ctx,
		opts:     opts,
		styles:   styles,
		keys:     DefaultBrowseKeyMap(),
		skeys:    DefaultSearchKeyMap(),
		changes:  make(chan struct{}, 1),
		queries:  make(chan string, 1),
		debounce: data.NewDebouncer(opts.Debounce),
		search:   ti,
		spinner:  s,
		dark:     lipgloss.HasDarkBackground(),
	}
	m.attach(opts.Feed, "")
	return m
}

// attach switches the browser to f, the feed for query, and mounts it.
// The feed being left stops polling; a left search feed is forgotten.
func (m *BrowseModel) attach(f *data.Feed, query string) {
	m.detach()
	m.active, m.shown = f, query
	m.cursor = 0
	m.expanded = false
	if f == nil {
		m.snap = data.FeedSnapshot{}
		return
	}
	m.unsub = f.Subscribe(func(data.FeedSnapshot) {
		select {
		case m.changes <- struct{}{}:
		default:
		}
	})
	m.snap = f.Mount(m.ctx)
}

func (m *BrowseModel) detach() {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
	prev, q := m.active, m.shown
	m.active, m.shown = nil, ""
	if prev == nil {
		return
	}
	prev.Unmount()
	if q != "" && m.opts.Forget != nil {
		m.opts.Forget(q)
	}
}

func (m *BrowseModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return nil
		case <-m.changes:
			return feedChangedMsg{}
		}
	}
}

func (m *BrowseModel) waitForQuery() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return nil
		case q := <-m.queries:
			return searchMsg{query: q}
		}
	}
}

// queueQuery hands q to waitForQuery, replacing any query not yet picked up.
func (m *BrowseModel) queueQuery(q string) {
	select {
	case <-m.queries:
	default:
	}
	select {
	case m.queries <- q:
	default:
	}
}

func (m *BrowseModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForChange(), m.waitForQuery())
}

func (m *BrowseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case feedChangedMsg:
		m.refreshSnapshot()
		return m, m.waitForChange()

	case feedSettledMsg:
		m.refreshSnapshot()
		return m, nil

	case searchMsg:
		m.runSearch(msg.query)
		return m, m.waitForQuery()

	case actionDoneMsg:
		m.status = actionStatus(msg)
		m.refreshSnapshot()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.snap.Loading {
			m.refreshSnapshot()
		}
		return m, cmd

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m *BrowseModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit, m.keys.Interrupt):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
			m.expanded = false
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.snap.Items)-1 {
			m.cursor++
			m.expanded = false
		}
		if m.cursor >= len(m.snap.Items)-1 {
			return m, m.feedCmd(func(ctx context.Context, f *data.Feed) { f.LoadMore(ctx) })
		}
	case key.Matches(msg, m.keys.More):
		return m, m.feedCmd(func(ctx context.Context, f *data.Feed) { f.LoadMore(ctx) })
	case key.Matches(msg, m.keys.Retry):
		m.status = "Retrying…"
		return m, m.feedCmd(func(ctx context.Context, f *data.Feed) { f.Retry(ctx) })
	case key.Matches(msg, m.keys.Refresh):
		m.status = "Refreshing…"
		return m, m.feedCmd(func(ctx context.Context, f *data.Feed) { f.Refresh(ctx) })
	case key.Matches(msg, m.keys.Like):
		return m, m.actionCmd("liked", m.opts.Like, (*data.Feed).Like)
	case key.Matches(msg, m.keys.Open):
		m.expanded = !m.expanded
		if m.expanded {
			return m, m.actionCmd("viewed", m.opts.View, (*data.Feed).RecordView)
		}
	case key.Matches(msg, m.keys.Search):
		if m.opts.Search != nil {
			m.searching = true
			m.search.SetValue(m.query)
			return m, m.search.Focus()
		}
	case key.Matches(msg, m.keys.Clear):
		if m.query != "" {
			m.query = ""
			m.debounce.Stop()
			m.attach(m.opts.Feed, "")
		}
	}
	return m, nil
}

func (m *BrowseModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.skeys.Interrupt):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.skeys.Done):
		m.searching = false
		m.search.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	q := strings.TrimSpace(m.search.Value())
	m.debounce.Trigger(func() { m.queueQuery(q) })
	return m, cmd
}

// runSearch switches to the feed for q. An empty query returns to the
// base feed.
func (m *BrowseModel) runSearch(q string) {
	if q == m.query {
		return
	}
	m.query = q
	if q == "" || m.opts.Search == nil {
		m.attach(m.opts.Feed, "")
		return
	}
	m.attach(m.opts.Search(q), q)
}

func (m *BrowseModel) refreshSnapshot() {
	if m.active == nil {
		return
	}
	m.snap = m.active.Snapshot()
	if n := len(m.snap.Items); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

func (m *BrowseModel) feedCmd(fn func(ctx context.Context, f *data.Feed)) tea.Cmd {
	f := m.active
	if f == nil {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		fn(ctx, f)
		return feedSettledMsg{}
	}
}

func (m *BrowseModel) actionCmd(verb string, send data.SendFunc, dispatch func(*data.Feed, context.Context, string, data.SendFunc) (bool, error)) tea.Cmd {
	f := m.active
	item, ok := m.selected()
	if f == nil || !ok || send == nil {
		return nil
	}
	id := item.ID()
	ctx := m.ctx
	return func() tea.Msg {
		fired, err := dispatch(f, ctx, id, send)
		return actionDoneMsg{verb: verb, id: id, fired: fired, err: err}
	}
}

func actionStatus(msg actionDoneMsg) string {
	switch {
	case msg.err != nil:
		return fmt.Sprintf("Could not send %s for %s: %v", msg.verb, msg.id, msg.err)
	case !msg.fired:
		return fmt.Sprintf("Already %s %s", msg.verb, msg.id)
	default:
		if msg.verb == "viewed" {
			return ""
		}
		return fmt.Sprintf("%s %s", capitalize(msg.verb), msg.id)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (m *BrowseModel) selected() (models.Entity, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Items) {
		return nil, false
	}
	return m.snap.Items[m.cursor], true
}

// Close releases the subscription and pending search.
func (m *BrowseModel) Close() {
	m.debounce.Stop()
	m.detach()
}

func (m *BrowseModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	if m.searching || m.query != "" {
		if m.searching {
			b.WriteString(m.search.View())
		} else {
			b.WriteString(m.styles.Muted.Render("search: " + m.query + "  (esc to clear)"))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.list())
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(m.styles.Muted.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.statusLine())
	return b.String()
}

func (m *BrowseModel) header() string {
	name := m.snap.Name
	if name == "" && m.active != nil {
		name = m.active.Name()
	}
	parts := []string{m.styles.Title.Render("feedsync"), m.styles.Muted.Render(name)}
	if m.snap.Offline() {
		badge := "● offline"
		if !m.snap.StoredAt.IsZero() {
			badge += " · cached " + ago(time.Since(m.snap.StoredAt))
		}
		parts = append(parts, m.styles.Badge.Render(badge))
	}
	if m.snap.Loading || (m.active != nil && !m.snap.HasData && m.snap.Err == nil) {
		parts = append(parts, m.spinner.View())
	}
	return strings.Join(parts, "  ")
}

func (m *BrowseModel) list() string {
	if !m.snap.HasData {
		if m.snap.Err != nil {
			return m.styles.Error.Render("✗ "+m.snap.Err.Error()) + "\n" +
				m.styles.Muted.Render("press r to retry")
		}
		return m.styles.Muted.Render("Loading…")
	}
	if len(m.snap.Items) == 0 {
		return m.styles.Muted.Render("Nothing here yet")
	}

	rows := m.visibleRange()
	var b strings.Builder
	for i := rows.start; i < rows.end; i++ {
		b.WriteString(m.row(i, m.snap.Items[i]))
		b.WriteString("\n")
	}
	if m.snap.HasMore {
		b.WriteString(m.styles.Muted.Render("  … more (n)"))
		b.WriteString("\n")
	}
	return b.String()
}

type span struct{ start, end int }

// visibleRange keeps the cursor on screen when the list is taller than
// the window.
func (m *BrowseModel) visibleRange() span {
	n := len(m.snap.Items)
	room := m.height - 8
	if room <= 0 || n <= room {
		return span{0, n}
	}
	start := max(m.cursor-room/2, 0)
	end := min(start+room, n)
	return span{end - room, end}
}

func (m *BrowseModel) row(i int, e models.Entity) string {
	title := e.String(models.FieldTitle)
	if title == "" {
		title = e.String("text")
	}
	if title == "" {
		title = e.ID()
	}

	likes := fmt.Sprintf("♥ %d", e.Int(models.FieldLikes))
	if e.Bool(models.FieldLiked) {
		likes = m.styles.Success.Render(likes)
	} else {
		likes = m.styles.Muted.Render(likes)
	}
	views := m.styles.Muted.Render(fmt.Sprintf("%d views", e.Int(models.FieldViews)))

	marker := "  "
	style := m.styles.Body
	if i == m.cursor {
		marker = m.styles.Cursor.Render("> ")
		style = m.styles.Selected
	}
	line := marker + style.Render(truncate(title, m.width-24)) + "  " + likes + "  " + views

	if i == m.cursor && m.expanded {
		if text := e.String("text"); text != "" && text != title {
			line += "\n" + m.renderBody(text)
		}
		if author := e.String("author"); author != "" {
			line += "\n    " + m.styles.Muted.Render("by "+author)
		}
	}
	return line
}

func (m *BrowseModel) statusLine() string {
	s := m.opts.Metrics.Summary()
	parts := []string{
		fmt.Sprintf("p50 %s", s.P50Latency.Round(time.Millisecond)),
		fmt.Sprintf("errors %.0f%%", s.ErrorRate*100),
		fmt.Sprintf("apdex %.2f", s.Apdex),
	}
	if m.snap.Pending > 0 {
		parts = append(parts, fmt.Sprintf("%d pending", m.snap.Pending))
	}
	return m.styles.Status.Render(strings.Join(parts, " · ") + "\n" + helpLine(m.keys.ShortHelp()))
}

// renderBody renders post text as markdown, indented under its row.
// Text that fails to render is shown as is.
func (m *BrowseModel) renderBody(text string) string {
	wrap := 76
	if m.width > 8 {
		wrap = m.width - 8
	}
	if m.markdown == nil || m.markdownWrap != wrap {
		style := glamourstyles.DarkStyle
		if m.styles.Theme() == NoColorTheme() {
			style = glamourstyles.NoTTYStyle
		} else if !m.dark {
			style = glamourstyles.LightStyle
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			return "    " + m.styles.Body.Render(text)
		}
		m.markdown, m.markdownWrap = r, wrap
	}
	out, err := m.markdown.Render(text)
	if err != nil {
		return "    " + m.styles.Body.Render(text)
	}
	return strings.TrimRight(out, "\n")
}

// truncate shortens s to width terminal cells. A width <= 0 means no limit.
func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	return ansi.Truncate(s, width, "…")
}

func ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// RunBrowse runs the browser until the user quits or ctx is canceled.
func RunBrowse(ctx context.Context, opts BrowseOptions) error {
	m := NewBrowseModel(ctx, opts)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
