package output

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/term"

	"github.com/kayteedberserker/feedsync/internal/tui"
)

// Renderer handles styled terminal output.
type Renderer struct {
	width  int
	styled bool

	// Text styles
	Summary lipgloss.Style
	Muted   lipgloss.Style
	Data    lipgloss.Style
	Error   lipgloss.Style
	Hint    lipgloss.Style
	Warning lipgloss.Style

	// Table styles
	Header    lipgloss.Style
	Cell      lipgloss.Style
	CellMuted lipgloss.Style
}

// NewRenderer creates a renderer with styles from the resolved theme.
func NewRenderer(w io.Writer, styled bool) *Renderer {
	return NewRendererWithTheme(w, styled, tui.ResolveTheme())
}

// NewRendererWithTheme creates a renderer with a specific theme (for testing).
func NewRendererWithTheme(w io.Writer, styled bool, theme tui.Theme) *Renderer {
	r := &Renderer{width: terminalWidth(w), styled: styled}

	if !styled {
		plain := lipgloss.NewStyle()
		r.Summary, r.Muted, r.Data, r.Error, r.Hint, r.Warning = plain, plain, plain, plain, plain, plain
		r.Header, r.Cell, r.CellMuted = plain, plain, plain
		return r
	}

	r.Summary = lipgloss.NewStyle().Foreground(theme.Primary).Bold(true)
	r.Muted = lipgloss.NewStyle().Foreground(theme.Muted)
	r.Data = lipgloss.NewStyle().Foreground(theme.Foreground)
	r.Error = lipgloss.NewStyle().Foreground(theme.Error).Bold(true)
	r.Hint = lipgloss.NewStyle().Foreground(theme.Muted).Italic(true)
	r.Warning = lipgloss.NewStyle().Foreground(theme.Warning).Bold(true)
	r.Header = lipgloss.NewStyle().Foreground(theme.Foreground).Bold(true)
	r.Cell = lipgloss.NewStyle().Foreground(theme.Foreground)
	r.CellMuted = lipgloss.NewStyle().Foreground(theme.Muted)
	return r
}

func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(f.Fd()); err == nil && width >= 40 {
			return width
		}
	}
	return 80
}

// RenderResponse renders a success response to the writer.
func (r *Renderer) RenderResponse(w io.Writer, resp *Response) error {
	var b strings.Builder

	if resp.Offline {
		b.WriteString(r.Warning.Render("● offline"))
		b.WriteString(" ")
	}
	if resp.Summary != "" {
		b.WriteString(r.Summary.Render(resp.Summary))
	}
	if resp.Offline || resp.Summary != "" {
		b.WriteString("\n")
	}
	if resp.Notice != "" {
		b.WriteString(r.Hint.Render(resp.Notice))
		b.WriteString("\n")
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}

	r.renderData(&b, NormalizeData(resp.Data))

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderError renders an error response to the writer.
func (r *Renderer) RenderError(w io.Writer, resp *ErrorResponse) error {
	var b strings.Builder

	b.WriteString(r.Error.Render("Error: " + resp.Error))
	b.WriteString("\n")

	if resp.Hint != "" {
		b.WriteString(r.Hint.Render("Hint: " + resp.Hint))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) renderData(b *strings.Builder, data any) {
	switch d := data.(type) {
	case []map[string]any:
		if len(d) == 0 {
			b.WriteString(r.Muted.Render("(no results)"))
			b.WriteString("\n")
			return
		}
		r.renderTable(b, d)

	case map[string]any:
		r.renderObject(b, d)

	case []any:
		for _, item := range d {
			b.WriteString(r.Data.Render("• " + formatCell(item)))
			b.WriteString("\n")
		}

	case nil:
		b.WriteString(r.Muted.Render("(no data)"))
		b.WriteString("\n")

	default:
		b.WriteString(r.Data.Render(formatCell(d)))
		b.WriteString("\n")
	}
}

// Column priority for table rendering (lower = higher priority)
var columnPriority = map[string]int{
	"id":         1,
	"author":     2,
	"title":      3,
	"text":       4,
	"category":   5,
	"likes":      6,
	"liked":      7,
	"views":      8,
	"created_at": 9,
}

// Columns to render in muted style
var mutedColumns = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"stored_at":  true,
}

type column struct {
	key      string
	header   string
	priority int
	muted    bool
	width    int
}

func priorityOf(key string) int {
	if p := columnPriority[key]; p != 0 {
		return p
	}
	return 50
}

func (r *Renderer) renderTable(b *strings.Builder, data []map[string]any) {
	columns := r.selectColumns(detectColumns(data), data)
	if len(columns) == 0 {
		return
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.Header
			}
			if col < len(columns) && columns[col].muted {
				return r.CellMuted
			}
			return r.Cell
		})

	headers := make([]string, len(columns))
	for i, col := range columns {
		headers[i] = col.header
	}
	t.Headers(headers...)

	for _, item := range data {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = formatValue(col.key, item[col.key])
		}
		t.Row(row...)
	}

	b.WriteString(t.String())
	b.WriteString("\n")
}

// detectColumns collects scalar keys across all rows; entities from
// different pages need not share a shape.
func detectColumns(data []map[string]any) []column {
	seen := make(map[string]bool)
	var cols []column
	for _, row := range data {
		for key, val := range row {
			if seen[key] {
				continue
			}
			switch val.(type) {
			case map[string]any, []any, []map[string]any:
				continue
			}
			seen[key] = true
			cols = append(cols, column{
				key:      key,
				header:   formatHeader(key),
				priority: priorityOf(key),
				muted:    mutedColumns[key],
			})
		}
	}
	slices.SortFunc(cols, func(a, b column) int {
		if a.priority != b.priority {
			return a.priority - b.priority
		}
		return strings.Compare(a.key, b.key)
	})
	return cols
}

func (r *Renderer) selectColumns(cols []column, data []map[string]any) []column {
	for i := range cols {
		cols[i].width = lipgloss.Width(cols[i].header)
		for _, row := range data {
			if w := lipgloss.Width(formatValue(cols[i].key, row[cols[i].key])); w > cols[i].width {
				cols[i].width = w
			}
		}
		cols[i].width = min(cols[i].width, 40)
	}

	// Drop lowest-priority columns until the table fits
	const padding = 2
	selected := cols
	for len(selected) > 1 {
		total := 0
		for _, col := range selected {
			total += col.width + padding
		}
		if total <= r.width {
			break
		}
		selected = selected[:len(selected)-1]
	}
	return selected
}

func (r *Renderer) renderObject(b *strings.Builder, data map[string]any) {
	var keys []string
	for k, v := range data {
		switch v.(type) {
		case map[string]any, []map[string]any:
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		b.WriteString(r.Muted.Render("(no data)"))
		b.WriteString("\n")
		return
	}
	slices.SortFunc(keys, func(a, b string) int {
		if pa, pb := priorityOf(a), priorityOf(b); pa != pb {
			return pa - pb
		}
		return strings.Compare(a, b)
	})

	maxLen := 0
	for _, k := range keys {
		maxLen = max(maxLen, len(formatHeader(k)))
	}
	for _, k := range keys {
		label := r.Muted.Render(fmt.Sprintf("%-*s: ", maxLen, formatHeader(k)))
		style := r.Data
		if mutedColumns[k] {
			style = r.CellMuted
		}
		b.WriteString(label + style.Render(formatValue(k, data[k])) + "\n")
	}
}

func formatHeader(key string) string {
	key = strings.ReplaceAll(key, "_", " ")
	key = strings.TrimSuffix(key, " at")
	words := strings.Fields(key)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func formatCell(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		if len([]rune(v)) > 40 {
			return string([]rune(v)[:37]) + "..."
		}
		return v
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case float64:
		if v == float64(int(v)) {
			return fmt.Sprintf("%d", int(v))
		}
		return fmt.Sprintf("%.2f", v)
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, formatCell(item))
		}
		return strings.Join(items, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatValue renders timestamp columns as relative ages.
func formatValue(key string, val any) string {
	str, ok := val.(string)
	if !ok || !strings.HasSuffix(key, "_at") {
		return formatCell(val)
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return formatCell(val)
	}
	return Ago(time.Since(t), t)
}

// Ago describes an elapsed duration; older than a week falls back to the
// date of t.
func Ago(d time.Duration, t time.Time) string {
	switch {
	case d < 0:
		return t.Format("Jan 2, 2006")
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour") + " ago"
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "yesterday"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("Jan 2, 2006")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
