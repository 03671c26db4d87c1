// Package tui provides the interactive feed browser and the color theme
// shared with the text renderer.
package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles holds the styled components for the browser.
type Styles struct {
	theme Theme

	Title    lipgloss.Style
	Body     lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Cursor   lipgloss.Style
	Selected lipgloss.Style
	Badge    lipgloss.Style
	Status   lipgloss.Style
}

// NewStyles creates styles from the resolved theme.
func NewStyles() *Styles {
	return NewStylesWithTheme(ResolveTheme())
}

// NewStylesWithTheme creates styles for theme.
func NewStylesWithTheme(theme Theme) *Styles {
	return &Styles{
		theme:    theme,
		Title:    lipgloss.NewStyle().Bold(true).Foreground(theme.Primary),
		Body:     lipgloss.NewStyle().Foreground(theme.Foreground),
		Muted:    lipgloss.NewStyle().Foreground(theme.Muted),
		Success:  lipgloss.NewStyle().Foreground(theme.Success),
		Warning:  lipgloss.NewStyle().Foreground(theme.Warning),
		Error:    lipgloss.NewStyle().Foreground(theme.Error).Bold(true),
		Cursor:   lipgloss.NewStyle().Foreground(theme.Primary).Bold(true),
		Selected: lipgloss.NewStyle().Foreground(theme.Foreground).Bold(true),
		Badge:    lipgloss.NewStyle().Foreground(theme.Warning).Bold(true),
		Status: lipgloss.NewStyle().
			Foreground(theme.Secondary).
			BorderTop(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(theme.Border),
	}
}

// Theme returns the palette the styles were built from.
func (s *Styles) Theme() Theme {
	return s.theme
}
