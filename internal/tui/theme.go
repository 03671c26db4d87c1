package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// EnvTheme names a theme file to load instead of the user theme.
const EnvTheme = "FEEDSYNC_THEME"

// Theme defines the color palette shared by the renderer and the browser.
type Theme struct {
	Primary    lipgloss.AdaptiveColor
	Secondary  lipgloss.AdaptiveColor
	Success    lipgloss.AdaptiveColor
	Warning    lipgloss.AdaptiveColor
	Error      lipgloss.AdaptiveColor
	Muted      lipgloss.AdaptiveColor
	Foreground lipgloss.AdaptiveColor
	Border     lipgloss.AdaptiveColor
}

// DefaultTheme returns the built-in palette.
func DefaultTheme() Theme {
	return Theme{
		Primary:    lipgloss.AdaptiveColor{Light: "#c2410c", Dark: "#fb923c"},
		Secondary:  lipgloss.AdaptiveColor{Light: "#5f6368", Dark: "#9aa0a6"},
		Success:    lipgloss.AdaptiveColor{Light: "#1e8e3e", Dark: "#81c995"},
		Warning:    lipgloss.AdaptiveColor{Light: "#b45309", Dark: "#fdd663"},
		Error:      lipgloss.AdaptiveColor{Light: "#d93025", Dark: "#f28b82"},
		Muted:      lipgloss.AdaptiveColor{Light: "#80868b", Dark: "#6e7681"},
		Foreground: lipgloss.AdaptiveColor{Light: "#202124", Dark: "#e8eaed"},
		Border:     lipgloss.AdaptiveColor{Light: "#dadce0", Dark: "#3c4043"},
	}
}

// NoColorTheme returns a palette of empty colors, which lipgloss renders
// as plain text.
func NoColorTheme() Theme {
	var empty lipgloss.AdaptiveColor
	return Theme{
		Primary: empty, Secondary: empty, Success: empty, Warning: empty,
		Error: empty, Muted: empty, Foreground: empty, Border: empty,
	}
}

// ResolveTheme picks the palette:
//  1. NO_COLOR set: no colors
//  2. FEEDSYNC_THEME: path to a theme file
//  3. ~/.config/feedsync/theme.yaml
//  4. the built-in palette
//
// An unreadable theme file falls through to the next step.
func ResolveTheme() Theme {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return NoColorTheme()
	}
	if path := os.Getenv(EnvTheme); path != "" {
		if theme, err := LoadThemeFile(path); err == nil {
			return theme
		}
	}
	if path := userThemePath(); path != "" {
		if theme, err := LoadThemeFile(path); err == nil {
			return theme
		}
	}
	return DefaultTheme()
}

func userThemePath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "feedsync", "theme.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "feedsync", "theme.yaml")
}

// themeFile is the on-disk shape of a theme. Each color is either a single
// hex value used for both backgrounds or a {light, dark} pair.
//
//	primary: "#fb923c"
//	muted:
//	  light: "#80868b"
//	  dark: "#6e7681"
type themeFile map[string]themeColor

type themeColor struct {
	Light string `yaml:"light"`
	Dark  string `yaml:"dark"`
}

func (c *themeColor) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Light, c.Dark = node.Value, node.Value
		return nil
	}
	type plain themeColor
	return node.Decode((*plain)(c))
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// LoadThemeFile reads a YAML theme. Missing or invalid colors keep their
// built-in value.
func LoadThemeFile(path string) (Theme, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // G304: path from user config
	if err != nil {
		return Theme{}, err
	}
	var file themeFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Theme{}, fmt.Errorf("parse theme %s: %w", path, err)
	}
	return file.theme(), nil
}

func (f themeFile) theme() Theme {
	t := DefaultTheme()
	slots := map[string]*lipgloss.AdaptiveColor{
		"primary":    &t.Primary,
		"secondary":  &t.Secondary,
		"success":    &t.Success,
		"warning":    &t.Warning,
		"error":      &t.Error,
		"muted":      &t.Muted,
		"foreground": &t.Foreground,
		"border":     &t.Border,
	}
	for name, slot := range slots {
		c, ok := f[name]
		if !ok {
			continue
		}
		if hexColor.MatchString(c.Light) {
			slot.Light = c.Light
		}
		if hexColor.MatchString(c.Dark) {
			slot.Dark = c.Dark
		}
	}
	return t
}
