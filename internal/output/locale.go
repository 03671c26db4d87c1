package output

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Locale formats numbers for the user's language.
type Locale struct {
	tag     language.Tag
	printer *message.Printer
}

// DetectLocale resolves the locale from LC_ALL, LC_NUMERIC or LANG,
// falling back to en-US.
func DetectLocale() Locale {
	raw := os.Getenv("LC_ALL")
	if raw == "" {
		raw = os.Getenv("LC_NUMERIC")
	}
	if raw == "" {
		raw = os.Getenv("LANG")
	}
	return NewLocale(raw)
}

// NewLocale accepts a POSIX locale ("de_DE.UTF-8") or BCP 47 tag ("de-DE").
func NewLocale(raw string) Locale {
	if idx := strings.IndexByte(raw, '.'); idx != -1 {
		raw = raw[:idx]
	}
	raw = strings.ReplaceAll(raw, "_", "-")

	tag, _ := language.Parse(raw)
	if tag == language.Und {
		tag = language.AmericanEnglish
	}
	return Locale{tag: tag, printer: message.NewPrinter(tag)}
}

// Number formats n with locale grouping separators.
func (l Locale) Number(n int) string {
	return l.printer.Sprint(number.Decimal(n))
}

// Count renders "1 post" / "1,204 posts".
func (l Locale) Count(n int, singular, plural string) string {
	if n == 1 {
		return l.Number(n) + " " + singular
	}
	return l.Number(n) + " " + plural
}

// Percent formats a ratio in [0,1].
func (l Locale) Percent(ratio float64) string {
	return l.printer.Sprint(number.Percent(ratio, number.MaxFractionDigits(1)))
}
