package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/pflag"
)

// choiceFlag is a string flag restricted to a fixed set of values, so a
// typo fails during flag parsing instead of after config is loaded.
type choiceFlag struct {
	target  *string
	choices []string
}

var _ pflag.Value = (*choiceFlag)(nil)

func newChoiceFlag(target *string, choices ...string) *choiceFlag {
	return &choiceFlag{target: target, choices: choices}
}

func (f *choiceFlag) String() string {
	if f.target == nil {
		return ""
	}
	return *f.target
}

func (f *choiceFlag) Set(v string) error {
	v = strings.ToLower(strings.TrimSpace(v))
	if !slices.Contains(f.choices, v) {
		return fmt.Errorf("must be one of %s", strings.Join(f.choices, ", "))
	}
	*f.target = v
	return nil
}

func (f *choiceFlag) Type() string { return "string" }
