package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kayteedberserker/feedsync/internal/output"
)

func TestChoiceFlag(t *testing.T) {
	var v string
	f := newChoiceFlag(&v, "file", "memory")

	require.NoError(t, f.Set(" Memory "))
	assert.Equal(t, "memory", v)
	assert.Equal(t, "memory", f.String())

	err := f.Set("tape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file, memory")
	assert.Equal(t, "memory", v, "rejected values leave the target alone")
	assert.Equal(t, "string", f.Type())
}

func TestRunRejectsUnknownStore(t *testing.T) {
	isolate(t)

	code, env, _ := run(t, "feed", "--json", "--store", "tape")
	assert.Equal(t, output.ExitUsage, code)
	assert.False(t, env.OK)
	assert.Contains(t, env.Error, "must be one of")
}
