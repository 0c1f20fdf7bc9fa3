package check

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinyrange/cpucheck/internal/kconfig"
	"github.com/tinyrange/cpucheck/internal/x86/hw/profile"
)

func machine(t *testing.T, name string) *profile.Machine {
	t.Helper()
	p, err := profile.Builtin(name)
	require.NoError(t, err)
	return profile.MustNew(*p)
}

func preset(t *testing.T, name string) kconfig.Build {
	t.Helper()
	b, ok := kconfig.Preset(name)
	require.True(t, ok, name)
	return b
}

type options map[string]bool

func (o options) HasOption(name string) bool { return o[name] }

type lines []string

func (l *lines) PrintLine(text string) { *l = append(*l, text) }
