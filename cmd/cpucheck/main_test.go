package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyrange/cpucheck/internal/kconfig"
	"github.com/tinyrange/cpucheck/internal/x86/check"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := rootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCheckPasses(t *testing.T) {
	out, _, err := execute(t, "--cpu", "skylake-client", "--build", "x86_64")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCheckRejects(t *testing.T) {
	out, _, err := execute(t, "--cpu", "pentium-m-dothan", "--build", "i686-pae")
	assert.ErrorIs(t, err, errRejected)
	assert.Equal(t, "WARNING: PAE disabled. Use parameter 'forcepae' to enable at your own risk!\n"+
		"This kernel requires the following features not present on the CPU:\n"+
		"pae\n"+
		check.BootFailureMessage+"\n", out)
}

func TestCheckForcePAE(t *testing.T) {
	out, _, err := execute(t, "--cpu", "pentium-m-dothan", "--build", "i686-pae", "--cmdline", "quiet forcepae")
	require.NoError(t, err)
	assert.Equal(t, "WARNING: Forcing PAE in CPU flags\n", out)
}

func TestCheckErratum(t *testing.T) {
	out, _, err := execute(t, "--cpu", "xeon-phi-7210", "--build", "i686")
	assert.ErrorIs(t, err, errRejected)
	assert.Contains(t, out, "This 32-bit kernel can not run on this Xeon Phi x200\n")
	assert.Contains(t, out, check.BootFailureMessage)
}

func TestCheckDebugConsole(t *testing.T) {
	out, logs, err := execute(t, "--cpu", "athlon64-ssedis", "--build", "x86_64", "--cmdline", "debug")
	require.NoError(t, err)
	assert.Equal(t, "early console in setup code\n", out)
	assert.Contains(t, logs, "remedy=amd-sse")
}

func TestCheckTrace(t *testing.T) {
	_, logs, err := execute(t, "--cpu", "via-c3-nehemiah", "--build", "i686", "--trace", "--log-level", "debug")
	require.NoError(t, err)
	assert.Contains(t, logs, "msg=cpuid")
	assert.Contains(t, logs, "msg=wrmsr")
}

func TestCheckMetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpucheck.prom")
	_, _, err := execute(t, "--cpu", "i386dx", "--build", "i486", "--metrics-file", path)
	assert.ErrorIs(t, err, errRejected)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cpucheck_passed 0")
	assert.Contains(t, string(data), `cpucheck_missing_capability{capability="fpu",word="0"} 1`)
}

func TestCheckUnknownBuild(t *testing.T) {
	_, _, err := execute(t, "--cpu", "zen4", "--build", "pdp11")
	assert.ErrorIs(t, err, kconfig.ErrUnknownPreset)
}

func TestCheckBuildFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: custom\nx86_64: true\nextra_required: [avx]\n"), 0o644))

	_, _, err := execute(t, "--cpu", "skylake-client", "--build", path)
	assert.NoError(t, err)
	_, _, err = execute(t, "--cpu", "athlon64", "--build", path)
	assert.ErrorIs(t, err, errRejected)
}

func TestProbe(t *testing.T) {
	out, _, err := execute(t, "probe", "--cpu", "zen4")
	require.NoError(t, err)
	assert.Contains(t, out, "vendor: AuthenticAMD\n")
	assert.Contains(t, out, "class: amd\n")
	assert.Contains(t, out, "level: x86-64\n")
	assert.Contains(t, out, "  - la57\n")
}

func TestProbeWithoutCPUID(t *testing.T) {
	out, _, err := execute(t, "probe", "--cpu", "i486dx")
	require.NoError(t, err)
	assert.Contains(t, out, "level: i486\n")
	assert.Contains(t, out, "  - fpu\n")
}

func TestListings(t *testing.T) {
	out, _, err := execute(t, "profiles")
	require.NoError(t, err)
	assert.Contains(t, out, "crusoe-tm5800")
	assert.Contains(t, out, "GenuineTMx86")

	out, _, err = execute(t, "builds")
	require.NoError(t, err)
	assert.Contains(t, out, "i686-pae")

	out, _, err = execute(t, "features")
	require.NoError(t, err)
	assert.Contains(t, out, "la57")

	out, _, err = execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "cpucheck version "+Version+"\n", out)
}

func TestClosePortErrorLogged(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	closeLogged(log, "host", func() error { return errors.New("munmap failed") })()
	assert.Contains(t, buf.String(), "close cpu port")
	assert.Contains(t, buf.String(), "munmap failed")

	buf.Reset()
	closeLogged(log, "host", func() error { return nil })()
	assert.Empty(t, buf.String())
}
