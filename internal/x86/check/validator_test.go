package check

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyrange/cpucheck/internal/kconfig"
	cf "github.com/tinyrange/cpucheck/internal/x86/cpufeature"
	"github.com/tinyrange/cpucheck/internal/x86/hw"
	"github.com/tinyrange/cpucheck/internal/x86/hw/profile"
)

func run(t *testing.T, port hw.Port, build kconfig.Build, opts options) (Outcome, lines) {
	t.Helper()
	var out lines
	v, err := New(Config{
		Port:        port,
		Build:       build,
		CommandLine: opts,
		Console:     &out,
		Logger:      slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	})
	require.NoError(t, err)
	return v.Run(), out
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Build: preset(t, "i686")})
	assert.Error(t, err)

	_, err = New(Config{Port: hw.SimplePort{}, Build: kconfig.Build{Name: "bad", MinimumFamily: 9}})
	assert.Error(t, err)
}

func TestRequired(t *testing.T) {
	v, err := New(Config{Port: hw.SimplePort{}, Build: preset(t, "i586")})
	require.NoError(t, err)
	assert.Equal(t, cf.Of(cf.FPU, cf.CX8), v.Required())
}

func TestScenarioAMDSSEUnlocked(t *testing.T) {
	m := machine(t, "athlon64-ssedis")
	o, _ := run(t, m, preset(t, "x86_64"), nil)

	assert.True(t, o.Passed)
	assert.NoError(t, o.Err)
	assert.Equal(t, "amd-sse", o.Remedy)
	assert.Equal(t, Level64, o.Level)
	assert.Nil(t, o.Missing)
	assert.Zero(t, m.MSR(hw.MSRK7HWCR)&0x8000)
}

func TestScenarioPentiumMWithoutForcePAE(t *testing.T) {
	o, out := run(t, machine(t, "pentium-m-banias"), preset(t, "i686-pae"), nil)

	assert.False(t, o.Passed)
	assert.ErrorIs(t, o.Err, ErrMissingCapability)
	assert.NotErrorIs(t, o.Err, ErrInsufficientLevel)
	var me *MissingError
	require.ErrorAs(t, o.Err, &me)
	assert.Equal(t, cf.Of(cf.PAE), me.Missing)
	require.NotNil(t, o.Missing)
	assert.Equal(t, cf.Of(cf.PAE), *o.Missing)
	assert.Equal(t, lines{"WARNING: PAE disabled. Use parameter 'forcepae' to enable at your own risk!"}, out)
}

func TestScenarioPentiumMForcePAE(t *testing.T) {
	o, out := run(t, machine(t, "pentium-m-banias"), preset(t, "i686-pae"), options{"forcepae": true})

	assert.True(t, o.Passed)
	assert.Equal(t, "pentium-m-pae", o.Remedy)
	assert.Equal(t, Level686, o.Level)
	assert.Equal(t, lines{"WARNING: Forcing PAE in CPU flags"}, out)
}

func TestScenarioKnightsLanding(t *testing.T) {
	tests := []struct {
		build  string
		passed bool
	}{
		{"i686", false},
		{"i586", false},
		{"i686-pae", true},
		{"x86_64", true},
	}
	for _, tt := range tests {
		t.Run(tt.build, func(t *testing.T) {
			o, out := run(t, machine(t, "xeon-phi-7210"), preset(t, tt.build), nil)
			assert.Equal(t, tt.passed, o.Passed)
			if tt.passed {
				assert.Empty(t, out)
				return
			}
			assert.ErrorIs(t, o.Err, ErrUnrecoverableErratum)
			assert.NotErrorIs(t, o.Err, ErrMissingCapability)
			assert.Equal(t, "knl-pte-ad", o.Erratum)
			assert.Nil(t, o.Missing)
			assert.Equal(t, lines{
				"This 32-bit kernel can not run on this Xeon Phi x200",
				"processor due to a processor erratum.  Use a 64-bit",
				"kernel, or enable PAE in this 32-bit kernel.",
				"",
			}, out)
		})
	}
}

func TestErratumOverridesPassingCheck(t *testing.T) {
	var out lines
	v, err := New(Config{
		Port:    machine(t, "skylake-client"),
		Build:   preset(t, "x86_64"),
		Console: &out,
		Errata: []Erratum{{
			Name:    "always",
			Affects: func(*State, kconfig.Build) bool { return true },
			Message: []string{"no"},
		}},
	})
	require.NoError(t, err)

	o := v.Run()
	assert.False(t, o.Passed)
	assert.ErrorIs(t, o.Err, ErrUnrecoverableErratum)
	assert.Equal(t, "always", o.Erratum)
	assert.Equal(t, lines{"no"}, out)
}

func TestErratumSkippedWhenCapabilitiesMissing(t *testing.T) {
	// The erratum gate only runs once every capability is present.
	o, out := run(t, machine(t, "xeon-phi-7210"), kconfig.Build{
		Name: "i686-xop", MinimumFamily: 6, CMPXCHG64: true, CMOV: true,
		ExtraRequired: []string{"xop"},
	}, nil)
	assert.False(t, o.Passed)
	assert.ErrorIs(t, o.Err, ErrMissingCapability)
	assert.NotErrorIs(t, o.Err, ErrUnrecoverableErratum)
	assert.Empty(t, o.Erratum)
	assert.Empty(t, out)
}

func TestScenarioEmptyBaseline(t *testing.T) {
	build := preset(t, "i386-legacy")
	for _, name := range profile.Catalog() {
		if name == "xeon-phi-7210" {
			// Vetoed by its erratum, see TestScenarioKnightsLanding.
			continue
		}
		t.Run(name, func(t *testing.T) {
			o, _ := run(t, machine(t, name), build, nil)
			assert.True(t, o.Passed)
			assert.NoError(t, o.Err)
		})
	}

	o, _ := run(t, hw.SimplePort{
		HasEFlagFunc: func(uint32) bool { return false },
		FPUInitFunc:  func() (uint16, uint16) { return 0xffff, 0xffff },
	}, build, nil)
	assert.True(t, o.Passed)
	assert.Equal(t, Level386, o.Level)
}

func TestInsufficientLevel(t *testing.T) {
	o, _ := run(t, machine(t, "i486dx"), preset(t, "i686"), nil)

	assert.False(t, o.Passed)
	assert.Equal(t, Level486, o.Level)
	assert.Equal(t, Level686, o.RequiredLevel)
	assert.ErrorIs(t, o.Err, ErrInsufficientLevel)
	assert.ErrorIs(t, o.Err, ErrMissingCapability)
	require.NotNil(t, o.Missing)
	assert.Equal(t, cf.Of(cf.CX8, cf.CMOV), *o.Missing)
}

func TestLevelOnly(t *testing.T) {
	// Capabilities are fine but a family 5 part cannot run an i686 build.
	o, _ := run(t, machine(t, "crusoe-tm5800"), kconfig.Build{Name: "fam6", MinimumFamily: 6}, nil)
	assert.False(t, o.Passed)
	assert.ErrorIs(t, o.Err, ErrInsufficientLevel)
	assert.NotErrorIs(t, o.Err, ErrMissingCapability)
	assert.Nil(t, o.Missing)
	assert.Equal(t, Level(5), o.Level)
}

func TestTransmetaUnderValidator(t *testing.T) {
	m := machine(t, "crusoe-tm5800")
	o, _ := run(t, m, preset(t, "i586"), nil)
	assert.True(t, o.Passed)
	assert.Equal(t, "transmeta-mask", o.Remedy)
	assert.Equal(t, uint64(0xfffffeff), m.MSR(hw.MSRTransmetaCPUID))
}

func TestVIAUnderValidator(t *testing.T) {
	o, _ := run(t, machine(t, "via-c3-nehemiah"), preset(t, "i686"), nil)
	assert.True(t, o.Passed)
	assert.Equal(t, "via-cx8", o.Remedy)
}

func TestLevelNeverDecreases(t *testing.T) {
	// A 486 reporting family 3 through CPUID stays a 486.
	port := hw.SimplePort{
		CPUIDFunc: func(leaf, _ uint32) hw.Registers {
			switch leaf {
			case hw.LeafVendor:
				return hw.Registers{EAX: 1}
			case hw.LeafFeatures:
				return hw.Registers{EAX: 0x300, EDX: cf.FPU.Mask()}
			}
			return hw.Registers{}
		},
	}
	v, err := New(Config{Port: port, Build: preset(t, "i486")})
	require.NoError(t, err)

	o := v.Run()
	assert.Equal(t, Level486, o.Level)
	assert.Equal(t, Level486, v.State().Level)
	assert.True(t, o.Passed)
	assert.Equal(t, 3, v.State().Family)
}

func TestLongModeRaisesLevel(t *testing.T) {
	o, _ := run(t, machine(t, "athlon64"), preset(t, "x86_64"), nil)
	assert.True(t, o.Passed)
	assert.Equal(t, Level64, o.Level)
	assert.Equal(t, Level64, o.RequiredLevel)
}

func TestRunIsRepeatable(t *testing.T) {
	m := machine(t, "skylake-client")
	v, err := New(Config{Port: m, Build: preset(t, "x86_64-la57")})
	require.NoError(t, err)

	first := v.Run()
	firstState := v.State()
	second := v.Run()

	assert.Equal(t, first.Passed, second.Passed)
	assert.Equal(t, first.Missing, second.Missing)
	assert.Equal(t, first.Level, second.Level)
	assert.Equal(t, firstState, v.State())
	assert.Equal(t, cf.Of(cf.LA57), *second.Missing)
}

func TestRunOutcomeErrorsAreJoined(t *testing.T) {
	o, _ := run(t, machine(t, "i386dx"), preset(t, "i486"), nil)
	require.Error(t, o.Err)

	var joined interface{ Unwrap() []error }
	require.True(t, errors.As(o.Err, &joined))
	assert.Len(t, joined.Unwrap(), 2)
}
