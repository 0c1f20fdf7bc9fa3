// Package cpucheck decides whether the processor is able to run a kernel
// build before anything else runs. It probes the processor identity and
// capability words, compares them with what the build requires, tries the
// known vendor workarounds for capabilities that are present but disabled,
// and vetoes processors with errata the build cannot survive.
package cpucheck

import (
	"log/slog"

	"github.com/tinyrange/cpucheck/internal/bootcmd"
	"github.com/tinyrange/cpucheck/internal/kconfig"
	"github.com/tinyrange/cpucheck/internal/x86/check"
	"github.com/tinyrange/cpucheck/internal/x86/cpufeature"
	"github.com/tinyrange/cpucheck/internal/x86/hw"
	"github.com/tinyrange/cpucheck/internal/x86/hw/kvm"
	"github.com/tinyrange/cpucheck/internal/x86/hw/native"
	"github.com/tinyrange/cpucheck/internal/x86/hw/profile"
)

// -----------------------------------------------------------------------------
// Type Aliases - These re-export types from internal packages
// -----------------------------------------------------------------------------

// Port is the primitive hardware access the check runs on.
type Port = hw.Port

// Registers is the output of one CPUID instruction.
type Registers = hw.Registers

// Build describes the kernel configuration being validated.
type Build = kconfig.Build

// Outcome is the result of a validation.
type Outcome = check.Outcome

// Level is the coarse processor generation.
type Level = check.Level

// Feature names one processor capability bit.
type Feature = cpufeature.Feature

// FeatureSet is a capability vector.
type FeatureSet = cpufeature.Set

// Console receives warnings and erratum text.
type Console = check.Console

// Processor levels.
const (
	Level386 = check.Level386
	Level486 = check.Level486
	Level686 = check.Level686
	Level64  = check.Level64
)

// BootFailureMessage is printed by the boot sequence when Validate fails.
const BootFailureMessage = check.BootFailureMessage

// Sentinel errors carried by Outcome.Err.
var (
	ErrMissingCapability    = check.ErrMissingCapability
	ErrInsufficientLevel    = check.ErrInsufficientLevel
	ErrUnrecoverableErratum = check.ErrUnrecoverableErratum

	// ErrPortUnsupported is returned when the host or KVM port is not
	// available on this platform.
	ErrPortUnsupported = hw.ErrPortUnsupported
)

// -----------------------------------------------------------------------------
// Validation Options
// -----------------------------------------------------------------------------

// Option configures Validate.
type Option interface {
	IsOption()
}

// WithCommandLine sets the kernel command line remedies consult, such as
// "forcepae".
func WithCommandLine(line string) Option {
	return &commandLineOption{line: bootcmd.Parse(line)}
}

type commandLineOption struct{ line bootcmd.Line }

func (*commandLineOption) IsOption() {}

// WithConsole sets where warnings and erratum text are printed. By default
// they are dropped.
func WithConsole(c Console) Option {
	return &consoleOption{c: c}
}

type consoleOption struct{ c Console }

func (*consoleOption) IsOption() {}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return &loggerOption{log: log}
}

type loggerOption struct{ log *slog.Logger }

func (*loggerOption) IsOption() {}

// WithTrace logs every hardware access at debug level.
func WithTrace() Option {
	return &traceOption{}
}

type traceOption struct{}

func (*traceOption) IsOption() {}

// -----------------------------------------------------------------------------
// Ports
// -----------------------------------------------------------------------------

// HostPort returns a port for the processor the program runs on. MSR writes
// are shadowed unless allowMSRWrites is set.
func HostPort(allowMSRWrites bool) (Port, func() error, error) {
	p, err := native.Open(native.Options{AllowMSRWrites: allowMSRWrites})
	if err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}

// KVMPort returns a port describing a KVM virtual CPU on this host.
func KVMPort() (Port, error) {
	p, err := kvm.Open(kvm.Options{})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ProfilePort returns a scripted processor from the built-in catalog or a
// YAML profile file.
func ProfilePort(ref string) (Port, error) {
	p, err := profile.Resolve(ref)
	if err != nil {
		return nil, err
	}
	m, err := profile.New(*p)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Profiles lists the built-in processor profiles.
func Profiles() []string { return profile.Catalog() }

// -----------------------------------------------------------------------------
// Builds
// -----------------------------------------------------------------------------

// LoadBuild returns a preset build by name or loads a YAML build file.
func LoadBuild(ref string) (Build, error) { return kconfig.Resolve(ref) }

// Presets lists the built-in build presets.
func Presets() []string { return kconfig.Presets() }

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

// Validate runs one validation of the processor behind port against build.
// The returned error is only set for an invalid build or missing port; a
// processor that cannot run the build is reported through Outcome.
func Validate(port Port, build Build, opts ...Option) (Outcome, error) {
	cfg := check.Config{Port: port, Build: build}
	trace := false
	for _, opt := range opts {
		switch o := opt.(type) {
		case *commandLineOption:
			cfg.CommandLine = o.line
		case *consoleOption:
			cfg.Console = o.c
		case *loggerOption:
			cfg.Logger = o.log
		case *traceOption:
			trace = true
		}
	}
	if trace && port != nil {
		cfg.Port = hw.Traced(port, cfg.Logger)
	}

	v, err := check.New(cfg)
	if err != nil {
		return Outcome{}, err
	}
	return v.Run(), nil
}

// Report prints why outcome failed, the way the boot code explains a
// rejected processor.
func Report(c Console, o Outcome) { check.Report(c, o) }
