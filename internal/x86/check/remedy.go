package check

import (
	"github.com/tinyrange/cpucheck/internal/x86/cpufeature"
	"github.com/tinyrange/cpucheck/internal/x86/hw"
)

// CommandLine answers whether a boolean boot option was given.
type CommandLine interface {
	HasOption(name string) bool
}

// Console prints one line of text.
type Console interface {
	PrintLine(text string)
}

type noOptions struct{}

func (noOptions) HasOption(string) bool { return false }

type discardConsole struct{}

func (discardConsole) PrintLine(string) {}

// Env is what a remedy sees and may change: the snapshot, the hardware and
// the current missing capabilities.
type Env struct {
	Port        hw.Port
	State       *State
	Required    cpufeature.Set
	Missing     cpufeature.Set
	Summary     Summary
	CommandLine CommandLine
	Console     Console
}

// Recheck recomputes Missing and Summary from the current snapshot.
func (e *Env) Recheck() {
	e.Missing, e.Summary = Check(e.State.Flags, e.Required)
}

// onlyMissing reports whether every missing bit sits in word 0 and is one of
// allowed.
func (e *Env) onlyMissing(allowed ...cpufeature.Feature) bool {
	if !e.Summary.Only(cpufeature.WordStd) {
		return false
	}
	return e.Missing.AndNot(cpufeature.Of(allowed...)).IsZero()
}

// Remedy is one vendor specific attempt at turning on capabilities the
// silicon has but which are disabled.
type Remedy struct {
	Name    string
	Applies func(e *Env) bool
	Apply   func(e *Env)
}

// Remediate runs the first remedy in order whose precondition holds and
// rechecks the requirements afterwards. It returns the name of the remedy
// that ran, or "" when none did.
func Remediate(e *Env, remedies []Remedy) string {
	if e.Summary == 0 {
		return ""
	}
	if e.CommandLine == nil {
		e.CommandLine = noOptions{}
	}
	if e.Console == nil {
		e.Console = discardConsole{}
	}
	for _, r := range remedies {
		if !r.Applies(e) {
			continue
		}
		r.Apply(e)
		e.Recheck()
		return r.Name
	}
	return ""
}

const (
	hwcrSSEDisable  uint64 = 1 << 15
	viaFCREnableCX8 uint64 = 1<<1 | 1<<7
	modelPentiumM9         = 9
	modelPentiumM13        = 13
)

// DefaultRemedies is the ordered remedy table. The first match wins.
var DefaultRemedies = []Remedy{
	{
		// Some AMD parts ship with SSE turned off in HWCR.
		Name: "amd-sse",
		Applies: func(e *Env) bool {
			return e.State.Vendor == VendorAMD &&
				e.onlyMissing(cpufeature.XMM, cpufeature.XMM2)
		},
		Apply: func(e *Env) {
			v := e.Port.ReadMSR(hw.MSRK7HWCR)
			e.Port.WriteMSR(hw.MSRK7HWCR, v&^hwcrSSEDisable)
			Refresh(e.Port, e.State)
		},
	},
	{
		// VIA C3 may need CMPXCHG8B enabled explicitly.
		Name: "via-cx8",
		Applies: func(e *Env) bool {
			return e.State.Vendor == VendorCentaur && e.State.Model >= 6 &&
				e.onlyMissing(cpufeature.CX8)
		},
		Apply: func(e *Env) {
			v := e.Port.ReadMSR(hw.MSRVIAFCR)
			e.Port.WriteMSR(hw.MSRVIAFCR, v|viaFCREnableCX8)
			e.State.Flags.Add(cpufeature.CX8)
		},
	},
	{
		// Transmeta may mask feature bits in word 0 through its CPUID
		// override register.
		Name: "transmeta-mask",
		Applies: func(e *Env) bool {
			return e.State.Vendor == VendorTransmeta
		},
		Apply: func(e *Env) {
			saved := e.Port.ReadMSR(hw.MSRTransmetaCPUID)
			defer e.Port.WriteMSR(hw.MSRTransmetaCPUID, saved)

			e.Port.WriteMSR(hw.MSRTransmetaCPUID, saved|0xffffffff)
			r := e.Port.CPUID(hw.LeafFeatures, 0)
			e.State.Flags[cpufeature.WordStd] |= r.EDX
		},
	},
	{
		// PAE is disabled on some Pentium M but can be forced.
		Name: "pentium-m-pae",
		Applies: func(e *Env) bool {
			return e.State.Vendor == VendorIntel && e.State.Level == Level686 &&
				(e.State.Model == modelPentiumM9 || e.State.Model == modelPentiumM13) &&
				e.onlyMissing(cpufeature.PAE)
		},
		Apply: func(e *Env) {
			if !e.CommandLine.HasOption("forcepae") {
				e.Console.PrintLine("WARNING: PAE disabled. Use parameter 'forcepae' to enable at your own risk!")
				return
			}
			e.Console.PrintLine("WARNING: Forcing PAE in CPU flags")
			e.State.Flags.Add(cpufeature.PAE)
		},
	},
}
