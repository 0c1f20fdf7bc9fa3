package check

import (
	"github.com/tinyrange/cpucheck/internal/x86/cpufeature"
	"github.com/tinyrange/cpucheck/internal/x86/hw"
)

const (
	maxBasicLeafLimit = 0x0000ffff
	maxExtLeafLimit   = 0x8000ffff
)

// hasFPU clears CR0.EM and CR0.TS so the x87 instructions do not fault,
// resets the unit and checks that it answered with its reset state.
func hasFPU(port hw.Port) bool {
	cr0 := port.ReadCR0()
	if cr0&(hw.CR0EM|hw.CR0TS) != 0 {
		port.WriteCR0(cr0 &^ (hw.CR0EM | hw.CR0TS))
	}

	status, control := port.FPUInit()
	return status == 0 && control&0x103f == 0x003f
}

// Probe fills s from the processor. Only the first call on a State does any
// work; later calls return immediately.
func Probe(port hw.Port, s *State) {
	if s.loaded {
		return
	}
	s.loaded = true

	if hasFPU(port) {
		s.Flags.Add(cpufeature.FPU)
	}

	// Processors without a toggleable ID flag have no CPUID at all.
	if !port.HasEFlag(hw.EFlagsID) {
		return
	}

	readCPUID(port, s)
}

// Refresh re-reads the CPUID capability words into s without touching the
// probe guard. Bits already present are kept.
func Refresh(port hw.Port, s *State) {
	if !port.HasEFlag(hw.EFlagsID) {
		return
	}
	readCPUID(port, s)
}

func readCPUID(port hw.Port, s *State) {
	r := port.CPUID(hw.LeafVendor, 0)
	maxBasic := r.EAX
	s.VendorTag = r.Vendor()
	s.Vendor = ClassifyVendor(s.VendorTag)

	if maxBasic >= hw.LeafFeatures && maxBasic <= maxBasicLeafLimit {
		r = port.CPUID(hw.LeafFeatures, 0)
		s.Flags[cpufeature.WordStd] |= r.EDX
		s.Flags[cpufeature.WordStdECX] |= r.ECX

		family := int(r.EAX>>8) & 0xf
		model := int(r.EAX>>4) & 0xf
		if family >= 6 {
			model += (int(r.EAX>>16) & 0xf) << 4
		}
		s.Family = family
		s.Model = model
		s.raise(Level(family))
	}

	if maxBasic >= hw.LeafExtFeatures {
		r = port.CPUID(hw.LeafExtFeatures, 0)
		s.Flags[cpufeature.WordLeaf7ECX] |= r.ECX
	}

	maxExt := port.CPUID(hw.LeafExtMax, 0).EAX
	if maxExt >= hw.LeafExtProcessor && maxExt <= maxExtLeafLimit {
		r = port.CPUID(hw.LeafExtProcessor, 0)
		s.Flags[cpufeature.WordExt] |= r.EDX
		s.Flags[cpufeature.WordExtECX] |= r.ECX
	}

	if s.Flags.Has(cpufeature.LM) {
		s.raise(Level64)
	}
}
