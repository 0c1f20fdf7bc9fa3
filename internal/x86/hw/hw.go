// Package hw defines the hardware access port the capability checker probes
// the processor through.
package hw

import (
	"errors"

	"github.com/tinyrange/cpucheck/internal/x86/cpufeature"
)

var ErrPortUnsupported = errors.New("hardware port unsupported on this platform")

// Registers holds the output of one CPUID invocation.
type Registers struct {
	EAX, EBX, ECX, EDX uint32
}

// Get returns the named output register.
func (r Registers) Get(reg cpufeature.Register) uint32 {
	switch reg {
	case cpufeature.EAX:
		return r.EAX
	case cpufeature.EBX:
		return r.EBX
	case cpufeature.ECX:
		return r.ECX
	case cpufeature.EDX:
		return r.EDX
	}
	return 0
}

// Set stores v into the named output register.
func (r *Registers) Set(reg cpufeature.Register, v uint32) {
	switch reg {
	case cpufeature.EAX:
		r.EAX = v
	case cpufeature.EBX:
		r.EBX = v
	case cpufeature.ECX:
		r.ECX = v
	case cpufeature.EDX:
		r.EDX = v
	}
}

// Port is the set of primitive processor operations available before any
// operating system services exist. None of them fail: operations a given
// backend cannot perform yield the architectural default value.
type Port interface {
	// CPUID executes the identification instruction.
	CPUID(leaf, subleaf uint32) Registers

	ReadMSR(addr uint32) uint64
	WriteMSR(addr uint32, value uint64)

	// HasEFlag reports whether the EFLAGS bits in mask can be toggled.
	HasEFlag(mask uint32) bool

	ReadCR0() uint64
	WriteCR0(value uint64)

	// FPUInit resets the x87 unit and returns its status and control words.
	FPUInit() (status, control uint16)
}

const (
	EFlagsAC uint32 = 1 << 18 // alignment check, toggleable from the 486 on
	EFlagsID uint32 = 1 << 21 // CPUID available
)

const (
	CR0PE uint64 = 1 << 0
	CR0MP uint64 = 1 << 1
	CR0EM uint64 = 1 << 2
	CR0TS uint64 = 1 << 3
	CR0ET uint64 = 1 << 4
	CR0NE uint64 = 1 << 5
	CR0WP uint64 = 1 << 16
	CR0AM uint64 = 1 << 18
	CR0PG uint64 = 1 << 31
)

// x87 state after FNINIT.
const (
	FPUResetStatus  uint16 = 0x0000
	FPUResetControl uint16 = 0x037f
)

const (
	MSRK7HWCR         uint32 = 0xc0010015
	MSRVIAFCR         uint32 = 0x00001107
	MSRTransmetaCPUID uint32 = 0x80860004
)

// Vendor identification leaves.
const (
	LeafVendor       uint32 = 0x00000000
	LeafFeatures     uint32 = 0x00000001
	LeafExtFeatures  uint32 = 0x00000007
	LeafExtMax       uint32 = 0x80000000
	LeafExtProcessor uint32 = 0x80000001
)
