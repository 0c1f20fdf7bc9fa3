package profile

import (
	"fmt"

	"github.com/tinyrange/cpucheck/internal/x86/cpufeature"
	"github.com/tinyrange/cpucheck/internal/x86/hw"
)

// MSRWrite records one write to a model specific register.
type MSRWrite struct {
	Addr  uint32
	Value uint64
}

type effect struct {
	msr      uint32
	set      uint64
	clear    uint64
	features cpufeature.Set
	maskWord int // -1 when the effect unlocks features instead
}

// Machine is a scripted processor implementing hw.Port.
type Machine struct {
	profile   Profile
	vendor    [3]uint32
	base      cpufeature.Set
	effects   []effect
	msrs      map[uint32]uint64
	cr0       uint64
	writes    []MSRWrite
	cr0Writes int
	cpuid     int
}

// New builds a Machine from p. The profile is validated first.
func New(p Profile) (*Machine, error) {
	p.MSRs = cloneMSRs(p.MSRs)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	m := &Machine{
		profile: p,
		vendor:  hw.VendorTag(p.Vendor),
		msrs:    p.MSRs,
		cr0:     p.CR0,
	}
	if m.cr0 == 0 {
		m.cr0 = hw.SimplePort{}.ReadCR0()
	}

	// Validate has already checked every name.
	m.base, _ = lookupAll(p.Features)
	for _, e := range p.Effects {
		fs, _ := lookupAll(e.Features)
		ce := effect{msr: e.MSR, set: e.Set, clear: e.Clear, features: fs, maskWord: -1}
		if e.MaskWord != nil {
			ce.maskWord = *e.MaskWord
		}
		m.effects = append(m.effects, ce)
	}
	return m, nil
}

// MustNew is New for profiles known to be valid.
func MustNew(p Profile) *Machine {
	m, err := New(p)
	if err != nil {
		panic(err)
	}
	return m
}

func cloneMSRs(in map[uint32]uint64) map[uint32]uint64 {
	out := make(map[uint32]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Profile returns the profile the machine was built from.
func (m *Machine) Profile() Profile { return m.profile }

// Visible returns the capabilities CPUID currently reports.
func (m *Machine) Visible() cpufeature.Set {
	s := m.base
	for _, e := range m.effects {
		if e.maskWord < 0 && e.active(m.msrs[e.msr]) {
			s.Merge(e.features)
		}
	}
	for _, e := range m.effects {
		if e.maskWord >= 0 {
			s[e.maskWord] &= uint32(m.msrs[e.msr])
		}
	}
	return s
}

func (e effect) active(v uint64) bool {
	return Effect{Set: e.set, Clear: e.clear}.active(v)
}

func (m *Machine) CPUID(leaf, subleaf uint32) hw.Registers {
	m.cpuid++

	var r hw.Registers
	p := &m.profile
	switch {
	case leaf == hw.LeafVendor:
		r = hw.Registers{EAX: p.MaxLeaf, EBX: m.vendor[0], EDX: m.vendor[1], ECX: m.vendor[2]}
		return r
	case leaf == hw.LeafExtMax:
		return hw.Registers{EAX: p.MaxExtLeaf}
	case leaf < hw.LeafExtMax && leaf > p.MaxLeaf:
		return r
	case leaf > hw.LeafExtMax && leaf > p.MaxExtLeaf:
		return r
	}

	if leaf == hw.LeafFeatures {
		r.EAX = p.Signature()
	}
	visible := m.Visible()
	for w, src := range cpufeature.Sources {
		if src.Leaf == leaf && src.Subleaf == subleaf {
			r.Set(src.Register, visible[w])
		}
	}
	return r
}

func (m *Machine) ReadMSR(addr uint32) uint64 { return m.msrs[addr] }

func (m *Machine) WriteMSR(addr uint32, value uint64) {
	m.writes = append(m.writes, MSRWrite{Addr: addr, Value: value})
	m.msrs[addr] = value
}

func (m *Machine) HasEFlag(mask uint32) bool {
	var toggleable uint32
	if !m.profile.NoAC {
		toggleable |= hw.EFlagsAC
	}
	if !m.profile.NoCPUID {
		toggleable |= hw.EFlagsID
	}
	return mask&toggleable != 0
}

func (m *Machine) ReadCR0() uint64 { return m.cr0 }

func (m *Machine) WriteCR0(value uint64) {
	m.cr0Writes++
	m.cr0 = value
}

// FPUInit answers like an x87 after FNINIT. With no FPU, or with CR0.EM or
// CR0.TS still set, nothing answers and both words read back as all ones.
func (m *Machine) FPUInit() (status, control uint16) {
	if m.profile.NoFPU || m.cr0&(hw.CR0EM|hw.CR0TS) != 0 {
		return 0xffff, 0xffff
	}
	return hw.FPUResetStatus, hw.FPUResetControl
}

// MSR returns the current value of an MSR.
func (m *Machine) MSR(addr uint32) uint64 { return m.msrs[addr] }

// MSRWrites returns every MSR write in order.
func (m *Machine) MSRWrites() []MSRWrite {
	return append([]MSRWrite(nil), m.writes...)
}

// CR0Writes returns how many times CR0 was written.
func (m *Machine) CR0Writes() int { return m.cr0Writes }

// CPUIDCalls returns how many times CPUID was executed.
func (m *Machine) CPUIDCalls() int { return m.cpuid }

func (m *Machine) String() string {
	return fmt.Sprintf("%s (%s family %d model %d)", m.profile.Name, m.profile.Vendor, m.profile.Family, m.profile.Model)
}

var _ hw.Port = (*Machine)(nil)
