// Package profile replays a processor described in YAML through the hardware
// port: its identity, the capabilities CPUID reports, MSR contents and the
// ways MSR writes change what CPUID reports.
package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/cpucheck/internal/x86/cpufeature"
)

// Profile describes one processor.
type Profile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	Vendor   string `yaml:"vendor"`
	Family   int    `yaml:"family"`
	Model    int    `yaml:"model"`
	Stepping int    `yaml:"stepping"`

	// MaxLeaf and MaxExtLeaf default to the lowest leaves covering Features.
	MaxLeaf    uint32 `yaml:"max_leaf,omitempty"`
	MaxExtLeaf uint32 `yaml:"max_ext_leaf,omitempty"`

	// Features is what CPUID reports at reset.
	Features []string `yaml:"features"`

	NoCPUID bool `yaml:"no_cpuid,omitempty"` // EFLAGS.ID does not toggle
	NoAC    bool `yaml:"no_ac,omitempty"`    // EFLAGS.AC does not toggle
	NoFPU   bool `yaml:"no_fpu,omitempty"`

	CR0     uint64            `yaml:"cr0,omitempty"`
	MSRs    map[uint32]uint64 `yaml:"msrs,omitempty"`
	Effects []Effect          `yaml:"effects,omitempty"`
}

// Effect ties an MSR to what CPUID reports.
//
// With MaskWord set, the capability word is ANDed with the low 32 bits of the
// MSR. Otherwise Features become visible while every bit of Set is set and
// every bit of Clear is clear in the MSR.
type Effect struct {
	MSR      uint32   `yaml:"msr"`
	Set      uint64   `yaml:"set,omitempty"`
	Clear    uint64   `yaml:"clear,omitempty"`
	Features []string `yaml:"features,omitempty"`
	MaskWord *int     `yaml:"mask_word,omitempty"`
}

func (e Effect) active(v uint64) bool {
	return v&e.Set == e.Set && v&e.Clear == 0
}

func lookupAll(names []string) (cpufeature.Set, error) {
	var s cpufeature.Set
	for _, n := range names {
		f, err := cpufeature.Lookup(n)
		if err != nil {
			return cpufeature.Set{}, err
		}
		if _, ok := cpufeature.Sources[f.Word()]; !ok {
			return cpufeature.Set{}, fmt.Errorf("capability %s is not reported by CPUID", f)
		}
		s.Add(f)
	}
	return s, nil
}

// Validate checks names and effects and fills in defaulted leaves.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile has no name")
	}
	if len(p.Vendor) > 12 {
		return fmt.Errorf("profile %s: vendor %q longer than 12 characters", p.Name, p.Vendor)
	}
	if p.Family < 0 || p.Family > 15+0xff || p.Model < 0 || p.Model > 0xff {
		return fmt.Errorf("profile %s: family %d model %d out of range", p.Name, p.Family, p.Model)
	}

	all, err := lookupAll(p.Features)
	if err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	for i, e := range p.Effects {
		s, err := lookupAll(e.Features)
		if err != nil {
			return fmt.Errorf("profile %s: effect %d: %w", p.Name, i, err)
		}
		if e.MaskWord != nil {
			if _, ok := cpufeature.Sources[cpufeature.Word(*e.MaskWord)]; !ok {
				return fmt.Errorf("profile %s: effect %d: word %d is not reported by CPUID", p.Name, i, *e.MaskWord)
			}
		}
		all.Merge(s)
	}

	if p.MaxLeaf == 0 {
		p.MaxLeaf = 1
		if all[cpufeature.WordLeaf7ECX] != 0 {
			p.MaxLeaf = 7
		}
	}
	if p.MaxExtLeaf == 0 {
		p.MaxExtLeaf = 0x80000000
		if all[cpufeature.WordExt] != 0 || all[cpufeature.WordExtECX] != 0 {
			p.MaxExtLeaf = 0x80000001
		}
	}
	return nil
}

// Signature encodes family, model and stepping the way CPUID leaf 1 returns
// them in EAX.
func (p *Profile) Signature() uint32 {
	family, extFamily := p.Family, 0
	if family > 15 {
		family, extFamily = 15, p.Family-15
	}
	return uint32(p.Stepping&0xf) |
		uint32(p.Model&0xf)<<4 |
		uint32(family)<<8 |
		uint32((p.Model>>4)&0xf)<<16 |
		uint32(extFamily&0xff)<<20
}

// Parse decodes and validates a YAML profile.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse cpu profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadFile reads a YAML profile from path.
func LoadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cpu profile: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
