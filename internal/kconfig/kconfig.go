// Package kconfig describes the build a capability check is run for: the
// minimum processor family and the configuration switches the required
// feature masks are derived from.
package kconfig

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/cpucheck/internal/x86/cpufeature"
)

var ErrUnknownPreset = errors.New("unknown build preset")

// Build mirrors the kernel configuration options that decide which
// processors a kernel image can boot on.
type Build struct {
	Name string `yaml:"name"`

	// MinimumFamily is the lowest processor level accepted: 3, 4, 5, 6, or
	// 64 for long mode.
	MinimumFamily int `yaml:"minimum_family"`

	X86_64        bool `yaml:"x86_64"`
	PAE           bool `yaml:"pae"`
	Paravirt      bool `yaml:"paravirt"`
	MathEmulation bool `yaml:"math_emulation"`
	CMPXCHG64     bool `yaml:"cmpxchg64"`
	CMOV          bool `yaml:"cmov"`
	Use3DNow      bool `yaml:"use_3dnow"`
	MAtom         bool `yaml:"matom"`
	LA57          bool `yaml:"la57"`

	// ExtraRequired names further capabilities the build depends on.
	ExtraRequired []string `yaml:"extra_required,omitempty"`
}

// Validate checks that the build is internally consistent.
func (b Build) Validate() error {
	if b.X86_64 {
		if b.MinimumFamily != 64 {
			return fmt.Errorf("build %q: 64-bit builds require minimum_family 64, got %d", b.Name, b.MinimumFamily)
		}
		if b.MathEmulation {
			return fmt.Errorf("build %q: math emulation is not available on 64-bit builds", b.Name)
		}
	} else if b.MinimumFamily < 3 || b.MinimumFamily > 6 {
		return fmt.Errorf("build %q: minimum_family %d out of range 3..6", b.Name, b.MinimumFamily)
	}
	if b.LA57 && !b.X86_64 {
		return fmt.Errorf("build %q: 5-level paging requires a 64-bit build", b.Name)
	}
	for _, name := range b.ExtraRequired {
		f, err := cpufeature.Lookup(name)
		if err != nil {
			return fmt.Errorf("build %q: %w", b.Name, err)
		}
		if _, ok := cpufeature.Sources[f.Word()]; !ok {
			return fmt.Errorf("build %q: capability %s is in word %d which is never probed", b.Name, f, f.Word())
		}
	}
	return nil
}

// RequiredFeatures derives the capabilities a processor must report. Unknown
// extra capabilities are skipped; call Validate first to reject them.
func (b Build) RequiredFeatures() cpufeature.Set {
	var req []cpufeature.Feature
	need := func(ok bool, f ...cpufeature.Feature) {
		if ok {
			req = append(req, f...)
		}
	}

	need(!b.MathEmulation, cpufeature.FPU)
	need(b.PAE || b.X86_64, cpufeature.PAE)
	need(b.CMPXCHG64 || b.X86_64, cpufeature.CX8)
	need(b.CMOV || b.X86_64, cpufeature.CMOV)
	need(b.Use3DNow, cpufeature.K3DNOW)
	need(b.MAtom, cpufeature.MOVBE)
	if b.X86_64 {
		// Paravirtualized guests may not see PSE or PGE.
		need(!b.Paravirt, cpufeature.PSE, cpufeature.PGE)
		need(true, cpufeature.MSR, cpufeature.FXSR, cpufeature.XMM, cpufeature.XMM2, cpufeature.LM)
	}
	need(b.LA57, cpufeature.LA57)

	set := cpufeature.Of(req...)
	for _, name := range b.ExtraRequired {
		if f, err := cpufeature.Lookup(name); err == nil {
			if _, ok := cpufeature.Sources[f.Word()]; ok {
				set.Add(f)
			}
		}
	}
	return set
}

// Parse decodes a YAML build description.
func Parse(data []byte) (Build, error) {
	var b Build
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Build{}, fmt.Errorf("parse build config: %w", err)
	}
	// An absent minimum_family follows the word size.
	if b.MinimumFamily == 0 {
		b.MinimumFamily = 4
		if b.X86_64 {
			b.MinimumFamily = 64
		}
	}
	if err := b.Validate(); err != nil {
		return Build{}, err
	}
	return b, nil
}

// LoadFile reads a YAML build description from path.
func LoadFile(path string) (Build, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Build{}, fmt.Errorf("read build config: %w", err)
	}
	b, err := Parse(data)
	if err != nil {
		return Build{}, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Resolve returns the named preset, or loads ref as a YAML file when no
// preset has that name.
func Resolve(ref string) (Build, error) {
	if b, ok := presets[ref]; ok {
		return b, nil
	}
	if _, err := os.Stat(ref); err == nil {
		return LoadFile(ref)
	}
	return Build{}, fmt.Errorf("%w: %q", ErrUnknownPreset, ref)
}
