package check

import (
	"fmt"

	"github.com/tinyrange/cpucheck/internal/x86/cpufeature"
	"github.com/tinyrange/cpucheck/internal/x86/hw"
)

// Level is the coarse processor generation. Values between the named
// constants (5, 15, ...) are the raw CPUID family and are kept as reported.
type Level int

const (
	Level386 Level = 3
	Level486 Level = 4
	Level686 Level = 6
	Level64  Level = 64
)

// Name renders the level the way the setup code names kernels: i386, i486,
// i686 or x86-64.
func (l Level) Name() string {
	switch {
	case l == Level64:
		return "x86-64"
	case l == 15:
		return "i686"
	default:
		return fmt.Sprintf("i%d86", int(l))
	}
}

func (l Level) String() string { return l.Name() }

// State is the processor snapshot a validation run works on. It is filled by
// Probe and only grows afterwards.
type State struct {
	Vendor    Vendor
	VendorTag [3]uint32
	Family    int
	Model     int
	Level     Level
	Flags     cpufeature.Set

	// loaded guards Probe so it populates the snapshot once.
	loaded bool
}

// Reset returns s to the state of a processor nothing is known about.
func (s *State) Reset() {
	*s = State{Level: Level386}
}

// Loaded reports whether Probe has already populated s.
func (s *State) Loaded() bool { return s.loaded }

// raise moves the level up to l. The level never goes down during a run.
func (s *State) raise(l Level) {
	if l > s.Level {
		s.Level = l
	}
}

func (s *State) VendorString() string { return hw.VendorString(s.VendorTag) }
