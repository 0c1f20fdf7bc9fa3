package kconfig

import "sort"

var presets = map[string]Build{
	"x86_64": {
		Name:          "x86_64",
		MinimumFamily: 64,
		X86_64:        true,
	},
	"x86_64-paravirt": {
		Name:          "x86_64-paravirt",
		MinimumFamily: 64,
		X86_64:        true,
		Paravirt:      true,
	},
	"x86_64-la57": {
		Name:          "x86_64-la57",
		MinimumFamily: 64,
		X86_64:        true,
		LA57:          true,
	},
	"i686-pae": {
		Name:          "i686-pae",
		MinimumFamily: 6,
		PAE:           true,
		CMPXCHG64:     true,
		CMOV:          true,
	},
	"i686": {
		Name:          "i686",
		MinimumFamily: 6,
		CMPXCHG64:     true,
		CMOV:          true,
	},
	"i586": {
		Name:          "i586",
		MinimumFamily: 5,
		CMPXCHG64:     true,
	},
	"i486": {
		Name:          "i486",
		MinimumFamily: 4,
	},
	"i386-legacy": {
		Name:          "i386-legacy",
		MinimumFamily: 3,
		MathEmulation: true,
	},
	"atom32": {
		Name:          "atom32",
		MinimumFamily: 6,
		PAE:           true,
		CMPXCHG64:     true,
		CMOV:          true,
		MAtom:         true,
	},
	"k7": {
		Name:          "k7",
		MinimumFamily: 6,
		CMPXCHG64:     true,
		CMOV:          true,
		Use3DNow:      true,
	},
}

// Preset returns the built-in build called name.
func Preset(name string) (Build, bool) {
	b, ok := presets[name]
	return b, ok
}

// Presets lists the names of the built-in builds.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
