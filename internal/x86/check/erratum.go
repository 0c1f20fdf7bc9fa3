package check

import "github.com/tinyrange/cpucheck/internal/kconfig"

// ModelXeonPhiKNL is the family 6 model of the Xeon Phi x200 (Knights Landing).
const ModelXeonPhiKNL = 0x57

// Erratum is a silicon defect that makes a build unusable on the affected
// processors no matter which capabilities are present.
type Erratum struct {
	Name    string
	Affects func(s *State, build kconfig.Build) bool
	Message []string
}

// DefaultErrata lists the errata checked once every capability is present.
var DefaultErrata = []Erratum{
	{
		// Stray Accessed/Dirty bits can be set in non-present PTEs. 64-bit
		// and PAE PTEs have spare bits to absorb them, 32-bit ones do not.
		Name: "knl-pte-ad",
		Affects: func(s *State, build kconfig.Build) bool {
			if s.Vendor != VendorIntel || s.Family != 6 || s.Model != ModelXeonPhiKNL {
				return false
			}
			return !build.X86_64 && !build.PAE
		},
		Message: []string{
			"This 32-bit kernel can not run on this Xeon Phi x200",
			"processor due to a processor erratum.  Use a 64-bit",
			"kernel, or enable PAE in this 32-bit kernel.",
			"",
		},
	},
}

func findErratum(errata []Erratum, s *State, build kconfig.Build) *Erratum {
	for i := range errata {
		if errata[i].Affects(s, build) {
			return &errata[i]
		}
	}
	return nil
}
