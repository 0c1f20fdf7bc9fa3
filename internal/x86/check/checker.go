package check

import (
	"math/bits"

	"github.com/tinyrange/cpucheck/internal/x86/cpufeature"
)

// Summary has bit i set when capability word i is missing required bits.
type Summary uint32

// Has reports whether word w is missing bits.
func (s Summary) Has(w cpufeature.Word) bool { return s&(1<<uint(w)) != 0 }

// Only reports whether w is the one and only word missing bits.
func (s Summary) Only(w cpufeature.Word) bool { return s == 1<<uint(w) }

// Words lists the words missing bits in ascending order.
func (s Summary) Words() []cpufeature.Word {
	var out []cpufeature.Word
	for v := uint32(s); v != 0; v &= v - 1 {
		out = append(out, cpufeature.Word(bits.TrailingZeros32(v)))
	}
	return out
}

// Check compares the capabilities a processor has against the ones a build
// requires. missing holds required bits that are absent, word by word.
func Check(have, required cpufeature.Set) (missing cpufeature.Set, summary Summary) {
	missing = required.AndNot(have)
	for i, w := range missing {
		if w != 0 {
			summary |= 1 << uint(i)
		}
	}
	return missing, summary
}
