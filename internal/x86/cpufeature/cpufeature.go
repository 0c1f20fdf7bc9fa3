// Package cpufeature names the x86 capability bits reported by CPUID and
// groups them into 32-bit capability words, using the same word layout as the
// Linux boot code.
package cpufeature

import (
	"fmt"
	"math/bits"
	"strings"
)

// NCapInts is the number of capability words in a Set.
const NCapInts = 19

// Word indexes one 32-bit group of capability bits.
type Word int

const (
	WordStd      Word = 0  // CPUID 0x00000001 EDX
	WordExt      Word = 1  // CPUID 0x80000001 EDX
	WordStdECX   Word = 4  // CPUID 0x00000001 ECX
	WordExtECX   Word = 6  // CPUID 0x80000001 ECX
	WordLeaf7ECX Word = 16 // CPUID 0x00000007:0 ECX

	wordSentinel Word = NCapInts
)

const (
	bitsPerWord = 32
	wordShift   = 5
	wordBitMask = bitsPerWord - 1
)

// Feature identifies a single capability as word*32 + bit.
type Feature uint16

// Word returns the capability word holding f.
func (f Feature) Word() Word { return Word(f >> wordShift) }

// Bit returns the bit offset of f inside its word.
func (f Feature) Bit() uint { return uint(f & wordBitMask) }

// Mask returns the single-bit mask of f within its word.
func (f Feature) Mask() uint32 { return 1 << f.Bit() }

func (f Feature) String() string {
	if name, ok := names[f]; ok {
		return name
	}
	return fmt.Sprintf("%d:%d", f.Word(), f.Bit())
}

func feat(w Word, bit uint) Feature { return Feature(uint(w)<<wordShift | bit) }

// Word 0: CPUID 0x00000001 EDX.
var (
	FPU       = feat(WordStd, 0)
	VME       = feat(WordStd, 1)
	DE        = feat(WordStd, 2)
	PSE       = feat(WordStd, 3)
	TSC       = feat(WordStd, 4)
	MSR       = feat(WordStd, 5)
	PAE       = feat(WordStd, 6)
	MCE       = feat(WordStd, 7)
	CX8       = feat(WordStd, 8)
	APIC      = feat(WordStd, 9)
	SEP       = feat(WordStd, 11)
	MTRR      = feat(WordStd, 12)
	PGE       = feat(WordStd, 13)
	MCA       = feat(WordStd, 14)
	CMOV      = feat(WordStd, 15)
	PAT       = feat(WordStd, 16)
	PSE36     = feat(WordStd, 17)
	PN        = feat(WordStd, 18)
	CLFLUSH   = feat(WordStd, 19)
	DS        = feat(WordStd, 21)
	ACPI      = feat(WordStd, 22)
	MMX       = feat(WordStd, 23)
	FXSR      = feat(WordStd, 24)
	XMM       = feat(WordStd, 25)
	XMM2      = feat(WordStd, 26)
	SELFSNOOP = feat(WordStd, 27)
	HT        = feat(WordStd, 28)
	ACC       = feat(WordStd, 29)
	IA64      = feat(WordStd, 30)
	PBE       = feat(WordStd, 31)
)

// Word 1: CPUID 0x80000001 EDX.
var (
	SYSCALL  = feat(WordExt, 11)
	MP       = feat(WordExt, 19)
	NX       = feat(WordExt, 20)
	MMXEXT   = feat(WordExt, 22)
	FXSROPT  = feat(WordExt, 25)
	GBPAGES  = feat(WordExt, 26)
	RDTSCP   = feat(WordExt, 27)
	LM       = feat(WordExt, 29)
	K3DNOWEX = feat(WordExt, 30)
	K3DNOW   = feat(WordExt, 31)
)

// Word 4: CPUID 0x00000001 ECX.
var (
	XMM3        = feat(WordStdECX, 0)
	PCLMULQDQ   = feat(WordStdECX, 1)
	DTES64      = feat(WordStdECX, 2)
	MWAIT       = feat(WordStdECX, 3)
	DSCPL       = feat(WordStdECX, 4)
	VMX         = feat(WordStdECX, 5)
	SMX         = feat(WordStdECX, 6)
	EST         = feat(WordStdECX, 7)
	TM2         = feat(WordStdECX, 8)
	SSSE3       = feat(WordStdECX, 9)
	CID         = feat(WordStdECX, 10)
	SDBG        = feat(WordStdECX, 11)
	FMA         = feat(WordStdECX, 12)
	CX16        = feat(WordStdECX, 13)
	XTPR        = feat(WordStdECX, 14)
	PDCM        = feat(WordStdECX, 15)
	PCID        = feat(WordStdECX, 17)
	DCA         = feat(WordStdECX, 18)
	XMM4_1      = feat(WordStdECX, 19)
	XMM4_2      = feat(WordStdECX, 20)
	X2APIC      = feat(WordStdECX, 21)
	MOVBE       = feat(WordStdECX, 22)
	POPCNT      = feat(WordStdECX, 23)
	TSCDeadline = feat(WordStdECX, 24)
	AES         = feat(WordStdECX, 25)
	XSAVE       = feat(WordStdECX, 26)
	OSXSAVE     = feat(WordStdECX, 27)
	AVX         = feat(WordStdECX, 28)
	F16C        = feat(WordStdECX, 29)
	RDRAND      = feat(WordStdECX, 30)
	HYPERVISOR  = feat(WordStdECX, 31)
)

// Word 6: CPUID 0x80000001 ECX.
var (
	LAHFLM         = feat(WordExtECX, 0)
	CMPLegacy      = feat(WordExtECX, 1)
	SVM            = feat(WordExtECX, 2)
	EXTAPIC        = feat(WordExtECX, 3)
	CR8Legacy      = feat(WordExtECX, 4)
	ABM            = feat(WordExtECX, 5)
	SSE4A          = feat(WordExtECX, 6)
	MisalignSSE    = feat(WordExtECX, 7)
	K3DNOWPrefetch = feat(WordExtECX, 8)
	OSVW           = feat(WordExtECX, 9)
	IBS            = feat(WordExtECX, 10)
	XOP            = feat(WordExtECX, 11)
	SKINIT         = feat(WordExtECX, 12)
	WDT            = feat(WordExtECX, 13)
	LWP            = feat(WordExtECX, 15)
	FMA4           = feat(WordExtECX, 16)
	TCE            = feat(WordExtECX, 17)
	NodeIDMSR      = feat(WordExtECX, 19)
	TBM            = feat(WordExtECX, 21)
	TOPOEXT        = feat(WordExtECX, 22)
	PerfCtrCore    = feat(WordExtECX, 23)
	PerfCtrNB      = feat(WordExtECX, 24)
	BPEXT          = feat(WordExtECX, 26)
	PTSC           = feat(WordExtECX, 27)
	PerfCtrLLC     = feat(WordExtECX, 28)
	MWAITX         = feat(WordExtECX, 29)
)

// Word 16: CPUID 0x00000007:0 ECX.
var (
	AVX512VBMI      = feat(WordLeaf7ECX, 1)
	UMIP            = feat(WordLeaf7ECX, 2)
	PKU             = feat(WordLeaf7ECX, 3)
	OSPKE           = feat(WordLeaf7ECX, 4)
	AVX512VBMI2     = feat(WordLeaf7ECX, 6)
	GFNI            = feat(WordLeaf7ECX, 8)
	VAES            = feat(WordLeaf7ECX, 9)
	VPCLMULQDQ      = feat(WordLeaf7ECX, 10)
	AVX512VNNI      = feat(WordLeaf7ECX, 11)
	AVX512BITALG    = feat(WordLeaf7ECX, 12)
	AVX512VPOPCNTDQ = feat(WordLeaf7ECX, 14)
	LA57            = feat(WordLeaf7ECX, 16)
	RDPID           = feat(WordLeaf7ECX, 22)
)

// names uses the spelling of /proc/cpuinfo.
var names = map[Feature]string{
	FPU: "fpu", VME: "vme", DE: "de", PSE: "pse", TSC: "tsc", MSR: "msr",
	PAE: "pae", MCE: "mce", CX8: "cx8", APIC: "apic", SEP: "sep",
	MTRR: "mtrr", PGE: "pge", MCA: "mca", CMOV: "cmov", PAT: "pat",
	PSE36: "pse36", PN: "pn", CLFLUSH: "clflush", DS: "dts", ACPI: "acpi",
	MMX: "mmx", FXSR: "fxsr", XMM: "sse", XMM2: "sse2", SELFSNOOP: "ss",
	HT: "ht", ACC: "tm", IA64: "ia64", PBE: "pbe",

	SYSCALL: "syscall", MP: "mp", NX: "nx", MMXEXT: "mmxext",
	FXSROPT: "fxsr_opt", GBPAGES: "pdpe1gb", RDTSCP: "rdtscp", LM: "lm",
	K3DNOWEX: "3dnowext", K3DNOW: "3dnow",

	XMM3: "pni", PCLMULQDQ: "pclmulqdq", DTES64: "dtes64", MWAIT: "monitor",
	DSCPL: "ds_cpl", VMX: "vmx", SMX: "smx", EST: "est", TM2: "tm2",
	SSSE3: "ssse3", CID: "cid", SDBG: "sdbg", FMA: "fma", CX16: "cx16",
	XTPR: "xtpr", PDCM: "pdcm", PCID: "pcid", DCA: "dca", XMM4_1: "sse4_1",
	XMM4_2: "sse4_2", X2APIC: "x2apic", MOVBE: "movbe", POPCNT: "popcnt",
	TSCDeadline: "tsc_deadline_timer", AES: "aes", XSAVE: "xsave",
	OSXSAVE: "osxsave", AVX: "avx", F16C: "f16c", RDRAND: "rdrand",
	HYPERVISOR: "hypervisor",

	LAHFLM: "lahf_lm", CMPLegacy: "cmp_legacy", SVM: "svm",
	EXTAPIC: "extapic", CR8Legacy: "cr8_legacy", ABM: "abm", SSE4A: "sse4a",
	MisalignSSE: "misalignsse", K3DNOWPrefetch: "3dnowprefetch",
	OSVW: "osvw", IBS: "ibs", XOP: "xop", SKINIT: "skinit", WDT: "wdt",
	LWP: "lwp", FMA4: "fma4", TCE: "tce", NodeIDMSR: "nodeid_msr",
	TBM: "tbm", TOPOEXT: "topoext", PerfCtrCore: "perfctr_core",
	PerfCtrNB: "perfctr_nb", BPEXT: "bpext", PTSC: "ptsc",
	PerfCtrLLC: "perfctr_llc", MWAITX: "mwaitx",

	AVX512VBMI: "avx512vbmi", UMIP: "umip", PKU: "pku", OSPKE: "ospke",
	AVX512VBMI2: "avx512_vbmi2", GFNI: "gfni", VAES: "vaes",
	VPCLMULQDQ: "vpclmulqdq", AVX512VNNI: "avx512_vnni",
	AVX512BITALG: "avx512_bitalg", AVX512VPOPCNTDQ: "avx512_vpopcntdq",
	LA57: "la57", RDPID: "rdpid",
}

var byName = func() map[string]Feature {
	m := make(map[string]Feature, len(names))
	for f, n := range names {
		m[n] = f
	}
	return m
}()

// Lookup resolves a capability by its /proc/cpuinfo name. A "word:bit" pair
// is also accepted for bits without a name.
func Lookup(name string) (Feature, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if f, ok := byName[name]; ok {
		return f, nil
	}
	var w, b uint
	if n, err := fmt.Sscanf(name, "%d:%d", &w, &b); err == nil && n == 2 {
		if w >= NCapInts || b >= bitsPerWord {
			return 0, fmt.Errorf("capability %q out of range", name)
		}
		return feat(Word(w), b), nil
	}
	return 0, fmt.Errorf("unknown capability %q", name)
}

// Named returns every named capability ordered by word and bit.
func Named() []Feature {
	var out []Feature
	for w := Word(0); w < wordSentinel; w++ {
		for b := uint(0); b < bitsPerWord; b++ {
			if _, ok := names[feat(w, b)]; ok {
				out = append(out, feat(w, b))
			}
		}
	}
	return out
}

// Set is a capability vector: one 32-bit word per Word index.
type Set [NCapInts]uint32

// Of builds a Set holding exactly the given capabilities.
func Of(features ...Feature) Set {
	var s Set
	for _, f := range features {
		s.Add(f)
	}
	return s
}

// Has reports whether f is present.
func (s Set) Has(f Feature) bool {
	return s[f.Word()]&f.Mask() != 0
}

func (s *Set) Add(f Feature) {
	s[f.Word()] |= f.Mask()
}

// Merge ORs the bits of other into s.
func (s *Set) Merge(other Set) {
	for i := range s {
		s[i] |= other[i]
	}
}

// AndNot returns the bits of s that are not in other.
func (s Set) AndNot(other Set) Set {
	var out Set
	for i := range s {
		out[i] = s[i] &^ other[i]
	}
	return out
}

// Contains reports whether every bit of other is present in s.
func (s Set) Contains(other Set) bool {
	return other.AndNot(s).IsZero()
}

func (s Set) IsZero() bool {
	return s == Set{}
}

// Count returns the number of set bits.
func (s Set) Count() int {
	n := 0
	for _, w := range s {
		n += bits.OnesCount32(w)
	}
	return n
}

// Features lists the set bits ordered by word and bit.
func (s Set) Features() []Feature {
	var out []Feature
	for w, v := range s {
		for v != 0 {
			b := uint(bits.TrailingZeros32(v))
			out = append(out, feat(Word(w), b))
			v &^= 1 << b
		}
	}
	return out
}

func (s Set) String() string {
	fs := s.Features()
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = f.String()
	}
	return strings.Join(parts, " ")
}
