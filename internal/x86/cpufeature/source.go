package cpufeature

// Register names one of the four CPUID output registers.
type Register int

const (
	EAX Register = iota
	EBX
	ECX
	EDX
)

func (r Register) String() string {
	switch r {
	case EAX:
		return "eax"
	case EBX:
		return "ebx"
	case ECX:
		return "ecx"
	case EDX:
		return "edx"
	default:
		return "invalid"
	}
}

// Source is the CPUID leaf and output register a capability word is read from.
type Source struct {
	Leaf     uint32
	Subleaf  uint32
	Register Register
}

// Sources maps each populated capability word to where CPUID reports it.
// Words missing from the map are never populated.
var Sources = map[Word]Source{
	WordStd:      {Leaf: 0x00000001, Register: EDX},
	WordExt:      {Leaf: 0x80000001, Register: EDX},
	WordStdECX:   {Leaf: 0x00000001, Register: ECX},
	WordExtECX:   {Leaf: 0x80000001, Register: ECX},
	WordLeaf7ECX: {Leaf: 0x00000007, Subleaf: 0, Register: ECX},
}
