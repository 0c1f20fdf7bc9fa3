package hw

// SimplePort adapts plain functions to the Port interface. Nil functions
// behave like a modern processor that reports nothing: CPUID returns zeros,
// MSR reads return zero and writes are dropped, every EFLAGS bit toggles and
// the FPU responds with its reset state.
type SimplePort struct {
	CPUIDFunc    func(leaf, subleaf uint32) Registers
	ReadMSRFunc  func(addr uint32) uint64
	WriteMSRFunc func(addr uint32, value uint64)
	HasEFlagFunc func(mask uint32) bool
	ReadCR0Func  func() uint64
	WriteCR0Func func(value uint64)
	FPUInitFunc  func() (status, control uint16)
}

func (p SimplePort) CPUID(leaf, subleaf uint32) Registers {
	if p.CPUIDFunc != nil {
		return p.CPUIDFunc(leaf, subleaf)
	}
	return Registers{}
}

func (p SimplePort) ReadMSR(addr uint32) uint64 {
	if p.ReadMSRFunc != nil {
		return p.ReadMSRFunc(addr)
	}
	return 0
}

func (p SimplePort) WriteMSR(addr uint32, value uint64) {
	if p.WriteMSRFunc != nil {
		p.WriteMSRFunc(addr, value)
	}
}

func (p SimplePort) HasEFlag(mask uint32) bool {
	if p.HasEFlagFunc != nil {
		return p.HasEFlagFunc(mask)
	}
	return true
}

func (p SimplePort) ReadCR0() uint64 {
	if p.ReadCR0Func != nil {
		return p.ReadCR0Func()
	}
	return CR0PE | CR0MP | CR0ET | CR0NE | CR0WP | CR0AM | CR0PG
}

func (p SimplePort) WriteCR0(value uint64) {
	if p.WriteCR0Func != nil {
		p.WriteCR0Func(value)
	}
}

func (p SimplePort) FPUInit() (status, control uint16) {
	if p.FPUInitFunc != nil {
		return p.FPUInitFunc()
	}
	return FPUResetStatus, FPUResetControl
}

var _ Port = SimplePort{}
