//go:build linux && amd64

package native

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
	"gvisor.dev/gvisor/pkg/cpuid"

	"github.com/tinyrange/cpucheck/internal/x86/hw"
)

// eflagsStub returns the bits of the mask in RDI that can be flipped in
// EFLAGS. The original flags are restored before returning.
//
//	pushfq; pushfq; pop rax; mov rcx, rax; xor rcx, rdi; push rcx; popfq
//	pushfq; pop rcx; popfq; xor rax, rcx; and rax, rdi; ret
var eflagsStub = []byte{
	0x9c, 0x9c, 0x58, 0x48, 0x89, 0xc1, 0x48, 0x31, 0xf9, 0x51, 0x9d,
	0x9c, 0x59, 0x9d, 0x48, 0x31, 0xc8, 0x48, 0x21, 0xf8, 0xc3,
}

// fpuStub resets the x87 unit and returns control<<16 | status.
//
//	fninit; sub rsp, 8; fnstcw [rsp]; movzx eax, word [rsp]; shl eax, 16
//	fnstsw ax; add rsp, 8; ret
var fpuStub = []byte{
	0xdb, 0xe3, 0x48, 0x83, 0xec, 0x08, 0xd9, 0x3c, 0x24, 0x0f, 0xb7, 0x04,
	0x24, 0xc1, 0xe0, 0x10, 0xdf, 0xe0, 0x48, 0x83, 0xc4, 0x08, 0xc3,
}

// Port is the host processor.
type Port struct {
	opts Options
	log  *slog.Logger

	code   []byte
	eflags uintptr
	fpu    uintptr

	mu      sync.Mutex
	msrOnce sync.Once
	msrFd   int
	msrErr  error
	shadow  map[uint32]uint64
	cr0     uint64
}

// Open maps the probe stubs and returns a port for the host processor.
func Open(opts Options) (*Port, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	code, err := mapStubs(eflagsStub, fpuStub)
	if err != nil {
		return nil, err
	}
	base := uintptr(unsafe.Pointer(&code[0]))

	return &Port{
		opts:   opts,
		log:    log,
		code:   code,
		eflags: base,
		fpu:    base + stubOffset(eflagsStub),
		msrFd:  -1,
		shadow: make(map[uint32]uint64),
		cr0:    hw.SimplePort{}.ReadCR0(),
	}, nil
}

func stubOffset(stub []byte) uintptr { return uintptr(len(stub)+15) &^ 15 }

// mapStubs copies the stubs into one anonymous mapping, 16 byte aligned,
// and makes it read-only executable.
func mapStubs(stubs ...[]byte) ([]byte, error) {
	size := 0
	for _, s := range stubs {
		size += int(stubOffset(s))
	}
	pageSize := unix.Getpagesize()
	size = (size + pageSize - 1) / pageSize * pageSize

	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap probe stubs: %w", err)
	}
	off := 0
	for _, s := range stubs {
		copy(mem[off:], s)
		off += int(stubOffset(s))
	}
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("mprotect probe stubs: %w", err)
	}
	return mem, nil
}

// Close unmaps the stubs and closes the MSR device.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.code != nil {
		errs = append(errs, unix.Munmap(p.code))
		p.code = nil
	}
	if p.msrFd >= 0 {
		errs = append(errs, unix.Close(p.msrFd))
		p.msrFd = -1
	}
	return errors.Join(errs...)
}

func (p *Port) call(fn uintptr, args ...uintptr) uintptr {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	r, _, _ := purego.SyscallN(fn, args...)
	return r
}

func (p *Port) CPUID(leaf, subleaf uint32) hw.Registers {
	out := (&cpuid.Native{}).Query(cpuid.In{Eax: leaf, Ecx: subleaf})
	return hw.Registers{EAX: out.Eax, EBX: out.Ebx, ECX: out.Ecx, EDX: out.Edx}
}

func (p *Port) HasEFlag(mask uint32) bool {
	return p.call(p.eflags, uintptr(mask)) != 0
}

func (p *Port) FPUInit() (status, control uint16) {
	r := p.call(p.fpu)
	return uint16(r), uint16(r >> 16)
}

// ReadCR0 returns the shadow copy; CR0 is not readable outside ring 0.
func (p *Port) ReadCR0() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cr0
}

func (p *Port) WriteCR0(value uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log.Debug("cr0 write shadowed", "value", fmt.Sprintf("%#x", value))
	p.cr0 = value
}

func (p *Port) openMSR() (int, error) {
	p.msrOnce.Do(func() {
		flags := unix.O_RDONLY
		if p.opts.AllowMSRWrites {
			flags = unix.O_RDWR
		}
		path := fmt.Sprintf("/dev/cpu/%d/msr", p.opts.CPU)
		fd, err := unix.Open(path, flags|unix.O_CLOEXEC, 0)
		if err != nil {
			p.msrErr = fmt.Errorf("open %s: %w", path, err)
			return
		}
		p.msrFd = fd
	})
	return p.msrFd, p.msrErr
}

// ReadMSR reads addr from the msr driver. Shadowed writes win. Registers
// that cannot be read yield zero.
func (p *Port) ReadMSR(addr uint32) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v, ok := p.shadow[addr]; ok {
		return v
	}
	fd, err := p.openMSR()
	if err != nil {
		p.log.Debug("msr read unavailable", "msr", fmt.Sprintf("%#x", addr), "error", err)
		return 0
	}
	var buf [8]byte
	if _, err := unix.Pread(fd, buf[:], int64(addr)); err != nil {
		p.log.Debug("msr read failed", "msr", fmt.Sprintf("%#x", addr), "error", err)
		return 0
	}
	return binary.LittleEndian.Uint64(buf[:])
}

func (p *Port) WriteMSR(addr uint32, value uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.opts.AllowMSRWrites {
		p.log.Warn("msr write shadowed", "msr", fmt.Sprintf("%#x", addr), "value", fmt.Sprintf("%#x", value))
		p.shadow[addr] = value
		return
	}
	fd, err := p.openMSR()
	if err == nil {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], value)
		_, err = unix.Pwrite(fd, buf[:], int64(addr))
	}
	if err != nil {
		p.log.Warn("msr write failed", "msr", fmt.Sprintf("%#x", addr), "error", err)
		p.shadow[addr] = value
	}
}

var _ hw.Port = (*Port)(nil)
