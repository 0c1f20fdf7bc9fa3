//go:build linux && amd64

package kvm

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/tinyrange/cpucheck/internal/x86/hw"
)

// Port is a virtual processor as KVM would present it.
type Port struct {
	log     *slog.Logger
	entries []kvmCPUIDEntry2

	mu   sync.Mutex
	msrs map[uint32]uint64
	cr0  uint64
}

// Open queries the KVM device and returns a port over its answers. The
// device is closed again before Open returns.
func Open(opts Options) (*Port, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	dev := opts.Device
	if dev == "" {
		dev = "/dev/kvm"
	}

	fd, err := unix.Open(dev, unix.O_CLOEXEC|unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dev, err)
	}
	defer unix.Close(fd)

	version, err := getAPIVersion(fd)
	if err != nil {
		return nil, fmt.Errorf("get KVM API version: %w", err)
	}
	if version != kvmAPIVersion {
		return nil, fmt.Errorf("kvm: unsupported API version %d, want %d", version, kvmAPIVersion)
	}

	entries, err := getSupportedCPUID(fd)
	if err != nil {
		return nil, fmt.Errorf("KVM_GET_SUPPORTED_CPUID: %w", err)
	}

	msrs := make(map[uint32]uint64)
	if indices, err := getMsrFeatureIndexList(fd); err != nil {
		log.Debug("kvm feature msrs unavailable", "error", err)
	} else if msrs, err = getFeatureMSRs(fd, indices); err != nil {
		log.Debug("kvm feature msr read failed", "error", err)
		msrs = make(map[uint32]uint64)
	}
	log.Debug("kvm cpuid loaded", "entries", len(entries), "feature_msrs", len(msrs))

	return newPort(entries, msrs, log), nil
}

func newPort(entries []kvmCPUIDEntry2, msrs map[uint32]uint64, log *slog.Logger) *Port {
	return &Port{
		log:     log,
		entries: entries,
		msrs:    msrs,
		cr0:     hw.SimplePort{}.ReadCR0(),
	}
}

// Close releases nothing; the device is not held open.
func (p *Port) Close() error { return nil }

func (p *Port) CPUID(leaf, subleaf uint32) hw.Registers {
	for _, e := range p.entries {
		if e.Function != leaf {
			continue
		}
		if e.Flags&kvmCpuidFlagSignificantIndex != 0 && e.Index != subleaf {
			continue
		}
		return hw.Registers{EAX: e.Eax, EBX: e.Ebx, ECX: e.Ecx, EDX: e.Edx}
	}
	return hw.Registers{}
}

func (p *Port) ReadMSR(addr uint32) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.msrs[addr]
}

func (p *Port) WriteMSR(addr uint32, value uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msrs[addr] = value
}

// HasEFlag is true for every bit: KVM only runs on processors with CPUID.
func (p *Port) HasEFlag(uint32) bool { return true }

func (p *Port) ReadCR0() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cr0
}

func (p *Port) WriteCR0(value uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cr0 = value
}

// FPUInit reports the reset state; every KVM capable processor has an FPU.
func (p *Port) FPUInit() (status, control uint16) {
	return hw.FPUResetStatus, hw.FPUResetControl
}

var _ hw.Port = (*Port)(nil)
