//go:build linux && amd64

package kvm

import (
	"log/slog"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyrange/cpucheck/internal/kconfig"
	"github.com/tinyrange/cpucheck/internal/x86/check"
	cf "github.com/tinyrange/cpucheck/internal/x86/cpufeature"
	"github.com/tinyrange/cpucheck/internal/x86/hw"
)

func checkKVMAvailable(t testing.TB) *Port {
	t.Helper()

	p, err := Open(Options{})
	if err != nil {
		t.Skipf("KVM not available: %v", err)
	}
	return p
}

func TestABISizes(t *testing.T) {
	assert.Equal(t, uintptr(40), unsafe.Sizeof(kvmCPUIDEntry2{}))
	assert.Equal(t, uintptr(8), unsafe.Sizeof(kvmCPUID2{}))
	assert.Equal(t, uintptr(16), unsafe.Sizeof(kvmMsrEntry{}))
}

func TestCPUIDLookup(t *testing.T) {
	p := newPort([]kvmCPUIDEntry2{
		{Function: 0, Eax: 7, Ebx: 0x756e6547, Edx: 0x49656e69, Ecx: 0x6c65746e},
		{Function: 1, Eax: 0x906ea, Edx: cf.Of(cf.FPU, cf.CX8)[cf.WordStd]},
		{Function: 7, Index: 1, Flags: kvmCpuidFlagSignificantIndex, Ecx: 0xdead},
		{Function: 7, Index: 0, Flags: kvmCpuidFlagSignificantIndex, Ecx: cf.LA57.Mask()},
	}, map[uint32]uint64{}, slog.Default())

	assert.Equal(t, uint32(7), p.CPUID(0, 0).EAX)
	assert.Equal(t, uint32(0x906ea), p.CPUID(1, 5).EAX)
	assert.Equal(t, cf.LA57.Mask(), p.CPUID(7, 0).ECX)
	assert.Equal(t, uint32(0xdead), p.CPUID(7, 1).ECX)
	assert.Equal(t, hw.Registers{}, p.CPUID(7, 2))
	assert.Equal(t, hw.Registers{}, p.CPUID(0x80000001, 0))

	var s check.State
	s.Reset()
	check.Probe(p, &s)
	assert.Equal(t, check.VendorIntel, s.Vendor)
	assert.Equal(t, 0x9e, s.Model)
	assert.Equal(t, cf.Of(cf.FPU, cf.CX8, cf.LA57), s.Flags)
}

func TestVirtualMSRs(t *testing.T) {
	p := newPort(nil, map[uint32]uint64{0x10a: 0xeb}, slog.Default())
	assert.Equal(t, uint64(0xeb), p.ReadMSR(0x10a))
	assert.Zero(t, p.ReadMSR(hw.MSRK7HWCR))
	p.WriteMSR(hw.MSRK7HWCR, 0x8000)
	assert.Equal(t, uint64(0x8000), p.ReadMSR(hw.MSRK7HWCR))
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(Options{Device: "/nonexistent/kvm"})
	assert.Error(t, err)
}

func TestKVMGuestRunsX86_64(t *testing.T) {
	p := checkKVMAvailable(t)
	defer p.Close()

	b, ok := kconfig.Preset("x86_64")
	require.True(t, ok)
	v, err := check.New(check.Config{Port: p, Build: b})
	require.NoError(t, err)

	o := v.Run()
	assert.True(t, o.Passed, "%v", o.Err)
	assert.Equal(t, check.Level64, o.Level)
}
