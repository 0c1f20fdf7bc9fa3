package hw

import (
	"fmt"
	"log/slog"
)

type traced struct {
	port Port
	log  *slog.Logger
}

// Traced wraps port so that every access is logged at debug level.
func Traced(port Port, log *slog.Logger) Port {
	if log == nil {
		log = slog.Default()
	}
	return &traced{port: port, log: log}
}

func hex32(v uint32) string { return fmt.Sprintf("%#08x", v) }
func hex64(v uint64) string { return fmt.Sprintf("%#016x", v) }

func (t *traced) CPUID(leaf, subleaf uint32) Registers {
	r := t.port.CPUID(leaf, subleaf)
	t.log.Debug("cpuid",
		"leaf", hex32(leaf), "subleaf", subleaf,
		"eax", hex32(r.EAX), "ebx", hex32(r.EBX), "ecx", hex32(r.ECX), "edx", hex32(r.EDX))
	return r
}

func (t *traced) ReadMSR(addr uint32) uint64 {
	v := t.port.ReadMSR(addr)
	t.log.Debug("rdmsr", "msr", hex32(addr), "value", hex64(v))
	return v
}

func (t *traced) WriteMSR(addr uint32, value uint64) {
	t.log.Debug("wrmsr", "msr", hex32(addr), "value", hex64(value))
	t.port.WriteMSR(addr, value)
}

func (t *traced) HasEFlag(mask uint32) bool {
	ok := t.port.HasEFlag(mask)
	t.log.Debug("eflags toggle", "mask", hex32(mask), "toggleable", ok)
	return ok
}

func (t *traced) ReadCR0() uint64 {
	v := t.port.ReadCR0()
	t.log.Debug("read cr0", "value", hex64(v))
	return v
}

func (t *traced) WriteCR0(value uint64) {
	t.log.Debug("write cr0", "value", hex64(value))
	t.port.WriteCR0(value)
}

func (t *traced) FPUInit() (status, control uint16) {
	status, control = t.port.FPUInit()
	t.log.Debug("fninit", "status", status, "control", fmt.Sprintf("%#04x", control))
	return status, control
}
