// Package native binds the hardware port to the processor the program runs
// on. CPUID and the EFLAGS and x87 probes execute on the host; model specific
// registers go through the Linux msr driver. Control registers cannot be
// touched from user space and are shadowed.
package native

import "log/slog"

// Options configures a host port.
type Options struct {
	// CPU selects the /dev/cpu/N/msr device used for MSR access.
	CPU int

	// AllowMSRWrites lets remedies write real MSRs. Without it writes only
	// update a shadow copy that later reads return.
	AllowMSRWrites bool

	Logger *slog.Logger
}
