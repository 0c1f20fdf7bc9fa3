// Package kvm answers hardware port queries the way a KVM virtual CPU on this
// host would: identification comes from KVM_GET_SUPPORTED_CPUID, feature
// MSRs from KVM_GET_MSRS on the system descriptor, and everything else is a
// freshly reset virtual processor.
package kvm

import "log/slog"

// Options configures a KVM port.
type Options struct {
	// Device defaults to /dev/kvm.
	Device string

	Logger *slog.Logger
}
