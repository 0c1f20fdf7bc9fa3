package main

import (
	"log/slog"

	"github.com/tinyrange/cpucheck/internal/x86/hw"
	"github.com/tinyrange/cpucheck/internal/x86/hw/kvm"
	"github.com/tinyrange/cpucheck/internal/x86/hw/native"
	"github.com/tinyrange/cpucheck/internal/x86/hw/profile"
)

// openPort resolves the --cpu flag. The returned func releases the port and
// logs any error doing so.
func openPort(ref string, allowMSRWrites bool, log *slog.Logger) (hw.Port, func(), error) {
	switch ref {
	case "host":
		p, err := native.Open(native.Options{AllowMSRWrites: allowMSRWrites, Logger: log})
		if err != nil {
			return nil, nil, err
		}
		return p, closeLogged(log, ref, p.Close), nil
	case "kvm":
		p, err := kvm.Open(kvm.Options{Logger: log})
		if err != nil {
			return nil, nil, err
		}
		return p, closeLogged(log, ref, p.Close), nil
	}

	prof, err := profile.Resolve(ref)
	if err != nil {
		return nil, nil, err
	}
	m, err := profile.New(*prof)
	if err != nil {
		return nil, nil, err
	}
	log.Debug("using cpu profile", "profile", m.String())
	return m, func() {}, nil
}

func closeLogged(log *slog.Logger, ref string, closeFn func() error) func() {
	return func() {
		if err := closeFn(); err != nil {
			log.Debug("close cpu port", "cpu", ref, "error", err)
		}
	}
}
