//go:build !(linux && amd64)

package native

import "github.com/tinyrange/cpucheck/internal/x86/hw"

// Port is unavailable on this platform.
type Port struct {
	hw.SimplePort
}

func Open(Options) (*Port, error) { return nil, hw.ErrPortUnsupported }

func (*Port) Close() error { return nil }
