//go:build linux && amd64

package kvm

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	kvmAPIVersion = 12

	kvmGetAPIVersion          = 0xae00
	kvmGetSupportedCpuid      = 0xc008ae05
	kvmGetMsrFeatureIndexList = 0xc004ae0a
	kvmGetMsrs                = 0xc008ae88

	kvmCpuidFlagSignificantIndex = 1 << 0

	maxCPUIDEntries = 256
	maxMSRIndices   = 1024
)

type kvmCPUIDEntry2 struct {
	Function uint32
	Index    uint32
	Flags    uint32
	Eax      uint32
	Ebx      uint32
	Ecx      uint32
	Edx      uint32
	Padding  [3]uint32
}

type kvmCPUID2 struct {
	Nr      uint32
	Padding uint32
}

type kvmMsrList struct {
	Nmsrs uint32
}

type kvmMsrEntry struct {
	Index    uint32
	Reserved uint32
	Data     uint64
}

type kvmMsrs struct {
	Nmsrs uint32
	Pad   uint32
}

func ioctl(fd uintptr, request uint64, arg uintptr) (uintptr, error) {
	v1, _, err := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(request), arg)
	if err != 0 {
		return 0, err
	}
	return v1, nil
}

func ioctlWithRetry(fd uintptr, request uint64, arg uintptr) (uintptr, error) {
	for {
		v1, err := ioctl(fd, request, arg)
		if err == unix.EINTR {
			continue
		}
		return v1, err
	}
}

func getAPIVersion(fd int) (int, error) {
	v, err := ioctlWithRetry(uintptr(fd), kvmGetAPIVersion, 0)
	return int(v), err
}

// getSupportedCPUID grows the buffer until the kernel stops reporting E2BIG.
func getSupportedCPUID(fd int) ([]kvmCPUIDEntry2, error) {
	for n := 64; n <= maxCPUIDEntries*4; n *= 2 {
		size := unsafe.Sizeof(kvmCPUID2{}) + unsafe.Sizeof(kvmCPUIDEntry2{})*uintptr(n)
		buf := make([]byte, size)
		hdr := (*kvmCPUID2)(unsafe.Pointer(&buf[0]))
		hdr.Nr = uint32(n)

		_, err := ioctlWithRetry(uintptr(fd), kvmGetSupportedCpuid, uintptr(unsafe.Pointer(hdr)))
		if errors.Is(err, unix.E2BIG) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries := unsafe.Slice((*kvmCPUIDEntry2)(unsafe.Pointer(&buf[unsafe.Sizeof(kvmCPUID2{})])), hdr.Nr)
		return append([]kvmCPUIDEntry2(nil), entries...), nil
	}
	return nil, unix.E2BIG
}

func getMsrFeatureIndexList(fd int) ([]uint32, error) {
	buf := make([]uint32, 1+maxMSRIndices)
	hdr := (*kvmMsrList)(unsafe.Pointer(&buf[0]))
	hdr.Nmsrs = maxMSRIndices
	if _, err := ioctlWithRetry(uintptr(fd), kvmGetMsrFeatureIndexList, uintptr(unsafe.Pointer(hdr))); err != nil {
		return nil, err
	}
	return append([]uint32(nil), buf[1:1+hdr.Nmsrs]...), nil
}

// getFeatureMSRs reads feature MSRs through the system descriptor. The
// kernel stops at the first index it cannot read.
func getFeatureMSRs(fd int, indices []uint32) (map[uint32]uint64, error) {
	out := make(map[uint32]uint64, len(indices))
	if len(indices) == 0 {
		return out, nil
	}
	size := unsafe.Sizeof(kvmMsrs{}) + unsafe.Sizeof(kvmMsrEntry{})*uintptr(len(indices))
	buf := make([]byte, size)
	hdr := (*kvmMsrs)(unsafe.Pointer(&buf[0]))
	hdr.Nmsrs = uint32(len(indices))
	entries := unsafe.Slice((*kvmMsrEntry)(unsafe.Pointer(&buf[unsafe.Sizeof(kvmMsrs{})])), len(indices))
	for i, idx := range indices {
		entries[i].Index = idx
	}

	n, err := ioctlWithRetry(uintptr(fd), kvmGetMsrs, uintptr(unsafe.Pointer(hdr)))
	if err != nil {
		return nil, err
	}
	for _, e := range entries[:n] {
		out[e.Index] = e.Data
	}
	return out, nil
}
