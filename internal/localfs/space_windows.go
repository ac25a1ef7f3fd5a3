//go:build windows

package localfs

import (
	"syscall"
	"unsafe"
)

var (
	kernel32            = syscall.NewLazyDLL("kernel32.dll")
	getDiskFreeSpaceExW = kernel32.NewProc("GetDiskFreeSpaceExW")
)

func availableBytes(dir string) (int64, bool) {
	var freeBytesAvailable, totalBytes, totalFreeBytes uint64

	p, err := syscall.UTF16PtrFromString(dir)
	if err != nil {
		return 0, false
	}
	ret, _, _ := getDiskFreeSpaceExW.Call(
		uintptr(unsafe.Pointer(p)),
		uintptr(unsafe.Pointer(&freeBytesAvailable)),
		uintptr(unsafe.Pointer(&totalBytes)),
		uintptr(unsafe.Pointer(&totalFreeBytes)),
	)
	if ret == 0 {
		return 0, false
	}
	return int64(freeBytesAvailable), true
}
