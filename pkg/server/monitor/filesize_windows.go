//go:build windows

package monitor

import (
	"os"
	"syscall"
	"unsafe"
)

var (
	kernel32          = syscall.NewLazyDLL("kernel32.dll")
	getCompressedSize = kernel32.NewProc("GetCompressedFileSizeW")
)

// diskUsage returns the bytes a file occupies on disk using
// GetCompressedFileSizeW, falling back to the logical size.
func diskUsage(path string, info os.FileInfo) int64 {
	pathPtr, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return info.Size()
	}

	var high uint32
	low, _, _ := getCompressedSize.Call(
		uintptr(unsafe.Pointer(pathPtr)),
		uintptr(unsafe.Pointer(&high)),
	)

	// INVALID_FILE_SIZE
	if low == 0xFFFFFFFF {
		return info.Size()
	}
	return int64(high)<<32 + int64(low)
}
