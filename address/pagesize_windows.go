//go:build windows
// +build windows

package address

import "golang.org/x/sys/windows"

// DefaultAlignment returns the native page size on Windows,
// used as the bump allocator's default alignment hint when the caller does
// not override it.
func DefaultAlignment() int64 {
	var info windows.SystemInfo
	windows.GetSystemInfo(&info)
	return int64(info.PageSize)
}
