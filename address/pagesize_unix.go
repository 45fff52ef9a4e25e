//go:build linux || darwin || freebsd
// +build linux darwin freebsd

package address

import "golang.org/x/sys/unix"

// DefaultAlignment returns the native page size, used as the bump
// allocator's default alignment hint when the caller does not override it.
func DefaultAlignment() int64 {
	return int64(unix.Getpagesize())
}
