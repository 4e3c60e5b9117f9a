//go:build windows

package lock

import (
	"os"

	"golang.org/x/sys/windows"
)

// lockFile locks the first byte of the file; LockFileEx blocks unless
// LOCKFILE_FAIL_IMMEDIATELY is passed.
func lockFile(f *os.File, mode Mode) error {
	var flags uint32
	if mode == Exclusive {
		flags = windows.LOCKFILE_EXCLUSIVE_LOCK
	}
	ol := new(windows.Overlapped)
	return windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, 1, 0, ol)
}

func unlockFile(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol)
}
