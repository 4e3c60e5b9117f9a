//go:build unix

package mmap

import (
	"golang.org/x/sys/unix"
)

// mmapFile maps a file descriptor read-only.
// MAP_SHARED keeps the view coherent with writes made through the descriptor.
func mmapFile(fd uintptr, size int) ([]byte, error) {
	return unix.Mmap(int(fd), 0, size, unix.PROT_READ, unix.MAP_SHARED)
}

// munmapFile unmaps the memory region, freeing the virtual memory space.
func munmapFile(data []byte) error {
	return unix.Munmap(data)
}
