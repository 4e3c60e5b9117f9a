// Package mmap maps store files read-only into memory for sequential scans.
package mmap

import (
	"fmt"
	"os"
)

// Region is a read-only view of a file's contents at the time it was mapped.
type Region struct {
	data []byte
}

// Map maps the first size bytes of f. A zero size yields an empty region
// without touching the OS, since empty mappings are rejected by mmap.
func Map(f *os.File, size int64) (*Region, error) {
	if size < 0 {
		return nil, fmt.Errorf("mmap: negative size %d", size)
	}
	if size == 0 {
		return &Region{}, nil
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("mmap: size %d exceeds address space", size)
	}
	data, err := mmapFile(f.Fd(), int(size))
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", f.Name(), err)
	}
	return &Region{data: data}, nil
}

// Bytes returns the mapped bytes. The slice is invalid after Close.
func (r *Region) Bytes() []byte {
	return r.data
}

// Len returns the mapped length.
func (r *Region) Len() int {
	return len(r.data)
}

// Close unmaps the region. It is safe to call more than once.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	err := munmapFile(r.data)
	r.data = nil
	return err
}
