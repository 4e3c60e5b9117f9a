// Package lock provides the advisory locking capability shared by every
// vektor operation.
//
// Operations coordinate purely through a single lock file: any number of
// shared holders may run together, an exclusive holder excludes everyone.
// Acquisition blocks until the lock is available; there is no timeout.
package lock

import (
	"fmt"
	"os"

	"github.com/sanonone/vektor/pkg/errs"
)

// Mode selects shared or exclusive acquisition.
type Mode int

const (
	// Shared allows concurrent holders (readers).
	Shared Mode = iota
	// Exclusive excludes every other holder (writers, compaction).
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// Handle is a held lock.
type Handle interface {
	Release() error
}

// Locker is a locking policy injected into the orchestration layer.
type Locker interface {
	Acquire(mode Mode) (Handle, error)
}

// FileLocker locks a dedicated lock file with the OS advisory lock.
//
// Every Acquire opens its own descriptor, so two holders in the same process
// coordinate exactly like two processes would.
type FileLocker struct {
	path string
}

// NewFileLocker returns a locker backed by the file at path.
// The file is created on first acquisition.
func NewFileLocker(path string) *FileLocker {
	return &FileLocker{path: path}
}

// Path returns the lock file path.
func (l *FileLocker) Path() string {
	return l.path
}

// Acquire blocks until the lock is held in the requested mode.
func (l *FileLocker) Acquire(mode Mode) (Handle, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errs.Wrap("lock.acquire", errs.ErrLock, fmt.Errorf("could not open lock file %s: %w", l.path, err))
	}
	if err := lockFile(f, mode); err != nil {
		f.Close()
		return nil, errs.Wrap("lock.acquire", errs.ErrLock, fmt.Errorf("could not acquire %s lock on %s: %w", mode, l.path, err))
	}
	return &fileHandle{f: f}, nil
}

type fileHandle struct {
	f *os.File
}

func (h *fileHandle) Release() error {
	if h.f == nil {
		return nil
	}
	f := h.f
	h.f = nil
	if err := unlockFile(f); err != nil {
		f.Close()
		return errs.Wrap("lock.release", errs.ErrLock, err)
	}
	return f.Close()
}

// Noop is the policy used by callers that already hold the outer lock,
// such as the compactor rebuilding the stores.
type Noop struct{}

// Acquire returns immediately.
func (Noop) Acquire(Mode) (Handle, error) {
	return noopHandle{}, nil
}

type noopHandle struct{}

func (noopHandle) Release() error { return nil }
