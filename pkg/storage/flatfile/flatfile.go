// Package flatfile implements the fixed-width binary record stores backing a
// vektor database: the vector store, the neighbor graph, the id index and the
// metadata payload store.
//
// All integers are little-endian. Rows are addressed by position, so every
// store is a plain file that can be read with ReadAt/WriteAt and no
// in-memory state survives between operations.
package flatfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/sanonone/vektor/pkg/config"
	"github.com/sanonone/vektor/pkg/errs"
)

// Storage-level causes. They are always returned wrapped in an *errs.Error
// carrying the matching kind.
var (
	ErrMisaligned     = errors.New("file size is not a multiple of the row size")
	ErrNodeNotFound   = errors.New("node not found in graph")
	ErrPayloadCorrupt = errors.New("invalid metadata payload")
	ErrIDTooLong      = fmt.Errorf("external id must be at most %d bytes", config.ExternalIDSize)
	ErrIDEmpty        = errors.New("external id cannot be empty")
	ErrIDInvalid      = errors.New("external id cannot contain NUL bytes")
	ErrDimension      = errors.New("vector dimension mismatch")
	ErrKeyExists      = errors.New("key already present in index")
)

// NoID is the on-disk sentinel for "no node": an empty graph entry point, an
// unused neighbor slot, a tombstoned index value or a missing tree child.
const NoID int32 = -1

// ValidateExternalID checks an id against the on-disk key format.
func ValidateExternalID(id string) error {
	switch {
	case id == "":
		return errs.Wrap("validate", errs.ErrValidation, ErrIDEmpty)
	case len(id) > config.ExternalIDSize:
		return errs.Wrap("validate", errs.ErrValidation, fmt.Errorf("%w (got %d)", ErrIDTooLong, len(id)))
	case strings.IndexByte(id, 0) >= 0:
		return errs.Wrap("validate", errs.ErrValidation, ErrIDInvalid)
	}
	return nil
}

func openFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	return f, nil
}

func fileSize(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// readFull reads exactly len(buf) bytes at off.
func readFull(f *os.File, buf []byte, off int64) error {
	n, err := f.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// writeFull writes buf at off. os.File.WriteAt already reports short writes.
func writeFull(f *os.File, buf []byte, off int64) error {
	_, err := f.WriteAt(buf, off)
	return err
}

func putKey(dst []byte, key string) {
	n := copy(dst[:config.ExternalIDSize], key)
	clear(dst[n:config.ExternalIDSize])
}

func getKey(src []byte) string {
	return strings.TrimRight(string(src[:config.ExternalIDSize]), "\x00")
}

func putInt32(dst []byte, v int32) {
	binary.LittleEndian.PutUint32(dst, uint32(v))
}

func getInt32(src []byte) int32 {
	return int32(binary.LittleEndian.Uint32(src))
}

func putFloats(dst []byte, vec []float32) {
	for i, v := range vec {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

func getFloats(src []byte, dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return vec
}

func putUint64(dst []byte, v uint64) {
	binary.LittleEndian.PutUint64(dst, v)
}

func getUint64(src []byte) uint64 {
	return binary.LittleEndian.Uint64(src)
}
