package flatfile

import (
	"fmt"
	"os"

	"github.com/sanonone/vektor/pkg/config"
	"github.com/sanonone/vektor/pkg/errs"
)

// Field offsets inside an index row.
const (
	idxValue         = config.ExternalIDSize
	idxPayloadOffset = idxValue + 4
	idxPayloadLength = idxPayloadOffset + 8
	idxLeft          = idxPayloadLength + 4
	idxRight         = idxLeft + 4
)

// Entry is one decoded index row.
type Entry struct {
	Key           string
	Value         int32
	PayloadOffset int64
	PayloadLength int32
	Left          int32
	Right         int32
}

// Tombstoned reports whether the key maps to no live record.
func (e Entry) Tombstoned() bool {
	return e.Value == NoID
}

// HasPayload reports whether the entry points at a metadata payload.
func (e Entry) HasPayload() bool {
	return e.PayloadOffset >= 0 && e.PayloadLength > 0
}

// IDIndex maps external ids to internal ids with an append-only, unbalanced
// binary search tree stored as fixed-width rows. Row 0 is the root. Keys
// compare as raw bytes. Deleting a key stores -1 as its value; rows are
// never unlinked.
type IDIndex struct {
	f *os.File
}

// OpenIDIndex opens (creating if needed) the index at path.
func OpenIDIndex(path string) (*IDIndex, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	return &IDIndex{f: f}, nil
}

// Len returns the number of rows, tombstones included.
func (x *IDIndex) Len() (int32, error) {
	size, err := fileSize(x.f)
	if err != nil {
		return 0, fmt.Errorf("index stat: %w", err)
	}
	if size%config.IndexRowSize != 0 {
		return 0, errs.Wrap("index", errs.ErrCorruption,
			fmt.Errorf("%w: index is %d bytes, row size %d", ErrMisaligned, size, config.IndexRowSize))
	}
	return int32(size / config.IndexRowSize), nil
}

// EntryAt decodes the row at position pos.
func (x *IDIndex) EntryAt(pos int32) (Entry, error) {
	n, err := x.Len()
	if err != nil {
		return Entry{}, err
	}
	return x.entryAt(pos, n)
}

func (x *IDIndex) entryAt(pos, n int32) (Entry, error) {
	if pos < 0 || pos >= n {
		return Entry{}, errs.Corruption("index.read", "row %d outside index of %d rows", pos, n)
	}
	var row [config.IndexRowSize]byte
	if err := readFull(x.f, row[:], int64(pos)*config.IndexRowSize); err != nil {
		return Entry{}, fmt.Errorf("index read %d: %w", pos, err)
	}
	return Entry{
		Key:           getKey(row[:]),
		Value:         getInt32(row[idxValue:]),
		PayloadOffset: int64(getUint64(row[idxPayloadOffset:])),
		PayloadLength: getInt32(row[idxPayloadLength:]),
		Left:          getInt32(row[idxLeft:]),
		Right:         getInt32(row[idxRight:]),
	}, nil
}

// locate walks from the root towards key. It returns the position holding
// key, or -1 together with the last visited row and the side a new key would
// hang from.
func (x *IDIndex) locate(key string) (pos int32, parent int32, goLeft bool, err error) {
	n, err := x.Len()
	if err != nil {
		return NoID, NoID, false, err
	}
	parent = NoID
	cur := int32(0)
	if n == 0 {
		cur = NoID
	}
	for steps := int32(0); cur != NoID; steps++ {
		if steps > n {
			return NoID, NoID, false, errs.Corruption("index.find", "cycle detected in index tree")
		}
		e, err := x.entryAt(cur, n)
		if err != nil {
			return NoID, NoID, false, err
		}
		switch {
		case key == e.Key:
			return cur, parent, false, nil
		case key < e.Key:
			parent, goLeft, cur = cur, true, e.Left
		default:
			parent, goLeft, cur = cur, false, e.Right
		}
	}
	return NoID, parent, goLeft, nil
}

// Find returns the value stored for key. A missing key reports false; a
// tombstoned key reports true with value -1.
func (x *IDIndex) Find(key string) (int32, bool, error) {
	e, ok, err := x.FindEntry(key)
	return e.Value, ok, err
}

// FindEntry returns the full row stored for key.
func (x *IDIndex) FindEntry(key string) (Entry, bool, error) {
	pos, _, _, err := x.locate(key)
	if err != nil || pos == NoID {
		return Entry{Value: NoID}, false, err
	}
	e, err := x.EntryAt(pos)
	if err != nil {
		return Entry{Value: NoID}, false, err
	}
	return e, true, nil
}

// Insert appends a row for a key that is not yet in the tree and links it
// under its parent. Inserting a key that already exists returns ErrKeyExists
// and leaves the file unchanged.
func (x *IDIndex) Insert(key string, value int32, loc Locator) error {
	if err := ValidateExternalID(key); err != nil {
		return err
	}
	pos, parent, goLeft, err := x.locate(key)
	if err != nil {
		return err
	}
	if pos != NoID {
		return errs.Wrap("index.insert", errs.ErrDuplicateKey, fmt.Errorf("%w: %q", ErrKeyExists, key))
	}

	n, err := x.Len()
	if err != nil {
		return err
	}
	var row [config.IndexRowSize]byte
	putKey(row[:], key)
	putInt32(row[idxValue:], value)
	putUint64(row[idxPayloadOffset:], uint64(loc.Offset))
	putInt32(row[idxPayloadLength:], loc.Length)
	putInt32(row[idxLeft:], NoID)
	putInt32(row[idxRight:], NoID)
	if err := writeFull(x.f, row[:], int64(n)*config.IndexRowSize); err != nil {
		return fmt.Errorf("index append: %w", err)
	}

	if parent == NoID {
		// Row 0 is the root.
		return nil
	}
	link := int64(idxRight)
	if goLeft {
		link = idxLeft
	}
	var buf [4]byte
	putInt32(buf[:], n)
	if err := writeFull(x.f, buf[:], int64(parent)*config.IndexRowSize+link); err != nil {
		return fmt.Errorf("index link: %w", err)
	}
	return nil
}

// Update overwrites the value of an existing key, leaving its payload
// locator untouched. It reports false if the key is absent.
func (x *IDIndex) Update(key string, value int32) (bool, error) {
	pos, _, _, err := x.locate(key)
	if err != nil || pos == NoID {
		return false, err
	}
	var buf [4]byte
	putInt32(buf[:], value)
	if err := writeFull(x.f, buf[:], int64(pos)*config.IndexRowSize+idxValue); err != nil {
		return false, fmt.Errorf("index update: %w", err)
	}
	return true, nil
}

// UpdateWithPayload overwrites both the value and the payload locator of an
// existing key. It reports false if the key is absent.
func (x *IDIndex) UpdateWithPayload(key string, value int32, loc Locator) (bool, error) {
	pos, _, _, err := x.locate(key)
	if err != nil || pos == NoID {
		return false, err
	}
	var buf [16]byte
	putInt32(buf[0:], value)
	putUint64(buf[4:], uint64(loc.Offset))
	putInt32(buf[12:], loc.Length)
	if err := writeFull(x.f, buf[:], int64(pos)*config.IndexRowSize+idxValue); err != nil {
		return false, fmt.Errorf("index update: %w", err)
	}
	return true, nil
}

// Walk visits every row in key order. It stops at the first error fn returns.
func (x *IDIndex) Walk(fn func(Entry) error) error {
	n, err := x.Len()
	if err != nil || n == 0 {
		return err
	}

	var stack []int32
	cur := int32(0)
	visited := 0
	for cur != NoID || len(stack) > 0 {
		for cur != NoID {
			if len(stack) > int(n) {
				return errs.Corruption("index.walk", "cycle detected in index tree")
			}
			e, err := x.entryAt(cur, n)
			if err != nil {
				return err
			}
			stack = append(stack, cur)
			cur = e.Left
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e, err := x.entryAt(top, n)
		if err != nil {
			return err
		}
		if visited++; visited > int(n) {
			return errs.Corruption("index.walk", "cycle detected in index tree")
		}
		if err := fn(e); err != nil {
			return err
		}
		cur = e.Right
	}
	return nil
}

// Sync flushes the file to stable storage.
func (x *IDIndex) Sync() error {
	return x.f.Sync()
}

// Close closes the underlying file.
func (x *IDIndex) Close() error {
	return x.f.Close()
}
