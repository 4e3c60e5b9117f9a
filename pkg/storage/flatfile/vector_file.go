package flatfile

import (
	"fmt"
	"math"
	"os"

	"github.com/sanonone/vektor/pkg/config"
	"github.com/sanonone/vektor/pkg/errs"
	"github.com/sanonone/vektor/pkg/storage/mmap"
)

// Row flags.
const (
	flagActive  byte = 0
	flagDeleted byte = 1
)

// Record is one row of the vector store.
type Record struct {
	InternalID int32
	ExternalID string
	Vector     []float32
}

// VectorFile stores fixed-width rows of flag(1) + externalId(36) + vector(D*4).
// A row's position is its InternalID. Rows are never removed; delete only
// flips the flag.
type VectorFile struct {
	f       *os.File
	dim     int
	rowSize int64
}

// OpenVectorFile opens (creating if needed) the vector store at path.
func OpenVectorFile(path string, dim int) (*VectorFile, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive (got %d)", dim)
	}
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	return &VectorFile{
		f:       f,
		dim:     dim,
		rowSize: int64(1 + config.ExternalIDSize + 4*dim),
	}, nil
}

// Dimension returns the configured vector length.
func (v *VectorFile) Dimension() int {
	return v.dim
}

// RowSize returns the byte width of one record.
func (v *VectorFile) RowSize() int64 {
	return v.rowSize
}

// Size returns the file size after checking row alignment.
func (v *VectorFile) Size() (int64, error) {
	size, err := fileSize(v.f)
	if err != nil {
		return 0, fmt.Errorf("vector store stat: %w", err)
	}
	if size%v.rowSize != 0 {
		return 0, errs.Wrap("vector", errs.ErrCorruption,
			fmt.Errorf("%w: vector store is %d bytes, row size %d", ErrMisaligned, size, v.rowSize))
	}
	return size, nil
}

// Len returns the number of rows, deleted ones included.
func (v *VectorFile) Len() (int32, error) {
	size, err := v.Size()
	if err != nil {
		return 0, err
	}
	return int32(size / v.rowSize), nil
}

// Append writes a new active record and returns its InternalID.
func (v *VectorFile) Append(externalID string, vec []float32) (int32, error) {
	if err := ValidateExternalID(externalID); err != nil {
		return 0, err
	}
	if len(vec) != v.dim {
		return 0, errs.Wrap("vector.append", errs.ErrValidation,
			fmt.Errorf("%w: expected %d, got %d", ErrDimension, v.dim, len(vec)))
	}

	size, err := v.Size()
	if err != nil {
		return 0, err
	}
	if size/v.rowSize >= math.MaxInt32 {
		return 0, fmt.Errorf("vector store is full (%d rows)", size/v.rowSize)
	}

	row := make([]byte, v.rowSize)
	row[0] = flagActive
	putKey(row[1:], externalID)
	putFloats(row[1+config.ExternalIDSize:], vec)

	if err := writeFull(v.f, row, size); err != nil {
		return 0, fmt.Errorf("vector store append: %w", err)
	}
	return int32(size / v.rowSize), nil
}

// inRange reports whether id addresses an existing row.
func (v *VectorFile) inRange(id int32) (bool, error) {
	n, err := v.Len()
	if err != nil {
		return false, err
	}
	return id >= 0 && id < n, nil
}

// Read returns the record at id. It reports false if id is out of range or
// the record is deleted.
func (v *VectorFile) Read(id int32) (Record, bool, error) {
	ok, err := v.inRange(id)
	if err != nil || !ok {
		return Record{}, false, err
	}
	row := make([]byte, v.rowSize)
	if err := readFull(v.f, row, int64(id)*v.rowSize); err != nil {
		return Record{}, false, fmt.Errorf("vector store read %d: %w", id, err)
	}
	if row[0] != flagActive {
		return Record{}, false, nil
	}
	return Record{
		InternalID: id,
		ExternalID: getKey(row[1:]),
		Vector:     getFloats(row[1+config.ExternalIDSize:], v.dim),
	}, true, nil
}

// ReadVector returns only the vector at id, with the same visibility rule as Read.
// The flag byte is read but the identifier bytes are skipped.
func (v *VectorFile) ReadVector(id int32) ([]float32, bool, error) {
	ok, err := v.inRange(id)
	if err != nil || !ok {
		return nil, false, err
	}
	var flag [1]byte
	if err := readFull(v.f, flag[:], int64(id)*v.rowSize); err != nil {
		return nil, false, fmt.Errorf("vector store read %d: %w", id, err)
	}
	if flag[0] != flagActive {
		return nil, false, nil
	}
	return v.readVectorBytes(id)
}

// ReadRawVector returns the vector at id regardless of its flag.
// Graph traversal uses it: tombstoned vectors stay valid for similarity math.
func (v *VectorFile) ReadRawVector(id int32) ([]float32, bool, error) {
	ok, err := v.inRange(id)
	if err != nil || !ok {
		return nil, false, err
	}
	return v.readVectorBytes(id)
}

func (v *VectorFile) readVectorBytes(id int32) ([]float32, bool, error) {
	buf := make([]byte, 4*v.dim)
	off := int64(id)*v.rowSize + 1 + config.ExternalIDSize
	if err := readFull(v.f, buf, off); err != nil {
		return nil, false, fmt.Errorf("vector store read %d: %w", id, err)
	}
	return getFloats(buf, v.dim), true, nil
}

// Delete marks the record at id as deleted. Out-of-range ids and already
// deleted records are left untouched.
func (v *VectorFile) Delete(id int32) error {
	ok, err := v.inRange(id)
	if err != nil || !ok {
		return err
	}
	if err := writeFull(v.f, []byte{flagDeleted}, int64(id)*v.rowSize); err != nil {
		return fmt.Errorf("vector store delete %d: %w", id, err)
	}
	return nil
}

// Scan returns a forward-only iterator over the active records present when
// Scan is called. Each call starts a new pass from the first row.
func (v *VectorFile) Scan() (*Scanner, error) {
	size, err := v.Size()
	if err != nil {
		return nil, err
	}
	region, err := mmap.Map(v.f, size)
	if err != nil {
		return nil, err
	}
	return &Scanner{region: region, dim: v.dim, rowSize: v.rowSize, next: 0}, nil
}

// Sync flushes the file to stable storage.
func (v *VectorFile) Sync() error {
	return v.f.Sync()
}

// Close closes the underlying file.
func (v *VectorFile) Close() error {
	return v.f.Close()
}

// Scanner iterates over active records in InternalID order.
//
//	sc, err := vectors.Scan()
//	...
//	defer sc.Close()
//	for sc.Next() {
//	    rec := sc.Record()
//	}
type Scanner struct {
	region  *mmap.Region
	dim     int
	rowSize int64
	next    int64
	rec     Record
}

// Next advances to the next active record. It returns false at the end of
// the pass or after Close.
func (s *Scanner) Next() bool {
	data := s.region.Bytes()
	for (s.next+1)*s.rowSize <= int64(len(data)) {
		row := data[s.next*s.rowSize : (s.next+1)*s.rowSize]
		id := int32(s.next)
		s.next++
		if row[0] != flagActive {
			continue
		}
		s.rec = Record{
			InternalID: id,
			ExternalID: getKey(row[1:]),
			Vector:     getFloats(row[1+config.ExternalIDSize:], s.dim),
		}
		return true
	}
	return false
}

// Record returns the record Next stopped at.
func (s *Scanner) Record() Record {
	return s.rec
}

// Close releases the mapping. Next returns false afterwards.
func (s *Scanner) Close() error {
	return s.region.Close()
}
