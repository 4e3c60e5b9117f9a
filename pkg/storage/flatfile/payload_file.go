package flatfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sanonone/vektor/pkg/errs"
)

// Locator addresses one payload inside the payload store.
type Locator struct {
	Offset int64
	Length int32
}

// NoPayload is the locator of a record without metadata.
var NoPayload = Locator{Offset: -1, Length: 0}

// Valid reports whether the locator can address any bytes at all.
func (l Locator) Valid() bool {
	return l.Offset >= 0 && l.Length > 0
}

// PayloadFile is an append-only concatenation of JSON documents. It has no
// framing of its own; documents are only reachable through the locators kept
// in the id index.
type PayloadFile struct {
	f *os.File
}

// OpenPayloadFile opens (creating if needed) the payload store at path.
func OpenPayloadFile(path string) (*PayloadFile, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	return &PayloadFile{f: f}, nil
}

// Append encodes metadata as JSON at the end of the file and returns where
// it landed. Slashes and HTML characters are written unescaped.
func (p *PayloadFile) Append(metadata any) (Locator, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(metadata); err != nil {
		return NoPayload, errs.Wrap("payload.append", errs.ErrValidation,
			fmt.Errorf("metadata is not JSON-encodable: %w", err))
	}
	doc := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	offset, err := fileSize(p.f)
	if err != nil {
		return NoPayload, fmt.Errorf("payload stat: %w", err)
	}
	if err := writeFull(p.f, doc, offset); err != nil {
		return NoPayload, fmt.Errorf("payload append: %w", err)
	}
	return Locator{Offset: offset, Length: int32(len(doc))}, nil
}

// Read decodes the document at loc. A locator that does not fit inside the
// file reports false. Bytes that are not valid JSON are corruption.
func (p *PayloadFile) Read(loc Locator) (any, bool, error) {
	raw, ok, err := p.ReadRaw(loc)
	if err != nil || !ok {
		return nil, ok, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, errs.Wrap("payload.read", errs.ErrCorruption,
			fmt.Errorf("%w at offset %d: %v", ErrPayloadCorrupt, loc.Offset, err))
	}
	return v, true, nil
}

// ReadRaw returns the undecoded document bytes at loc.
func (p *PayloadFile) ReadRaw(loc Locator) ([]byte, bool, error) {
	if !loc.Valid() {
		return nil, false, nil
	}
	size, err := fileSize(p.f)
	if err != nil {
		return nil, false, fmt.Errorf("payload stat: %w", err)
	}
	if loc.Offset+int64(loc.Length) > size {
		return nil, false, nil
	}
	raw := make([]byte, loc.Length)
	if err := readFull(p.f, raw, loc.Offset); err != nil {
		return nil, false, fmt.Errorf("payload.read at offset %d: %w", loc.Offset, err)
	}
	return raw, true, nil
}

// Size returns the file size in bytes.
func (p *PayloadFile) Size() (int64, error) {
	return fileSize(p.f)
}

// Sync flushes the file to stable storage.
func (p *PayloadFile) Sync() error {
	return p.f.Sync()
}

// Close closes the underlying file.
func (p *PayloadFile) Close() error {
	return p.f.Close()
}
