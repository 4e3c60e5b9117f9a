package flatfile

import (
	"fmt"
	"os"

	"github.com/sanonone/vektor/pkg/config"
	"github.com/sanonone/vektor/pkg/errs"
)

// Header is the graph file preamble.
type Header struct {
	EntryPoint int32
	TotalNodes int32
}

// Empty reports whether the graph has no entry point yet.
func (h Header) Empty() bool {
	return h.EntryPoint == NoID
}

// Node is the adjacency of one graph node. Connections[l] holds the valid
// neighbor ids on level l for l in [0, MaxLevel].
type Node struct {
	MaxLevel    int
	Connections [][]int32
}

// GraphFile stores the header followed by one fixed-width row per node:
// maxLevel(1) + M0 level-0 slots + M slots per upper level, all int32 with
// -1 marking an unused slot.
type GraphFile struct {
	f       *os.File
	m       int
	m0      int
	levels  int
	rowSize int64
}

// OpenGraphFile opens (creating if needed) the graph store. A new file gets
// the empty header {-1, 0}.
func OpenGraphFile(path string, m, m0, levels int) (*GraphFile, error) {
	if m <= 0 || m0 <= 0 || levels < 1 || levels > 255 {
		return nil, fmt.Errorf("invalid graph parameters m=%d m0=%d levels=%d", m, m0, levels)
	}
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	g := &GraphFile{
		f:       f,
		m:       m,
		m0:      m0,
		levels:  levels,
		rowSize: int64(1 + 4*m0 + 4*m*(levels-1)),
	}

	size, err := fileSize(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("graph store stat: %w", err)
	}
	if size == 0 {
		if err := g.WriteHeader(NoID, 0); err != nil {
			f.Close()
			return nil, err
		}
	}
	return g, nil
}

// RowSize returns the byte width of one node row.
func (g *GraphFile) RowSize() int64 {
	return g.rowSize
}

// Levels returns the number of levels a node row can hold.
func (g *GraphFile) Levels() int {
	return g.levels
}

// Capacity returns the neighbor slot count of a level.
func (g *GraphFile) Capacity(level int) int {
	if level == 0 {
		return g.m0
	}
	return g.m
}

func (g *GraphFile) nodeOffset(id int32) int64 {
	return config.GraphHeaderSize + int64(id)*g.rowSize
}

func (g *GraphFile) levelOffset(level int) int64 {
	if level == 0 {
		return 1
	}
	return int64(1 + 4*g.m0 + 4*g.m*(level-1))
}

// ReadHeader returns the current header.
func (g *GraphFile) ReadHeader() (Header, error) {
	var buf [config.GraphHeaderSize]byte
	if err := readFull(g.f, buf[:], 0); err != nil {
		return Header{}, errs.Wrap("graph.header", errs.ErrCorruption,
			fmt.Errorf("could not read graph header: %w", err))
	}
	return Header{EntryPoint: getInt32(buf[0:]), TotalNodes: getInt32(buf[4:])}, nil
}

// WriteHeader overwrites the header.
func (g *GraphFile) WriteHeader(entryPoint, totalNodes int32) error {
	var buf [config.GraphHeaderSize]byte
	putInt32(buf[0:], entryPoint)
	putInt32(buf[4:], totalNodes)
	if err := writeFull(g.f, buf[:], 0); err != nil {
		return fmt.Errorf("graph header write: %w", err)
	}
	return nil
}

func (g *GraphFile) emptyRow(maxLevel int) []byte {
	row := make([]byte, g.rowSize)
	row[0] = byte(maxLevel)
	for off := 1; off < len(row); off += 4 {
		putInt32(row[off:], NoID)
	}
	return row
}

// CreateNode writes an empty row for id with the given top level and bumps
// TotalNodes to id+1. Rows between the current end and id are filled with
// empty level-0 rows so the file stays dense.
func (g *GraphFile) CreateNode(id int32, maxLevel int) error {
	if id < 0 {
		return errs.Validation("graph.create", "negative node id %d", id)
	}
	if maxLevel < 0 || maxLevel >= g.levels {
		return errs.Validation("graph.create", "level %d outside [0, %d]", maxLevel, g.levels-1)
	}

	size, err := fileSize(g.f)
	if err != nil {
		return fmt.Errorf("graph store stat: %w", err)
	}
	if (size-config.GraphHeaderSize)%g.rowSize != 0 {
		return errs.Wrap("graph.create", errs.ErrCorruption,
			fmt.Errorf("%w: graph store is %d bytes, row size %d", ErrMisaligned, size, g.rowSize))
	}
	rows := int32((size - config.GraphHeaderSize) / g.rowSize)
	if id < rows {
		return errs.Corruption("graph.create", "node %d already exists", id)
	}

	for gap := rows; gap < id; gap++ {
		if err := writeFull(g.f, g.emptyRow(0), g.nodeOffset(gap)); err != nil {
			return fmt.Errorf("graph gap fill: %w", err)
		}
	}
	if err := writeFull(g.f, g.emptyRow(maxLevel), g.nodeOffset(id)); err != nil {
		return fmt.Errorf("graph node write: %w", err)
	}

	header, err := g.ReadHeader()
	if err != nil {
		return err
	}
	return g.WriteHeader(header.EntryPoint, id+1)
}

// UpdateLinks replaces the neighbor list of id at level. Lists longer than
// the level capacity are truncated; shorter ones are padded with -1.
func (g *GraphFile) UpdateLinks(id int32, level int, links []int32) error {
	if level < 0 || level >= g.levels {
		return errs.Validation("graph.update", "level %d outside [0, %d]", level, g.levels-1)
	}
	if err := g.checkNode(id); err != nil {
		return err
	}

	capacity := g.Capacity(level)
	buf := make([]byte, 4*capacity)
	for i := 0; i < capacity; i++ {
		v := NoID
		if i < len(links) {
			v = links[i]
		}
		putInt32(buf[4*i:], v)
	}
	if err := writeFull(g.f, buf, g.nodeOffset(id)+g.levelOffset(level)); err != nil {
		return fmt.Errorf("graph links write: %w", err)
	}
	return nil
}

func (g *GraphFile) checkNode(id int32) error {
	size, err := fileSize(g.f)
	if err != nil {
		return fmt.Errorf("graph store stat: %w", err)
	}
	if id < 0 || g.nodeOffset(id)+g.rowSize > size {
		return errs.Wrap("graph.node", errs.ErrCorruption, fmt.Errorf("%w: id %d", ErrNodeNotFound, id))
	}
	return nil
}

// ReadNode returns the adjacency of id. A row that lies beyond the end of
// the file is reported as corruption.
func (g *GraphFile) ReadNode(id int32) (Node, error) {
	if err := g.checkNode(id); err != nil {
		return Node{}, err
	}
	row := make([]byte, g.rowSize)
	if err := readFull(g.f, row, g.nodeOffset(id)); err != nil {
		return Node{}, fmt.Errorf("graph node read %d: %w", id, err)
	}

	maxLevel := int(row[0])
	if maxLevel >= g.levels {
		return Node{}, errs.Corruption("graph.node", "node %d has level %d, file holds %d levels", id, maxLevel, g.levels)
	}

	node := Node{MaxLevel: maxLevel, Connections: make([][]int32, maxLevel+1)}
	for level := 0; level <= maxLevel; level++ {
		off := g.levelOffset(level)
		capacity := g.Capacity(level)
		links := make([]int32, 0, capacity)
		for i := 0; i < capacity; i++ {
			if n := getInt32(row[off+int64(4*i):]); n != NoID {
				links = append(links, n)
			}
		}
		node.Connections[level] = links
	}
	return node, nil
}

// Size returns the file size in bytes.
func (g *GraphFile) Size() (int64, error) {
	return fileSize(g.f)
}

// Sync flushes the file to stable storage.
func (g *GraphFile) Sync() error {
	return g.f.Sync()
}

// Close closes the underlying file.
func (g *GraphFile) Close() error {
	return g.f.Close()
}
