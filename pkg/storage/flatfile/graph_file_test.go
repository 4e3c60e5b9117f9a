package flatfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/vektor/pkg/errs"
)

func openTestGraph(t *testing.T, m, m0, levels int) *GraphFile {
	t.Helper()
	g, err := OpenGraphFile(filepath.Join(t.TempDir(), "graph.bin"), m, m0, levels)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func TestGraphNewFileHasEmptyHeader(t *testing.T) {
	g := openTestGraph(t, 16, 32, 4)

	h, err := g.ReadHeader()
	require.NoError(t, err)
	assert.True(t, h.Empty())
	assert.Equal(t, Header{EntryPoint: -1, TotalNodes: 0}, h)
	assert.Equal(t, int64(321), g.RowSize())

	size, err := g.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(8), size)
}

func TestGraphHeaderSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.bin")
	g, err := OpenGraphFile(path, 2, 4, 3)
	require.NoError(t, err)
	require.NoError(t, g.CreateNode(0, 2))
	require.NoError(t, g.WriteHeader(0, 1))
	require.NoError(t, g.Close())

	g, err = OpenGraphFile(path, 2, 4, 3)
	require.NoError(t, err)
	defer g.Close()
	h, err := g.ReadHeader()
	require.NoError(t, err)
	assert.Equal(t, Header{EntryPoint: 0, TotalNodes: 1}, h)
}

func TestGraphCreateAndLink(t *testing.T) {
	g := openTestGraph(t, 2, 4, 3)

	require.NoError(t, g.CreateNode(0, 2))
	node, err := g.ReadNode(0)
	require.NoError(t, err)
	assert.Equal(t, 2, node.MaxLevel)
	require.Len(t, node.Connections, 3)
	for _, links := range node.Connections {
		assert.Empty(t, links)
	}

	require.NoError(t, g.CreateNode(1, 0))
	require.NoError(t, g.UpdateLinks(0, 0, []int32{1}))
	require.NoError(t, g.UpdateLinks(0, 2, []int32{5, 6, 7}))

	node, err = g.ReadNode(0)
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, node.Connections[0])
	assert.Empty(t, node.Connections[1])
	// Truncated to M.
	assert.Equal(t, []int32{5, 6}, node.Connections[2])

	h, err := g.ReadHeader()
	require.NoError(t, err)
	assert.Equal(t, int32(2), h.TotalNodes)
}

func TestGraphUpdateLinksShrinks(t *testing.T) {
	g := openTestGraph(t, 2, 4, 2)
	require.NoError(t, g.CreateNode(0, 0))
	require.NoError(t, g.UpdateLinks(0, 0, []int32{1, 2, 3, 4}))
	require.NoError(t, g.UpdateLinks(0, 0, []int32{9}))

	node, err := g.ReadNode(0)
	require.NoError(t, err)
	assert.Equal(t, []int32{9}, node.Connections[0])
}

func TestGraphCreateFillsGaps(t *testing.T) {
	g := openTestGraph(t, 2, 4, 2)
	require.NoError(t, g.CreateNode(3, 1))

	for id := int32(0); id < 3; id++ {
		node, err := g.ReadNode(id)
		require.NoError(t, err)
		assert.Equal(t, 0, node.MaxLevel)
		assert.Empty(t, node.Connections[0])
	}
	node, err := g.ReadNode(3)
	require.NoError(t, err)
	assert.Equal(t, 1, node.MaxLevel)

	h, err := g.ReadHeader()
	require.NoError(t, err)
	assert.Equal(t, int32(4), h.TotalNodes)
}

func TestGraphCreateExistingNodeIsCorruption(t *testing.T) {
	g := openTestGraph(t, 2, 4, 2)
	require.NoError(t, g.CreateNode(0, 0))
	assert.ErrorIs(t, g.CreateNode(0, 0), errs.ErrCorruption)
}

func TestGraphLevelValidation(t *testing.T) {
	g := openTestGraph(t, 2, 4, 2)
	assert.ErrorIs(t, g.CreateNode(0, 2), errs.ErrValidation)
	assert.ErrorIs(t, g.CreateNode(0, -1), errs.ErrValidation)
	require.NoError(t, g.CreateNode(0, 1))
	assert.ErrorIs(t, g.UpdateLinks(0, 2, nil), errs.ErrValidation)
}

func TestGraphReadMissingNode(t *testing.T) {
	g := openTestGraph(t, 2, 4, 2)
	require.NoError(t, g.CreateNode(0, 0))

	_, err := g.ReadNode(1)
	assert.ErrorIs(t, err, errs.ErrCorruption)
	assert.ErrorIs(t, err, ErrNodeNotFound)

	assert.ErrorIs(t, g.UpdateLinks(5, 0, nil), ErrNodeNotFound)
}

func TestGraphCapacity(t *testing.T) {
	g := openTestGraph(t, 16, 32, 4)
	assert.Equal(t, 32, g.Capacity(0))
	assert.Equal(t, 16, g.Capacity(1))
	assert.Equal(t, 16, g.Capacity(3))
}
