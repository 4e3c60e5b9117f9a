package flatfile

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/vektor/pkg/errs"
)

func openTestIndex(t *testing.T) *IDIndex {
	t.Helper()
	x, err := OpenIDIndex(filepath.Join(t.TempDir(), "meta.bin"))
	require.NoError(t, err)
	t.Cleanup(func() { x.Close() })
	return x
}

func TestIndexEmptyFind(t *testing.T) {
	x := openTestIndex(t)
	v, ok, err := x.Find("anything")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, NoID, v)
}

func TestIndexInsertAndFind(t *testing.T) {
	x := openTestIndex(t)
	keys := []string{"m", "c", "x", "a", "e", "z", "n"}
	for i, k := range keys {
		require.NoError(t, x.Insert(k, int32(i), NoPayload))
	}

	for i, k := range keys {
		v, ok, err := x.Find(k)
		require.NoError(t, err)
		require.True(t, ok, k)
		assert.Equal(t, int32(i), v, k)
	}

	_, ok, err := x.Find("b")
	require.NoError(t, err)
	assert.False(t, ok)

	root, err := x.EntryAt(0)
	require.NoError(t, err)
	assert.Equal(t, "m", root.Key)
	assert.Equal(t, int32(1), root.Left)
	assert.Equal(t, int32(2), root.Right)
}

func TestIndexSortedInsertBuildsRightChain(t *testing.T) {
	x := openTestIndex(t)
	for i := 0; i < 10; i++ {
		require.NoError(t, x.Insert(fmt.Sprintf("doc-%02d", i), int32(i), NoPayload))
	}
	for i := int32(0); i < 10; i++ {
		e, err := x.EntryAt(i)
		require.NoError(t, err)
		assert.Equal(t, NoID, e.Left)
		if i < 9 {
			assert.Equal(t, i+1, e.Right)
		} else {
			assert.Equal(t, NoID, e.Right)
		}
	}
	v, ok, err := x.Find("doc-09")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(9), v)
}

func TestIndexDuplicateInsertRejected(t *testing.T) {
	x := openTestIndex(t)
	require.NoError(t, x.Insert("a", 0, NoPayload))
	err := x.Insert("a", 1, NoPayload)
	assert.ErrorIs(t, err, errs.ErrDuplicateKey)
	assert.ErrorIs(t, err, ErrKeyExists)

	n, err := x.Len()
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)
}

func TestIndexUpdateAndTombstone(t *testing.T) {
	x := openTestIndex(t)
	require.NoError(t, x.Insert("a", 0, Locator{Offset: 10, Length: 5}))
	require.NoError(t, x.Insert("b", 1, NoPayload))

	ok, err := x.Update("a", NoID)
	require.NoError(t, err)
	assert.True(t, ok)

	e, found, err := x.FindEntry("a")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, e.Tombstoned())
	// Value-only updates keep the payload locator.
	assert.Equal(t, int64(10), e.PayloadOffset)
	assert.Equal(t, int32(5), e.PayloadLength)

	ok, err = x.UpdateWithPayload("a", 7, NoPayload)
	require.NoError(t, err)
	assert.True(t, ok)
	e, _, err = x.FindEntry("a")
	require.NoError(t, err)
	assert.Equal(t, int32(7), e.Value)
	assert.False(t, e.HasPayload())

	ok, err = x.Update("missing", 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndexPayloadLocatorRoundTrip(t *testing.T) {
	x := openTestIndex(t)
	loc := Locator{Offset: 1 << 33, Length: 1234}
	require.NoError(t, x.Insert("big", 3, loc))

	e, ok, err := x.FindEntry("big")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, e.HasPayload())
	assert.Equal(t, loc.Offset, e.PayloadOffset)
	assert.Equal(t, loc.Length, e.PayloadLength)
}

func TestIndexWalkInOrder(t *testing.T) {
	x := openTestIndex(t)
	for i, k := range []string{"m", "c", "x", "a", "e", "z", "n"} {
		require.NoError(t, x.Insert(k, int32(i), NoPayload))
	}
	var keys []string
	require.NoError(t, x.Walk(func(e Entry) error {
		keys = append(keys, e.Key)
		return nil
	}))
	assert.Equal(t, []string{"a", "c", "e", "m", "n", "x", "z"}, keys)
}

func TestIndexByteOrderComparison(t *testing.T) {
	x := openTestIndex(t)
	for i, k := range []string{"b", "B", "a", "_"} {
		require.NoError(t, x.Insert(k, int32(i), NoPayload))
	}
	var keys []string
	require.NoError(t, x.Walk(func(e Entry) error {
		keys = append(keys, e.Key)
		return nil
	}))
	assert.Equal(t, []string{"B", "_", "a", "b"}, keys)
}
