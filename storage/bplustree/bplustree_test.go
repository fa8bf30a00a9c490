package bplustree

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"coredb/storage/buffer"
	"coredb/storage/diskmanager"
	"coredb/types"
)

func newTestTree(t *testing.T, unique bool) *Tree {
	t.Helper()
	fs := afero.NewMemMapFs()
	disk := diskmanager.New(fs, nil)
	pool := buffer.NewPool(16, disk, nil)

	fileID, err := disk.OpenFile("/data/idx_test.idx")
	require.NoError(t, err)

	tree, err := Open(fileID, pool, disk, unique, DefaultKeyCompare)
	require.NoError(t, err)
	return tree
}

func rid(i int) types.RowPointer {
	return types.RowPointer{FileID: 1, PageNumber: uint32(i), SlotIndex: 0}
}

func TestInsertAndSearchUnique(t *testing.T) {
	tree := newTestTree(t, true)

	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("k%03d", i))
		require.NoError(t, tree.Insert(key, []byte(fmt.Sprintf("v%d", i)), rid(i)))
	}

	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("k%03d", i))
		v, err := tree.Search(key)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("v%d", i), string(v))
	}
}

func TestInsertSplitsAcrossLevels(t *testing.T) {
	tree := newTestTree(t, true)

	n := MaxKeys*MaxKeys + 50
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		require.NoError(t, tree.Insert(key, []byte(fmt.Sprintf("val-%d", i)), rid(i)))
	}

	for i := 0; i < n; i += 37 {
		key := []byte(fmt.Sprintf("key-%05d", i))
		v, err := tree.Search(key)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("val-%d", i), string(v))
	}
}

func TestDuplicateKeyRejectedOnUniqueIndex(t *testing.T) {
	tree := newTestTree(t, true)
	require.NoError(t, tree.Insert([]byte("a"), []byte("1"), rid(1)))
	require.Error(t, tree.Insert([]byte("a"), []byte("2"), rid(2)))
}

func TestNonUniqueIndexAllowsDuplicateUserKeys(t *testing.T) {
	tree := newTestTree(t, false)

	require.NoError(t, tree.Insert([]byte("dup"), []byte("row1"), rid(1)))
	require.NoError(t, tree.Insert([]byte("dup"), []byte("row2"), rid(2)))
	require.NoError(t, tree.Insert([]byte("dup"), []byte("row3"), rid(3)))

	it, err := tree.SeekGE([]byte("dup"))
	require.NoError(t, err)

	var values []string
	for ; it.valid; it.Next() {
		if string(it.Key()) != "dup" {
			break
		}
		values = append(values, string(it.Value()))
	}
	require.ElementsMatch(t, []string{"row1", "row2", "row3"}, values)
}

func TestIteratorRangeScanOrdered(t *testing.T) {
	tree := newTestTree(t, true)
	keys := []string{"b", "d", "a", "c", "e"}
	for i, k := range keys {
		require.NoError(t, tree.Insert([]byte(k), []byte(k), rid(i)))
	}

	it, err := tree.SeekGE([]byte("b"))
	require.NoError(t, err)

	var seen []string
	for ; it.valid; it.Next() {
		seen = append(seen, string(it.Key()))
	}
	require.Equal(t, []string{"b", "c", "d", "e"}, seen)
}

func TestDeleteRemovesKeyAndRebalances(t *testing.T) {
	tree := newTestTree(t, true)

	n := MaxKeys * 4
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k%04d", i))
		require.NoError(t, tree.Insert(key, []byte("v"), rid(i)))
	}
	for i := 0; i < n; i += 2 {
		key := []byte(fmt.Sprintf("k%04d", i))
		require.NoError(t, tree.Delete(key, rid(i)))
	}

	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k%04d", i))
		_, err := tree.Search(key)
		if i%2 == 0 {
			require.Error(t, err)
		} else {
			require.NoError(t, err)
		}
	}
}

func TestDeleteOnNonUniqueIndexTargetsExactRID(t *testing.T) {
	tree := newTestTree(t, false)
	require.NoError(t, tree.Insert([]byte("dup"), []byte("row1"), rid(1)))
	require.NoError(t, tree.Insert([]byte("dup"), []byte("row2"), rid(2)))

	require.NoError(t, tree.Delete([]byte("dup"), rid(1)))

	it, err := tree.SeekGE([]byte("dup"))
	require.NoError(t, err)
	var values []string
	for ; it.valid; it.Next() {
		if string(it.Key()) != "dup" {
			break
		}
		values = append(values, string(it.Value()))
	}
	require.Equal(t, []string{"row2"}, values)
}
