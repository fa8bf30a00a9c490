package heap

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"coredb/storage/buffer"
	"coredb/storage/diskmanager"
	"coredb/types"
)

func newTestManager(t *testing.T) (*HeapFileManager, uint32) {
	t.Helper()
	fs := afero.NewMemMapFs()
	disk := diskmanager.New(fs, nil)
	pool := buffer.NewPool(8, disk, nil)
	hfm := NewHeapFileManager("/data", disk, pool, nil)

	require.NoError(t, hfm.CreateHeapFile("students", 1))
	return hfm, 1
}

func TestInsertAndGetRow(t *testing.T) {
	hfm, fileID := newTestManager(t)

	rp, err := hfm.InsertRow(fileID, []byte("Alice|20"), 1)
	require.NoError(t, err)
	require.EqualValues(t, 0, rp.SlotIndex)

	got, err := hfm.GetRow(rp)
	require.NoError(t, err)
	require.Equal(t, "Alice|20", string(got))
}

func TestSlotDirectoryReusesTombstones(t *testing.T) {
	hfm, fileID := newTestManager(t)

	var pointers []*types.RowPointer
	for i := 0; i < 5; i++ {
		rp, err := hfm.InsertRow(fileID, []byte{byte('a' + i)}, uint64(i))
		require.NoError(t, err)
		pointers = append(pointers, rp)
	}

	require.NoError(t, hfm.DeleteRow(pointers[2], 10))

	rp, err := hfm.InsertRow(fileID, []byte{'z'}, 11)
	require.NoError(t, err)
	require.EqualValues(t, 2, rp.SlotIndex, "insert should reuse the tombstoned slot")
}

func TestMultiplePagesAllocatedWhenFull(t *testing.T) {
	hfm, fileID := newTestManager(t)

	seen := map[uint32]bool{}
	big := make([]byte, 900)
	for i := 0; i < 20; i++ {
		rp, err := hfm.InsertRow(fileID, big, uint64(i))
		require.NoError(t, err)
		seen[rp.PageNumber] = true
	}
	require.Greater(t, len(seen), 1, "900-byte rows should overflow a single 4KiB page")
}

func TestUpdateRowRelocatesOnOverflow(t *testing.T) {
	hfm, fileID := newTestManager(t)

	rp, err := hfm.InsertRow(fileID, []byte("short"), 1)
	require.NoError(t, err)

	longer := make([]byte, 200)
	for i := range longer {
		longer[i] = 'x'
	}
	require.NoError(t, hfm.UpdateRow(rp, longer, 2))

	got, err := hfm.GetRow(rp)
	require.NoError(t, err)
	require.Equal(t, longer, got)
}

func TestInsertLogicalRowEnforcesNotNullAndDefaults(t *testing.T) {
	hfm, fileID := newTestManager(t)

	schema := &types.TableSchema{
		TableName: "students",
		Columns: []types.ColumnDef{
			{Name: "id", Type: types.ColInt, NotNull: true},
			{Name: "grade", Type: types.ColVarchar, Length: 1, HasDefault: true, Default: "'C'"},
		},
	}

	row := &types.Row{Values: map[string]any{"id": types.IntValue(1)}}
	rp, err := hfm.InsertLogicalRow(fileID, schema, row, nil, 1)
	require.NoError(t, err)

	got, err := hfm.GetLogicalRow(rp, schema)
	require.NoError(t, err)
	require.Equal(t, "C", got.Values["grade"].(types.Value).Str)

	badRow := &types.Row{Values: map[string]any{"id": types.NullValue(types.ColInt)}}
	_, err = hfm.InsertLogicalRow(fileID, schema, badRow, nil, 2)
	require.Error(t, err)
}

func TestGetAllRowPointersSkipsTombstones(t *testing.T) {
	hfm, fileID := newTestManager(t)

	var pointers []*types.RowPointer
	for i := 0; i < 4; i++ {
		rp, err := hfm.InsertRow(fileID, []byte{byte('a' + i)}, uint64(i))
		require.NoError(t, err)
		pointers = append(pointers, rp)
	}
	require.NoError(t, hfm.DeleteRow(pointers[1], 10))

	hf, err := hfm.GetHeapFileByID(fileID)
	require.NoError(t, err)
	live := hf.GetAllRowPointers()
	require.Len(t, live, 3)
}
