package checkpoint

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestLoadWithNoCheckpointReturnsZeroLSN(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := NewManager("/data", fs, nil)

	cp, err := m.Load()
	require.NoError(t, err)
	require.Zero(t, cp.LSN)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := NewManager("/data", fs, nil)

	require.NoError(t, m.Save(42, "school", []uint64{7, 9}))

	cp, err := m.Load()
	require.NoError(t, err)
	require.EqualValues(t, 42, cp.LSN)
	require.Equal(t, "school", cp.Database)
	require.ElementsMatch(t, []uint64{7, 9}, cp.InFlightTxns)
	require.NotEqual(t, cp.ID.String(), "00000000-0000-0000-0000-000000000000")
}

func TestSaveOverwritesPreviousCheckpoint(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := NewManager("/data", fs, nil)

	require.NoError(t, m.Save(1, "school", nil))
	require.NoError(t, m.Save(2, "school", nil))

	cp, err := m.Load()
	require.NoError(t, err)
	require.EqualValues(t, 2, cp.LSN)

	exists, err := afero.Exists(fs, "/data/checkpoint.json.tmp")
	require.NoError(t, err)
	require.False(t, exists, "temp file must not survive a successful save")
}

func TestLoadCorruptedFileFallsBackToZero(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := NewManager("/data", fs, nil)
	require.NoError(t, fs.MkdirAll("/data", 0755))
	require.NoError(t, afero.WriteFile(fs, "/data/checkpoint.json", []byte("not json"), 0644))

	cp, err := m.Load()
	require.NoError(t, err)
	require.Zero(t, cp.LSN)
}

func TestDeleteRemovesCheckpoint(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := NewManager("/data", fs, nil)
	require.NoError(t, m.Save(5, "school", nil))
	require.NoError(t, m.Delete())

	cp, err := m.Load()
	require.NoError(t, err)
	require.Zero(t, cp.LSN)

	require.NoError(t, m.Delete(), "deleting an already-absent checkpoint is a no-op")
}
