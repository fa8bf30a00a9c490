package wal

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"coredb/types"
)

func TestAppendSyncAdvancesFlushedLSN(t *testing.T) {
	fs := afero.NewMemMapFs()
	m, err := Open("/data/wal", fs, nil)
	require.NoError(t, err)

	require.EqualValues(t, 0, m.GetFlushedLSN())

	lsn := m.AllocateLSN()
	require.NoError(t, m.AppendToBuffer(lsn, &types.Operation{Type: types.OpInsert, Table: "t"}))
	require.EqualValues(t, 0, m.GetFlushedLSN(), "flushed watermark must not move before Sync")

	require.NoError(t, m.Sync())
	require.EqualValues(t, lsn, m.GetFlushedLSN())
}

func TestReplayFromLSNSkipsEarlierRecords(t *testing.T) {
	fs := afero.NewMemMapFs()
	m, err := Open("/data/wal", fs, nil)
	require.NoError(t, err)

	var lsns []uint64
	for i := 0; i < 5; i++ {
		lsn := m.AllocateLSN()
		require.NoError(t, m.AppendToBuffer(lsn, &types.Operation{Type: types.OpInsert, Table: "students", TxnID: uint64(i)}))
		lsns = append(lsns, lsn)
	}
	require.NoError(t, m.Sync())

	var replayed []uint64
	require.NoError(t, m.ReplayFromLSN(lsns[2], func(op *types.Operation) error {
		replayed = append(replayed, op.LSN)
		return nil
	}))
	require.Equal(t, lsns[2:], replayed)
}

func TestReplayDetectsChecksumCorruption(t *testing.T) {
	fs := afero.NewMemMapFs()
	m, err := Open("/data/wal", fs, nil)
	require.NoError(t, err)

	lsn := m.AllocateLSN()
	require.NoError(t, m.AppendToBuffer(lsn, &types.Operation{Type: types.OpInsert, Table: "t"}))
	require.NoError(t, m.Sync())

	f, err := fs.OpenFile(m.currSegment.filePath, os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF}, RecordHeaderSize)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = m.ReplayFromLSN(0, func(op *types.Operation) error { return nil })
	require.Error(t, err)
}

func TestReopenRecoversCurrentLSN(t *testing.T) {
	fs := afero.NewMemMapFs()
	m, err := Open("/data/wal", fs, nil)
	require.NoError(t, err)

	var last uint64
	for i := 0; i < 3; i++ {
		last = m.AllocateLSN()
		require.NoError(t, m.AppendToBuffer(last, &types.Operation{Type: types.OpInsert}))
	}
	require.NoError(t, m.Sync())
	require.NoError(t, m.Close())

	reopened, err := Open("/data/wal", fs, nil)
	require.NoError(t, err)
	require.EqualValues(t, last, reopened.GetFlushedLSN())
}
