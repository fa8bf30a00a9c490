package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coredb/dberr"
	"coredb/types"
)

func TestBeginAssignsDistinctIDs(t *testing.T) {
	m := NewManager()
	a := m.Begin()
	b := m.Begin()
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, StateActive, a.State)
	require.True(t, m.IsActive(a.ID))
	require.True(t, m.IsActive(b.ID))
}

func TestCommitRemovesFromActiveSet(t *testing.T) {
	m := NewManager()
	tx := m.Begin()
	require.NoError(t, m.Commit(tx.ID))
	require.False(t, m.IsActive(tx.ID))
	require.Equal(t, StateCommitted, tx.State)
	require.NoError(t, m.Commit(tx.ID), "commit of an already-settled txn is idempotent")
}

func TestAbortAfterCommitIsNoOp(t *testing.T) {
	m := NewManager()
	tx := m.Begin()
	require.NoError(t, m.Commit(tx.ID))

	m2 := NewManager()
	tx2 := m2.Begin()
	require.NoError(t, m2.Commit(tx2.ID))
	err := m2.Abort(tx2.ID)
	require.NoError(t, err, "abort on an unknown/settled id is idempotent, not an error")
}

func TestMarkFailedThenCommitRejected(t *testing.T) {
	m := NewManager()
	tx := m.Begin()
	m.MarkFailed(tx.ID)
	require.Equal(t, StatePendingAbort, tx.State)

	err := m.Commit(tx.ID)
	require.Error(t, err)
	require.Equal(t, dberr.TxnAborted, dberr.KindOf(err))
}

func TestMarkFailedThenAbortSucceeds(t *testing.T) {
	m := NewManager()
	tx := m.Begin()
	m.MarkFailed(tx.ID)
	require.NoError(t, m.Abort(tx.ID))
	require.False(t, m.IsActive(tx.ID))
	require.Equal(t, StateAborted, tx.State)
}

func TestActiveTransactionsSnapshot(t *testing.T) {
	m := NewManager()
	a := m.Begin()
	b := m.Begin()
	require.NoError(t, m.Commit(a.ID))

	active := m.ActiveTransactions()
	require.Len(t, active, 1)
	require.Equal(t, b.ID, active[0].ID)
}

func TestUndoListsRecordBeforeImages(t *testing.T) {
	tx := &Transaction{ID: 1}
	rp := types.RowPointer{FileID: 1, PageNumber: 2, SlotIndex: 3}

	tx.RecordInsert("students", rp, []byte("pk1"))
	require.Len(t, tx.InsertedRows, 1)
	require.Equal(t, rp, tx.InsertedRows[0].RowPtr)

	tx.RecordUpdate("students", rp, rp, []byte("old-row"), []byte("pk1"))
	require.Len(t, tx.UpdatedRows, 1)
	require.Equal(t, []byte("old-row"), tx.UpdatedRows[0].OldRowData)

	tx.RecordDelete("students", rp, []byte("deleted-row"), []byte("pk1"))
	require.Len(t, tx.DeletedRows, 1)
	require.Equal(t, []byte("deleted-row"), tx.DeletedRows[0].RowData)
}
