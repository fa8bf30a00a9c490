package engine

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"coredb/dberr"
	"coredb/txn"
	"coredb/types"
)

// Begin opens an explicit transaction for session. Per spec.md §4.8, BEGIN
// allocates a txn id and writes a BEGIN record before anything else can
// happen under it.
func (e *StorageEngine) Begin(sess uuid.UUID) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.beginLocked(sess)
}

// beginLocked is Begin's body, callable while e.mu is already held.
func (e *StorageEngine) beginLocked(sess uuid.UUID) (uint64, error) {
	s := e.sessionFor(sess)
	if s.txnID != 0 {
		return 0, dberr.New(dberr.ConstraintViolation, "a transaction is already open on this session")
	}

	t := e.txns.Begin()
	lsn := e.wal.AllocateLSN()
	op := &types.Operation{Type: types.OpTxnBegin, TxnID: t.ID, LSN: lsn}
	if err := e.wal.AppendToBuffer(lsn, op); err != nil {
		return 0, err
	}
	s.txnID = t.ID
	e.log.Debug("begin", zap.Uint64("txn_id", t.ID))
	return t.ID, nil
}

// Commit commits session's open transaction. The COMMIT record must be
// fsynced before success is acknowledged (spec.md §4.8); a failure to
// fsync at this point is IO_ERROR and unrecoverable per spec.md §7, so it
// aborts the process after flushing diagnostics rather than silently
// returning a degraded success.
func (e *StorageEngine) Commit(sess uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commitLocked(sess)
}

// commitLocked is Commit's body, callable while e.mu is already held.
func (e *StorageEngine) commitLocked(sess uuid.UUID) error {
	s := e.sessionFor(sess)
	if s.txnID == 0 {
		return dberr.New(dberr.SemanticError, "no transaction is open on this session")
	}
	txnID := s.txnID

	t := e.txns.GetTransaction(txnID)
	if t != nil && t.State == txn.StatePendingAbort {
		return dberr.New(dberr.TxnAborted, "transaction %d failed earlier; ROLLBACK required", txnID)
	}

	lsn := e.wal.AllocateLSN()
	op := &types.Operation{Type: types.OpTxnCommit, TxnID: txnID, LSN: lsn}
	if err := e.wal.AppendToBuffer(lsn, op); err != nil {
		return err
	}
	if err := e.wal.Sync(); err != nil {
		e.log.Fatal("commit fsync failed, log durability lost", zap.Uint64("txn_id", txnID), zap.Error(err))
	}
	if err := e.pool.FlushAllPages(); err != nil {
		e.log.Warn("post-commit page flush failed, pages remain dirty until the next flush", zap.Error(err))
	}
	if err := e.txns.Commit(txnID); err != nil {
		return err
	}
	s.txnID = 0
	e.log.Debug("commit", zap.Uint64("txn_id", txnID), zap.Uint64("lsn", lsn))
	e.maybeCheckpointLocked()
	return nil
}

// Rollback undoes session's open transaction: walk every undo list in
// reverse, applying before-images, then write the ABORT record. Safe to
// call on a transaction in StatePendingAbort (the common case: a statement
// already failed and the caller is cleaning up).
func (e *StorageEngine) Rollback(sess uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rollbackLocked(sess)
}

// rollbackLocked is Rollback's body, callable while e.mu is already held.
func (e *StorageEngine) rollbackLocked(sess uuid.UUID) error {
	s := e.sessionFor(sess)
	if s.txnID == 0 {
		return dberr.New(dberr.SemanticError, "no transaction is open on this session")
	}
	txnID := s.txnID
	t := e.txns.GetTransaction(txnID)
	if t == nil {
		s.txnID = 0
		return nil
	}

	if err := e.undoTransactionLocked(t); err != nil {
		return err
	}

	lsn := e.wal.AllocateLSN()
	op := &types.Operation{Type: types.OpTxnAbort, TxnID: txnID, LSN: lsn}
	if err := e.wal.AppendToBuffer(lsn, op); err != nil {
		return err
	}
	if err := e.wal.Sync(); err != nil {
		e.log.Warn("abort record fsync failed", zap.Uint64("txn_id", txnID), zap.Error(err))
	}
	if err := e.pool.FlushAllPages(); err != nil {
		e.log.Warn("post-rollback page flush failed", zap.Error(err))
	}
	if err := e.txns.Abort(txnID); err != nil {
		return err
	}
	s.txnID = 0
	e.log.Debug("rollback", zap.Uint64("txn_id", txnID))
	return nil
}

// undoTransactionLocked reverses t's recorded effects in the order
// spec.md §4.8 requires: deletes undone last-in-first-out, then updates,
// then inserts, each list itself walked in reverse.
func (e *StorageEngine) undoTransactionLocked(t *txn.Transaction) error {
	for i := len(t.DeletedRows) - 1; i >= 0; i-- {
		d := t.DeletedRows[i]
		rp := d.RowPtr
		if err := e.heapMgr.InsertRowAtPointer(rp.FileID, &rp, d.RowData, e.wal.AllocateLSN()); err != nil {
			return err
		}
		if err := e.reinsertIndexEntries(d.Table, d.RowData, rp); err != nil {
			return err
		}
	}
	for i := len(t.UpdatedRows) - 1; i >= 0; i-- {
		u := t.UpdatedRows[i]
		if u.NewRowPtr != u.OldRowPtr {
			if err := e.removeIndexEntriesByPointer(u.Table, u.NewRowPtr); err != nil && dberr.KindOf(err) != dberr.NotFound {
				return err
			}
			_ = e.heapMgr.DeleteRow(&u.NewRowPtr, e.wal.AllocateLSN())
			oldPtr := u.OldRowPtr
			if err := e.heapMgr.InsertRowAtPointer(oldPtr.FileID, &oldPtr, u.OldRowData, e.wal.AllocateLSN()); err != nil {
				return err
			}
			if err := e.reinsertIndexEntries(u.Table, u.OldRowData, oldPtr); err != nil {
				return err
			}
		} else {
			if err := e.heapMgr.UpdateRow(&u.OldRowPtr, u.OldRowData, e.wal.AllocateLSN()); err != nil {
				return err
			}
		}
	}
	for i := len(t.InsertedRows) - 1; i >= 0; i-- {
		ins := t.InsertedRows[i]
		if err := e.removeIndexEntriesByPointer(ins.Table, ins.RowPtr); err != nil && dberr.KindOf(err) != dberr.NotFound {
			return err
		}
		rp := ins.RowPtr
		if err := e.heapMgr.DeleteRow(&rp, e.wal.AllocateLSN()); err != nil {
			return err
		}
	}
	return nil
}
