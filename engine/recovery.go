package engine

import (
	"go.uber.org/zap"

	"coredb/dberr"
	"coredb/types"
)

// recoverLocked runs the three-pass Analysis/Redo/Undo protocol over the
// current database's WAL, starting from the last checkpoint if one exists
// (checkpoint.Manager.Load returns a zero-value Checkpoint, not an error,
// when none is found or the file is corrupt, so LSN 0 is always a safe
// fallback start).
func (e *StorageEngine) recoverLocked() error {
	ckpt, err := e.ckpt.Load()
	if err != nil {
		return err
	}
	startLSN := ckpt.LSN

	committed, losers, err := e.analysisPass(startLSN)
	if err != nil {
		return err
	}
	loserOps, err := e.redoPass(startLSN, losers)
	if err != nil {
		return err
	}
	if err := e.undoPass(losers, loserOps); err != nil {
		return err
	}

	e.log.Info("recovery complete",
		zap.Uint64("start_lsn", startLSN),
		zap.Int("committed_txns", len(committed)),
		zap.Int("undone_txns", len(losers)))
	return nil
}

// analysisPass scans the log once to classify every transaction touched
// since startLSN as committed or a loser (began but never committed,
// because the process crashed or the transaction was left mid-rollback).
func (e *StorageEngine) analysisPass(startLSN uint64) (committed map[uint64]bool, losers map[uint64]bool, err error) {
	seen := make(map[uint64]bool)
	committed = make(map[uint64]bool)
	aborted := make(map[uint64]bool)

	err = e.wal.ReplayFromLSN(startLSN, func(op *types.Operation) error {
		if op.TxnID == 0 {
			return nil
		}
		seen[op.TxnID] = true
		switch op.Type {
		case types.OpTxnCommit:
			committed[op.TxnID] = true
		case types.OpTxnAbort:
			aborted[op.TxnID] = true
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	losers = make(map[uint64]bool)
	for txnID := range seen {
		if !committed[txnID] && !aborted[txnID] {
			losers[txnID] = true
		}
	}
	return committed, losers, nil
}

// redoPass reapplies every logged heap mutation since startLSN, gated on
// each page's own last-applied LSN so an already-durable write is never
// repeated (spec.md §4.8's redo idempotency requirement). It also collects,
// per loser transaction and in log order, the operations undoPass needs.
func (e *StorageEngine) redoPass(startLSN uint64, losers map[uint64]bool) (map[uint64][]*types.Operation, error) {
	loserOps := make(map[uint64][]*types.Operation)

	err := e.wal.ReplayFromLSN(startLSN, func(op *types.Operation) error {
		if losers[op.TxnID] {
			loserOps[op.TxnID] = append(loserOps[op.TxnID], op)
		}
		switch op.Type {
		case types.OpInsert:
			return e.redoInsert(op)
		case types.OpUpdate:
			return e.redoUpdate(op)
		case types.OpDelete:
			return e.redoDelete(op)
		default:
			return nil
		}
	})
	return loserOps, err
}

func (e *StorageEngine) pageAlreadyApplied(rp *types.RowPointer, lsn uint64) bool {
	applied, err := e.heapMgr.GetPageLSN(rp.FileID, rp.PageNumber)
	if err != nil {
		return false
	}
	return applied >= lsn
}

func (e *StorageEngine) redoInsert(op *types.Operation) error {
	if op.RowPtr == nil || e.pageAlreadyApplied(op.RowPtr, op.LSN) {
		return nil
	}
	if err := e.heapMgr.InsertRowAtPointer(op.RowPtr.FileID, op.RowPtr, op.RowData, op.LSN); err != nil {
		return err
	}
	return e.reinsertIndexEntries(op.Table, op.RowData, *op.RowPtr)
}

func (e *StorageEngine) redoUpdate(op *types.Operation) error {
	if op.RowPtr == nil || e.pageAlreadyApplied(op.RowPtr, op.LSN) {
		return nil
	}
	if op.OldRowPtr != nil {
		if e.pageAlreadyApplied(op.OldRowPtr, op.LSN) {
			return nil
		}
		_ = e.heapMgr.DeleteRow(op.OldRowPtr, op.LSN)
		if err := e.removeIndexEntriesByPointerBestEffort(op.Table, *op.OldRowPtr); err != nil {
			return err
		}
		if err := e.heapMgr.InsertRowAtPointer(op.RowPtr.FileID, op.RowPtr, op.RowData, op.LSN); err != nil {
			return err
		}
		return e.reinsertIndexEntries(op.Table, op.RowData, *op.RowPtr)
	}
	if err := e.heapMgr.UpdateRow(op.RowPtr, op.RowData, op.LSN); err != nil {
		return err
	}
	return nil
}

func (e *StorageEngine) redoDelete(op *types.Operation) error {
	if op.RowPtr == nil || e.pageAlreadyApplied(op.RowPtr, op.LSN) {
		return nil
	}
	if err := e.removeIndexEntriesByPointerBestEffort(op.Table, *op.RowPtr); err != nil {
		return err
	}
	return e.heapMgr.DeleteRow(op.RowPtr, op.LSN)
}

// removeIndexEntriesByPointerBestEffort tolerates a row already gone (a
// later operation in the same redo pass may have already removed it).
func (e *StorageEngine) removeIndexEntriesByPointerBestEffort(table string, rp types.RowPointer) error {
	err := e.removeIndexEntriesByPointer(table, rp)
	if err != nil && dberr.KindOf(err) == dberr.NotFound {
		return nil
	}
	return err
}

// undoPass reverses every loser transaction's effects, newest LSN first,
// using the before-images carried in the WAL itself rather than any
// in-memory undo list (none survives a crash). Each reversal is logged as
// an OpCompensation record before the transaction's own ABORT record, so a
// second crash mid-recovery never re-undoes an already-undone write.
func (e *StorageEngine) undoPass(losers map[uint64]bool, loserOps map[uint64][]*types.Operation) error {
	for txnID := range losers {
		ops := loserOps[txnID]
		for i := len(ops) - 1; i >= 0; i-- {
			op := ops[i]
			if err := e.undoOperation(op); err != nil {
				return err
			}
			lsn := e.wal.AllocateLSN()
			comp := &types.Operation{Type: types.OpCompensation, TxnID: txnID, LSN: lsn, CompensatesLSN: op.LSN, Table: op.Table}
			if err := e.wal.AppendToBuffer(lsn, comp); err != nil {
				return err
			}
		}
		lsn := e.wal.AllocateLSN()
		abortOp := &types.Operation{Type: types.OpTxnAbort, TxnID: txnID, LSN: lsn}
		if err := e.wal.AppendToBuffer(lsn, abortOp); err != nil {
			return err
		}
	}
	if len(losers) > 0 {
		if err := e.wal.Sync(); err != nil {
			return err
		}
		if err := e.pool.FlushAllPages(); err != nil {
			e.log.Warn("post-recovery flush failed", zap.Error(err))
		}
	}
	return nil
}

func (e *StorageEngine) undoOperation(op *types.Operation) error {
	switch op.Type {
	case types.OpInsert:
		if op.RowPtr == nil {
			return nil
		}
		if err := e.removeIndexEntriesByPointerBestEffort(op.Table, *op.RowPtr); err != nil {
			return err
		}
		return e.heapMgr.DeleteRow(op.RowPtr, e.wal.AllocateLSN())
	case types.OpUpdate:
		if op.OldRowPtr != nil {
			if op.RowPtr != nil {
				if err := e.removeIndexEntriesByPointerBestEffort(op.Table, *op.RowPtr); err != nil {
					return err
				}
				_ = e.heapMgr.DeleteRow(op.RowPtr, e.wal.AllocateLSN())
			}
			oldPtr := *op.OldRowPtr
			if err := e.heapMgr.InsertRowAtPointer(oldPtr.FileID, &oldPtr, op.BeforeData, e.wal.AllocateLSN()); err != nil {
				return err
			}
			return e.reinsertIndexEntries(op.Table, op.BeforeData, oldPtr)
		}
		if op.RowPtr == nil {
			return nil
		}
		return e.heapMgr.UpdateRow(op.RowPtr, op.BeforeData, e.wal.AllocateLSN())
	case types.OpDelete:
		if op.RowPtr == nil {
			return nil
		}
		rp := *op.RowPtr
		if err := e.heapMgr.InsertRowAtPointer(rp.FileID, &rp, op.BeforeData, e.wal.AllocateLSN()); err != nil {
			return err
		}
		return e.reinsertIndexEntries(op.Table, op.BeforeData, rp)
	default:
		return nil
	}
}
