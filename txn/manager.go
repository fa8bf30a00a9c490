package txn

import (
	"sync/atomic"

	"github.com/google/uuid"

	"coredb/dberr"
)

// NewManager returns a manager with no transactions in flight.
func NewManager() *Manager {
	return &Manager{
		nextID:     1,
		activeTxns: make(map[uint64]*Transaction),
	}
}

// Begin issues a new transaction id and registers it as active. The caller
// (the engine) is responsible for writing the BEGIN log record and for
// enforcing that only one transaction is open per session at a time.
func (tm *Manager) Begin() *Transaction {
	txnID := atomic.AddUint64(&tm.nextID, 1) - 1

	t := &Transaction{
		ID:        txnID,
		SessionID: uuid.New(),
		State:     StateActive,
	}

	tm.mu.Lock()
	tm.activeTxns[txnID] = t
	tm.mu.Unlock()

	return t
}

// MarkFailed transitions an active transaction to StatePendingAbort after a
// statement error. It is idempotent and a no-op on a transaction that is
// already pending abort, committed, or unknown.
func (tm *Manager) MarkFailed(txnID uint64) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if t, exists := tm.activeTxns[txnID]; exists && t.State == StateActive {
		t.State = StatePendingAbort
	}
}

// Commit marks a transaction committed and removes it from the active set.
// Called AFTER the COMMIT record has been written to the WAL and synced.
func (tm *Manager) Commit(txnID uint64) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	t, exists := tm.activeTxns[txnID]
	if !exists {
		return nil // already settled or never existed — idempotent
	}
	if t.State == StatePendingAbort {
		return dberr.New(dberr.TxnAborted, "transaction %d failed earlier in this session; rollback required", txnID)
	}
	if t.State == StateAborted {
		return dberr.New(dberr.TxnAborted, "transaction %d was already aborted", txnID)
	}

	t.State = StateCommitted
	delete(tm.activeTxns, txnID)
	return nil
}

// Abort marks a transaction aborted and removes it from the active set.
// Called AFTER the engine has walked the undo lists and after the ABORT
// record has been written to the WAL.
func (tm *Manager) Abort(txnID uint64) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	t, exists := tm.activeTxns[txnID]
	if !exists {
		return nil // already settled or never existed — idempotent
	}
	if t.State == StateCommitted {
		return dberr.New(dberr.TxnAborted, "transaction %d was already committed", txnID)
	}

	t.State = StateAborted
	delete(tm.activeTxns, txnID)
	return nil
}

// GetTransaction returns the transaction with the given id, or nil.
func (tm *Manager) GetTransaction(txnID uint64) *Transaction {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.activeTxns[txnID]
}

// IsActive reports whether txnID is in flight, regardless of pending-abort
// state — a pending-abort transaction is still "active" in the sense that it
// occupies a slot until ROLLBACK.
func (tm *Manager) IsActive(txnID uint64) bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	_, exists := tm.activeTxns[txnID]
	return exists
}

// ActiveTransactions returns a snapshot of every in-flight transaction.
// Checkpoint uses this to record in-flight txn ids in the CHECKPOINT record.
func (tm *Manager) ActiveTransactions() []*Transaction {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	txns := make([]*Transaction, 0, len(tm.activeTxns))
	for _, t := range tm.activeTxns {
		txns = append(txns, t)
	}
	return txns
}
