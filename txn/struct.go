package txn

import (
	"sync"

	"github.com/google/uuid"

	"coredb/types"
)

// State is a transaction's place in the BEGIN/COMMIT/ROLLBACK lifecycle.
type State uint8

const (
	StateActive State = iota
	// StatePendingAbort means a statement failed inside this transaction;
	// per spec.md §7, every subsequent statement must fail with
	// TXN_ABORTED until ROLLBACK clears it.
	StatePendingAbort
	StateCommitted
	StateAborted
)

// InsertedRow is one undo entry for a row this transaction inserted.
type InsertedRow struct {
	Table      string
	RowPtr     types.RowPointer
	PrimaryKey []byte
}

// UpdatedRow is one undo entry for a row this transaction updated.
// OldRowPtr and NewRowPtr differ when the update relocated the row (the
// in-place update didn't fit and the heap re-inserted it elsewhere).
type UpdatedRow struct {
	Table      string
	OldRowPtr  types.RowPointer
	NewRowPtr  types.RowPointer
	OldRowData []byte
	PrimaryKey []byte
}

// DeletedRow is one undo entry for a row this transaction deleted. The
// before-image lets rollback reinsert the row at the same slot.
type DeletedRow struct {
	Table      string
	RowPtr     types.RowPointer
	RowData    []byte
	PrimaryKey []byte
}

// Transaction tracks one in-flight unit of work. The undo lists are applied
// in reverse by the engine's rollback path; they are never persisted —
// recovery rebuilds equivalent state from the WAL instead.
type Transaction struct {
	ID        uint64
	SessionID uuid.UUID
	State     State

	InsertedRows []InsertedRow
	UpdatedRows  []UpdatedRow
	DeletedRows  []DeletedRow
}

// Manager owns the set of transactions currently in flight. Per spec.md §5
// the engine only ever keeps one transaction active at a time, but the
// manager itself stays keyed by ID rather than holding a single slot, since
// nothing here requires that restriction.
type Manager struct {
	nextID     uint64
	activeTxns map[uint64]*Transaction
	mu         sync.RWMutex
}
