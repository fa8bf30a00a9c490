package types

import "encoding/json"

// OperationType tags a WAL record's payload kind. Values are stable on disk;
// never renumber existing ones.
type OperationType byte

const (
	OpInsert      OperationType = 1
	OpUpdate      OperationType = 2
	OpDelete      OperationType = 3
	OpCreateTable OperationType = 4

	OpTxnBegin  OperationType = 5
	OpTxnCommit OperationType = 6
	OpTxnAbort  OperationType = 7

	OpDrop OperationType = 8

	// OpCheckpoint marks a CHECKPOINT log record per spec.md §3's LogRecord
	// variant; the checkpoint package also persists a side-file snapshot,
	// but the WAL record is what recovery's analysis pass scans for.
	OpCheckpoint OperationType = 9

	// OpCompensation is written by recovery's undo pass and by rollback to
	// record that a given LSN's effects have been reversed, so redo never
	// re-applies an already-undone operation (spec.md §4.8 "Undo" pass).
	OpCompensation OperationType = 10
)

// Operation is the decoded payload of one WAL record. Exactly the fields
// relevant to Type are populated.
type Operation struct {
	Type  OperationType `json:"type"`
	TxnID uint64        `json:"txn_id,omitempty"`
	LSN   uint64        `json:"lsn,omitempty"`

	// DML
	Table      string      `json:"table,omitempty"`
	RowData    []byte      `json:"row_data,omitempty"`    // after-image
	BeforeData []byte      `json:"before_data,omitempty"` // before-image, for UPDATE undo (spec.md invariant 1)
	RowPtr     *RowPointer `json:"row_ptr,omitempty"`
	// OldRowPtr is set only when an UPDATE relocated the row (the new
	// image no longer fit in its original slot); redo must delete the
	// row at OldRowPtr before inserting RowData at RowPtr.
	OldRowPtr *RowPointer `json:"old_row_ptr,omitempty"`
	IndexKey  []byte      `json:"index_key,omitempty"`

	// DDL
	Schema *TableSchema `json:"schema,omitempty"`

	// Compensation / checkpoint bookkeeping
	CompensatesLSN uint64   `json:"compensates_lsn,omitempty"`
	InFlightTxns   []uint64 `json:"in_flight_txns,omitempty"`
}

func (op *Operation) Encode() []byte {
	data, _ := json.Marshal(op)
	return data
}

func DecodeOperation(data []byte) (*Operation, error) {
	var op Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, err
	}
	return &op, nil
}
