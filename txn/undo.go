package txn

import "coredb/types"

// RecordInsert appends to the undo list after a row has been written to the
// heap file, so rollback knows to delete it.
func (t *Transaction) RecordInsert(table string, rowPtr types.RowPointer, primaryKey []byte) {
	t.InsertedRows = append(t.InsertedRows, InsertedRow{
		Table:      table,
		RowPtr:     rowPtr,
		PrimaryKey: primaryKey,
	})
}

// RecordUpdate saves the row's before-image prior to an update, so rollback
// can restore it. oldPtr and newPtr differ only when the update relocated
// the row.
func (t *Transaction) RecordUpdate(table string, oldPtr, newPtr types.RowPointer, oldRowData []byte, primaryKey []byte) {
	t.UpdatedRows = append(t.UpdatedRows, UpdatedRow{
		Table:      table,
		OldRowPtr:  oldPtr,
		NewRowPtr:  newPtr,
		OldRowData: oldRowData,
		PrimaryKey: primaryKey,
	})
}

// RecordDelete saves a deleted row's before-image, so rollback can reinsert
// it. This closes the gap left by the teacher's implementation, which only
// tracked inserts and updates and left DELETE undo unimplemented.
func (t *Transaction) RecordDelete(table string, rowPtr types.RowPointer, rowData []byte, primaryKey []byte) {
	t.DeletedRows = append(t.DeletedRows, DeletedRow{
		Table:      table,
		RowPtr:     rowPtr,
		RowData:    rowData,
		PrimaryKey: primaryKey,
	})
}
