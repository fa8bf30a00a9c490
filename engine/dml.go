package engine

import (
	"strings"

	"coredb/dberr"
	"coredb/planner"
	"coredb/sql/ast"
	"coredb/storage/bplustree"
	"coredb/types"
)

func (e *StorageEngine) execContext() *planner.ExecContext {
	return planner.NewExecContext(e.cat, e.heapMgr, e.idxMgr, e.log)
}

// Insert evaluates stmt's VALUES rows against the current schema and
// inserts each into the heap, maintaining every index and firing any
// BEFORE/AFTER INSERT triggers, per spec.md §4.6.
func (e *StorageEngine) Insert(txnID uint64, stmt *ast.InsertStmt) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.insertLocked(txnID, stmt)
}

// insertLocked is Insert's body, callable while e.mu is already held (a
// trigger body firing another statement reenters here, not through Insert).
func (e *StorageEngine) insertLocked(txnID uint64, stmt *ast.InsertStmt) (int, error) {
	schema, err := e.cat.GetTableSchema(stmt.Table)
	if err != nil {
		return 0, err
	}
	fileID, err := e.cat.GetTableFileID(stmt.Table)
	if err != nil {
		return 0, err
	}
	t := e.txns.GetTransaction(txnID)
	eval := planner.NewEvaluator(e.execContext())

	count := 0
	for _, valueExprs := range stmt.Values {
		row, err := e.buildInsertRow(&schema, stmt.Columns, valueExprs, eval)
		if err != nil {
			return count, err
		}
		if err := e.fireTriggers(txnID, &schema, "INSERT", "BEFORE", row); err != nil {
			return count, err
		}
		if err := e.checkForeignKeys(&schema, row); err != nil {
			return count, err
		}

		evaluator := newCheckEvaluator(e.execContext())
		lsn := e.wal.AllocateLSN()
		rp, err := e.heapMgr.InsertLogicalRow(fileID, &schema, row, evaluator, lsn)
		if err != nil {
			return count, err
		}

		if err := e.applyIndexInsert(stmt.Table, row, *rp); err != nil {
			_ = e.heapMgr.DeleteRow(rp, e.wal.AllocateLSN())
			return count, err
		}

		data, err := heapEncodeRow(&schema, row)
		if err != nil {
			return count, err
		}
		op := &types.Operation{Type: types.OpInsert, TxnID: txnID, LSN: lsn, Table: stmt.Table, RowData: data, RowPtr: rp}
		if err := e.wal.AppendToBuffer(lsn, op); err != nil {
			return count, err
		}

		if t != nil {
			pk, _ := rowPrimaryKeyBytes(&schema, row)
			t.RecordInsert(stmt.Table, *rp, pk)
		}
		if err := e.fireTriggers(txnID, &schema, "INSERT", "AFTER", row); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// buildInsertRow evaluates one VALUES tuple against cols (or, if cols is
// empty, the schema's own column order) into a types.Row ready for
// InsertLogicalRow's default/coercion/validation pipeline.
func (e *StorageEngine) buildInsertRow(schema *types.TableSchema, cols []string, exprs []ast.Expr, eval *planner.Evaluator) (*types.Row, error) {
	if len(cols) == 0 {
		cols = make([]string, len(schema.Columns))
		for i, c := range schema.Columns {
			cols[i] = c.Name
		}
	}
	if len(cols) != len(exprs) {
		return nil, dberr.New(dberr.SemanticError, "INSERT has %d columns but %d values", len(cols), len(exprs))
	}
	row := &types.Row{Values: make(map[string]interface{}, len(cols))}
	for i, col := range cols {
		v, err := eval.Eval(exprs[i], planner.Tuple{})
		if err != nil {
			return nil, err
		}
		row.Set(col, v)
	}
	return row, nil
}

// Update evaluates stmt's SET list against every row matching WHERE,
// re-validating constraints and re-threading index entries for any column
// that participates in one.
func (e *StorageEngine) Update(txnID uint64, stmt *ast.UpdateStmt) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateLocked(txnID, stmt)
}

// updateLocked is Update's body, callable while e.mu is already held.
func (e *StorageEngine) updateLocked(txnID uint64, stmt *ast.UpdateStmt) (int, error) {
	schema, err := e.cat.GetTableSchema(stmt.Table)
	if err != nil {
		return 0, err
	}
	hf, err := e.heapMgr.GetHeapFileByTable(stmt.Table)
	if err != nil {
		return 0, err
	}
	t := e.txns.GetTransaction(txnID)
	ctx := e.execContext()
	eval := planner.NewEvaluator(ctx)
	evaluator := newCheckEvaluator(ctx)

	count := 0
	for _, rp := range hf.GetAllRowPointers() {
		oldData, err := e.heapMgr.GetRow(&rp)
		if err != nil {
			if dberr.KindOf(err) == dberr.NotFound {
				continue
			}
			return count, err
		}
		oldRow, err := decodeRowFor(&schema, oldData)
		if err != nil {
			return count, err
		}
		if stmt.Where != nil {
			tuple := planner.NewTuple(stmt.Table, oldRow)
			v, err := eval.Eval(stmt.Where, tuple)
			if err != nil {
				return count, err
			}
			if v.Type != types.ColBool || !v.Bool {
				continue
			}
		}

		newRow := oldRow.Clone()
		tuple := planner.NewTuple(stmt.Table, oldRow)
		for _, a := range stmt.Assignments {
			v, err := eval.Eval(a.Value, tuple)
			if err != nil {
				return count, err
			}
			newRow.Set(a.Column, v)
		}

		if err := e.fireTriggers(txnID, &schema, "UPDATE", "BEFORE", &newRow); err != nil {
			return count, err
		}
		if err := e.checkForeignKeys(&schema, &newRow); err != nil {
			return count, err
		}

		lsn := e.wal.AllocateLSN()
		newPtr := rp
		if err := e.heapMgr.UpdateLogicalRow(&newPtr, &schema, &newRow, evaluator, lsn); err != nil {
			return count, err
		}

		if err := e.applyIndexDelete(stmt.Table, oldRow, rp); err != nil {
			return count, err
		}
		if err := e.applyIndexInsert(stmt.Table, &newRow, newPtr); err != nil {
			return count, err
		}

		op := &types.Operation{
			Type: types.OpUpdate, TxnID: txnID, LSN: lsn, Table: stmt.Table,
			RowPtr: &newPtr, BeforeData: oldData,
		}
		if newPtr != rp {
			oldPtr := rp
			op.OldRowPtr = &oldPtr
		}
		newData, err := heapEncodeRow(&schema, &newRow)
		if err != nil {
			return count, err
		}
		op.RowData = newData
		if err := e.wal.AppendToBuffer(lsn, op); err != nil {
			return count, err
		}

		if t != nil {
			pk, _ := rowPrimaryKeyBytes(&schema, oldRow)
			t.RecordUpdate(stmt.Table, rp, newPtr, oldData, pk)
		}
		if err := e.fireTriggers(txnID, &schema, "UPDATE", "AFTER", &newRow); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Delete removes every row matching WHERE, enforcing FK RESTRICT semantics
// (spec.md §4.6 point 5: no CASCADE) before any row is actually removed.
func (e *StorageEngine) Delete(txnID uint64, stmt *ast.DeleteStmt) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleteLocked(txnID, stmt)
}

// deleteLocked is Delete's body, callable while e.mu is already held.
func (e *StorageEngine) deleteLocked(txnID uint64, stmt *ast.DeleteStmt) (int, error) {
	schema, err := e.cat.GetTableSchema(stmt.Table)
	if err != nil {
		return 0, err
	}
	hf, err := e.heapMgr.GetHeapFileByTable(stmt.Table)
	if err != nil {
		return 0, err
	}
	t := e.txns.GetTransaction(txnID)
	eval := planner.NewEvaluator(e.execContext())

	var toDelete []types.RowPointer
	var toDeleteRows []*types.Row
	for _, rp := range hf.GetAllRowPointers() {
		data, err := e.heapMgr.GetRow(&rp)
		if err != nil {
			continue
		}
		row, err := decodeRowFor(&schema, data)
		if err != nil {
			return 0, err
		}
		if stmt.Where != nil {
			tuple := planner.NewTuple(stmt.Table, row)
			v, err := eval.Eval(stmt.Where, tuple)
			if err != nil {
				return 0, err
			}
			if v.Type != types.ColBool || !v.Bool {
				continue
			}
		}
		if err := e.checkRestrictingReferences(stmt.Table, row); err != nil {
			return 0, err
		}
		toDelete = append(toDelete, rp)
		toDeleteRows = append(toDeleteRows, row)
	}

	count := 0
	for i, rp := range toDelete {
		row := toDeleteRows[i]
		if err := e.fireTriggers(txnID, &schema, "DELETE", "BEFORE", row); err != nil {
			return count, err
		}

		data, err := heapEncodeRow(&schema, row)
		if err != nil {
			return count, err
		}
		if err := e.applyIndexDelete(stmt.Table, row, rp); err != nil {
			return count, err
		}

		lsn := e.wal.AllocateLSN()
		if err := e.heapMgr.DeleteRow(&rp, lsn); err != nil {
			return count, err
		}
		op := &types.Operation{Type: types.OpDelete, TxnID: txnID, LSN: lsn, Table: stmt.Table, RowPtr: &rp, BeforeData: data}
		if err := e.wal.AppendToBuffer(lsn, op); err != nil {
			return count, err
		}

		if t != nil {
			pk, _ := rowPrimaryKeyBytes(&schema, row)
			t.RecordDelete(stmt.Table, rp, data, pk)
		}
		if err := e.fireTriggers(txnID, &schema, "DELETE", "AFTER", row); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// checkForeignKeys enforces that every FK column on row resolves to an
// existing row in its referenced table's primary key (spec.md §4.6 point
// 3): it consults the referenced table's PK index rather than scanning.
func (e *StorageEngine) checkForeignKeys(schema *types.TableSchema, row *types.Row) error {
	for _, fk := range schema.ForeignKeys {
		raw, ok := row.Values[strings.ToLower(fk.Column)]
		if !ok {
			continue
		}
		v, ok := raw.(types.Value)
		if !ok || v.Null {
			continue
		}
		refSchema, err := e.cat.GetTableSchema(fk.RefTable)
		if err != nil {
			return dberr.Wrap(dberr.ConstraintViolation, err, "foreign key %s references unknown table %q", fk.Column, fk.RefTable)
		}
		refIdx, err := e.cat.GetIndex(fk.RefTable, pkIndexName)
		if err != nil {
			return dberr.Wrap(dberr.ConstraintViolation, err, "referenced table %q has no primary key index", fk.RefTable)
		}
		_ = refSchema
		tree, err := e.idxMgr.GetOrCreateIndex(fk.RefTable, pkIndexName, refIdx.Unique, bplustree.DefaultKeyCompare)
		if err != nil {
			return err
		}
		key, err := bplustree.EncodeKey(v)
		if err != nil {
			return err
		}
		if _, err := tree.Search(key); err != nil {
			return dberr.New(dberr.ConstraintViolation, "foreign key %s=%v has no matching row in %s.%s",
				fk.Column, v, fk.RefTable, fk.RefColumn)
		}
	}
	return nil
}

// checkRestrictingReferences enforces RESTRICT: a row cannot be deleted
// while some other table's FK still points at it (spec.md §4.6 point 5,
// CASCADE explicitly out of scope).
func (e *StorageEngine) checkRestrictingReferences(table string, row *types.Row) error {
	pkCol, ok := pkColumnName(mustSchema(e, table))
	if !ok {
		return nil
	}
	pkVal, ok := row.Values[strings.ToLower(pkCol)].(types.Value)
	if !ok {
		return nil
	}
	for _, otherTable := range e.cat.ListTables() {
		if otherTable == table {
			continue
		}
		otherSchema, err := e.cat.GetTableSchema(otherTable)
		if err != nil {
			continue
		}
		for _, fk := range otherSchema.ForeignKeys {
			if fk.RefTable != table || fk.RefColumn != pkCol {
				continue
			}
			hf, err := e.heapMgr.GetHeapFileByTable(otherTable)
			if err != nil {
				continue
			}
			for _, rp := range hf.GetAllRowPointers() {
				other, err := e.heapMgr.GetLogicalRow(&rp, &otherSchema)
				if err != nil {
					continue
				}
				v, ok := other.Values[strings.ToLower(fk.Column)].(types.Value)
				if ok && !v.Null && types.Compare(v, pkVal) == 0 {
					return dberr.New(dberr.ConstraintViolation,
						"cannot delete %s: referenced by %s.%s", table, otherTable, fk.Column)
				}
			}
		}
	}
	return nil
}

func mustSchema(e *StorageEngine, table string) *types.TableSchema {
	s, err := e.cat.GetTableSchema(table)
	if err != nil {
		return &types.TableSchema{}
	}
	return &s
}

func rowPrimaryKeyBytes(schema *types.TableSchema, row *types.Row) ([]byte, error) {
	col, ok := pkColumnName(schema)
	if !ok {
		return nil, nil
	}
	v, ok := row.Values[strings.ToLower(col)].(types.Value)
	if !ok {
		return nil, nil
	}
	return bplustree.EncodeKey(v)
}
