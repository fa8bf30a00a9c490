package engine

import (
	"coredb/planner"
	"coredb/sql/ast"
)

// Select runs stmt to completion and returns every resulting row as a
// Tuple, in the order the operator tree produced them. Callers that need
// streaming results use a cursor (DeclareCursor/OpenCursor/FetchCursor)
// instead.
func (e *StorageEngine) Select(stmt *ast.SelectStmt) ([]planner.Tuple, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	op, err := planner.Build(stmt, e.execContext())
	if err != nil {
		return nil, err
	}
	if err := op.Open(); err != nil {
		return nil, err
	}
	defer op.Close()

	var rows []planner.Tuple
	for {
		row, err := op.Next()
		if err != nil {
			return rows, err
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Explain returns planner.Explain's textual plan for stmt, without running
// it.
func (e *StorageEngine) Explain(stmt *ast.SelectStmt) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return planner.Explain(stmt, e.execContext())
}
