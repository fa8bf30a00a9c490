package engine

import (
	"fmt"

	"github.com/google/uuid"

	"coredb/dberr"
	"coredb/planner"
	"coredb/sql/ast"
	"coredb/sql/parser"
	"coredb/txn"
	"coredb/types"
)

// ExecuteSQL parses sql and runs it for sess, a convenience wrapper around
// Execute for callers that don't already hold a parsed ast.Statement (the
// REPL, the seed command).
func (e *StorageEngine) ExecuteSQL(sess uuid.UUID, sql string) (*Result, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	return e.Execute(sess, stmt)
}

// Result is what Execute returns for any statement: a row set for
// queries, or a row count / message for everything else.
type Result struct {
	Rows         []planner.Tuple
	RowsAffected int
	Message      string
}

// Execute runs one parsed statement for sess. Outside an explicit
// transaction, the statement runs as its own implicit transaction,
// committed on success and rolled back whole on error (spec.md §7). Inside
// an explicit transaction, a failing statement marks it PendingAbort
// instead of auto-rolling back, so every later statement on the session
// fails TXN_ABORTED until an explicit ROLLBACK.
func (e *StorageEngine) Execute(sess uuid.UUID, stmt ast.Statement) (*Result, error) {
	switch s := stmt.(type) {
	case *ast.BeginStmt:
		txnID, err := e.Begin(sess)
		if err != nil {
			return nil, err
		}
		return &Result{Message: fmt.Sprintf("transaction %d started", txnID)}, nil
	case *ast.CommitStmt:
		if err := e.Commit(sess); err != nil {
			return nil, err
		}
		return &Result{Message: "commit"}, nil
	case *ast.RollbackStmt:
		if err := e.Rollback(sess); err != nil {
			return nil, err
		}
		return &Result{Message: "rollback"}, nil

	case *ast.CreateDatabaseStmt:
		return e.withNoTxn(func() error { return e.CreateDatabase(s.Name) }, "database created")
	case *ast.UseDatabaseStmt:
		return e.withNoTxn(func() error { return e.UseDatabase(s.Name) }, "using "+s.Name)

	case *ast.SelectStmt:
		rows, err := e.Select(s)
		if err != nil {
			return nil, err
		}
		return &Result{Rows: rows}, nil
	case *ast.ExplainStmt:
		sel, ok := s.Statement.(*ast.SelectStmt)
		if !ok {
			return nil, dberr.New(dberr.SemanticError, "EXPLAIN only supports SELECT")
		}
		text, err := e.Explain(sel)
		if err != nil {
			return nil, err
		}
		return &Result{Message: text}, nil

	case *ast.InsertStmt:
		return e.withMutation(sess, func(txnID uint64) (int, error) { return e.insertLocked(txnID, s) })
	case *ast.UpdateStmt:
		return e.withMutation(sess, func(txnID uint64) (int, error) { return e.updateLocked(txnID, s) })
	case *ast.DeleteStmt:
		return e.withMutation(sess, func(txnID uint64) (int, error) { return e.deleteLocked(txnID, s) })

	case *ast.CreateTableStmt:
		return e.withNoTxn(func() error { return e.CreateTable(0, s) }, "table created")
	case *ast.DropTableStmt:
		return e.withNoTxn(func() error { return e.DropTable(0, s) }, "table dropped")
	case *ast.CreateIndexStmt:
		return e.withNoTxn(func() error { return e.CreateIndex(0, s) }, "index created")
	case *ast.DropIndexStmt:
		return e.withNoTxn(func() error { return e.DropIndex(0, s) }, "index dropped")
	case *ast.CreateViewStmt:
		return e.withNoTxn(func() error { return e.CreateView(s) }, "view created")
	case *ast.DropViewStmt:
		return e.withNoTxn(func() error { return e.DropView(s) }, "view dropped")
	case *ast.AlterViewStmt:
		return e.withNoTxn(func() error { return e.AlterView(s) }, "view altered")
	case *ast.CreateTriggerStmt:
		return e.withNoTxn(func() error { return e.CreateTrigger(s) }, "trigger created")
	case *ast.DropTriggerStmt:
		return e.withNoTxn(func() error { return e.DropTrigger(s) }, "trigger dropped")

	case *ast.DeclareCursorStmt:
		return e.withNoTxn(func() error { return e.DeclareCursor(sess, s) }, "cursor declared")
	case *ast.OpenCursorStmt:
		return e.withNoTxn(func() error { return e.OpenCursor(sess, s) }, "cursor opened")
	case *ast.FetchCursorStmt:
		row, err := e.FetchCursor(sess, s)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return &Result{Message: "no more rows"}, nil
		}
		return &Result{Rows: []planner.Tuple{row}}, nil
	case *ast.CloseCursorStmt:
		return e.withNoTxn(func() error { return e.CloseCursor(sess, s) }, "cursor closed")

	case *ast.ShowTablesStmt:
		var rows []planner.Tuple
		for _, t := range e.ShowTables(s) {
			rows = append(rows, planner.Tuple{".table": types.StrValue(t)})
		}
		return &Result{Rows: rows}, nil
	case *ast.ShowColumnsStmt:
		cols, err := e.ShowColumns(s)
		if err != nil {
			return nil, err
		}
		var rows []planner.Tuple
		for _, c := range cols {
			rows = append(rows, planner.Tuple{".column": types.StrValue(c)})
		}
		return &Result{Rows: rows}, nil
	case *ast.ShowIndexStmt:
		idxs, err := e.ShowIndex(s)
		if err != nil {
			return nil, err
		}
		var rows []planner.Tuple
		for _, idx := range idxs {
			rows = append(rows, planner.Tuple{".index": types.StrValue(idx.Name)})
		}
		return &Result{Rows: rows}, nil
	case *ast.ShowTriggersStmt:
		var rows []planner.Tuple
		for _, tr := range e.ShowTriggers(s) {
			rows = append(rows, planner.Tuple{".trigger": types.StrValue(tr.Name)})
		}
		return &Result{Rows: rows}, nil
	case *ast.ShowViewsStmt:
		var rows []planner.Tuple
		for _, v := range e.ShowViews(s) {
			rows = append(rows, planner.Tuple{".view": types.StrValue(v.Name)})
		}
		return &Result{Rows: rows}, nil

	default:
		return nil, dberr.New(dberr.SemanticError, "unsupported statement %T", stmt)
	}
}

// withNoTxn runs f (a catalog-level operation that is its own unit of work
// and does not participate in the session's transaction) and wraps the
// result in a Result carrying msg on success.
func (e *StorageEngine) withNoTxn(f func() error, msg string) (*Result, error) {
	if err := f(); err != nil {
		return nil, err
	}
	return &Result{Message: msg}, nil
}

// withMutation runs f under sess's open transaction if one exists, or
// under a synthetic implicit transaction otherwise, per Execute's doc.
func (e *StorageEngine) withMutation(sess uuid.UUID, f func(txnID uint64) (int, error)) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.sessionFor(sess)
	if s.txnID != 0 {
		txnID := s.txnID
		t := e.txns.GetTransaction(txnID)
		if t != nil && t.State == txn.StatePendingAbort {
			return nil, dberr.New(dberr.TxnAborted, "transaction %d failed earlier; ROLLBACK required", txnID)
		}
		n, err := f(txnID)
		if err != nil {
			e.txns.MarkFailed(txnID)
			return nil, err
		}
		return &Result{RowsAffected: n}, nil
	}

	txnID, err := e.beginLocked(sess)
	if err != nil {
		return nil, err
	}
	n, err := f(txnID)
	if err != nil {
		_ = e.rollbackLocked(sess)
		return nil, err
	}
	if err := e.commitLocked(sess); err != nil {
		return nil, err
	}
	return &Result{RowsAffected: n}, nil
}
