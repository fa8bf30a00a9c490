package engine

import (
	"github.com/google/uuid"

	"coredb/dberr"
	"coredb/planner"
	"coredb/sql/ast"
)

// cursor holds one session's DECLARE'd query open across statements, per
// spec.md §4.5's cursor surface (DECLARE/OPEN/FETCH/CLOSE).
type cursor struct {
	query *ast.SelectStmt
	op    planner.Operator
	open  bool
}

func (e *StorageEngine) DeclareCursor(sess uuid.UUID, stmt *ast.DeclareCursorStmt) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sessionFor(sess)
	s.cursors[stmt.Name] = &cursor{query: stmt.Query}
	return nil
}

func (e *StorageEngine) OpenCursor(sess uuid.UUID, stmt *ast.OpenCursorStmt) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sessionFor(sess)
	c, ok := s.cursors[stmt.Name]
	if !ok {
		return dberr.New(dberr.NotFound, "no such cursor %q", stmt.Name)
	}
	op, err := planner.Build(c.query, e.execContext())
	if err != nil {
		return err
	}
	if err := op.Open(); err != nil {
		return err
	}
	c.op = op
	c.open = true
	return nil
}

// FetchCursor returns the next row, or a nil Tuple when the cursor is
// exhausted.
func (e *StorageEngine) FetchCursor(sess uuid.UUID, stmt *ast.FetchCursorStmt) (planner.Tuple, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sessionFor(sess)
	c, ok := s.cursors[stmt.Name]
	if !ok {
		return nil, dberr.New(dberr.NotFound, "no such cursor %q", stmt.Name)
	}
	if !c.open {
		return nil, dberr.New(dberr.SemanticError, "cursor %q is not open", stmt.Name)
	}
	return c.op.Next()
}

func (e *StorageEngine) CloseCursor(sess uuid.UUID, stmt *ast.CloseCursorStmt) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sessionFor(sess)
	c, ok := s.cursors[stmt.Name]
	if !ok {
		return dberr.New(dberr.NotFound, "no such cursor %q", stmt.Name)
	}
	if c.open {
		c.open = false
		return c.op.Close()
	}
	return nil
}
