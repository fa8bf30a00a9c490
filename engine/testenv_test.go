package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"coredb/sql/ast"
	"coredb/sql/parser"
)

// newTestEngine returns a fresh engine backed by an in-memory filesystem,
// with a database already selected and a session ready to use.
func newTestEngine(t *testing.T) (*StorageEngine, uuid.UUID) {
	t.Helper()
	e, err := NewStorageEngine("/data", afero.NewMemMapFs(), 64, nil)
	require.NoError(t, err)
	require.NoError(t, e.CreateDatabase("school"))
	require.NoError(t, e.UseDatabase("school"))
	return e, uuid.New()
}

func mustExec(t *testing.T, e *StorageEngine, sess uuid.UUID, sql string) *Result {
	t.Helper()
	r, err := e.ExecuteSQL(sess, sql)
	require.NoError(t, err, "executing %q", sql)
	return r
}

func mustParseSelect(t *testing.T, sql string) *ast.SelectStmt {
	t.Helper()
	stmt, err := parser.Parse(sql)
	require.NoError(t, err)
	sel, ok := stmt.(*ast.SelectStmt)
	require.True(t, ok, "%q did not parse as a SELECT", sql)
	return sel
}

func mustParseInsert(t *testing.T, sql string) *ast.InsertStmt {
	t.Helper()
	stmt, err := parser.Parse(sql)
	require.NoError(t, err)
	ins, ok := stmt.(*ast.InsertStmt)
	require.True(t, ok, "%q did not parse as an INSERT", sql)
	return ins
}
