package planner

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"coredb/catalog"
	"coredb/sql/ast"
	"coredb/sql/parser"
	"coredb/storage/bplustree"
	"coredb/storage/buffer"
	"coredb/storage/diskmanager"
	"coredb/storage/heap"
	"coredb/types"
)

type testEnv struct {
	cat *catalog.Manager
	hfm *heap.HeapFileManager
	ifm *bplustree.IndexFileManager
	ctx *ExecContext
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fs := afero.NewMemMapFs()
	disk := diskmanager.New(fs, nil)
	pool := buffer.NewPool(64, disk, nil)

	cat, err := catalog.NewManager("/data", fs, nil)
	require.NoError(t, err)
	require.NoError(t, cat.CreateDatabase("school"))
	require.NoError(t, cat.UseDatabase("school"))

	hfm := heap.NewHeapFileManager("/data", disk, pool, nil)
	ifm := bplustree.NewIndexFileManager("/data", disk, pool, nil)

	env := &testEnv{cat: cat, hfm: hfm, ifm: ifm}
	env.ctx = NewExecContext(cat, hfm, ifm, nil)
	return env
}

func (e *testEnv) createTable(t *testing.T, schema types.TableSchema) {
	t.Helper()
	heapID, _, err := e.cat.RegisterNewTable(schema)
	require.NoError(t, err)
	require.NoError(t, e.hfm.CreateHeapFile(schema.TableName, heapID))
}

func (e *testEnv) insert(t *testing.T, table string, values map[string]types.Value) *types.RowPointer {
	t.Helper()
	schema, err := e.cat.GetTableSchema(table)
	require.NoError(t, err)
	fileID, err := e.cat.GetTableFileID(table)
	require.NoError(t, err)
	row := &types.Row{Values: make(map[string]interface{}, len(values))}
	for k, v := range values {
		row.Values[k] = v
	}
	rp, err := e.hfm.InsertLogicalRow(fileID, &schema, row, nil, 1)
	require.NoError(t, err)
	return rp
}

func studentsSchema() types.TableSchema {
	return types.TableSchema{
		TableName: "students",
		Columns: []types.ColumnDef{
			{Name: "id", Type: types.ColInt, IsPrimaryKey: true, NotNull: true},
			{Name: "name", Type: types.ColVarchar, Length: 64, NotNull: true},
			{Name: "age", Type: types.ColInt, NotNull: true},
		},
	}
}

// seedStudents inserts four rows and returns their row pointers in
// insertion order, so a test that builds an index by hand can point each
// key at the row that actually holds it.
func (e *testEnv) seedStudents(t *testing.T) []*types.RowPointer {
	t.Helper()
	e.createTable(t, studentsSchema())
	rows := []map[string]types.Value{
		{"id": types.IntValue(1), "name": types.StrValue("Alice"), "age": types.IntValue(20)},
		{"id": types.IntValue(2), "name": types.StrValue("Bob"), "age": types.IntValue(17)},
		{"id": types.IntValue(3), "name": types.StrValue("Carol"), "age": types.IntValue(22)},
		{"id": types.IntValue(4), "name": types.StrValue("Dave"), "age": types.IntValue(19)},
	}
	var ptrs []*types.RowPointer
	for _, r := range rows {
		ptrs = append(ptrs, e.insert(t, "students", r))
	}
	return ptrs
}

// indexStudentsByID registers a unique index on id and populates it from
// ptrs, which must be in ascending id order (1..len(ptrs)).
func (e *testEnv) indexStudentsByID(t *testing.T, ptrs []*types.RowPointer) {
	t.Helper()
	fileID, err := e.cat.AllocateFileID()
	require.NoError(t, err)
	require.NoError(t, e.cat.RegisterIndex(catalog.IndexDef{
		Name: "idx_id", Table: "students", Columns: []string{"id"}, Unique: true, FileID: fileID,
	}))
	tree, err := e.ifm.GetOrCreateIndex("students", "idx_id", true, bplustree.DefaultKeyCompare)
	require.NoError(t, err)
	for i, rp := range ptrs {
		key, err := bplustree.EncodeKey(types.IntValue(int64(i + 1)))
		require.NoError(t, err)
		require.NoError(t, tree.Insert(key, bplustree.EncodeRID(*rp), *rp))
	}
}

func parseSelect(t *testing.T, sql string) *ast.SelectStmt {
	t.Helper()
	stmt, err := parser.Parse(sql)
	require.NoError(t, err)
	sel, ok := stmt.(*ast.SelectStmt)
	require.True(t, ok, "expected a SELECT statement")
	return sel
}

// drain runs sql end to end through Build/Optimize and returns every tuple.
func drainRows(t *testing.T, ctx *ExecContext, sql string) []Tuple {
	t.Helper()
	op, err := Build(parseSelect(t, sql), ctx)
	require.NoError(t, err)
	require.NoError(t, op.Open())
	defer op.Close()

	var out []Tuple
	for {
		row, err := op.Next()
		require.NoError(t, err)
		if row == nil {
			break
		}
		out = append(out, row)
	}
	return out
}

func TestSeqScanFilterProjectOrder(t *testing.T) {
	env := newTestEnv(t)
	env.seedStudents(t)

	rows := drainRows(t, env.ctx, "SELECT name, age FROM students WHERE age >= 18 ORDER BY age DESC")
	require.Len(t, rows, 3)
	require.Equal(t, "Carol", rows[0][qualify("", "name")].Str)
	require.Equal(t, "Alice", rows[1][qualify("", "name")].Str)
	require.Equal(t, "Dave", rows[2][qualify("", "name")].Str)
}

func TestStarProjectionKeepsQualifiedColumns(t *testing.T) {
	env := newTestEnv(t)
	env.seedStudents(t)

	rows := drainRows(t, env.ctx, "SELECT * FROM students WHERE id = 2")
	require.Len(t, rows, 1)
	require.Equal(t, int64(17), rows[0][qualify("students", "age")].Int)
}

func TestLimit(t *testing.T) {
	env := newTestEnv(t)
	env.seedStudents(t)

	rows := drainRows(t, env.ctx, "SELECT name FROM students ORDER BY id ASC LIMIT 2")
	require.Len(t, rows, 2)
	require.Equal(t, "Alice", rows[0][qualify("", "name")].Str)
	require.Equal(t, "Bob", rows[1][qualify("", "name")].Str)
}

func TestIndexScanSubstitutionForEquality(t *testing.T) {
	env := newTestEnv(t)
	ptrs := env.seedStudents(t)
	env.indexStudentsByID(t, ptrs)

	explain, err := Explain(parseSelect(t, "SELECT name FROM students WHERE id = 3"), env.ctx)
	require.NoError(t, err)
	require.Contains(t, explain, "IndexScan")
	require.NotContains(t, explain, "SeqScan")

	rows := drainRows(t, env.ctx, "SELECT name FROM students WHERE id = 3")
	require.Len(t, rows, 1)
	require.Equal(t, "Carol", rows[0][qualify("", "name")].Str)
}

func TestJoinInner(t *testing.T) {
	env := newTestEnv(t)
	env.createTable(t, studentsSchema())
	env.createTable(t, types.TableSchema{
		TableName: "enrollments",
		Columns: []types.ColumnDef{
			{Name: "student_id", Type: types.ColInt, NotNull: true},
			{Name: "course", Type: types.ColVarchar, Length: 32, NotNull: true},
		},
	})
	env.insert(t, "students", map[string]types.Value{"id": types.IntValue(1), "name": types.StrValue("Alice"), "age": types.IntValue(20)})
	env.insert(t, "students", map[string]types.Value{"id": types.IntValue(2), "name": types.StrValue("Bob"), "age": types.IntValue(17)})
	env.insert(t, "enrollments", map[string]types.Value{"student_id": types.IntValue(1), "course": types.StrValue("Math")})
	env.insert(t, "enrollments", map[string]types.Value{"student_id": types.IntValue(1), "course": types.StrValue("Art")})

	rows := drainRows(t, env.ctx, "SELECT s.name, e.course FROM students s JOIN enrollments e ON s.id = e.student_id")
	require.Len(t, rows, 2)
}

func TestJoinLeftPadsUnmatched(t *testing.T) {
	env := newTestEnv(t)
	env.createTable(t, studentsSchema())
	env.createTable(t, types.TableSchema{
		TableName: "enrollments",
		Columns: []types.ColumnDef{
			{Name: "student_id", Type: types.ColInt, NotNull: true},
			{Name: "course", Type: types.ColVarchar, Length: 32, NotNull: true},
		},
	})
	env.insert(t, "students", map[string]types.Value{"id": types.IntValue(1), "name": types.StrValue("Alice"), "age": types.IntValue(20)})
	env.insert(t, "students", map[string]types.Value{"id": types.IntValue(2), "name": types.StrValue("Bob"), "age": types.IntValue(17)})
	env.insert(t, "enrollments", map[string]types.Value{"student_id": types.IntValue(1), "course": types.StrValue("Math")})

	rows := drainRows(t, env.ctx, "SELECT s.name, e.course FROM students s LEFT JOIN enrollments e ON s.id = e.student_id ORDER BY s.name ASC")
	require.Len(t, rows, 2)
	require.True(t, rows[1][qualify("e", "course")].Null)
}

func TestGroupByAggregateHaving(t *testing.T) {
	env := newTestEnv(t)
	env.createTable(t, types.TableSchema{
		TableName: "orders",
		Columns: []types.ColumnDef{
			{Name: "customer", Type: types.ColVarchar, Length: 32, NotNull: true},
			{Name: "amount", Type: types.ColInt, NotNull: true},
		},
	})
	env.insert(t, "orders", map[string]types.Value{"customer": types.StrValue("x"), "amount": types.IntValue(10)})
	env.insert(t, "orders", map[string]types.Value{"customer": types.StrValue("x"), "amount": types.IntValue(5)})
	env.insert(t, "orders", map[string]types.Value{"customer": types.StrValue("y"), "amount": types.IntValue(1)})

	rows := drainRows(t, env.ctx, "SELECT customer, SUM(amount) total FROM orders GROUP BY customer HAVING SUM(amount) > 5")
	require.Len(t, rows, 1)
	require.Equal(t, "x", rows[0][qualify("", "customer")].Str)
	require.Equal(t, int64(15), rows[0][qualify("", "total")].Int)
}

func TestDistinct(t *testing.T) {
	env := newTestEnv(t)
	env.createTable(t, types.TableSchema{
		TableName: "tags",
		Columns: []types.ColumnDef{
			{Name: "label", Type: types.ColVarchar, Length: 32, NotNull: true},
		},
	})
	env.insert(t, "tags", map[string]types.Value{"label": types.StrValue("a")})
	env.insert(t, "tags", map[string]types.Value{"label": types.StrValue("a")})
	env.insert(t, "tags", map[string]types.Value{"label": types.StrValue("b")})

	rows := drainRows(t, env.ctx, "SELECT DISTINCT label FROM tags")
	require.Len(t, rows, 2)
}

func TestViewExpansion(t *testing.T) {
	env := newTestEnv(t)
	env.seedStudents(t)
	require.NoError(t, env.cat.CreateView(catalog.ViewDef{
		Name:  "adults",
		Query: "SELECT * FROM students WHERE age >= 18",
	}))

	rows := drainRows(t, env.ctx, "SELECT v.name FROM adults v ORDER BY v.name ASC")
	require.Len(t, rows, 3)
	require.Equal(t, "Alice", rows[0][qualify("", "name")].Str)
}

func TestEvaluatorArithmeticAndNullPropagation(t *testing.T) {
	ev := NewEvaluator(nil)
	row := Tuple{}

	v, err := ev.Eval(&ast.BinaryExpr{Op: "+", Left: &ast.NumberLiteral{Text: "2"}, Right: &ast.NumberLiteral{Text: "3"}}, row)
	require.NoError(t, err)
	require.Equal(t, int64(5), v.Int)

	v, err = ev.Eval(&ast.BinaryExpr{Op: "=", Left: &ast.NullLiteral{}, Right: &ast.NumberLiteral{Text: "1"}}, row)
	require.NoError(t, err)
	require.False(t, v.Bool, "a comparison against NULL is never true")
}

func TestEvaluatorBetweenAndLike(t *testing.T) {
	ev := NewEvaluator(nil)
	row := Tuple{}

	v, err := ev.Eval(&ast.BetweenExpr{
		Expr: &ast.NumberLiteral{Text: "5"},
		Low:  &ast.NumberLiteral{Text: "1"},
		High: &ast.NumberLiteral{Text: "10"},
	}, row)
	require.NoError(t, err)
	require.True(t, v.Bool)

	v, err = ev.Eval(&ast.LikeExpr{
		Expr:    &ast.StringLiteral{Value: "hello world"},
		Pattern: &ast.StringLiteral{Value: "hello%"},
	}, row)
	require.NoError(t, err)
	require.True(t, v.Bool)
}

func TestEvaluatorDivisionByZero(t *testing.T) {
	ev := NewEvaluator(nil)
	_, err := ev.Eval(&ast.BinaryExpr{Op: "/", Left: &ast.NumberLiteral{Text: "1"}, Right: &ast.NumberLiteral{Text: "0"}}, Tuple{})
	require.Error(t, err)
}

func TestSortElisionForIndexOrderedScan(t *testing.T) {
	env := newTestEnv(t)
	ptrs := env.seedStudents(t)
	env.indexStudentsByID(t, ptrs)

	explain, err := Explain(parseSelect(t, "SELECT id FROM students WHERE id >= 2 ORDER BY id ASC"), env.ctx)
	require.NoError(t, err)
	require.NotContains(t, explain, "Sort", "an index-ordered scan should make the explicit Sort node redundant")

	rows := drainRows(t, env.ctx, "SELECT id FROM students WHERE id >= 2 ORDER BY id ASC")
	require.Len(t, rows, 3)
	require.Equal(t, int64(2), rows[0][qualify("", "id")].Int)
	require.Equal(t, int64(4), rows[2][qualify("", "id")].Int)
}
