package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coredb/dberr"
	"coredb/sql/ast"
)

func TestParseSimpleSelect(t *testing.T) {
	stmt, err := Parse("SELECT id, name FROM students WHERE age > 18")
	require.NoError(t, err)

	sel, ok := stmt.(*ast.SelectStmt)
	require.True(t, ok)
	require.Equal(t, "students", sel.From)
	require.Len(t, sel.Columns, 2)
	require.NotNil(t, sel.Where)

	where, ok := sel.Where.(*ast.BinaryExpr)
	require.True(t, ok)
	require.Equal(t, ">", where.Op)
}

func TestParseSelectStar(t *testing.T) {
	stmt, err := Parse("SELECT * FROM students")
	require.NoError(t, err)
	sel := stmt.(*ast.SelectStmt)
	require.True(t, sel.Columns[0].Star)
}

func TestParseSelectWithJoinAndOrderAndLimit(t *testing.T) {
	stmt, err := Parse(`SELECT s.name, c.title FROM students s
		INNER JOIN courses c ON s.id = c.student_id
		ORDER BY s.name DESC LIMIT 10`)
	require.NoError(t, err)
	sel := stmt.(*ast.SelectStmt)
	require.Equal(t, "s", sel.FromAlias)
	require.Len(t, sel.Joins, 1)
	require.Equal(t, ast.JoinInner, sel.Joins[0].Type)
	require.Len(t, sel.OrderBy, 1)
	require.True(t, sel.OrderBy[0].Desc)
	require.NotNil(t, sel.Limit)
	require.Equal(t, int64(10), *sel.Limit)
}

func TestParseSelectGroupByHavingCount(t *testing.T) {
	stmt, err := Parse("SELECT dept, COUNT(*) FROM employees GROUP BY dept HAVING COUNT(*) > 1")
	require.NoError(t, err)
	sel := stmt.(*ast.SelectStmt)
	require.Len(t, sel.GroupBy, 1)
	require.NotNil(t, sel.Having)

	call, ok := sel.Columns[1].Expr.(*ast.FuncCall)
	require.True(t, ok)
	require.Equal(t, "COUNT", call.Name)
	require.True(t, call.Star)
}

func TestParseWhereBetweenLikeIn(t *testing.T) {
	stmt, err := Parse(`SELECT * FROM students WHERE age BETWEEN 18 AND 25
		AND name LIKE 'A%' AND id IN (1, 2, 3)`)
	require.NoError(t, err)
	sel := stmt.(*ast.SelectStmt)
	require.NotNil(t, sel.Where)

	top, ok := sel.Where.(*ast.BinaryExpr)
	require.True(t, ok)
	require.Equal(t, "AND", top.Op)
}

func TestParseWhereIsNullAndNot(t *testing.T) {
	stmt, err := Parse("SELECT * FROM students WHERE deleted_at IS NULL")
	require.NoError(t, err)
	sel := stmt.(*ast.SelectStmt)
	isNull, ok := sel.Where.(*ast.IsNullExpr)
	require.True(t, ok)
	require.False(t, isNull.Not)
}

func TestParseSubqueryInWhere(t *testing.T) {
	stmt, err := Parse(`SELECT id FROM students WHERE id IN (SELECT student_id FROM enrollments)`)
	require.NoError(t, err)
	sel := stmt.(*ast.SelectStmt)
	in, ok := sel.Where.(*ast.InExpr)
	require.True(t, ok)
	require.NotNil(t, in.Subquery)
	require.Equal(t, "enrollments", in.Subquery.From)
}

func TestParseInsertWithColumnList(t *testing.T) {
	stmt, err := Parse("INSERT INTO students (id, name) VALUES (1, 'Ada'), (2, 'Lin')")
	require.NoError(t, err)
	ins := stmt.(*ast.InsertStmt)
	require.Equal(t, []string{"id", "name"}, ins.Columns)
	require.Len(t, ins.Values, 2)
}

func TestParseInsertWithoutColumnList(t *testing.T) {
	stmt, err := Parse("INSERT INTO students VALUES (1, 'Ada')")
	require.NoError(t, err)
	ins := stmt.(*ast.InsertStmt)
	require.Empty(t, ins.Columns)
	require.Len(t, ins.Values, 1)
	require.Len(t, ins.Values[0], 2)
}

func TestParseUpdateWithWhere(t *testing.T) {
	stmt, err := Parse("UPDATE students SET age = 21, name = 'Ada' WHERE id = 1")
	require.NoError(t, err)
	upd := stmt.(*ast.UpdateStmt)
	require.Len(t, upd.Assignments, 2)
	require.NotNil(t, upd.Where)
}

func TestParseDeleteWithWhere(t *testing.T) {
	stmt, err := Parse("DELETE FROM students WHERE id = 1")
	require.NoError(t, err)
	del := stmt.(*ast.DeleteStmt)
	require.Equal(t, "students", del.Table)
	require.NotNil(t, del.Where)
}

func TestParseCreateTableWithConstraints(t *testing.T) {
	stmt, err := Parse(`CREATE TABLE students (
		id INT PRIMARY KEY,
		name VARCHAR(50) NOT NULL,
		gpa DECIMAL(3,2) DEFAULT 0,
		advisor_id INT,
		FOREIGN KEY (advisor_id) REFERENCES staff(id),
		CHECK (gpa >= 0)
	)`)
	require.NoError(t, err)
	ct := stmt.(*ast.CreateTableStmt)
	require.Equal(t, "students", ct.Table)
	require.Len(t, ct.Columns, 4)
	require.True(t, ct.Columns[0].PrimaryKey)
	require.True(t, ct.Columns[1].NotNull)
	require.Equal(t, 3, ct.Columns[2].Precision)
	require.Equal(t, 2, ct.Columns[2].Scale)
	require.Len(t, ct.ForeignKeys, 1)
	require.Equal(t, "staff", ct.ForeignKeys[0].RefTable)
	require.Len(t, ct.Checks, 1)
}

func TestParseCreateUniqueIndex(t *testing.T) {
	stmt, err := Parse("CREATE UNIQUE INDEX idx_email ON students (email)")
	require.NoError(t, err)
	ci := stmt.(*ast.CreateIndexStmt)
	require.True(t, ci.Unique)
	require.Equal(t, "students", ci.Table)
	require.Equal(t, []string{"email"}, ci.Columns)
}

func TestParseCreateViewCapturesRawQuery(t *testing.T) {
	stmt, err := Parse("CREATE VIEW honor_roll AS SELECT id, name FROM students WHERE gpa > 3.5")
	require.NoError(t, err)
	cv := stmt.(*ast.CreateViewStmt)
	require.Equal(t, "honor_roll", cv.Name)
	require.NotNil(t, cv.Query)
	require.Equal(t, "SELECT id, name FROM students WHERE gpa > 3.5", cv.RawQuery)
}

func TestParseCreateTrigger(t *testing.T) {
	stmt, err := Parse(`CREATE TRIGGER trg_audit BEFORE INSERT ON students
		BEGIN INSERT INTO audit_log VALUES (1) END`)
	require.NoError(t, err)
	ct := stmt.(*ast.CreateTriggerStmt)
	require.Equal(t, "BEFORE", ct.Timing)
	require.Equal(t, "INSERT", ct.Event)
	require.Equal(t, "students", ct.Table)
	require.NotNil(t, ct.Body)
}

func TestParseDropStatements(t *testing.T) {
	stmt, err := Parse("DROP TABLE students")
	require.NoError(t, err)
	require.Equal(t, "students", stmt.(*ast.DropTableStmt).Table)

	stmt, err = Parse("DROP INDEX idx_email ON students")
	require.NoError(t, err)
	di := stmt.(*ast.DropIndexStmt)
	require.Equal(t, "idx_email", di.Name)
	require.Equal(t, "students", di.Table)
}

func TestParseTransactionControl(t *testing.T) {
	stmt, err := Parse("BEGIN TRANSACTION")
	require.NoError(t, err)
	require.IsType(t, &ast.BeginStmt{}, stmt)

	stmt, err = Parse("COMMIT")
	require.NoError(t, err)
	require.IsType(t, &ast.CommitStmt{}, stmt)

	stmt, err = Parse("ROLLBACK")
	require.NoError(t, err)
	require.IsType(t, &ast.RollbackStmt{}, stmt)
}

func TestParseCursorStatements(t *testing.T) {
	stmt, err := Parse("DECLARE c CURSOR FOR SELECT id FROM students")
	require.NoError(t, err)
	dc := stmt.(*ast.DeclareCursorStmt)
	require.Equal(t, "c", dc.Name)
	require.NotNil(t, dc.Query)

	stmt, err = Parse("OPEN c")
	require.NoError(t, err)
	require.Equal(t, "c", stmt.(*ast.OpenCursorStmt).Name)

	stmt, err = Parse("FETCH FROM c")
	require.NoError(t, err)
	require.Equal(t, "c", stmt.(*ast.FetchCursorStmt).Name)

	stmt, err = Parse("CLOSE c")
	require.NoError(t, err)
	require.Equal(t, "c", stmt.(*ast.CloseCursorStmt).Name)
}

func TestParseShowVariants(t *testing.T) {
	stmt, err := Parse("SHOW TABLES")
	require.NoError(t, err)
	require.IsType(t, &ast.ShowTablesStmt{}, stmt)

	stmt, err = Parse("SHOW COLUMNS FROM students")
	require.NoError(t, err)
	require.Equal(t, "students", stmt.(*ast.ShowColumnsStmt).Table)

	stmt, err = Parse("SHOW INDEX FROM students")
	require.NoError(t, err)
	require.Equal(t, "students", stmt.(*ast.ShowIndexStmt).Table)
}

func TestParseExplainWrapsStatement(t *testing.T) {
	stmt, err := Parse("EXPLAIN SELECT * FROM students")
	require.NoError(t, err)
	ex := stmt.(*ast.ExplainStmt)
	require.IsType(t, &ast.SelectStmt{}, ex.Statement)
}

func TestParseMalformedStatementReturnsParseError(t *testing.T) {
	_, err := Parse("SELECT FROM")
	require.Error(t, err)
	require.Equal(t, dberr.ParseError, dberr.KindOf(err))
}

func TestParseUnknownLeadingKeywordFails(t *testing.T) {
	_, err := Parse("FROBNICATE students")
	require.Error(t, err)
	require.Equal(t, dberr.ParseError, dberr.KindOf(err))
}

func TestParseTrailingGarbageFails(t *testing.T) {
	_, err := Parse("SELECT * FROM students; DROP TABLE students")
	require.Error(t, err)
}
