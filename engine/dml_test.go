package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coredb/dberr"
)

func TestInsertSelectRoundTrip(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50) NOT NULL, age INT)`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 'Alice', 20)`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (2, 'Bob', 21)`)

	rows, err := e.Select(mustParseSelect(t, `SELECT * FROM students WHERE id = 1`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	name, err := rows[0].Lookup("", "name")
	require.NoError(t, err)
	require.Equal(t, "Alice", name.Str)
}

func TestInsertRejectsNotNullViolation(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50) NOT NULL)`)

	_, err := e.ExecuteSQL(sess, `INSERT INTO students (id) VALUES (1)`)
	require.Error(t, err)

	rows, err := e.Select(mustParseSelect(t, `SELECT * FROM students`))
	require.NoError(t, err)
	require.Empty(t, rows, "a rejected implicit-transaction insert must leave no row behind")
}

func TestInsertRejectsCheckViolation(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, gpa DECIMAL(3,2), CHECK (gpa >= 0))`)

	_, err := e.ExecuteSQL(sess, `INSERT INTO students VALUES (1, -1)`)
	require.Error(t, err)
}

func TestInsertRejectsDuplicatePrimaryKey(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50))`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 'Alice')`)

	_, err := e.ExecuteSQL(sess, `INSERT INTO students VALUES (1, 'Eve')`)
	require.Error(t, err)
}

func TestInsertRejectsUnknownForeignKey(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE staff (id INT PRIMARY KEY, name VARCHAR(50))`)
	mustExec(t, e, sess, `CREATE TABLE students (
		id INT PRIMARY KEY,
		name VARCHAR(50),
		advisor_id INT,
		FOREIGN KEY (advisor_id) REFERENCES staff(id)
	)`)

	_, err := e.ExecuteSQL(sess, `INSERT INTO students VALUES (1, 'Alice', 99)`)
	require.Error(t, err)
	require.Equal(t, dberr.ConstraintViolation, dberr.KindOf(err))
}

func TestInsertAcceptsValidForeignKey(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE staff (id INT PRIMARY KEY, name VARCHAR(50))`)
	mustExec(t, e, sess, `CREATE TABLE students (
		id INT PRIMARY KEY,
		name VARCHAR(50),
		advisor_id INT,
		FOREIGN KEY (advisor_id) REFERENCES staff(id)
	)`)
	mustExec(t, e, sess, `INSERT INTO staff VALUES (1, 'Dr. Smith')`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 'Alice', 1)`)

	rows, err := e.Select(mustParseSelect(t, `SELECT * FROM students`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestDeleteRestrictedByForeignKey(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE staff (id INT PRIMARY KEY, name VARCHAR(50))`)
	mustExec(t, e, sess, `CREATE TABLE students (
		id INT PRIMARY KEY,
		advisor_id INT,
		FOREIGN KEY (advisor_id) REFERENCES staff(id)
	)`)
	mustExec(t, e, sess, `INSERT INTO staff VALUES (1, 'Dr. Smith')`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 1)`)

	_, err := e.ExecuteSQL(sess, `DELETE FROM staff WHERE id = 1`)
	require.Error(t, err)
	require.Equal(t, dberr.ConstraintViolation, dberr.KindOf(err))
}

// TestUpdateRelocatesRowWhenItGrows grows a row past its page's free space,
// forcing UpdateRow's internal re-insert path; the row pointer the heap
// hands back changes, which is exactly the case OldRowPtr exists to redo
// and undo correctly.
func TestUpdateRelocatesRowWhenItGrows(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, bio TEXT)`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 'short')`)

	hf, err := e.heapMgr.GetHeapFileByTable("students")
	require.NoError(t, err)
	before := hf.GetAllRowPointers()
	require.Len(t, before, 1)

	long := "x"
	for i := 0; i < 13; i++ {
		long += long
	}
	r, err := e.ExecuteSQL(sess, `UPDATE students SET bio = '`+long+`' WHERE id = 1`)
	require.NoError(t, err)
	require.Equal(t, 1, r.RowsAffected)

	after := hf.GetAllRowPointers()
	require.Len(t, after, 1)
	require.NotEqual(t, before[0], after[0], "an 8KB row cannot fit in its original 4KB-page slot")

	rows, err := e.Select(mustParseSelect(t, `SELECT * FROM students WHERE id = 1`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	bio, err := rows[0].Lookup("", "bio")
	require.NoError(t, err)
	require.Equal(t, long, bio.Str)
}

func TestDeleteRemovesMatchingRowsOnly(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50))`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 'Alice')`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (2, 'Bob')`)

	r := mustExec(t, e, sess, `DELETE FROM students WHERE id = 1`)
	require.Equal(t, 1, r.RowsAffected)

	rows, err := e.Select(mustParseSelect(t, `SELECT * FROM students`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	name, err := rows[0].Lookup("", "name")
	require.NoError(t, err)
	require.Equal(t, "Bob", name.Str)
}
