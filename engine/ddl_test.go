package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateIndexBackfillsFromExistingRows(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, age INT)`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 20)`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (2, 17)`)

	mustExec(t, e, sess, `CREATE INDEX idx_age ON students (age)`)

	text, err := e.Explain(mustParseSelect(t, `SELECT * FROM students WHERE age = 17`))
	require.NoError(t, err)
	require.Contains(t, text, "IndexScan students.idx_age")

	rows, err := e.Select(mustParseSelect(t, `SELECT * FROM students WHERE age = 17`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestCreateUniqueIndexRejectsExistingDuplicates(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, email VARCHAR(50))`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 'a@x.com')`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (2, 'a@x.com')`)

	_, err := e.ExecuteSQL(sess, `CREATE UNIQUE INDEX idx_email ON students (email)`)
	require.Error(t, err)
}

func TestDropTableRemovesItFromCatalog(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY)`)
	mustExec(t, e, sess, `DROP TABLE students`)

	_, err := e.ExecuteSQL(sess, `SELECT * FROM students`)
	require.Error(t, err)
}

func TestCreateViewIsQueryable(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, gpa DECIMAL(3,2))`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 4)`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (2, 2)`)
	mustExec(t, e, sess, `CREATE VIEW honor_roll AS SELECT id FROM students WHERE gpa > 3`)

	rows, err := e.Select(mustParseSelect(t, `SELECT * FROM honor_roll`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
