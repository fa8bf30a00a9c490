package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coredb/dberr"
)

// TestRollbackMakesInsertAndUpdateInvisible covers spec.md §8's third
// end-to-end scenario: insert a row, update it, then roll back the whole
// transaction and confirm neither the insert nor the update survives.
func TestRollbackMakesInsertAndUpdateInvisible(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50))`)

	mustExec(t, e, sess, `BEGIN TRANSACTION`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 'Alice')`)
	mustExec(t, e, sess, `UPDATE students SET name = 'Alicia' WHERE id = 1`)
	mustExec(t, e, sess, `ROLLBACK`)

	rows, err := e.Select(mustParseSelect(t, `SELECT * FROM students`))
	require.NoError(t, err)
	require.Empty(t, rows, "rollback must undo both the insert and the update")
}

func TestCommitPersistsAcrossTransactions(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50))`)

	mustExec(t, e, sess, `BEGIN TRANSACTION`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 'Alice')`)
	mustExec(t, e, sess, `COMMIT`)

	rows, err := e.Select(mustParseSelect(t, `SELECT * FROM students`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

// TestFailedStatementInExplicitTransactionRequiresRollback covers the
// PendingAbort path: once a statement fails inside an explicit transaction,
// every later statement on that session fails TXN_ABORTED until ROLLBACK.
func TestFailedStatementInExplicitTransactionRequiresRollback(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50) NOT NULL)`)

	mustExec(t, e, sess, `BEGIN TRANSACTION`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 'Alice')`)

	_, err := e.ExecuteSQL(sess, `INSERT INTO students (id) VALUES (2)`)
	require.Error(t, err)

	_, err = e.ExecuteSQL(sess, `INSERT INTO students VALUES (3, 'Carol')`)
	require.Error(t, err)
	require.Equal(t, dberr.TxnAborted, dberr.KindOf(err))

	require.NoError(t, e.Rollback(sess))
	rows, err := e.Select(mustParseSelect(t, `SELECT * FROM students`))
	require.NoError(t, err)
	require.Empty(t, rows)
}

// TestImplicitTransactionRollsBackWholeStatementOnFailure covers a
// multi-row INSERT outside any explicit transaction: a failure partway
// through must undo every row the statement itself already inserted,
// leaving only what an earlier, already-committed statement put there.
func TestImplicitTransactionRollsBackWholeStatementOnFailure(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50))`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 'Alice')`)

	_, err := e.ExecuteSQL(sess, `INSERT INTO students VALUES (2, 'Bob'), (1, 'Duplicate')`)
	require.Error(t, err)

	rows, err := e.Select(mustParseSelect(t, `SELECT * FROM students`))
	require.NoError(t, err)
	require.Len(t, rows, 1, "Bob's row belongs to the failed statement and must be rolled back with it")
	name, err := rows[0].Lookup("", "name")
	require.NoError(t, err)
	require.Equal(t, "Alice", name.Str)
}
