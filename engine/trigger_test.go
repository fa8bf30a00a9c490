package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAfterInsertTriggerFiresBody(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50))`)
	mustExec(t, e, sess, `CREATE TABLE audit_log (id INT PRIMARY KEY, note VARCHAR(50))`)
	mustExec(t, e, sess, `CREATE TRIGGER trg_audit AFTER INSERT ON students
		BEGIN INSERT INTO audit_log VALUES (1, 'inserted') END`)

	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 'Alice')`)

	rows, err := e.Select(mustParseSelect(t, `SELECT * FROM audit_log`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	note, err := rows[0].Lookup("", "note")
	require.NoError(t, err)
	require.Equal(t, "inserted", note.Str)
}

func TestTriggerConditionSkipsBodyWhenFalse(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, age INT)`)
	mustExec(t, e, sess, `CREATE TABLE audit_log (id INT PRIMARY KEY, note VARCHAR(50))`)
	mustExec(t, e, sess, `CREATE TRIGGER trg_minor AFTER INSERT ON students WHEN (age < 18)
		BEGIN INSERT INTO audit_log VALUES (1, 'minor') END`)

	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 25)`)
	rows, err := e.Select(mustParseSelect(t, `SELECT * FROM audit_log`))
	require.NoError(t, err)
	require.Empty(t, rows, "condition is false for a 25-year-old, the trigger body must not run")

	mustExec(t, e, sess, `INSERT INTO students VALUES (2, 16)`)
	rows, err = e.Select(mustParseSelect(t, `SELECT * FROM audit_log`))
	require.NoError(t, err)
	require.Len(t, rows, 1, "condition is true for a 16-year-old, the trigger body must run")
}

// TestRollbackUndoesTriggerFiredMutation confirms a trigger body's effects
// are recorded against the firing statement's own transaction, so rolling
// that transaction back undoes the trigger's side effects too.
func TestRollbackUndoesTriggerFiredMutation(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50))`)
	mustExec(t, e, sess, `CREATE TABLE audit_log (id INT PRIMARY KEY, note VARCHAR(50))`)
	mustExec(t, e, sess, `CREATE TRIGGER trg_audit AFTER INSERT ON students
		BEGIN INSERT INTO audit_log VALUES (1, 'inserted') END`)

	mustExec(t, e, sess, `BEGIN TRANSACTION`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 'Alice')`)
	mustExec(t, e, sess, `ROLLBACK`)

	students, err := e.Select(mustParseSelect(t, `SELECT * FROM students`))
	require.NoError(t, err)
	require.Empty(t, students)

	auditRows, err := e.Select(mustParseSelect(t, `SELECT * FROM audit_log`))
	require.NoError(t, err)
	require.Empty(t, auditRows, "the trigger's insert must roll back with the statement that fired it")
}

func TestDropTriggerStopsItFromFiring(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50))`)
	mustExec(t, e, sess, `CREATE TABLE audit_log (id INT PRIMARY KEY, note VARCHAR(50))`)
	mustExec(t, e, sess, `CREATE TRIGGER trg_audit AFTER INSERT ON students
		BEGIN INSERT INTO audit_log VALUES (1, 'inserted') END`)
	mustExec(t, e, sess, `DROP TRIGGER trg_audit ON students`)

	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 'Alice')`)
	rows, err := e.Select(mustParseSelect(t, `SELECT * FROM audit_log`))
	require.NoError(t, err)
	require.Empty(t, rows)
}
