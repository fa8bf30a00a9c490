package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorDeclareOpenFetchClose(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50))`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 'Alice')`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (2, 'Bob')`)

	mustExec(t, e, sess, `DECLARE c CURSOR FOR SELECT id FROM students`)
	mustExec(t, e, sess, `OPEN c`)

	first := mustExec(t, e, sess, `FETCH FROM c`)
	require.Len(t, first.Rows, 1)
	second := mustExec(t, e, sess, `FETCH FROM c`)
	require.Len(t, second.Rows, 1)
	third := mustExec(t, e, sess, `FETCH FROM c`)
	require.Empty(t, third.Rows)
	require.Equal(t, "no more rows", third.Message)

	mustExec(t, e, sess, `CLOSE c`)
}

func TestFetchingAnUndeclaredCursorFails(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50))`)

	_, err := e.ExecuteSQL(sess, `FETCH FROM missing`)
	require.Error(t, err)
}

func TestFetchingBeforeOpenFails(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50))`)
	mustExec(t, e, sess, `DECLARE c CURSOR FOR SELECT id FROM students`)

	_, err := e.ExecuteSQL(sess, `FETCH FROM c`)
	require.Error(t, err)
}
