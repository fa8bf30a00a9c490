package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShowTablesListsCreatedTables(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY)`)
	mustExec(t, e, sess, `CREATE TABLE courses (code VARCHAR(10) PRIMARY KEY)`)

	r := mustExec(t, e, sess, `SHOW TABLES`)
	require.Len(t, r.Rows, 2)
}

func TestShowColumnsListsSchemaColumns(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50), age INT)`)

	r := mustExec(t, e, sess, `SHOW COLUMNS FROM students`)
	require.Len(t, r.Rows, 3)
}

func TestShowIndexIncludesPrimaryKeyIndex(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50))`)
	mustExec(t, e, sess, `CREATE INDEX idx_name ON students (name)`)

	r := mustExec(t, e, sess, `SHOW INDEX FROM students`)
	require.Len(t, r.Rows, 2)
}

func TestBufferPoolStatsReflectsPoolCapacity(t *testing.T) {
	e, _ := newTestEngine(t)
	stats := e.BufferPoolStats()
	require.Contains(t, stats, "64")
}
