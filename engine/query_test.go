package engine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestExplainUsesIndexScanForPrimaryKeyLookup covers spec.md §8's first
// end-to-end scenario: a WHERE clause on the primary key must plan as an
// IndexScan against the table's own "pk" index, not a SeqScan.
func TestExplainUsesIndexScanForPrimaryKeyLookup(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50))`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 'Alice')`)

	text, err := e.Explain(mustParseSelect(t, `SELECT * FROM students WHERE id = 1`))
	require.NoError(t, err)
	require.Contains(t, text, "IndexScan students."+pkIndexName)
}

func TestExplainFallsBackToSeqScanWithoutAUsableIndex(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50))`)

	text, err := e.Explain(mustParseSelect(t, `SELECT * FROM students WHERE name = 'Alice'`))
	require.NoError(t, err)
	require.Contains(t, text, "SeqScan students")
}

// TestBPlusTreeSplitCascadeOverOrderedRange covers spec.md §8's second
// end-to-end scenario: 1000 sequential keys force the primary key index
// through several levels of leaf and internal splits, and a full range
// scan through the IndexScan must still return every row in key order.
func TestBPlusTreeSplitCascadeOverOrderedRange(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, name VARCHAR(50))`)

	const n = 1000
	for i := 1; i <= n; i++ {
		mustExec(t, e, sess, fmt.Sprintf(`INSERT INTO students VALUES (%d, 'student-%d')`, i, i))
	}

	text, err := e.Explain(mustParseSelect(t, `SELECT * FROM students WHERE id >= 1`))
	require.NoError(t, err)
	require.Contains(t, text, "IndexScan students."+pkIndexName)

	rows, err := e.Select(mustParseSelect(t, `SELECT * FROM students WHERE id >= 1`))
	require.NoError(t, err)
	require.Len(t, rows, n)

	prev := 0
	for _, row := range rows {
		v, err := row.Lookup("", "id")
		require.NoError(t, err)
		require.Greater(t, int(v.Int), prev, "an ordered index range scan must return keys in ascending order")
		prev = int(v.Int)
	}
}

func TestSelectWithWhereFiltersRows(t *testing.T) {
	e, sess := newTestEngine(t)
	mustExec(t, e, sess, `CREATE TABLE students (id INT PRIMARY KEY, age INT)`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (1, 20)`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (2, 17)`)
	mustExec(t, e, sess, `INSERT INTO students VALUES (3, 22)`)

	rows, err := e.Select(mustParseSelect(t, `SELECT * FROM students WHERE age >= 18`))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var ids []string
	for _, row := range rows {
		v, err := row.Lookup("", "id")
		require.NoError(t, err)
		ids = append(ids, fmt.Sprint(v.Int))
	}
	require.Contains(t, strings.Join(ids, ","), "1")
	require.Contains(t, strings.Join(ids, ","), "3")
}
