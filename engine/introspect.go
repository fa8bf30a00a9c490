package engine

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"

	"coredb/catalog"
	"coredb/sql/ast"
)

func (e *StorageEngine) ShowTables(_ *ast.ShowTablesStmt) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	tables := e.cat.ListTables()
	sort.Strings(tables)
	return tables
}

func (e *StorageEngine) ShowColumns(stmt *ast.ShowColumnsStmt) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	schema, err := e.cat.GetTableSchema(stmt.Table)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		flags := ""
		if c.IsPrimaryKey {
			flags += " PRIMARY KEY"
		}
		if c.NotNull {
			flags += " NOT NULL"
		}
		if c.Unique {
			flags += " UNIQUE"
		}
		out[i] = fmt.Sprintf("%s %s%s", c.Name, c.Type, flags)
	}
	return out, nil
}

func (e *StorageEngine) ShowIndex(stmt *ast.ShowIndexStmt) ([]catalog.IndexDef, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cat.IndexesForTable(stmt.Table), nil
}

func (e *StorageEngine) ShowTriggers(_ *ast.ShowTriggersStmt) []catalog.TriggerDef {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []catalog.TriggerDef
	for _, table := range e.cat.ListTables() {
		out = append(out, e.cat.TriggersForTable(table)...)
	}
	return out
}

func (e *StorageEngine) ShowViews(_ *ast.ShowViewsStmt) []catalog.ViewDef {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cat.ListViews()
}

// BufferPoolStats reports the buffer pool's current occupancy, formatted
// with go-humanize the way a REPL status line would render it.
func (e *StorageEngine) BufferPoolStats() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats := e.pool.GetStats()
	return fmt.Sprintf("%s / %s pages pinned, %s dirty",
		humanize.Comma(int64(stats.PinnedPages)),
		humanize.Comma(int64(stats.Capacity)),
		humanize.Comma(int64(stats.DirtyPages)))
}
