// Package planner turns a parsed SELECT into a physical operator tree and
// runs it via the pull-based open/next/close contract spec.md §4.7 mandates.
package planner

import (
	"strings"

	"coredb/dberr"
	"coredb/types"
)

// Tuple is the row representation operators pass between each other: every
// column is keyed by its table qualifier so a join's two sides never
// collide, the same way the teacher's joins.go keys its merged row maps by
// "table.column" (see mergeSortInnerJoin's result construction).
type Tuple map[string]types.Value

func qualify(table, column string) string {
	return strings.ToLower(table) + "." + strings.ToLower(column)
}

// NewTuple builds a Tuple from a decoded heap row, qualifying every column
// under alias (the table name or its AS alias).
func NewTuple(alias string, row *types.Row) Tuple {
	t := make(Tuple, len(row.Values))
	for col, v := range row.Values {
		val, ok := v.(types.Value)
		if !ok {
			continue
		}
		t[qualify(alias, col)] = val
	}
	return t
}

// Merge combines two tuples into a new one, used by every join operator.
// Right-hand columns win on collision, matching map-merge semantics the
// teacher's join helpers rely on implicitly.
func Merge(left, right Tuple) Tuple {
	out := make(Tuple, len(left)+len(right))
	for k, v := range left {
		out[k] = v
	}
	for k, v := range right {
		out[k] = v
	}
	return out
}

// Lookup resolves a possibly-unqualified column reference against a tuple.
// An unqualified name resolves to the select-list column projected under
// that bare name when there is one; otherwise it must match exactly one
// "table.column" key or the reference is ambiguous or unresolved.
func (t Tuple) Lookup(table, column string) (types.Value, error) {
	column = strings.ToLower(column)
	if table != "" {
		v, ok := t[qualify(table, column)]
		if !ok {
			return types.Value{}, dberr.New(dberr.NotFound, "column %s.%s not found", table, column)
		}
		return v, nil
	}

	suffix := "." + column
	if v, ok := t[suffix]; ok {
		return v, nil
	}
	var found types.Value
	matches := 0
	for k, v := range t {
		if strings.HasSuffix(k, suffix) {
			matches++
			found = v
		}
	}
	switch matches {
	case 0:
		return types.Value{}, dberr.New(dberr.NotFound, "column %q not found", column)
	case 1:
		return found, nil
	default:
		return types.Value{}, dberr.New(dberr.SemanticError, "column reference %q is ambiguous", column)
	}
}
