package planner

import (
	"sort"

	"coredb/catalog"
	"coredb/sql/ast"
)

// equalityOrRangePredicate is one WHERE clause conjunct recognized as a
// comparison between a single column and a constant-ish expression
// (anything Eval can compute without a row, i.e. no ColumnRef of its own).
type equalityOrRangePredicate struct {
	column string
	op     string
	value  ast.Expr
}

// splitConjuncts flattens a predicate's top-level AND chain into its
// individual conjuncts, leaving OR/other structure as a single opaque leaf.
func splitConjuncts(expr ast.Expr) []ast.Expr {
	bin, ok := expr.(*ast.BinaryExpr)
	if !ok || bin.Op != "AND" {
		return []ast.Expr{expr}
	}
	return append(splitConjuncts(bin.Left), splitConjuncts(bin.Right)...)
}

func extractPredicates(conjuncts []ast.Expr) []equalityOrRangePredicate {
	var out []equalityOrRangePredicate
	for _, c := range conjuncts {
		bin, ok := c.(*ast.BinaryExpr)
		if !ok {
			continue
		}
		switch bin.Op {
		case "=", "<", "<=", ">", ">=":
		default:
			continue
		}
		if col, ok := bin.Left.(*ast.ColumnRef); ok && !references(bin.Right, col) {
			out = append(out, equalityOrRangePredicate{column: col.Name, op: bin.Op, value: bin.Right})
		} else if col, ok := bin.Right.(*ast.ColumnRef); ok && !references(bin.Left, col) {
			out = append(out, equalityOrRangePredicate{column: col.Name, op: flipOp(bin.Op), value: bin.Left})
		}
	}
	return out
}

func references(e ast.Expr, col *ast.ColumnRef) bool {
	found := false
	walkExpr(e, func(n ast.Expr) {
		if c, ok := n.(*ast.ColumnRef); ok && c.Name == col.Name {
			found = true
		}
	})
	return found
}

func flipOp(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	default:
		return op
	}
}

// chooseIndex applies spec.md §9's tie-breaking rule among every index on
// table whose leading column has a usable predicate: prefer unique over
// non-unique, then the longer matched key prefix, then lexicographic index
// name. Returns ok=false when no index's leading column is constrained.
func chooseIndex(cat *catalog.Manager, table string, predicates []equalityOrRangePredicate) (catalog.IndexDef, []equalityOrRangePredicate, bool) {
	byColumn := make(map[string]equalityOrRangePredicate, len(predicates))
	for _, p := range predicates {
		if _, exists := byColumn[p.column]; !exists || p.op == "=" {
			byColumn[p.column] = p
		}
	}

	candidates := cat.IndexesForTable(table)
	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.Unique != cj.Unique {
			return ci.Unique
		}
		pi := matchedPrefixLen(ci, byColumn)
		pj := matchedPrefixLen(cj, byColumn)
		if pi != pj {
			return pi > pj
		}
		return ci.Name < cj.Name
	})

	for _, idx := range candidates {
		n := matchedPrefixLen(idx, byColumn)
		if n == 0 {
			continue
		}
		matched := make([]equalityOrRangePredicate, 0, n)
		for _, col := range idx.Columns[:n] {
			matched = append(matched, byColumn[col])
		}
		return idx, matched, true
	}
	return catalog.IndexDef{}, nil, false
}

func matchedPrefixLen(idx catalog.IndexDef, byColumn map[string]equalityOrRangePredicate) int {
	n := 0
	for _, col := range idx.Columns {
		pred, ok := byColumn[col]
		if !ok {
			break
		}
		n++
		if pred.op != "=" {
			break // a range predicate stops the matched prefix from extending further
		}
	}
	return n
}
