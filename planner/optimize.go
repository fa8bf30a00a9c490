package planner

import (
	"coredb/dberr"
	"coredb/sql/ast"
)

// planResult carries a physical operator alongside the ordering its output
// is already known to satisfy, so Optimize can skip introducing a redundant
// Sort per spec.md §4.7's fourth selection rule.
type planResult struct {
	op        Operator
	orderedBy []SortKey
}

// Optimize lowers a logical plan into a physical operator tree, applying
// spec.md §4.7's four selection rules: IndexScan substitution, filter
// pushdown, hash-vs-nested-loop join selection, and Sort elision when an
// index or aggregate already produces the required order.
func Optimize(node LogicalNode, ctx *ExecContext) (Operator, error) {
	res, err := optimizeNode(node, ctx)
	if err != nil {
		return nil, err
	}
	return res.op, nil
}

func optimizeNode(node LogicalNode, ctx *ExecContext) (planResult, error) {
	switch n := node.(type) {
	case *LogicalScan:
		return planResult{op: NewSeqScan(ctx, n.Table, n.Alias)}, nil

	case *viewSubplan:
		inner, err := optimizeNode(n.inner, ctx)
		if err != nil {
			return planResult{}, err
		}
		return planResult{op: &Rename{Input: inner.op, Alias: n.alias}}, nil

	case *LogicalFilter:
		return optimizeFilter(n, ctx)

	case *LogicalJoin:
		return optimizeJoin(n, ctx, nil)

	case *LogicalProject:
		input, err := optimizeNode(n.Input, ctx)
		if err != nil {
			return planResult{}, err
		}
		return planResult{op: NewProject(ctx, input.op, n.Items), orderedBy: input.orderedBy}, nil

	case *LogicalAggregate:
		input, err := optimizeNode(n.Input, ctx)
		if err != nil {
			return planResult{}, err
		}
		return planResult{op: NewHashAggregate(ctx, input.op, n.GroupBy, n.Aggregates, n.Having)}, nil

	case *LogicalDistinct:
		input, err := optimizeNode(n.Input, ctx)
		if err != nil {
			return planResult{}, err
		}
		return planResult{op: &DistinctOp{Input: input.op}, orderedBy: input.orderedBy}, nil

	case *LogicalSort:
		input, err := optimizeNode(n.Input, ctx)
		if err != nil {
			return planResult{}, err
		}
		if sortKeysSatisfied(n.Keys, input.orderedBy) {
			return input, nil
		}
		return planResult{op: NewSort(ctx, input.op, n.Keys), orderedBy: n.Keys}, nil

	case *LogicalLimit:
		input, err := optimizeNode(n.Input, ctx)
		if err != nil {
			return planResult{}, err
		}
		return planResult{op: &Limit{Input: input.op, N: n.N}, orderedBy: input.orderedBy}, nil
	}
	return planResult{}, dberr.New(dberr.SemanticError, "unknown logical node %T", node)
}

func sortKeysSatisfied(want, have []SortKey) bool {
	if len(have) < len(want) {
		return false
	}
	for i, k := range want {
		col1, ok1 := k.Expr.(*ast.ColumnRef)
		col2, ok2 := have[i].Expr.(*ast.ColumnRef)
		if !ok1 || !ok2 || col1.Name != col2.Name || k.Desc != have[i].Desc {
			return false
		}
	}
	return true
}

// optimizeFilter implements IndexScan substitution (rule 1) when the
// filtered input is a base table scan whose predicate constrains an
// index's leading column, and otherwise falls through to a plain Filter
// over whatever the input optimizes to.
func optimizeFilter(n *LogicalFilter, ctx *ExecContext) (planResult, error) {
	if join, ok := n.Input.(*LogicalJoin); ok {
		return optimizeJoin(join, ctx, n.Predicate)
	}

	if scan, ok := n.Input.(*LogicalScan); ok {
		if res, ok, err := tryIndexScan(scan, n.Predicate, ctx); err != nil {
			return planResult{}, err
		} else if ok {
			return res, nil
		}
	}

	input, err := optimizeNode(n.Input, ctx)
	if err != nil {
		return planResult{}, err
	}
	return planResult{op: NewFilter(ctx, input.op, n.Predicate), orderedBy: input.orderedBy}, nil
}

// tryIndexScan attempts rule 1's substitution: a SeqScan+Filter becomes an
// IndexScan over the matched key range, with any unmatched conjuncts still
// applied as a residual Filter on top.
func tryIndexScan(scan *LogicalScan, predicate ast.Expr, ctx *ExecContext) (planResult, bool, error) {
	if ctx == nil || ctx.Catalog == nil {
		return planResult{}, false, nil
	}
	conjuncts := splitConjuncts(predicate)
	predicates := extractPredicates(conjuncts)
	if len(predicates) == 0 {
		return planResult{}, false, nil
	}
	idx, matched, ok := chooseIndex(ctx.Catalog, scan.Table, predicates)
	if !ok {
		return planResult{}, false, nil
	}

	rng, err := buildKeyRange(matched)
	if err != nil {
		return planResult{}, false, nil
	}
	op := Operator(NewIndexScan(ctx, scan.Table, scan.Alias, idx.Name, rng))

	matchedCols := make(map[string]bool, len(matched))
	for _, m := range matched {
		matchedCols[m.column] = true
	}
	var residual []ast.Expr
	for _, c := range conjuncts {
		if bin, ok := c.(*ast.BinaryExpr); ok {
			if col, ok := bin.Left.(*ast.ColumnRef); ok && matchedCols[col.Name] && isResidualRedundant(matched, col.Name, bin) {
				continue
			}
		}
		residual = append(residual, c)
	}
	if len(residual) > 0 {
		op = NewFilter(ctx, op, joinConjuncts(residual))
	}

	var ordered []SortKey
	if len(matched) > 0 && matched[0].op == "=" || len(matched) == 1 {
		ordered = []SortKey{{Expr: &ast.ColumnRef{Name: idx.Columns[0]}, Desc: false}}
	}
	return planResult{op: op, orderedBy: ordered}, true, nil
}

// isResidualRedundant reports whether conjunct c is exactly one of the
// predicates chooseIndex already folded into the key range, so it does not
// also need to be re-checked by a residual Filter.
func isResidualRedundant(matched []equalityOrRangePredicate, col string, bin *ast.BinaryExpr) bool {
	for _, m := range matched {
		if m.column == col && m.op == bin.Op {
			return true
		}
	}
	return false
}

func joinConjuncts(exprs []ast.Expr) ast.Expr {
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = &ast.BinaryExpr{Op: "AND", Left: out, Right: e}
	}
	return out
}

func buildKeyRange(matched []equalityOrRangePredicate) (KeyRange, error) {
	var rng KeyRange
	eval := NewEvaluator(nil)
	for _, m := range matched {
		v, err := eval.Eval(m.value, Tuple{})
		if err != nil {
			return KeyRange{}, err
		}
		switch m.op {
		case "=":
			rng.Low, rng.High = &v, &v
			rng.LowIncl, rng.HighIncl = true, true
		case ">":
			rng.Low = &v
			rng.LowIncl = false
		case ">=":
			rng.Low = &v
			rng.LowIncl = true
		case "<":
			rng.High = &v
			rng.HighIncl = false
		case "<=":
			rng.High = &v
			rng.HighIncl = true
		}
	}
	return rng, nil
}

// optimizeJoin implements rules 2 and 3: predicates referencing only one
// side of an inner join are pushed down as a Filter on that side before
// the join runs, and the join itself becomes a HashJoin when an equi-key is
// available, falling back to NestedLoopJoin otherwise. extraPredicate is an
// outer WHERE clause that sat directly above this join in the logical tree.
func optimizeJoin(n *LogicalJoin, ctx *ExecContext, extraPredicate ast.Expr) (planResult, error) {
	leftAliases := collectAliases(n.Left)
	rightAliases := collectAliases(n.Right)

	leftNode, rightNode := n.Left, n.Right
	var residual ast.Expr = extraPredicate

	if n.Type == ast.JoinInner && extraPredicate != nil {
		var stay []ast.Expr
		for _, c := range splitConjuncts(extraPredicate) {
			switch sideOf(c, leftAliases, rightAliases) {
			case sideLeft:
				leftNode = &LogicalFilter{Input: leftNode, Predicate: c}
			case sideRight:
				rightNode = &LogicalFilter{Input: rightNode, Predicate: c}
			default:
				stay = append(stay, c)
			}
		}
		if len(stay) > 0 {
			residual = joinConjuncts(stay)
		} else {
			residual = nil
		}
	}

	left, err := optimizeNode(leftNode, ctx)
	if err != nil {
		return planResult{}, err
	}
	right, err := optimizeNode(rightNode, ctx)
	if err != nil {
		return planResult{}, err
	}

	joinType := n.Type
	outerOp, probeOp := left.op, right.op
	swappedForRight := false
	if joinType == ast.JoinRight {
		outerOp, probeOp = right.op, left.op
		joinType = ast.JoinLeft
		swappedForRight = true
	}

	leftKey, rightKey := equiKeys(n.On, leftAliases, rightAliases)

	var physJoin Operator
	switch {
	case joinType == ast.JoinFull:
		if leftKey != nil {
			physJoin = NewMergeJoin(ctx, left.op, right.op, leftKey, rightKey, n.On, ast.JoinFull)
		} else {
			physJoin = NewMergeJoin(ctx, left.op, right.op, &ast.NumberLiteral{Text: "0"}, &ast.NumberLiteral{Text: "0"}, n.On, ast.JoinFull)
		}

	case leftKey == nil:
		physJoin = NewNestedLoopJoin(ctx, outerOp, probeOp, n.On, joinType)

	case joinType == ast.JoinInner:
		// a true inner join has no preserved side, so either side may
		// build; the smaller estimated side wins.
		if estimate(leftNode) <= estimate(rightNode) {
			physJoin = NewHashJoin(ctx, left.op, right.op, leftKey, rightKey, n.On, joinType, true)
		} else {
			physJoin = NewHashJoin(ctx, right.op, left.op, rightKey, leftKey, n.On, joinType, false)
		}

	default:
		// LEFT (or RIGHT normalized to LEFT): outerOp holds the preserved
		// side, and HashJoin only pads unmatched rows from its probe side,
		// so outerOp must be the probe and the other side must build.
		outerKey, innerKey := leftKey, rightKey
		if swappedForRight {
			outerKey, innerKey = rightKey, leftKey
		}
		physJoin = NewHashJoin(ctx, probeOp, outerOp, innerKey, outerKey, n.On, joinType, swappedForRight)
	}

	if residual != nil {
		physJoin = NewFilter(ctx, physJoin, residual)
	}
	return planResult{op: physJoin}, nil
}

type side int

const (
	sideNeither side = iota
	sideLeft
	sideRight
)

func sideOf(e ast.Expr, leftAliases, rightAliases map[string]bool) side {
	usesLeft, usesRight := false, false
	walkExpr(e, func(n ast.Expr) {
		col, ok := n.(*ast.ColumnRef)
		if !ok {
			return
		}
		if leftAliases[col.Table] {
			usesLeft = true
		}
		if rightAliases[col.Table] {
			usesRight = true
		}
	})
	switch {
	case usesLeft && !usesRight:
		return sideLeft
	case usesRight && !usesLeft:
		return sideRight
	default:
		return sideNeither
	}
}

// equiKeys recognizes On as a (possibly AND-joined) plain equality between
// one left-side and one right-side column, returning the two sides of that
// equality as expressions HashJoin/MergeJoin can evaluate independently.
// Multi-column equi-joins are left to NestedLoopJoin — a teaching-grade
// engine does not need composite hash keys.
func equiKeys(on ast.Expr, leftAliases, rightAliases map[string]bool) (ast.Expr, ast.Expr) {
	if on == nil {
		return nil, nil
	}
	for _, c := range splitConjuncts(on) {
		bin, ok := c.(*ast.BinaryExpr)
		if !ok || bin.Op != "=" {
			continue
		}
		lc, lok := bin.Left.(*ast.ColumnRef)
		rc, rok := bin.Right.(*ast.ColumnRef)
		if !lok || !rok {
			continue
		}
		if leftAliases[lc.Table] && rightAliases[rc.Table] {
			return bin.Left, bin.Right
		}
		if leftAliases[rc.Table] && rightAliases[lc.Table] {
			return bin.Right, bin.Left
		}
	}
	return nil, nil
}

func collectAliases(node LogicalNode) map[string]bool {
	out := map[string]bool{}
	var walk func(LogicalNode)
	walk = func(n LogicalNode) {
		switch v := n.(type) {
		case *LogicalScan:
			out[v.Alias] = true
		case *viewSubplan:
			out[v.alias] = true
		default:
			for _, c := range n.Children() {
				walk(c)
			}
		}
	}
	walk(node)
	return out
}

// estimate gives a coarse relative row-count guess used only to pick a
// hash join's build side. Absent real statistics, it treats every base
// table as equally sized and lets Filter/Aggregate reduce that guess
// multiplicatively, which is enough to prefer the more selective side.
func estimate(node LogicalNode) int64 {
	switch n := node.(type) {
	case *LogicalScan:
		return 1000
	case *viewSubplan:
		return estimate(n.inner)
	case *LogicalFilter:
		return estimate(n.Input)/2 + 1
	case *LogicalJoin:
		return estimate(n.Left) * estimate(n.Right) / 100
	case *LogicalAggregate:
		return estimate(n.Input)/10 + 1
	default:
		if children := node.Children(); len(children) > 0 {
			return estimate(children[0])
		}
		return 1000
	}
}
