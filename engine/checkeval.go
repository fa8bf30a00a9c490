package engine

import (
	"coredb/planner"
	"coredb/sql/parser"
	"coredb/types"
)

// checkEvaluator wires heap.CheckEvaluator to the SQL front end: a CHECK
// constraint's text is re-parsed on every call (schema JSON has no AST
// encoding, per types.CheckConstraint's doc) and run through the planner's
// expression evaluator against a single-row, unqualified tuple.
type checkEvaluator struct {
	ctx *planner.ExecContext
}

func newCheckEvaluator(ctx *planner.ExecContext) *checkEvaluator {
	return &checkEvaluator{ctx: ctx}
}

func (c *checkEvaluator) EvalCheck(expr string, row *types.Row) (bool, error) {
	parsed, err := parser.ParseExpr(expr)
	if err != nil {
		return false, err
	}
	tuple := make(planner.Tuple, len(row.Values))
	for col, raw := range row.Values {
		v, ok := raw.(types.Value)
		if !ok {
			continue
		}
		tuple[qualifyUnqualified(col)] = v
	}
	eval := planner.NewEvaluator(c.ctx)
	v, err := eval.Eval(parsed, tuple)
	if err != nil {
		return false, err
	}
	return v.Type == types.ColBool && v.Bool, nil
}

// qualifyUnqualified mirrors planner's private qualify("", col) so a CHECK
// expression's bare column references resolve against the row under
// evaluation. planner.Tuple keys are always "table.column"; an empty table
// qualifier still produces a matchable suffix for Tuple.Lookup.
func qualifyUnqualified(col string) string {
	return "." + col
}
