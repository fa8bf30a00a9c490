package planner

import (
	"strings"

	"coredb/sql/ast"
	"coredb/types"
)

// HashAggregate groups its input on GroupBy's evaluated values and
// accumulates each AggregateCall per group, materializing every group on
// Open (a teaching-grade engine has no reason to stream partial groups).
type HashAggregate struct {
	Input      Operator
	GroupBy    []ast.Expr
	Aggregates []AggregateCall
	Having     ast.Expr
	eval       *Evaluator

	groups   []Tuple
	pos      int
}

func NewHashAggregate(ctx *ExecContext, input Operator, groupBy []ast.Expr, aggs []AggregateCall, having ast.Expr) *HashAggregate {
	return &HashAggregate{Input: input, GroupBy: groupBy, Aggregates: aggs, Having: having, eval: NewEvaluator(ctx)}
}

type aggState struct {
	groupRow Tuple
	count    int64
	sum      int64
	sumType  types.ColumnType
	min, max types.Value
	minSet, maxSet bool
	distinct map[string]bool
}

func (h *HashAggregate) Open() error {
	if err := h.Input.Open(); err != nil {
		return err
	}

	order := []string{}
	states := map[string]map[string]*aggState{} // groupKey -> aggKey -> state
	groupRows := map[string]Tuple{}

	for {
		row, err := h.Input.Next()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}

		gkey, err := h.groupKey(row)
		if err != nil {
			return err
		}
		if _, ok := groupRows[gkey]; !ok {
			order = append(order, gkey)
			groupRows[gkey] = h.groupRowOf(row)
			states[gkey] = map[string]*aggState{}
		}
		for _, agg := range h.Aggregates {
			st := states[gkey][agg.Key]
			if st == nil {
				st = &aggState{distinct: map[string]bool{}}
				states[gkey][agg.Key] = st
			}
			if err := h.accumulate(st, agg, row); err != nil {
				return err
			}
		}
	}

	h.groups = nil
	for _, gkey := range order {
		out := make(Tuple, len(groupRows[gkey]))
		for k, v := range groupRows[gkey] {
			out[k] = v
		}
		for _, agg := range h.Aggregates {
			out[qualify("", agg.Key)] = finalize(states[gkey][agg.Key], agg)
		}
		if h.Having != nil {
			v, err := h.eval.Eval(h.Having, out)
			if err != nil {
				return err
			}
			if v.Type != types.ColBool || !v.Bool {
				continue
			}
		}
		h.groups = append(h.groups, out)
	}
	h.pos = 0
	return nil
}

func (h *HashAggregate) groupKey(row Tuple) (string, error) {
	var b strings.Builder
	for _, expr := range h.GroupBy {
		v, err := h.eval.Eval(expr, row)
		if err != nil {
			return "", err
		}
		b.WriteString(v.String())
		b.WriteByte('\x00')
	}
	return b.String(), nil
}

func (h *HashAggregate) groupRowOf(row Tuple) Tuple {
	out := make(Tuple, len(h.GroupBy))
	for _, expr := range h.GroupBy {
		col, ok := expr.(*ast.ColumnRef)
		if !ok {
			continue
		}
		v, err := h.eval.Eval(expr, row)
		if err != nil {
			continue
		}
		out[qualify(col.Table, col.Name)] = v
	}
	return out
}

func (h *HashAggregate) accumulate(st *aggState, agg AggregateCall, row Tuple) error {
	if agg.Star {
		st.count++
		return nil
	}
	v, err := h.eval.Eval(agg.Arg, row)
	if err != nil {
		return err
	}
	if v.Null {
		return nil
	}
	if agg.Distinct {
		key := v.String()
		if st.distinct[key] {
			return nil
		}
		st.distinct[key] = true
	}
	st.count++
	if isNumeric(v.Type) {
		st.sum += numericOf(v)
		st.sumType = v.Type
	}
	if !st.minSet || types.Compare(v, st.min) < 0 {
		st.min = v
		st.minSet = true
	}
	if !st.maxSet || types.Compare(v, st.max) > 0 {
		st.max = v
		st.maxSet = true
	}
	return nil
}

func finalize(st *aggState, agg AggregateCall) types.Value {
	if st == nil {
		st = &aggState{}
	}
	switch agg.Func {
	case "COUNT":
		return types.BigIntValue(st.count)
	case "SUM":
		if st.count == 0 {
			return types.NullValue(types.ColBigInt)
		}
		return types.BigIntValue(st.sum)
	case "AVG":
		if st.count == 0 {
			return types.NullValue(types.ColBigInt)
		}
		return types.BigIntValue(st.sum / st.count)
	case "MIN":
		if !st.minSet {
			return types.NullValue(types.ColVarchar)
		}
		return st.min
	case "MAX":
		if !st.maxSet {
			return types.NullValue(types.ColVarchar)
		}
		return st.max
	default:
		return types.Value{Null: true}
	}
}

func (h *HashAggregate) Next() (Tuple, error) {
	if h.pos >= len(h.groups) {
		return nil, nil
	}
	row := h.groups[h.pos]
	h.pos++
	return row, nil
}

func (h *HashAggregate) Close() error { return h.Input.Close() }
