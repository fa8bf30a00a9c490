package planner

import (
	"sort"

	"coredb/sql/ast"
	"coredb/types"
)

// NestedLoopJoin evaluates On against every outer/inner pair, materializing
// the inner side once on Open since it is re-scanned for each outer tuple.
// Chosen by Optimize whenever On has no usable equi-key.
type NestedLoopJoin struct {
	Outer, Inner Operator
	On           ast.Expr
	JoinType     ast.JoinType

	eval       *Evaluator
	innerRows  []Tuple
	outerRow   Tuple
	innerPos   int
	outerMatched bool
	exhausted  bool
}

func NewNestedLoopJoin(ctx *ExecContext, outer, inner Operator, on ast.Expr, jt ast.JoinType) *NestedLoopJoin {
	return &NestedLoopJoin{Outer: outer, Inner: inner, On: on, JoinType: jt, eval: NewEvaluator(ctx)}
}

func (j *NestedLoopJoin) Open() error {
	if err := j.Outer.Open(); err != nil {
		return err
	}
	if err := j.Inner.Open(); err != nil {
		return err
	}
	j.innerRows = nil
	for {
		row, err := j.Inner.Next()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		j.innerRows = append(j.innerRows, row)
	}
	j.innerPos = len(j.innerRows)
	return nil
}

func (j *NestedLoopJoin) Next() (Tuple, error) {
	for {
		if j.innerPos >= len(j.innerRows) {
			if needsOuterPadding(j.JoinType) && j.outerRow != nil && !j.outerMatched {
				padded := Merge(j.outerRow, nullTuple(j.innerRows))
				j.outerRow = nil
				return padded, nil
			}
			row, err := j.Outer.Next()
			if err != nil || row == nil {
				return row, err
			}
			j.outerRow = row
			j.outerMatched = false
			j.innerPos = 0
			continue
		}

		candidate := j.innerRows[j.innerPos]
		j.innerPos++
		merged := Merge(j.outerRow, candidate)
		if j.On == nil {
			j.outerMatched = true
			return merged, nil
		}
		v, err := j.eval.Eval(j.On, merged)
		if err != nil {
			return nil, err
		}
		if v.Type == types.ColBool && v.Bool {
			j.outerMatched = true
			return merged, nil
		}
	}
}

func (j *NestedLoopJoin) Close() error {
	if err := j.Outer.Close(); err != nil {
		return err
	}
	return j.Inner.Close()
}

func needsOuterPadding(jt ast.JoinType) bool {
	return jt == ast.JoinLeft || jt == ast.JoinFull
}

func nullTuple(sample []Tuple) Tuple {
	out := make(Tuple)
	if len(sample) == 0 {
		return out
	}
	for k, v := range sample[0] {
		out[k] = types.NullValue(v.Type)
	}
	return out
}

// EquiJoinKey is one side of an On predicate recognized as a plain
// equality between a left-side and a right-side column reference.
type EquiJoinKey struct {
	LeftExpr, RightExpr ast.Expr
}

// HashJoin builds a hash table over the build side's equi-key, then probes
// it once per tuple from the probe side. For an INNER join Optimize picks
// the smaller estimated input as the build side; for an outer join the
// preserved side is always the probe side.
type HashJoin struct {
	Build, Probe Operator
	BuildKey     ast.Expr
	ProbeKey     ast.Expr
	On           ast.Expr
	JoinType     ast.JoinType
	buildIsLeft  bool

	eval    *Evaluator
	table   map[string][]Tuple
	probeRow Tuple
	bucket  []Tuple
	bucketPos int
	matched bool
	sample  Tuple
}

func NewHashJoin(ctx *ExecContext, build, probe Operator, buildKey, probeKey, on ast.Expr, jt ast.JoinType, buildIsLeft bool) *HashJoin {
	return &HashJoin{Build: build, Probe: probe, BuildKey: buildKey, ProbeKey: probeKey, On: on, JoinType: jt, buildIsLeft: buildIsLeft, eval: NewEvaluator(ctx)}
}

func (j *HashJoin) Open() error {
	if err := j.Build.Open(); err != nil {
		return err
	}
	if err := j.Probe.Open(); err != nil {
		return err
	}
	j.table = make(map[string][]Tuple)
	for {
		row, err := j.Build.Next()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		j.sample = row
		v, err := j.eval.Eval(j.BuildKey, row)
		if err != nil {
			return err
		}
		if v.Null {
			continue
		}
		key := v.String()
		j.table[key] = append(j.table[key], row)
	}
	return nil
}

func (j *HashJoin) Next() (Tuple, error) {
	for {
		if j.bucketPos >= len(j.bucket) {
			if needsOuterPadding(j.JoinType) && j.probeRow != nil && !j.matched {
				padded := j.mergeSides(j.probeRow, nullTuple([]Tuple{j.sample}))
				j.probeRow = nil
				return padded, nil
			}
			row, err := j.Probe.Next()
			if err != nil || row == nil {
				return row, err
			}
			j.probeRow = row
			j.matched = false

			v, err := j.eval.Eval(j.ProbeKey, row)
			if err != nil {
				return nil, err
			}
			if v.Null {
				j.bucket = nil
				j.bucketPos = 0
				continue
			}
			j.bucket = j.table[v.String()]
			j.bucketPos = 0
			continue
		}

		candidate := j.bucket[j.bucketPos]
		j.bucketPos++
		merged := j.mergeSides(j.probeRow, candidate)
		if j.On != nil {
			v, err := j.eval.Eval(j.On, merged)
			if err != nil {
				return nil, err
			}
			if v.Type != types.ColBool || !v.Bool {
				continue
			}
		}
		j.matched = true
		return merged, nil
	}
}

// mergeSides restores left-before-right merge order regardless of which
// side was chosen as the build side, so On and downstream expressions see
// the same column precedence as a plan-time equi-join would.
func (j *HashJoin) mergeSides(probeRow, buildRow Tuple) Tuple {
	if j.buildIsLeft {
		return Merge(buildRow, probeRow)
	}
	return Merge(probeRow, buildRow)
}

func (j *HashJoin) Close() error {
	if err := j.Build.Close(); err != nil {
		return err
	}
	return j.Probe.Close()
}

// MergeJoin is the sort-merge fallback, grounded directly on the teacher's
// mergeSortInnerJoin/mergeSortOuterJoin/mergeSortFullJoin: both sides are
// sorted on their join column, then walked in lockstep, grouping runs of
// equal keys before cross-multiplying each run's rows.
type MergeJoin struct {
	ctx          *ExecContext
	Left, Right  Operator
	LeftKey, RightKey ast.Expr
	On           ast.Expr
	JoinType     ast.JoinType
	eval         *Evaluator

	leftRows, rightRows []Tuple
	out                  []Tuple
	pos                  int
}

func NewMergeJoin(ctx *ExecContext, left, right Operator, leftKey, rightKey, on ast.Expr, jt ast.JoinType) *MergeJoin {
	return &MergeJoin{ctx: ctx, Left: left, Right: right, LeftKey: leftKey, RightKey: rightKey, On: on, JoinType: jt, eval: NewEvaluator(ctx)}
}

func (j *MergeJoin) Open() error {
	if err := j.Left.Open(); err != nil {
		return err
	}
	if err := j.Right.Open(); err != nil {
		return err
	}
	var err error
	j.leftRows, err = drain(j.Left)
	if err != nil {
		return err
	}
	j.rightRows, err = drain(j.Right)
	if err != nil {
		return err
	}

	keyed := func(rows []Tuple, key ast.Expr) func(i, jx int) bool {
		return func(i, jx int) bool {
			vi, _ := j.eval.Eval(key, rows[i])
			vj, _ := j.eval.Eval(key, rows[jx])
			return types.Compare(vi, vj) < 0
		}
	}
	sort.SliceStable(j.leftRows, keyed(j.leftRows, j.LeftKey))
	sort.SliceStable(j.rightRows, keyed(j.rightRows, j.RightKey))

	switch j.JoinType {
	case ast.JoinLeft:
		j.out = j.mergeOuter(j.leftRows, j.rightRows, j.LeftKey, j.RightKey, false)
	case ast.JoinRight:
		swapped := j.mergeOuter(j.rightRows, j.leftRows, j.RightKey, j.LeftKey, true)
		j.out = swapped
	case ast.JoinFull:
		j.out = j.mergeFull()
	default:
		j.out = j.mergeInner()
	}
	j.pos = 0
	return nil
}

func drain(op Operator) ([]Tuple, error) {
	var out []Tuple
	for {
		row, err := op.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return out, nil
		}
		out = append(out, row)
	}
}

func (j *MergeJoin) mergeInner() []Tuple {
	var result []Tuple
	i, k := 0, 0
	for i < len(j.leftRows) && k < len(j.rightRows) {
		lv, _ := j.eval.Eval(j.LeftKey, j.leftRows[i])
		rv, _ := j.eval.Eval(j.RightKey, j.rightRows[k])
		if lv.Null {
			i++
			continue
		}
		if rv.Null {
			k++
			continue
		}
		cmp := types.Compare(lv, rv)
		switch {
		case cmp < 0:
			i++
		case cmp > 0:
			k++
		default:
			li, ri := j.runEnds(i, k, lv)
			for a := i; a < li; a++ {
				for b := k; b < ri; b++ {
					result = append(result, Merge(j.leftRows[a], j.rightRows[b]))
				}
			}
			i, k = li, ri
		}
	}
	return result
}

func (j *MergeJoin) runEnds(i, k int, matchVal types.Value) (int, int) {
	li := i
	for li < len(j.leftRows) {
		v, _ := j.eval.Eval(j.LeftKey, j.leftRows[li])
		if types.Compare(v, matchVal) != 0 {
			break
		}
		li++
	}
	ri := k
	for ri < len(j.rightRows) {
		v, _ := j.eval.Eval(j.RightKey, j.rightRows[ri])
		if types.Compare(v, matchVal) != 0 {
			break
		}
		ri++
	}
	return li, ri
}

// mergeOuter preserves every left-hand row, padding with NULLs when no
// right-hand row matches. swap reverses the merge order, used to implement
// RIGHT JOIN as a LEFT JOIN with sides exchanged.
func (j *MergeJoin) mergeOuter(left, right []Tuple, leftKey, rightKey ast.Expr, swap bool) []Tuple {
	var result []Tuple
	i, k := 0, 0
	for i < len(left) {
		lv, _ := j.eval.Eval(leftKey, left[i])
		if lv.Null || k >= len(right) {
			result = append(result, j.padded(left[i], right, swap))
			i++
			continue
		}
		rv, _ := j.eval.Eval(rightKey, right[k])
		if rv.Null {
			k++
			continue
		}
		cmp := types.Compare(lv, rv)
		switch {
		case cmp < 0:
			result = append(result, j.padded(left[i], right, swap))
			i++
		case cmp > 0:
			k++
		default:
			matchVal := lv
			li, ki := i, k
			for li < len(left) {
				v, _ := j.eval.Eval(leftKey, left[li])
				if types.Compare(v, matchVal) != 0 {
					break
				}
				li++
			}
			for ki < len(right) {
				v, _ := j.eval.Eval(rightKey, right[ki])
				if types.Compare(v, matchVal) != 0 {
					break
				}
				ki++
			}
			for a := i; a < li; a++ {
				for b := k; b < ki; b++ {
					if swap {
						result = append(result, Merge(right[b], left[a]))
					} else {
						result = append(result, Merge(left[a], right[b]))
					}
				}
			}
			i, k = li, ki
		}
	}
	return result
}

func (j *MergeJoin) padded(row Tuple, other []Tuple, swap bool) Tuple {
	pad := nullTuple(other)
	if swap {
		return Merge(pad, row)
	}
	return Merge(row, pad)
}

func (j *MergeJoin) mergeFull() []Tuple {
	var result []Tuple
	i, k := 0, 0
	for i < len(j.leftRows) || k < len(j.rightRows) {
		switch {
		case k >= len(j.rightRows):
			result = append(result, j.padded(j.leftRows[i], j.rightRows, false))
			i++
		case i >= len(j.leftRows):
			result = append(result, j.padded(j.rightRows[k], j.leftRows, true))
			k++
		default:
			lv, _ := j.eval.Eval(j.LeftKey, j.leftRows[i])
			rv, _ := j.eval.Eval(j.RightKey, j.rightRows[k])
			if lv.Null {
				result = append(result, j.padded(j.leftRows[i], j.rightRows, false))
				i++
				continue
			}
			if rv.Null {
				result = append(result, j.padded(j.rightRows[k], j.leftRows, true))
				k++
				continue
			}
			cmp := types.Compare(lv, rv)
			switch {
			case cmp < 0:
				result = append(result, j.padded(j.leftRows[i], j.rightRows, false))
				i++
			case cmp > 0:
				result = append(result, j.padded(j.rightRows[k], j.leftRows, true))
				k++
			default:
				li, ri := j.runEnds(i, k, lv)
				for a := i; a < li; a++ {
					for b := k; b < ri; b++ {
						result = append(result, Merge(j.leftRows[a], j.rightRows[b]))
					}
				}
				i, k = li, ri
			}
		}
	}
	return result
}

func (j *MergeJoin) Next() (Tuple, error) {
	if j.pos >= len(j.out) {
		return nil, nil
	}
	row := j.out[j.pos]
	j.pos++
	return row, nil
}

func (j *MergeJoin) Close() error {
	if err := j.Left.Close(); err != nil {
		return err
	}
	return j.Right.Close()
}
