package planner

import (
	"sort"
	"strings"

	"coredb/dberr"
	"coredb/sql/ast"
	"coredb/storage/bplustree"
	"coredb/types"
)

// Operator is the pull-based iterator contract every physical node
// implements: Open allocates scan/build-side state, Next returns the next
// tuple by reference (callers must not retain it across the following
// Next call — the same underlying map may be reused), and a nil tuple with
// a nil error signals end of input. Close releases whatever Open acquired,
// on every exit path including an error partway through iteration.
type Operator interface {
	Open() error
	Next() (Tuple, error)
	Close() error
}

// SeqScan reads every live row of a table, in heap order.
type SeqScan struct {
	ctx   *ExecContext
	table string
	alias string

	schema  types.TableSchema
	ptrs    []types.RowPointer
	pos     int
}

func NewSeqScan(ctx *ExecContext, table, alias string) *SeqScan {
	return &SeqScan{ctx: ctx, table: table, alias: alias}
}

func (s *SeqScan) Open() error {
	schema, err := s.ctx.Catalog.GetTableSchema(s.table)
	if err != nil {
		return err
	}
	hf, err := s.ctx.Heap.GetHeapFileByTable(s.table)
	if err != nil {
		return err
	}
	s.schema = schema
	s.ptrs = hf.GetAllRowPointers()
	s.pos = 0
	return nil
}

func (s *SeqScan) Next() (Tuple, error) {
	if s.pos >= len(s.ptrs) {
		return nil, nil
	}
	rp := s.ptrs[s.pos]
	s.pos++
	row, err := s.ctx.Heap.GetLogicalRow(&rp, &s.schema)
	if err != nil {
		return nil, err
	}
	return NewTuple(s.alias, row), nil
}

func (s *SeqScan) Close() error { return nil }

// KeyRange bounds an IndexScan: a missing Low/High means unbounded on that
// side, LowIncl/HighIncl control whether the bound itself is matched.
type KeyRange struct {
	Low, High           *types.Value
	LowIncl, HighIncl bool
}

// IndexScan walks a B+ tree index's leaves in key order over [Low, High],
// substituted in for a SeqScan+Filter whenever the optimizer finds an
// equality or range predicate on the index's leading column.
type IndexScan struct {
	ctx       *ExecContext
	table     string
	alias     string
	indexName string
	rng       KeyRange

	schema types.TableSchema
	tree   *bplustree.Tree
	it     *bplustree.Iterator
}

func NewIndexScan(ctx *ExecContext, table, alias, indexName string, rng KeyRange) *IndexScan {
	return &IndexScan{ctx: ctx, table: table, alias: alias, indexName: indexName, rng: rng}
}

func (s *IndexScan) Open() error {
	schema, err := s.ctx.Catalog.GetTableSchema(s.table)
	if err != nil {
		return err
	}
	idxDef, err := s.ctx.Catalog.GetIndex(s.table, s.indexName)
	if err != nil {
		return err
	}
	tree, err := s.ctx.Index.GetOrCreateIndex(s.table, s.indexName, idxDef.Unique, bplustree.DefaultKeyCompare)
	if err != nil {
		return err
	}
	s.schema = schema
	s.tree = tree

	var seekKey []byte
	if s.rng.Low != nil {
		seekKey, err = bplustree.EncodeKey(*s.rng.Low)
		if err != nil {
			return err
		}
	}
	it, err := tree.SeekGE(seekKey)
	if err != nil {
		return err
	}
	s.it = it
	if s.rng.Low != nil && !s.rng.LowIncl {
		s.advancePastEqual(seekKey)
	}
	return nil
}

func (s *IndexScan) advancePastEqual(key []byte) {
	for s.it.Err() == nil {
		cur := s.it.Key()
		if cur == nil || bplustree.DefaultKeyCompare(cur, key) != 0 {
			return
		}
		if !s.it.Next() {
			return
		}
	}
}

func (s *IndexScan) Next() (Tuple, error) {
	for {
		key := s.it.Key()
		if key == nil {
			return nil, s.it.Err()
		}
		if s.rng.High != nil {
			highKey, err := bplustree.EncodeKey(*s.rng.High)
			if err != nil {
				return nil, err
			}
			cmp := bplustree.DefaultKeyCompare(key, highKey)
			if cmp > 0 || (cmp == 0 && !s.rng.HighIncl) {
				return nil, nil
			}
		}
		rid := bplustree.DecodeRID(s.it.Value())
		s.it.Next()

		row, err := s.ctx.Heap.GetLogicalRow(&rid, &s.schema)
		if err != nil {
			if dberr.KindOf(err) == dberr.NotFound {
				continue // stale index entry for a deleted row; keep scanning
			}
			return nil, err
		}
		return NewTuple(s.alias, row), nil
	}
}

func (s *IndexScan) Close() error { return nil }

// Filter drops every input tuple whose predicate does not evaluate true.
type Filter struct {
	Input     Operator
	Predicate ast.Expr
	eval      *Evaluator
}

func NewFilter(ctx *ExecContext, input Operator, predicate ast.Expr) *Filter {
	return &Filter{Input: input, Predicate: predicate, eval: NewEvaluator(ctx)}
}

func (f *Filter) Open() error { return f.Input.Open() }

func (f *Filter) Next() (Tuple, error) {
	for {
		row, err := f.Input.Next()
		if err != nil || row == nil {
			return row, err
		}
		v, err := f.eval.Eval(f.Predicate, row)
		if err != nil {
			return nil, err
		}
		if v.Type == types.ColBool && v.Bool {
			return row, nil
		}
	}
}

func (f *Filter) Close() error { return f.Input.Close() }

// Project evaluates each output expression against the input tuple,
// yielding a new tuple keyed by the projected column's alias (if unaliased,
// a plain column reference uses its bare column name and any other
// expression its rendered text). Star items copy every input column
// through unchanged.
type Project struct {
	Input Operator
	Items []ProjectItem
	eval  *Evaluator
}

func NewProject(ctx *ExecContext, input Operator, items []ProjectItem) *Project {
	return &Project{Input: input, Items: items, eval: NewEvaluator(ctx)}
}

func (p *Project) Open() error { return p.Input.Open() }

func (p *Project) Next() (Tuple, error) {
	row, err := p.Input.Next()
	if err != nil || row == nil {
		return row, err
	}
	// Output keeps the source row's qualified columns alongside the newly
	// projected ones, so a later ORDER BY can resolve either a select-list
	// alias or a plain input column that was never projected.
	out := make(Tuple, len(row)+len(p.Items))
	for k, v := range row {
		out[k] = v
	}
	for _, item := range p.Items {
		if item.Star {
			continue
		}
		v, err := p.eval.Eval(item.Expr, row)
		if err != nil {
			return nil, err
		}
		name := item.Alias
		if name == "" {
			if col, ok := item.Expr.(*ast.ColumnRef); ok {
				name = col.Name
			} else {
				name = ExprText(item.Expr)
			}
		}
		out[qualify("", name)] = v
	}
	return out, nil
}

func (p *Project) Close() error { return p.Input.Close() }

// Limit passes through at most N tuples, then reports end of input without
// draining the rest of its child — closing it is the caller's job via
// Close, which still propagates down so pinned pages are released.
type Limit struct {
	Input Operator
	N     int64
	seen  int64
}

func (l *Limit) Open() error { l.seen = 0; return l.Input.Open() }

func (l *Limit) Next() (Tuple, error) {
	if l.seen >= l.N {
		return nil, nil
	}
	row, err := l.Input.Next()
	if err != nil || row == nil {
		return row, err
	}
	l.seen++
	return row, nil
}

func (l *Limit) Close() error { return l.Input.Close() }

// Sort fully materializes its input, orders it by Keys, then streams the
// result. Used whenever ORDER BY cannot be satisfied by an IndexScan's or
// HashAggregate's own output order.
type Sort struct {
	ctx  *ExecContext
	Input Operator
	Keys []SortKey

	rows []Tuple
	pos  int
	eval *Evaluator
	err  error
}

func NewSort(ctx *ExecContext, input Operator, keys []SortKey) *Sort {
	return &Sort{ctx: ctx, Input: input, Keys: keys, eval: NewEvaluator(ctx)}
}

func (s *Sort) Open() error {
	if err := s.Input.Open(); err != nil {
		return err
	}
	s.rows = nil
	for {
		row, err := s.Input.Next()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		s.rows = append(s.rows, row)
	}
	sort.SliceStable(s.rows, func(i, j int) bool {
		return s.less(s.rows[i], s.rows[j])
	})
	s.pos = 0
	return nil
}

func (s *Sort) less(a, b Tuple) bool {
	for _, k := range s.Keys {
		va, err := s.eval.Eval(k.Expr, a)
		if err != nil {
			s.err = err
			return false
		}
		vb, err := s.eval.Eval(k.Expr, b)
		if err != nil {
			s.err = err
			return false
		}
		cmp := types.Compare(va, vb)
		if cmp == 0 {
			continue
		}
		if k.Desc {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}

func (s *Sort) Next() (Tuple, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.pos >= len(s.rows) {
		return nil, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *Sort) Close() error { return s.Input.Close() }

// DistinctOp dedupes rows by their full rendered contents, used for SELECT
// DISTINCT. It streams: each row's rendered contents are remembered in a
// hash set and a row is passed through only the first time it is seen.
type DistinctOp struct {
	Input Operator
	seen  map[string]bool
}

func (d *DistinctOp) Open() error {
	d.seen = make(map[string]bool)
	return d.Input.Open()
}

func (d *DistinctOp) Next() (Tuple, error) {
	for {
		row, err := d.Input.Next()
		if err != nil || row == nil {
			return row, err
		}
		key := tupleSignature(row)
		if d.seen[key] {
			continue
		}
		d.seen[key] = true
		return row, nil
	}
}

func (d *DistinctOp) Close() error { return d.Input.Close() }

// Rename re-qualifies every column of its input under a single alias,
// flattening a view's own base-table qualifiers so a query selecting FROM
// a view sees the view's alias rather than the names of the tables the
// view's defining SELECT happened to scan.
type Rename struct {
	Input Operator
	Alias string
}

func (r *Rename) Open() error { return r.Input.Open() }

func (r *Rename) Next() (Tuple, error) {
	row, err := r.Input.Next()
	if err != nil || row == nil {
		return row, err
	}
	out := make(Tuple, len(row))
	for k, v := range row {
		col := k
		if idx := strings.LastIndexByte(k, '.'); idx >= 0 {
			col = k[idx+1:]
		}
		out[qualify(r.Alias, col)] = v
	}
	return out, nil
}

func (r *Rename) Close() error { return r.Input.Close() }

func tupleSignature(row Tuple) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sig []byte
	for _, k := range keys {
		sig = append(sig, k...)
		sig = append(sig, '=')
		sig = append(sig, row[k].String()...)
		sig = append(sig, ';')
	}
	return string(sig)
}
