package planner

import "coredb/sql/ast"

// LogicalNode is one node of the logical plan tree Build produces from a
// parsed SELECT, per spec.md §4.7's {TableScan, Filter, Project, Join,
// Aggregate, Sort, Limit, SubqueryExpr} node set. Optimize turns a tree of
// these into a tree of physical Operators.
type LogicalNode interface {
	Children() []LogicalNode
}

type LogicalScan struct {
	Table string
	Alias string
}

func (n *LogicalScan) Children() []LogicalNode { return nil }

type LogicalFilter struct {
	Input     LogicalNode
	Predicate ast.Expr
}

func (n *LogicalFilter) Children() []LogicalNode { return []LogicalNode{n.Input} }

// ProjectItem is one output column: either a bare expression, an aliased
// one (AS alias), or Star (SELECT *, passing every input column through).
type ProjectItem struct {
	Star  bool
	Expr  ast.Expr
	Alias string
}

type LogicalProject struct {
	Input LogicalNode
	Items []ProjectItem
}

func (n *LogicalProject) Children() []LogicalNode { return []LogicalNode{n.Input} }

type LogicalJoin struct {
	Left, Right LogicalNode
	Type        ast.JoinType
	On          ast.Expr
}

func (n *LogicalJoin) Children() []LogicalNode { return []LogicalNode{n.Left, n.Right} }

// AggregateCall is one aggregate expression in the select list or HAVING
// clause (COUNT/SUM/AVG/MIN/MAX), keyed by its rendered text so Project and
// Having can look the computed value back up after HashAggregate runs.
type AggregateCall struct {
	Func     string
	Arg      ast.Expr
	Distinct bool
	Star     bool
	Key      string
}

type LogicalAggregate struct {
	Input      LogicalNode
	GroupBy    []ast.Expr
	Aggregates []AggregateCall
	Having     ast.Expr
}

func (n *LogicalAggregate) Children() []LogicalNode { return []LogicalNode{n.Input} }

type SortKey struct {
	Expr ast.Expr
	Desc bool
}

type LogicalSort struct {
	Input LogicalNode
	Keys  []SortKey
}

func (n *LogicalSort) Children() []LogicalNode { return []LogicalNode{n.Input} }

type LogicalLimit struct {
	Input LogicalNode
	N     int64
}

func (n *LogicalLimit) Children() []LogicalNode { return []LogicalNode{n.Input} }

// LogicalDistinct dedupes rows on every projected column, used for SELECT
// DISTINCT. Implemented as its own node rather than folded into Project;
// Optimize always lowers it to the hash-based DistinctOp.
type LogicalDistinct struct {
	Input LogicalNode
}

func (n *LogicalDistinct) Children() []LogicalNode { return []LogicalNode{n.Input} }
