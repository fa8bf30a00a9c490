package planner

import (
	"strings"

	"coredb/dberr"
	"coredb/sql/ast"
	"coredb/sql/parser"
)

var aggregateFuncs = map[string]bool{
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true,
}

// Build turns a parsed SELECT into a logical plan, expanding any view
// reference in FROM or a JOIN into the view's own stored query. maxViewDepth
// bounds that expansion against a view defined in terms of itself.
func Build(stmt *ast.SelectStmt, ctx *ExecContext) (Operator, error) {
	logical, err := buildLogical(stmt, ctx, 0)
	if err != nil {
		return nil, err
	}
	return Optimize(logical, ctx)
}

const maxViewDepth = 16

func buildLogical(stmt *ast.SelectStmt, ctx *ExecContext, depth int) (LogicalNode, error) {
	if depth > maxViewDepth {
		return nil, dberr.New(dberr.SemanticError, "view expansion nested too deeply (possible cycle)")
	}

	node, err := buildSource(stmt.From, stmt.FromAlias, ctx, depth)
	if err != nil {
		return nil, err
	}

	for _, j := range stmt.Joins {
		right, err := buildSource(j.Table, j.Alias, ctx, depth)
		if err != nil {
			return nil, err
		}
		node = &LogicalJoin{Left: node, Right: right, Type: j.Type, On: j.On}
	}

	if stmt.Where != nil {
		node = &LogicalFilter{Input: node, Predicate: stmt.Where}
	}

	aggs := collectAggregates(stmt)
	if len(stmt.GroupBy) > 0 || len(aggs) > 0 {
		node = &LogicalAggregate{Input: node, GroupBy: stmt.GroupBy, Aggregates: aggs, Having: stmt.Having}
	} else if stmt.Having != nil {
		node = &LogicalFilter{Input: node, Predicate: stmt.Having}
	}

	node = &LogicalProject{Input: node, Items: buildProjectItems(stmt.Columns)}

	if stmt.Distinct {
		node = &LogicalDistinct{Input: node}
	}

	if len(stmt.OrderBy) > 0 {
		keys := make([]SortKey, len(stmt.OrderBy))
		for i, ob := range stmt.OrderBy {
			keys[i] = SortKey{Expr: ob.Expr, Desc: ob.Desc}
		}
		node = &LogicalSort{Input: node, Keys: keys}
	}

	if stmt.Limit != nil {
		node = &LogicalLimit{Input: node, N: *stmt.Limit}
	}

	return node, nil
}

// buildSource resolves one FROM/JOIN table reference: a base table becomes
// a LogicalScan, a view name is re-parsed from its stored Query text and
// expanded in place as a nested subplan.
func buildSource(table, alias string, ctx *ExecContext, depth int) (LogicalNode, error) {
	if alias == "" {
		alias = table
	}
	if ctx != nil && ctx.Catalog != nil && !ctx.Catalog.TableExists(table) {
		if view, err := ctx.Catalog.GetView(table); err == nil {
			viewStmt, err := parser.Parse(view.Query)
			if err != nil {
				return nil, dberr.Wrap(dberr.SemanticError, err, "re-parsing view %q", table)
			}
			sel, ok := viewStmt.(*ast.SelectStmt)
			if !ok {
				return nil, dberr.New(dberr.SemanticError, "view %q does not hold a SELECT", table)
			}
			inner, err := buildLogical(sel, ctx, depth+1)
			if err != nil {
				return nil, err
			}
			return &viewSubplan{alias: alias, inner: inner}, nil
		}
	}
	return &LogicalScan{Table: table, Alias: alias}, nil
}

// viewSubplan wraps an expanded view's logical plan so downstream column
// lookups can still be qualified by the view's alias instead of leaking the
// underlying base tables' names.
type viewSubplan struct {
	alias string
	inner LogicalNode
}

func (n *viewSubplan) Children() []LogicalNode { return []LogicalNode{n.inner} }

func buildProjectItems(cols []ast.SelectItem) []ProjectItem {
	items := make([]ProjectItem, 0, len(cols))
	for _, c := range cols {
		if c.Star {
			items = append(items, ProjectItem{Star: true})
			continue
		}
		items = append(items, ProjectItem{Expr: c.Expr, Alias: c.Alias})
	}
	return items
}

// collectAggregates walks the select list and HAVING clause for aggregate
// function calls, tagging each with a stable key so HashAggregate's output
// tuple and the later Project/Having evaluation agree on where to find it.
func collectAggregates(stmt *ast.SelectStmt) []AggregateCall {
	var out []AggregateCall
	seen := map[string]bool{}
	visit := func(e ast.Expr) {
		walkExpr(e, func(n ast.Expr) {
			call, ok := n.(*ast.FuncCall)
			if !ok || !aggregateFuncs[strings.ToUpper(call.Name)] {
				return
			}
			key := aggregateKey(call)
			if seen[key] {
				return
			}
			seen[key] = true
			var arg ast.Expr
			if len(call.Args) > 0 {
				arg = call.Args[0]
			}
			out = append(out, AggregateCall{
				Func:     strings.ToUpper(call.Name),
				Arg:      arg,
				Distinct: call.Distinct,
				Star:     call.Star,
				Key:      key,
			})
		})
	}
	for _, c := range stmt.Columns {
		if c.Expr != nil {
			visit(c.Expr)
		}
	}
	if stmt.Having != nil {
		visit(stmt.Having)
	}
	return out
}

func aggregateKey(call *ast.FuncCall) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(call.Name))
	b.WriteByte('(')
	if call.Distinct {
		b.WriteString("DISTINCT ")
	}
	if call.Star {
		b.WriteString("*")
	} else if len(call.Args) > 0 {
		b.WriteString(ExprText(call.Args[0]))
	}
	b.WriteByte(')')
	return b.String()
}

// walkExpr visits every subexpression of e, depth-first, calling visit on
// each node including e itself. Subquery bodies are not descended into —
// their aggregates belong to their own plan, not this one's.
func walkExpr(e ast.Expr, visit func(ast.Expr)) {
	if e == nil {
		return
	}
	visit(e)
	switch n := e.(type) {
	case *ast.UnaryExpr:
		walkExpr(n.Expr, visit)
	case *ast.BinaryExpr:
		walkExpr(n.Left, visit)
		walkExpr(n.Right, visit)
	case *ast.IsNullExpr:
		walkExpr(n.Expr, visit)
	case *ast.BetweenExpr:
		walkExpr(n.Expr, visit)
		walkExpr(n.Low, visit)
		walkExpr(n.High, visit)
	case *ast.LikeExpr:
		walkExpr(n.Expr, visit)
		walkExpr(n.Pattern, visit)
	case *ast.InExpr:
		walkExpr(n.Expr, visit)
		for _, item := range n.List {
			walkExpr(item, visit)
		}
	case *ast.FuncCall:
		for _, a := range n.Args {
			walkExpr(a, visit)
		}
	}
}
