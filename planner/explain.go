package planner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"coredb/sql/ast"
)

// ExprText renders expr back to SQL-ish text, used both as a projected
// column's default name (SELECT price * qty has no alias, so the output
// column is named "price * qty") and by EXPLAIN to print predicates.
func ExprText(expr ast.Expr) string {
	switch n := expr.(type) {
	case nil:
		return ""
	case *ast.NumberLiteral:
		return n.Text
	case *ast.StringLiteral:
		return "'" + n.Value + "'"
	case *ast.BoolLiteral:
		return strconv.FormatBool(n.Value)
	case *ast.NullLiteral:
		return "NULL"
	case *ast.ParamPlaceholder:
		return "?"
	case *ast.ColumnRef:
		if n.Table != "" {
			return n.Table + "." + n.Name
		}
		return n.Name
	case *ast.UnaryExpr:
		return n.Op + " " + ExprText(n.Expr)
	case *ast.BinaryExpr:
		return ExprText(n.Left) + " " + n.Op + " " + ExprText(n.Right)
	case *ast.IsNullExpr:
		if n.Not {
			return ExprText(n.Expr) + " IS NOT NULL"
		}
		return ExprText(n.Expr) + " IS NULL"
	case *ast.BetweenExpr:
		not := ""
		if n.Not {
			not = "NOT "
		}
		return fmt.Sprintf("%s %sBETWEEN %s AND %s", ExprText(n.Expr), not, ExprText(n.Low), ExprText(n.High))
	case *ast.LikeExpr:
		not := ""
		if n.Not {
			not = "NOT "
		}
		return fmt.Sprintf("%s %sLIKE %s", ExprText(n.Expr), not, ExprText(n.Pattern))
	case *ast.InExpr:
		not := ""
		if n.Not {
			not = "NOT "
		}
		if n.Subquery != nil {
			return fmt.Sprintf("%s %sIN (...)", ExprText(n.Expr), not)
		}
		parts := make([]string, len(n.List))
		for i, e := range n.List {
			parts[i] = ExprText(e)
		}
		return fmt.Sprintf("%s %sIN (%s)", ExprText(n.Expr), not, strings.Join(parts, ", "))
	case *ast.ExistsExpr:
		if n.Not {
			return "NOT EXISTS (...)"
		}
		return "EXISTS (...)"
	case *ast.ScalarSubquery:
		return "(...)"
	case *ast.FuncCall:
		var b strings.Builder
		b.WriteString(n.Name)
		b.WriteByte('(')
		if n.Star {
			b.WriteString("*")
		} else {
			if n.Distinct {
				b.WriteString("DISTINCT ")
			}
			parts := make([]string, len(n.Args))
			for i, a := range n.Args {
				parts[i] = ExprText(a)
			}
			b.WriteString(strings.Join(parts, ", "))
		}
		b.WriteByte(')')
		return b.String()
	default:
		return fmt.Sprintf("%v", expr)
	}
}

// Explain renders stmt's chosen physical operator tree as an indented text
// tree, the same tree Build would hand to a caller's Open/Next/Close loop —
// so EXPLAIN reflects every selection rule Optimize actually applied
// (IndexScan substitution, which join algorithm was picked, Sort elision),
// not just the unoptimized logical shape. Grounded on spec.md §6's EXPLAIN
// surface; go-humanize formats the row-count estimates for readability.
func Explain(stmt *ast.SelectStmt, ctx *ExecContext) (string, error) {
	logical, err := buildLogical(stmt, ctx, 0)
	if err != nil {
		return "", err
	}
	op, err := Optimize(logical, ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	explainOperator(&b, op, 0)
	return b.String(), nil
}

func explainOperator(b *strings.Builder, op Operator, depth int) {
	indent := strings.Repeat("  ", depth)
	rows := humanize.Comma(estimateOp(op))

	switch n := op.(type) {
	case *SeqScan:
		fmt.Fprintf(b, "%sSeqScan %s AS %s (~%s rows)\n", indent, n.table, n.alias, rows)
	case *IndexScan:
		fmt.Fprintf(b, "%sIndexScan %s.%s AS %s (~%s rows)\n", indent, n.table, n.indexName, n.alias, rows)
	case *Filter:
		fmt.Fprintf(b, "%sFilter %s (~%s rows)\n", indent, ExprText(n.Predicate), rows)
		explainOperator(b, n.Input, depth+1)
	case *Project:
		fmt.Fprintf(b, "%sProject (~%s rows)\n", indent, rows)
		explainOperator(b, n.Input, depth+1)
	case *Rename:
		fmt.Fprintf(b, "%sRename AS %s (~%s rows)\n", indent, n.Alias, rows)
		explainOperator(b, n.Input, depth+1)
	case *NestedLoopJoin:
		fmt.Fprintf(b, "%sNestedLoopJoin %s ON %s (~%s rows)\n", indent, n.JoinType, ExprText(n.On), rows)
		explainOperator(b, n.Outer, depth+1)
		explainOperator(b, n.Inner, depth+1)
	case *HashJoin:
		fmt.Fprintf(b, "%sHashJoin %s ON %s (~%s rows)\n", indent, n.JoinType, ExprText(n.On), rows)
		explainOperator(b, n.Build, depth+1)
		explainOperator(b, n.Probe, depth+1)
	case *MergeJoin:
		fmt.Fprintf(b, "%sMergeJoin %s ON %s (~%s rows)\n", indent, n.JoinType, ExprText(n.On), rows)
		explainOperator(b, n.Left, depth+1)
		explainOperator(b, n.Right, depth+1)
	case *HashAggregate:
		fmt.Fprintf(b, "%sAggregate (~%s rows)\n", indent, rows)
		explainOperator(b, n.Input, depth+1)
	case *Sort:
		fmt.Fprintf(b, "%sSort (~%s rows)\n", indent, rows)
		explainOperator(b, n.Input, depth+1)
	case *Limit:
		fmt.Fprintf(b, "%sLimit %d (~%s rows)\n", indent, n.N, rows)
		explainOperator(b, n.Input, depth+1)
	case *DistinctOp:
		fmt.Fprintf(b, "%sDistinct (~%s rows)\n", indent, rows)
		explainOperator(b, n.Input, depth+1)
	default:
		fmt.Fprintf(b, "%s%T (~%s rows)\n", indent, op, rows)
	}
}

// estimateOp mirrors estimate's logical-node heuristic but walks the
// physical tree Explain actually has in hand, since an IndexScan or a
// chosen join algorithm has no 1:1 logical-node counterpart to read the
// estimate from once Optimize has run.
func estimateOp(op Operator) int64 {
	switch n := op.(type) {
	case *SeqScan:
		return 1000
	case *IndexScan:
		return 100
	case *Filter:
		return estimateOp(n.Input)/2 + 1
	case *Project:
		return estimateOp(n.Input)
	case *Rename:
		return estimateOp(n.Input)
	case *NestedLoopJoin:
		return estimateOp(n.Outer) * estimateOp(n.Inner) / 100
	case *HashJoin:
		return estimateOp(n.Build) * estimateOp(n.Probe) / 100
	case *MergeJoin:
		return estimateOp(n.Left) * estimateOp(n.Right) / 100
	case *HashAggregate:
		return estimateOp(n.Input)/10 + 1
	case *Sort:
		return estimateOp(n.Input)
	case *Limit:
		est := estimateOp(n.Input)
		if n.N < est {
			return n.N
		}
		return est
	case *DistinctOp:
		return estimateOp(n.Input)
	default:
		return 1000
	}
}
