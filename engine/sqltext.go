package engine

import (
	"fmt"
	"strings"

	"coredb/sql/ast"
)

// exprText reconstructs SQL text for expr. Schema JSON and catalog.TriggerDef
// store CHECK constraints and trigger conditions/bodies as text rather than
// a serialized AST (see types.CheckConstraint's doc), so CREATE TABLE/CREATE
// TRIGGER must round-trip the parsed tree back into a string the engine can
// re-parse with parser.ParseExpr at enforcement time.
func exprText(e ast.Expr) string {
	if e == nil {
		return ""
	}
	switch n := e.(type) {
	case *ast.NumberLiteral:
		return n.Text
	case *ast.StringLiteral:
		return "'" + strings.ReplaceAll(n.Value, "'", "''") + "'"
	case *ast.BoolLiteral:
		if n.Value {
			return "TRUE"
		}
		return "FALSE"
	case *ast.NullLiteral:
		return "NULL"
	case *ast.ColumnRef:
		if n.Table != "" {
			return n.Table + "." + n.Name
		}
		return n.Name
	case *ast.ParamPlaceholder:
		return "?"
	case *ast.UnaryExpr:
		return fmt.Sprintf("%s %s", n.Op, exprText(n.Expr))
	case *ast.BinaryExpr:
		return fmt.Sprintf("(%s %s %s)", exprText(n.Left), n.Op, exprText(n.Right))
	case *ast.IsNullExpr:
		if n.Not {
			return exprText(n.Expr) + " IS NOT NULL"
		}
		return exprText(n.Expr) + " IS NULL"
	case *ast.BetweenExpr:
		not := ""
		if n.Not {
			not = "NOT "
		}
		return fmt.Sprintf("%s %sBETWEEN %s AND %s", exprText(n.Expr), not, exprText(n.Low), exprText(n.High))
	case *ast.LikeExpr:
		not := ""
		if n.Not {
			not = "NOT "
		}
		return fmt.Sprintf("%s %sLIKE %s", exprText(n.Expr), not, exprText(n.Pattern))
	case *ast.InExpr:
		not := ""
		if n.Not {
			not = "NOT "
		}
		items := make([]string, len(n.List))
		for i, it := range n.List {
			items[i] = exprText(it)
		}
		return fmt.Sprintf("%s %sIN (%s)", exprText(n.Expr), not, strings.Join(items, ", "))
	case *ast.FuncCall:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = exprText(a)
		}
		star := ""
		if n.Star {
			star = "*"
		}
		distinct := ""
		if n.Distinct {
			distinct = "DISTINCT "
		}
		return fmt.Sprintf("%s(%s%s%s)", n.Name, distinct, star, strings.Join(args, ", "))
	default:
		return ""
	}
}

func exprTextOrEmpty(e ast.Expr) string {
	if e == nil {
		return ""
	}
	return exprText(e)
}

// stmtText reconstructs SQL text for the statement kinds allowed as a
// trigger body: INSERT, UPDATE, DELETE.
func stmtText(s ast.Statement) string {
	switch n := s.(type) {
	case *ast.InsertStmt:
		cols := ""
		if len(n.Columns) > 0 {
			cols = " (" + strings.Join(n.Columns, ", ") + ")"
		}
		rows := make([]string, len(n.Values))
		for i, vals := range n.Values {
			parts := make([]string, len(vals))
			for j, v := range vals {
				parts[j] = exprText(v)
			}
			rows[i] = "(" + strings.Join(parts, ", ") + ")"
		}
		return fmt.Sprintf("INSERT INTO %s%s VALUES %s", n.Table, cols, strings.Join(rows, ", "))
	case *ast.UpdateStmt:
		sets := make([]string, len(n.Assignments))
		for i, a := range n.Assignments {
			sets[i] = a.Column + " = " + exprText(a.Value)
		}
		text := fmt.Sprintf("UPDATE %s SET %s", n.Table, strings.Join(sets, ", "))
		if n.Where != nil {
			text += " WHERE " + exprText(n.Where)
		}
		return text
	case *ast.DeleteStmt:
		text := "DELETE FROM " + n.Table
		if n.Where != nil {
			text += " WHERE " + exprText(n.Where)
		}
		return text
	default:
		return ""
	}
}
