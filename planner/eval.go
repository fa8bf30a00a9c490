package planner

import (
	"strconv"
	"strings"

	"coredb/dberr"
	"coredb/sql/ast"
	"coredb/types"
)

// Eval computes expr's value against tuple. Subqueries are evaluated by
// recursively building and draining a physical plan for the inner SELECT,
// which is why Eval takes an Evaluator rather than being a free function —
// it needs a way back into Build/Optimize without an import cycle.
type Evaluator struct {
	ctx *ExecContext
}

func NewEvaluator(ctx *ExecContext) *Evaluator {
	return &Evaluator{ctx: ctx}
}

func (e *Evaluator) Eval(expr ast.Expr, row Tuple) (types.Value, error) {
	switch n := expr.(type) {
	case nil:
		return types.Value{Null: true}, nil
	case *ast.NumberLiteral:
		return parseNumberLiteral(n.Text)
	case *ast.StringLiteral:
		return types.StrValue(n.Value), nil
	case *ast.BoolLiteral:
		return types.BoolValue(n.Value), nil
	case *ast.NullLiteral:
		return types.Value{Null: true}, nil
	case *ast.ColumnRef:
		return row.Lookup(n.Table, n.Name)
	case *ast.UnaryExpr:
		return e.evalUnary(n, row)
	case *ast.BinaryExpr:
		return e.evalBinary(n, row)
	case *ast.IsNullExpr:
		v, err := e.Eval(n.Expr, row)
		if err != nil {
			return types.Value{}, err
		}
		return types.BoolValue(v.Null != n.Not), nil
	case *ast.BetweenExpr:
		return e.evalBetween(n, row)
	case *ast.LikeExpr:
		return e.evalLike(n, row)
	case *ast.InExpr:
		return e.evalIn(n, row)
	case *ast.ExistsExpr:
		return e.evalExists(n, row)
	case *ast.ScalarSubquery:
		return e.evalScalarSubquery(n, row)
	case *ast.FuncCall:
		// An aggregate call reaching Eval means a HashAggregate upstream
		// already computed it and stashed the result under its own key
		// (see aggregateKey); any other function call is unsupported.
		if aggregateFuncs[strings.ToUpper(n.Name)] {
			if v, ok := row[qualify("", aggregateKey(n))]; ok {
				return v, nil
			}
			return types.Value{}, dberr.New(dberr.SemanticError, "aggregate %s used outside GROUP BY context", n.Name)
		}
		return types.Value{}, dberr.New(dberr.SemanticError, "unknown function %s", n.Name)
	}
	return types.Value{}, dberr.New(dberr.SemanticError, "cannot evaluate expression of type %T", expr)
}

func parseNumberLiteral(text string) (types.Value, error) {
	if strings.Contains(text, ".") {
		parts := strings.SplitN(text, ".", 2)
		scale := len(parts[1])
		n, err := strconv.ParseInt(parts[0]+parts[1], 10, 64)
		if err != nil {
			return types.Value{}, dberr.Wrap(dberr.TypeError, err, "invalid number literal %q", text)
		}
		v := types.DecimalValue(n, types.ColDecimal)
		_ = scale // scale is implied by the declared column's DECIMAL(p,s) on comparison/coercion, not stored on the literal itself
		return v, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return types.Value{}, dberr.Wrap(dberr.TypeError, err, "invalid number literal %q", text)
	}
	return types.IntValue(n), nil
}

func isNumeric(t types.ColumnType) bool {
	return t == types.ColInt || t == types.ColBigInt || t == types.ColDecimal
}

func numericOf(v types.Value) int64 {
	if v.Type == types.ColDecimal {
		return v.Decimal
	}
	return v.Int
}

func (e *Evaluator) evalUnary(n *ast.UnaryExpr, row Tuple) (types.Value, error) {
	v, err := e.Eval(n.Expr, row)
	if err != nil {
		return types.Value{}, err
	}
	switch n.Op {
	case "NOT":
		if v.Type != types.ColBool {
			return types.Value{}, dberr.New(dberr.TypeError, "NOT requires a boolean operand")
		}
		return types.BoolValue(!v.Bool), nil
	case "-":
		if !isNumeric(v.Type) {
			return types.Value{}, dberr.New(dberr.TypeError, "unary - requires a numeric operand")
		}
		if v.Type == types.ColDecimal {
			return types.DecimalValue(-v.Decimal, types.ColDecimal), nil
		}
		return types.Value{Type: v.Type, Int: -v.Int}, nil
	case "+":
		return v, nil
	}
	return types.Value{}, dberr.New(dberr.SemanticError, "unknown unary operator %q", n.Op)
}

func (e *Evaluator) evalBinary(n *ast.BinaryExpr, row Tuple) (types.Value, error) {
	switch n.Op {
	case "AND", "OR":
		left, err := e.Eval(n.Left, row)
		if err != nil {
			return types.Value{}, err
		}
		if left.Type != types.ColBool {
			return types.Value{}, dberr.New(dberr.TypeError, "%s requires boolean operands", n.Op)
		}
		if n.Op == "AND" && !left.Bool {
			return types.BoolValue(false), nil
		}
		if n.Op == "OR" && left.Bool {
			return types.BoolValue(true), nil
		}
		right, err := e.Eval(n.Right, row)
		if err != nil {
			return types.Value{}, err
		}
		if right.Type != types.ColBool {
			return types.Value{}, dberr.New(dberr.TypeError, "%s requires boolean operands", n.Op)
		}
		return right, nil
	}

	left, err := e.Eval(n.Left, row)
	if err != nil {
		return types.Value{}, err
	}
	right, err := e.Eval(n.Right, row)
	if err != nil {
		return types.Value{}, err
	}
	if left.Null || right.Null {
		if isComparison(n.Op) {
			return types.BoolValue(false), nil
		}
		return types.Value{Null: true}, nil
	}

	switch n.Op {
	case "=", "<>", "<", "<=", ">", ">=":
		return evalCompare(n.Op, left, right)
	case "+", "-", "*", "/", "%":
		return evalArith(n.Op, left, right)
	}
	return types.Value{}, dberr.New(dberr.SemanticError, "unknown binary operator %q", n.Op)
}

func isComparison(op string) bool {
	switch op {
	case "=", "<>", "<", "<=", ">", ">=":
		return true
	}
	return false
}

func evalCompare(op string, left, right types.Value) (types.Value, error) {
	var cmp int
	switch {
	case isNumeric(left.Type) && isNumeric(right.Type):
		cmp = compareInt64(numericOf(left), numericOf(right))
	case left.Type == types.ColVarchar || left.Type == types.ColText:
		cmp = strings.Compare(left.Str, right.Str)
	case left.Type == types.ColDate:
		cmp = compareInt64(int64(left.Date), int64(right.Date))
	case left.Type == types.ColBool:
		cmp = compareInt64(boolToInt(left.Bool), boolToInt(right.Bool))
	default:
		return types.Value{}, dberr.New(dberr.TypeError, "cannot compare %s and %s", left.Type, right.Type)
	}
	switch op {
	case "=":
		return types.BoolValue(cmp == 0), nil
	case "<>":
		return types.BoolValue(cmp != 0), nil
	case "<":
		return types.BoolValue(cmp < 0), nil
	case "<=":
		return types.BoolValue(cmp <= 0), nil
	case ">":
		return types.BoolValue(cmp > 0), nil
	case ">=":
		return types.BoolValue(cmp >= 0), nil
	}
	return types.Value{}, dberr.New(dberr.SemanticError, "unknown comparison operator %q", op)
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func evalArith(op string, left, right types.Value) (types.Value, error) {
	if !isNumeric(left.Type) || !isNumeric(right.Type) {
		return types.Value{}, dberr.New(dberr.TypeError, "arithmetic requires numeric operands")
	}
	a, b := numericOf(left), numericOf(right)
	resultType := types.ColBigInt
	if left.Type == types.ColDecimal || right.Type == types.ColDecimal {
		resultType = types.ColDecimal
	}
	var n int64
	switch op {
	case "+":
		n = a + b
	case "-":
		n = a - b
	case "*":
		n = a * b
	case "/":
		if b == 0 {
			return types.Value{}, dberr.New(dberr.ConstraintViolation, "division by zero")
		}
		n = a / b
	case "%":
		if b == 0 {
			return types.Value{}, dberr.New(dberr.ConstraintViolation, "division by zero")
		}
		n = a % b
	}
	if resultType == types.ColDecimal {
		return types.DecimalValue(n, types.ColDecimal), nil
	}
	return types.BigIntValue(n), nil
}

func (e *Evaluator) evalBetween(n *ast.BetweenExpr, row Tuple) (types.Value, error) {
	v, err := e.Eval(n.Expr, row)
	if err != nil {
		return types.Value{}, err
	}
	low, err := e.Eval(n.Low, row)
	if err != nil {
		return types.Value{}, err
	}
	high, err := e.Eval(n.High, row)
	if err != nil {
		return types.Value{}, err
	}
	ge, err := evalCompare(">=", v, low)
	if err != nil {
		return types.Value{}, err
	}
	le, err := evalCompare("<=", v, high)
	if err != nil {
		return types.Value{}, err
	}
	result := ge.Bool && le.Bool
	return types.BoolValue(result != n.Not), nil
}

func (e *Evaluator) evalLike(n *ast.LikeExpr, row Tuple) (types.Value, error) {
	v, err := e.Eval(n.Expr, row)
	if err != nil {
		return types.Value{}, err
	}
	pat, err := e.Eval(n.Pattern, row)
	if err != nil {
		return types.Value{}, err
	}
	matched := likeMatch(v.Str, pat.Str)
	return types.BoolValue(matched != n.Not), nil
}

// likeMatch implements SQL LIKE's two wildcards: % (any run of characters)
// and _ (exactly one character), via straightforward recursive matching —
// patterns in a teaching-grade engine are short, so backtracking cost is
// not a concern here.
func likeMatch(s, pattern string) bool {
	if pattern == "" {
		return s == ""
	}
	switch pattern[0] {
	case '%':
		if likeMatch(s, pattern[1:]) {
			return true
		}
		for i := 0; i < len(s); i++ {
			if likeMatch(s[i+1:], pattern[1:]) {
				return true
			}
		}
		return false
	case '_':
		return len(s) > 0 && likeMatch(s[1:], pattern[1:])
	default:
		return len(s) > 0 && s[0] == pattern[0] && likeMatch(s[1:], pattern[1:])
	}
}

func (e *Evaluator) evalIn(n *ast.InExpr, row Tuple) (types.Value, error) {
	v, err := e.Eval(n.Expr, row)
	if err != nil {
		return types.Value{}, err
	}
	if n.Subquery != nil {
		values, err := e.runSubquery(n.Subquery)
		if err != nil {
			return types.Value{}, err
		}
		for _, cand := range values {
			cmp, err := evalCompare("=", v, cand)
			if err == nil && cmp.Bool {
				return types.BoolValue(!n.Not), nil
			}
		}
		return types.BoolValue(n.Not), nil
	}
	for _, item := range n.List {
		cand, err := e.Eval(item, row)
		if err != nil {
			return types.Value{}, err
		}
		cmp, err := evalCompare("=", v, cand)
		if err == nil && cmp.Bool {
			return types.BoolValue(!n.Not), nil
		}
	}
	return types.BoolValue(n.Not), nil
}

func (e *Evaluator) evalExists(n *ast.ExistsExpr, row Tuple) (types.Value, error) {
	values, err := e.runSubquery(n.Subquery)
	if err != nil {
		return types.Value{}, err
	}
	return types.BoolValue((len(values) > 0) != n.Not), nil
}

func (e *Evaluator) evalScalarSubquery(n *ast.ScalarSubquery, row Tuple) (types.Value, error) {
	values, err := e.runSubquery(n.Query)
	if err != nil {
		return types.Value{}, err
	}
	if len(values) == 0 {
		return types.Value{Null: true}, nil
	}
	return values[0], nil
}

// runSubquery plans and fully drains the subquery's first projected column,
// used by scalar subqueries, IN (SELECT ...), and EXISTS.
func (e *Evaluator) runSubquery(stmt *ast.SelectStmt) ([]types.Value, error) {
	if e.ctx == nil {
		return nil, dberr.New(dberr.SemanticError, "subqueries require an execution context")
	}
	op, err := Build(stmt, e.ctx)
	if err != nil {
		return nil, err
	}
	if err := op.Open(); err != nil {
		return nil, err
	}
	defer op.Close()

	var out []types.Value
	for {
		tuple, err := op.Next()
		if err != nil {
			return nil, err
		}
		if tuple == nil {
			break
		}
		for _, v := range tuple {
			out = append(out, v)
			break
		}
	}
	return out, nil
}
