package heap

import (
	"strconv"
	"strings"
	"time"

	"coredb/dberr"
	"coredb/types"
)

// CheckEvaluator evaluates a stored CHECK constraint's expression text
// against a candidate row. It is satisfied by the engine's expression
// evaluator once sql/ast exists; heap access only depends on the interface
// so it stays free of a dependency on the SQL front end.
type CheckEvaluator interface {
	EvalCheck(expr string, row *types.Row) (bool, error)
}

// ApplyDefaults fills in any column missing from row with its declared
// DEFAULT literal, per spec.md §4.6 point 2.
func ApplyDefaults(schema *types.TableSchema, row *types.Row) error {
	for _, col := range schema.Columns {
		key := strings.ToLower(col.Name)
		if _, present := row.Values[key]; present {
			continue
		}
		if !col.HasDefault {
			row.Values[key] = types.NullValue(col.Type)
			continue
		}
		v, err := parseLiteral(col.Default, col.Type)
		if err != nil {
			return dberr.Wrap(dberr.ConstraintViolation, err, "default for column %s", col.Name)
		}
		row.Values[key] = v
	}
	return nil
}

// ValidateNotNull rejects a row that leaves a NOT NULL column NULL.
func ValidateNotNull(schema *types.TableSchema, row *types.Row) error {
	for _, col := range schema.Columns {
		if !col.NotNull {
			continue
		}
		v, ok := row.Values[strings.ToLower(col.Name)].(types.Value)
		if !ok || v.Null {
			return dberr.New(dberr.ConstraintViolation, "column %s is NOT NULL", col.Name)
		}
	}
	return nil
}

// CoerceTypes rewrites each value to its column's declared type when the
// stored value carries a different (but numerically compatible) tag —
// e.g. an INT literal landing in a BIGINT or DECIMAL column.
func CoerceTypes(schema *types.TableSchema, row *types.Row) error {
	for _, col := range schema.Columns {
		key := strings.ToLower(col.Name)
		raw, ok := row.Values[key]
		if !ok {
			continue
		}
		v, ok := raw.(types.Value)
		if !ok {
			return dberr.New(dberr.TypeError, "column %s: expected types.Value, got %T", col.Name, raw)
		}
		if v.Null || v.Type == col.Type {
			continue
		}
		coerced, err := coerceValue(v, col)
		if err != nil {
			return dberr.Wrap(dberr.TypeError, err, "column %s", col.Name)
		}
		row.Values[key] = coerced
	}
	return nil
}

func coerceValue(v types.Value, col types.ColumnDef) (types.Value, error) {
	switch col.Type {
	case types.ColBigInt:
		switch v.Type {
		case types.ColInt:
			return types.BigIntValue(v.Int), nil
		}
	case types.ColInt:
		switch v.Type {
		case types.ColBigInt:
			return types.IntValue(v.Int), nil
		}
	case types.ColDecimal:
		switch v.Type {
		case types.ColInt, types.ColBigInt:
			scale := col.Scale
			scaled := v.Int
			for i := 0; i < scale; i++ {
				scaled *= 10
			}
			return types.DecimalValue(scaled, types.ColDecimal), nil
		}
	case types.ColText:
		if v.Type == types.ColVarchar {
			out := v
			out.Type = types.ColText
			return out, nil
		}
	case types.ColVarchar:
		if v.Type == types.ColText {
			out := v
			out.Type = types.ColVarchar
			return out, nil
		}
	}
	return types.Value{}, dberr.New(dberr.TypeError, "cannot coerce %s value to %s", v.Type, col.Type)
}

// ValidateChecks runs every schema-level CHECK constraint against row.
// A nil evaluator skips enforcement (used before the engine wires one up).
func ValidateChecks(schema *types.TableSchema, row *types.Row, evaluator CheckEvaluator) error {
	if evaluator == nil {
		return nil
	}
	for _, chk := range schema.Checks {
		ok, err := evaluator.EvalCheck(chk.Expr, row)
		if err != nil {
			return dberr.Wrap(dberr.ConstraintViolation, err, "check %s", chk.Name)
		}
		if !ok {
			return dberr.New(dberr.ConstraintViolation, "check constraint %q violated", chk.Name)
		}
	}
	return nil
}

func parseLiteral(lit string, t types.ColumnType) (types.Value, error) {
	switch t {
	case types.ColInt:
		n, err := strconv.ParseInt(lit, 10, 32)
		if err != nil {
			return types.Value{}, err
		}
		return types.IntValue(n), nil
	case types.ColBigInt:
		n, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return types.Value{}, err
		}
		return types.BigIntValue(n), nil
	case types.ColDecimal:
		n, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return types.Value{}, err
		}
		return types.DecimalValue(n, types.ColDecimal), nil
	case types.ColVarchar:
		return types.StrValue(strings.Trim(lit, "'\"")), nil
	case types.ColText:
		v := types.StrValue(strings.Trim(lit, "'\""))
		v.Type = types.ColText
		return v, nil
	case types.ColDate:
		parsed, err := time.Parse("2006-01-02", strings.Trim(lit, "'\""))
		if err != nil {
			return types.Value{}, err
		}
		return types.DateFromTime(parsed), nil
	case types.ColBool:
		b, err := strconv.ParseBool(lit)
		if err != nil {
			return types.Value{}, err
		}
		return types.BoolValue(b), nil
	default:
		return types.Value{}, dberr.New(dberr.TypeError, "unknown column type %s", t)
	}
}
