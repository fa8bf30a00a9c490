// Package types defines the tagged value variant, column schema, and wire
// encoding shared by every layer above the page format.
package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ColumnType is the fixed set of SQL types this engine understands.
type ColumnType string

const (
	ColInt     ColumnType = "INT"
	ColBigInt  ColumnType = "BIGINT"
	ColDecimal ColumnType = "DECIMAL"
	ColVarchar ColumnType = "VARCHAR"
	ColText    ColumnType = "TEXT"
	ColDate    ColumnType = "DATE"
	ColBool    ColumnType = "BOOL"
)

// Value is the tagged variant every operator and codec passes tuples
// around as. Exactly one of the typed fields is meaningful, selected by Type.
type Value struct {
	Type    ColumnType
	Null    bool
	Int     int64   // INT, BIGINT
	Decimal int64   // DECIMAL, scaled by the column's declared scale
	Str     string  // VARCHAR, TEXT
	Date    int32   // DATE, days since 1970-01-01
	Bool    bool    // BOOL
}

func NullValue(t ColumnType) Value { return Value{Type: t, Null: true} }

func IntValue(i int64) Value     { return Value{Type: ColInt, Int: i} }
func BigIntValue(i int64) Value  { return Value{Type: ColBigInt, Int: i} }
func StrValue(s string) Value    { return Value{Type: ColVarchar, Str: s} }
func BoolValue(b bool) Value     { return Value{Type: ColBool, Bool: b} }
func DecimalValue(scaled int64, t ColumnType) Value {
	return Value{Type: t, Decimal: scaled}
}
func DateValue(days int32) Value { return Value{Type: ColDate, Date: days}	}

// DateFromTime converts a civil date to days-since-epoch per spec.
func DateFromTime(t time.Time) Value {
	epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	days := int32(t.UTC().Sub(epoch).Hours() / 24)
	return DateValue(days)
}

func (v Value) String() string {
	if v.Null {
		return "NULL"
	}
	switch v.Type {
	case ColInt, ColBigInt:
		return strconv.FormatInt(v.Int, 10)
	case ColDecimal:
		return strconv.FormatInt(v.Decimal, 10)
	case ColVarchar, ColText:
		return v.Str
	case ColDate:
		epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
		return epoch.AddDate(0, 0, int(v.Date)).Format("2006-01-02")
	case ColBool:
		return strconv.FormatBool(v.Bool)
	default:
		return fmt.Sprintf("<%s>", v.Type)
	}
}

// Compare orders two values of the same type; NULLs sort before everything.
// Returns <0, 0, >0 like bytes.Compare.
func Compare(a, b Value) int {
	if a.Null && b.Null {
		return 0
	}
	if a.Null {
		return -1
	}
	if b.Null {
		return 1
	}
	switch a.Type {
	case ColInt, ColBigInt:
		return cmpInt64(a.Int, b.Int)
	case ColDecimal:
		return cmpInt64(a.Decimal, b.Decimal)
	case ColDate:
		return cmpInt64(int64(a.Date), int64(b.Date))
	case ColBool:
		if a.Bool == b.Bool {
			return 0
		}
		if !a.Bool {
			return -1
		}
		return 1
	default:
		return strings.Compare(a.Str, b.Str)
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// CompareValues compares two loosely-typed Go values as produced by the
// older map[string]any row representation used by introspection helpers.
// Kept for compatibility with code that has not been lifted to Value yet.
func CompareValues(a, b any) int {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs)
	}
	af, aerr := toFloat64(a)
	bf, berr := toFloat64(b)
	if aerr == nil && berr == nil {
		return cmpInt64(int64(af*1000), int64(bf*1000))
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}
