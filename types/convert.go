package types

import (
	"fmt"
	"strconv"
)

// ToInt coerces a loosely-typed value (as produced by the SQL front end or
// read back from JSON) to int32, per spec.md §4.6 point 2's "type coercion".
func ToInt(val any) (int32, error) {
	switch v := val.(type) {
	case int32:
		return v, nil
	case int:
		return int32(v), nil
	case int64:
		return int32(v), nil
	case float64:
		return int32(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to INT: %w", v, err)
		}
		return int32(n), nil
	default:
		return 0, fmt.Errorf("cannot coerce %v (%T) to INT", val, val)
	}
}

// ToFloat coerces a loosely-typed value to float32.
func ToFloat(val any) (float32, error) {
	switch v := val.(type) {
	case float32:
		return v, nil
	case float64:
		return float32(v), nil
	case int:
		return float32(v), nil
	case int32:
		return float32(v), nil
	case int64:
		return float32(v), nil
	case string:
		n, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to FLOAT: %w", v, err)
		}
		return float32(n), nil
	default:
		return 0, fmt.Errorf("cannot coerce %v (%T) to FLOAT", val, val)
	}
}

// ToString coerces a loosely-typed value to string.
func ToString(val any) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return fmt.Sprintf("%v", val), nil
	}
}

// ToInt64 coerces to int64, used by BIGINT/DECIMAL columns.
func ToInt64(val any) (int64, error) {
	switch v := val.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to BIGINT: %w", v, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot coerce %v (%T) to BIGINT", val, val)
	}
}

// ToBool coerces a loosely-typed value to bool.
func ToBool(val any) (bool, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("cannot coerce %q to BOOL: %w", v, err)
		}
		return b, nil
	default:
		return false, fmt.Errorf("cannot coerce %v (%T) to BOOL", val, val)
	}
}
