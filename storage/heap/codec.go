package heap

import (
	"encoding/binary"
	"strings"

	"coredb/dberr"
	"coredb/types"
)

// EncodeRow serializes row's columns, in schema order, into the byte layout
// a heap record holds: a leading NULL bitmap (one bit per column) followed
// by the fixed- or variable-width encoding of every non-NULL value.
// Grounded on the column-at-a-time layout of the original SerializeRow, but
// covers the full spec.md §6 type list instead of just INT/FLOAT/VARCHAR.
func EncodeRow(schema *types.TableSchema, row *types.Row) ([]byte, error) {
	bitmapLen := (len(schema.Columns) + 7) / 8
	bitmap := make([]byte, bitmapLen)
	body := make([]byte, 0, 64)

	for i, col := range schema.Columns {
		raw, ok := row.Values[strings.ToLower(col.Name)]
		if !ok {
			return nil, dberr.New(dberr.ConstraintViolation, "missing value for column %s", col.Name)
		}
		val, ok := raw.(types.Value)
		if !ok {
			return nil, dberr.New(dberr.TypeError, "column %s: expected types.Value, got %T", col.Name, raw)
		}
		if val.Null {
			bitmap[i/8] |= 1 << (i % 8)
			continue
		}
		body = appendValue(body, val)
	}

	out := make([]byte, 0, bitmapLen+len(body))
	out = append(out, bitmap...)
	out = append(out, body...)
	return out, nil
}

func appendValue(buf []byte, v types.Value) []byte {
	switch v.Type {
	case types.ColInt:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(int32(v.Int)))
		return append(buf, b[:]...)
	case types.ColBigInt, types.ColDecimal:
		var b [8]byte
		n := v.Int
		if v.Type == types.ColDecimal {
			n = v.Decimal
		}
		binary.LittleEndian.PutUint64(b[:], uint64(n))
		return append(buf, b[:]...)
	case types.ColVarchar, types.ColText:
		lenBytes := 2
		if v.Type == types.ColText {
			lenBytes = 4
		}
		s := []byte(v.Str)
		if lenBytes == 2 {
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], uint16(len(s)))
			buf = append(buf, b[:]...)
		} else {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(len(s)))
			buf = append(buf, b[:]...)
		}
		return append(buf, s...)
	case types.ColDate:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v.Date))
		return append(buf, b[:]...)
	case types.ColBool:
		if v.Bool {
			return append(buf, 1)
		}
		return append(buf, 0)
	default:
		return buf
	}
}

// DecodeRow is EncodeRow's inverse: it reads the NULL bitmap, then decodes
// each non-NULL column's bytes according to schema order.
func DecodeRow(data []byte, schema *types.TableSchema) (*types.Row, error) {
	bitmapLen := (len(schema.Columns) + 7) / 8
	if len(data) < bitmapLen {
		return nil, dberr.New(dberr.IOError, "row too short for NULL bitmap")
	}
	bitmap := data[:bitmapLen]
	offset := bitmapLen

	values := make(map[string]any, len(schema.Columns))
	for i, col := range schema.Columns {
		isNull := bitmap[i/8]&(1<<(i%8)) != 0
		key := strings.ToLower(col.Name)
		if isNull {
			values[key] = types.NullValue(col.Type)
			continue
		}
		v, n, err := readValue(data[offset:], col.Type)
		if err != nil {
			return nil, dberr.Wrap(dberr.IOError, err, "column %s", col.Name)
		}
		values[key] = v
		offset += n
	}
	if offset != len(data) {
		return nil, dberr.New(dberr.IOError, "row has %d trailing bytes after decoding", len(data)-offset)
	}
	return &types.Row{Values: values}, nil
}

func readValue(b []byte, t types.ColumnType) (types.Value, int, error) {
	switch t {
	case types.ColInt:
		if len(b) < 4 {
			return types.Value{}, 0, dberr.New(dberr.IOError, "not enough bytes for INT")
		}
		n := int32(binary.LittleEndian.Uint32(b[:4]))
		return types.IntValue(int64(n)), 4, nil
	case types.ColBigInt:
		if len(b) < 8 {
			return types.Value{}, 0, dberr.New(dberr.IOError, "not enough bytes for BIGINT")
		}
		return types.BigIntValue(int64(binary.LittleEndian.Uint64(b[:8]))), 8, nil
	case types.ColDecimal:
		if len(b) < 8 {
			return types.Value{}, 0, dberr.New(dberr.IOError, "not enough bytes for DECIMAL")
		}
		return types.DecimalValue(int64(binary.LittleEndian.Uint64(b[:8])), types.ColDecimal), 8, nil
	case types.ColVarchar:
		if len(b) < 2 {
			return types.Value{}, 0, dberr.New(dberr.IOError, "not enough bytes for VARCHAR length")
		}
		l := int(binary.LittleEndian.Uint16(b[:2]))
		if len(b) < 2+l {
			return types.Value{}, 0, dberr.New(dberr.IOError, "VARCHAR length exceeds row size")
		}
		return types.StrValue(string(b[2 : 2+l])), 2 + l, nil
	case types.ColText:
		if len(b) < 4 {
			return types.Value{}, 0, dberr.New(dberr.IOError, "not enough bytes for TEXT length")
		}
		l := int(binary.LittleEndian.Uint32(b[:4]))
		if len(b) < 4+l {
			return types.Value{}, 0, dberr.New(dberr.IOError, "TEXT length exceeds row size")
		}
		v := types.StrValue(string(b[4 : 4+l]))
		v.Type = types.ColText
		return v, 4 + l, nil
	case types.ColDate:
		if len(b) < 4 {
			return types.Value{}, 0, dberr.New(dberr.IOError, "not enough bytes for DATE")
		}
		return types.DateValue(int32(binary.LittleEndian.Uint32(b[:4]))), 4, nil
	case types.ColBool:
		if len(b) < 1 {
			return types.Value{}, 0, dberr.New(dberr.IOError, "not enough bytes for BOOL")
		}
		return types.BoolValue(b[0] != 0), 1, nil
	default:
		return types.Value{}, 0, dberr.New(dberr.TypeError, "unknown column type %s", t)
	}
}
