package bplustree

import (
	"encoding/binary"

	"coredb/dberr"
	"coredb/types"
)

// EncodeKey turns a column value into the raw byte key used for tree
// ordering and comparison via DefaultKeyCompare (bytes.Compare). Grounded
// on storage_engine/serialization.go's ValueToBytes, but big-endian with
// the sign bit flipped on signed integers so bytes.Compare agrees with
// numeric order — ValueToBytes's little-endian encoding only happened to
// work there because the teacher's tree never actually range-scanned by key.
func EncodeKey(v types.Value) ([]byte, error) {
	if v.Null {
		return nil, dberr.New(dberr.TypeError, "cannot build an index key from NULL")
	}
	switch v.Type {
	case types.ColInt, types.ColBigInt:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.Int)^signBit)
		return b[:], nil
	case types.ColDecimal:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.Decimal)^signBit)
		return b[:], nil
	case types.ColDate:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(v.Date)^signBit32)
		return b[:], nil
	case types.ColVarchar, types.ColText:
		return []byte(v.Str), nil
	case types.ColBool:
		if v.Bool {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	default:
		return nil, dberr.New(dberr.TypeError, "cannot build an index key for column type %s", v.Type)
	}
}

const (
	signBit   uint64 = 1 << 63
	signBit32 uint32 = 1 << 31
)

// EncodeRID flattens a row pointer to the fixed-width value an index leaf
// entry stores, the same layout EncodeCompositeKey uses for its RID suffix.
func EncodeRID(rid types.RowPointer) []byte {
	out := make([]byte, ridSuffixLen)
	putU32(out, rid.FileID)
	putU32(out[4:], rid.PageNumber)
	putU16(out[8:], rid.SlotIndex)
	return out
}

// DecodeRID is EncodeRID's inverse.
func DecodeRID(b []byte) types.RowPointer {
	if len(b) < ridSuffixLen {
		return types.RowPointer{}
	}
	return types.RowPointer{
		FileID:     getU32(b[0:4]),
		PageNumber: getU32(b[4:8]),
		SlotIndex:  getU16(b[8:10]),
	}
}
