package bplustree

import "coredb/types"

// ridSuffixLen is the fixed width of a RowPointer once flattened to bytes:
// FileID(4) + PageNumber(4) + SlotIndex(2).
const ridSuffixLen = 10

// EncodeCompositeKey appends rid's fixed-width encoding to userKey. Indexes
// opened with Unique=false store entries under composite keys so that two
// rows sharing the same user-visible key still occupy distinct, strictly
// ordered slots in the tree (spec.md §4.4's tie-breaking rule for
// non-unique indexes).
func EncodeCompositeKey(userKey []byte, rid types.RowPointer) []byte {
	out := make([]byte, len(userKey)+ridSuffixLen)
	copy(out, userKey)
	n := len(userKey)
	putU32(out[n:], rid.FileID)
	putU32(out[n+4:], rid.PageNumber)
	putU16(out[n+8:], rid.SlotIndex)
	return out
}

func splitCompositeKey(key []byte) ([]byte, types.RowPointer) {
	if len(key) < ridSuffixLen {
		return key, types.RowPointer{}
	}
	n := len(key) - ridSuffixLen
	suffix := key[n:]
	rid := types.RowPointer{
		FileID:     getU32(suffix[0:4]),
		PageNumber: getU32(suffix[4:8]),
		SlotIndex:  getU16(suffix[8:10]),
	}
	return key[:n], rid
}

// compositeCompare wraps userCmp to additionally order by each composite
// key's trailing RID once the user-key prefixes are equal.
func compositeCompare(userCmp func(a, b []byte) int) func(a, b []byte) int {
	return func(a, b []byte) int {
		au, ar := splitCompositeKey(a)
		bu, br := splitCompositeKey(b)
		if c := userCmp(au, bu); c != 0 {
			return c
		}
		return compareRID(ar, br)
	}
}

func compareRID(a, b types.RowPointer) int {
	switch {
	case a.FileID != b.FileID:
		if a.FileID < b.FileID {
			return -1
		}
		return 1
	case a.PageNumber != b.PageNumber:
		if a.PageNumber < b.PageNumber {
			return -1
		}
		return 1
	case a.SlotIndex != b.SlotIndex:
		if a.SlotIndex < b.SlotIndex {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func getU16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
