package bplustree

import (
	"coredb/storage/buffer"
	"coredb/storage/diskmanager"
	"coredb/types"
)

// Open loads an existing tree rooted at whatever diskmanager last persisted
// for fileID, or creates a fresh single-leaf root if none exists yet.
// userCmp orders raw user keys; for a non-unique index pass unique=false
// and userCmp is automatically wrapped to also break ties on RID.
func Open(fileID uint32, pool *buffer.Pool, disk *diskmanager.Manager, unique bool, userCmp func(a, b []byte) int) (*Tree, error) {
	if userCmp == nil {
		userCmp = DefaultKeyCompare
	}
	cmp := userCmp
	if !unique {
		cmp = compositeCompare(userCmp)
	}
	t := &Tree{fileID: fileID, pool: pool, disk: disk, cmp: cmp, unique: unique}

	rootID, err := disk.ReadRootID(fileID)
	if err == nil && rootID > 0 {
		t.root = rootID
		return t, nil
	}

	// WriteRootID/WriteMetadata always target the file's physical page 0
	// directly, outside the normal AllocatePage bookkeeping. Burn local page
	// 0 here so the first real node lands on page 1 and never collides with
	// the root-id metadata page on disk.
	if _, err := disk.AllocatePage(fileID, types.PageTypeMetadata); err != nil {
		return nil, err
	}

	n, pg, nerr := t.newNode(NodeLeaf)
	if nerr != nil {
		return nil, nerr
	}
	t.root = n.pageID
	t.releaseNode(pg, true)
	if err := t.saveRoot(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) saveRoot() error {
	return t.disk.WriteRootID(t.fileID, t.root)
}

func (t *Tree) Close() error {
	return t.saveRoot()
}

func (t *Tree) keyFor(userKey []byte, rid types.RowPointer) []byte {
	if t.unique {
		return userKey
	}
	return EncodeCompositeKey(userKey, rid)
}

// lowerBound returns the index of the first key >= target.
func lowerBound(keys [][]byte, target []byte, cmp func(a, b []byte) int) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(keys[mid], target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func insertAt[T any](s []T, idx int, v T) []T {
	s = append(s, v)
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

func removeAt[T any](s []T, idx int) []T {
	return append(s[:idx], s[idx+1:]...)
}
