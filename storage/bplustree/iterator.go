package bplustree

import (
	"coredb/dberr"
	"coredb/types"
)

// Iterator walks leaf entries in key order starting from a SeekGE position,
// following leaf-to-leaf next links (spec.md §4.4) rather than re-descending
// from the root on every Next.
type Iterator struct {
	t     *Tree
	leaf  *Node
	index int
	valid bool
}

// SeekGE positions a new iterator at the first entry whose key is >= userKey
// (composite keys on a non-unique index are matched on their user-key
// prefix, so a scan sees every RID sharing that key).
func (t *Tree) SeekGE(userKey []byte) (*Iterator, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	prefix := userKey
	if !t.unique {
		prefix = EncodeCompositeKey(userKey, types.RowPointer{})
	}

	leaf, err := t.FindLeaf(prefix)
	if err != nil {
		return nil, err
	}
	idx := lowerBound(leaf.keys, prefix, t.cmp)
	it := &Iterator{t: t, leaf: leaf, index: idx, valid: true}
	it.skipToValid()
	return it, nil
}

func (it *Iterator) skipToValid() {
	for it.valid && it.index >= len(it.leaf.keys) {
		if it.leaf.next < 0 {
			it.valid = false
			return
		}
		n, pg, err := it.t.fetchNode(it.leaf.next)
		if err != nil {
			it.valid = false
			return
		}
		it.t.releaseNode(pg, false)
		it.leaf = n
		it.index = 0
	}
}

func (it *Iterator) Next() bool {
	if !it.valid {
		return false
	}
	it.index++
	it.skipToValid()
	return it.valid
}

func (it *Iterator) Key() []byte {
	if !it.valid {
		return nil
	}
	if it.t.unique {
		return it.leaf.keys[it.index]
	}
	userKey, _ := splitCompositeKey(it.leaf.keys[it.index])
	return userKey
}

func (it *Iterator) Value() []byte {
	if !it.valid {
		return nil
	}
	return it.leaf.values[it.index]
}

func (it *Iterator) Close() error {
	it.valid = false
	return nil
}

func (it *Iterator) Err() error {
	if it.t == nil {
		return dberr.New(dberr.IOError, "iterator not initialized")
	}
	return nil
}
