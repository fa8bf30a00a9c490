package bplustree

import "coredb/dberr"

// FindLeaf descends from the root to the leaf that would contain key,
// pinning and unpinning internal nodes as it goes, and returns the decoded
// leaf node with its page already unpinned.
func (t *Tree) FindLeaf(key []byte) (*Node, error) {
	pageID := t.root
	for {
		n, pg, err := t.fetchNode(pageID)
		if err != nil {
			return nil, err
		}
		if n.nodeType == NodeLeaf {
			t.releaseNode(pg, false)
			return n, nil
		}
		idx := lowerBound(n.keys, key, t.cmp)
		if idx < len(n.keys) && t.cmp(n.keys[idx], key) == 0 {
			idx++
		}
		t.releaseNode(pg, false)
		pageID = n.children[idx]
	}
}

// Search returns the value stored under key, or dberr.NotFound.
func (t *Tree) Search(userKey []byte) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.unique {
		return nil, dberr.New(dberr.IOError, "Search requires a unique index; use SeekGE on a non-unique index")
	}
	leaf, err := t.FindLeaf(userKey)
	if err != nil {
		return nil, err
	}
	idx := lowerBound(leaf.keys, userKey, t.cmp)
	if idx >= len(leaf.keys) || t.cmp(leaf.keys[idx], userKey) != 0 {
		return nil, dberr.New(dberr.NotFound, "key not found")
	}
	return leaf.values[idx], nil
}
