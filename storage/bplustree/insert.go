package bplustree

import (
	"coredb/dberr"
	"coredb/storage/page"
	"coredb/types"
)

// Insert adds userKey/value under rid's composite key (for non-unique
// indexes) or userKey itself (for unique indexes), splitting leaves and
// internal nodes bottom-up as needed.
func (t *Tree) Insert(userKey, value []byte, rid types.RowPointer) error {
	if len(userKey) > MaxKeyLen {
		return dberr.New(dberr.IOError, "key exceeds MaxKeyLen (%d bytes)", MaxKeyLen)
	}
	if len(value) > MaxValLen {
		return dberr.New(dberr.IOError, "value exceeds MaxValLen (%d bytes)", MaxValLen)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	key := t.keyFor(userKey, rid)

	leafID, err := t.findLeafPageID(key)
	if err != nil {
		return err
	}
	leafPg, err := t.pool.FetchPage(leafID)
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "fetch leaf")
	}
	leafPg.Lock()
	leaf := readNode(leafPg, t.fileID)

	idx := lowerBound(leaf.keys, key, t.cmp)
	if idx < len(leaf.keys) && t.cmp(leaf.keys[idx], key) == 0 {
		if t.unique {
			leafPg.Unlock()
			t.releaseNode(leafPg, false)
			return dberr.New(dberr.ConstraintViolation, "duplicate key in unique index")
		}
		// composite key collision: same user key and same RID, treat as upsert.
		leaf.values[idx] = value
		writeNode(leafPg, leaf, t.fileID)
		leafPg.Unlock()
		t.releaseNode(leafPg, true)
		return nil
	}
	leaf.keys = insertAt(leaf.keys, idx, key)
	leaf.values = insertAt(leaf.values, idx, value)

	if len(leaf.keys) <= MaxKeys {
		writeNode(leafPg, leaf, t.fileID)
		leafPg.Unlock()
		t.releaseNode(leafPg, true)
		return nil
	}

	right, promoted, err := t.splitLeaf(leaf, leafPg)
	leafPg.Unlock()
	t.releaseNode(leafPg, true)
	if err != nil {
		return err
	}
	return t.insertIntoParent(leaf, promoted, right)
}

func (t *Tree) findLeafPageID(key []byte) (int64, error) {
	pageID := t.root
	for {
		n, pg, err := t.fetchNode(pageID)
		if err != nil {
			return 0, err
		}
		if n.nodeType == NodeLeaf {
			t.releaseNode(pg, false)
			return pageID, nil
		}
		idx := lowerBound(n.keys, key, t.cmp)
		if idx < len(n.keys) && t.cmp(n.keys[idx], key) == 0 {
			idx++
		}
		t.releaseNode(pg, false)
		pageID = n.children[idx]
	}
}

// splitLeaf moves the upper half of left's entries into a fresh right
// sibling, linking them and returning the key promoted to the parent (the
// right sibling's first key, which stays on the right per B+ tree leaf
// splits so every key is still reachable by range scan).
func (t *Tree) splitLeaf(left *Node, leftPg *page.Page) (*Node, []byte, error) {
	right, rightPg, err := t.newNode(NodeLeaf)
	if err != nil {
		return nil, nil, err
	}
	mid := len(left.keys) / 2
	right.keys = append(right.keys, left.keys[mid:]...)
	right.values = append(right.values, left.values[mid:]...)
	left.keys = left.keys[:mid]
	left.values = left.values[:mid]

	right.next = left.next
	left.next = right.pageID
	right.parent = left.parent

	writeNode(leftPg, left, t.fileID)
	writeNode(rightPg, right, t.fileID)
	t.releaseNode(rightPg, true)

	promoted := append([]byte(nil), right.keys[0]...)
	return right, promoted, nil
}

// insertIntoParent links a freshly split right sibling into left's parent
// under promoted, recursively splitting internal nodes and growing a new
// root as needed.
func (t *Tree) insertIntoParent(left *Node, promoted []byte, right *Node) error {
	if left.parent < 0 {
		return t.createNewRoot(left, promoted, right)
	}

	parent, parentPg, err := t.fetchNode(left.parent)
	if err != nil {
		return err
	}
	parentPg.Lock()

	idx := lowerBound(parent.keys, promoted, t.cmp)
	parent.keys = insertAt(parent.keys, idx, promoted)
	parent.children = insertAt(parent.children, idx+1, right.pageID)

	right.parent = parent.pageID
	rp, err := t.pool.FetchPage(right.pageID)
	if err == nil {
		rp.Lock()
		writeNode(rp, right, t.fileID)
		rp.Unlock()
		t.pool.UnpinPage(rp.ID, true)
	}

	if len(parent.keys) <= MaxKeys {
		writeNode(parentPg, parent, t.fileID)
		parentPg.Unlock()
		t.releaseNode(parentPg, true)
		return nil
	}

	newRight, promoted2, err := t.splitInternal(parent, parentPg)
	parentPg.Unlock()
	t.releaseNode(parentPg, true)
	if err != nil {
		return err
	}
	return t.insertIntoParent(parent, promoted2, newRight)
}

// splitInternal moves the upper half of left's keys/children into a fresh
// right sibling. Unlike a leaf split, the middle key moves UP to the
// parent rather than staying in either node, since internal node keys are
// separators, not data.
func (t *Tree) splitInternal(left *Node, leftPg *page.Page) (*Node, []byte, error) {
	right, rightPg, err := t.newNode(NodeInternal)
	if err != nil {
		return nil, nil, err
	}
	mid := len(left.keys) / 2
	promoted := append([]byte(nil), left.keys[mid]...)

	right.keys = append(right.keys, left.keys[mid+1:]...)
	right.children = append(right.children, left.children[mid+1:]...)
	left.keys = left.keys[:mid]
	left.children = left.children[:mid+1]
	right.parent = left.parent

	for _, childID := range right.children {
		if err := t.reparent(childID, right.pageID); err != nil {
			return nil, nil, err
		}
	}

	writeNode(leftPg, left, t.fileID)
	writeNode(rightPg, right, t.fileID)
	t.releaseNode(rightPg, true)
	return right, promoted, nil
}

func (t *Tree) reparent(childID int64, newParent int64) error {
	pg, err := t.pool.FetchPage(childID)
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "fetch child %d for reparent", childID)
	}
	pg.Lock()
	n := readNode(pg, t.fileID)
	n.parent = newParent
	writeNode(pg, n, t.fileID)
	pg.Unlock()
	return t.pool.UnpinPage(pg.ID, true)
}

func (t *Tree) createNewRoot(left *Node, promoted []byte, right *Node) error {
	root, rootPg, err := t.newNode(NodeInternal)
	if err != nil {
		return err
	}
	root.keys = [][]byte{promoted}
	root.children = []int64{left.pageID, right.pageID}
	writeNode(rootPg, root, t.fileID)
	t.releaseNode(rootPg, true)

	if err := t.reparent(left.pageID, root.pageID); err != nil {
		return err
	}
	if err := t.reparent(right.pageID, root.pageID); err != nil {
		return err
	}
	t.root = root.pageID
	return t.saveRoot()
}
