package bplustree

import (
	"coredb/dberr"
	"coredb/storage/page"
	"coredb/types"
)

// Node header sits after the shared frame header (LSN/PageType/checksum,
// offsets 0-12 — see storage/page.PageLSNOffset/PageTypeOffset/ChecksumOffset)
// so it never collides with the checksum the disk manager writes on flush.
const (
	offIsLeaf  = 13 // 1 byte: 0 = internal, 1 = leaf
	offNumKeys = 14 // 2 bytes
	offParent  = 16 // 4 bytes, local page number; noParent if root
	offNext    = 20 // 4 bytes, local page number; leaf right-sibling link
	NodeHeaderSize = 24
)

const noParent uint32 = 0xFFFFFFFF
const noNext uint32 = 0xFFFFFFFF

func localOf(pageID int64) uint32 { return uint32(pageID) }

func globalOf(fileID uint32, local uint32) int64 {
	return int64(fileID)<<32 | int64(local)
}

// newNode allocates a fresh page for n via the buffer pool and stamps it
// with the node-appropriate page type, splitting the teacher's single
// undifferentiated node page type into PageTypeBPlusInternal/PageTypeBPlusLeaf
// so the disk manager and recovery scanners can tell the two apart.
func (t *Tree) newNode(nodeType NodeType) (*Node, *page.Page, error) {
	pt := types.PageTypeBPlusInternal
	if nodeType == NodeLeaf {
		pt = types.PageTypeBPlusLeaf
	}
	pg, err := t.pool.NewPage(t.fileID, pt)
	if err != nil {
		return nil, nil, dberr.Wrap(dberr.IOError, err, "allocate node page")
	}
	n := &Node{
		pageID:   pg.ID,
		nodeType: nodeType,
		parent:   -1,
		next:     -1,
		isDirty:  true,
	}
	writeNode(pg, n, t.fileID)
	return n, pg, nil
}

// writeNode serializes n's current in-memory state into pg's body.
func writeNode(pg *page.Page, n *Node, fileID uint32) {
	buf := pg.Data
	if n.nodeType == NodeLeaf {
		buf[offIsLeaf] = 1
	} else {
		buf[offIsLeaf] = 0
	}
	putU16(buf[offNumKeys:], uint16(len(n.keys)))

	parentLocal := noParent
	if n.parent >= 0 {
		parentLocal = localOf(n.parent)
	}
	putU32(buf[offParent:], parentLocal)

	nextLocal := noNext
	if n.next >= 0 {
		nextLocal = localOf(n.next)
	}
	putU32(buf[offNext:], nextLocal)

	off := NodeHeaderSize
	for _, k := range n.keys {
		putU16(buf[off:], uint16(len(k)))
		off += 2
		copy(buf[off:], k)
		off += len(k)
	}
	if n.nodeType == NodeLeaf {
		for _, v := range n.values {
			putU16(buf[off:], uint16(len(v)))
			off += 2
			copy(buf[off:], v)
			off += len(v)
		}
	} else {
		for _, c := range n.children {
			putU32(buf[off:], localOf(c))
			off += 4
		}
	}
	pg.IsDirty = true
}

// readNode deserializes pg's body into a fresh Node.
func readNode(pg *page.Page, fileID uint32) *Node {
	buf := pg.Data
	n := &Node{pageID: pg.ID}
	if buf[offIsLeaf] == 1 {
		n.nodeType = NodeLeaf
	} else {
		n.nodeType = NodeInternal
	}
	numKeys := int(getU16(buf[offNumKeys:]))

	parentLocal := getU32(buf[offParent:])
	if parentLocal == noParent {
		n.parent = -1
	} else {
		n.parent = globalOf(fileID, parentLocal)
	}

	nextLocal := getU32(buf[offNext:])
	if nextLocal == noNext {
		n.next = -1
	} else {
		n.next = globalOf(fileID, nextLocal)
	}

	off := NodeHeaderSize
	n.keys = make([][]byte, numKeys)
	for i := 0; i < numKeys; i++ {
		l := int(getU16(buf[off:]))
		off += 2
		n.keys[i] = append([]byte(nil), buf[off:off+l]...)
		off += l
	}
	if n.nodeType == NodeLeaf {
		n.values = make([][]byte, numKeys)
		for i := 0; i < numKeys; i++ {
			l := int(getU16(buf[off:]))
			off += 2
			n.values[i] = append([]byte(nil), buf[off:off+l]...)
			off += l
		}
	} else {
		n.children = make([]int64, numKeys+1)
		for i := 0; i < numKeys+1; i++ {
			local := getU32(buf[off:])
			off += 4
			n.children[i] = globalOf(fileID, local)
		}
	}
	return n
}

// fetchNode pins and decodes the node at pageID. Callers must UnpinPage when
// done, passing true if they mutated the node (and called writeNode/flush).
func (t *Tree) fetchNode(pageID int64) (*Node, *page.Page, error) {
	pg, err := t.pool.FetchPage(pageID)
	if err != nil {
		return nil, nil, dberr.Wrap(dberr.IOError, err, "fetch node page %d", pageID)
	}
	pg.RLock()
	n := readNode(pg, t.fileID)
	pg.RUnlock()
	return n, pg, nil
}

func (t *Tree) releaseNode(pg *page.Page, dirty bool) {
	t.pool.UnpinPage(pg.ID, dirty)
}
