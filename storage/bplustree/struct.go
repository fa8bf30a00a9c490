// Package bplustree implements the disk-backed B+ tree index manager
// described in spec.md §4.4: internal nodes carry keys and child pointers,
// leaves carry keys and values and are linked for range scans, and every
// leaf sits at the same depth.
package bplustree

import (
	"bytes"
	"sync"

	"coredb/storage/buffer"
	"coredb/storage/diskmanager"
)

type NodeType int

const (
	NodeInternal NodeType = iota
	NodeLeaf
)

const (
	MaxKeys = 32
	MinKeys = MaxKeys / 2

	MaxKeyLen = 256
	MaxValLen = 4096
)

// Node is the in-memory form of one page: either an internal node (keys +
// child pointers) or a leaf (keys + values, linked via next).
type Node struct {
	pageID   int64
	nodeType NodeType
	keys     [][]byte
	children []int64
	values   [][]byte
	next     int64
	parent   int64

	isDirty bool
	pincnt  int16
	mu      sync.RWMutex
}

// Tree is one B+ tree index, backed by its own file in the shared buffer
// pool and disk manager. Unique controls whether cmp compares raw user keys
// (primary/unique secondary indexes) or composite user-key+RID keys
// (non-unique secondary indexes, spec.md §4.4's tie-breaking rule).
type Tree struct {
	fileID uint32
	root   int64
	pool   *buffer.Pool
	disk   *diskmanager.Manager
	cmp    func(a, b []byte) int
	unique bool
	mu     sync.RWMutex
}

// DefaultKeyCompare is the ordering used for raw user keys absent a
// type-aware comparator (e.g. numeric keys encoded big-endian so that
// byte-order already matches numeric order).
func DefaultKeyCompare(a, b []byte) int { return bytes.Compare(a, b) }
