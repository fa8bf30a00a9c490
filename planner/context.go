package planner

import (
	"go.uber.org/zap"

	"coredb/catalog"
	"coredb/storage/bplustree"
	"coredb/storage/heap"
)

// ExecContext bundles the storage handles a plan needs to actually run:
// schema lookups, heap access for SeqScan, and index access for IndexScan.
// One ExecContext is shared by every operator in a single statement's plan.
type ExecContext struct {
	Catalog *catalog.Manager
	Heap    *heap.HeapFileManager
	Index   *bplustree.IndexFileManager
	Log     *zap.Logger
}

func NewExecContext(cat *catalog.Manager, hfm *heap.HeapFileManager, ifm *bplustree.IndexFileManager, log *zap.Logger) *ExecContext {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExecContext{Catalog: cat, Heap: hfm, Index: ifm, Log: log}
}
