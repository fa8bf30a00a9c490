package types

const (
	PageSize = 4096 // 4KiB page, per spec.md §6

	// HeapPageHeaderSize covers the shared frame header (LSN+PageType+checksum,
	// offsets 0-12, see storage/page.PageLSNOffset/PageTypeOffset/ChecksumOffset)
	// plus the heap-specific fields at offsets 13-32 (FileID, PageNo,
	// RecordEndPtr, SlotRegionStart, NumRows, NumRowsFree, IsPageFull, SlotCount).
	HeapPageHeaderSize = 33
	SlotSize           = 4 // 4 bytes per slot entry (offset: 2B, length: 2B)
)

// PageType tags the contents of a page so the buffer pool and disk manager
// can tell fresh pages from corrupted ones on read.
type PageType uint8

const (
	PageTypeUnknown PageType = iota
	PageTypeHeapData
	PageTypeBPlusInternal
	PageTypeBPlusLeaf
	PageTypeMetadata
)
