// Package page holds the in-memory frame representation shared by the heap
// and B+ tree codecs. The page format itself (header layout, slot
// directory, node layout) lives next to the code that writes it, per
// spec.md §4.3 — this package only owns what the buffer pool needs to pin,
// dirty-track, and hand around.
package page

import (
	"sync"

	"coredb/types"
)

const (
	PageSize      = types.PageSize
	PageLSNOffset = 0 // first 8 bytes of every page = LSN
	PageTypeOffset = 8
	ChecksumOffset = 9 // 4-byte xxhash checksum of the remaining body, written by diskmanager on flush
)

// Page is one resident frame. LSN is kept in memory for fast comparison
// against the WAL's flushed-LSN watermark (spec.md invariant 1); it mirrors
// the first 8 bytes of Data once the page is serialized.
type Page struct {
	ID       int64
	FileID   uint32
	Data     []byte
	IsDirty  bool
	PinCount int32
	PageType types.PageType
	LSN      uint64

	mu sync.RWMutex
}

func New(id int64, fileID uint32, pageType types.PageType) *Page {
	return &Page{
		ID:       id,
		FileID:   fileID,
		Data:     make([]byte, PageSize),
		PageType: pageType,
	}
}

func (p *Page) Lock()    { p.mu.Lock() }
func (p *Page) Unlock()  { p.mu.Unlock() }
func (p *Page) RLock()   { p.mu.RLock() }
func (p *Page) RUnlock() { p.mu.RUnlock() }
