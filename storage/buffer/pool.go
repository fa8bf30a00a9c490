// Package buffer implements the fixed-capacity page cache described in
// spec.md §4.2: pin-counted frames, a dirty bit gated by the WAL's flushed
// LSN, and a clock (second-chance) replacement policy.
package buffer

import (
	"encoding/binary"
	"sync"

	"go.uber.org/zap"

	"coredb/dberr"
	"coredb/storage/diskmanager"
	"coredb/storage/page"
	"coredb/types"
)

// WALFlushedLSNGetter is the narrow slice of the WAL manager the pool needs
// to enforce "page flush happens-after its LSN is durable" (spec.md §5).
type WALFlushedLSNGetter interface {
	GetFlushedLSN() uint64
}

type frame struct {
	page       *page.Page
	referenced bool
}

// Pool is a fixed-capacity cache of page frames, keyed by global page id.
type Pool struct {
	frames   map[int64]*frame
	order    []int64 // circular list of resident page ids, in insertion slot order
	hand     int      // clock hand, an index into order
	capacity int

	disk *diskmanager.Manager
	wal  WALFlushedLSNGetter
	log  *zap.Logger

	mu sync.Mutex
}

type Stats struct {
	TotalPages  int
	PinnedPages int
	DirtyPages  int
	Capacity    int
}

func NewPool(capacity int, disk *diskmanager.Manager, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		frames:   make(map[int64]*frame, capacity),
		order:    make([]int64, 0, capacity),
		capacity: capacity,
		disk:     disk,
		log:      log,
	}
}

func (bp *Pool) SetWALManager(wal WALFlushedLSNGetter) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.wal = wal
}

// FetchPage returns a pinned handle to pageID, reading through to disk on a
// miss and evicting a clock victim if the pool is full.
func (bp *Pool) FetchPage(pageID int64) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if fr, exists := bp.frames[pageID]; exists {
		fr.referenced = true
		fr.page.Lock()
		fr.page.PinCount++
		fr.page.Unlock()
		return fr.page, nil
	}

	if bp.disk == nil {
		return nil, dberr.New(dberr.IOError, "disk manager not set")
	}

	pg, err := bp.disk.ReadPage(pageID)
	if err != nil {
		return nil, err
	}
	if pg.PageType == types.PageTypeHeapData && len(pg.Data) >= 8 {
		pg.LSN = binary.LittleEndian.Uint64(pg.Data[page.PageLSNOffset:])
	}

	if err := bp.addPage(pg); err != nil {
		return nil, err
	}

	pg.Lock()
	pg.PinCount++
	pg.Unlock()
	return pg, nil
}

// NewPage allocates a fresh page via the disk manager, pins it, and
// registers it dirty in the pool.
func (bp *Pool) NewPage(fileID uint32, pageType types.PageType) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if bp.disk == nil {
		return nil, dberr.New(dberr.IOError, "disk manager not set")
	}

	pageID, err := bp.disk.AllocatePage(fileID, pageType)
	if err != nil {
		return nil, err
	}

	pg := diskmanager.NewPage(pageID, fileID, pageType)
	pg.IsDirty = true
	pg.Lock()
	pg.PinCount++
	pg.Unlock()

	if err := bp.addPage(pg); err != nil {
		pg.Lock()
		pg.PinCount--
		pg.Unlock()
		return nil, err
	}
	return pg, nil
}

func (bp *Pool) UnpinPage(pageID int64, isDirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fr, exists := bp.frames[pageID]
	if !exists {
		return dberr.New(dberr.NotFound, "page %d not in buffer pool", pageID)
	}

	fr.page.Lock()
	defer fr.page.Unlock()
	if fr.page.PinCount > 0 {
		fr.page.PinCount--
	}
	if isDirty {
		fr.page.IsDirty = true
	}
	return nil
}

// FlushPage force-writes pageID through the disk manager. It refuses if the
// page's LSN is not yet covered by the WAL's durable watermark
// (spec.md §4.2 precondition, enforcing invariant 1).
func (bp *Pool) FlushPage(pageID int64) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fr, exists := bp.frames[pageID]
	if !exists {
		return dberr.New(dberr.NotFound, "page %d not in buffer pool", pageID)
	}

	fr.page.Lock()
	defer fr.page.Unlock()
	if !fr.page.IsDirty {
		return nil
	}
	if bp.wal != nil && fr.page.LSN > bp.wal.GetFlushedLSN() {
		return dberr.New(dberr.IOError, "cannot flush page %d: pageLSN=%d not covered by WAL flushedLSN=%d",
			pageID, fr.page.LSN, bp.wal.GetFlushedLSN())
	}
	if err := bp.disk.WritePage(fr.page); err != nil {
		return err
	}
	fr.page.IsDirty = false
	return nil
}

// FlushAllPages flushes every dirty page whose LSN the WAL has already made
// durable, skipping (not failing on) pages that are not yet coverable.
func (bp *Pool) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.flushAllLocked(0)
}

// Checkpoint flushes every dirty page with LSN <= checkpointLSN, per
// spec.md §4.8's checkpoint definition.
func (bp *Pool) Checkpoint(checkpointLSN uint64) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.flushAllLocked(checkpointLSN)
}

func (bp *Pool) flushAllLocked(ceiling uint64) error {
	if bp.disk == nil {
		return dberr.New(dberr.IOError, "disk manager not set")
	}
	for pageID, fr := range bp.frames {
		fr.page.Lock()
		if fr.page.IsDirty {
			if ceiling != 0 && fr.page.LSN > ceiling {
				fr.page.Unlock()
				continue
			}
			if bp.wal != nil && fr.page.LSN > bp.wal.GetFlushedLSN() {
				fr.page.Unlock()
				continue
			}
			if err := bp.disk.WritePage(fr.page); err != nil {
				fr.page.Unlock()
				return dberr.Wrap(dberr.IOError, err, "flush page %d", pageID)
			}
			fr.page.IsDirty = false
		}
		fr.page.Unlock()
	}
	return nil
}

// addPage inserts pg into the pool, evicting a clock victim if full.
// Caller holds bp.mu.
func (bp *Pool) addPage(pg *page.Page) error {
	if _, exists := bp.frames[pg.ID]; exists {
		bp.frames[pg.ID].referenced = true
		return nil
	}

	if len(bp.frames) >= bp.capacity {
		if err := bp.evictClockVictim(); err != nil {
			return err
		}
	}

	bp.frames[pg.ID] = &frame{page: pg, referenced: true}
	bp.order = append(bp.order, pg.ID)
	return nil
}

// evictClockVictim scans the circular frame list from the clock hand,
// clearing the reference bit of anything it passes with the bit set, and
// evicts the first unpinned frame it finds with the bit already clear.
// Dirty victims are flushed first, gated on the WAL watermark; a frame that
// cannot yet be flushed is skipped like a pinned one. Caller holds bp.mu.
func (bp *Pool) evictClockVictim() error {
	n := len(bp.order)
	if n == 0 {
		return dberr.New(dberr.BufferExhausted, "buffer pool is empty but at capacity")
	}

	for scanned := 0; scanned < 2*n; scanned++ {
		if bp.hand >= len(bp.order) {
			bp.hand = 0
		}
		pageID := bp.order[bp.hand]
		fr, exists := bp.frames[pageID]
		if !exists {
			bp.removeFromOrder(bp.hand)
			continue
		}

		fr.page.Lock()
		pinCount := fr.page.PinCount
		if pinCount > 0 {
			fr.page.Unlock()
			bp.hand++
			continue
		}
		if fr.referenced {
			fr.referenced = false
			fr.page.Unlock()
			bp.hand++
			continue
		}

		if fr.page.IsDirty {
			if bp.wal != nil && fr.page.LSN > bp.wal.GetFlushedLSN() {
				fr.page.Unlock()
				bp.hand++
				continue
			}
			if err := bp.disk.WritePage(fr.page); err != nil {
				fr.page.Unlock()
				return dberr.Wrap(dberr.IOError, err, "write page %d during eviction", pageID)
			}
			fr.page.IsDirty = false
		}
		fr.page.Unlock()

		delete(bp.frames, pageID)
		bp.removeFromOrder(bp.hand)
		return nil
	}

	return dberr.New(dberr.BufferExhausted, "no unpinned frame available for eviction")
}

func (bp *Pool) removeFromOrder(idx int) {
	bp.order = append(bp.order[:idx], bp.order[idx+1:]...)
	if bp.hand > idx || bp.hand >= len(bp.order) {
		if bp.hand > 0 {
			bp.hand--
		}
	}
}

func (bp *Pool) DeletePage(pageID int64) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fr, exists := bp.frames[pageID]
	if !exists {
		return nil
	}
	fr.page.Lock()
	pinned := fr.page.PinCount > 0
	fr.page.Unlock()
	if pinned {
		return dberr.New(dberr.BufferExhausted, "cannot delete pinned page %d", pageID)
	}

	delete(bp.frames, pageID)
	for i, id := range bp.order {
		if id == pageID {
			bp.removeFromOrder(i)
			break
		}
	}
	return nil
}

func (bp *Pool) GetStats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	stats := Stats{TotalPages: len(bp.frames), Capacity: bp.capacity}
	for _, fr := range bp.frames {
		fr.page.RLock()
		if fr.page.PinCount > 0 {
			stats.PinnedPages++
		}
		if fr.page.IsDirty {
			stats.DirtyPages++
		}
		fr.page.RUnlock()
	}
	return stats
}

func (bp *Pool) Reset() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for _, fr := range bp.frames {
		fr.page.Lock()
		if fr.page.IsDirty && bp.disk != nil {
			if err := bp.disk.WritePage(fr.page); err != nil {
				fr.page.Unlock()
				return dberr.Wrap(dberr.IOError, err, "flush during reset")
			}
		}
		fr.page.Unlock()
	}
	bp.frames = make(map[int64]*frame, bp.capacity)
	bp.order = bp.order[:0]
	bp.hand = 0
	return nil
}

func (bp *Pool) Size() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.frames)
}

func (bp *Pool) Capacity() int { return bp.capacity }

func (bp *Pool) GetPage(pageID int64) *page.Page {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if fr, exists := bp.frames[pageID]; exists {
		return fr.page
	}
	return nil
}

func (bp *Pool) MarkDirty(pageID int64) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	fr, exists := bp.frames[pageID]
	if !exists {
		return dberr.New(dberr.NotFound, "page %d not in buffer pool", pageID)
	}
	fr.page.Lock()
	fr.page.IsDirty = true
	fr.page.Unlock()
	return nil
}
