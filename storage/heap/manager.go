package heap

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"coredb/dberr"
	"coredb/storage/buffer"
	"coredb/storage/diskmanager"
	"coredb/storage/page"
	"coredb/types"
)

// HeapFile is one table's backing heap file.
type HeapFile struct {
	fileID    uint32
	tableName string
	filePath  string

	disk *diskmanager.Manager
	pool *buffer.Pool

	// freePages tracks local page numbers known to have at least minFree
	// bytes spare, so InsertRow does not fall back to a linear scan over
	// every page on the common path (spec.md §4.6 point 1's free-space map).
	freePages map[uint32]struct{}

	mu sync.RWMutex
}

// HeapFileManager owns every open HeapFile, keyed by catalog file id and by
// table name.
type HeapFileManager struct {
	baseDir string
	fs      afero.Fs
	files   map[uint32]*HeapFile
	byTable map[string]uint32

	disk *diskmanager.Manager
	pool *buffer.Pool
	log  *zap.Logger

	mu sync.RWMutex
}

func NewHeapFileManager(baseDir string, disk *diskmanager.Manager, pool *buffer.Pool, log *zap.Logger) *HeapFileManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &HeapFileManager{
		baseDir: baseDir,
		fs:      disk.Fs(),
		files:   make(map[uint32]*HeapFile),
		byTable: make(map[string]uint32),
		disk:    disk,
		pool:    pool,
		log:     log,
	}
}

// CreateHeapFile opens a brand-new heap file for tableName under fileID
// (the catalog assigns fileID at CREATE TABLE time) and initializes its
// first page.
func (hfm *HeapFileManager) CreateHeapFile(tableName string, fileID uint32) error {
	hfm.mu.Lock()
	defer hfm.mu.Unlock()

	if _, exists := hfm.byTable[tableName]; exists {
		return dberr.New(dberr.ConstraintViolation, "heap file for table %q already open", tableName)
	}

	heapPath := filepath.Join(hfm.baseDir, fmt.Sprintf("%d.heap", fileID))
	if exists, _ := afero.Exists(hfm.fs, heapPath); exists {
		return dberr.New(dberr.ConstraintViolation, "heap file %d already exists on disk", fileID)
	}
	if err := hfm.fs.MkdirAll(hfm.baseDir, 0o755); err != nil {
		return dberr.Wrap(dberr.IOError, err, "create heap directory")
	}

	if _, err := hfm.disk.OpenFileWithID(heapPath, fileID); err != nil {
		return dberr.Wrap(dberr.IOError, err, "open heap file")
	}

	pg, err := hfm.pool.NewPage(fileID, types.PageTypeHeapData)
	if err != nil {
		_ = hfm.disk.CloseFile(fileID)
		return dberr.Wrap(dberr.IOError, err, "allocate first heap page")
	}
	InitHeapPage(pg)
	if err := hfm.pool.UnpinPage(pg.ID, true); err != nil {
		_ = hfm.disk.CloseFile(fileID)
		return dberr.Wrap(dberr.IOError, err, "unpin first heap page")
	}

	hf := &HeapFile{
		fileID:    fileID,
		tableName: tableName,
		filePath:  heapPath,
		disk:      hfm.disk,
		pool:      hfm.pool,
		freePages: map[uint32]struct{}{0: {}},
	}
	hfm.files[fileID] = hf
	hfm.byTable[tableName] = fileID
	hfm.log.Debug("created heap file", zap.String("table", tableName), zap.Uint32("file_id", fileID))
	return nil
}

// LoadHeapFile reopens an existing heap file found by the catalog at
// startup, registering its already-allocated pages with the disk manager.
func (hfm *HeapFileManager) LoadHeapFile(fileID uint32, tableName string) (*HeapFile, error) {
	hfm.mu.Lock()
	defer hfm.mu.Unlock()

	if hf, exists := hfm.files[fileID]; exists {
		return hf, nil
	}

	heapPath := filepath.Join(hfm.baseDir, fmt.Sprintf("%d.heap", fileID))
	if exists, _ := afero.Exists(hfm.fs, heapPath); !exists {
		return nil, dberr.New(dberr.NotFound, "heap file %d not found on disk", fileID)
	}
	if _, err := hfm.disk.OpenFileWithID(heapPath, fileID); err != nil {
		return nil, dberr.Wrap(dberr.IOError, err, "open heap file")
	}

	fd, err := hfm.disk.GetFileDescriptor(fileID)
	if err != nil {
		return nil, err
	}
	freePages := make(map[uint32]struct{})
	for local := int64(0); local < fd.NextPageID; local++ {
		if err := hfm.disk.RegisterPage(fileID, local); err != nil {
			return nil, dberr.Wrap(dberr.IOError, err, "register page %d", local)
		}
		freePages[uint32(local)] = struct{}{}
	}

	hf := &HeapFile{
		fileID:    fileID,
		tableName: tableName,
		filePath:  heapPath,
		disk:      hfm.disk,
		pool:      hfm.pool,
		freePages: freePages,
	}
	hfm.files[fileID] = hf
	hfm.byTable[tableName] = fileID
	return hf, nil
}

func (hfm *HeapFileManager) GetHeapFileByTable(tableName string) (*HeapFile, error) {
	hfm.mu.RLock()
	defer hfm.mu.RUnlock()
	fileID, exists := hfm.byTable[tableName]
	if !exists {
		return nil, dberr.New(dberr.NotFound, "no heap file open for table %q", tableName)
	}
	hf, exists := hfm.files[fileID]
	if !exists {
		return nil, dberr.New(dberr.NotFound, "heap file index inconsistency for table %q", tableName)
	}
	return hf, nil
}

func (hfm *HeapFileManager) GetHeapFileByID(fileID uint32) (*HeapFile, error) {
	hfm.mu.RLock()
	defer hfm.mu.RUnlock()
	hf, exists := hfm.files[fileID]
	if !exists {
		return nil, dberr.New(dberr.NotFound, "heap file %d not found", fileID)
	}
	return hf, nil
}

func (hfm *HeapFileManager) GetPageLSN(fileID uint32, localPageNum uint32) (uint64, error) {
	hf, err := hfm.GetHeapFileByID(fileID)
	if err != nil {
		return 0, err
	}
	globalPageID, err := hf.disk.GetGlobalPageID(fileID, int64(localPageNum))
	if err != nil {
		return 0, err
	}
	pg, err := hf.pool.FetchPage(globalPageID)
	if err != nil {
		return 0, err
	}
	defer hf.pool.UnpinPage(globalPageID, false)
	return GetLastAppliedLSN(pg), nil
}

// findSuitablePage returns a page with at least requiredSpace free bytes,
// preferring a candidate from the free-space map before falling back to
// allocating a new page. Caller must hold hf.mu.
func (hf *HeapFile) findSuitablePage(requiredSpace uint16) (*page.Page, uint32, error) {
	requiredWithSlot := int(requiredSpace) + SlotSize

	for localPageNum := range hf.freePages {
		globalPageID, err := hf.disk.GetGlobalPageID(hf.fileID, int64(localPageNum))
		if err != nil {
			delete(hf.freePages, localPageNum)
			continue
		}
		pg, err := hf.pool.FetchPage(globalPageID)
		if err != nil {
			continue
		}
		if FreeSpace(pg) >= requiredWithSlot {
			return pg, localPageNum, nil
		}
		hf.pool.UnpinPage(globalPageID, false)
		delete(hf.freePages, localPageNum) // page filled up since last recorded
	}

	pg, err := hf.pool.NewPage(hf.fileID, types.PageTypeHeapData)
	if err != nil {
		return nil, 0, err
	}
	InitHeapPage(pg)

	fd, err := hf.disk.GetFileDescriptor(hf.fileID)
	if err != nil {
		hf.pool.UnpinPage(pg.ID, false)
		return nil, 0, err
	}
	localPageNum := uint32(fd.NextPageID - 1)
	SetPageNo(pg, localPageNum)
	if err := hf.disk.RegisterPage(hf.fileID, int64(localPageNum)); err != nil {
		hf.pool.UnpinPage(pg.ID, false)
		return nil, 0, dberr.Wrap(dberr.IOError, err, "register new page")
	}
	return pg, localPageNum, nil
}

func (hf *HeapFile) noteFreeSpace(localPageNum uint32, pg *page.Page) {
	if FreeSpace(pg) > 0 {
		hf.freePages[localPageNum] = struct{}{}
	} else {
		delete(hf.freePages, localPageNum)
	}
}

func (hf *HeapFile) Flush() error { return hf.pool.FlushAllPages() }

// GetAllRowPointers returns every live row's pointer, a full table scan.
func (hf *HeapFile) GetAllRowPointers() []types.RowPointer {
	var result []types.RowPointer
	fd, err := hf.disk.GetFileDescriptor(hf.fileID)
	if err != nil {
		return result
	}
	for local := int64(0); local < fd.NextPageID; local++ {
		globalPageID, err := hf.disk.GetGlobalPageID(hf.fileID, local)
		if err != nil {
			continue
		}
		pg, err := hf.pool.FetchPage(globalPageID)
		if err != nil {
			continue
		}
		pg.RLock()
		if pg.PageType == types.PageTypeHeapData {
			slotCount := GetSlotCount(pg)
			for slotIdx := uint16(0); slotIdx < slotCount; slotIdx++ {
				if IsSlotLive(pg, slotIdx) {
					result = append(result, types.RowPointer{
						FileID:     hf.fileID,
						PageNumber: uint32(local),
						SlotIndex:  slotIdx,
					})
				}
			}
		}
		pg.RUnlock()
		hf.pool.UnpinPage(globalPageID, false)
	}
	return result
}
