// Package diskmanager owns backing files and the global page-id space.
//
// Page ID encoding: globalPageID = int64(fileID)<<32 | localPageNum. This
// makes global IDs deterministic across restarts, independent of file load
// order, with no persistent counter required beyond each file's own
// next-local-page watermark.
package diskmanager

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"coredb/dberr"
	"coredb/storage/page"
	"coredb/types"
)

// PageKey identifies a page by its file-local coordinates.
type PageKey struct {
	FileID   uint32
	LocalNum int64
}

// FileDescriptor is one open backing file.
type FileDescriptor struct {
	FileID     uint32
	FilePath   string
	File       afero.File
	NextPageID int64 // next unallocated local page id
	FreeList   []int64
	mu         sync.RWMutex
}

// Manager manages all disk I/O and the global page-id mapping.
type Manager struct {
	fs         afero.Fs
	files      map[uint32]*FileDescriptor
	nextFileID uint32 // used only by OpenFile; files opened with OpenFileWithID bring their own id

	globalPageMap map[int64]uint32
	localToGlobal map[PageKey]int64

	log *zap.Logger
	mu  sync.RWMutex
}

func New(fs afero.Fs, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		fs:            fs,
		files:         make(map[uint32]*FileDescriptor),
		globalPageMap: make(map[int64]uint32),
		localToGlobal: make(map[PageKey]int64),
		nextFileID:    1,
		log:           log,
	}
}

func NewPage(pageID int64, fileID uint32, pageType types.PageType) *page.Page {
	return page.New(pageID, fileID, pageType)
}

// OpenFileWithID opens (or creates) filePath under a caller-assigned file
// id. Used for heap and index files, whose ids are owned by the catalog and
// must stay stable across restarts.
func (dm *Manager) OpenFileWithID(filePath string, catalogFileID uint32) (uint32, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	for id, fd := range dm.files {
		if fd.FilePath == filePath {
			return id, nil
		}
	}

	file, err := dm.fs.OpenFile(filePath, ofileFlags(), 0644)
	if err != nil {
		return 0, dberr.Wrap(dberr.IOError, err, "open %s", filePath)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return 0, dberr.Wrap(dberr.IOError, err, "stat %s", filePath)
	}

	numPages := stat.Size() / int64(page.PageSize)

	fd := &FileDescriptor{FileID: catalogFileID, FilePath: filePath, File: file, NextPageID: numPages}
	dm.files[catalogFileID] = fd
	if catalogFileID >= dm.nextFileID {
		dm.nextFileID = catalogFileID + 1
	}
	return catalogFileID, nil
}

// OpenFile opens or creates filePath and assigns it the next counter id.
// Used for files opened without a catalog-assigned id, such as index files
// opened through bplustree.GetOrCreateIndex; WAL segments do not go
// through the disk manager.
func (dm *Manager) OpenFile(filePath string) (uint32, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	for id, fd := range dm.files {
		if fd.FilePath == filePath {
			return id, nil
		}
	}

	file, err := dm.fs.OpenFile(filePath, ofileFlags(), 0644)
	if err != nil {
		return 0, dberr.Wrap(dberr.IOError, err, "open %s", filePath)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return 0, dberr.Wrap(dberr.IOError, err, "stat %s", filePath)
	}

	fileID := dm.nextFileID
	dm.nextFileID++

	fd := &FileDescriptor{FileID: fileID, FilePath: filePath, File: file, NextPageID: stat.Size() / int64(page.PageSize)}
	dm.files[fileID] = fd
	return fileID, nil
}

// ReadPage reads a page from disk, padding short reads with zeros and
// verifying the xxhash checksum written on the last flush. A checksum
// mismatch on a non-zero page is reported as IO_ERROR per spec.md §4.1;
// an all-zero region (a page that was allocated but never flushed) is not
// treated as corruption.
func (dm *Manager) ReadPage(globalPageID int64) (*page.Page, error) {
	dm.mu.RLock()
	fileID, exists := dm.globalPageMap[globalPageID]
	dm.mu.RUnlock()
	if !exists {
		return nil, dberr.New(dberr.NotFound, "page %d not in global page map", globalPageID)
	}

	dm.mu.RLock()
	fd, exists := dm.files[fileID]
	dm.mu.RUnlock()
	if !exists {
		return nil, dberr.New(dberr.NotFound, "file %d not found", fileID)
	}

	fd.mu.RLock()
	defer fd.mu.RUnlock()
	if fd.File == nil {
		return nil, dberr.New(dberr.IOError, "file %d is closed", fileID)
	}

	localPageID := dm.getLocalPageID(globalPageID)
	offset := localPageID * int64(page.PageSize)

	pg := NewPage(globalPageID, fileID, types.PageTypeUnknown)
	n, err := fd.File.ReadAt(pg.Data, offset)
	if err != nil && n == 0 {
		return nil, dberr.Wrap(dberr.IOError, err, "read page %d of file %d", localPageID, fileID)
	}
	for i := n; i < page.PageSize; i++ {
		pg.Data[i] = 0
	}

	if len(pg.Data) > page.ChecksumOffset+4 && !allZero(pg.Data) {
		pg.PageType = types.PageType(pg.Data[page.PageTypeOffset])
		stored := binary.LittleEndian.Uint32(pg.Data[page.ChecksumOffset : page.ChecksumOffset+4])
		if stored != checksumBody(pg.Data) {
			return nil, dberr.New(dberr.IOError, "checksum mismatch on page %d of file %d", localPageID, fileID)
		}
	}

	return pg, nil
}

// WritePage writes a page to disk, stamping its page type and xxhash
// checksum into the header first.
func (dm *Manager) WritePage(pg *page.Page) error {
	dm.mu.RLock()
	fd, exists := dm.files[pg.FileID]
	dm.mu.RUnlock()
	if !exists {
		return dberr.New(dberr.NotFound, "file %d not found", pg.FileID)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.File == nil {
		return dberr.New(dberr.IOError, "file %d is closed", pg.FileID)
	}
	if len(pg.Data) != page.PageSize {
		return dberr.New(dberr.IOError, "page data size %d != page size %d", len(pg.Data), page.PageSize)
	}

	pg.Data[page.PageTypeOffset] = byte(pg.PageType)
	binary.LittleEndian.PutUint32(pg.Data[page.ChecksumOffset:page.ChecksumOffset+4], checksumBody(pg.Data))

	localPageID := dm.getLocalPageID(pg.ID)
	offset := localPageID * int64(page.PageSize)

	if _, err := fd.File.WriteAt(pg.Data, offset); err != nil {
		return dberr.Wrap(dberr.IOError, err, "write page %d of file %d", localPageID, pg.FileID)
	}
	if localPageID >= fd.NextPageID {
		fd.NextPageID = localPageID + 1
	}
	pg.IsDirty = false
	return nil
}

// AllocatePage reserves the next local page id for fileID, preferring a
// freed id from the free list (spec.md §4.1 "a persistent free list
// recycles ids") over growing the file. It does not write anything; the
// caller's buffer pool flushes the zeroed frame later.
func (dm *Manager) AllocatePage(fileID uint32, pageType types.PageType) (int64, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	fd, exists := dm.files[fileID]
	if !exists {
		return 0, dberr.New(dberr.NotFound, "file %d not found", fileID)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.File == nil {
		return 0, dberr.New(dberr.IOError, "file %d is closed", fileID)
	}

	var localPageNum int64
	if n := len(fd.FreeList); n > 0 {
		localPageNum = fd.FreeList[n-1]
		fd.FreeList = fd.FreeList[:n-1]
	} else {
		localPageNum = fd.NextPageID
		fd.NextPageID++
	}

	globalPageID := int64(fileID)<<32 | localPageNum
	dm.globalPageMap[globalPageID] = fileID
	dm.localToGlobal[PageKey{FileID: fileID, LocalNum: localPageNum}] = globalPageID
	return globalPageID, nil
}

// FreePage returns a page id to fileID's free list for later reuse.
func (dm *Manager) FreePage(globalPageID int64) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	fileID, exists := dm.globalPageMap[globalPageID]
	if !exists {
		return dberr.New(dberr.NotFound, "page %d not in global page map", globalPageID)
	}
	fd, exists := dm.files[fileID]
	if !exists {
		return dberr.New(dberr.NotFound, "file %d not found", fileID)
	}

	local := dm.getLocalPageID(globalPageID)
	fd.mu.Lock()
	fd.FreeList = append(fd.FreeList, local)
	fd.mu.Unlock()
	return nil
}

func (dm *Manager) getLocalPageID(globalPageID int64) int64 {
	return globalPageID & 0xFFFFFFFF
}

func (dm *Manager) GetGlobalPageID(fileID uint32, localPageNum int64) (int64, error) {
	return int64(fileID)<<32 | localPageNum, nil
}

func (dm *Manager) GetLocalPageID(fileID uint32, globalPageID int64) (int64, error) {
	return globalPageID & 0xFFFFFFFF, nil
}

// RegisterPage adds an existing local page into the global page map.
// Called when reopening existing files on database load; idempotent.
func (dm *Manager) RegisterPage(fileID uint32, localPageNum int64) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	key := PageKey{FileID: fileID, LocalNum: localPageNum}
	if _, exists := dm.localToGlobal[key]; exists {
		return nil
	}
	globalPageID := int64(fileID)<<32 | localPageNum
	dm.globalPageMap[globalPageID] = fileID
	dm.localToGlobal[key] = globalPageID
	return nil
}

func (dm *Manager) Sync() error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, fd := range dm.files {
		fd.mu.Lock()
		if fd.File != nil {
			if err := fd.File.Sync(); err != nil {
				fd.mu.Unlock()
				return dberr.Wrap(dberr.IOError, err, "sync file %d", fd.FileID)
			}
		}
		fd.mu.Unlock()
	}
	return nil
}

func (dm *Manager) CloseFile(fileID uint32) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	fd, exists := dm.files[fileID]
	if !exists {
		return dberr.New(dberr.NotFound, "file %d not found", fileID)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.File == nil {
		return nil
	}
	if err := fd.File.Sync(); err != nil {
		return dberr.Wrap(dberr.IOError, err, "sync before close")
	}
	if err := fd.File.Close(); err != nil {
		return dberr.Wrap(dberr.IOError, err, "close file %d", fileID)
	}
	fd.File = nil
	delete(dm.files, fileID)
	return nil
}

func (dm *Manager) CloseAll() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	var lastErr error
	for fileID, fd := range dm.files {
		fd.mu.Lock()
		if fd.File != nil {
			if err := fd.File.Sync(); err != nil {
				lastErr = err
			}
			if err := fd.File.Close(); err != nil {
				lastErr = err
			}
			fd.File = nil
		}
		fd.mu.Unlock()
		delete(dm.files, fileID)
	}
	return lastErr
}

// Fs exposes the underlying filesystem so sibling storage packages (heap,
// bplustree, catalog, wal) can share one afero.Fs instance rather than each
// opening their own.
func (dm *Manager) Fs() afero.Fs { return dm.fs }

func (dm *Manager) GetFileDescriptor(fileID uint32) (*FileDescriptor, error) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	fd, exists := dm.files[fileID]
	if !exists {
		return nil, dberr.New(dberr.NotFound, "file %d not found", fileID)
	}
	return fd, nil
}

func (dm *Manager) TotalPages() int64 {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	total := int64(0)
	for _, fd := range dm.files {
		total += fd.NextPageID
	}
	return total
}

// WriteMetadata writes directly to page 0 of fileID, bypassing the buffer
// pool — metadata pages are fixed-location and gain nothing from caching.
func (dm *Manager) WriteMetadata(fileID uint32, metadata []byte) error {
	dm.mu.RLock()
	fd, exists := dm.files[fileID]
	dm.mu.RUnlock()
	if !exists {
		return dberr.New(dberr.NotFound, "file %d not found", fileID)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.File == nil {
		return dberr.New(dberr.IOError, "file %d is closed", fileID)
	}

	metaPage := make([]byte, page.PageSize)
	metaPage[page.PageTypeOffset] = byte(types.PageTypeMetadata)
	copy(metaPage[page.ChecksumOffset+4:], metadata)
	binary.LittleEndian.PutUint32(metaPage[page.ChecksumOffset:page.ChecksumOffset+4], checksumBody(metaPage))

	if _, err := fd.File.WriteAt(metaPage, 0); err != nil {
		return dberr.Wrap(dberr.IOError, err, "write metadata")
	}
	return nil
}

func (dm *Manager) ReadMetadata(fileID uint32) ([]byte, error) {
	dm.mu.RLock()
	fd, exists := dm.files[fileID]
	dm.mu.RUnlock()
	if !exists {
		return nil, dberr.New(dberr.NotFound, "file %d not found", fileID)
	}

	fd.mu.RLock()
	defer fd.mu.RUnlock()
	if fd.File == nil {
		return nil, dberr.New(dberr.IOError, "file %d is closed", fileID)
	}

	metaPage := make([]byte, page.PageSize)
	if _, err := fd.File.ReadAt(metaPage, 0); err != nil {
		return nil, dberr.Wrap(dberr.IOError, err, "read metadata")
	}
	return metaPage[page.ChecksumOffset+4:], nil
}

func (dm *Manager) WriteRootID(fileID uint32, rootID int64) error {
	metadata := make([]byte, 8)
	binary.LittleEndian.PutUint64(metadata, uint64(rootID))
	return dm.WriteMetadata(fileID, metadata)
}

func (dm *Manager) ReadRootID(fileID uint32) (int64, error) {
	metadata, err := dm.ReadMetadata(fileID)
	if err != nil {
		return 0, err
	}
	if len(metadata) < 8 {
		return 0, dberr.New(dberr.IOError, "invalid metadata size")
	}
	return int64(binary.LittleEndian.Uint64(metadata[:8])), nil
}

func (dm *Manager) GetTotalPages(filePath string) (int64, error) {
	info, err := dm.fs.Stat(filePath)
	if err != nil {
		return 0, dberr.Wrap(dberr.IOError, err, "stat %s", filePath)
	}
	return info.Size() / int64(page.PageSize), nil
}

func checksumBody(data []byte) uint32 {
	body := data[page.ChecksumOffset+4:]
	return uint32(xxhash.Sum64(body))
}

func allZero(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

func ofileFlags() int { return os.O_RDWR | os.O_CREATE }
