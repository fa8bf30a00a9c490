package bplustree

import (
	"fmt"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"coredb/dberr"
	"coredb/storage/buffer"
	"coredb/storage/diskmanager"
)

// IndexFileManager owns every open index file for a database, each backed
// by its own diskmanager file id and Tree.
type IndexFileManager struct {
	baseDir string
	fs      afero.Fs
	disk    *diskmanager.Manager
	pool    *buffer.Pool
	log     *zap.Logger

	indexes map[string]*Tree
	nextID  uint32
	mu      sync.Mutex
}

func NewIndexFileManager(baseDir string, disk *diskmanager.Manager, pool *buffer.Pool, log *zap.Logger) *IndexFileManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &IndexFileManager{
		baseDir: baseDir,
		fs:      disk.Fs(),
		disk:    disk,
		pool:    pool,
		log:     log,
		indexes: make(map[string]*Tree),
		nextID:  1,
	}
}

func indexFileName(tableName, indexName string) string {
	return fmt.Sprintf("%s_%s.idx", tableName, indexName)
}

// GetOrCreateIndex returns the open Tree for tableName/indexName, opening
// (or creating) its file on first use. Double-checked locking keeps
// concurrent lookups from racing to create the same index twice.
func (ifm *IndexFileManager) GetOrCreateIndex(tableName, indexName string, unique bool, userCmp func(a, b []byte) int) (*Tree, error) {
	key := tableName + "/" + indexName

	ifm.mu.Lock()
	if t, ok := ifm.indexes[key]; ok {
		ifm.mu.Unlock()
		return t, nil
	}
	ifm.mu.Unlock()

	path := ifm.baseDir + "/" + indexFileName(tableName, indexName)
	fileID, err := ifm.disk.OpenFile(path)
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, err, "open index file %s", path)
	}

	ifm.mu.Lock()
	defer ifm.mu.Unlock()
	if t, ok := ifm.indexes[key]; ok {
		return t, nil
	}

	t, err := Open(fileID, ifm.pool, ifm.disk, unique, userCmp)
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, err, "open tree for %s", key)
	}
	ifm.indexes[key] = t
	return t, nil
}

// LoadIndex re-opens an index whose file id is already known, for recovery
// startup before the catalog has finished reattaching every table.
func (ifm *IndexFileManager) LoadIndex(tableName, indexName string, fileID uint32, unique bool, userCmp func(a, b []byte) int) (*Tree, error) {
	key := tableName + "/" + indexName
	ifm.mu.Lock()
	defer ifm.mu.Unlock()
	if t, ok := ifm.indexes[key]; ok {
		return t, nil
	}
	t, err := Open(fileID, ifm.pool, ifm.disk, unique, userCmp)
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, err, "load tree for %s", key)
	}
	ifm.indexes[key] = t
	return t, nil
}

func (ifm *IndexFileManager) CloseIndex(tableName, indexName string) error {
	key := tableName + "/" + indexName
	ifm.mu.Lock()
	defer ifm.mu.Unlock()
	t, ok := ifm.indexes[key]
	if !ok {
		return nil
	}
	delete(ifm.indexes, key)
	return t.Close()
}

func (ifm *IndexFileManager) CloseAll() error {
	ifm.mu.Lock()
	defer ifm.mu.Unlock()
	var firstErr error
	for key, t := range ifm.indexes {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(ifm.indexes, key)
	}
	return firstErr
}
