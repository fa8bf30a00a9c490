// Package engine wires storage, indexing, the WAL, and transaction control
// into the single entry point the SQL front end drives: one StorageEngine
// per open database, one session per client connection, per spec.md §5's
// single-threaded-per-session concurrency model.
package engine

import (
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"coredb/catalog"
	"coredb/checkpoint"
	"coredb/dberr"
	"coredb/storage/bplustree"
	"coredb/storage/buffer"
	"coredb/storage/diskmanager"
	"coredb/storage/heap"
	"coredb/txn"
	"coredb/wal"
)

// checkpointEvery is how many committed statements elapse between automatic
// checkpoints. A teaching-grade engine has no background timer; a checkpoint
// is instead piggybacked onto the commit path, per spec.md §4.8's "periodic".
const checkpointEvery = 64

// session tracks one client connection's open transaction and cursors.
// Per spec.md §5, a session may have at most one transaction open at a time.
type session struct {
	txnID   uint64
	cursors map[string]*cursor
}

// StorageEngine is the process-wide handle on one open database: the
// catalog, heap and index file managers, the WAL, the checkpoint file, and
// the transaction table. CreateDatabase/UseDatabase re-point the
// database-scoped pieces (heap, index, wal, checkpoint) at a new directory;
// the disk manager, buffer pool, and transaction table are process-lifetime.
type StorageEngine struct {
	dbRoot string
	fs     afero.Fs
	log    *zap.Logger

	disk *diskmanager.Manager
	pool *buffer.Pool
	txns *txn.Manager

	mu         sync.Mutex
	currDbName string
	dbDir      string
	wal        *wal.Manager
	ckpt       *checkpoint.Manager
	cat        *catalog.Manager
	heapMgr    *heap.HeapFileManager
	idxMgr     *bplustree.IndexFileManager

	sessions          map[uuid.UUID]*session
	opsSinceCheckpoint int
}

// NewStorageEngine opens (or prepares to create) a database root. No
// database is selected until CreateDatabase or UseDatabase is called.
func NewStorageEngine(dbRoot string, fs afero.Fs, poolCapacity int, log *zap.Logger) (*StorageEngine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := fs.MkdirAll(dbRoot, 0o755); err != nil {
		return nil, dberr.Wrap(dberr.IOError, err, "create db root %s", dbRoot)
	}

	disk := diskmanager.New(fs, log)
	pool := buffer.NewPool(poolCapacity, disk, log)

	cat, err := catalog.NewManager(dbRoot, fs, log)
	if err != nil {
		return nil, err
	}

	return &StorageEngine{
		dbRoot:   dbRoot,
		fs:       fs,
		log:      log,
		disk:     disk,
		pool:     pool,
		txns:     txn.NewManager(),
		cat:      cat,
		sessions: make(map[uuid.UUID]*session),
	}, nil
}

// CreateDatabase makes a fresh database directory and switches to it.
func (e *StorageEngine) CreateDatabase(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.cat.CreateDatabase(name); err != nil {
		return err
	}
	return e.useDatabaseLocked(name)
}

// UseDatabase switches the engine to an existing database, reopening its
// WAL, checkpoint file, heap files, and index files, then running recovery.
func (e *StorageEngine) UseDatabase(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.cat.UseDatabase(name); err != nil {
		return err
	}
	return e.useDatabaseLocked(name)
}

// useDatabaseLocked does the actual re-pointing; caller holds e.mu.
func (e *StorageEngine) useDatabaseLocked(name string) error {
	dbDir := filepath.Join(e.dbRoot, name)

	w, err := wal.Open(filepath.Join(dbDir, "wal"), e.fs, e.log)
	if err != nil {
		return err
	}
	e.pool.SetWALManager(w)

	e.currDbName = name
	e.dbDir = dbDir
	e.wal = w
	e.ckpt = checkpoint.NewManager(dbDir, e.fs, e.log)
	e.heapMgr = heap.NewHeapFileManager(filepath.Join(dbDir, "heap"), e.disk, e.pool, e.log)
	e.idxMgr = bplustree.NewIndexFileManager(filepath.Join(dbDir, "indexes"), e.disk, e.pool, e.log)

	if err := e.reattachTablesLocked(); err != nil {
		return err
	}
	return e.recoverLocked()
}

// reattachTablesLocked reopens every table's heap file and every registered
// index file known to the catalog, for a database that already has tables
// on disk (a restart, not a fresh CreateDatabase).
func (e *StorageEngine) reattachTablesLocked() error {
	for _, table := range e.cat.ListTables() {
		heapFileID, err := e.cat.GetTableFileID(table)
		if err != nil {
			return err
		}
		if _, err := e.heapMgr.LoadHeapFile(heapFileID, table); err != nil {
			return err
		}
		for _, idxDef := range e.cat.IndexesForTable(table) {
			path := filepath.Join(e.dbDir, "indexes", idxDef.Table+"_"+idxDef.Name+".idx")
			if _, err := e.disk.OpenFileWithID(path, idxDef.FileID); err != nil {
				return err
			}
			if _, err := e.idxMgr.LoadIndex(table, idxDef.Name, idxDef.FileID, idxDef.Unique, bplustree.DefaultKeyCompare); err != nil {
				return err
			}
		}
	}
	return nil
}

// CurrentDatabase returns the name of the selected database, or "".
func (e *StorageEngine) CurrentDatabase() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currDbName
}

// Catalog exposes the catalog manager for introspection and for the
// planner's ExecContext.
func (e *StorageEngine) Catalog() *catalog.Manager { return e.cat }

func (e *StorageEngine) sessionFor(id uuid.UUID) *session {
	s, ok := e.sessions[id]
	if !ok {
		s = &session{cursors: make(map[string]*cursor)}
		e.sessions[id] = s
	}
	return s
}

// Close flushes and closes every open file. Safe to call once at shutdown.
func (e *StorageEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	if e.pool != nil {
		if err := e.pool.FlushAllPages(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.idxMgr != nil {
		if err := e.idxMgr.CloseAll(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.wal != nil {
		if err := e.wal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.disk != nil {
		if err := e.disk.CloseAll(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
