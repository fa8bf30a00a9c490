package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"coredb/dberr"
)

// NewManager returns a manager for the single checkpoint file under dbPath.
func NewManager(dbPath string, fs afero.Fs, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		dir:  dbPath,
		path: filepath.Join(dbPath, "checkpoint.json"),
		fs:   fs,
		log:  log,
	}
}

// Save atomically writes a new checkpoint: write-temp, fsync, rename. The
// rename is what makes this crash-safe — a reader at any point sees either
// the old checkpoint in full or the new one in full, never a partial write.
func (cm *Manager) Save(lsn uint64, database string, inFlightTxns []uint64) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if err := cm.fs.MkdirAll(cm.dir, 0755); err != nil {
		return dberr.Wrap(dberr.IOError, err, "create checkpoint dir %s", cm.dir)
	}

	cp := Checkpoint{
		ID:           uuid.New(),
		LSN:          lsn,
		Timestamp:    currentTimestamp(),
		Database:     database,
		InFlightTxns: inFlightTxns,
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "marshal checkpoint")
	}

	tempPath := cm.path + ".tmp"
	f, err := cm.fs.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "open temp checkpoint")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return dberr.Wrap(dberr.IOError, err, "write temp checkpoint")
	}
	if syncer, ok := f.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			f.Close()
			return dberr.Wrap(dberr.IOError, err, "sync temp checkpoint")
		}
	}
	if err := f.Close(); err != nil {
		return dberr.Wrap(dberr.IOError, err, "close temp checkpoint")
	}

	if err := cm.fs.Rename(tempPath, cm.path); err != nil {
		return dberr.Wrap(dberr.IOError, err, "rename checkpoint into place")
	}

	cm.log.Debug("checkpoint saved", zap.String("id", cp.ID.String()), zap.Uint64("lsn", lsn))
	return nil
}

// Load returns the most recent checkpoint, or a zero-LSN checkpoint if none
// exists yet or the file is corrupted — recovery then replays from the
// start of the log, which is always safe, just slower.
func (cm *Manager) Load() (*Checkpoint, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	exists, err := afero.Exists(cm.fs, cm.path)
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, err, "stat checkpoint")
	}
	if !exists {
		return &Checkpoint{}, nil
	}

	data, err := afero.ReadFile(cm.fs, cm.path)
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, err, "read checkpoint")
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		cm.log.Warn("checkpoint file corrupted, recovering from LSN 0", zap.Error(err))
		return &Checkpoint{}, nil
	}

	cm.log.Debug("checkpoint loaded", zap.String("id", cp.ID.String()), zap.Uint64("lsn", cp.LSN))
	return &cp, nil
}

// Delete removes the checkpoint file. Used by tests and by a fresh database
// wipe; normal operation only ever overwrites via Save.
func (cm *Manager) Delete() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if err := cm.fs.Remove(cm.path); err != nil && !os.IsNotExist(err) {
		return dberr.Wrap(dberr.IOError, err, "delete checkpoint")
	}
	return nil
}

func currentTimestamp() int64 {
	return time.Now().Unix()
}
