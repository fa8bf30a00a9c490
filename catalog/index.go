package catalog

import (
	"coredb/dberr"

	"go.uber.org/zap"
)

func indexKey(table, name string) string { return table + "." + name }

// RegisterIndex persists a new index definition. Callers must allocate
// idx.FileID (via AllocateFileID, or the table's own default index file for
// the primary-key index created alongside RegisterNewTable) before calling.
func (cm *Manager) RegisterIndex(idx IndexDef) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	key := indexKey(idx.Table, idx.Name)
	if _, exists := cm.indexes[key]; exists {
		return dberr.New(dberr.ConstraintViolation, "index %q already exists on table %q", idx.Name, idx.Table)
	}
	cm.indexes[key] = idx
	if err := cm.persistIndexes(); err != nil {
		return err
	}
	cm.log.Debug("registered index", zap.String("table", idx.Table), zap.String("index", idx.Name))
	return nil
}

func (cm *Manager) GetIndex(table, name string) (IndexDef, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	idx, exists := cm.indexes[indexKey(table, name)]
	if !exists {
		return IndexDef{}, dberr.New(dberr.NotFound, "index %q not found on table %q", name, table)
	}
	return idx, nil
}

// IndexesForTable returns every index defined on table, order unspecified.
func (cm *Manager) IndexesForTable(table string) []IndexDef {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	var out []IndexDef
	for _, idx := range cm.indexes {
		if idx.Table == table {
			out = append(out, idx)
		}
	}
	return out
}

func (cm *Manager) DropIndex(table, name string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	key := indexKey(table, name)
	if _, exists := cm.indexes[key]; !exists {
		return dberr.New(dberr.NotFound, "index %q not found on table %q", name, table)
	}
	delete(cm.indexes, key)
	return cm.persistIndexes()
}
