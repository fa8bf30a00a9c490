package catalog

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"coredb/dberr"
	"coredb/types"
)

// NewManager returns a catalog rooted at dbRoot with no database selected
// yet; call CreateDatabase or UseDatabase before registering tables.
func NewManager(dbRoot string, fs afero.Fs, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, types.TableSchema]{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, err, "create schema cache")
	}

	return &Manager{
		dbRoot:      dbRoot,
		fs:          fs,
		log:         log,
		nextFileID:  1,
		tableToFile: make(map[string]TableFileMapping),
		schemaCache: cache,
		indexes:     make(map[string]IndexDef),
		views:       make(map[string]ViewDef),
		triggers:    make(map[string][]TriggerDef),
	}, nil
}

// CreateDatabase makes a fresh, empty database directory.
func (cm *Manager) CreateDatabase(name string) error {
	dir := filepath.Join(cm.dbRoot, name)
	if exists, _ := afero.DirExists(cm.fs, dir); exists {
		return dberr.New(dberr.ConstraintViolation, "database %q already exists", name)
	}
	if err := cm.fs.MkdirAll(filepath.Join(dir, "tables"), 0755); err != nil {
		return dberr.Wrap(dberr.IOError, err, "create database %q", name)
	}
	if err := cm.fs.MkdirAll(filepath.Join(dir, "metadata"), 0755); err != nil {
		return dberr.Wrap(dberr.IOError, err, "create database %q", name)
	}
	return nil
}

// UseDatabase switches the catalog to name, loading every table's schema,
// file mapping, index/view/trigger definitions, and the next-file-id
// counter from disk.
func (cm *Manager) UseDatabase(name string) error {
	dir := filepath.Join(cm.dbRoot, name)
	if exists, _ := afero.DirExists(cm.fs, dir); !exists {
		return dberr.New(dberr.NotFound, "database %q does not exist", name)
	}

	cm.mu.Lock()
	cm.currDb = name
	cm.mu.Unlock()

	if err := cm.loadTableFileMapping(); err != nil {
		return err
	}
	if err := cm.loadAllTableSchemas(); err != nil {
		return err
	}
	if err := cm.loadJSON(cm.metaPath("indexes.json"), &cm.indexes); err != nil {
		return err
	}
	if err := cm.loadJSON(cm.metaPath("views.json"), &cm.views); err != nil {
		return err
	}
	if err := cm.loadJSON(cm.metaPath("triggers.json"), &cm.triggers); err != nil {
		return err
	}
	return nil
}

func (cm *Manager) CurrentDatabase() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.currDb
}

func (cm *Manager) TableExists(name string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, exists := cm.tableToFile[name]
	return exists
}

// GetTableSchema returns name's schema, checking the in-memory cache first
// and falling back to disk (e.g. after a process restart that skipped
// loadAllTableSchemas, or a schema evicted from the bounded ristretto cache).
func (cm *Manager) GetTableSchema(name string) (types.TableSchema, error) {
	cm.mu.RLock()
	currDb := cm.currDb
	cm.mu.RUnlock()
	if currDb == "" {
		return types.TableSchema{}, dberr.New(dberr.NotFound, "no database selected")
	}

	if schema, ok := cm.schemaCache.Get(name); ok {
		return schema, nil
	}

	data, err := afero.ReadFile(cm.fs, cm.schemaPath(name))
	if err != nil {
		return types.TableSchema{}, dberr.New(dberr.NotFound, "table %q does not exist", name)
	}
	var schema types.TableSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return types.TableSchema{}, dberr.Wrap(dberr.IOError, err, "parse schema for table %q", name)
	}
	cm.schemaCache.Set(name, schema, 1)
	cm.schemaCache.Wait()
	return schema, nil
}

// RegisterNewTable assigns a heap file id and a default index file id,
// persists the schema and the updated mapping, and returns both ids.
func (cm *Manager) RegisterNewTable(schema types.TableSchema) (heapFileID, indexFileID uint32, err error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.tableToFile[schema.TableName]; exists {
		return 0, 0, dberr.New(dberr.ConstraintViolation, "table %q already exists", schema.TableName)
	}

	heapFileID = cm.nextFileID
	cm.nextFileID++
	indexFileID = cm.nextFileID
	cm.nextFileID++

	cm.tableToFile[schema.TableName] = TableFileMapping{HeapFileID: heapFileID, IndexFileID: indexFileID}
	cm.schemaCache.Set(schema.TableName, schema, 1)
	cm.schemaCache.Wait()

	if err := cm.persistSchema(schema); err != nil {
		return 0, 0, err
	}
	if err := cm.persistTableMapping(); err != nil {
		return 0, 0, err
	}
	if err := cm.persistNextFileID(); err != nil {
		return 0, 0, err
	}
	cm.log.Debug("registered table", zap.String("table", schema.TableName),
		zap.Uint32("heap_file_id", heapFileID), zap.Uint32("index_file_id", indexFileID))
	return heapFileID, indexFileID, nil
}

// UnregisterTable drops name's schema and file mapping, along with every
// index, view referencing nothing (views aren't cascaded — spec.md treats
// that as the caller's responsibility), and trigger defined on it.
func (cm *Manager) UnregisterTable(name string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.tableToFile[name]; !exists {
		return dberr.New(dberr.NotFound, "table %q not found in catalog", name)
	}

	delete(cm.tableToFile, name)
	cm.schemaCache.Del(name)
	delete(cm.triggers, name)
	for key, idx := range cm.indexes {
		if idx.Table == name {
			delete(cm.indexes, key)
		}
	}

	if err := cm.fs.Remove(cm.schemaPath(name)); err != nil {
		if exists, _ := afero.Exists(cm.fs, cm.schemaPath(name)); exists {
			return dberr.Wrap(dberr.IOError, err, "delete schema for table %q", name)
		}
	}

	if err := cm.persistTableMapping(); err != nil {
		return err
	}
	if err := cm.persistIndexes(); err != nil {
		return err
	}
	if err := cm.persistTriggers(); err != nil {
		return err
	}
	return nil
}

func (cm *Manager) GetTableFileID(table string) (uint32, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	mapping, exists := cm.tableToFile[table]
	if !exists {
		return 0, dberr.New(dberr.NotFound, "table %q not found in file mapping", table)
	}
	return mapping.HeapFileID, nil
}

func (cm *Manager) GetIndexFileID(table string) (uint32, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	mapping, exists := cm.tableToFile[table]
	if !exists {
		return 0, dberr.New(dberr.NotFound, "table %q not found in file mapping", table)
	}
	return mapping.IndexFileID, nil
}

// AllocateFileID hands out the next file id in the shared counter, for
// secondary index files created by CREATE INDEX after the table itself
// already exists.
func (cm *Manager) AllocateFileID() (uint32, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	id := cm.nextFileID
	cm.nextFileID++
	if err := cm.persistNextFileID(); err != nil {
		cm.nextFileID--
		return 0, err
	}
	return id, nil
}

func (cm *Manager) ListTables() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	names := make([]string, 0, len(cm.tableToFile))
	for name := range cm.tableToFile {
		names = append(names, name)
	}
	return names
}

func (cm *Manager) schemaPath(table string) string {
	return filepath.Join(cm.dbRoot, cm.currDb, "tables", table+"_schema.json")
}

func (cm *Manager) metaPath(file string) string {
	return filepath.Join(cm.dbRoot, cm.currDb, "metadata", file)
}

func (cm *Manager) persistSchema(schema types.TableSchema) error {
	dir := filepath.Join(cm.dbRoot, cm.currDb, "tables")
	if err := cm.fs.MkdirAll(dir, 0755); err != nil {
		return dberr.Wrap(dberr.IOError, err, "create tables dir")
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "marshal schema for table %q", schema.TableName)
	}
	if err := afero.WriteFile(cm.fs, cm.schemaPath(schema.TableName), data, 0644); err != nil {
		return dberr.Wrap(dberr.IOError, err, "write schema for table %q", schema.TableName)
	}
	return nil
}

func (cm *Manager) persistTableMapping() error {
	return cm.writeMetaJSON("table_file_mapping.json", cm.tableToFile)
}

func (cm *Manager) persistNextFileID() error {
	return cm.writeMetaJSON("next_file_id.json", cm.nextFileID)
}

func (cm *Manager) persistIndexes() error {
	return cm.writeMetaJSON("indexes.json", cm.indexes)
}

func (cm *Manager) persistViews() error {
	return cm.writeMetaJSON("views.json", cm.views)
}

func (cm *Manager) persistTriggers() error {
	return cm.writeMetaJSON("triggers.json", cm.triggers)
}

func (cm *Manager) writeMetaJSON(file string, v any) error {
	dir := filepath.Join(cm.dbRoot, cm.currDb, "metadata")
	if err := cm.fs.MkdirAll(dir, 0755); err != nil {
		return dberr.Wrap(dberr.IOError, err, "create metadata dir")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "marshal %s", file)
	}
	if err := afero.WriteFile(cm.fs, filepath.Join(dir, file), data, 0644); err != nil {
		return dberr.Wrap(dberr.IOError, err, "write %s", file)
	}
	return nil
}

// loadJSON decodes path into out if it exists, leaving out untouched (its
// zero/initialized value) if the file is absent — a fresh database has none
// of the optional metadata files yet.
func (cm *Manager) loadJSON(path string, out any) error {
	exists, err := afero.Exists(cm.fs, path)
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "stat %s", path)
	}
	if !exists {
		return nil
	}
	data, err := afero.ReadFile(cm.fs, path)
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "read %s", path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return dberr.Wrap(dberr.IOError, err, "parse %s", path)
	}
	return nil
}

func (cm *Manager) loadTableFileMapping() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.tableToFile = make(map[string]TableFileMapping)
	if err := cm.loadJSON(cm.metaPath("table_file_mapping.json"), &cm.tableToFile); err != nil {
		return err
	}

	var counter uint32
	if err := cm.loadJSON(cm.metaPath("next_file_id.json"), &counter); err != nil {
		return err
	}
	if counter > 0 {
		cm.nextFileID = counter
	} else {
		cm.nextFileID = uint32(len(cm.tableToFile)*2) + 1
	}
	return nil
}

func (cm *Manager) loadAllTableSchemas() error {
	cm.mu.RLock()
	currDb := cm.currDb
	cm.mu.RUnlock()
	if currDb == "" {
		return dberr.New(dberr.NotFound, "no database selected")
	}

	tablesDir := filepath.Join(cm.dbRoot, currDb, "tables")
	entries, err := afero.ReadDir(cm.fs, tablesDir)
	if err != nil {
		return dberr.Wrap(dberr.IOError, err, "read tables directory")
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_schema.json") {
			continue
		}
		data, err := afero.ReadFile(cm.fs, filepath.Join(tablesDir, entry.Name()))
		if err != nil {
			return dberr.Wrap(dberr.IOError, err, "read schema file %s", entry.Name())
		}
		var schema types.TableSchema
		if err := json.Unmarshal(data, &schema); err != nil {
			return dberr.Wrap(dberr.IOError, err, "parse schema file %s", entry.Name())
		}
		cm.schemaCache.Set(schema.TableName, schema, 1)
	}
	cm.schemaCache.Wait()
	return nil
}
