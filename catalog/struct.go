package catalog

import (
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"coredb/types"
)

// TableFileMapping records which heap file and which default index file back
// a table. Extra secondary indexes are tracked separately in IndexDef.
type TableFileMapping struct {
	HeapFileID  uint32 `json:"heap_file_id"`
	IndexFileID uint32 `json:"index_file_id"`
}

// IndexDef is the catalog's record of one B+ tree index, per spec.md §4.5's
// `{name, table, columns, unique, root_page_id}`. The root page id itself is
// not duplicated here — diskmanager.WriteRootID/ReadRootID already persist it
// per index file, keyed by FileID, so the catalog only needs to remember
// which file that index lives in.
type IndexDef struct {
	Name    string   `json:"name"`
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
	FileID  uint32   `json:"file_id"`
}

// ViewDef is a named, stored SELECT. Query holds the original SQL text
// rather than a serialized AST — see DESIGN.md's Open Question resolution.
type ViewDef struct {
	Name  string `json:"name"`
	Query string `json:"query"`
}

// TriggerDef is one row/statement trigger per spec.md §4.5.
type TriggerDef struct {
	Name      string `json:"name"`
	Table     string `json:"table"`
	Event     string `json:"event"`  // INSERT, UPDATE, DELETE
	Timing    string `json:"timing"` // BEFORE, AFTER
	Condition string `json:"condition,omitempty"`
	Body      string `json:"body"`
}

// Manager is the process-wide persistent registry of database metadata:
// table schemas, file id assignments, index/view/trigger definitions.
// Grounded on storage_engine/catalog's CatalogManager.
type Manager struct {
	dbRoot string
	fs     afero.Fs
	log    *zap.Logger

	currDb     string
	nextFileID uint32

	tableToFile map[string]TableFileMapping
	schemaCache *ristretto.Cache[string, types.TableSchema]

	indexes  map[string]IndexDef   // keyed by "table.index"
	views    map[string]ViewDef    // keyed by view name
	triggers map[string][]TriggerDef // keyed by table

	mu sync.RWMutex
}
