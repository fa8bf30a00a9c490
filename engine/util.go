package engine

import (
	"coredb/storage/heap"
	"coredb/types"
)

func decodeRowFor(schema *types.TableSchema, data []byte) (*types.Row, error) {
	return heap.DecodeRow(data, schema)
}

func heapEncodeRow(schema *types.TableSchema, row *types.Row) ([]byte, error) {
	return heap.EncodeRow(schema, row)
}

// pkIndexName is the fixed name under which every table's primary key
// index is registered, so foreign keys can always find it by convention
// rather than searching catalog.IndexesForTable for a Unique flag.
const pkIndexName = "pk"

// pkColumnName returns the table's primary key column name as declared in
// the schema.
func pkColumnName(schema *types.TableSchema) (string, bool) {
	col, ok := schema.PrimaryKeyColumn()
	if !ok {
		return "", false
	}
	return col.Name, true
}
