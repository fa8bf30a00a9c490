package types

// ColumnDef describes one column of a table schema, expanded from the
// teacher's {Name,Type,IsPrimaryKey} triple to the constraint surface
// spec.md §3 requires: nullability, default, and a check-expression
// reference (the expression itself lives in the owning schema's Checks,
// since a CHECK can reference more than one column).
type ColumnDef struct {
	Name         string     `json:"name"`
	Type         ColumnType `json:"type"`
	Precision    int        `json:"precision,omitempty"` // DECIMAL(p,s)
	Scale        int        `json:"scale,omitempty"`
	Length       int        `json:"length,omitempty"` // VARCHAR(n)
	IsPrimaryKey bool       `json:"is_primary_key"`
	Unique       bool       `json:"unique,omitempty"`
	NotNull      bool       `json:"not_null,omitempty"`
	HasDefault   bool       `json:"has_default,omitempty"`
	Default      string     `json:"default,omitempty"` // literal text, coerced at insert time
}

// ForeignKeyDef is unchanged in shape from the teacher's version.
type ForeignKeyDef struct {
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
}

// CheckConstraint is a named boolean expression, stored as the text of the
// expression (re-parsed by the engine's expression evaluator at enforcement
// time) since schema JSON has no AST encoding.
type CheckConstraint struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

// TableSchema is the catalog's persisted description of one table,
// expanded with CHECK constraints and an explicit index-name list (the
// indexes themselves are catalog.IndexDef entries keyed by name).
type TableSchema struct {
	TableName   string            `json:"table_name"`
	Columns     []ColumnDef       `json:"columns"`
	ForeignKeys []ForeignKeyDef   `json:"foreign_keys,omitempty"`
	Checks      []CheckConstraint `json:"checks,omitempty"`
	Indexes     []string          `json:"indexes,omitempty"`
}

// PrimaryKeyColumn returns the schema's single primary-key column, if any.
func (s TableSchema) PrimaryKeyColumn() (ColumnDef, bool) {
	for _, c := range s.Columns {
		if c.IsPrimaryKey {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// ColumnIndex returns the ordinal position of name within the schema.
func (s TableSchema) ColumnIndex(name string) (int, bool) {
	for i, c := range s.Columns {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}
