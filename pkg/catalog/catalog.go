// Package catalog tracks table schemas: the scalar primary key column (LMI
// backed) and the optional vector column (NSW backed) each table carries.
//
// Grounded on the teacher's pkg/resource/memory/table_manager.go
// (GetTables/CreateTable/DropTable/CreateIndex/DropIndex shape), de-
// singletonized per spec §9 ("no implicit process-level mutable state"):
// unlike the MVCCDataSource methods it is lifted from, Catalog is a value
// the engine constructs and owns explicitly, never looked up through a
// package-level registry.
package catalog

import (
	"sync"

	"golang.org/x/text/cases"

	"github.com/kasuganosora/hybridpg/pkg/errs"
)

var fold = cases.Fold()

// normalize case-folds an identifier so "Users" and "users" address the same
// table regardless of how a caller spelled it.
func normalize(identifier string) string { return fold.String(identifier) }

// ColumnType is the closed set of scalar column types this core reasons
// about structurally (the vector column is tracked separately via
// VectorColumn, not as a ColumnDef).
type ColumnType int

const (
	ColumnInt64 ColumnType = iota
	ColumnBytes
)

// ColumnDef describes one non-vector column.
type ColumnDef struct {
	Name string
	Type ColumnType
}

// VectorColumnSpec describes the single vector column a table may carry,
// along with the NSW/quantizer parameters its index was built with.
type VectorColumnSpec struct {
	Name           string
	Dimension      int
	Metric         string // one of distance.L2, distance.IP, distance.Cosine names
	M              int
	EFConstruction int
	EFSearch       int
	Quantize       bool
}

// TableSchema is one table's catalog entry: its scalar primary key column
// (always LMI-indexed, per spec §4.3's "scalar point keys are required"),
// its other scalar columns, and an optional vector column.
type TableSchema struct {
	Name         string
	PKColumn     string
	Columns      []ColumnDef
	VectorColumn *VectorColumnSpec
}

// Catalog is the in-memory registry of table schemas. Its job is name
// resolution and validation, not storage: it does not persist to the
// record store, and pkg/engine does not write TableSchema values to
// store.CFCatalog either.
type Catalog struct {
	mu     sync.RWMutex
	tables map[string]*TableSchema
}

func New() *Catalog {
	return &Catalog{tables: make(map[string]*TableSchema)}
}

// CreateTable registers a new table schema. The primary key column must be
// present in schema.Columns as a ColumnInt64, matching the spec's "scalar
// point keys are required... signed 64-bit" requirement.
func (c *Catalog) CreateTable(schema *TableSchema) error {
	name := normalize(schema.Name)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[name]; exists {
		return &errs.InvalidParams{Reason: "table already exists: " + schema.Name}
	}

	found := false
	for _, col := range schema.Columns {
		if normalize(col.Name) == normalize(schema.PKColumn) {
			if col.Type != ColumnInt64 {
				return &errs.InvalidParams{Reason: "primary key column must be int64: " + schema.PKColumn}
			}
			found = true
			break
		}
	}
	if !found {
		return &errs.InvalidParams{Reason: "primary key column not declared: " + schema.PKColumn}
	}

	stored := *schema
	stored.Columns = append([]ColumnDef(nil), schema.Columns...)
	c.tables[name] = &stored
	return nil
}

// DropTable removes a table's schema entry. It does not touch any stored
// data; the engine is responsible for reclaiming tuple/index rows.
func (c *Catalog) DropTable(name string) error {
	key := normalize(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tables[key]; !exists {
		return &errs.InvalidParams{Reason: "table not found: " + name}
	}
	delete(c.tables, key)
	return nil
}

// AttachVectorColumn records the vector-index parameters for a table,
// corresponding to a CreateIndex logical plan with a vector-index variant.
func (c *Catalog) AttachVectorColumn(tableName string, spec VectorColumnSpec) error {
	key := normalize(tableName)
	c.mu.Lock()
	defer c.mu.Unlock()
	schema, exists := c.tables[key]
	if !exists {
		return &errs.InvalidParams{Reason: "table not found: " + tableName}
	}
	schema.VectorColumn = &spec
	return nil
}

// Table returns a copy of the named table's schema.
func (c *Catalog) Table(name string) (*TableSchema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	schema, exists := c.tables[normalize(name)]
	if !exists {
		return nil, false
	}
	cp := *schema
	cp.Columns = append([]ColumnDef(nil), schema.Columns...)
	return &cp, true
}

// Tables lists all registered table names.
func (c *Catalog) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.tables))
	for _, schema := range c.tables {
		out = append(out, schema.Name)
	}
	return out
}
