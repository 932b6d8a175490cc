// Package engine is the top-level wiring package: it owns one record store,
// one MVCC manager, the catalog, and a per-table LMI + vector store pair,
// and exposes the Begin surface (a Tx with Commit/Abort and Query(plan)) the
// rest of the system (out of scope: SQL parsing, network protocol) is built on.
//
// Grounded on the teacher's pkg/resource/memory/mvcc_datasource.go (a
// single façade composing an MVCC transaction id with per-table storage
// state) for the overall shape, reworked against pkg/store + pkg/catalog +
// pkg/planner instead of the teacher's in-memory TableVersions, and
// de-singletonized per spec §9: an Engine is a value the caller
// constructs and owns, never looked up through a package-level registry.
package engine

import (
	"log"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/kasuganosora/hybridpg/pkg/catalog"
	"github.com/kasuganosora/hybridpg/pkg/config"
	"github.com/kasuganosora/hybridpg/pkg/distance"
	"github.com/kasuganosora/hybridpg/pkg/errs"
	"github.com/kasuganosora/hybridpg/pkg/lmi"
	"github.com/kasuganosora/hybridpg/pkg/mvcc"
	"github.com/kasuganosora/hybridpg/pkg/nsw"
	"github.com/kasuganosora/hybridpg/pkg/store"
	"github.com/kasuganosora/hybridpg/pkg/vectorstore"
)

// tableState is the live, in-memory index state for one catalog table: its
// scalar LMI (always present, spec §1 "scalar point keys are required")
// and its optional vector store. structMu is the writer lock spec §5
// requires around LMI splits and NSW inserts; readers only take it via the
// relevant index's own internal locking, so this mutex exists purely to
// serialize concurrent structural mutations across both indexes for the
// same table.
type tableState struct {
	structMu sync.Mutex
	index    *lmi.LMI
	vectors  *vectorstore.Store
	schema   *catalog.TableSchema
}

// Engine is one running instance of the hybrid storage core.
type Engine struct {
	id     string
	store  store.Store
	mgr    *mvcc.Manager
	cat    *catalog.Catalog
	cfg    config.Config
	logger *log.Logger

	mu     sync.RWMutex
	tables map[string]*tableState
}

// Open wires a store, an MVCC manager, and a catalog together into a new
// Engine. The caller retains ownership of st (Close releases the manager's
// background GC loop, not the store).
func Open(st store.Store, cfg config.Config, logger *log.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	e := &Engine{
		id:     uuid.NewString(),
		store:  st,
		mgr:    mvcc.NewManager(st, mvcc.DefaultConfig()),
		cat:    catalog.New(),
		cfg:    cfg,
		logger: logger,
		tables: make(map[string]*tableState),
	}
	return e, nil
}

// ID is a stable identifier for this engine instance, surfaced in
// diagnostics/stats output.
func (e *Engine) ID() string { return e.id }

// Close stops the MVCC manager's background GC loop. It does not close the
// underlying store, which the caller still owns.
func (e *Engine) Close() error {
	return e.mgr.Close()
}

// CreateTable registers a new table with a scalar primary key column,
// initializing an empty LMI for it (spec §3: "LMI leaf: created either at
// bootstrap (one empty leaf)").
func (e *Engine) CreateTable(schema *catalog.TableSchema, lmiCfg lmi.Config) error {
	if err := e.cat.CreateTable(schema); err != nil {
		return err
	}
	idx, err := lmi.New(lmiCfg)
	if err != nil {
		return err
	}
	stored, _ := e.cat.Table(schema.Name)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[normalizedName(schema.Name)] = &tableState{index: idx, schema: stored}
	return nil
}

// CreateVectorIndex attaches a vector column and its NSW index to an
// existing table (spec §6: CreateIndex's vector-index variant parameterized
// by {M, ef_construction, op_class}).
func (e *Engine) CreateVectorIndex(tableName string, spec catalog.VectorColumnSpec, params nsw.Params, seed int64) error {
	if err := e.cat.AttachVectorColumn(tableName, spec); err != nil {
		return err
	}
	vs, err := vectorstore.New(spec.Dimension, distance.Metric(spec.Metric), params, seed)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	ts, ok := e.tables[normalizedName(tableName)]
	if !ok {
		return &errs.InvalidParams{Reason: "table not found: " + tableName}
	}
	ts.vectors = vs
	stored, _ := e.cat.Table(tableName)
	ts.schema = stored
	return nil
}

func (e *Engine) tableState(name string) (*tableState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ts, ok := e.tables[normalizedName(name)]
	if !ok {
		return nil, &errs.InvalidParams{Reason: "table not found: " + name}
	}
	return ts, nil
}

var tableFold = cases.Fold()

// normalizedName mirrors pkg/catalog's identifier case-folding so the
// engine's table-state map and the catalog agree on a table's canonical
// key regardless of caller casing.
func normalizedName(name string) string { return tableFold.String(name) }

// Catalog exposes the engine's catalog for read-only inspection (schema
// lookups ahead of building a logical plan, which is the out-of-scope
// planner/analyzer's job in the full system).
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// Manager exposes the engine's MVCC manager, e.g. for a caller that wants
// to inspect transaction statistics.
func (e *Engine) Manager() *mvcc.Manager { return e.mgr }

// Stats summarizes one table's live index state for introspection.
type Stats struct {
	Table       string
	VectorStats *vectorstore.Stats
	MVCCStats   mvcc.Statistics
}

func (e *Engine) Stats(table string) (Stats, error) {
	ts, err := e.tableState(table)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Table: table, MVCCStats: e.mgr.GetStatistics()}
	if ts.vectors != nil {
		vs := ts.vectors.Stats()
		s.VectorStats = &vs
	}
	return s, nil
}
