package engine

import (
	"context"
	"log"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/hybridpg/pkg/catalog"
	"github.com/kasuganosora/hybridpg/pkg/config"
	"github.com/kasuganosora/hybridpg/pkg/distance"
	"github.com/kasuganosora/hybridpg/pkg/lmi"
	"github.com/kasuganosora/hybridpg/pkg/mvcc"
	"github.com/kasuganosora/hybridpg/pkg/nsw"
	"github.com/kasuganosora/hybridpg/pkg/planner"
	"github.com/kasuganosora/hybridpg/pkg/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	st, err := store.OpenBadgerStore(store.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	e, err := Open(st, *config.DefaultConfig(), log.New(log.Writer(), "", 0))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func widgetsSchema() *catalog.TableSchema {
	return &catalog.TableSchema{
		Name:     "widgets",
		PKColumn: "id",
		Columns:  []catalog.ColumnDef{{Name: "id", Type: catalog.ColumnInt64}},
	}
}

func TestCreateTableRegistersSchemaAndIndex(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable(widgetsSchema(), lmi.DefaultConfig()))

	_, ok := e.Catalog().Table("widgets")
	require.True(t, ok)

	_, err := e.tableState("widgets")
	require.NoError(t, err)
}

func TestCreateTableIsCaseInsensitive(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable(widgetsSchema(), lmi.DefaultConfig()))

	_, err := e.tableState("Widgets")
	require.NoError(t, err)
}

func TestInsertAndReadRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable(widgetsSchema(), lmi.DefaultConfig()))

	tx, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	require.NoError(t, tx.Insert("widgets", 1, []byte("hello"), nil))
	require.NoError(t, tx.Commit())

	reader, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	payload, visible, err := reader.Read("widgets", 1)
	require.NoError(t, err)
	require.True(t, visible)
	require.Equal(t, "hello", string(payload))
}

func TestAbortedInsertIsNeverVisible(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable(widgetsSchema(), lmi.DefaultConfig()))

	tx, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	require.NoError(t, tx.Insert("widgets", 42, []byte("ghost"), nil))
	require.NoError(t, tx.Abort())

	reader, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	_, visible, err := reader.Read("widgets", 42)
	require.NoError(t, err)
	require.False(t, visible)

	_, found, err := e.tables[normalizedName("widgets")].index.PointLookup(42)
	require.NoError(t, err)
	require.False(t, found, "aborted transaction's LMI mutation must never apply")
}

func TestUpdateWritesNewVersionOverOld(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable(widgetsSchema(), lmi.DefaultConfig()))

	tx1, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	require.NoError(t, tx1.Insert("widgets", 7, []byte("v1"), nil))
	require.NoError(t, tx1.Commit())

	tx2, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	require.NoError(t, tx2.Update("widgets", 7, []byte("v2"), nil))
	require.NoError(t, tx2.Commit())

	reader, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	payload, visible, err := reader.Read("widgets", 7)
	require.NoError(t, err)
	require.True(t, visible)
	require.Equal(t, "v2", string(payload))
}

func TestDeleteTombstonesRow(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable(widgetsSchema(), lmi.DefaultConfig()))

	tx1, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	require.NoError(t, tx1.Insert("widgets", 9, []byte("v1"), nil))
	require.NoError(t, tx1.Commit())

	tx2, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	require.NoError(t, tx2.Delete("widgets", 9))
	require.NoError(t, tx2.Commit())

	reader, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	_, visible, err := reader.Read("widgets", 9)
	require.NoError(t, err)
	require.False(t, visible)
}

func vectorSchema(name string, dim int) (*catalog.TableSchema, catalog.VectorColumnSpec) {
	schema := &catalog.TableSchema{
		Name:     name,
		PKColumn: "id",
		Columns:  []catalog.ColumnDef{{Name: "id", Type: catalog.ColumnInt64}},
	}
	spec := catalog.VectorColumnSpec{
		Name:           "embedding",
		Dimension:      dim,
		Metric:         string(distance.L2),
		M:              8,
		EFConstruction: 32,
		EFSearch:       16,
	}
	return schema, spec
}

func TestCreateVectorIndexAttachesColumn(t *testing.T) {
	e := newTestEngine(t)
	schema, spec := vectorSchema("items", 3)
	require.NoError(t, e.CreateTable(schema, lmi.DefaultConfig()))

	params := nsw.Params{M: spec.M, EFConstruction: spec.EFConstruction, EFSearch: spec.EFSearch, MaxLevel: 16}
	require.NoError(t, e.CreateVectorIndex("items", spec, params, 1))

	got, ok := e.Catalog().Table("items")
	require.True(t, ok)
	require.NotNil(t, got.VectorColumn)
}

func TestQueryPureSimilarityFindsNearestVector(t *testing.T) {
	e := newTestEngine(t)
	schema, spec := vectorSchema("items", 2)
	require.NoError(t, e.CreateTable(schema, lmi.DefaultConfig()))
	params := nsw.Params{M: 8, EFConstruction: 32, EFSearch: 16, MaxLevel: 16}
	require.NoError(t, e.CreateVectorIndex("items", spec, params, 1))

	tx, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	require.NoError(t, tx.Insert("items", 1, []byte("near"), []float32{1, 0}))
	require.NoError(t, tx.Insert("items", 2, []byte("far"), []float32{100, 100}))
	require.NoError(t, tx.Commit())

	reader, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	sel := &planner.Select{
		Table:   "items",
		OrderBy: &planner.OrderBy{Column: "embedding", Op: planner.VecL2, Vector: []float32{1, 1}},
		Limit:   1,
	}
	rows, strategy, err := reader.Query(context.Background(), sel)
	require.NoError(t, err)
	require.Equal(t, planner.StrategyBruteForce, strategy, "tiny index falls back to brute force under N_idx")
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0].PK)
}

func TestQueryScalarPointFindsInsertedRow(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable(widgetsSchema(), lmi.DefaultConfig()))

	tx, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	require.NoError(t, tx.Insert("widgets", 100, []byte("payload"), nil))
	require.NoError(t, tx.Commit())

	reader, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	sel := &planner.Select{
		Table:      "widgets",
		Predicates: []planner.Predicate{{Column: "id", Op: planner.OpEq, Value: 100}},
	}
	rows, strategy, err := reader.Query(context.Background(), sel)
	require.NoError(t, err)
	require.Equal(t, planner.StrategyScalarPoint, strategy)
	require.Len(t, rows, 1)
	require.Equal(t, "payload", string(rows[0].Payload))
}

func TestQueryScalarRangeReturnsAscendingKeys(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateTable(widgetsSchema(), lmi.DefaultConfig()))

	tx, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, tx.Insert("widgets", i, []byte{byte(i)}, nil))
	}
	require.NoError(t, tx.Commit())

	reader, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	sel := &planner.Select{
		Table:      "widgets",
		Predicates: []planner.Predicate{{Column: "id", Op: planner.OpBetween, Value: 2, Hi: 4}},
	}
	rows, strategy, err := reader.Query(context.Background(), sel)
	require.NoError(t, err)
	require.Equal(t, planner.StrategyScalarRange, strategy)
	require.Len(t, rows, 3)
	require.Equal(t, []int64{2, 3, 4}, []int64{rows[0].PK, rows[1].PK, rows[2].PK})
}

func TestQueryHybridFilterFirstRanksByDistance(t *testing.T) {
	e := newTestEngine(t)
	schema, spec := vectorSchema("items", 2)
	require.NoError(t, e.CreateTable(schema, lmi.DefaultConfig()))
	params := nsw.Params{M: 8, EFConstruction: 32, EFSearch: 16, MaxLevel: 16}
	require.NoError(t, e.CreateVectorIndex("items", spec, params, 1))

	tx, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	require.NoError(t, tx.Insert("items", 1, []byte("a"), []float32{0, 0}))
	require.NoError(t, tx.Insert("items", 2, []byte("b"), []float32{5, 5}))
	require.NoError(t, tx.Insert("items", 3, []byte("c"), []float32{1, 1}))
	require.NoError(t, tx.Commit())

	reader, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	sel := &planner.Select{
		Table:      "items",
		Predicates: []planner.Predicate{{Column: "id", Op: planner.OpBetween, Value: 1, Hi: 3, Selectivity: 0.05}},
		OrderBy:    &planner.OrderBy{Column: "embedding", Op: planner.VecL2, Vector: []float32{0, 0}},
	}
	rows, strategy, err := reader.Query(context.Background(), sel)
	require.NoError(t, err)
	require.Equal(t, planner.StrategyFilterFirst, strategy)
	require.Len(t, rows, 3)
	require.Equal(t, int64(1), rows[0].PK)
}

func TestStatsReportsVectorAndMVCCCounters(t *testing.T) {
	e := newTestEngine(t)
	schema, spec := vectorSchema("items", 2)
	require.NoError(t, e.CreateTable(schema, lmi.DefaultConfig()))
	params := nsw.Params{M: 8, EFConstruction: 32, EFSearch: 16, MaxLevel: 16}
	require.NoError(t, e.CreateVectorIndex("items", spec, params, 1))

	tx, err := e.Begin(mvcc.RepeatableRead)
	require.NoError(t, err)
	require.NoError(t, tx.Insert("items", 1, []byte("a"), []float32{1, 1}))
	require.NoError(t, tx.Commit())

	stats, err := e.Stats("items")
	require.NoError(t, err)
	require.NotNil(t, stats.VectorStats)
	require.Equal(t, 1, stats.VectorStats.LiveCount)
}
