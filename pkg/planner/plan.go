// Package planner defines the typed logical plan (spec §6) for the four
// hybrid query shapes spec §4.8 describes: scalar point, scalar range, pure
// similarity, and predicate+similarity ("hybrid"), plus the pure,
// IO-free strategy decision for them. It never parses SQL text and does not
// execute plans: pkg/engine/query.go runs them, sequentially, and returns
// the rows.
//
// Grounded on the teacher's pkg/resource/memory/query_planner.go
// (QueryPlan/ScanMethod/PlanQuery strategy-selection shape) for the scalar
// paths, and pkg/resource/memory/hybrid_search.go for the
// predicate+similarity path, reworked from BM25+vector RRF fusion to spec
// §4.8's selectivity-threshold filter-first / vector-first choice.
package planner

import "github.com/kasuganosora/hybridpg/pkg/distance"

// Operator is one of the SQL-level comparison operators the planner
// recognizes in a predicate (spec §6).
type Operator string

const (
	OpEq      Operator = "="
	OpNeq     Operator = "!="
	OpLt      Operator = "<"
	OpLte     Operator = "<="
	OpGt      Operator = ">"
	OpGte     Operator = ">="
	OpBetween Operator = "between"
)

// VectorOp is one of the SQL-level distance operators spec §6 fixes, each
// mapping 1:1 onto a pkg/distance.Metric.
type VectorOp string

const (
	VecL2     VectorOp = "<->"
	VecIP     VectorOp = "<#>"
	VecCosine VectorOp = "<=>"
)

// Metric resolves a SQL-level vector operator to the distance kernel it
// corresponds to.
func (op VectorOp) Metric() distance.Metric {
	switch op {
	case VecL2:
		return distance.L2
	case VecIP:
		return distance.IP
	case VecCosine:
		return distance.Cosine
	default:
		return distance.L2
	}
}

// Predicate is a single scalar comparison against the table's primary key
// column. Composite and multi-column predicates are a non-goal (spec §1).
// The executor in pkg/engine applies every predicate as a bound on the
// primary key: it does not read Column, and it does not re-check rows
// against predicates on other columns.
type Predicate struct {
	Column   string
	Op       Operator
	Value    int64
	Hi       int64 // used only when Op == OpBetween (inclusive upper bound)
	Selectivity float64 // estimated selectivity in [0,1]; 0 means "unestimated"
}

// OrderBy describes a similarity ordering clause: `ORDER BY <Column> <Op>
// <Vector> LIMIT <implicit, carried on Select.Limit>`.
type OrderBy struct {
	Column string
	Op     VectorOp
	Vector []float32
}

// Select is the logical plan for a SQL SELECT, after the out-of-scope
// parser/analyzer has resolved it into typed fields.
type Select struct {
	Table      string
	Columns    []string
	Predicates []Predicate
	OrderBy    *OrderBy // nil for a pure scalar query
	Limit      int      // 0 means unbounded
}

// Row is one decoded output row: the primary key plus the raw payload
// bytes the record store returned. The planner does not decode column
// values out of Payload — that is the out-of-scope row-encoding format's
// business.
type Row struct {
	PK       int64
	Payload  []byte
	Distance float32 // meaningful only when the plan carried an OrderBy
}

// Insert is the logical plan for a SQL INSERT.
type Insert struct {
	Table string
	Rows  []InsertRow
}

// InsertRow is a single row to insert: its primary key, encoded payload,
// and optional vector value for the table's vector column (if any).
type InsertRow struct {
	PK      int64
	Payload []byte
	Vector  []float32
}

// Update is the logical plan for a SQL UPDATE. Like Predicate, it only
// reasons structurally about the PK column; Set is an opaque payload the
// caller has already re-encoded with the new values.
type Update struct {
	Table      string
	Predicates []Predicate
	Set        []InsertRow
}

// Delete is the logical plan for a SQL DELETE.
type Delete struct {
	Table      string
	Predicates []Predicate
}

// Strategy names which of spec §4.8's four shapes (plus the internal
// hybrid sub-strategies) the planner chose, surfaced for EXPLAIN-style
// diagnostics and the test suite's scenario 5 assertions.
type Strategy string

const (
	StrategyScalarPoint  Strategy = "scalar_point"
	StrategyScalarRange  Strategy = "scalar_range"
	StrategyPureSim      Strategy = "pure_similarity"
	StrategyBruteForce   Strategy = "brute_force_fallback"
	StrategyFilterFirst  Strategy = "filter_first"
	StrategyVectorFirst  Strategy = "vector_first"
)

// NIdxDefault is the row-count threshold below which a pure-similarity
// query falls back to brute force instead of consulting the vector index
// (spec §4.8).
const NIdxDefault = 1000

// SigmaLow and SigmaHigh bound the hybrid selectivity bands (spec §4.8).
const (
	SigmaLowDefault  = 0.10
	SigmaHighDefault = 0.50
)

// FExpandDefault is the over-fetch multiplier the vector-first strategy
// starts with.
const FExpandDefault = 3

// MaxExpandRetries bounds how many vector searches vector-first makes (each
// fetching twice as many candidates as the one before) before the executor
// gives up and falls back to filter-first (spec §4.8:
// "must not silently truncate").
const MaxExpandRetries = 4
