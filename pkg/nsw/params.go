// Package nsw implements the Navigable Small-World multi-layer proximity
// graph used for approximate nearest-neighbor search over vector columns
// (spec §4.5). It is substantially rewritten from the teacher's HNSWIndex
// (pkg/resource/memory/hnsw_index.go): same per-layer adjacency maps,
// geometric level assignment, greedy descent, beam search, and diversity
// neighbor-selection heuristic, but parameterized per graph instance rather
// than via a package-level DefaultHNSWParams, renamed to the spec's
// NSW/M/ef_construction/ef_search/mL vocabulary, and with in-graph Delete
// removed — soft deletes are the vector store's responsibility (pkg/vectorstore),
// since this graph has no correctness-preserving in-place removal.
package nsw

import (
	"math"

	"github.com/kasuganosora/hybridpg/pkg/errs"
)

// Params configures a Graph instance.
type Params struct {
	// M is the max neighbors per node per layer above level 0; level 0
	// uses 2*M (Mmax0), matching the original HNSW paper's convention.
	M int
	// EFConstruction is the beam width used while inserting.
	EFConstruction int
	// EFSearch is the default beam width used while searching, when the
	// caller doesn't request a specific ef.
	EFSearch int
	// ML is the level-assignment factor; level is drawn from a geometric
	// distribution with parameter ML (typically 1/ln(M)).
	ML int
	// MaxLevel caps the number of layers a single node can be promoted to,
	// guarding against runaway levels on a bad RNG seed.
	MaxLevel int
}

// DefaultParams returns the spec's default NSW parameters.
func DefaultParams() Params {
	return Params{
		M:              48,
		EFConstruction: 200,
		EFSearch:       100,
		ML:             0, // computed lazily from M, see mlFactor
		MaxLevel:       16,
	}
}

// mlFactor returns the geometric distribution parameter 1/ln(M).
func (p Params) mlFactor() float64 {
	if p.ML != 0 {
		return float64(p.ML)
	}
	if p.M <= 1 {
		return 1.0
	}
	return 1.0 / math.Log(float64(p.M))
}

// Validate checks the params against spec §9's enumerated ranges.
func (p Params) Validate() error {
	if p.M < 4 || p.M > 256 {
		return &errs.InvalidParams{Reason: "M must be in [4,256]"}
	}
	if p.EFConstruction < p.M {
		return &errs.InvalidParams{Reason: "ef_construction must be >= M"}
	}
	if p.EFSearch < 1 {
		return &errs.InvalidParams{Reason: "ef_search must be positive"}
	}
	if p.MaxLevel < 1 || p.MaxLevel > 64 {
		return &errs.InvalidParams{Reason: "max level must be in [1,64]"}
	}
	return nil
}
