package nsw

import (
	"context"
	"sort"

	"github.com/kasuganosora/hybridpg/pkg/distance"
	"github.com/kasuganosora/hybridpg/pkg/errs"
)

// Result is a single search hit, ascending-sorted by distance.
type Result struct {
	ID       int64
	Distance float32
}

// SearchOptions overrides the graph's default beam width and supplies the
// tombstone predicate for soft-deleted ids.
type SearchOptions struct {
	EF      int               // 0 means use Params.EFSearch
	Exclude func(id int64) bool
}

// Search returns up to k approximate nearest neighbors of query, ascending
// by distance, skipping any id for which opts.Exclude reports true.
func (g *Graph) Search(ctx context.Context, query []float32, k int, opts SearchOptions) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &errs.Cancelled{Op: "nsw search"}
	}
	if len(query) != g.dim {
		return nil, &errs.DimensionMismatch{Expected: g.dim, Actual: len(query)}
	}
	if err := distance.ValidateOne(query); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.hasEntry || len(g.vectors) == 0 {
		return nil, &errs.EmptyIndex{}
	}

	ef := opts.EF
	if ef == 0 {
		ef = g.params.EFSearch
	}
	if k <= 0 || ef < k {
		return nil, &errs.InvalidSearchParams{K: k, EF: ef}
	}

	ep := g.entryPoint
	for l := g.entryLevel; l >= 1; l-- {
		ep = g.greedyClosest(query, ep, l)
	}

	candidates := g.searchLevel(query, ep, ef, 0, opts.Exclude)

	// searchLevel already leaves excluded ids, the entry point included, out
	// of its results; this pass applies opts.Exclude once more over them.
	filtered := candidates[:0:0]
	for _, c := range candidates {
		if opts.Exclude != nil && opts.Exclude(c.id) {
			continue
		}
		filtered = append(filtered, c)
	}

	if len(filtered) < k && opts.Exclude != nil {
		filtered = g.bruteForceFallback(query, opts.Exclude, filtered)
	}

	if len(filtered) > k {
		filtered = filtered[:k]
	}

	out := make([]Result, len(filtered))
	for i, c := range filtered {
		out[i] = Result{ID: c.id, Distance: c.dist}
	}
	return out, nil
}

// bruteForceFallback widens the candidate set by scanning every live vector
// when the beam search under-filled after tombstone exclusion, mirroring
// the teacher's filtered-search fallback.
func (g *Graph) bruteForceFallback(query []float32, exclude func(int64) bool, have []candidate) []candidate {
	seen := make(map[int64]bool, len(have))
	for _, c := range have {
		seen[c.id] = true
	}
	out := append([]candidate{}, have...)
	for id, vec := range g.vectors {
		if seen[id] || exclude(id) {
			continue
		}
		out = append(out, candidate{id: id, dist: g.metric.Compute(query, vec)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })
	return out
}

// Vector returns a copy of the stored vector for id, if present.
func (g *Graph) Vector(id int64) ([]float32, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.vectors[id]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// IDs returns every id currently stored in the graph, in no particular
// order.
func (g *Graph) IDs() []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]int64, 0, len(g.vectors))
	for id := range g.vectors {
		out = append(out, id)
	}
	return out
}
