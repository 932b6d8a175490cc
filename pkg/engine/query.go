// query.go implements the four hybrid query shapes pkg/planner's types
// describe (spec §4.8): scalar point, scalar range, pure similarity, and
// predicate+similarity. The planner package only carries the logical-plan
// types and the pure selectivity-threshold strategy decision; this file
// does the actual LMI/vectorstore/MVCC IO, since that needs the engine's
// live tableState the planner package has no business depending on.
//
// Grounded on the teacher's pkg/resource/memory/query_planner.go
// (PlanQuery/ExecutePlan dispatch over ScanMethod) and
// pkg/resource/memory/hybrid_search.go's dual-path fusion shape, reworked
// from BM25+vector RRF onto spec §4.8's filter-first/vector-first
// selectivity bands.
package engine

import (
	"context"
	"sort"

	"github.com/kasuganosora/hybridpg/pkg/distance"
	"github.com/kasuganosora/hybridpg/pkg/errs"
	"github.com/kasuganosora/hybridpg/pkg/nsw"
	"github.com/kasuganosora/hybridpg/pkg/planner"
)

// Query executes sel against the given transaction's snapshot and returns
// the matching rows in the order each strategy naturally produces them
// (PK order for scalar shapes, ascending distance for similarity shapes),
// along with the Strategy chosen for diagnostics.
func (t *Tx) Query(ctx context.Context, sel *planner.Select) ([]planner.Row, planner.Strategy, error) {
	ts, err := t.engine.tableState(sel.Table)
	if err != nil {
		return nil, "", err
	}

	if sel.OrderBy == nil {
		rows, err := t.scanScalar(ts, sel)
		strategy := planner.ChooseScalarStrategy(sel.Predicates)
		return rows, strategy, err
	}

	if ts.vectors == nil {
		return nil, "", &errs.InvalidParams{Reason: "table has no vector column: " + sel.Table}
	}

	if len(sel.Predicates) == 0 {
		rows, err := t.scanPureSimilarity(ctx, ts, sel)
		if ts.vectors.Len() < planner.NIdxDefault {
			return rows, planner.StrategyBruteForce, err
		}
		return rows, planner.StrategyPureSim, err
	}

	return t.scanHybrid(ctx, ts, sel)
}

// scalarRange returns the [lo, hi] bounds a predicate set implies; a bare
// equality predicate collapses lo==hi, and no predicates at all means an
// unbounded scan across the full signed int64 range.
func scalarRange(predicates []planner.Predicate) (lo, hi int64) {
	lo, hi = minInt64, maxInt64
	for _, p := range predicates {
		switch p.Op {
		case planner.OpEq:
			return p.Value, p.Value
		case planner.OpGt:
			if p.Value+1 > lo {
				lo = p.Value + 1
			}
		case planner.OpGte:
			if p.Value > lo {
				lo = p.Value
			}
		case planner.OpLt:
			if p.Value-1 < hi {
				hi = p.Value - 1
			}
		case planner.OpLte:
			if p.Value < hi {
				hi = p.Value
			}
		case planner.OpBetween:
			if p.Value > lo {
				lo = p.Value
			}
			if p.Hi < hi {
				hi = p.Hi
			}
		}
	}
	return lo, hi
}

const (
	minInt64 = -1 << 63
	maxInt64 = 1<<63 - 1
)

// scanScalar resolves the PK predicates to an LMI point or range lookup,
// then filters each candidate for snapshot visibility.
func (t *Tx) scanScalar(ts *tableState, sel *planner.Select) ([]planner.Row, error) {
	lo, hi := scalarRange(sel.Predicates)

	var pks []int64
	if lo == hi {
		if _, found, err := ts.index.PointLookup(lo); err != nil {
			return nil, err
		} else if found {
			pks = []int64{lo}
		}
	} else {
		kvs, err := ts.index.RangeLookup(lo, hi)
		if err != nil {
			return nil, err
		}
		pks = make([]int64, len(kvs))
		for i, kv := range kvs {
			pks[i] = kv.Key
		}
	}

	out := make([]planner.Row, 0, len(pks))
	for _, pk := range pks {
		payload, visible, err := t.Read(sel.Table, pk)
		if err != nil {
			return nil, err
		}
		if !visible {
			continue
		}
		out = append(out, planner.Row{PK: pk, Payload: payload})
		if sel.Limit > 0 && len(out) >= sel.Limit {
			break
		}
	}
	return out, nil
}

// scanPureSimilarity runs a vector search (or, under NIdxDefault, a brute
// force scan over every live vector) and filters the candidates for
// snapshot visibility, over-fetching and retrying when too many candidates
// turn out invisible to reach the requested limit.
func (t *Tx) scanPureSimilarity(ctx context.Context, ts *tableState, sel *planner.Select) ([]planner.Row, error) {
	k := sel.Limit
	if k <= 0 {
		k = ts.vectors.Len()
	}
	if k == 0 {
		return nil, nil
	}

	if ts.vectors.Len() < planner.NIdxDefault {
		return t.bruteForceSimilarity(sel, ts, k)
	}

	ef := k
	for attempt := 0; attempt < planner.MaxExpandRetries; attempt++ {
		fetch := k
		if attempt > 0 {
			fetch = planner.ExpandFetch(k, attempt-1)
		}
		if fetch > ef {
			ef = fetch * 2
		}
		results, err := t.searchVectors(ctx, ts, sel.OrderBy.Vector, fetch, ef)
		if err != nil {
			return nil, err
		}
		rows, err := t.visibleRows(sel.Table, results)
		if err != nil {
			return nil, err
		}
		if len(rows) >= k || fetch >= ts.vectors.Len() {
			if len(rows) > k {
				rows = rows[:k]
			}
			return rows, nil
		}
	}
	return t.bruteForceSimilarity(sel, ts, k)
}

func (t *Tx) bruteForceSimilarity(sel *planner.Select, ts *tableState, k int) ([]planner.Row, error) {
	fn, err := distance.Get(sel.OrderBy.Op.Metric())
	if err != nil {
		return nil, err
	}
	all := ts.vectors.All()
	type scored struct {
		id   int64
		dist float32
	}
	scores := make([]scored, 0, len(all))
	for id, vec := range all {
		scores = append(scores, scored{id: id, dist: fn.Compute(sel.OrderBy.Vector, vec)})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].dist < scores[j].dist })

	out := make([]planner.Row, 0, k)
	for _, s := range scores {
		payload, visible, err := t.Read(sel.Table, s.id)
		if err != nil {
			return nil, err
		}
		if !visible {
			continue
		}
		out = append(out, planner.Row{PK: s.id, Payload: payload, Distance: s.dist})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

// searchVectors dispatches to the store's quantized prefilter-then-rerank
// path once enough vectors have been sampled to fit one (spec §4.6),
// otherwise runs an ordinary beam search.
func (t *Tx) searchVectors(ctx context.Context, ts *tableState, query []float32, k, ef int) ([]nsw.Result, error) {
	if ts.vectors.QuantizerReady() {
		return ts.vectors.SearchQuantized(ctx, query, k, t.engine.cfg.Index.ExpansionFactor)
	}
	return ts.vectors.Search(ctx, query, k, ef)
}

func (t *Tx) visibleRows(table string, results []nsw.Result) ([]planner.Row, error) {
	out := make([]planner.Row, 0, len(results))
	for _, r := range results {
		payload, visible, err := t.Read(table, r.ID)
		if err != nil {
			return nil, err
		}
		if !visible {
			continue
		}
		out = append(out, planner.Row{PK: r.ID, Payload: payload, Distance: r.Distance})
	}
	return out, nil
}

// scanHybrid dispatches to filter-first or vector-first per spec §4.8's
// selectivity thresholds, taking selectivity from the caller-supplied
// Predicate.Selectivity when present (see estimateSelectivity for the
// value used otherwise).
func (t *Tx) scanHybrid(ctx context.Context, ts *tableState, sel *planner.Select) ([]planner.Row, planner.Strategy, error) {
	selectivity := estimateSelectivity(sel.Predicates)
	strategy := planner.ChooseHybridStrategy(selectivity)

	if strategy == planner.StrategyFilterFirst {
		rows, err := t.hybridFilterFirst(ctx, ts, sel)
		return rows, strategy, err
	}
	rows, err := t.hybridVectorFirst(ctx, ts, sel)
	return rows, strategy, err
}

// estimateSelectivity returns the caller's estimate when given, defaulting
// to SigmaLowDefault for an unestimated predicate set, which
// ChooseHybridStrategy maps to filter-first; filter-first is the safer
// default when selectivity is unknown: it never over-fetches from the
// vector index.
func estimateSelectivity(predicates []planner.Predicate) float64 {
	for _, p := range predicates {
		if p.Selectivity > 0 {
			return p.Selectivity
		}
	}
	return planner.SigmaLowDefault
}

// hybridFilterFirst scans the LMI for predicate matches, reads each
// visible row's vector, and ranks the survivors by distance to the query.
func (t *Tx) hybridFilterFirst(ctx context.Context, ts *tableState, sel *planner.Select) ([]planner.Row, error) {
	lo, hi := scalarRange(sel.Predicates)
	kvs, err := ts.index.RangeLookup(lo, hi)
	if err != nil {
		return nil, err
	}

	fn, err := distance.Get(sel.OrderBy.Op.Metric())
	if err != nil {
		return nil, err
	}

	type scored struct {
		row  planner.Row
		dist float32
	}
	candidates := make([]scored, 0, len(kvs))
	for _, kv := range kvs {
		payload, visible, err := t.Read(sel.Table, kv.Key)
		if err != nil {
			return nil, err
		}
		if !visible {
			continue
		}
		vec, ok := ts.vectors.Vector(kv.Key)
		if !ok {
			continue
		}
		d := fn.Compute(sel.OrderBy.Vector, vec)
		candidates = append(candidates, scored{row: planner.Row{PK: kv.Key, Payload: payload, Distance: d}, dist: d})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })

	limit := sel.Limit
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}
	out := make([]planner.Row, limit)
	for i := 0; i < limit; i++ {
		out[i] = candidates[i].row
	}
	return out, nil
}

// hybridVectorFirst searches the vector index for the nearest candidates,
// then rechecks each against the predicate and MVCC visibility, searching
// up to MaxExpandRetries times with a doubled candidate set each time before
// falling back to
// filter-first, per spec §4.8's "must not silently truncate" requirement.
func (t *Tx) hybridVectorFirst(ctx context.Context, ts *tableState, sel *planner.Select) ([]planner.Row, error) {
	k := sel.Limit
	if k <= 0 {
		k = ts.vectors.Len()
	}
	if k == 0 {
		return nil, nil
	}
	lo, hi := scalarRange(sel.Predicates)

	for attempt := 0; attempt < planner.MaxExpandRetries; attempt++ {
		fetch := planner.ExpandFetch(k, attempt)
		if fetch > ts.vectors.Len() {
			fetch = ts.vectors.Len()
		}
		results, err := t.searchVectors(ctx, ts, sel.OrderBy.Vector, fetch, fetch*2)
		if err != nil {
			return nil, err
		}
		out := make([]planner.Row, 0, k)
		for _, r := range results {
			if r.ID < lo || r.ID > hi {
				continue
			}
			payload, visible, err := t.Read(sel.Table, r.ID)
			if err != nil {
				return nil, err
			}
			if !visible {
				continue
			}
			out = append(out, planner.Row{PK: r.ID, Payload: payload, Distance: r.Distance})
			if len(out) >= k {
				break
			}
		}
		if len(out) >= k || fetch >= ts.vectors.Len() {
			return out, nil
		}
	}
	return t.hybridFilterFirst(ctx, ts, sel)
}
