package nsw

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"github.com/kasuganosora/hybridpg/pkg/distance"
	"github.com/kasuganosora/hybridpg/pkg/errs"
)

// Graph is a single NSW proximity graph over int64-keyed vectors of a fixed
// dimension and metric. It is safe for concurrent Search/Insert calls.
//
// There is no in-graph Delete: the paper's incremental-construction
// guarantees don't hold under arbitrary neighbor removal, so a deleted
// node's edges are left in place and callers filter it out via the
// tombstone set threaded through Search (see pkg/vectorstore, which owns
// the tombstone persistence).
type Graph struct {
	mu sync.RWMutex

	dim    int
	metric distance.Func
	params Params
	rng    *rand.Rand

	vectors   map[int64][]float32
	layers    []map[int64][]int64
	nodeLevel map[int64]int

	entryPoint int64
	entryLevel int
	hasEntry   bool
}

// New creates an empty graph over vectors of the given dimension and
// metric, seeded for deterministic level assignment (tests fix seed; a
// production caller seeds from crypto/rand or a monotonic counter).
func New(dim int, metric distance.Func, params Params, seed int64) (*Graph, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if dim <= 0 {
		return nil, &errs.InvalidParams{Reason: "dimension must be positive"}
	}
	return &Graph{
		dim:       dim,
		metric:    metric,
		params:    params,
		rng:       rand.New(rand.NewSource(seed)),
		vectors:   make(map[int64][]float32),
		layers:    make([]map[int64][]int64, 0),
		nodeLevel: make(map[int64]int),
	}, nil
}

// Len returns the number of live vectors in the graph (including any not
// yet filtered by a caller's tombstone set).
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.vectors)
}

// Dimension reports the configured vector width.
func (g *Graph) Dimension() int { return g.dim }

func (g *Graph) randomLevel() int {
	level := 0
	ml := g.params.mlFactor()
	for g.rng.Float64() < ml && level < g.params.MaxLevel {
		level++
	}
	return level
}

func (g *Graph) ensureLayers(level int) {
	for len(g.layers) <= level {
		g.layers = append(g.layers, make(map[int64][]int64))
	}
}

// Insert adds id/vector to the graph. Re-inserting an existing id replaces
// its vector and links it again: it draws a new level and fresh neighbor
// lists on each of those layers, while edges that other nodes already hold
// to it stay in place.
func (g *Graph) Insert(ctx context.Context, id int64, vector []float32) error {
	if err := ctx.Err(); err != nil {
		return &errs.Cancelled{Op: "nsw insert"}
	}
	if len(vector) != g.dim {
		return &errs.DimensionMismatch{Expected: g.dim, Actual: len(vector)}
	}
	if err := distance.ValidateOne(vector); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	vec := make([]float32, len(vector))
	copy(vec, vector)
	g.vectors[id] = vec
	g.insertInternal(id, vec)
	return nil
}

func (g *Graph) insertInternal(id int64, vector []float32) {
	level := g.randomLevel()
	g.nodeLevel[id] = level
	g.ensureLayers(level)

	for l := 0; l <= level; l++ {
		g.layers[l][id] = make([]int64, 0, g.maxConnAt(l))
	}

	if !g.hasEntry {
		g.entryPoint = id
		g.entryLevel = level
		g.hasEntry = true
		return
	}

	ep := g.entryPoint
	epLevel := g.entryLevel

	for l := epLevel; l > level; l-- {
		if l >= len(g.layers) {
			continue
		}
		ep = g.greedyClosest(vector, ep, l)
	}

	topInsertLevel := level
	if epLevel < topInsertLevel {
		topInsertLevel = epLevel
	}

	for l := topInsertLevel; l >= 0; l-- {
		candidates := g.searchLevel(vector, ep, g.params.EFConstruction, l, nil)
		maxConn := g.maxConnAt(l)
		neighbors := g.selectNeighbors(vector, candidates, maxConn)

		g.layers[l][id] = neighbors
		for _, neighborID := range neighbors {
			nNeighbors := append(g.layers[l][neighborID], id)
			if len(nNeighbors) > maxConn {
				nNeighbors = g.pruneNeighbors(neighborID, nNeighbors, maxConn)
			}
			g.layers[l][neighborID] = nNeighbors
		}

		if len(candidates) > 0 {
			ep = candidates[0].id
		}
	}

	if level > g.entryLevel {
		g.entryPoint = id
		g.entryLevel = level
	}
}

func (g *Graph) maxConnAt(level int) int {
	if level == 0 {
		return g.params.M * 2
	}
	return g.params.M
}

func (g *Graph) greedyClosest(query []float32, ep int64, level int) int64 {
	if level >= len(g.layers) {
		return ep
	}
	current := ep
	currentDist := g.dist(query, current)
	for {
		improved := false
		for _, nid := range g.layers[level][current] {
			d := g.dist(query, nid)
			if d < currentDist {
				current = nid
				currentDist = d
				improved = true
			}
		}
		if !improved {
			break
		}
	}
	return current
}

func (g *Graph) dist(query []float32, id int64) float32 {
	vec := g.vectors[id]
	if vec == nil {
		return float32(1e38)
	}
	return g.metric.Compute(query, vec)
}

type candidate struct {
	id   int64
	dist float32
}

// searchLevel performs a bounded best-first beam search at level, returning
// up to ef candidates ordered ascending by distance. skip, if non-nil,
// reports tombstoned ids to exclude from the result set entirely (they are
// still traversed as graph hops, since removing their edges would require
// the in-place delete this graph deliberately does not support).
func (g *Graph) searchLevel(query []float32, ep int64, ef int, level int, skip func(int64) bool) []candidate {
	if level >= len(g.layers) {
		return nil
	}

	visited := map[int64]bool{ep: true}
	epDist := g.dist(query, ep)

	frontier := []candidate{{id: ep, dist: epDist}}
	var results []candidate
	if skip == nil || !skip(ep) {
		results = []candidate{{id: ep, dist: epDist}}
	}

	for len(frontier) > 0 {
		closest := frontier[0]
		frontier = frontier[1:]

		if len(results) >= ef && closest.dist > results[ef-1].dist {
			break
		}

		for _, nid := range g.layers[level][closest.id] {
			if visited[nid] {
				continue
			}
			visited[nid] = true
			d := g.dist(query, nid)

			frontier = insertSorted(frontier, candidate{id: nid, dist: d})

			if skip != nil && skip(nid) {
				continue
			}
			if len(results) < ef || d < results[len(results)-1].dist {
				results = insertSorted(results, candidate{id: nid, dist: d})
				if len(results) > ef {
					results = results[:ef]
				}
			}
		}
	}

	return results
}

func insertSorted(slice []candidate, c candidate) []candidate {
	i := sort.Search(len(slice), func(i int) bool { return slice[i].dist > c.dist })
	slice = append(slice, candidate{})
	copy(slice[i+1:], slice[i:])
	slice[i] = c
	return slice
}

// selectNeighbors implements the paper's "Algorithm 4" diversity heuristic:
// a candidate is kept only if it is closer to the query than to every
// already-selected neighbor, which spreads edges across distinct
// directions instead of clustering them around the single closest point.
func (g *Graph) selectNeighbors(query []float32, candidates []candidate, m int) []int64 {
	if len(candidates) <= m {
		result := make([]int64, len(candidates))
		for i, c := range candidates {
			result[i] = c.id
		}
		return result
	}

	selected := make([]int64, 0, m)
	selectedVecs := make([][]float32, 0, m)

	for _, c := range candidates {
		if len(selected) >= m {
			break
		}
		cVec := g.vectors[c.id]
		if cVec == nil {
			continue
		}
		good := true
		for _, sVec := range selectedVecs {
			if g.metric.Compute(cVec, sVec) < c.dist {
				good = false
				break
			}
		}
		if good {
			selected = append(selected, c.id)
			selectedVecs = append(selectedVecs, cVec)
		}
	}

	if len(selected) < m {
		selectedSet := make(map[int64]bool, len(selected))
		for _, id := range selected {
			selectedSet[id] = true
		}
		for _, c := range candidates {
			if len(selected) >= m {
				break
			}
			if !selectedSet[c.id] {
				selected = append(selected, c.id)
				selectedSet[c.id] = true
			}
		}
	}

	return selected
}

func (g *Graph) pruneNeighbors(nodeID int64, neighbors []int64, maxConn int) []int64 {
	nodeVec := g.vectors[nodeID]
	if nodeVec == nil {
		if len(neighbors) > maxConn {
			return neighbors[:maxConn]
		}
		return neighbors
	}
	scored := make([]candidate, len(neighbors))
	for i, nid := range neighbors {
		scored[i] = candidate{id: nid, dist: g.metric.Compute(nodeVec, g.vectors[nid])}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].dist < scored[j].dist })
	if len(scored) > maxConn {
		scored = scored[:maxConn]
	}
	result := make([]int64, len(scored))
	for i, s := range scored {
		result[i] = s.id
	}
	return result
}
