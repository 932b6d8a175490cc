// Package vectorstore wraps pkg/nsw's in-memory proximity graph with the
// bookkeeping a long-lived index needs that the graph itself deliberately
// does not do: soft-delete tombstones (NSW has no in-place delete) and
// two-file persistence, so a store can be built once and reopened without
// rebuilding from scratch.
//
// Grounded on the teacher's pkg/resource/memory/vector_index.go VectorIndex
// interface (Build/Search/Insert/Delete/Stats/Close shape) and the binary
// framing conventions in pkg/resource/memory/page_codec.go, adapted from a
// single-file page format to a two-file (.graph + .data) layout.
package vectorstore

import (
	"context"
	"sort"
	"sync"

	"github.com/kasuganosora/hybridpg/pkg/distance"
	"github.com/kasuganosora/hybridpg/pkg/errs"
	"github.com/kasuganosora/hybridpg/pkg/nsw"
	"github.com/kasuganosora/hybridpg/pkg/quantize"
)

// Store is a tombstone-aware, persistable wrapper around an nsw.Graph.
type Store struct {
	mu        sync.RWMutex
	graph     *nsw.Graph
	metric    distance.Metric
	tombstone map[int64]bool

	quantizer  *quantize.Quantizer
	signatures map[int64]quantize.Signature
}

// New creates an empty store over a fresh graph.
func New(dim int, metric distance.Metric, params nsw.Params, seed int64) (*Store, error) {
	fn, err := distance.Get(metric)
	if err != nil {
		return nil, err
	}
	g, err := nsw.New(dim, fn, params, seed)
	if err != nil {
		return nil, err
	}
	return &Store{graph: g, metric: metric, tombstone: make(map[int64]bool)}, nil
}

func (s *Store) Dimension() int { return s.graph.Dimension() }

// Len returns the number of live (non-tombstoned) vectors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Len() - len(s.tombstone)
}

// Insert adds a vector under id. Re-inserting a tombstoned id resurrects it.
func (s *Store) Insert(ctx context.Context, id int64, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.graph.Insert(ctx, id, vector); err != nil {
		return err
	}
	delete(s.tombstone, id)
	if s.quantizer != nil {
		if sig, err := s.quantizer.Encode(vector); err == nil {
			s.signatures[id] = sig
		}
	}
	return nil
}

// QuantizerReady reports whether EnableQuantization has been called.
func (s *Store) QuantizerReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quantizer != nil
}

// EnableQuantization fits a bit-signature quantizer (spec §4.6) over every
// live vector currently in the store and encodes each of them, turning on
// the prefilter-then-rerank path SearchQuantized uses. Later inserts are
// encoded as they arrive; the fit itself is never redone, matching the
// teacher's "train once, encode forever" product-quantization lifecycle.
func (s *Store) EnableQuantization(seed int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.graph.IDs()
	sample := make([][]float32, 0, len(ids))
	live := make([]int64, 0, len(ids))
	for _, id := range ids {
		if s.tombstone[id] {
			continue
		}
		if v, ok := s.graph.Vector(id); ok {
			sample = append(sample, v)
			live = append(live, id)
		}
	}
	if len(sample) == 0 {
		return &errs.EmptyIndex{}
	}
	q, err := quantize.Fit(sample, seed)
	if err != nil {
		return err
	}
	sigs := make(map[int64]quantize.Signature, len(live))
	for i, id := range live {
		sig, err := q.Encode(sample[i])
		if err != nil {
			return err
		}
		sigs[id] = sig
	}
	s.quantizer = q
	s.signatures = sigs
	return nil
}

// SearchQuantized runs spec §4.6's prefilter-then-rerank search: every live
// signature is ranked by Hamming distance, the top k*expansionFactor survive
// into an exact rerank against the real metric, and the best k come back in
// ascending distance order. Callers must check QuantizerReady first; this
// falls back to an ordinary Search when no quantizer has been fit.
func (s *Store) SearchQuantized(ctx context.Context, query []float32, k int, expansionFactor int) ([]nsw.Result, error) {
	s.mu.RLock()
	if s.quantizer == nil {
		s.mu.RUnlock()
		return s.Search(ctx, query, k, k*2)
	}
	querySig, err := s.quantizer.Encode(query)
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	candidates := make([]quantize.Candidate, 0, len(s.signatures))
	for id, sig := range s.signatures {
		if s.tombstone[id] {
			continue
		}
		candidates = append(candidates, quantize.Candidate{ID: id, Signature: sig})
	}
	metric := s.metric
	graph := s.graph
	s.mu.RUnlock()

	fn, err := distance.Get(metric)
	if err != nil {
		return nil, err
	}

	results, err := quantize.TwoPhaseSearch(s.quantizer, querySig, candidates, k, expansionFactor,
		func(ids []int64) ([]quantize.Result, error) {
			out := make([]quantize.Result, 0, len(ids))
			for _, id := range ids {
				v, ok := graph.Vector(id)
				if !ok {
					continue
				}
				out = append(out, quantize.Result{ID: id, Distance: fn.Compute(query, v)})
			}
			return out, nil
		})
	if err != nil {
		return nil, err
	}
	out := make([]nsw.Result, len(results))
	for i, r := range results {
		out[i] = nsw.Result{ID: r.ID, Distance: r.Distance}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

// Delete soft-deletes id: the graph keeps its edges (NSW has no in-place
// delete, spec §4.3), but Search excludes it via the tombstone set.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.graph.Vector(id); !ok {
		return &errs.VectorNotFound{ID: id}
	}
	s.tombstone[id] = true
	return nil
}

// Search runs an approximate nearest-neighbor search, excluding tombstoned
// vectors from both the beam search and any brute-force fallback.
func (s *Store) Search(ctx context.Context, query []float32, k int, ef int) ([]nsw.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Search(ctx, query, k, nsw.SearchOptions{
		EF:      ef,
		Exclude: func(id int64) bool { return s.tombstone[id] },
	})
}

// Vector returns id's stored vector, or false if it does not exist or has
// been tombstoned.
func (s *Store) Vector(id int64) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tombstone[id] {
		return nil, false
	}
	return s.graph.Vector(id)
}

// All returns every live (non-tombstoned) id/vector pair, for the
// brute-force fallback a pure-similarity query uses when the index holds
// fewer rows than spec §4.8's N_idx threshold (the graph's approximate
// search gives no accuracy benefit at that scale, so a linear scan is both
// simpler and exact).
func (s *Store) All() map[int64][]float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.graph.IDs()
	out := make(map[int64][]float32, len(ids))
	for _, id := range ids {
		if s.tombstone[id] {
			continue
		}
		if v, ok := s.graph.Vector(id); ok {
			out[id] = v
		}
	}
	return out
}

// Stats summarizes the store's current state for introspection, analogous
// to the teacher's VectorIndexStats.
type Stats struct {
	Metric         distance.Metric
	Dimension      int
	LiveCount      int
	TombstoneCount int
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Metric:         s.metric,
		Dimension:      s.graph.Dimension(),
		LiveCount:      s.graph.Len() - len(s.tombstone),
		TombstoneCount: len(s.tombstone),
	}
}

func (s *Store) Close() error { return nil }
