package quantize

import (
	"sort"

	"github.com/kasuganosora/hybridpg/pkg/distance"
	"github.com/kasuganosora/hybridpg/pkg/errs"
)

// Candidate is a signature-indexed vector available for prefiltering.
type Candidate struct {
	ID        int64
	Signature Signature
}

// Result is a reranked hit, ascending by exact distance.
type Result struct {
	ID       int64
	Distance float32
}

// TwoPhaseSearch implements spec §4.6's prefilter-then-rerank: it first
// ranks every candidate by Hamming distance in the quantized space, keeps
// the top k*expansionFactor, then calls rerank to score that narrowed set
// with the real metric and returns the best k. The quantized ranking never
// decides the final order — it only narrows which vectors rerank touches.
func TwoPhaseSearch(
	q *Quantizer,
	querySig Signature,
	candidates []Candidate,
	k int,
	expansionFactor int,
	rerank func(ids []int64) ([]Result, error),
) ([]Result, error) {
	if k <= 0 {
		return nil, &errs.InvalidSearchParams{K: k}
	}
	if expansionFactor < 1 {
		expansionFactor = 1
	}
	if len(candidates) == 0 {
		return nil, &errs.EmptyIndex{}
	}

	type scored struct {
		id   int64
		dist uint32
	}
	prelim := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		d, err := distance.HammingWords(querySig, c.Signature)
		if err != nil {
			return nil, err
		}
		prelim = append(prelim, scored{id: c.ID, dist: d})
	}
	sort.Slice(prelim, func(i, j int) bool { return prelim[i].dist < prelim[j].dist })

	n := k * expansionFactor
	if n > len(prelim) {
		n = len(prelim)
	}
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		ids[i] = prelim[i].id
	}

	reranked, err := rerank(ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(reranked, func(i, j int) bool { return reranked[i].Distance < reranked[j].Distance })
	if len(reranked) > k {
		reranked = reranked[:k]
	}
	return reranked, nil
}
