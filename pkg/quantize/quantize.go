// Package quantize implements the 1-bit-per-dimension vector signature used
// to cheapen candidate filtering ahead of an exact rerank (spec §4.6). It is
// grounded on the teacher's hnsw_sq_index.go / ivf_sq8 bit-packing idiom —
// same "pack scaled/quantized components into words, compare with an
// integer kernel" shape — reworked from int8 scalar quantization to a
// single-bit signature with a randomized median-tiebreak threshold per
// dimension, matching spec §4.6 exactly rather than the teacher's 8-bit
// product-quantization scheme.
package quantize

import (
	"math/rand"
	"sort"

	"github.com/kasuganosora/hybridpg/pkg/distance"
	"github.com/kasuganosora/hybridpg/pkg/errs"
)

// Signature is a packed bit-per-dimension vector, 64 dimensions per word.
type Signature []uint64

// Quantizer holds the per-dimension threshold and tiebreak direction fit
// once over a representative sample of vectors, then reused to encode every
// inserted and query vector.
type Quantizer struct {
	dim        int
	threshold  []float32
	tieGoesOne []bool
}

// Fit computes the per-dimension median threshold from sample. Values that
// land exactly on the threshold are broken by a fixed coin flip per
// dimension (decided once at fit time, not per vector) so encoding stays
// deterministic after fitting, avoiding a systematic all-zero or all-one
// bias on perfectly balanced data.
func Fit(sample [][]float32, seed int64) (*Quantizer, error) {
	if len(sample) == 0 {
		return nil, &errs.InvalidParams{Reason: "quantizer fit requires at least one sample vector"}
	}
	dim := len(sample[0])
	for _, v := range sample {
		if len(v) != dim {
			return nil, &errs.DimensionMismatch{Expected: dim, Actual: len(v)}
		}
	}

	rng := rand.New(rand.NewSource(seed))
	threshold := make([]float32, dim)
	tie := make([]bool, dim)
	column := make([]float32, len(sample))
	for d := 0; d < dim; d++ {
		for i, v := range sample {
			column[i] = v[d]
		}
		sort.Slice(column, func(i, j int) bool { return column[i] < column[j] })
		threshold[d] = column[len(column)/2]
		tie[d] = rng.Float64() < 0.5
	}
	return &Quantizer{dim: dim, threshold: threshold, tieGoesOne: tie}, nil
}

// Dimension reports the configured vector width.
func (q *Quantizer) Dimension() int { return q.dim }

func (q *Quantizer) words() int { return (q.dim + 63) / 64 }

// Encode packs v into a bit signature: bit d is 1 when v[d] exceeds the
// per-dimension threshold (or, on an exact tie, when the dimension's fixed
// coin flip says so).
func (q *Quantizer) Encode(v []float32) (Signature, error) {
	if len(v) != q.dim {
		return nil, &errs.DimensionMismatch{Expected: q.dim, Actual: len(v)}
	}
	sig := make(Signature, q.words())
	for d, x := range v {
		var bit bool
		switch {
		case x > q.threshold[d]:
			bit = true
		case x < q.threshold[d]:
			bit = false
		default:
			bit = q.tieGoesOne[d]
		}
		if bit {
			sig[d/64] |= 1 << uint(d%64)
		}
	}
	return sig, nil
}

// Hamming returns the bit-signature distance between two signatures
// produced by this quantizer.
func (q *Quantizer) Hamming(a, b Signature) (uint32, error) {
	return distance.HammingWords(a, b)
}
