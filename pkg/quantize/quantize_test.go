package quantize

import (
	"math/rand"
	"testing"

	"github.com/kasuganosora/hybridpg/pkg/distance"
	"github.com/stretchr/testify/require"
)

func sampleVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for d := range v {
			v[d] = rng.Float32()*2 - 1
		}
		out[i] = v
	}
	return out
}

func TestEncodeIsDeterministic(t *testing.T) {
	sample := sampleVectors(64, 16, 1)
	q, err := Fit(sample, 42)
	require.NoError(t, err)

	sig1, err := q.Encode(sample[0])
	require.NoError(t, err)
	sig2, err := q.Encode(sample[0])
	require.NoError(t, err)
	require.Equal(t, sig1, sig2)
}

func TestEncodeRejectsDimensionMismatch(t *testing.T) {
	sample := sampleVectors(10, 8, 1)
	q, err := Fit(sample, 1)
	require.NoError(t, err)
	_, err = q.Encode([]float32{1, 2, 3})
	require.Error(t, err)
}

func TestIdenticalVectorsHaveZeroHammingDistance(t *testing.T) {
	sample := sampleVectors(64, 32, 3)
	q, err := Fit(sample, 3)
	require.NoError(t, err)

	sig, err := q.Encode(sample[5])
	require.NoError(t, err)
	d, err := q.Hamming(sig, sig)
	require.NoError(t, err)
	require.Equal(t, uint32(0), d)
}

func TestTwoPhaseSearchNarrowsBeforeRerank(t *testing.T) {
	dim := 8
	sample := sampleVectors(200, dim, 5)
	q, err := Fit(sample, 5)
	require.NoError(t, err)

	vectors := make(map[int64][]float32, len(sample))
	candidates := make([]Candidate, len(sample))
	for i, v := range sample {
		id := int64(i)
		vectors[id] = v
		sig, err := q.Encode(v)
		require.NoError(t, err)
		candidates[i] = Candidate{ID: id, Signature: sig}
	}

	query := sample[0]
	querySig, err := q.Encode(query)
	require.NoError(t, err)

	l2, err := distance.Get(distance.L2)
	require.NoError(t, err)

	var rerankedCount int
	rerank := func(ids []int64) ([]Result, error) {
		rerankedCount = len(ids)
		out := make([]Result, len(ids))
		for i, id := range ids {
			out[i] = Result{ID: id, Distance: l2.Compute(query, vectors[id])}
		}
		return out, nil
	}

	k := 5
	expansion := 4
	results, err := TwoPhaseSearch(q, querySig, candidates, k, expansion, rerank)
	require.NoError(t, err)
	require.Len(t, results, k)
	require.Equal(t, k*expansion, rerankedCount)

	// The query vector itself must come back as the closest (distance 0).
	require.Equal(t, int64(0), results[0].ID)
	require.Equal(t, float32(0), results[0].Distance)

	for i := 1; i < len(results); i++ {
		require.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
}

func TestTwoPhaseSearchOnEmptyCandidatesFails(t *testing.T) {
	sample := sampleVectors(10, 4, 1)
	q, err := Fit(sample, 1)
	require.NoError(t, err)
	sig, _ := q.Encode(sample[0])
	_, err = TwoPhaseSearch(q, sig, nil, 1, 2, func(ids []int64) ([]Result, error) { return nil, nil })
	require.Error(t, err)
}

func TestFitRejectsEmptySample(t *testing.T) {
	_, err := Fit(nil, 1)
	require.Error(t, err)
}
