// Package distance implements the numerically stable scalar distance kernels
// shared by the NSW graph, the quantizer, and the hybrid planner's pure- and
// predicate+similarity query paths.
package distance

import (
	"fmt"
	"math"
	"math/bits"
	"sync"

	"github.com/kasuganosora/hybridpg/pkg/errs"
)

// Metric names the closed set of distance kernels the core supports. These
// map 1:1 onto the SQL operators the planner recognizes (<->, <#>, <=>).
type Metric string

const (
	L2     Metric = "l2"
	IP     Metric = "inner_product"
	Cosine Metric = "cosine"
	Hamming Metric = "hamming"
)

// Func computes a distance between two equal-length vectors and exposes
// whether ascending order matches "closer" for sorting purposes.
type Func interface {
	Name() Metric
	// Compute returns the distance. Inputs must be equal length and finite;
	// callers are responsible for validating that upstream (see Validate).
	Compute(a, b []float32) float32
	// AscendingIsCloser reports whether a smaller value means "more similar".
	// True for every built-in kernel, inner product included: a raw dot
	// product ranks descending (larger is more similar), so the inner
	// product kernel below returns it negated to make ascending order hold.
	AscendingIsCloser() bool
}

var registry = struct {
	mu    sync.RWMutex
	funcs map[Metric]Func
}{funcs: make(map[Metric]Func)}

// Register adds a distance kernel to the registry. Intended for the built-in
// kernels registered in init(); exported so callers can plug in a variant
// kernel under a new name without forking this package.
func Register(fn Func) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.funcs[fn.Name()] = fn
}

// Get resolves a kernel by name.
func Get(name Metric) (Func, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	fn, ok := registry.funcs[name]
	if !ok {
		return nil, &errs.InvalidParams{Reason: fmt.Sprintf("unknown distance metric: %s", name)}
	}
	return fn, nil
}

// Validate checks that a and b have equal, nonzero length and that every
// element is finite. Kernels assume their inputs already passed this check;
// the planner and vector store call it once at the ingress boundary (insert,
// query) per spec §4.4's failure semantics.
func Validate(a, b []float32) error {
	if len(a) != len(b) {
		return &errs.DimensionMismatch{Expected: len(a), Actual: len(b)}
	}
	for _, v := range a {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return &errs.InvalidVector{}
		}
	}
	for _, v := range b {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return &errs.InvalidVector{}
		}
	}
	return nil
}

// ValidateOne checks a single vector for finiteness, used when validating a
// query or an inserted vector before it is compared to anything.
func ValidateOne(v []float32) error {
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return &errs.InvalidVector{}
		}
	}
	return nil
}

// ==================== L2 ====================

type l2Func struct{}

func (l2Func) Name() Metric              { return L2 }
func (l2Func) AscendingIsCloser() bool   { return true }

// Compute returns sum((a_i-b_i)^2) without taking the square root, per
// spec §4.4 — monotonicity for ranking purposes is preserved either way and
// skipping the sqrt avoids an extra transcendental call per comparison.
func (l2Func) Compute(a, b []float32) float32 {
	n := len(a)
	var sum float32
	i := 0
	for ; i <= n-4; i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		sum += d0*d0 + d1*d1 + d2*d2 + d3*d3
	}
	for ; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// ==================== Inner product ====================

type ipFunc struct{}

func (ipFunc) Name() Metric            { return IP }
func (ipFunc) AscendingIsCloser() bool { return true }

// Compute returns the negated inner product, so that ascending sort order
// corresponds to descending raw inner product — matching the <#> operator's
// documented bit-semantics in spec §6.
func (ipFunc) Compute(a, b []float32) float32 {
	n := len(a)
	var dot float32
	i := 0
	for ; i <= n-4; i += 4 {
		dot += a[i]*b[i] + a[i+1]*b[i+1] + a[i+2]*b[i+2] + a[i+3]*b[i+3]
	}
	for ; i < n; i++ {
		dot += a[i] * b[i]
	}
	return -dot
}

// ==================== Cosine ====================

type cosineFunc struct{}

func (cosineFunc) Name() Metric            { return Cosine }
func (cosineFunc) AscendingIsCloser() bool { return true }

func (cosineFunc) Compute(a, b []float32) float32 {
	n := len(a)
	var dot, normA, normB float32
	i := 0
	for ; i <= n-4; i += 4 {
		a0, a1, a2, a3 := a[i], a[i+1], a[i+2], a[i+3]
		b0, b1, b2, b3 := b[i], b[i+1], b[i+2], b[i+3]
		dot += a0*b0 + a1*b1 + a2*b2 + a3*b3
		normA += a0*a0 + a1*a1 + a2*a2 + a3*a3
		normB += b0*b0 + b1*b1 + b2*b2 + b3*b3
	}
	for ; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1.0 // farthest: undefined direction treated as maximally dissimilar
	}
	return 1.0 - dot/float32(math.Sqrt(float64(normA)*float64(normB)))
}

// ==================== Hamming ====================

type hammingFunc struct{}

func (hammingFunc) Name() Metric            { return Hamming }
func (hammingFunc) AscendingIsCloser() bool { return true }

// Compute treats a and b as packed-word signatures reinterpreted as float32
// bit patterns is not meaningful; callers needing Hamming distance over
// packed uint64 words should use HammingWords instead. Compute exists only
// to satisfy the Func interface uniformly; for float32 vectors it quantizes
// each element's sign bit on the fly, which is rarely what a caller wants
// for hamming distance over a quantized store (see pkg/quantize).
func (hammingFunc) Compute(a, b []float32) float32 {
	var d uint32
	for i := range a {
		if (a[i] >= 0) != (b[i] >= 0) {
			d++
		}
	}
	return float32(d)
}

// HammingWords computes the popcount of the XOR of two equal-length packed
// bit-signatures. This is the kernel pkg/quantize actually uses for its
// first-pass candidate filtering (spec §4.6).
func HammingWords(a, b []uint64) (uint32, error) {
	if len(a) != len(b) {
		return 0, &errs.DimensionMismatch{Expected: len(a), Actual: len(b)}
	}
	var d uint32
	for i := range a {
		d += uint32(bits.OnesCount64(a[i] ^ b[i]))
	}
	return d, nil
}

func init() {
	Register(l2Func{})
	Register(ipFunc{})
	Register(cosineFunc{})
	Register(hammingFunc{})
}
