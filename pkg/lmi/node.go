package lmi

import "sort"

// RecordLocator is an opaque pointer into the record store adapter (spec
// §4.1) — typically an encoded tuple version key. The LMI never interprets
// it, only stores and returns it.
type RecordLocator []byte

type slot struct {
	key      int64
	locator  RecordLocator
	occupied bool
}

// leafNode holds a gapped, sorted-by-key array of up to cap(slots) entries
// plus a linear model mapping key -> physical slot index. Gaps absorb
// inserts without a full shift in the common case.
type leafNode struct {
	slots    []slot
	count    int // occupied count
	model    linearModel
	maxError int // current observed max |predicted-actual| over occupied slots
	capacity int
	next     *leafNode // links leaves in ascending key order for range scans
}

func newLeaf(capacity int) *leafNode {
	return &leafNode{slots: make([]slot, capacity), capacity: capacity}
}

func (l *leafNode) isLeaf() bool { return true }

// occupiedSorted returns the occupied slots in key order with their physical
// indices, used for retraining and splitting.
func (l *leafNode) occupiedSorted() []int {
	idx := make([]int, 0, l.count)
	for i, s := range l.slots {
		if s.occupied {
			idx = append(idx, i)
		}
	}
	// slots are already maintained in ascending-key physical order, so no
	// sort is needed here, but guard against any caller-introduced drift.
	sort.Slice(idx, func(a, b int) bool { return l.slots[idx[a]].key < l.slots[idx[b]].key })
	return idx
}

func (l *leafNode) retrain() {
	idx := l.occupiedSorted()
	if len(idx) == 0 {
		l.model = linearModel{degenerate: true}
		l.maxError = 0
		return
	}
	xs := make([]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, p := range idx {
		xs[i] = float64(l.slots[p].key)
		ys[i] = float64(p)
	}
	l.model = fitLinearModel(xs, ys)
	l.recomputeMaxError(idx)
}

func (l *leafNode) recomputeMaxError(idx []int) {
	maxE := 0
	for _, p := range idx {
		pred := l.predictSlot(l.slots[p].key)
		e := pred - p
		if e < 0 {
			e = -e
		}
		if e > maxE {
			maxE = e
		}
	}
	l.maxError = maxE
}

// predictSlot returns the model's clamped, rounded physical slot guess.
func (l *leafNode) predictSlot(key int64) int {
	if l.model.degenerate {
		return l.capacity / 2
	}
	p := int(l.model.predict(float64(key)) + 0.5)
	if p < 0 {
		p = 0
	}
	if p >= l.capacity {
		p = l.capacity - 1
	}
	return p
}

func (l *leafNode) density() float64 {
	return float64(l.count) / float64(l.capacity)
}

// innerNode routes a key to one of up to Fanout children using a linear
// model over (split key, child index) pairs, refined by binary search over
// the exact split keys (spec §4.3: model gives a starting guess, binary
// search over the small split-key array corrects it).
type innerNode struct {
	// splitKeys[i] is the smallest key routed to children[i+1]; i.e.
	// children[0] covers (-inf, splitKeys[0]), children[i] covers
	// [splitKeys[i-1], splitKeys[i]) for 0<i<len(children)-1, and the last
	// child covers [splitKeys[last], +inf).
	splitKeys []int64
	children  []node
	model     linearModel
	fanout    int
}

func newInner(fanout int) *innerNode {
	return &innerNode{fanout: fanout}
}

func (n *innerNode) isLeaf() bool { return false }

type node interface {
	isLeaf() bool
}

// childFor returns the index into n.children that key routes to.
func (n *innerNode) childFor(key int64) int {
	guess := 0
	if !n.model.degenerate && len(n.children) > 0 {
		guess = int(n.model.predict(float64(key)) + 0.5)
		if guess < 0 {
			guess = 0
		}
		if guess >= len(n.children) {
			guess = len(n.children) - 1
		}
	}
	// Refine via binary search over splitKeys: find the number of split
	// keys <= key, which is the exact child index.
	idx := sort.Search(len(n.splitKeys), func(i int) bool { return n.splitKeys[i] > key })
	_ = guess // the model guess only matters for cost accounting in a real
	// page-oriented store; correctness always comes from the binary search.
	return idx
}

// retrain refits the routing model over (splitKeys[i], i+1) pairs.
func (n *innerNode) retrain() {
	if len(n.splitKeys) == 0 {
		n.model = linearModel{degenerate: true}
		return
	}
	xs := make([]float64, len(n.splitKeys))
	ys := make([]float64, len(n.splitKeys))
	for i, k := range n.splitKeys {
		xs[i] = float64(k)
		ys[i] = float64(i + 1)
	}
	n.model = fitLinearModel(xs, ys)
}
