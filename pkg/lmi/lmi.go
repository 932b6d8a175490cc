// Package lmi implements the Learned Multi-level Index: a fixed-fanout tree
// of inner nodes routing by a linear model refined with binary search over
// an explicit split-key array, terminating in leaves that hold a gapped,
// sorted array of (key, locator) slots predicted by a per-leaf linear model.
//
// There is no teacher analogue for a learned index; the node/slot shapes
// here are new, grounded loosely on the generic Index interface the teacher
// exposes for its in-memory B-tree/hash indexes, with the model fit itself
// delegated to gonum's OLS implementation rather than hand-rolled.
package lmi

import (
	"sort"

	"github.com/kasuganosora/hybridpg/pkg/errs"
)

// LMI is a single scalar-key index instance over one column. It is not
// safe for concurrent use without external synchronization; pkg/engine
// applies its mutations under the table's structMu.
type LMI struct {
	cfg  Config
	root node
	// firstLeaf anchors the leaf linked list for ordered range scans.
	firstLeaf *leafNode
}

// New creates an empty LMI with the given configuration.
func New(cfg Config) (*LMI, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	leaf := newLeaf(cfg.LeafCapacity)
	return &LMI{cfg: cfg, root: leaf, firstLeaf: leaf}, nil
}

type pathEntry struct {
	in  *innerNode
	idx int
}

// descend walks from the root to the leaf that would hold key, recording
// the path of (innerNode, childIndex) pairs taken for split propagation.
func (t *LMI) descend(key int64) (*leafNode, []pathEntry) {
	var path []pathEntry
	n := t.root
	for {
		in, ok := n.(*innerNode)
		if !ok {
			return n.(*leafNode), path
		}
		idx := in.childFor(key)
		path = append(path, pathEntry{in: in, idx: idx})
		n = in.children[idx]
	}
}

// PointLookup returns the locator stored for key, if present.
func (t *LMI) PointLookup(key int64) (RecordLocator, bool, error) {
	leaf, _ := t.descend(key)
	idx, found := leaf.find(key)
	if !found {
		return nil, false, nil
	}
	return leaf.slots[idx].locator, true, nil
}

// RangeLookup returns all (key, locator) pairs with lo <= key <= hi, in
// ascending key order, by finding the starting leaf and walking the leaf
// chain.
func (t *LMI) RangeLookup(lo, hi int64) ([]KV, error) {
	if hi < lo {
		return nil, &errs.InvalidParams{Reason: "range lookup requires lo <= hi"}
	}
	leaf, _ := t.descend(lo)
	var out []KV
	for leaf != nil {
		for _, p := range leaf.occupiedSorted() {
			s := leaf.slots[p]
			if s.key < lo {
				continue
			}
			if s.key > hi {
				return out, nil
			}
			out = append(out, KV{Key: s.key, Locator: s.locator})
		}
		leaf = leaf.next
	}
	return out, nil
}

// KV is a single (key, locator) pair returned from a range scan.
type KV struct {
	Key     int64
	Locator RecordLocator
}

// Insert adds or overwrites the locator for key.
func (t *LMI) Insert(key int64, locator RecordLocator) error {
	leaf, path := t.descend(key)
	if idx, found := leaf.find(key); found {
		leaf.slots[idx].locator = locator
		return nil
	}
	if err := t.insertIntoLeaf(leaf, key, locator); err != nil {
		return err
	}
	if leaf.count > 0 && leaf.density() > t.cfg.LMax {
		t.splitLeaf(leaf, path)
	}
	return nil
}

// find locates key within a leaf, returning its physical slot index.
func (l *leafNode) find(key int64) (int, bool) {
	if l.count == 0 {
		return 0, false
	}
	if l.model.degenerate {
		occ := l.occupiedSorted()
		i := sort.Search(len(occ), func(i int) bool { return l.slots[occ[i]].key >= key })
		if i < len(occ) && l.slots[occ[i]].key == key {
			return occ[i], true
		}
		return 0, false
	}
	p := l.predictSlot(key)
	radius := l.maxError + 1
	lo, hi := p-radius, p+radius
	if lo < 0 {
		lo = 0
	}
	if hi >= l.capacity {
		hi = l.capacity - 1
	}
	for i := lo; i <= hi; i++ {
		if l.slots[i].occupied && l.slots[i].key == key {
			return i, true
		}
	}
	// Fall back to a full scan: the error bound should make this
	// unreachable in practice, but a stale bound after concurrent splits
	// must never produce a false negative.
	for i := 0; i < l.capacity; i++ {
		if l.slots[i].occupied && l.slots[i].key == key {
			return i, true
		}
	}
	return 0, false
}

var errLeafFull = &errs.InternalError{Reason: "leaf insert found no free slot after split"}

// insertIntoLeaf places key/locator into leaf, maintaining the sorted-gaps
// invariant, retraining the leaf model whenever the observed max error
// exceeds the configured retrain threshold.
func (t *LMI) insertIntoLeaf(l *leafNode, key int64, locator RecordLocator) error {
	if l.count >= l.capacity {
		return errLeafFull
	}
	occ := l.occupiedSorted()
	n := len(occ)
	pos := sort.Search(n, func(i int) bool { return l.slots[occ[i]].key > key })

	leftBound := -1
	if pos > 0 {
		leftBound = occ[pos-1]
	}
	rightBound := l.capacity
	if pos < n {
		rightBound = occ[pos]
	}

	// Window already has room: place directly, no shift.
	for i := leftBound + 1; i < rightBound; i++ {
		if !l.slots[i].occupied {
			l.place(i, key, locator)
			t.maybeRetrain(l)
			return nil
		}
	}

	// Window is full: shift the nearer side to open a slot at the boundary.
	eR := -1
	for i := rightBound; i < l.capacity; i++ {
		if !l.slots[i].occupied {
			eR = i
			break
		}
	}
	eL := -1
	for i := leftBound; i >= 0; i-- {
		if !l.slots[i].occupied {
			eL = i
			break
		}
	}
	switch {
	case eR != -1 && (eL == -1 || (eR-rightBound) <= (leftBound-eL)):
		for i := eR; i > rightBound; i-- {
			l.slots[i] = l.slots[i-1]
		}
		l.place(rightBound, key, locator)
	case eL != -1:
		for i := eL; i < leftBound; i++ {
			l.slots[i] = l.slots[i+1]
		}
		l.place(leftBound, key, locator)
	default:
		return errLeafFull
	}
	t.maybeRetrain(l)
	return nil
}

func (l *leafNode) place(i int, key int64, locator RecordLocator) {
	l.slots[i] = slot{key: key, locator: locator, occupied: true}
	l.count++
}

func (t *LMI) maybeRetrain(l *leafNode) {
	occ := l.occupiedSorted()
	l.recomputeMaxError(occ)
	if l.maxError > t.cfg.RetrainThreshold {
		l.retrain()
	}
}

// splitLeaf divides an overfull leaf at its median occupied key into two
// fresh leaves, splicing them into the leaf chain and propagating the new
// child up the path, growing the tree if necessary.
func (t *LMI) splitLeaf(l *leafNode, path []pathEntry) {
	occ := l.occupiedSorted()
	mid := len(occ) / 2
	left := newLeaf(l.capacity)
	right := newLeaf(l.capacity)
	for i, p := range occ {
		s := l.slots[p]
		dst := left
		if i >= mid {
			dst = right
		}
		// Keys arrive in ascending order, so insertIntoLeaf places each in
		// the first free slot after its predecessor, packing the half from
		// slot 0; both halves are well under capacity, so no insert here
		// fails or splits.
		t.insertIntoLeaf(dst, s.key, s.locator)
	}
	left.retrain()
	right.retrain()
	right.next = l.next
	left.next = right
	splitKey := right.slots[right.occupiedSorted()[0]].key

	if t.firstLeaf == l {
		t.firstLeaf = left
	} else {
		// Relink the predecessor leaf, found by walking from firstLeaf.
		for p := t.firstLeaf; p != nil; p = p.next {
			if p.next == l {
				p.next = left
				break
			}
		}
	}

	t.spliceChild(path, l, left, right, splitKey)
}

// spliceChild replaces the old single child (a leaf or inner node being
// split) with two new children at the appropriate parent, growing a new
// root if the split happened at the top, and recursively splitting the
// parent if it overflows its fanout.
func (t *LMI) spliceChild(path []pathEntry, oldChild, left, right node, splitKey int64) {
	if len(path) == 0 {
		// Splitting the root: create a new root inner node.
		root := newInner(t.cfg.Fanout)
		root.children = []node{left, right}
		root.splitKeys = []int64{splitKey}
		root.retrain()
		t.root = root
		return
	}
	parentEntry := path[len(path)-1]
	in := parentEntry.in
	idx := parentEntry.idx

	newChildren := make([]node, 0, len(in.children)+1)
	newChildren = append(newChildren, in.children[:idx]...)
	newChildren = append(newChildren, left, right)
	newChildren = append(newChildren, in.children[idx+1:]...)

	newSplitKeys := make([]int64, 0, len(in.splitKeys)+1)
	newSplitKeys = append(newSplitKeys, in.splitKeys[:idx]...)
	newSplitKeys = append(newSplitKeys, splitKey)
	newSplitKeys = append(newSplitKeys, in.splitKeys[idx:]...)

	in.children = newChildren
	in.splitKeys = newSplitKeys
	in.retrain()

	if len(in.children) <= in.fanout {
		return
	}
	t.splitInner(in, path[:len(path)-1])
}

// splitInner divides an overfull inner node at its median child and
// propagates the new pair one level further up, mirroring splitLeaf.
func (t *LMI) splitInner(in *innerNode, parentPath []pathEntry) {
	mid := len(in.children) / 2
	left := newInner(in.fanout)
	right := newInner(in.fanout)
	left.children = append([]node{}, in.children[:mid]...)
	right.children = append([]node{}, in.children[mid:]...)
	left.splitKeys = append([]int64{}, in.splitKeys[:mid-1]...)
	right.splitKeys = append([]int64{}, in.splitKeys[mid:]...)
	splitKey := in.splitKeys[mid-1]
	left.retrain()
	right.retrain()
	t.spliceChild(parentPath, in, left, right, splitKey)
}
