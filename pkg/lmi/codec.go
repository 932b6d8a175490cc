package lmi

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/kasuganosora/hybridpg/pkg/errs"
)

// Persisted node tags, analogous to the page-type byte the teacher's
// page_codec.go prefixes every serialized page with.
const (
	tagLeaf  byte = 1
	tagInner byte = 2
)

// Save writes the tree in a depth-first, self-describing binary form.
func (t *LMI) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if err := writeConfig(bw, t.cfg); err != nil {
		return &errs.IoError{Cause: err}
	}
	if err := writeNode(bw, t.root); err != nil {
		return &errs.IoError{Cause: err}
	}
	if err := bw.Flush(); err != nil {
		return &errs.IoError{Cause: err}
	}
	return nil
}

// Load reconstructs a tree previously written by Save, relinking the leaf
// chain as leaves are read in ascending-key (depth-first, left-to-right)
// order.
func Load(r io.Reader) (*LMI, error) {
	br := bufio.NewReader(r)
	cfg, err := readConfig(br)
	if err != nil {
		return nil, &errs.SerializationError{Cause: err}
	}
	t := &LMI{cfg: cfg}
	var prev *leafNode
	root, err := readNode(br, cfg, &prev, &t.firstLeaf)
	if err != nil {
		return nil, &errs.SerializationError{Cause: err}
	}
	t.root = root
	return t, nil
}

func writeConfig(w io.Writer, c Config) error {
	vals := []int64{
		int64(c.Fanout), int64(c.LeafCapacity), int64(c.RetrainThreshold),
	}
	for _, v := range vals {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	floats := []float64{c.LMin, c.LMax}
	for _, f := range floats {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

func readConfig(r io.Reader) (Config, error) {
	var c Config
	var fanout, leafCap, retrain int64
	for _, p := range []*int64{&fanout, &leafCap, &retrain} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return c, err
		}
	}
	var lmin, lmax float64
	for _, p := range []*float64{&lmin, &lmax} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return c, err
		}
	}
	c = Config{
		Fanout:           int(fanout),
		LeafCapacity:     int(leafCap),
		RetrainThreshold: int(retrain),
		LMin:             lmin,
		LMax:             lmax,
	}
	return c, nil
}

func writeNode(w *bufio.Writer, n node) error {
	switch v := n.(type) {
	case *leafNode:
		if err := w.WriteByte(tagLeaf); err != nil {
			return err
		}
		occ := v.occupiedSorted()
		if err := binary.Write(w, binary.LittleEndian, int64(len(occ))); err != nil {
			return err
		}
		for _, p := range occ {
			s := v.slots[p]
			if err := binary.Write(w, binary.LittleEndian, s.key); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, int64(len(s.locator))); err != nil {
				return err
			}
			if _, err := w.Write(s.locator); err != nil {
				return err
			}
		}
		return nil
	case *innerNode:
		if err := w.WriteByte(tagInner); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int64(len(v.splitKeys))); err != nil {
			return err
		}
		for _, k := range v.splitKeys {
			if err := binary.Write(w, binary.LittleEndian, k); err != nil {
				return err
			}
		}
		for _, c := range v.children {
			if err := writeNode(w, c); err != nil {
				return err
			}
		}
		return nil
	default:
		return &errs.InternalError{Reason: "unknown lmi node type"}
	}
}

func readNode(r *bufio.Reader, cfg Config, prev **leafNode, first **leafNode) (node, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagLeaf:
		var n int64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		leaf := newLeaf(cfg.LeafCapacity)
		for i := int64(0); i < n; i++ {
			var key int64
			if err := binary.Read(r, binary.LittleEndian, &key); err != nil {
				return nil, err
			}
			var locLen int64
			if err := binary.Read(r, binary.LittleEndian, &locLen); err != nil {
				return nil, err
			}
			loc := make(RecordLocator, locLen)
			if _, err := io.ReadFull(r, loc); err != nil {
				return nil, err
			}
			leaf.place(int(i), key, loc)
		}
		leaf.retrain()
		if *first == nil {
			*first = leaf
		}
		if *prev != nil {
			(*prev).next = leaf
		}
		*prev = leaf
		return leaf, nil
	case tagInner:
		var nk int64
		if err := binary.Read(r, binary.LittleEndian, &nk); err != nil {
			return nil, err
		}
		splitKeys := make([]int64, nk)
		for i := range splitKeys {
			if err := binary.Read(r, binary.LittleEndian, &splitKeys[i]); err != nil {
				return nil, err
			}
		}
		in := newInner(cfg.Fanout)
		in.splitKeys = splitKeys
		in.children = make([]node, nk+1)
		for i := range in.children {
			child, err := readNode(r, cfg, prev, first)
			if err != nil {
				return nil, err
			}
			in.children[i] = child
		}
		in.retrain()
		return in, nil
	default:
		return nil, &errs.SerializationError{Cause: errBadTag}
	}
}

var errBadTag = &errs.InternalError{Reason: "unrecognized lmi node tag byte"}
