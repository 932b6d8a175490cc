package nsw

import (
	"bufio"
	"encoding/binary"
	"io"
	"math/rand"

	"github.com/kasuganosora/hybridpg/pkg/distance"
	"github.com/kasuganosora/hybridpg/pkg/errs"
)

// Save writes the graph's vectors and layered adjacency lists in a
// self-describing binary form, mirroring the teacher's page_codec.go
// framing style (fixed-width header fields, then length-prefixed
// sections).
func (g *Graph) Save(w io.Writer) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	bw := bufio.NewWriter(w)
	hdr := []int64{
		int64(g.dim), int64(g.params.M), int64(g.params.EFConstruction),
		int64(g.params.EFSearch), int64(g.params.MaxLevel),
		int64(g.entryPoint), int64(g.entryLevel), boolToInt64(g.hasEntry),
		int64(len(g.vectors)), int64(len(g.layers)),
	}
	for _, v := range hdr {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return &errs.IoError{Cause: err}
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, g.params.mlFactor()); err != nil {
		return &errs.IoError{Cause: err}
	}
	if err := writeMetricName(bw, g.metric.Name()); err != nil {
		return &errs.IoError{Cause: err}
	}

	for id, vec := range g.vectors {
		if err := binary.Write(bw, binary.LittleEndian, id); err != nil {
			return &errs.IoError{Cause: err}
		}
		for _, f := range vec {
			if err := binary.Write(bw, binary.LittleEndian, f); err != nil {
				return &errs.IoError{Cause: err}
			}
		}
		level := int64(g.nodeLevel[id])
		if err := binary.Write(bw, binary.LittleEndian, level); err != nil {
			return &errs.IoError{Cause: err}
		}
	}

	for _, layer := range g.layers {
		if err := binary.Write(bw, binary.LittleEndian, int64(len(layer))); err != nil {
			return &errs.IoError{Cause: err}
		}
		for id, neighbors := range layer {
			if err := binary.Write(bw, binary.LittleEndian, id); err != nil {
				return &errs.IoError{Cause: err}
			}
			if err := binary.Write(bw, binary.LittleEndian, int64(len(neighbors))); err != nil {
				return &errs.IoError{Cause: err}
			}
			for _, n := range neighbors {
				if err := binary.Write(bw, binary.LittleEndian, n); err != nil {
					return &errs.IoError{Cause: err}
				}
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return &errs.IoError{Cause: err}
	}
	return nil
}

// Load reconstructs a graph previously written by Save. seed reseeds the
// RNG used for any subsequent inserts; it does not affect the loaded graph
// structure.
func Load(r io.Reader, seed int64) (*Graph, error) {
	br := bufio.NewReader(r)

	var dim, m, efc, efs, maxLevel, entryPoint, entryLevel, hasEntry, nVectors, nLayers int64
	fields := []*int64{&dim, &m, &efc, &efs, &maxLevel, &entryPoint, &entryLevel, &hasEntry, &nVectors, &nLayers}
	for _, f := range fields {
		if err := binary.Read(br, binary.LittleEndian, f); err != nil {
			return nil, &errs.SerializationError{Cause: err}
		}
	}
	var ml float64
	if err := binary.Read(br, binary.LittleEndian, &ml); err != nil {
		return nil, &errs.SerializationError{Cause: err}
	}
	metricName, err := readMetricName(br)
	if err != nil {
		return nil, &errs.SerializationError{Cause: err}
	}
	metric, err := distance.Get(metricName)
	if err != nil {
		return nil, &errs.SerializationError{Cause: err}
	}

	g := &Graph{
		dim: int(dim),
		params: Params{
			M: int(m), EFConstruction: int(efc), EFSearch: int(efs),
			MaxLevel: int(maxLevel), ML: int(ml),
		},
		metric:     metric,
		rng:        rand.New(rand.NewSource(seed)),
		vectors:    make(map[int64][]float32, nVectors),
		nodeLevel:  make(map[int64]int, nVectors),
		entryPoint: entryPoint,
		entryLevel: int(entryLevel),
		hasEntry:   hasEntry != 0,
	}

	for i := int64(0); i < nVectors; i++ {
		var id int64
		if err := binary.Read(br, binary.LittleEndian, &id); err != nil {
			return nil, &errs.SerializationError{Cause: err}
		}
		vec := make([]float32, dim)
		for j := range vec {
			if err := binary.Read(br, binary.LittleEndian, &vec[j]); err != nil {
				return nil, &errs.SerializationError{Cause: err}
			}
		}
		var level int64
		if err := binary.Read(br, binary.LittleEndian, &level); err != nil {
			return nil, &errs.SerializationError{Cause: err}
		}
		g.vectors[id] = vec
		g.nodeLevel[id] = int(level)
	}

	g.layers = make([]map[int64][]int64, nLayers)
	for l := int64(0); l < nLayers; l++ {
		var nNodes int64
		if err := binary.Read(br, binary.LittleEndian, &nNodes); err != nil {
			return nil, &errs.SerializationError{Cause: err}
		}
		layer := make(map[int64][]int64, nNodes)
		for i := int64(0); i < nNodes; i++ {
			var id, nNeighbors int64
			if err := binary.Read(br, binary.LittleEndian, &id); err != nil {
				return nil, &errs.SerializationError{Cause: err}
			}
			if err := binary.Read(br, binary.LittleEndian, &nNeighbors); err != nil {
				return nil, &errs.SerializationError{Cause: err}
			}
			neighbors := make([]int64, nNeighbors)
			for j := range neighbors {
				if err := binary.Read(br, binary.LittleEndian, &neighbors[j]); err != nil {
					return nil, &errs.SerializationError{Cause: err}
				}
			}
			layer[id] = neighbors
		}
		g.layers[l] = layer
	}

	return g, nil
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func writeMetricName(w io.Writer, m distance.Metric) error {
	b := []byte(m)
	if err := binary.Write(w, binary.LittleEndian, int64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readMetricName(r io.Reader) (distance.Metric, error) {
	var n int64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return distance.Metric(b), nil
}
