package vectorstore

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/kasuganosora/hybridpg/pkg/distance"
	"github.com/kasuganosora/hybridpg/pkg/errs"
	"github.com/kasuganosora/hybridpg/pkg/nsw"
)

// Save writes the store as two sibling files: pathPrefix+".graph" (the NSW
// graph itself, via nsw.Graph.Save) and pathPrefix+".data" (the tombstone
// set), so a tombstoned id stays deleted across a save/load round trip
// instead of being silently resurrected.
func (s *Store) Save(pathPrefix string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	graphFile, err := os.Create(pathPrefix + ".graph")
	if err != nil {
		return &errs.IoError{Cause: err}
	}
	defer graphFile.Close()
	gw := bufio.NewWriter(graphFile)
	if err := s.graph.Save(gw); err != nil {
		return err
	}
	if err := gw.Flush(); err != nil {
		return &errs.IoError{Cause: err}
	}

	dataFile, err := os.Create(pathPrefix + ".data")
	if err != nil {
		return &errs.IoError{Cause: err}
	}
	defer dataFile.Close()
	dw := bufio.NewWriter(dataFile)
	if err := writeMetricName(dw, s.metric); err != nil {
		return err
	}
	if err := writeTombstones(dw, s.tombstone); err != nil {
		return err
	}
	if err := dw.Flush(); err != nil {
		return &errs.IoError{Cause: err}
	}
	return nil
}

// Load opens a store previously written by Save.
func Load(pathPrefix string, seed int64) (*Store, error) {
	graphFile, err := os.Open(pathPrefix + ".graph")
	if err != nil {
		return nil, &errs.IoError{Cause: err}
	}
	defer graphFile.Close()
	g, err := nsw.Load(bufio.NewReader(graphFile), seed)
	if err != nil {
		return nil, err
	}

	dataFile, err := os.Open(pathPrefix + ".data")
	if err != nil {
		return nil, &errs.IoError{Cause: err}
	}
	defer dataFile.Close()
	dr := bufio.NewReader(dataFile)
	metric, err := readMetricName(dr)
	if err != nil {
		return nil, err
	}
	tombstone, err := readTombstones(dr)
	if err != nil {
		return nil, err
	}

	return &Store{graph: g, metric: metric, tombstone: tombstone}, nil
}

func writeMetricName(w io.Writer, m distance.Metric) error {
	b := []byte(m)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return &errs.IoError{Cause: err}
	}
	if _, err := w.Write(b); err != nil {
		return &errs.IoError{Cause: err}
	}
	return nil
}

func readMetricName(r io.Reader) (distance.Metric, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", &errs.IoError{Cause: err}
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", &errs.IoError{Cause: err}
	}
	return distance.Metric(buf), nil
}

func writeTombstones(w io.Writer, tombstone map[int64]bool) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(tombstone))); err != nil {
		return &errs.IoError{Cause: err}
	}
	for id := range tombstone {
		if err := binary.Write(w, binary.LittleEndian, id); err != nil {
			return &errs.IoError{Cause: err}
		}
	}
	return nil
}

func readTombstones(r io.Reader) (map[int64]bool, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, &errs.IoError{Cause: err}
	}
	out := make(map[int64]bool, n)
	for i := uint32(0); i < n; i++ {
		var id int64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, &errs.IoError{Cause: err}
		}
		out[id] = true
	}
	return out, nil
}
