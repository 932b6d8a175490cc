package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	badgerStore, err := OpenBadgerStore(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { badgerStore.Close() })

	sqliteStore, err := OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"badger": badgerStore,
		"sqlite": sqliteStore,
	}
}

func TestPutGetAcrossBackends(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			b := s.NewBatch()
			b.Put(CFTuples, []byte("a"), []byte("1"))
			b.Put(CFCatalog, []byte("a"), []byte("other-cf"))
			require.NoError(t, b.Commit(context.Background()))

			v, ok, err := s.Get(CFTuples, []byte("a"))
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "1", string(v))

			v2, ok, err := s.Get(CFCatalog, []byte("a"))
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "other-cf", string(v2))

			_, ok, err = s.Get(CFTuples, []byte("missing"))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestDeleteAcrossBackends(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			b := s.NewBatch()
			b.Put(CFTuples, []byte("k"), []byte("v"))
			require.NoError(t, b.Commit(context.Background()))

			b2 := s.NewBatch()
			b2.Delete(CFTuples, []byte("k"))
			require.NoError(t, b2.Commit(context.Background()))

			_, ok, err := s.Get(CFTuples, []byte("k"))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestIteratorOrderedAndBounded(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			b := s.NewBatch()
			for _, k := range []string{"a", "b", "c", "d", "e"} {
				b.Put(CFTuples, []byte(k), []byte(k))
			}
			require.NoError(t, b.Commit(context.Background()))

			it, err := s.NewIterator(CFTuples, IterOptions{
				LowerBound: []byte("b"),
				UpperBound: []byte("e"),
			})
			require.NoError(t, err)
			defer it.Close()

			var got []string
			for it.Valid() {
				got = append(got, string(it.Key()))
				it.Next()
			}
			require.Equal(t, []string{"b", "c", "d"}, got)
		})
	}
}

func TestSnapshotIsolatesFromLaterWrites(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			b := s.NewBatch()
			b.Put(CFTuples, []byte("k"), []byte("before"))
			require.NoError(t, b.Commit(context.Background()))

			snap, err := s.Snapshot()
			require.NoError(t, err)
			defer snap.Close()

			b2 := s.NewBatch()
			b2.Put(CFTuples, []byte("k"), []byte("after"))
			require.NoError(t, b2.Commit(context.Background()))

			v, ok, err := snap.Get(CFTuples, []byte("k"))
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "before", string(v))
		})
	}
}

func TestVersionKeyEncodingOrdersNewestFirst(t *testing.T) {
	tupleKey := []byte("row-1")
	k1 := EncodeVersionKey(tupleKey, 5)
	k2 := EncodeVersionKey(tupleKey, 10)
	require.Less(t, bytesCompare(k2, k1), 0, "newer xid must sort first")

	gotKey, gotXID := DecodeVersionKey(k2)
	require.Equal(t, tupleKey, gotKey)
	require.Equal(t, uint64(10), gotXID)
}
