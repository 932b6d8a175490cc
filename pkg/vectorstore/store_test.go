package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/hybridpg/pkg/distance"
	"github.com/kasuganosora/hybridpg/pkg/nsw"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	params := nsw.DefaultParams()
	params.M = 8
	params.EFConstruction = 32
	params.EFSearch = 16
	s, err := New(4, distance.L2, params, 7)
	require.NoError(t, err)
	return s
}

func TestInsertAndSearchReturnsLiveVector(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, 1, []float32{1, 0, 0, 0}))
	require.NoError(t, s.Insert(ctx, 2, []float32{0, 1, 0, 0}))

	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 1, 16)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(1), results[0].ID)
}

func TestDeleteExcludesFromSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, 1, []float32{1, 0, 0, 0}))
	require.NoError(t, s.Insert(ctx, 2, []float32{0.9, 0.1, 0, 0}))

	require.NoError(t, s.Delete(1))
	require.Equal(t, 1, s.Len())

	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 1, 16)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(2), results[0].ID)
}

func TestReInsertResurrectsTombstonedID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, 1, []float32{1, 0, 0, 0}))
	require.NoError(t, s.Delete(1))

	require.NoError(t, s.Insert(ctx, 1, []float32{1, 0, 0, 0}))
	v, ok := s.Vector(1)
	require.True(t, ok)
	require.Equal(t, []float32{1, 0, 0, 0}, v)
}

func TestSaveLoadRoundTripPreservesTombstones(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, 1, []float32{1, 0, 0, 0}))
	require.NoError(t, s.Insert(ctx, 2, []float32{0, 1, 0, 0}))
	require.NoError(t, s.Delete(1))

	prefix := filepath.Join(t.TempDir(), "store")
	require.NoError(t, s.Save(prefix))

	loaded, err := Load(prefix, 7)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())

	_, ok := loaded.Vector(1)
	require.False(t, ok, "tombstoned id must stay deleted after reload")

	_, err = os.Stat(prefix + ".graph")
	require.NoError(t, err)
	_, err = os.Stat(prefix + ".data")
	require.NoError(t, err)
}

func TestDeleteUnknownIDFails(t *testing.T) {
	s := newTestStore(t)
	require.Error(t, s.Delete(999))
}

func TestEnableQuantizationFitsOverLiveVectorsOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, 1, []float32{1, 0, 0, 0}))
	require.NoError(t, s.Insert(ctx, 2, []float32{0, 1, 0, 0}))
	require.NoError(t, s.Insert(ctx, 3, []float32{0, 0, 1, 0}))
	require.NoError(t, s.Delete(2))

	require.False(t, s.QuantizerReady())
	require.NoError(t, s.EnableQuantization(1))
	require.True(t, s.QuantizerReady())

	require.NoError(t, s.Insert(ctx, 4, []float32{0, 0, 0, 1}))
	results, err := s.SearchQuantized(ctx, []float32{1, 0, 0, 0}, 1, 4)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(1), results[0].ID)
}

func TestEnableQuantizationOnEmptyStoreFails(t *testing.T) {
	s := newTestStore(t)
	require.Error(t, s.EnableQuantization(1))
}

func TestSearchQuantizedFallsBackBeforeFit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, 1, []float32{1, 0, 0, 0}))

	results, err := s.SearchQuantized(ctx, []float32{1, 0, 0, 0}, 1, 4)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(1), results[0].ID)
}
