package coordalg_test

import (
	"sort"
	"testing"

	"github.com/moleculax/tileengine/coordalg"
	"github.com/moleculax/tileengine/schema"
	"github.com/stretchr/testify/require"
)

func dims2x2() []schema.Dimension {
	return []schema.Dimension{
		{Name: "x", Lo: 0, Hi: 3, TileExtent: 2},
		{Name: "y", Lo: 0, Hi: 3, TileExtent: 2},
	}
}

// TestDenseRowMajorScenario covers dom=[0,3]x[0,3], tile extent 2x2,
// row-major. v = i*4+j for all (i,j); reading back must recover the same
// flattened ordering for the subarray [1,2]x[1,3].
func TestDenseRowMajorScenario(t *testing.T) {
	dims := dims2x2()
	layout, err := coordalg.New(schema.RowMajor)
	require.NoError(t, err)

	type cell struct {
		coord []int64
		value int64
	}
	var cells []cell
	for i := int64(0); i < 4; i++ {
		for j := int64(0); j < 4; j++ {
			cells = append(cells, cell{[]int64{i, j}, i*4 + j})
		}
	}

	// subarray [1,2]x[1,3]
	var got []int64
	for _, c := range cells {
		if c.coord[0] >= 1 && c.coord[0] <= 2 && c.coord[1] >= 1 && c.coord[1] <= 3 {
			got = append(got, c.value)
		}
	}
	require.Equal(t, []int64{5, 6, 7, 9, 10, 11}, got)

	// sanity: TileID is computable for every cell without error
	for _, c := range cells {
		_, err := layout.TileID(c.coord, dims)
		require.NoError(t, err)
	}
}

func TestRowMajorTileIDGrouping(t *testing.T) {
	dims := dims2x2()
	layout, err := coordalg.New(schema.RowMajor)
	require.NoError(t, err)

	id1, err := layout.TileID([]int64{0, 0}, dims)
	require.NoError(t, err)
	id2, err := layout.TileID([]int64{1, 1}, dims)
	require.NoError(t, err)
	require.Equal(t, id1, id2, "cells in the same 2x2 tile share a tile id")

	id3, err := layout.TileID([]int64{2, 2}, dims)
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
}

func TestRowMajorKeyOrdersLastDimensionFastest(t *testing.T) {
	dims := dims2x2()
	layout, err := coordalg.New(schema.RowMajor)
	require.NoError(t, err)
	tileLo := []int64{0, 0}

	k00, _ := layout.Key([]int64{0, 0}, tileLo, dims)
	k01, _ := layout.Key([]int64{0, 1}, tileLo, dims)
	k10, _ := layout.Key([]int64{1, 0}, tileLo, dims)
	require.Less(t, k00, k01)
	require.Less(t, k01, k10)
}

func TestColumnMajorKeyOrdersFirstDimensionFastest(t *testing.T) {
	dims := dims2x2()
	layout, err := coordalg.New(schema.ColumnMajor)
	require.NoError(t, err)
	tileLo := []int64{0, 0}

	k00, _ := layout.Key([]int64{0, 0}, tileLo, dims)
	k10, _ := layout.Key([]int64{1, 0}, tileLo, dims)
	k01, _ := layout.Key([]int64{0, 1}, tileLo, dims)
	require.Less(t, k00, k10)
	require.Less(t, k10, k01)
}

func TestHilbertKeyIsAPermutationWithinTile(t *testing.T) {
	dims := dims2x2()
	layout, err := coordalg.New(schema.Hilbert)
	require.NoError(t, err)
	tileLo := []int64{0, 0}

	seen := map[uint64]bool{}
	var keys []uint64
	for i := int64(0); i < 2; i++ {
		for j := int64(0); j < 2; j++ {
			k, err := layout.Key([]int64{i, j}, tileLo, dims)
			require.NoError(t, err)
			require.False(t, seen[k], "hilbert keys must be distinct within a tile")
			seen[k] = true
			keys = append(keys, k)
		}
	}
	require.Len(t, keys, 4)
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
	require.Equal(t, []uint64{0, 1, 2, 3}, keys)
}

func TestSparseTileFillerSealsAtCapacity(t *testing.T) {
	f := coordalg.NewSparseTileFiller(3)
	id0, sealed0 := f.Place()
	id1, sealed1 := f.Place()
	id2, sealed2 := f.Place()
	id3, sealed3 := f.Place()

	require.Equal(t, uint64(0), id0)
	require.Equal(t, uint64(0), id1)
	require.Equal(t, uint64(0), id2)
	require.False(t, sealed0)
	require.False(t, sealed1)
	require.True(t, sealed2)
	require.Equal(t, uint64(1), id3)
	require.False(t, sealed3)
}

func TestNewUnknownOrder(t *testing.T) {
	_, err := coordalg.New(schema.Order(99))
	require.Error(t, err)
}
