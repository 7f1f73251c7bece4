// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package readcoord_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/moleculax/tileengine/codec"
	"github.com/moleculax/tileengine/config"
	"github.com/moleculax/tileengine/fragwriter"
	"github.com/moleculax/tileengine/readcoord"
	"github.com/moleculax/tileengine/schema"
	"github.com/moleculax/tileengine/vfs/memfs"
	"github.com/stretchr/testify/require"
)

func int32Bytes(vals []int32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
	}
	return out
}

func sparseSchema(t *testing.T) *schema.Schema {
	sch, err := schema.New(schema.Description{
		ArrayType: schema.Sparse,
		Dimensions: []schema.Dimension{
			{Name: "i", Lo: 0, Hi: 9},
			{Name: "j", Lo: 0, Hi: 9},
		},
		Attributes: []schema.Attribute{
			{Name: "v", Type: schema.DatatypeInt32, CellValNum: 1, Compressor: codec.None},
		},
		CellOrder: schema.RowMajor,
		TileOrder: schema.RowMajor,
		Capacity:  4,
	})
	require.NoError(t, err)
	return sch
}

func writeFragment(t *testing.T, ctx context.Context, fs *memfs.FS, sch *schema.Schema, coords []int64, values []int32) {
	w, err := fragwriter.Open(ctx, fs, "/arr", sch, config.NewDefault(), nil)
	require.NoError(t, err)
	require.NoError(t, w.Submit(ctx, coords, map[string]fragwriter.AttrInput{
		"v": {Values: int32Bytes(values)},
	}))
	require.NoError(t, w.Finalize(ctx))
}

func TestNewerFragmentWinsOnDuplicateCoordinate(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	sch := sparseSchema(t)

	writeFragment(t, ctx, fs, sch, []int64{1, 1, 2, 2}, []int32{10, 20})
	writeFragment(t, ctx, fs, sch, []int64{1, 1}, []int32{999})

	c, err := readcoord.Open(ctx, fs, "/arr", sch, nil)
	require.NoError(t, err)

	cells, err := c.Scan(ctx, []int64{0, 9, 0, 9}, []string{"v"})
	require.NoError(t, err)
	require.Len(t, cells, 2)

	got := map[[2]int64]int32{}
	for _, cell := range cells {
		got[[2]int64{cell.Coord[0], cell.Coord[1]}] = int32(binary.LittleEndian.Uint32(cell.Values["v"]))
	}
	require.Equal(t, int32(999), got[[2]int64{1, 1}])
	require.Equal(t, int32(20), got[[2]int64{2, 2}])
}

func TestScanWithNoFragmentsIsEmptyNotError(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	sch := sparseSchema(t)
	require.NoError(t, fs.CreateDir(ctx, "/arr"))

	c, err := readcoord.Open(ctx, fs, "/arr", sch, nil)
	require.NoError(t, err)

	cells, err := c.Scan(ctx, []int64{0, 9, 0, 9}, []string{"v"})
	require.NoError(t, err)
	require.Empty(t, cells)
}

func TestScanEmptySubarrayIsEmptyNotError(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	sch := sparseSchema(t)
	writeFragment(t, ctx, fs, sch, []int64{1, 1}, []int32{10})

	c, err := readcoord.Open(ctx, fs, "/arr", sch, nil)
	require.NoError(t, err)

	cells, err := c.Scan(ctx, []int64{5, 3, 0, 9}, []string{"v"})
	require.NoError(t, err)
	require.Empty(t, cells)
}

func TestScanSubarrayOutsideDomainIsInvalid(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	sch := sparseSchema(t)
	writeFragment(t, ctx, fs, sch, []int64{1, 1}, []int32{10})

	c, err := readcoord.Open(ctx, fs, "/arr", sch, nil)
	require.NoError(t, err)

	_, err = c.Scan(ctx, []int64{20, 25, 0, 9}, []string{"v"})
	require.Error(t, err)
}

func TestScanGlobalCellOrder(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	sch := sparseSchema(t)
	writeFragment(t, ctx, fs, sch, []int64{2, 2, 0, 0, 1, 1}, []int32{22, 0, 11})

	c, err := readcoord.Open(ctx, fs, "/arr", sch, nil)
	require.NoError(t, err)

	cells, err := c.Scan(ctx, []int64{0, 9, 0, 9}, []string{"v"})
	require.NoError(t, err)
	require.Len(t, cells, 3)
	require.Equal(t, []int64{0, 0}, cells[0].Coord)
	require.Equal(t, []int64{1, 1}, cells[1].Coord)
	require.Equal(t, []int64{2, 2}, cells[2].Coord)
}
