// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package tileengine_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/moleculax/tileengine"
	"github.com/moleculax/tileengine/codec"
	"github.com/moleculax/tileengine/config"
	"github.com/moleculax/tileengine/errs"
	"github.com/moleculax/tileengine/fragwriter"
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

func int32Of(raw []byte) int32 { return int32(binary.LittleEndian.Uint32(raw)) }

func newTestContext() *tileengine.Context {
	return tileengine.OpenContext(config.NewDefault(), nil)
}

// Scenario 1: dense 2-D round-trip. dom [0,3]x[0,3], tile extent 2x2, one
// int32 attribute, row-major order; write v=i*4+j; read subarray [1,2]x[1,3]
// and expect the six enclosed cells.
func TestScenarioDense2DRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestContext()

	arr, err := c.CreateArray(ctx, "mem:///arr-dense2d", schema.Description{
		ArrayType: schema.Dense,
		Dimensions: []schema.Dimension{
			{Name: "i", Lo: 0, Hi: 3, TileExtent: 2},
			{Name: "j", Lo: 0, Hi: 3, TileExtent: 2},
		},
		Attributes: []schema.Attribute{
			{Name: "v", Type: schema.DatatypeInt32, CellValNum: 1, Compressor: codec.None},
		},
		CellOrder: schema.RowMajor,
		TileOrder: schema.RowMajor,
	})
	require.NoError(t, err)

	w, err := arr.OpenWriter(ctx)
	require.NoError(t, err)
	var coords []int64
	var values []int32
	for i := int64(0); i < 4; i++ {
		for j := int64(0); j < 4; j++ {
			coords = append(coords, i, j)
			values = append(values, int32(i*4+j))
		}
	}
	require.NoError(t, w.Submit(ctx, coords, map[string]fragwriter.AttrInput{
		"v": {Values: int32Bytes(values)},
	}))
	require.NoError(t, w.Finalize(ctx))

	cells, err := arr.Read(ctx, []int64{1, 2, 1, 3}, []string{"v"})
	require.NoError(t, err)
	require.Len(t, cells, 6)

	// Cells must come back in the schema's global order: (1,1) from the tile
	// i[0,1]xj[0,1] first, then (1,2),(1,3) from tile i[0,1]xj[2,3], then
	// (2,1) from tile i[2,3]xj[0,1], then (2,2),(2,3) from tile i[2,3]xj[2,3],
	// and within each tile the last dimension fastest.
	wantCoords := [][2]int64{{1, 1}, {1, 2}, {1, 3}, {2, 1}, {2, 2}, {2, 3}}
	wantValues := []int32{5, 6, 7, 9, 10, 11}
	for i, cell := range cells {
		require.Equal(t, wantCoords[i][0], cell.Coord[0], "cell %d", i)
		require.Equal(t, wantCoords[i][1], cell.Coord[1], "cell %d", i)
		require.Equal(t, wantValues[i], int32Of(cell.Values["v"]), "cell %d", i)
	}
}

// CreateArray on a uri that already holds an array must fail with
// SchemaConflict instead of silently corrupting the existing schema file.
func TestCreateArrayRejectsExistingArray(t *testing.T) {
	ctx := context.Background()
	c := newTestContext()

	desc := schema.Description{
		ArrayType: schema.Dense,
		Dimensions: []schema.Dimension{
			{Name: "i", Lo: 0, Hi: 9, TileExtent: 10},
		},
		Attributes: []schema.Attribute{
			{Name: "v", Type: schema.DatatypeInt32, CellValNum: 1, Compressor: codec.None},
		},
		CellOrder: schema.RowMajor,
		TileOrder: schema.RowMajor,
	}

	_, err := c.CreateArray(ctx, "mem:///arr-conflict", desc)
	require.NoError(t, err)

	_, err = c.CreateArray(ctx, "mem:///arr-conflict", desc)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.SchemaConflict))
}

// Scenario 2: sparse with duplicates across fragments. sparse int64 dom
// [0,99], attribute x:int32; fragment 1 writes (10,100), fragment 2 writes
// (10,200); a full read sees (10,200) exactly once.
func TestScenarioSparseDuplicatesAcrossFragments(t *testing.T) {
	ctx := context.Background()
	c := newTestContext()

	arr, err := c.CreateArray(ctx, "mem:///arr-sparse-dup", schema.Description{
		ArrayType: schema.Sparse,
		Dimensions: []schema.Dimension{
			{Name: "i", Lo: 0, Hi: 99},
		},
		Attributes: []schema.Attribute{
			{Name: "x", Type: schema.DatatypeInt32, CellValNum: 1, Compressor: codec.None},
		},
		CellOrder: schema.RowMajor,
		TileOrder: schema.RowMajor,
		Capacity:  4,
	})
	require.NoError(t, err)

	w1, err := arr.OpenWriter(ctx)
	require.NoError(t, err)
	require.NoError(t, w1.Submit(ctx, []int64{10}, map[string]fragwriter.AttrInput{
		"x": {Values: int32Bytes([]int32{100})},
	}))
	require.NoError(t, w1.Finalize(ctx))

	w2, err := arr.OpenWriter(ctx)
	require.NoError(t, err)
	require.NoError(t, w2.Submit(ctx, []int64{10}, map[string]fragwriter.AttrInput{
		"x": {Values: int32Bytes([]int32{200})},
	}))
	require.NoError(t, w2.Finalize(ctx))

	cells, err := arr.Read(ctx, arr.FullDomain(), []string{"x"})
	require.NoError(t, err)
	require.Len(t, cells, 1)
	require.Equal(t, []int64{10}, cells[0].Coord)
	require.Equal(t, int32(200), int32Of(cells[0].Values["x"]))
}

// Scenario 3: variable-length attribute. dense dom [0,2], attribute
// s:string; write ["a","bb","ccc"] as one concatenated values string with
// offsets 0,1,3; read [0,2] and expect each cell's own value back.
func TestScenarioVariableLengthAttribute(t *testing.T) {
	ctx := context.Background()
	c := newTestContext()

	arr, err := c.CreateArray(ctx, "mem:///arr-varlen", schema.Description{
		ArrayType: schema.Dense,
		Dimensions: []schema.Dimension{
			{Name: "i", Lo: 0, Hi: 2, TileExtent: 3},
		},
		Attributes: []schema.Attribute{
			{Name: "s", Type: schema.DatatypeChar, CellValNum: 0, Compressor: codec.None},
		},
		CellOrder: schema.RowMajor,
		TileOrder: schema.RowMajor,
	})
	require.NoError(t, err)

	w, err := arr.OpenWriter(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Submit(ctx, []int64{0, 1, 2}, map[string]fragwriter.AttrInput{
		"s": {Values: []byte("abbccc"), Offsets: []uint64{0, 1, 3}},
	}))
	require.NoError(t, w.Finalize(ctx))

	cells, err := arr.Read(ctx, []int64{0, 2}, []string{"s"})
	require.NoError(t, err)
	require.Len(t, cells, 3)

	got := map[int64]string{}
	for _, c := range cells {
		got[c.Coord[0]] = string(c.Values["s"])
	}
	require.Equal(t, map[int64]string{0: "a", 1: "bb", 2: "ccc"}, got)
}

// Scenario 4: compression codec parity. The same data written twice, once
// uncompressed and once with zstd, reads back byte-identical both times
// even though the on-disk sizes differ.
func TestScenarioCompressionCodecParity(t *testing.T) {
	ctx := context.Background()

	run := func(uri string, compressor codec.CodecID) ([]int32, int64) {
		c := newTestContext()
		arr, err := c.CreateArray(ctx, uri, schema.Description{
			ArrayType: schema.Dense,
			Dimensions: []schema.Dimension{
				{Name: "i", Lo: 0, Hi: 99, TileExtent: 100},
			},
			Attributes: []schema.Attribute{
				{Name: "v", Type: schema.DatatypeInt32, CellValNum: 1, Compressor: compressor, Level: 3},
			},
			CellOrder: schema.RowMajor,
			TileOrder: schema.RowMajor,
		})
		require.NoError(t, err)

		w, err := arr.OpenWriter(ctx)
		require.NoError(t, err)
		coords := make([]int64, 100)
		values := make([]int32, 100)
		for i := int64(0); i < 100; i++ {
			coords[i] = i
			values[i] = int32(i * i)
		}
		require.NoError(t, w.Submit(ctx, coords, map[string]fragwriter.AttrInput{
			"v": {Values: int32Bytes(values)},
		}))
		require.NoError(t, w.Finalize(ctx))

		cells, err := arr.Read(ctx, []int64{0, 99}, []string{"v"})
		require.NoError(t, err)
		got := make([]int32, len(cells))
		for _, cell := range cells {
			got[cell.Coord[0]] = int32Of(cell.Values["v"])
		}

		sz, err := memfs.Shared().FileSize(ctx, w.Dir()+"/v.tdb")
		require.NoError(t, err)
		return got, sz
	}

	uncompressed, sizeNone := run("mem:///arr-none", codec.None)
	compressed, sizeZstd := run("mem:///arr-zstd", codec.Zstd)
	require.Equal(t, uncompressed, compressed)
	require.NotEqual(t, sizeNone, sizeZstd)
}

// Scenario 5: crash-before-commit. A write that submits cells but never
// reaches Finalize leaves its fragment directory without a visibility
// sentinel; reopening the array and reading back is as if the write never
// happened, and the half-written fragment directory is simply ignored.
func TestScenarioCrashBeforeCommit(t *testing.T) {
	ctx := context.Background()
	c := newTestContext()

	arr, err := c.CreateArray(ctx, "mem:///arr-crash", schema.Description{
		ArrayType: schema.Dense,
		Dimensions: []schema.Dimension{
			{Name: "i", Lo: 0, Hi: 9, TileExtent: 10},
		},
		Attributes: []schema.Attribute{
			{Name: "v", Type: schema.DatatypeInt32, CellValNum: 1, Compressor: codec.None},
		},
		CellOrder: schema.RowMajor,
		TileOrder: schema.RowMajor,
	})
	require.NoError(t, err)

	w, err := arr.OpenWriter(ctx)
	require.NoError(t, err)
	coords := make([]int64, 10)
	values := make([]int32, 10)
	for i := int64(0); i < 10; i++ {
		coords[i] = i
		values[i] = int32(i)
	}
	require.NoError(t, w.Submit(ctx, coords, map[string]fragwriter.AttrInput{
		"v": {Values: int32Bytes(values)},
	}))
	// No Finalize: simulates a crash before the sentinel lands. The cells
	// are well under the spill threshold, so they are still buffered in the
	// writer and only the fragment directory exists.

	cells, err := arr.Read(ctx, arr.FullDomain(), []string{"v"})
	require.NoError(t, err)
	require.Empty(t, cells)

	ok, err := memfs.Shared().IsDir(ctx, w.Dir())
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = memfs.Shared().IsFile(ctx, w.Dir()+"/"+fragwriter.SentinelName)
	require.NoError(t, err)
	require.False(t, ok)
}

// Scenario 6: image panel read. dense dom [0,299]x[0,299], three int32
// attributes R,G,B, tile extent 100x100; the writer lays down a 3x3
// color-palette image, one constant color per 100x100 panel; a full-domain
// read returns that same constant triple for every cell in each panel.
func TestScenarioImagePanelRead(t *testing.T) {
	ctx := context.Background()
	c := newTestContext()

	arr, err := c.CreateArray(ctx, "mem:///arr-image", schema.Description{
		ArrayType: schema.Dense,
		Dimensions: []schema.Dimension{
			{Name: "i", Lo: 0, Hi: 299, TileExtent: 100},
			{Name: "j", Lo: 0, Hi: 299, TileExtent: 100},
		},
		Attributes: []schema.Attribute{
			{Name: "r", Type: schema.DatatypeInt32, CellValNum: 1, Compressor: codec.None},
			{Name: "g", Type: schema.DatatypeInt32, CellValNum: 1, Compressor: codec.None},
			{Name: "b", Type: schema.DatatypeInt32, CellValNum: 1, Compressor: codec.None},
		},
		CellOrder: schema.RowMajor,
		TileOrder: schema.RowMajor,
	})
	require.NoError(t, err)

	palette := [3][3][3]int32{
		{{255, 0, 0}, {0, 255, 0}, {0, 0, 255}},
		{{255, 255, 0}, {0, 255, 255}, {255, 0, 255}},
		{{0, 0, 0}, {128, 128, 128}, {255, 255, 255}},
	}

	w, err := arr.OpenWriter(ctx)
	require.NoError(t, err)
	var coords []int64
	var rv, gv, bv []int32
	for i := int64(0); i < 300; i++ {
		for j := int64(0); j < 300; j++ {
			panel := palette[i/100][j/100]
			coords = append(coords, i, j)
			rv = append(rv, panel[0])
			gv = append(gv, panel[1])
			bv = append(bv, panel[2])
		}
	}
	require.NoError(t, w.Submit(ctx, coords, map[string]fragwriter.AttrInput{
		"r": {Values: int32Bytes(rv)},
		"g": {Values: int32Bytes(gv)},
		"b": {Values: int32Bytes(bv)},
	}))
	require.NoError(t, w.Finalize(ctx))

	cells, err := arr.Read(ctx, arr.FullDomain(), []string{"r", "g", "b"})
	require.NoError(t, err)
	require.Len(t, cells, 300*300)

	// Cell order is tile order (last dimension fastest across the 3x3 panel
	// grid) then cell order within each tile (last dimension fastest across
	// its 100x100 cells), not the raster order the writer submitted in.
	idx := 0
	for it := int64(0); it < 3; it++ {
		for jt := int64(0); jt < 3; jt++ {
			panel := palette[it][jt]
			for li := int64(0); li < 100; li++ {
				for lj := int64(0); lj < 100; lj++ {
					i, j := it*100+li, jt*100+lj
					cell := cells[idx]
					require.Equal(t, i, cell.Coord[0], "cell %d", idx)
					require.Equal(t, j, cell.Coord[1], "cell %d", idx)
					require.Equal(t, panel[0], int32Of(cell.Values["r"]), "cell %d", idx)
					require.Equal(t, panel[1], int32Of(cell.Values["g"]), "cell %d", idx)
					require.Equal(t, panel[2], int32Of(cell.Values["b"]), "cell %d", idx)
					idx++
				}
			}
		}
	}
}
