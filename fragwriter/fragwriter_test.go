// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package fragwriter_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"io"
	"testing"

	"github.com/moleculax/tileengine/bookkeeping"
	"github.com/moleculax/tileengine/codec"
	"github.com/moleculax/tileengine/config"
	"github.com/moleculax/tileengine/fragwriter"
	"github.com/moleculax/tileengine/schema"
	"github.com/moleculax/tileengine/vfs/memfs"
	"github.com/stretchr/testify/require"
)

func denseSchema(t *testing.T) *schema.Schema {
	sch, err := schema.New(schema.Description{
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
	return sch
}

func int32Bytes(vals []int32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
	}
	return out
}

func readBookKeeping(t *testing.T, ctx context.Context, fs *memfs.FS, dir string) *bookkeeping.BookKeeping {
	sz, err := fs.FileSize(ctx, dir+"/"+bookkeeping.FileName)
	require.NoError(t, err)
	buf := make([]byte, sz)
	require.NoError(t, fs.Read(ctx, dir+"/"+bookkeeping.FileName, 0, buf))
	zr, err := gzip.NewReader(bytes.NewReader(buf))
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	bk, err := bookkeeping.Unmarshal(raw)
	require.NoError(t, err)
	return bk
}

func TestDenseRoundTripFillsAllTiles(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	sch := denseSchema(t)

	w, err := fragwriter.Open(ctx, fs, "/arr", sch, config.NewDefault(), nil)
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

	ok, err := fs.IsFile(ctx, w.Dir()+"/"+fragwriter.SentinelName)
	require.NoError(t, err)
	require.True(t, ok)

	bk := readBookKeeping(t, ctx, fs, w.Dir())
	require.Equal(t, 4, bk.NumTiles())
	require.EqualValues(t, 16, bk.TotalCells())
	for _, tile := range bk.Tiles {
		require.EqualValues(t, 4, tile.CellCount)
	}

	// Decode the tile covering i in [0,1], j in [0,1] and confirm the
	// values land in row-major order: 0,1,4,5.
	var target *bookkeeping.TileRecord
	for i := range bk.Tiles {
		if bk.Tiles[i].Bounds[0] == 0 && bk.Tiles[i].Bounds[2] == 0 {
			target = &bk.Tiles[i]
			break
		}
	}
	require.NotNil(t, target)

	sz, err := fs.FileSize(ctx, w.Dir()+"/v.tdb")
	require.NoError(t, err)
	full := make([]byte, sz)
	require.NoError(t, fs.Read(ctx, w.Dir()+"/v.tdb", 0, full))
	frame := full[target.Offsets[0] : target.Offsets[0]+target.Lengths[0]]
	raw, err := codec.Unframe(frame)
	require.NoError(t, err)

	got := make([]int32, 4)
	for i := range got {
		got[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	require.Equal(t, []int32{0, 1, 4, 5}, got)
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
		Capacity:  2,
	})
	require.NoError(t, err)
	return sch
}

func TestSparseSealsTilesAtCapacity(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	sch := sparseSchema(t)

	w, err := fragwriter.Open(ctx, fs, "/arr", sch, config.NewDefault(), nil)
	require.NoError(t, err)

	coords := []int64{0, 0, 1, 1, 2, 2, 3, 3, 4, 4}
	values := []int32{10, 11, 12, 13, 14}
	require.NoError(t, w.Submit(ctx, coords, map[string]fragwriter.AttrInput{
		"v": {Values: int32Bytes(values)},
	}))
	require.NoError(t, w.Finalize(ctx))

	bk := readBookKeeping(t, ctx, fs, w.Dir())
	require.Equal(t, 3, bk.NumTiles())
	require.EqualValues(t, 2, bk.Tiles[0].CellCount)
	require.EqualValues(t, 2, bk.Tiles[1].CellCount)
	require.EqualValues(t, 1, bk.Tiles[2].CellCount)
	require.EqualValues(t, 5, bk.TotalCells())

	require.Equal(t, []int64{0, 1, 0, 1}, bk.Tiles[0].MBR)
	require.Equal(t, []int64{4, 4, 4, 4}, bk.Tiles[2].MBR)
}

func variableSchema(t *testing.T) *schema.Schema {
	sch, err := schema.New(schema.Description{
		ArrayType: schema.Sparse,
		Dimensions: []schema.Dimension{
			{Name: "i", Lo: 0, Hi: 9},
		},
		Attributes: []schema.Attribute{
			{Name: "s", Type: schema.DatatypeChar, CellValNum: 0, Compressor: codec.None},
		},
		CellOrder: schema.RowMajor,
		TileOrder: schema.RowMajor,
		Capacity:  10,
	})
	require.NoError(t, err)
	return sch
}

func TestVariableLengthAttributeRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	sch := variableSchema(t)

	w, err := fragwriter.Open(ctx, fs, "/arr", sch, config.NewDefault(), nil)
	require.NoError(t, err)

	coords := []int64{0, 1, 2}
	values := []byte("abbccc")
	offsets := []uint64{0, 1, 3}
	require.NoError(t, w.Submit(ctx, coords, map[string]fragwriter.AttrInput{
		"s": {Values: values, Offsets: offsets},
	}))
	require.NoError(t, w.Finalize(ctx))

	bk := readBookKeeping(t, ctx, fs, w.Dir())
	require.Equal(t, 1, bk.NumTiles())
	tile := bk.Tiles[0]

	offSz, err := fs.FileSize(ctx, w.Dir()+"/s.tdb")
	require.NoError(t, err)
	offFull := make([]byte, offSz)
	require.NoError(t, fs.Read(ctx, w.Dir()+"/s.tdb", 0, offFull))
	offFrame := offFull[tile.Offsets[0] : tile.Offsets[0]+tile.Lengths[0]]
	offRaw, err := codec.Unframe(offFrame)
	require.NoError(t, err)
	require.Equal(t, 3*8, len(offRaw))
	decodedOffsets := make([]uint64, 3)
	for i := range decodedOffsets {
		decodedOffsets[i] = binary.LittleEndian.Uint64(offRaw[i*8:])
	}
	require.Equal(t, []uint64{0, 1, 3}, decodedOffsets)

	valSz, err := fs.FileSize(ctx, w.Dir()+"/s_var.tdb")
	require.NoError(t, err)
	valFull := make([]byte, valSz)
	require.NoError(t, fs.Read(ctx, w.Dir()+"/s_var.tdb", 0, valFull))
	valFrame := valFull[tile.Offsets[1] : tile.Offsets[1]+tile.Lengths[1]]
	valRaw, err := codec.Unframe(valFrame)
	require.NoError(t, err)
	require.Equal(t, "abbccc", string(valRaw))
}

func TestOpenRejectsUnknownOrder(t *testing.T) {
	ctx := context.Background()
	sch := denseSchema(t)
	sch.CellOrder = schema.Order(99)
	_, err := fragwriter.Open(ctx, memfs.New(), "/arr", sch, config.NewDefault(), nil)
	require.Error(t, err)
}
