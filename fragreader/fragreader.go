// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package fragreader opens a single fragment directory written by
// fragwriter and streams cells out of it for a given subarray and
// attribute set. Modeled on fragment.go's block reader: a
// book-keeping-driven index lookup followed by range reads through the
// same tile cache/codec path writes went through.
package fragreader

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/moleculax/tileengine/bookkeeping"
	"github.com/moleculax/tileengine/codec"
	"github.com/moleculax/tileengine/coordalg"
	"github.com/moleculax/tileengine/errs"
	"github.com/moleculax/tileengine/fragwriter"
	"github.com/moleculax/tileengine/schema"
	"github.com/moleculax/tileengine/tilecache"
	"github.com/moleculax/tileengine/vfs"
)

// Cell is one decoded cell: its coordinate and, per requested attribute,
// its raw encoded value (fixed-width bytes, or the variable-length slice
// for the cell).
type Cell struct {
	Coord  []int64
	Values map[string][]byte
}

// Fragment is an open, read-only handle on one fragment directory.
type Fragment struct {
	fs     vfs.FS
	dir    string
	id     string
	schema *schema.Schema
	layout coordalg.Layout
	bk     *bookkeeping.BookKeeping
	cache  *tilecache.Cache

	fileNames     []string
	attrValuesIdx map[string]int
	attrOffsetIdx map[string]int
	coordsFileIdx int

	sparse    bool
	timestamp int64
}

// Open reads a fragment's book-keeping file and prepares it for Stream
// calls. dir is the fragment directory path relative to the array (its
// basename must be the __<ts>_<uuid> name fragwriter gave it).
func Open(ctx context.Context, fs vfs.FS, dir string, sch *schema.Schema, cache *tilecache.Cache) (*Fragment, error) {
	ok, err := fs.IsFile(ctx, dir+"/"+fragwriter.SentinelName)
	if err != nil {
		return nil, errs.Wrap(err, errs.IO, "fragreader: check sentinel")
	}
	if !ok {
		return nil, errs.Newf(errs.Corruption, "fragreader: fragment %s has no visibility sentinel", dir)
	}

	layout, err := coordalg.New(sch.CellOrder)
	if err != nil {
		return nil, err
	}

	bk, err := readBookKeeping(ctx, fs, dir)
	if err != nil {
		return nil, err
	}

	fileNames, valuesIdx, offsetIdx, coordsIdx := fragwriter.FileLayout(sch)

	f := &Fragment{
		fs:            fs,
		dir:           dir,
		id:            basename(dir),
		schema:        sch,
		layout:        layout,
		bk:            bk,
		cache:         cache,
		fileNames:     fileNames,
		attrValuesIdx: valuesIdx,
		attrOffsetIdx: offsetIdx,
		coordsFileIdx: coordsIdx,
		sparse:        sch.ArrayType == schema.Sparse,
		timestamp:     timestampOf(dir),
	}
	return f, nil
}

// ID returns the fragment's directory basename (__<ts>_<uuid>).
func (f *Fragment) ID() string { return f.id }

// Timestamp returns the creation timestamp encoded in the fragment's
// directory name, used by the read coordinator to order fragments newest
// first for dedup.
func (f *Fragment) Timestamp() int64 { return f.timestamp }

// Schema returns the array schema this fragment was written against.
func (f *Fragment) Schema() *schema.Schema { return f.schema }

// NumTiles returns the number of tiles indexed by this fragment.
func (f *Fragment) NumTiles() int { return f.bk.NumTiles() }

func basename(dir string) string {
	i := strings.LastIndex(dir, "/")
	if i < 0 {
		return dir
	}
	return dir[i+1:]
}

func timestampOf(dir string) int64 {
	name := basename(dir)
	name = strings.TrimPrefix(name, "__")
	parts := strings.SplitN(name, "_", 2)
	ts, _ := strconv.ParseInt(parts[0], 10, 64)
	return ts
}

func readBookKeeping(ctx context.Context, fs vfs.FS, dir string) (*bookkeeping.BookKeeping, error) {
	path := dir + "/" + bookkeeping.FileName
	sz, err := fs.FileSize(ctx, path)
	if err != nil {
		return nil, errs.Wrap(err, errs.IO, "fragreader: stat book-keeping")
	}
	buf := make([]byte, sz)
	if err := fs.Read(ctx, path, 0, buf); err != nil {
		return nil, errs.Wrap(err, errs.IO, "fragreader: read book-keeping")
	}
	zr, err := gzip.NewReader(bytes.NewReader(buf))
	if err != nil {
		return nil, errs.Wrap(err, errs.Corruption, "fragreader: gunzip book-keeping")
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, errs.Wrap(err, errs.Corruption, "fragreader: gunzip book-keeping")
	}
	return bookkeeping.Unmarshal(raw)
}

// Stream returns, in the fragment's own tile-then-cell order, every cell of
// this fragment whose coordinate falls inside subarray (2*rank bounds) and
// carries a value for every name in attrs. The order cells come back in is
// not necessarily the array's global cell order across fragments — the
// read coordinator (package readcoord) merges multiple fragments' streams
// into that order.
func (f *Fragment) Stream(ctx context.Context, subarray []int64, attrs []string) ([]Cell, error) {
	rank := f.schema.Rank()
	if len(subarray) != 2*rank {
		return nil, errs.Newf(errs.InvalidArgument, "fragreader: subarray has %d bounds, expected %d", len(subarray), 2*rank)
	}

	var matches []int
	for i, tile := range f.bk.Tiles {
		var intersects bool
		if f.sparse {
			intersects = tile.IntersectsMBR(subarray, rank)
		} else {
			intersects = tile.Intersects(subarray, rank)
		}
		if intersects {
			matches = append(matches, i)
		}
	}
	sort.Ints(matches)

	var out []Cell
	for _, tileIdx := range matches {
		cells, err := f.decodeTile(ctx, tileIdx, attrs)
		if err != nil {
			return nil, err
		}
		for _, c := range cells {
			if inBounds(c.Coord, subarray, rank) {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func inBounds(coord, subarray []int64, rank int) bool {
	for i := 0; i < rank; i++ {
		if coord[i] < subarray[2*i] || coord[i] > subarray[2*i+1] {
			return false
		}
	}
	return true
}

// decodeTile reads, decompresses, and (if cached) reuses the requested
// attributes' payload for one tile, reconstructing each cell's coordinate
// and per-attribute value.
func (f *Fragment) decodeTile(ctx context.Context, tileIdx int, attrs []string) ([]Cell, error) {
	tile := f.bk.Tiles[tileIdx]

	fileIdxs := map[int]bool{}
	if f.sparse {
		fileIdxs[f.coordsFileIdx] = true
	}
	for _, name := range attrs {
		a, ok := f.schema.Attribute(name)
		if !ok {
			return nil, errs.Newf(errs.InvalidArgument, "fragreader: unknown attribute %q", name)
		}
		if a.IsVariable() {
			fileIdxs[f.attrOffsetIdx[name]] = true
		}
		fileIdxs[f.attrValuesIdx[name]] = true
	}
	if f.cache != nil {
		for idx := range fileIdxs {
			f.cache.Pin(tilecache.Key{FragmentID: f.id, TileID: uint64(tileIdx), AttrID: idx})
		}
		defer func() {
			for idx := range fileIdxs {
				f.cache.Unpin(tilecache.Key{FragmentID: f.id, TileID: uint64(tileIdx), AttrID: idx})
			}
		}()
	}

	coords, err := f.tileCoords(ctx, tileIdx)
	if err != nil {
		return nil, err
	}

	n := int(tile.CellCount)
	cells := make([]Cell, n)
	for i := 0; i < n; i++ {
		cells[i] = Cell{Coord: coords[i], Values: map[string][]byte{}}
	}

	for _, name := range attrs {
		a, ok := f.schema.Attribute(name)
		if !ok {
			return nil, errs.Newf(errs.InvalidArgument, "fragreader: unknown attribute %q", name)
		}
		if a.IsVariable() {
			offRaw, err := f.readFile(ctx, tileIdx, f.attrOffsetIdx[name])
			if err != nil {
				return nil, err
			}
			valRaw, err := f.readFile(ctx, tileIdx, f.attrValuesIdx[name])
			if err != nil {
				return nil, err
			}
			offsets := bytesToUint64s(offRaw)
			for i := 0; i < n; i++ {
				start := offsets[i]
				end := uint64(len(valRaw))
				if i+1 < n {
					end = offsets[i+1]
				}
				cells[i].Values[name] = valRaw[start:end]
			}
		} else {
			raw, err := f.readFile(ctx, tileIdx, f.attrValuesIdx[name])
			if err != nil {
				return nil, err
			}
			elemSize := a.Type.Size() * int(a.CellValNum)
			for i := 0; i < n; i++ {
				cells[i].Values[name] = raw[i*elemSize : (i+1)*elemSize]
			}
		}
	}
	return cells, nil
}

// tileCoords reconstructs the coordinate of every cell in tile tileIdx, in
// the same order values were serialized in.
func (f *Fragment) tileCoords(ctx context.Context, tileIdx int) ([][]int64, error) {
	tile := f.bk.Tiles[tileIdx]
	rank := f.schema.Rank()
	n := int(tile.CellCount)

	if f.sparse {
		raw, err := f.readFile(ctx, tileIdx, f.coordsFileIdx)
		if err != nil {
			return nil, err
		}
		if len(raw) != n*rank*8 {
			return nil, errs.Newf(errs.Corruption, "fragreader: coords payload has %d bytes, expected %d", len(raw), n*rank*8)
		}
		coords := make([][]int64, n)
		ints := bytesToUint64s(raw)
		for i := 0; i < n; i++ {
			c := make([]int64, rank)
			for d := 0; d < rank; d++ {
				c[d] = int64(ints[i*rank+d])
			}
			coords[i] = c
		}
		return coords, nil
	}

	dims := f.schema.Dimensions
	tileLo := make([]int64, rank)
	for i := 0; i < rank; i++ {
		tileLo[i] = tile.Bounds[2*i]
	}

	if f.layout.Order() == schema.Hilbert {
		if int64(n) != f.schema.TileCapacity() {
			return nil, errs.New(errs.Unsupported, "fragreader: partial Hilbert-ordered dense tiles cannot be decoded")
		}
		order, err := coordalg.TileCellOrder(f.layout, dims)
		if err != nil {
			return nil, err
		}
		coords := make([][]int64, n)
		for i, local := range order {
			coords[i] = addVec(tileLo, local)
		}
		return coords, nil
	}

	// LocalCoordFromPosition(i) maps slot i to the i-th coordinate in the
	// tile's full traversal order; that only matches the serialized slot
	// order when the tile is completely filled. A partially-filled
	// row/col-major tile packs its cells densely in key order, so slot i
	// no longer equals position i.
	if int64(n) != f.schema.TileCapacity() {
		return nil, errs.New(errs.Unsupported, "fragreader: partial dense tiles cannot be decoded")
	}

	coords := make([][]int64, n)
	for i := 0; i < n; i++ {
		local, err := coordalg.LocalCoordFromPosition(f.layout.Order(), int64(i), dims)
		if err != nil {
			return nil, err
		}
		coords[i] = addVec(tileLo, local)
	}
	return coords, nil
}

func addVec(a, b []int64) []int64 {
	out := make([]int64, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}

func bytesToUint64s(b []byte) []uint64 {
	out := make([]uint64, len(b)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return out
}

// readFile reads and decompresses the framed payload for one file at the
// given tile index, going through the tile cache when available.
func (f *Fragment) readFile(ctx context.Context, tileIdx, fileIdx int) ([]byte, error) {
	key := tilecache.Key{FragmentID: f.id, TileID: uint64(tileIdx), AttrID: fileIdx}
	if f.cache != nil {
		if data, ok := f.cache.Get(key); ok {
			return data, nil
		}
	}

	tile := f.bk.Tiles[tileIdx]
	frame := make([]byte, int(tile.Lengths[fileIdx]))
	path := f.dir + "/" + f.fileNames[fileIdx]
	if err := f.fs.Read(ctx, path, int64(tile.Offsets[fileIdx]), frame); err != nil {
		return nil, errs.Wrapf(err, errs.IO, "fragreader: read %s", path)
	}
	raw, err := codec.Unframe(frame)
	if err != nil {
		return nil, err
	}
	if f.cache != nil {
		f.cache.Put(key, raw)
	}
	return raw, nil
}
