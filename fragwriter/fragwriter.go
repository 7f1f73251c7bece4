// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package fragwriter accumulates submitted cells into a single fragment
// directory: a batch of per-attribute data files, an optional sparse
// coordinates file, and a book-keeping index, made visible atomically by a
// sentinel file written last. Modeled on fragment.go's accumulation of row
// data into per-view blocks, flushed through a worker pool at snapshot
// time; the snapshot-threshold trigger there is the model for the
// in-memory spill threshold here.
package fragwriter

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/moleculax/tileengine/bookkeeping"
	"github.com/moleculax/tileengine/codec"
	"github.com/moleculax/tileengine/config"
	"github.com/moleculax/tileengine/coordalg"
	"github.com/moleculax/tileengine/errs"
	"github.com/moleculax/tileengine/logger"
	"github.com/moleculax/tileengine/schema"
	"github.com/moleculax/tileengine/vfs"
	"github.com/moleculax/tileengine/workerpool"
)

// SentinelName is written last, once every data and book-keeping file is
// durable, making the fragment visible to readers.
const SentinelName = "__tiledb_fragment.ok"

// AttrInput is one attribute's worth of values for a Submit call, one entry
// per cell in the same order as the accompanying coordinates. Offsets is
// nil for fixed cell-val-num attributes (Values is the flat concatenation
// of fixed-width elements); for variable attributes Offsets holds len(n)
// byte offsets into Values marking where each cell's value starts.
type AttrInput struct {
	Values  []byte
	Offsets []uint64
}

type cellRec struct {
	coord  []int64
	key    uint64
	values map[string][]byte // per attribute name, this cell's raw bytes
}

type tileBuf struct {
	cells []cellRec
}

func (tb *tileBuf) bytes() int {
	n := 0
	for _, c := range tb.cells {
		for _, v := range c.values {
			n += len(v)
		}
		n += len(c.coord) * 8
	}
	return n
}

// Writer accumulates cells for one new fragment. Submit may be called any
// number of times; Finalize writes everything out and makes the fragment
// visible.
type Writer struct {
	fs         vfs.FS
	dir        string
	schema     *schema.Schema
	layout     coordalg.Layout // cell order: intra-tile position
	tileLayout coordalg.Layout // tile order: which tile a coordinate belongs to
	pool       *workerpool.Pool
	logger     logger.Logger
	cfg        *config.Config

	sparse   bool
	capacity int64

	fileNames     []string
	attrValuesIdx map[string]int
	attrOffsetIdx map[string]int // -1 when the attribute is fixed-width
	coordsFileIdx int            // -1 for dense

	tiles        map[uint64]*tileBuf
	sealedSparse []uint64 // tile ids sealed by the filler but not yet flushed
	sparseFiller *coordalg.SparseTileFiller

	bk          *bookkeeping.BookKeeping
	fileOffsets []uint64 // running end-of-file offset per file, in fileNames order

	bufferedBytes int
	finalized     bool
}

// Open creates the fragment directory under arrayPath and returns a Writer
// ready to accept cells. The fragment directory is named
// __<unix-nanos>_<uuid>, so fragments sort by creation time and never
// collide.
func Open(ctx context.Context, fs vfs.FS, arrayPath string, sch *schema.Schema, cfg *config.Config, lg logger.Logger) (*Writer, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if lg == nil {
		lg = logger.NopLogger
	}
	layout, err := coordalg.New(sch.CellOrder)
	if err != nil {
		return nil, err
	}
	tileLayout, err := coordalg.New(sch.TileOrder)
	if err != nil {
		return nil, err
	}

	dirName := fmt.Sprintf("__%d_%s", time.Now().UnixNano(), uuid.New().String())
	dir := arrayPath + "/" + dirName
	if err := fs.CreateDir(ctx, dir); err != nil {
		return nil, errs.Wrap(err, errs.IO, "fragwriter: create fragment directory")
	}

	w := &Writer{
		fs:            fs,
		dir:           dir,
		schema:        sch,
		layout:        layout,
		tileLayout:    tileLayout,
		pool:          workerpool.New(cfg.WorkerPoolSize),
		logger:        lg.WithPrefix("fragwriter"),
		cfg:           cfg,
		sparse:        sch.ArrayType == schema.Sparse,
		tiles:         map[uint64]*tileBuf{},
		attrValuesIdx: map[string]int{},
		attrOffsetIdx: map[string]int{},
		coordsFileIdx: -1,
	}
	if w.sparse {
		w.capacity = int64(sch.Capacity)
		w.sparseFiller = coordalg.NewSparseTileFiller(sch.Capacity)
	} else {
		w.capacity = sch.TileCapacity()
	}

	w.fileNames, w.attrValuesIdx, w.attrOffsetIdx, w.coordsFileIdx = FileLayout(sch)

	return w, nil
}

// FileLayout returns the fixed, deterministic file order a fragment's data
// lives in: one values file per fixed-width attribute, an offsets file
// plus a values file per variable-length attribute, and — for sparse
// arrays — a trailing coordinates file. Every TileRecord's Offsets and
// Lengths are indexed in this order. Exported so fragreader can rebuild
// the identical layout without re-deriving it from the schema by hand.
func FileLayout(sch *schema.Schema) (fileNames []string, attrValuesIdx, attrOffsetIdx map[string]int, coordsFileIdx int) {
	attrValuesIdx = map[string]int{}
	attrOffsetIdx = map[string]int{}
	coordsFileIdx = -1

	for _, a := range sch.Attributes {
		if a.IsVariable() {
			attrOffsetIdx[a.Name] = len(fileNames)
			fileNames = append(fileNames, a.Name+".tdb")
			attrValuesIdx[a.Name] = len(fileNames)
			fileNames = append(fileNames, a.Name+"_var.tdb")
		} else {
			attrOffsetIdx[a.Name] = -1
			attrValuesIdx[a.Name] = len(fileNames)
			fileNames = append(fileNames, a.Name+".tdb")
		}
	}
	if sch.ArrayType == schema.Sparse {
		coordsFileIdx = len(fileNames)
		fileNames = append(fileNames, "__coords.tdb")
	}
	return fileNames, attrValuesIdx, attrOffsetIdx, coordsFileIdx
}

// Dir returns the fragment directory path.
func (w *Writer) Dir() string { return w.dir }

// Submit adds n cells to the fragment, where n = len(coords)/rank. attrs
// must carry an entry for every attribute in the schema, each with exactly
// n cells' worth of values.
func (w *Writer) Submit(ctx context.Context, coords []int64, attrs map[string]AttrInput) error {
	if w.finalized {
		return errs.New(errs.InvalidArgument, "fragwriter: Submit called after Finalize")
	}
	rank := w.schema.Rank()
	if rank == 0 || len(coords)%rank != 0 {
		return errs.Newf(errs.InvalidArgument, "fragwriter: coords length %d is not a multiple of rank %d", len(coords), rank)
	}
	n := len(coords) / rank

	cellValues := make([]map[string][]byte, n)
	for i := range cellValues {
		cellValues[i] = map[string][]byte{}
	}
	for _, a := range w.schema.Attributes {
		in, ok := attrs[a.Name]
		if !ok {
			return errs.Newf(errs.InvalidArgument, "fragwriter: missing values for attribute %q", a.Name)
		}
		if a.IsVariable() {
			if len(in.Offsets) != n {
				return errs.Newf(errs.InvalidArgument, "fragwriter: attribute %q has %d offsets, expected %d", a.Name, len(in.Offsets), n)
			}
			for i := 0; i < n; i++ {
				start := in.Offsets[i]
				end := uint64(len(in.Values))
				if i+1 < n {
					end = in.Offsets[i+1]
				}
				if start > end || end > uint64(len(in.Values)) {
					return errs.Newf(errs.InvalidArgument, "fragwriter: attribute %q cell %d has invalid offset range [%d,%d)", a.Name, i, start, end)
				}
				cellValues[i][a.Name] = in.Values[start:end]
			}
		} else {
			elemSize := a.Type.Size() * int(a.CellValNum)
			if len(in.Values) != n*elemSize {
				return errs.Newf(errs.InvalidArgument, "fragwriter: attribute %q has %d bytes, expected %d", a.Name, len(in.Values), n*elemSize)
			}
			for i := 0; i < n; i++ {
				cellValues[i][a.Name] = in.Values[i*elemSize : (i+1)*elemSize]
			}
		}
	}

	dims := w.schema.Dimensions
	for i := 0; i < n; i++ {
		coord := coords[i*rank : (i+1)*rank]
		if err := w.schema.Contains(coord); err != nil {
			return err
		}

		var tileID uint64
		var key uint64
		if w.sparse {
			var sealed bool
			tileID, sealed = w.sparseFiller.Place()
			rec := cellRec{coord: append([]int64(nil), coord...), values: cellValues[i]}
			tb := w.tiles[tileID]
			if tb == nil {
				tb = &tileBuf{}
				w.tiles[tileID] = tb
			}
			tb.cells = append(tb.cells, rec)
			if sealed {
				w.sealedSparse = append(w.sealedSparse, tileID)
			}
		} else {
			var err error
			tileID, err = w.tileLayout.TileID(coord, dims)
			if err != nil {
				return err
			}
			tc := make([]int64, rank)
			for d := range dims {
				tc[d] = (coord[d] - dims[d].Lo) / dims[d].TileExtent
			}
			tileLo := coordalg.TileLo(tc, dims)
			key, err = w.layout.Key(coord, tileLo, dims)
			if err != nil {
				return err
			}
			tb := w.tiles[tileID]
			if tb == nil {
				tb = &tileBuf{}
				w.tiles[tileID] = tb
			}
			tb.cells = append(tb.cells, cellRec{coord: append([]int64(nil), coord...), key: key, values: cellValues[i]})
		}
	}

	w.bufferedBytes += n * estimateCellBytes(w.schema)
	if int64(w.bufferedBytes) > w.cfg.InMemorySortThresholdBytes {
		if err := w.spill(ctx); err != nil {
			return err
		}
	}
	return nil
}

func estimateCellBytes(sch *schema.Schema) int {
	n := 8 * sch.Rank()
	for _, a := range sch.Attributes {
		if a.IsVariable() {
			n += 16 // rough per-cell estimate; exact accounting happens at flush
		} else {
			n += a.Type.Size() * int(a.CellValNum)
		}
	}
	return n
}

// spill eagerly flushes every tile that cannot grow any further — full
// dense tiles, and sparse tiles the filler has already sealed — bounding
// resident memory the way fragment.go bounds it by flushing blocks once
// their row count crosses MaxOpN, rather than waiting for the write
// session to end.
func (w *Writer) spill(ctx context.Context) error {
	var ready []uint64
	if w.sparse {
		ready = w.sealedSparse
		w.sealedSparse = nil
	} else {
		capacity := w.capacity
		for id, tb := range w.tiles {
			if int64(len(tb.cells)) >= capacity {
				ready = append(ready, id)
			}
		}
	}
	if len(ready) == 0 {
		return nil
	}
	if err := w.flushTiles(ctx, ready); err != nil {
		return err
	}
	w.bufferedBytes = 0
	for _, tb := range w.tiles {
		w.bufferedBytes += tb.bytes()
	}
	return nil
}

// framedTile holds one tile's fully compressed, ready-to-append bytes for
// every file, computed off the write path so Finalize can parallelize
// compression across tiles before appending anything.
type framedTile struct {
	tileID    uint64
	bounds    []int64
	mbr       []int64
	cellCount uint64
	fileBytes [][]byte
}

func (w *Writer) flushTiles(ctx context.Context, tileIDs []uint64) error {
	sort.Slice(tileIDs, func(i, j int) bool { return tileIDs[i] < tileIDs[j] })

	framed := make([]*framedTile, len(tileIDs))
	fns := make([]func(context.Context) error, len(tileIDs))
	for i, id := range tileIDs {
		i, id := i, id
		tb := w.tiles[id]
		fns[i] = func(ctx context.Context) error {
			ft, err := w.frameTile(id, tb)
			if err != nil {
				return err
			}
			framed[i] = ft
			return nil
		}
	}
	if err := w.pool.Go(ctx, fns); err != nil {
		return err
	}

	for i, id := range tileIDs {
		if err := w.appendFramedTile(ctx, framed[i]); err != nil {
			return err
		}
		delete(w.tiles, id)
	}
	return nil
}

func (w *Writer) frameTile(tileID uint64, tb *tileBuf) (*framedTile, error) {
	rank := w.schema.Rank()
	cells := tb.cells
	if !w.sparse {
		sorted := append([]cellRec(nil), cells...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].key < sorted[j].key })
		cells = sorted
	}

	bounds := boundsForTile(w, tileID, rank)
	mbr := mbrOf(cells, rank)

	fileBytes := make([][]byte, len(w.fileNames))
	for _, a := range w.schema.Attributes {
		if a.IsVariable() {
			offsets := make([]uint64, len(cells))
			var values bytes.Buffer
			for i, c := range cells {
				offsets[i] = uint64(values.Len())
				values.Write(c.values[a.Name])
			}
			offBytes, err := codec.Frame(a.Compressor, uint64sToBytes(offsets), int(a.Level))
			if err != nil {
				return nil, err
			}
			valBytes, err := codec.Frame(a.Compressor, values.Bytes(), int(a.Level))
			if err != nil {
				return nil, err
			}
			fileBytes[w.attrOffsetIdx[a.Name]] = offBytes
			fileBytes[w.attrValuesIdx[a.Name]] = valBytes
		} else {
			var raw bytes.Buffer
			for _, c := range cells {
				raw.Write(c.values[a.Name])
			}
			var framed []byte
			var err error
			if a.Compressor == codec.RLE {
				framed, err = codec.FrameWith(codec.NewRLE(a.Type.Size()), raw.Bytes(), int(a.Level))
			} else {
				framed, err = codec.Frame(a.Compressor, raw.Bytes(), int(a.Level))
			}
			if err != nil {
				return nil, err
			}
			fileBytes[w.attrValuesIdx[a.Name]] = framed
		}
	}
	if w.sparse {
		var raw bytes.Buffer
		for _, c := range cells {
			for _, v := range c.coord {
				var tmp [8]byte
				binary.LittleEndian.PutUint64(tmp[:], uint64(v))
				raw.Write(tmp[:])
			}
		}
		framed, err := codec.Frame(codec.None, raw.Bytes(), 0)
		if err != nil {
			return nil, err
		}
		fileBytes[w.coordsFileIdx] = framed
	}

	return &framedTile{
		tileID:    tileID,
		bounds:    bounds,
		mbr:       mbr,
		cellCount: uint64(len(cells)),
		fileBytes: fileBytes,
	}, nil
}

func boundsForTile(w *Writer, tileID uint64, rank int) []int64 {
	if w.sparse {
		return nil // filled in from mbr by appendFramedTile
	}
	dims := w.schema.Dimensions
	nt := make([]int64, rank)
	for i, d := range dims {
		nt[i] = d.NumTiles()
	}
	tc := make([]int64, rank)
	remaining := int64(tileID)
	// Inverts TileID's stride accumulation: row-major gives the last
	// dimension stride 1, column-major and Hilbert give the first
	// dimension stride 1.
	if w.tileLayout.Order() == schema.RowMajor {
		for i := rank - 1; i >= 0; i-- {
			tc[i] = remaining % nt[i]
			remaining /= nt[i]
		}
	} else {
		for i := 0; i < rank; i++ {
			tc[i] = remaining % nt[i]
			remaining /= nt[i]
		}
	}
	lo := coordalg.TileLo(tc, dims)
	bounds := make([]int64, 2*rank)
	for i := range dims {
		bounds[2*i] = lo[i]
		bounds[2*i+1] = lo[i] + dims[i].TileExtent - 1
	}
	return bounds
}

func mbrOf(cells []cellRec, rank int) []int64 {
	if len(cells) == 0 {
		return make([]int64, 2*rank)
	}
	mbr := make([]int64, 2*rank)
	for i := 0; i < rank; i++ {
		mbr[2*i] = cells[0].coord[i]
		mbr[2*i+1] = cells[0].coord[i]
	}
	for _, c := range cells[1:] {
		for i := 0; i < rank; i++ {
			if c.coord[i] < mbr[2*i] {
				mbr[2*i] = c.coord[i]
			}
			if c.coord[i] > mbr[2*i+1] {
				mbr[2*i+1] = c.coord[i]
			}
		}
	}
	return mbr
}

func uint64sToBytes(vals []uint64) []byte {
	out := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(out[i*8:], v)
	}
	return out
}

// appendFramedTile appends a tile's per-file framed bytes to their files in
// fixed file order, recording the offset (the file's length before this
// append) and length in the running book-keeping record. Sequential by
// design: offsets must reflect actual append order.
func (w *Writer) appendFramedTile(ctx context.Context, ft *framedTile) error {
	if w.bk == nil {
		w.bk = bookkeeping.New(w.schema.Rank(), w.sparse, len(w.fileNames))
		w.fileOffsets = make([]uint64, len(w.fileNames))
	}
	bounds := ft.bounds
	if w.sparse {
		bounds = append([]int64(nil), ft.mbr...)
	}

	offsets := make([]uint64, len(w.fileNames))
	lengths := make([]uint64, len(w.fileNames))
	for i, name := range w.fileNames {
		buf := ft.fileBytes[i]
		offsets[i] = w.fileOffsets[i]
		lengths[i] = uint64(len(buf))
		if err := w.fs.Append(ctx, w.dir+"/"+name, buf); err != nil {
			return errs.Wrapf(err, errs.IO, "fragwriter: append to %s", name)
		}
		w.fileOffsets[i] += uint64(len(buf))
	}

	w.bk.Append(bookkeeping.TileRecord{
		Offsets:   offsets,
		Lengths:   lengths,
		Bounds:    bounds,
		MBR:       ft.mbr,
		CellCount: ft.cellCount,
	})
	return nil
}

// Finalize flushes every remaining buffered tile, writes the gzip-wrapped
// book-keeping file, commits every data file, and writes the sentinel last.
func (w *Writer) Finalize(ctx context.Context) error {
	if w.finalized {
		return errs.New(errs.InvalidArgument, "fragwriter: Finalize called twice")
	}
	w.finalized = true

	var remaining []uint64
	for id := range w.tiles {
		remaining = append(remaining, id)
	}
	if err := w.flushTiles(ctx, remaining); err != nil {
		return err
	}

	if w.bk == nil {
		// No cells were ever submitted; still a valid, empty fragment.
		w.bk = bookkeeping.New(w.schema.Rank(), w.sparse, len(w.fileNames))
	}

	for _, name := range w.fileNames {
		if err := w.fs.Commit(ctx, w.dir+"/"+name); err != nil {
			return errs.Wrapf(err, errs.IO, "fragwriter: commit %s", name)
		}
	}

	bkBytes, err := w.bk.Marshal()
	if err != nil {
		return err
	}
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(bkBytes); err != nil {
		return errs.Wrap(err, errs.IO, "fragwriter: gzip book-keeping")
	}
	if err := zw.Close(); err != nil {
		return errs.Wrap(err, errs.IO, "fragwriter: gzip book-keeping")
	}
	bkPath := w.dir + "/" + bookkeeping.FileName
	if err := w.fs.Append(ctx, bkPath, gz.Bytes()); err != nil {
		return errs.Wrap(err, errs.IO, "fragwriter: write book-keeping")
	}
	if err := w.fs.Commit(ctx, bkPath); err != nil {
		return errs.Wrap(err, errs.IO, "fragwriter: commit book-keeping")
	}

	sentinelPath := w.dir + "/" + SentinelName
	if err := w.fs.Append(ctx, sentinelPath, nil); err != nil {
		return errs.Wrap(err, errs.IO, "fragwriter: write sentinel")
	}
	if err := w.fs.Commit(ctx, sentinelPath); err != nil {
		return errs.Wrap(err, errs.IO, "fragwriter: commit sentinel")
	}

	w.logger.Infof("finalized fragment %s: %d tiles, %d cells", w.dir, w.bk.NumTiles(), w.bk.TotalCells())
	return nil
}
