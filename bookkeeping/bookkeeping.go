// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package bookkeeping implements a fragment's book-keeping record: the sole
// authoritative index into its tiles. It is written once,
// at finalize, and never mutated afterward.
package bookkeeping

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/moleculax/tileengine/errs"
)

// Magic and Version identify the on-disk book-keeping format.
const (
	Magic   uint32 = 0x54444252 // "TDBR"
	Version uint32 = 1
)

// FileName is the name of the book-keeping file inside a fragment directory.
const FileName = "__book_keeping.tdb"

// TileRecord is one tile's entry: its byte range inside each per-file data
// stream the fragment writes (one per fixed-width attribute, an offsets file
// and a values file per variable-length attribute, plus the coordinates file
// for sparse fragments, in a fixed file order the writer and reader agree
// on), its bounding coordinates, and (for sparse fragments) the minimum
// bounding rectangle of the cell coordinates actually written into it.
type TileRecord struct {
	Offsets   []uint64 // one per file, in file order
	Lengths   []uint64 // one per file, in file order
	Bounds    []int64  // 2*rank: lo0,hi0,lo1,hi1,... — the tile's grid region (dense) or enclosing MBR (sparse)
	MBR       []int64  // 2*rank: actual min/max coordinate bounds of cells written into this tile
	CellCount uint64
}

// BookKeeping indexes a single fragment's tiles, in tile order. NumFiles is
// the number of per-tile offset/length entries each TileRecord carries —
// fixed for the life of the fragment once the first tile is appended.
type BookKeeping struct {
	Rank     int
	Sparse   bool
	NumFiles int
	Tiles    []TileRecord
}

// New returns an empty book-keeping record for a fragment of the given rank
// that will track numFiles parallel per-tile byte ranges.
func New(rank int, sparse bool, numFiles int) *BookKeeping {
	return &BookKeeping{Rank: rank, Sparse: sparse, NumFiles: numFiles}
}

// Append records one finalized tile.
func (b *BookKeeping) Append(tr TileRecord) {
	b.Tiles = append(b.Tiles, tr)
}

// NumTiles returns the number of tiles recorded.
func (b *BookKeeping) NumTiles() int { return len(b.Tiles) }

// TotalCells returns the sum of all tiles' cell counts.
func (b *BookKeeping) TotalCells() uint64 {
	var n uint64
	for _, t := range b.Tiles {
		n += t.CellCount
	}
	return n
}

// Marshal serializes b using the following layout:
//
//	[magic u32][version u32][rank u32][sparse_flag u8][num_files u32][#tiles u64]
//	[offsets... num_files*u64 per tile][lengths... num_files*u64 per tile]
//	[mbr... 2*rank*i64 per tile][bounds... 2*rank*i64 per tile][cell_counts... u64]
//	[checksum u64]
//
// checksum is an xxhash64 of everything before it, computed only in
// tiledebug builds; release builds write a zero trailer and Unmarshal
// skips verifying it.
func (b *BookKeeping) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	write := func(v interface{}) {
		binary.Write(&buf, binary.LittleEndian, v)
	}

	write(Magic)
	write(Version)
	write(uint32(b.Rank))
	write(boolByte(b.Sparse))
	write(uint32(b.NumFiles))
	write(uint64(len(b.Tiles)))

	for _, t := range b.Tiles {
		writeUint64s(&buf, b.NumFiles, t.Offsets)
	}
	for _, t := range b.Tiles {
		writeUint64s(&buf, b.NumFiles, t.Lengths)
	}
	for _, t := range b.Tiles {
		writeCoords(&buf, b.Rank, t.MBR)
	}
	for _, t := range b.Tiles {
		writeCoords(&buf, b.Rank, t.Bounds)
	}
	for _, t := range b.Tiles {
		write(t.CellCount)
	}
	write(checksum(buf.Bytes()))
	return buf.Bytes(), nil
}

func writeUint64s(buf *bytes.Buffer, want int, vals []uint64) {
	for i := 0; i < want; i++ {
		var v uint64
		if i < len(vals) {
			v = vals[i]
		}
		binary.Write(buf, binary.LittleEndian, v)
	}
}

func writeCoords(buf *bytes.Buffer, rank int, coords []int64) {
	want := 2 * rank
	for i := 0; i < want; i++ {
		var v int64
		if i < len(coords) {
			v = coords[i]
		}
		binary.Write(buf, binary.LittleEndian, v)
	}
}

func boolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

// Unmarshal reverses Marshal, validating magic and version, and (in
// tiledebug builds) the trailing checksum.
func Unmarshal(b []byte) (*BookKeeping, error) {
	if len(b) < 8 {
		return nil, errs.New(errs.Corruption, "bookkeeping: truncated payload")
	}
	payload, trailer := b[:len(b)-8], b[len(b)-8:]
	if checksumEnabled {
		want := binary.LittleEndian.Uint64(trailer)
		if got := checksum(payload); got != want {
			return nil, errs.Newf(errs.Corruption, "bookkeeping: checksum mismatch: got %x want %x", got, want)
		}
	}
	r := bytes.NewReader(payload)
	read := func(v interface{}) error {
		return binary.Read(r, binary.LittleEndian, v)
	}

	var magic, version, rank, numFiles uint32
	var sparseFlag uint8
	var numTiles uint64

	if err := read(&magic); err != nil {
		return nil, errs.Wrap(err, errs.Corruption, "bookkeeping: read magic")
	}
	if magic != Magic {
		return nil, errs.Newf(errs.Corruption, "bookkeeping: bad magic 0x%x", magic)
	}
	if err := read(&version); err != nil {
		return nil, errs.Wrap(err, errs.Corruption, "bookkeeping: read version")
	}
	if version != Version {
		return nil, errs.Newf(errs.Corruption, "bookkeeping: unsupported version %d", version)
	}
	if err := read(&rank); err != nil {
		return nil, errs.Wrap(err, errs.Corruption, "bookkeeping: read rank")
	}
	if err := read(&sparseFlag); err != nil {
		return nil, errs.Wrap(err, errs.Corruption, "bookkeeping: read sparse_flag")
	}
	if err := read(&numFiles); err != nil {
		return nil, errs.Wrap(err, errs.Corruption, "bookkeeping: read num_files")
	}
	if err := read(&numTiles); err != nil {
		return nil, errs.Wrap(err, errs.Corruption, "bookkeeping: read #tiles")
	}

	out := &BookKeeping{Rank: int(rank), Sparse: sparseFlag != 0, NumFiles: int(numFiles), Tiles: make([]TileRecord, numTiles)}

	for i := range out.Tiles {
		offs, err := readUint64s(r, int(numFiles))
		if err != nil {
			return nil, errs.Wrap(err, errs.Corruption, "bookkeeping: read offsets")
		}
		out.Tiles[i].Offsets = offs
	}
	for i := range out.Tiles {
		lens, err := readUint64s(r, int(numFiles))
		if err != nil {
			return nil, errs.Wrap(err, errs.Corruption, "bookkeeping: read lengths")
		}
		out.Tiles[i].Lengths = lens
	}
	for i := range out.Tiles {
		mbr, err := readCoords(r, int(rank))
		if err != nil {
			return nil, errs.Wrap(err, errs.Corruption, "bookkeeping: read mbr")
		}
		out.Tiles[i].MBR = mbr
	}
	for i := range out.Tiles {
		bounds, err := readCoords(r, int(rank))
		if err != nil {
			return nil, errs.Wrap(err, errs.Corruption, "bookkeeping: read bounds")
		}
		out.Tiles[i].Bounds = bounds
	}
	for i := range out.Tiles {
		if err := read(&out.Tiles[i].CellCount); err != nil {
			return nil, errs.Wrap(err, errs.Corruption, "bookkeeping: read cell_count")
		}
	}
	return out, nil
}

func readUint64s(r io.Reader, n int) ([]uint64, error) {
	out := make([]uint64, n)
	for i := range out {
		if err := binary.Read(r, binary.LittleEndian, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readCoords(r io.Reader, rank int) ([]int64, error) {
	out := make([]int64, 2*rank)
	for i := range out {
		if err := binary.Read(r, binary.LittleEndian, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Intersects reports whether a tile's bounds overlap the subarray
// (2*rank: lo0,hi0,lo1,hi1,...), used by the fragment reader's dense tile
// selection.
func (t TileRecord) Intersects(subarray []int64, rank int) bool {
	for i := 0; i < rank; i++ {
		tlo, thi := t.Bounds[2*i], t.Bounds[2*i+1]
		slo, shi := subarray[2*i], subarray[2*i+1]
		if thi < slo || tlo > shi {
			return false
		}
	}
	return true
}

// IntersectsMBR is like Intersects but checks the tile's actual cell MBR,
// used for sparse tile selection.
func (t TileRecord) IntersectsMBR(subarray []int64, rank int) bool {
	for i := 0; i < rank; i++ {
		tlo, thi := t.MBR[2*i], t.MBR[2*i+1]
		slo, shi := subarray[2*i], subarray[2*i+1]
		if thi < slo || tlo > shi {
			return false
		}
	}
	return true
}
