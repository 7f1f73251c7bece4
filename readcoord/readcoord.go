// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package readcoord merges the per-fragment cell streams fragreader
// produces into one array-wide read: newest-fragment-wins dedup on
// duplicate coordinates, then a single global cell-order pass. Modeled on
// fragment.go's merge of several row sources keyed by the same (shard,
// row) identity, where the most recently written source wins a collision;
// here the identity is the cell coordinate and recency is the fragment's
// creation timestamp.
package readcoord

import (
	"bytes"
	"context"
	"encoding/binary"
	"sort"

	"github.com/moleculax/tileengine/coordalg"
	"github.com/moleculax/tileengine/errs"
	"github.com/moleculax/tileengine/fragreader"
	"github.com/moleculax/tileengine/fragwriter"
	"github.com/moleculax/tileengine/schema"
	"github.com/moleculax/tileengine/tilecache"
	"github.com/moleculax/tileengine/vfs"
)

// Coordinator scans an array's fragments and merges them into one ordered
// cell stream.
type Coordinator struct {
	fs         vfs.FS
	arrayPath  string
	schema     *schema.Schema
	cache      *tilecache.Cache
	layout     coordalg.Layout // cell order: intra-tile position
	tileLayout coordalg.Layout // tile order: which tile a coordinate belongs to
}

// Open prepares a Coordinator over an array's fragment directory. cache may
// be nil, in which case fragment reads are never cached.
func Open(ctx context.Context, fs vfs.FS, arrayPath string, sch *schema.Schema, cache *tilecache.Cache) (*Coordinator, error) {
	layout, err := coordalg.New(sch.CellOrder)
	if err != nil {
		return nil, err
	}
	tileLayout, err := coordalg.New(sch.TileOrder)
	if err != nil {
		return nil, err
	}
	return &Coordinator{fs: fs, arrayPath: arrayPath, schema: sch, cache: cache, layout: layout, tileLayout: tileLayout}, nil
}

// Scan returns every live cell in subarray carrying a value for every name
// in attrs, in the array's global cell order. A subarray with lo > hi on
// any dimension is empty and yields no cells without error; a subarray
// entirely outside the domain is an invalid argument; an array with no
// committed fragments yields no cells without error.
func (c *Coordinator) Scan(ctx context.Context, subarray []int64, attrs []string) ([]fragreader.Cell, error) {
	rank := c.schema.Rank()
	if len(subarray) != 2*rank {
		return nil, errs.Newf(errs.InvalidArgument, "readcoord: subarray has %d bounds, expected %d", len(subarray), 2*rank)
	}
	for i := 0; i < rank; i++ {
		if subarray[2*i] > subarray[2*i+1] {
			return nil, nil
		}
	}
	for i, d := range c.schema.Dimensions {
		if subarray[2*i+1] < d.Lo || subarray[2*i] > d.Hi {
			return nil, errs.Newf(errs.InvalidArgument, "readcoord: subarray dimension %q lies outside domain [%d,%d]", d.Name, d.Lo, d.Hi)
		}
	}

	frags, err := c.openLiveFragments(ctx)
	if err != nil {
		return nil, err
	}
	if len(frags) == 0 {
		return nil, nil
	}

	// Oldest first: later Put calls in the merge below overwrite earlier
	// ones, so the newest fragment's value survives a duplicate coordinate.
	sort.Slice(frags, func(i, j int) bool { return frags[i].Timestamp() < frags[j].Timestamp() })

	merged := map[string]fragreader.Cell{}
	for _, f := range frags {
		cells, err := f.Stream(ctx, subarray, attrs)
		if err != nil {
			return nil, err
		}
		for _, cell := range cells {
			merged[coordKey(cell.Coord)] = cell
		}
	}

	out := make([]fragreader.Cell, 0, len(merged))
	for _, cell := range merged {
		out = append(out, cell)
	}
	if err := c.sortGlobalOrder(out); err != nil {
		return nil, err
	}
	return out, nil
}

// openLiveFragments lists the array's fragment directories and opens the
// ones whose visibility sentinel is present, silently skipping any that
// crashed before their fragwriter.Finalize call committed.
func (c *Coordinator) openLiveFragments(ctx context.Context) ([]*fragreader.Fragment, error) {
	names, err := c.fs.List(ctx, c.arrayPath)
	if err != nil {
		return nil, errs.Wrap(err, errs.IO, "readcoord: list array directory")
	}

	var frags []*fragreader.Fragment
	for _, name := range names {
		dir := c.arrayPath + "/" + name
		isDir, err := c.fs.IsDir(ctx, dir)
		if err != nil {
			return nil, err
		}
		if !isDir {
			continue
		}
		ok, err := c.fs.IsFile(ctx, dir+"/"+fragwriter.SentinelName)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		f, err := fragreader.Open(ctx, c.fs, dir, c.schema, c.cache)
		if err != nil {
			return nil, err
		}
		frags = append(frags, f)
	}
	return frags, nil
}

func coordKey(coord []int64) string {
	var buf bytes.Buffer
	for _, v := range coord {
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(v))
		buf.Write(tmp[:])
	}
	return buf.String()
}

// sortGlobalOrder sorts cells in-place into the array's global cell order
//. Dense arrays have a regular tile grid, so the same
// (tile id, intra-tile key) pair the writer used to place each cell also
// totally orders it for reads. Sparse arrays have no such grid — a sparse
// tile is just "whichever capacity cells arrived next" — so sparse reads
// order directly by coordinate instead: lexicographically by dimension for
// row-major, by reversed dimension order for column-major. Hilbert-ordered
// sparse arrays fall back to the row-major coordinate compare: Hilbert
// here only orders cells within a dense tile's fixed interior, which a
// sparse array does not have.
func (c *Coordinator) sortGlobalOrder(cells []fragreader.Cell) error {
	if c.schema.ArrayType == schema.Sparse {
		order := c.schema.CellOrder
		sort.Slice(cells, func(i, j int) bool { return sparseCoordLess(order, cells[i].Coord, cells[j].Coord) })
		return nil
	}

	dims := c.schema.Dimensions
	keys := make([][2]uint64, len(cells))
	for i, cell := range cells {
		tileID, err := c.tileLayout.TileID(cell.Coord, dims)
		if err != nil {
			return err
		}
		lo := coordalg.TileLoOfCoord(cell.Coord, dims)
		key, err := c.layout.Key(cell.Coord, lo, dims)
		if err != nil {
			return err
		}
		keys[i] = [2]uint64{tileID, key}
	}
	sort.Sort(&byGlobalKey{cells: cells, keys: keys})
	return nil
}

func sparseCoordLess(order schema.Order, a, b []int64) bool {
	if order == schema.ColumnMajor {
		for i := len(a) - 1; i >= 0; i-- {
			if a[i] != b[i] {
				return a[i] < b[i]
			}
		}
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

type byGlobalKey struct {
	cells []fragreader.Cell
	keys  [][2]uint64
}

func (b *byGlobalKey) Len() int { return len(b.cells) }
func (b *byGlobalKey) Less(i, j int) bool {
	if b.keys[i][0] != b.keys[j][0] {
		return b.keys[i][0] < b.keys[j][0]
	}
	return b.keys[i][1] < b.keys[j][1]
}
func (b *byGlobalKey) Swap(i, j int) {
	b.cells[i], b.cells[j] = b.cells[j], b.cells[i]
	b.keys[i], b.keys[j] = b.keys[j], b.keys[i]
}

