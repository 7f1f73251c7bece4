// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package coordalg

import (
	"sort"

	"github.com/moleculax/tileengine/errs"
	"github.com/moleculax/tileengine/schema"
)

// LocalCoordFromPosition inverts Key for row-major and column-major order,
// turning a tile-relative serial position back into the tile-relative
// coordinate (one component per dimension, 0 <= component < extent) that
// produced it. Used by the fragment reader to decode a dense tile's value
// slots back into coordinates without carrying an explicit coordinate
// stream for dense fragments.
//
// Hilbert order has no such closed form: position is the cell's rank among
// the Hilbert distances of the cells actually present, not a function of
// the distance alone. Callers decoding Hilbert-ordered dense tiles should
// use TileCellOrder instead, which only holds for a fully populated tile.
func LocalCoordFromPosition(order schema.Order, pos int64, dims []schema.Dimension) ([]int64, error) {
	local := make([]int64, len(dims))
	switch order {
	case schema.RowMajor:
		remaining := pos
		for i := len(dims) - 1; i >= 0; i-- {
			e := dims[i].TileExtent
			local[i] = remaining % e
			remaining /= e
		}
	case schema.ColumnMajor:
		remaining := pos
		for i := 0; i < len(dims); i++ {
			e := dims[i].TileExtent
			local[i] = remaining % e
			remaining /= e
		}
	default:
		return nil, errs.Newf(errs.InvalidArgument, "order %d has no closed-form position inverse", order)
	}
	return local, nil
}

// TileCellOrder enumerates every local coordinate of one full tile (every
// combination of 0 <= component < dims[i].TileExtent) and returns them
// sorted by ascending Key under layout. Index i of the result is the
// tile-relative coordinate serialized at position i when the tile is
// completely filled. Valid for any layout, including Hilbert, but only
// when the tile holds exactly Πdims[i].TileExtent cells — a partially
// filled Hilbert-ordered tile cannot be decoded this way, since the rank
// of a cell's Hilbert distance among a partial cell set depends on which
// cells are present.
func TileCellOrder(layout Layout, dims []schema.Dimension) ([][]int64, error) {
	zero := make([]int64, len(dims))
	unit := make([]schema.Dimension, len(dims))
	for i, d := range dims {
		unit[i] = schema.Dimension{Name: d.Name, Lo: 0, Hi: d.TileExtent - 1, TileExtent: d.TileExtent}
	}

	var all [][]int64
	cur := make([]int64, len(dims))
	var walk func(i int) error
	walk = func(i int) error {
		if i == len(dims) {
			all = append(all, append([]int64(nil), cur...))
			return nil
		}
		for c := int64(0); c < unit[i].TileExtent; c++ {
			cur[i] = c
			if err := walk(i + 1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(0); err != nil {
		return nil, err
	}

	keys := make([]uint64, len(all))
	for i, c := range all {
		k, err := layout.Key(c, zero, unit)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return sortByKey(all, keys), nil
}

// sortByKey returns coords reordered by ascending parallel key.
func sortByKey(coords [][]int64, keys []uint64) [][]int64 {
	idx := make([]int, len(coords))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return keys[idx[i]] < keys[idx[j]] })
	out := make([][]int64, len(coords))
	for i, j := range idx {
		out[i] = coords[j]
	}
	return out
}
