// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package coordalg implements the coordinate algebra that maps a cell
// coordinate to its tile and its position within that tile.
// Layout implementations are registered by schema.Order, mirroring
// storage.go's small-interface-plus-registry pattern for pluggable
// backends (RegisterStorage/NewStorage).
package coordalg

import (
	"github.com/moleculax/tileengine/errs"
	"github.com/moleculax/tileengine/schema"
)

// Layout computes tile placement for one cell/tile ordering.
type Layout interface {
	Order() schema.Order

	// TileID returns the dense tile grid index containing coord, under this
	// layout's tile ordering.
	TileID(coord []int64, dims []schema.Dimension) (uint64, error)

	// Key returns a value that totally orders cells within a tile: for
	// row-major/column-major this is the cell's fixed position in the tile;
	// for Hilbert order it is the cell's Hilbert distance, which the caller
	// sorts by before assigning sequential positions.
	Key(coord []int64, tileLo []int64, dims []schema.Dimension) (uint64, error)
}

var registry = map[schema.Order]Layout{}

// Register adds a Layout to the closed registry, keyed by the order it
// implements. Called from each layout implementation file's init().
func Register(l Layout) {
	registry[l.Order()] = l
}

// New returns the Layout registered for order.
func New(order schema.Order) (Layout, error) {
	l, ok := registry[order]
	if !ok {
		return nil, errs.Newf(errs.InvalidArgument, "unknown cell/tile order %d", order)
	}
	return l, nil
}

// numTiles returns the number of tiles along each dimension.
func numTiles(dims []schema.Dimension) []int64 {
	n := make([]int64, len(dims))
	for i, d := range dims {
		n[i] = d.NumTiles()
	}
	return n
}

// tileCoord returns the tile-grid coordinate (not cell coordinate) of coord
// along each dimension.
func tileCoord(coord []int64, dims []schema.Dimension) []int64 {
	tc := make([]int64, len(dims))
	for i, d := range dims {
		tc[i] = (coord[i] - d.Lo) / d.TileExtent
	}
	return tc
}

// TileLo returns the lowest cell coordinate covered by tile tc (the tile
// grid coordinate produced by tileCoord), one component per dimension.
func TileLo(tc []int64, dims []schema.Dimension) []int64 {
	lo := make([]int64, len(dims))
	for i, d := range dims {
		lo[i] = d.Lo + tc[i]*d.TileExtent
	}
	return lo
}

// TileLoOfCoord returns the lowest cell coordinate of the dense tile that
// contains coord, combining tileCoord and TileLo for callers outside this
// package that only have the cell coordinate on hand.
func TileLoOfCoord(coord []int64, dims []schema.Dimension) []int64 {
	return TileLo(tileCoord(coord, dims), dims)
}

func checkRank(coord []int64, dims []schema.Dimension) error {
	if len(coord) != len(dims) {
		return errs.Newf(errs.InvalidArgument, "coordinate has %d components, expected %d", len(coord), len(dims))
	}
	return nil
}
