// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package coordalg

import "github.com/moleculax/tileengine/schema"

func init() { Register(rowMajorLayout{}) }

// rowMajorLayout implements row-major tile id and intra-tile position
// formulas: the last dimension varies fastest.
type rowMajorLayout struct{}

func (rowMajorLayout) Order() schema.Order { return schema.RowMajor }

func (rowMajorLayout) TileID(coord []int64, dims []schema.Dimension) (uint64, error) {
	if err := checkRank(coord, dims); err != nil {
		return 0, err
	}
	tc := tileCoord(coord, dims)
	nt := numTiles(dims)
	var id, stride int64 = 0, 1
	for i := len(dims) - 1; i >= 0; i-- {
		id += tc[i] * stride
		stride *= nt[i]
	}
	return uint64(id), nil
}

func (rowMajorLayout) Key(coord []int64, tileLo []int64, dims []schema.Dimension) (uint64, error) {
	if err := checkRank(coord, dims); err != nil {
		return 0, err
	}
	var pos, stride int64 = 0, 1
	for i := len(dims) - 1; i >= 0; i-- {
		pos += (coord[i] - tileLo[i]) * stride
		stride *= dims[i].TileExtent
	}
	return uint64(pos), nil
}
