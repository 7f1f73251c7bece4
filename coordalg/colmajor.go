// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package coordalg

import "github.com/moleculax/tileengine/schema"

func init() { Register(columnMajorLayout{}) }

// columnMajorLayout is row-major with the stride order swapped: the first
// dimension varies fastest.
type columnMajorLayout struct{}

func (columnMajorLayout) Order() schema.Order { return schema.ColumnMajor }

func (columnMajorLayout) TileID(coord []int64, dims []schema.Dimension) (uint64, error) {
	if err := checkRank(coord, dims); err != nil {
		return 0, err
	}
	tc := tileCoord(coord, dims)
	nt := numTiles(dims)
	var id, stride int64 = 0, 1
	for i := 0; i < len(dims); i++ {
		id += tc[i] * stride
		stride *= nt[i]
	}
	return uint64(id), nil
}

func (columnMajorLayout) Key(coord []int64, tileLo []int64, dims []schema.Dimension) (uint64, error) {
	if err := checkRank(coord, dims); err != nil {
		return 0, err
	}
	var pos, stride int64 = 0, 1
	for i := 0; i < len(dims); i++ {
		pos += (coord[i] - tileLo[i]) * stride
		stride *= dims[i].TileExtent
	}
	return uint64(pos), nil
}
