// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package coordalg

import "github.com/moleculax/tileengine/schema"

func init() { Register(hilbertLayout{}) }

// hilbertBits is the number of bits used per dimension when computing a
// Hilbert distance. A tile extent must fit in this many bits; extents up to
// 65536 per dimension are supported.
const hilbertBits = 16

// hilbertLayout orders cells within a tile by their Hilbert curve distance
//: "precompute the Hilbert index of c over the tile; sort
// cells by that index before serializing." TileID still places tiles on the
// regular dense grid — only intra-tile ordering is space-filling-curve
// based.
type hilbertLayout struct{}

func (hilbertLayout) Order() schema.Order { return schema.Hilbert }

func (hilbertLayout) TileID(coord []int64, dims []schema.Dimension) (uint64, error) {
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

func (hilbertLayout) Key(coord []int64, tileLo []int64, dims []schema.Dimension) (uint64, error) {
	if err := checkRank(coord, dims); err != nil {
		return 0, err
	}
	local := make([]uint64, len(dims))
	for i := range dims {
		local[i] = uint64(coord[i] - tileLo[i])
	}
	return hilbertDistance(hilbertBits, local), nil
}

// hilbertDistance computes the distance along an n-dimensional Hilbert
// curve for point x, each coordinate using the given number of bits. This
// is Skilling's transpose-based axes-to-distance algorithm ("Programming
// the Hilbert Curve", AIP Conf. Proc. 707, 2004), which runs in O(bits*n)
// without recursion.
func hilbertDistance(bits int, x []uint64) uint64 {
	n := len(x)
	X := make([]uint64, n)
	copy(X, x)

	m := uint64(1) << uint(bits-1)

	// Inverse undo
	for q := m; q > 1; q >>= 1 {
		p := q - 1
		for i := 0; i < n; i++ {
			if X[i]&q != 0 {
				X[0] ^= p
			} else {
				t := (X[0] ^ X[i]) & p
				X[0] ^= t
				X[i] ^= t
			}
		}
	}

	// Gray encode
	for i := 1; i < n; i++ {
		X[i] ^= X[i-1]
	}
	var t uint64
	for q := m; q > 1; q >>= 1 {
		if X[n-1]&q != 0 {
			t ^= q - 1
		}
	}
	for i := 0; i < n; i++ {
		X[i] ^= t
	}

	// Pack the transpose form (n words of `bits` bits each) into a single
	// distance value, most significant bit first.
	var h uint64
	for b := bits - 1; b >= 0; b-- {
		for i := 0; i < n; i++ {
			h <<= 1
			h |= (X[i] >> uint(b)) & 1
		}
	}
	return h
}
