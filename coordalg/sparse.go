// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package coordalg

// SparseTileFiller assigns arriving cells to sparse tiles in write order,
// sealing a tile once it reaches capacity.
type SparseTileFiller struct {
	capacity uint64
	count    uint64
	tileID   uint64
}

// NewSparseTileFiller returns a filler that seals a tile every capacity
// cells.
func NewSparseTileFiller(capacity uint64) *SparseTileFiller {
	return &SparseTileFiller{capacity: capacity}
}

// Place returns the tile id for the next cell and whether placing it filled
// the tile to capacity (the caller should seal the tile and start a new one
// when sealed is true).
func (f *SparseTileFiller) Place() (tileID uint64, sealed bool) {
	tileID = f.tileID
	f.count++
	if f.count >= f.capacity {
		f.count = 0
		f.tileID++
		sealed = true
	}
	return tileID, sealed
}

// CurrentTileID returns the id of the tile currently filling.
func (f *SparseTileFiller) CurrentTileID() uint64 { return f.tileID }

// CurrentCount returns the number of cells placed into the current,
// not-yet-sealed tile.
func (f *SparseTileFiller) CurrentCount() uint64 { return f.count }
