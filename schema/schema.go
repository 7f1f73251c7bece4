// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package schema defines an array's immutable definition: dimensions,
// attributes, domain, tile extents, cell/tile order, and per-attribute
// compression. It is created once, serialized to __array_schema.tdb, and
// cached for the array's lifetime.
package schema

import (
	"fmt"

	"github.com/moleculax/tileengine/codec"
	"github.com/moleculax/tileengine/errs"
)

// ArrayType distinguishes dense from sparse arrays.
type ArrayType uint8

const (
	Dense ArrayType = iota
	Sparse
)

// CellOrder and TileOrder share the same closed set of traversal orders.
type Order uint8

const (
	RowMajor Order = iota
	ColumnMajor
	Hilbert
)

// ReservedCoordsAttr is the reserved attribute name referring to the
// coordinate attribute of sparse arrays.
const ReservedCoordsAttr = "__coords"

// Dimension is a named axis with a closed domain [Lo, Hi] and, for dense
// arrays, a tile extent.
type Dimension struct {
	Name       string
	Lo, Hi     int64
	TileExtent int64 // dense arrays only; ignored for cell placement in sparse arrays
}

// Extent returns the number of integer coordinates covered by the
// dimension's domain, inclusive of both ends.
func (d Dimension) Extent() int64 {
	return d.Hi - d.Lo + 1
}

// NumTiles returns how many tiles the dimension's domain is divided into, for
// dense arrays where TileExtent evenly divides Extent.
func (d Dimension) NumTiles() int64 {
	if d.TileExtent <= 0 {
		return 0
	}
	return (d.Extent() + d.TileExtent - 1) / d.TileExtent
}

// Attribute is a named value carrier: a scalar element type, a cell
// multiplicity (fixed k, or variable when CellValNum == 0), and an optional
// compressor.
type Attribute struct {
	Name       string
	Type       Datatype
	CellValNum uint32 // 0 means variable-length
	Compressor codec.CodecID
	Level      int32
}

// IsVariable reports whether the attribute carries a variable number of
// values per cell.
func (a Attribute) IsVariable() bool { return a.CellValNum == 0 }

// Description is the declarative input to New: everything needed to define
// an array before it is persisted.
type Description struct {
	ArrayType   ArrayType
	Dimensions  []Dimension
	Attributes  []Attribute
	CellOrder   Order
	TileOrder   Order
	Capacity    uint64 // sparse arrays only
}

// Schema is an array's validated, immutable definition.
type Schema struct {
	ArrayType  ArrayType
	Dimensions []Dimension
	Attributes []Attribute
	CellOrder  Order
	TileOrder  Order
	Capacity   uint64
}

// New validates a Description and returns the resulting Schema. Validation
// at creation enforces:
//   - dense arrays require all tile extents > 0 and to evenly divide their
//     dimension's extent
//   - sparse arrays require capacity > 0 and ignore tile extents for cell
//     placement; extents are stored but not used for sparse MBRs, which
//     are the exact bounding box of each tile's coordinates
//   - attribute names must be unique and may not be the reserved __coords
//     name
func New(d Description) (*Schema, error) {
	if len(d.Dimensions) == 0 {
		return nil, errs.New(errs.InvalidArgument, "schema requires at least one dimension")
	}
	if len(d.Attributes) == 0 {
		return nil, errs.New(errs.InvalidArgument, "schema requires at least one attribute")
	}

	for _, dim := range d.Dimensions {
		if dim.Hi < dim.Lo {
			return nil, errs.Newf(errs.InvalidArgument, "dimension %q has empty domain [%d,%d]", dim.Name, dim.Lo, dim.Hi)
		}
		if d.ArrayType == Dense {
			if dim.TileExtent <= 0 {
				return nil, errs.Newf(errs.InvalidArgument, "dense dimension %q requires tile extent > 0", dim.Name)
			}
			if dim.Extent()%dim.TileExtent != 0 {
				return nil, errs.Newf(errs.InvalidArgument, "dense dimension %q tile extent %d does not divide domain extent %d", dim.Name, dim.TileExtent, dim.Extent())
			}
		}
	}

	if d.ArrayType == Sparse && d.Capacity == 0 {
		return nil, errs.New(errs.InvalidArgument, "sparse array requires capacity > 0")
	}

	seen := make(map[string]bool, len(d.Attributes))
	for _, a := range d.Attributes {
		if a.Name == ReservedCoordsAttr {
			return nil, errs.Newf(errs.InvalidArgument, "attribute name %q is reserved", ReservedCoordsAttr)
		}
		if seen[a.Name] {
			return nil, errs.Newf(errs.InvalidArgument, "duplicate attribute name %q", a.Name)
		}
		seen[a.Name] = true
		if err := a.Type.Validate(); err != nil {
			return nil, err
		}
		if !codec.IsRegistered(a.Compressor) {
			return nil, errs.Newf(errs.InvalidArgument, "unknown compressor %d for attribute %q", a.Compressor, a.Name)
		}
	}

	return &Schema{
		ArrayType:  d.ArrayType,
		Dimensions: append([]Dimension(nil), d.Dimensions...),
		Attributes: append([]Attribute(nil), d.Attributes...),
		CellOrder:  d.CellOrder,
		TileOrder:  d.TileOrder,
		Capacity:   d.Capacity,
	}, nil
}

// Rank is the number of dimensions.
func (s *Schema) Rank() int { return len(s.Dimensions) }

// Attribute looks up an attribute by name.
func (s *Schema) Attribute(name string) (Attribute, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// AttributeIndex returns the ordinal position of an attribute, or -1.
func (s *Schema) AttributeIndex(name string) int {
	for i, a := range s.Attributes {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// Contains reports whether coord lies within every dimension's domain.
func (s *Schema) Contains(coord []int64) error {
	if len(coord) != s.Rank() {
		return errs.Newf(errs.InvalidArgument, "coordinate has %d components, schema has rank %d", len(coord), s.Rank())
	}
	for i, dim := range s.Dimensions {
		if coord[i] < dim.Lo || coord[i] > dim.Hi {
			return errs.Newf(errs.InvalidArgument, "coordinate %v out of domain for dimension %q [%d,%d]", coord, dim.Name, dim.Lo, dim.Hi)
		}
	}
	return nil
}

// TileCapacity returns the number of cells per dense tile (the product of
// all tile extents). Only meaningful for Dense arrays.
func (s *Schema) TileCapacity() int64 {
	n := int64(1)
	for _, dim := range s.Dimensions {
		n *= dim.TileExtent
	}
	return n
}

func (s *Schema) String() string {
	return fmt.Sprintf("Schema{rank=%d attrs=%d type=%v}", s.Rank(), len(s.Attributes), s.ArrayType)
}
