// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package schema

import "github.com/moleculax/tileengine/errs"

// Datatype is the closed set of scalar element types an attribute can carry.
type Datatype uint8

const (
	DatatypeInt8 Datatype = iota + 1
	DatatypeInt16
	DatatypeInt32
	DatatypeInt64
	DatatypeUint8
	DatatypeUint16
	DatatypeUint32
	DatatypeUint64
	DatatypeFloat32
	DatatypeFloat64
	DatatypeChar // fixed-length text
)

// Size returns the fixed byte width of one scalar value of d.
func (d Datatype) Size() int {
	switch d {
	case DatatypeInt8, DatatypeUint8, DatatypeChar:
		return 1
	case DatatypeInt16, DatatypeUint16:
		return 2
	case DatatypeInt32, DatatypeUint32, DatatypeFloat32:
		return 4
	case DatatypeInt64, DatatypeUint64, DatatypeFloat64:
		return 8
	default:
		return 0
	}
}

// IsFloat reports whether d is one of the floating-point types.
func (d Datatype) IsFloat() bool {
	return d == DatatypeFloat32 || d == DatatypeFloat64
}

func (d Datatype) String() string {
	switch d {
	case DatatypeInt8:
		return "int8"
	case DatatypeInt16:
		return "int16"
	case DatatypeInt32:
		return "int32"
	case DatatypeInt64:
		return "int64"
	case DatatypeUint8:
		return "uint8"
	case DatatypeUint16:
		return "uint16"
	case DatatypeUint32:
		return "uint32"
	case DatatypeUint64:
		return "uint64"
	case DatatypeFloat32:
		return "float32"
	case DatatypeFloat64:
		return "float64"
	case DatatypeChar:
		return "char"
	default:
		return "unknown"
	}
}

// Validate returns an invalid-argument error if d is not one of the known
// datatypes.
func (d Datatype) Validate() error {
	if d < DatatypeInt8 || d > DatatypeChar {
		return errs.Newf(errs.InvalidArgument, "unknown datatype %d", d)
	}
	return nil
}
