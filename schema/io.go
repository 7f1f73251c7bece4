// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package schema

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/moleculax/tileengine/codec"
	"github.com/moleculax/tileengine/errs"
)

// Magic and Version identify the on-disk schema format. Version
// must be bumped whenever the codec set changes.
const (
	Magic   uint32 = 0x54444253 // "TDBS"
	Version uint32 = 1
)

// SchemaFileName is the name of the schema file inside an array directory.
const SchemaFileName = "__array_schema.tdb"

// Marshal serializes s using the following layout:
//
//	[magic u32][version u32][array_type u8][rank u32][dim_names... len-prefixed]
//	[domain... 2*rank*T][tile_extents... rank*T][cell_order u8][tile_order u8]
//	[capacity u64][#attrs u32][per-attr record...]
//
// Per-attr record: [name len-prefixed][type u8][cell_val_num u32][compressor u8][level i32]
func (s *Schema) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	write := func(v interface{}) {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	writeString := func(str string) {
		write(uint32(len(str)))
		buf.WriteString(str)
	}

	write(Magic)
	write(Version)
	write(uint8(s.ArrayType))
	write(uint32(s.Rank()))
	for _, dim := range s.Dimensions {
		writeString(dim.Name)
	}
	for _, dim := range s.Dimensions {
		write(dim.Lo)
		write(dim.Hi)
	}
	for _, dim := range s.Dimensions {
		write(dim.TileExtent)
	}
	write(uint8(s.CellOrder))
	write(uint8(s.TileOrder))
	write(s.Capacity)
	write(uint32(len(s.Attributes)))
	for _, a := range s.Attributes {
		writeString(a.Name)
		write(uint8(a.Type))
		write(a.CellValNum)
		write(uint8(a.Compressor))
		write(a.Level)
	}
	return buf.Bytes(), nil
}

// Unmarshal reverses Marshal, validating the magic and version headers.
func Unmarshal(b []byte) (*Schema, error) {
	r := bytes.NewReader(b)
	read := func(v interface{}) error {
		return binary.Read(r, binary.LittleEndian, v)
	}
	readString := func() (string, error) {
		var n uint32
		if err := read(&n); err != nil {
			return "", err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		return string(buf), nil
	}

	var magic, version uint32
	if err := read(&magic); err != nil {
		return nil, errs.Wrap(err, errs.Corruption, "schema: read magic")
	}
	if magic != Magic {
		return nil, errs.Newf(errs.Corruption, "schema: bad magic 0x%x", magic)
	}
	if err := read(&version); err != nil {
		return nil, errs.Wrap(err, errs.Corruption, "schema: read version")
	}
	if version != Version {
		return nil, errs.Newf(errs.Corruption, "schema: unsupported version %d", version)
	}

	var arrayType, cellOrder, tileOrder uint8
	var rank, numAttrs uint32
	var capacity uint64

	if err := read(&arrayType); err != nil {
		return nil, errs.Wrap(err, errs.Corruption, "schema: read array_type")
	}
	if err := read(&rank); err != nil {
		return nil, errs.Wrap(err, errs.Corruption, "schema: read rank")
	}

	names := make([]string, rank)
	for i := range names {
		name, err := readString()
		if err != nil {
			return nil, errs.Wrap(err, errs.Corruption, "schema: read dim name")
		}
		names[i] = name
	}

	dims := make([]Dimension, rank)
	for i := range dims {
		var lo, hi int64
		if err := read(&lo); err != nil {
			return nil, errs.Wrap(err, errs.Corruption, "schema: read domain lo")
		}
		if err := read(&hi); err != nil {
			return nil, errs.Wrap(err, errs.Corruption, "schema: read domain hi")
		}
		dims[i] = Dimension{Name: names[i], Lo: lo, Hi: hi}
	}
	for i := range dims {
		var extent int64
		if err := read(&extent); err != nil {
			return nil, errs.Wrap(err, errs.Corruption, "schema: read tile extent")
		}
		dims[i].TileExtent = extent
	}

	if err := read(&cellOrder); err != nil {
		return nil, errs.Wrap(err, errs.Corruption, "schema: read cell_order")
	}
	if err := read(&tileOrder); err != nil {
		return nil, errs.Wrap(err, errs.Corruption, "schema: read tile_order")
	}
	if err := read(&capacity); err != nil {
		return nil, errs.Wrap(err, errs.Corruption, "schema: read capacity")
	}
	if err := read(&numAttrs); err != nil {
		return nil, errs.Wrap(err, errs.Corruption, "schema: read #attrs")
	}

	attrs := make([]Attribute, numAttrs)
	for i := range attrs {
		name, err := readString()
		if err != nil {
			return nil, errs.Wrap(err, errs.Corruption, "schema: read attr name")
		}
		var typ uint8
		var cellValNum uint32
		var compressor uint8
		var level int32
		if err := read(&typ); err != nil {
			return nil, errs.Wrap(err, errs.Corruption, "schema: read attr type")
		}
		if err := read(&cellValNum); err != nil {
			return nil, errs.Wrap(err, errs.Corruption, "schema: read attr cell_val_num")
		}
		if err := read(&compressor); err != nil {
			return nil, errs.Wrap(err, errs.Corruption, "schema: read attr compressor")
		}
		if err := read(&level); err != nil {
			return nil, errs.Wrap(err, errs.Corruption, "schema: read attr level")
		}
		attrs[i] = Attribute{
			Name:       name,
			Type:       Datatype(typ),
			CellValNum: cellValNum,
			Compressor: codec.CodecID(compressor),
			Level:      level,
		}
	}

	return &Schema{
		ArrayType:  ArrayType(arrayType),
		Dimensions: dims,
		Attributes: attrs,
		CellOrder:  Order(cellOrder),
		TileOrder:  Order(tileOrder),
		Capacity:   capacity,
	}, nil
}
