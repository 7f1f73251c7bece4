// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/moleculax/tileengine"
	"github.com/moleculax/tileengine/codec"
	"github.com/moleculax/tileengine/config"
	"github.com/moleculax/tileengine/logger"
	"github.com/moleculax/tileengine/schema"
)

// dimSpec parses "name:lo:hi[:tileextent]" into a schema.Dimension.
func dimSpec(s string) (schema.Dimension, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return schema.Dimension{}, fmt.Errorf("dim %q: want name:lo:hi[:tileextent]", s)
	}
	lo, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return schema.Dimension{}, fmt.Errorf("dim %q: lo: %w", s, err)
	}
	hi, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return schema.Dimension{}, fmt.Errorf("dim %q: hi: %w", s, err)
	}
	d := schema.Dimension{Name: parts[0], Lo: lo, Hi: hi}
	if len(parts) == 4 {
		ext, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return schema.Dimension{}, fmt.Errorf("dim %q: tileextent: %w", s, err)
		}
		d.TileExtent = ext
	}
	return d, nil
}

// attrSpec parses "name:type[:var][:compressor]" into a schema.Attribute.
// type is one of the schema.Datatype names, lowercased (int32, float64,
// char); the optional "var" marker marks a variable-length attribute;
// compressor is one of none/gzip/zstd/lz4/blosc/rle.
func attrSpec(s string) (schema.Attribute, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return schema.Attribute{}, fmt.Errorf("attr %q: want name:type[:var][:compressor]", s)
	}
	dt, err := parseDatatype(parts[1])
	if err != nil {
		return schema.Attribute{}, fmt.Errorf("attr %q: %w", s, err)
	}
	a := schema.Attribute{Name: parts[0], Type: dt, CellValNum: 1, Compressor: codec.None}
	for _, opt := range parts[2:] {
		if opt == "var" {
			a.CellValNum = 0
			continue
		}
		cid, err := parseCompressor(opt)
		if err != nil {
			return schema.Attribute{}, fmt.Errorf("attr %q: %w", s, err)
		}
		a.Compressor = cid
	}
	return a, nil
}

func parseDatatype(s string) (schema.Datatype, error) {
	switch strings.ToLower(s) {
	case "int8":
		return schema.DatatypeInt8, nil
	case "int16":
		return schema.DatatypeInt16, nil
	case "int32":
		return schema.DatatypeInt32, nil
	case "int64":
		return schema.DatatypeInt64, nil
	case "uint8":
		return schema.DatatypeUint8, nil
	case "uint16":
		return schema.DatatypeUint16, nil
	case "uint32":
		return schema.DatatypeUint32, nil
	case "uint64":
		return schema.DatatypeUint64, nil
	case "float32":
		return schema.DatatypeFloat32, nil
	case "float64":
		return schema.DatatypeFloat64, nil
	case "char", "string":
		return schema.DatatypeChar, nil
	default:
		return 0, fmt.Errorf("unknown datatype %q", s)
	}
}

func parseCompressor(s string) (codec.CodecID, error) {
	switch strings.ToLower(s) {
	case "none":
		return codec.None, nil
	case "gzip":
		return codec.Gzip, nil
	case "zstd":
		return codec.Zstd, nil
	case "lz4":
		return codec.LZ4, nil
	case "blosc":
		return codec.Blosc, nil
	case "rle":
		return codec.RLE, nil
	default:
		return 0, fmt.Errorf("unknown compressor %q", s)
	}
}

func parseOrder(s string) (schema.Order, error) {
	switch strings.ToLower(s) {
	case "", "row", "rowmajor":
		return schema.RowMajor, nil
	case "col", "column", "colmajor", "columnmajor":
		return schema.ColumnMajor, nil
	case "hilbert":
		return schema.Hilbert, nil
	default:
		return 0, fmt.Errorf("unknown cell/tile order %q", s)
	}
}

// newContext builds a tileengine.Context from an optional TOML config path
// and a quiet flag.
func newContext(configPath string, quiet bool) (*tileengine.Context, error) {
	cfg := config.NewDefault()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	lg := logger.NewStandardLogger(os.Stderr)
	if quiet {
		lg = logger.NopLogger
	}
	return tileengine.OpenContext(cfg, lg), nil
}
