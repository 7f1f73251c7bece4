// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package main

import (
	"context"
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/moleculax/tileengine/fragwriter"
	"github.com/moleculax/tileengine/schema"
	"github.com/spf13/cobra"
)

func newWriteCommand() *cobra.Command {
	var (
		configPath string
		csvPath    string
	)

	cmd := &cobra.Command{
		Use:   "write <uri>",
		Short: "Write one fragment from a CSV fixture",
		Long: `
Writes one fragment from a CSV file whose header names dimensions first (in
schema order) and attributes after (in schema order). Fixed-width numeric
attributes hold one value per cell; variable-length attributes hold a raw
string per cell.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, err := newContext(configPath, false)
			if err != nil {
				return err
			}
			bg := context.Background()
			arr, err := ctx.OpenArray(bg, args[0])
			if err != nil {
				return err
			}

			f, err := os.Open(csvPath)
			if err != nil {
				return err
			}
			defer f.Close()

			rows, err := csv.NewReader(f).ReadAll()
			if err != nil {
				return err
			}
			if len(rows) < 1 {
				return fmt.Errorf("%s: empty CSV, need a header row", csvPath)
			}

			coords, attrInputs, err := rowsToSubmission(arr.Schema(), rows)
			if err != nil {
				return err
			}

			w, err := arr.OpenWriter(bg)
			if err != nil {
				return err
			}
			if err := w.Submit(bg, coords, attrInputs); err != nil {
				return err
			}
			if err := w.Finalize(bg); err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "wrote fragment %s\n", w.Dir())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to a TOML config file")
	flags.StringVar(&csvPath, "csv", "", "path to the CSV fixture to load (required)")
	cmd.MarkFlagRequired("csv")
	return cmd
}

// rowsToSubmission turns a header+data CSV into the coords/attrs shape
// fragwriter.Submit expects: rows[0] is the header, dimension columns come
// first (in sch.Dimensions order), attribute columns follow (in
// sch.Attributes order).
func rowsToSubmission(sch *schema.Schema, rows [][]string) ([]int64, map[string]fragwriter.AttrInput, error) {
	rank := sch.Rank()
	data := rows[1:]

	coords := make([]int64, 0, len(data)*rank)
	for _, row := range data {
		if len(row) < rank+len(sch.Attributes) {
			return nil, nil, fmt.Errorf("row %v: want %d columns, got %d", row, rank+len(sch.Attributes), len(row))
		}
		for i := 0; i < rank; i++ {
			v, err := strconv.ParseInt(row[i], 10, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("row %v: coordinate %d: %w", row, i, err)
			}
			coords = append(coords, v)
		}
	}

	attrInputs := make(map[string]fragwriter.AttrInput, len(sch.Attributes))
	for ai, a := range sch.Attributes {
		col := rank + ai
		if a.IsVariable() {
			var values []byte
			offsets := make([]uint64, len(data))
			for i, row := range data {
				offsets[i] = uint64(len(values))
				values = append(values, []byte(row[col])...)
			}
			attrInputs[a.Name] = fragwriter.AttrInput{Values: values, Offsets: offsets}
			continue
		}
		values := make([]byte, 0, len(data)*a.Type.Size())
		for _, row := range data {
			enc, err := encodeScalar(a.Type, row[col])
			if err != nil {
				return nil, nil, fmt.Errorf("row %v: attribute %q: %w", row, a.Name, err)
			}
			values = append(values, enc...)
		}
		attrInputs[a.Name] = fragwriter.AttrInput{Values: values}
	}
	return coords, attrInputs, nil
}

func encodeScalar(dt schema.Datatype, s string) ([]byte, error) {
	switch dt {
	case schema.DatatypeInt8, schema.DatatypeInt16, schema.DatatypeInt32, schema.DatatypeInt64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return encodeInt(dt, v), nil
	case schema.DatatypeUint8, schema.DatatypeUint16, schema.DatatypeUint32, schema.DatatypeUint64:
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, err
		}
		return encodeUint(dt, v), nil
	case schema.DatatypeFloat32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
		return buf, nil
	case schema.DatatypeFloat64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		return buf, nil
	case schema.DatatypeChar:
		if len(s) != 1 {
			return nil, fmt.Errorf("fixed-length char attribute wants exactly one byte, got %q", s)
		}
		return []byte(s), nil
	default:
		return nil, fmt.Errorf("unsupported datatype %v", dt)
	}
}

func encodeInt(dt schema.Datatype, v int64) []byte {
	switch dt {
	case schema.DatatypeInt8:
		return []byte{byte(v)}
	case schema.DatatypeInt16:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(v))
		return buf
	case schema.DatatypeInt32:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(v))
		return buf
	default:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(v))
		return buf
	}
}

func encodeUint(dt schema.Datatype, v uint64) []byte {
	switch dt {
	case schema.DatatypeUint8:
		return []byte{byte(v)}
	case schema.DatatypeUint16:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(v))
		return buf
	case schema.DatatypeUint32:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(v))
		return buf
	default:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v)
		return buf
	}
}
