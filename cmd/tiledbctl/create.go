// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package main

import (
	"context"
	"fmt"

	"github.com/moleculax/tileengine/schema"
	"github.com/spf13/cobra"
)

func newCreateCommand() *cobra.Command {
	var (
		configPath string
		sparse     bool
		dims       []string
		attrs      []string
		cellOrder  string
		tileOrder  string
		capacity   uint64
	)

	cmd := &cobra.Command{
		Use:   "create <uri>",
		Short: "Create a new array and persist its schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, err := newContext(configPath, false)
			if err != nil {
				return err
			}

			dimDescs := make([]schema.Dimension, len(dims))
			for i, s := range dims {
				d, err := dimSpec(s)
				if err != nil {
					return err
				}
				dimDescs[i] = d
			}
			attrDescs := make([]schema.Attribute, len(attrs))
			for i, s := range attrs {
				a, err := attrSpec(s)
				if err != nil {
					return err
				}
				attrDescs[i] = a
			}
			cOrder, err := parseOrder(cellOrder)
			if err != nil {
				return err
			}
			tOrder, err := parseOrder(tileOrder)
			if err != nil {
				return err
			}

			arrayType := schema.Dense
			if sparse {
				arrayType = schema.Sparse
			}

			desc := schema.Description{
				ArrayType:  arrayType,
				Dimensions: dimDescs,
				Attributes: attrDescs,
				CellOrder:  cOrder,
				TileOrder:  tOrder,
				Capacity:   capacity,
			}
			if _, err := ctx.CreateArray(context.Background(), args[0], desc); err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "created %s\n", args[0])
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to a TOML config file")
	flags.BoolVar(&sparse, "sparse", false, "create a sparse array (default dense)")
	flags.StringArrayVar(&dims, "dim", nil, "dimension spec name:lo:hi[:tileextent], repeatable")
	flags.StringArrayVar(&attrs, "attr", nil, "attribute spec name:type[:var][:compressor], repeatable")
	flags.StringVar(&cellOrder, "cell-order", "rowmajor", "cell order: rowmajor, colmajor, hilbert")
	flags.StringVar(&tileOrder, "tile-order", "rowmajor", "tile order: rowmajor, colmajor, hilbert")
	flags.Uint64Var(&capacity, "capacity", 0, "cells per tile for sparse arrays")
	return cmd
}
