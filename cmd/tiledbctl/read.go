// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newReadCommand() *cobra.Command {
	var (
		configPath string
		subarray   string
		attrNames  []string
	)

	cmd := &cobra.Command{
		Use:   "read <uri>",
		Short: "Read a subarray and print one line per cell",
		Args:  cobra.ExactArgs(1),
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

			bounds := arr.FullDomain()
			if subarray != "" {
				bounds, err = parseSubarray(subarray)
				if err != nil {
					return err
				}
			}
			names := attrNames
			if len(names) == 0 {
				names = arr.AttributeNames()
			}

			cells, err := arr.Read(bg, bounds, names)
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			for _, cell := range cells {
				coordStrs := make([]string, len(cell.Coord))
				for i, v := range cell.Coord {
					coordStrs[i] = strconv.FormatInt(v, 10)
				}
				fmt.Fprintf(out, "[%s]", strings.Join(coordStrs, ","))
				for _, name := range names {
					fmt.Fprintf(out, " %s=%x", name, cell.Values[name])
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to a TOML config file")
	flags.StringVar(&subarray, "subarray", "", "comma-separated lo,hi pairs, one per dimension; defaults to the full domain")
	flags.StringArrayVar(&attrNames, "attr", nil, "attribute name to read, repeatable; defaults to every attribute")
	return cmd
}

func parseSubarray(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	out := make([]int64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("subarray %q: %w", s, err)
		}
		out[i] = v
	}
	if len(out)%2 != 0 {
		return nil, fmt.Errorf("subarray %q: need an even count of lo,hi bounds", s)
	}
	return out, nil
}
