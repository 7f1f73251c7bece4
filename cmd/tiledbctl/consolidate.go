// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newConsolidateCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "consolidate <uri>",
		Short: "Merge every live fragment into one fragment",
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
			if err := arr.Consolidate(bg); err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "consolidated %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")
	return cmd
}
