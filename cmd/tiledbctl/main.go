// Copyright 2024 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Command tiledbctl is thin glue exposing the engine as a binary: create,
// write, read, consolidate. It is not a spec-significant module — the
// engine's contract lives in package tileengine, not here.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "tiledbctl",
		Short: "Create, write, read, and consolidate tile-engine arrays",
	}
	root.AddCommand(newCreateCommand())
	root.AddCommand(newWriteCommand())
	root.AddCommand(newReadCommand())
	root.AddCommand(newConsolidateCommand())
	return root
}
