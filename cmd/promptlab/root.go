/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "promptlab",
		Short:         "Evaluate and compare prompt versions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newEvalCmd())
	root.AddCommand(newCompareCmd())
	root.AddCommand(newWorkerCmd())
	return root
}
