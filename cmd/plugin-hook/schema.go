// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/catch-admin/plugin-hook/internal/hook"
)

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the lifecycle event JSON Schema",
		Long: `Print the JSON Schema that event feed lines are validated against.
Host package managers can use it to check their emitter output.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := hook.GenerateSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return nil
		},
	}
}
