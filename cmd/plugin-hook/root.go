// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the plugin-hook CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin-hook",
		Short: "Lifecycle-hook orchestrator for installable plugin packages",
		Long: `plugin-hook sits between the host package manager and installable
plugin packages. It consumes the manager's lifecycle event feed, runs each
plugin's before-hooks synchronously, and defers after-hooks until the
dependency loader has been rebuilt.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewSchemaCmd())

	return cmd
}
