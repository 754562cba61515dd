// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/catch-admin/plugin-hook/internal/config"
	"github.com/catch-admin/plugin-hook/internal/registry"
)

// NewListCmd creates the list subcommand.
func NewListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed plugins recorded in the registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, nil)
			if err != nil {
				return err
			}

			store := registry.NewFileStore(cfg.Registry.Path)
			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			return printRecords(cmd, records, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format (text, json, or yaml)")

	return cmd
}

func printRecords(cmd *cobra.Command, records []registry.Record, format string) error {
	switch format {
	case "text":
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tTYPE\tINSTALLED")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				rec.Name, rec.Version, rec.Type, rec.InstalledAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "yaml":
		return yaml.NewEncoder(cmd.OutOrStdout()).Encode(records)
	default:
		return oops.In("cli").With("format", format).New("format must be \"text\", \"json\", or \"yaml\"")
	}
}
