// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

// Package registry defines the installed-plugin record store consulted by the
// orchestrator at the loader-rebuild synchronization point.
//
// The store is an external collaborator: the orchestrator only depends on the
// Store interface and calls it after the matching "after" hook has run.
package registry

import (
	"context"
	"time"
)

// Record is one installed-plugin entry.
type Record struct {
	Name        string    `json:"name" yaml:"name"`
	Version     string    `json:"version" yaml:"version"`
	Type        string    `json:"type" yaml:"type"`
	Path        string    `json:"path" yaml:"path"`
	InstalledAt time.Time `json:"installed-at" yaml:"installed-at"`
}

// Store persists installed-plugin records.
//
// Implementations must be crash-consistent: a call either takes full effect
// or leaves the previous contents intact.
type Store interface {
	// Add records a newly installed plugin. An existing record with the same
	// name is replaced.
	Add(ctx context.Context, rec Record) error

	// Update sets the recorded version of an installed plugin.
	// Returns an error with code "not_found" if the plugin is not recorded.
	Update(ctx context.Context, name, version string) error

	// Remove deletes the record for an uninstalled plugin.
	// Returns an error with code "not_found" if the plugin is not recorded.
	Remove(ctx context.Context, name string) error

	// List returns all records in name order.
	List(ctx context.Context) ([]Record, error)
}
