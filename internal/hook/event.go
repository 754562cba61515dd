// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

// Package hook maps host package-manager events onto plugin lifecycle
// callbacks. It tracks which packages are mid-transition, which callback each
// owes, and defers "after" callbacks until the loader-rebuild event makes
// plugin code resolvable again.
package hook

import (
	"encoding/json"
	"fmt"
)

// Event names emitted by the host package manager, in phase order.
// loader-rebuild is the single synchronization point where deferred
// callbacks fire.
const (
	EventPreInstall    = "pre-install"
	EventPostInstall   = "post-install"
	EventPreUpdate     = "pre-update"
	EventPostUpdate    = "post-update"
	EventPreUninstall  = "pre-uninstall"
	EventPostUninstall = "post-uninstall"
	EventLoaderRebuild = "loader-rebuild"
)

// Metadata is the declared metadata block carried on every package event.
type Metadata struct {
	// Type tags the package; a package is subject to hooks when Type equals
	// the configured sentinel.
	Type string `json:"type"`
	// Hook is the dotted identifier of the package's hook code unit,
	// e.g. "acme.widgets.hook". Optional: a plugin without hooks is valid.
	Hook string `json:"hook,omitempty"`
	// SourceRoots maps dotted namespace prefixes to directories relative to
	// the install path, used to locate the hook unit on disk.
	SourceRoots map[string]string `json:"source-roots,omitempty"`
}

// Package identifies the package an event is about.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	// PreviousVersion is set on update events.
	PreviousVersion string   `json:"previous-version,omitempty"`
	Path            string   `json:"path"`
	Meta            Metadata `json:"meta"`
}

// Event is one phase notification from the host package manager.
// loader-rebuild events carry no package.
type Event struct {
	Name    string   `json:"event"`
	Package *Package `json:"package,omitempty"`
}

// packageEvents lists the event names that must carry a package.
var packageEvents = map[string]bool{
	EventPreInstall:    true,
	EventPostInstall:   true,
	EventPreUpdate:     true,
	EventPostUpdate:    true,
	EventPreUninstall:  true,
	EventPostUninstall: true,
}

// KnownEvent reports whether name is part of the host's event feed.
func KnownEvent(name string) bool {
	return name == EventLoaderRebuild || packageEvents[name]
}

// ParseEvent parses and validates one event from the host's feed.
func ParseEvent(data []byte) (*Event, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("event data is empty")
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Validate checks event constraints. Unknown event names are allowed here;
// the orchestrator skips them with a warning so new host phases do not break
// older orchestrators.
func (e *Event) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("event name is required")
	}
	if !packageEvents[e.Name] {
		return nil
	}

	if e.Package == nil {
		return fmt.Errorf("event %q requires a package", e.Name)
	}
	if e.Package.Name == "" {
		return fmt.Errorf("event %q requires a package name", e.Name)
	}
	if e.Package.Path == "" {
		return fmt.Errorf("event %q requires a package path", e.Name)
	}
	return nil
}
