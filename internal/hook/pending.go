// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

package hook

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Entry is a recorded obligation to run an "after" callback and update the
// installed-plugin registry once the loader-rebuild event fires. Entries are
// keyed by package name; the last write for a name in a phase wins.
type Entry struct {
	Name            string
	Version         string
	PreviousVersion string
	Type            string
	Path            string
	Hook            string
	SourceRoots     map[string]string
}

// Descriptor rebuilds the plugin descriptor for the deferred call.
func (e Entry) Descriptor() *Descriptor {
	return &Descriptor{
		Name:        e.Name,
		Version:     e.Version,
		Type:        e.Type,
		Path:        e.Path,
		Hook:        e.Hook,
		SourceRoots: e.SourceRoots,
	}
}

// entryFrom builds an Entry from a resolved descriptor.
func entryFrom(desc *Descriptor) Entry {
	return Entry{
		Name:        desc.Name,
		Version:     desc.Version,
		Type:        desc.Type,
		Path:        desc.Path,
		Hook:        desc.Hook,
		SourceRoots: desc.SourceRoots,
	}
}

// Pending holds the per-batch mappings of packages that owe an "after"
// callback, one per operation kind. The host process model is
// single-threaded cooperative, so no locking is needed.
type Pending struct {
	installs   *orderedmap.OrderedMap[string, Entry]
	updates    *orderedmap.OrderedMap[string, Entry]
	uninstalls *orderedmap.OrderedMap[string, Entry]
}

// NewPending creates empty pending mappings.
func NewPending() *Pending {
	return &Pending{
		installs:   orderedmap.New[string, Entry](),
		updates:    orderedmap.New[string, Entry](),
		uninstalls: orderedmap.New[string, Entry](),
	}
}

// RecordInstall records a package awaiting its after-install callback.
func (p *Pending) RecordInstall(e Entry) {
	p.installs.Set(e.Name, e)
}

// RecordUpdate records a package awaiting its after-update callback.
func (p *Pending) RecordUpdate(e Entry) {
	p.updates.Set(e.Name, e)
}

// RecordUninstall records a package awaiting its after-uninstall callback.
func (p *Pending) RecordUninstall(e Entry) {
	p.uninstalls.Set(e.Name, e)
}

// DrainInstalls returns and clears the pending installs in insertion order.
// Draining an empty mapping returns nil.
func (p *Pending) DrainInstalls() []Entry {
	out := drain(p.installs)
	p.installs = orderedmap.New[string, Entry]()
	return out
}

// DrainUpdates returns and clears the pending updates in insertion order.
func (p *Pending) DrainUpdates() []Entry {
	out := drain(p.updates)
	p.updates = orderedmap.New[string, Entry]()
	return out
}

// DrainUninstalls returns and clears the pending uninstalls in insertion order.
func (p *Pending) DrainUninstalls() []Entry {
	out := drain(p.uninstalls)
	p.uninstalls = orderedmap.New[string, Entry]()
	return out
}

// Empty reports whether nothing is pending in any mapping.
func (p *Pending) Empty() bool {
	return p.installs.Len() == 0 && p.updates.Len() == 0 && p.uninstalls.Len() == 0
}

func drain(m *orderedmap.OrderedMap[string, Entry]) []Entry {
	if m.Len() == 0 {
		return nil
	}
	out := make([]Entry, 0, m.Len())
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}
