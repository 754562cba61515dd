// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

package hook

import (
	"log/slog"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Descriptor identifies an eligible plugin package for one event. Derived
// once per event from the package metadata and never persisted.
type Descriptor struct {
	Name        string
	Version     string
	Type        string
	Path        string
	Hook        string
	SourceRoots map[string]string
}

// Resolver decides whether a package is a plugin subject to hooks.
// Eligibility is by declared package type: the type must equal the sentinel.
type Resolver struct {
	sentinel string
	ignore   []glob.Glob
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver) error

// WithIgnorePatterns exempts packages whose names match any of the given
// glob patterns.
func WithIgnorePatterns(patterns []string) ResolverOption {
	return func(r *Resolver) error {
		for _, p := range patterns {
			g, err := glob.Compile(p)
			if err != nil {
				return oops.In("hook").With("pattern", p).Hint("fix hooks.ignore in the configuration").Wrap(err)
			}
			r.ignore = append(r.ignore, g)
		}
		return nil
	}
}

// NewResolver creates a resolver for the given type sentinel.
func NewResolver(sentinel string, opts ...ResolverOption) (*Resolver, error) {
	if sentinel == "" {
		return nil, oops.In("hook").New("sentinel is required")
	}
	r := &Resolver{sentinel: sentinel}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Sentinel returns the package type that marks a package as hook-bearing.
func (r *Resolver) Sentinel() string {
	return r.sentinel
}

// Resolve derives a plugin descriptor from a package, or reports that the
// package is not subject to hooks. Ineligible packages are skipped silently;
// an eligible package with an invalid declared version is skipped with a
// warning.
func (r *Resolver) Resolve(pkg *Package) (*Descriptor, bool) {
	if pkg == nil || pkg.Meta.Type != r.sentinel {
		return nil, false
	}

	for _, g := range r.ignore {
		if g.Match(pkg.Name) {
			slog.Debug("package matches ignore pattern, skipping hooks",
				"package", pkg.Name)
			return nil, false
		}
	}

	if _, err := semver.NewVersion(pkg.Version); err != nil {
		slog.Warn("plugin package declares an invalid version, skipping hooks",
			"package", pkg.Name,
			"version", pkg.Version,
			"error", err)
		return nil, false
	}

	roots := make(map[string]string, len(pkg.Meta.SourceRoots))
	for prefix, dir := range pkg.Meta.SourceRoots {
		roots[prefix] = dir
	}

	return &Descriptor{
		Name:        pkg.Name,
		Version:     pkg.Version,
		Type:        pkg.Meta.Type,
		Path:        pkg.Path,
		Hook:        pkg.Meta.Hook,
		SourceRoots: roots,
	}, true
}
