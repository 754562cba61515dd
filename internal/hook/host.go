// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CatchAdmin Contributors

package hook

import (
	"context"

	hookapi "github.com/catch-admin/plugin-hook/pkg/hook"
)

// Host loads and invokes plugin hook code units.
type Host interface {
	// Load resolves the descriptor's hook identifier to a source file and
	// loads it, caching the unit by package name. It is idempotent and
	// reports whether a unit is loaded; a hook file absent on disk is a
	// legitimate configuration, not an error.
	Load(ctx context.Context, desc *Descriptor) (bool, error)

	// Invoke calls the named lifecycle method on the package's hook unit,
	// preferring an already-loaded unit over a fresh load. An absent unit or
	// absent method is a silent no-op. An error raised by the method body
	// propagates to the caller.
	Invoke(ctx context.Context, desc *Descriptor, method hookapi.Method, hctx hookapi.Context) error

	// Close shuts down the host and drops all cached units.
	Close(ctx context.Context) error
}
